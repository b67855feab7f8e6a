package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapBusError wraps CAN bus errors with user-friendly context
func WrapBusError(err error, channel string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("CAN bus operation failed on %s", channel),
		Reason:  extractBusReason(err),
		Hint:    "Check that the interface is up and configured with the rig bitrate",
		Try:     fmt.Sprintf("ip -details link show %s", channel),
		Err:     err,
	}
}

// WrapTopologyError wraps test rig topology errors with user-friendly context
func WrapTopologyError(err error, path string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Test rig topology error in %s", path),
		Reason:  err.Error(),
		Hint:    "Every component needs a name and a type; odrive entries need serial-number and can",
		Try:     "canrig wizard --out rig.yaml",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Delete the file to fall back to built-in defaults",
		Try:     fmt.Sprintf("canrig run --config %s --help", configPath),
		Err:     err,
	}
}

// WrapFixtureError wraps fixture activation errors with user-friendly context
func WrapFixtureError(err error, fixture string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Fixture %s is unavailable", fixture),
		Reason:  extractBusReason(err),
		Hint:    "The device may be unpowered, on another bus, or configured with another node id",
		Try:     "canrig monitor --channel <iface>",
		Err:     err,
	}
}

func extractBusReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "No matching frame arrived before the deadline"
	}
	if strings.Contains(errStr, "no such device") {
		return "CAN interface does not exist"
	}
	if strings.Contains(errStr, "network is down") {
		return "CAN interface is down"
	}
	if strings.Contains(errStr, "no buffer space") {
		return "Transmit queue is full - the bus may be unterminated or nothing is acknowledging"
	}
	if strings.Contains(errStr, "operation not permitted") {
		return "Insufficient permissions to open a raw CAN socket"
	}

	return "CAN communication failed"
}
