package errors

// Kind is a distinguished error category. Kind values compare by value, so
// errors.Is matches a Kind anywhere in a %w chain.
type Kind string

func (k Kind) Error() string {
	return string(k)
}

// Protocol and transport kinds abort the current test invocation.
const (
	UnknownCommand     Kind = "unknown command"
	ArgumentMismatch   Kind = "argument mismatch"
	EncodingOverflow   Kind = "encoding overflow"
	IDOutOfRange       Kind = "arbitration id out of range"
	Timeout            Kind = "timeout"
	FixtureUnavailable Kind = "fixture unavailable"
)

// AssertionFailure is raised by test bodies when the device under test
// behaved incorrectly.
const AssertionFailure Kind = "assertion failure"

var harnessKinds = []Kind{
	UnknownCommand,
	ArgumentMismatch,
	EncodingOverflow,
	IDOutOfRange,
	Timeout,
	FixtureUnavailable,
}

// KindOf returns the first Kind found in err's chain.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if k, ok := err.(Kind); ok {
			return k, true
		}
		switch e := err.(type) {
		case interface{ Unwrap() error }:
			err = e.Unwrap()
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				if k, ok := KindOf(inner); ok {
					return k, true
				}
			}
			return "", false
		default:
			return "", false
		}
	}
	return "", false
}

// IsHarness reports whether err means the harness itself cannot proceed.
func IsHarness(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	for _, hk := range harnessKinds {
		if k == hk {
			return true
		}
	}
	return false
}

// IsAssertion reports whether err is a test body assertion failure.
func IsAssertion(err error) bool {
	k, ok := KindOf(err)
	return ok && k == AssertionFailure
}
