package logging

// Structured logging for canrig

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

// ParseLevel maps a CLI level name to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(name) {
	case "silent", "quiet":
		return LogLevelSilent, nil
	case "error":
		return LogLevelError, nil
	case "", "info":
		return LogLevelInfo, nil
	case "verbose":
		return LogLevelVerbose, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

var (
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true)
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68"))
	styleNotify  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7")).Bold(true)
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")).Bold(true)
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
)

// Logger provides structured logging
type Logger struct {
	mu      sync.Mutex
	level   LogLevel
	format  string
	runID   string
	file    *os.File
	fileLog *log.Logger
	stdout  *log.Logger
	stderr  *log.Logger
	color   bool
}

// NewLogger creates a new logger
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	return NewLoggerWithOptions(level, logFile, "text")
}

// NewLoggerWithOptions creates a logger with an explicit line format
// ("text" or "json").
func NewLoggerWithOptions(level LogLevel, logFile string, format string) (*Logger, error) {
	if format == "" {
		format = "text"
	}
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
	l := &Logger{
		level:  level,
		format: format,
		stdout: log.New(os.Stdout, "", 0),
		stderr: log.New(os.Stderr, "", 0),
		color:  true,
	}

	if logFile != "" {
		file, err := os.Create(logFile)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		l.file = file
		l.fileLog = log.New(file, "", log.LstdFlags)
		if format == "json" {
			l.fileLog.SetFlags(0)
		}
	}

	return l, nil
}

// NewWriterLogger logs everything at the given level to w without color.
// Used by tests and by the monitor when it owns the terminal.
func NewWriterLogger(level LogLevel, w io.Writer) *Logger {
	return &Logger{
		level:  level,
		format: "text",
		stdout: log.New(w, "", 0),
		stderr: log.New(w, "", 0),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWriterLogger(LogLevelSilent, io.Discard)
}

// Close closes the logger and flushes all data
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// SetRunID tags every subsequent line with a run identifier.
func (l *Logger) SetRunID(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runID = id
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		l.write("error", fmt.Sprintf(format, v...), styleError, true)
	}
}

// Warn logs a non-fatal problem such as a skipped topology entry.
func (l *Logger) Warn(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		l.write("warn", fmt.Sprintf(format, v...), styleWarn, true)
	}
}

// Notify logs a progress headline, e.g. which test runs on which fixtures.
func (l *Logger) Notify(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.write("notify", fmt.Sprintf(format, v...), styleNotify, false)
	}
}

// Success logs a passing outcome.
func (l *Logger) Success(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.write("success", fmt.Sprintf(format, v...), styleSuccess, false)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.write("info", fmt.Sprintf(format, v...), lipgloss.NewStyle(), false)
	}
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	if l.level >= LogLevelVerbose {
		l.write("verbose", fmt.Sprintf(format, v...), lipgloss.NewStyle(), false)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level >= LogLevelDebug {
		l.write("debug", fmt.Sprintf(format, v...), styleDim, false)
	}
}

type jsonLine struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	RunID   string `json:"run_id,omitempty"`
	Message string `json:"message"`
}

func (l *Logger) render(level, msg string) string {
	if l.format == "json" {
		data, err := json.Marshal(jsonLine{
			Time:    time.Now().UTC().Format(time.RFC3339Nano),
			Level:   level,
			RunID:   l.runID,
			Message: msg,
		})
		if err == nil {
			return string(data)
		}
	}
	line := strings.ToUpper(level) + ": " + msg
	if l.runID != "" {
		line = "[" + l.runID + "] " + line
	}
	return line
}

// write writes a message to the appropriate outputs
func (l *Logger) write(level, msg string, style lipgloss.Style, isError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := l.render(level, msg)
	if l.fileLog != nil {
		l.fileLog.Println(line)
	}

	console := line
	if l.color && l.format == "text" {
		console = style.Render(line)
	}
	if isError {
		l.stderr.Println(console)
	} else {
		l.stdout.Println(console)
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// LogFrame logs one bus frame at debug level.
func (l *Logger) LogFrame(direction string, id uint32, remote bool, data []byte) {
	if l.level < LogLevelDebug {
		return
	}
	kind := "data"
	if remote {
		kind = "rtr"
	}
	l.Debug("%s id=0x%03X %s len=%d %s", direction, id, kind, len(data), hexBytes(data))
}

// LogHex logs hex data (for debug level)
func (l *Logger) LogHex(label string, data []byte) {
	if l.level >= LogLevelDebug {
		l.Debug("%s: %s", label, hexBytes(data))
	}
}

func hexBytes(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, " ")
}
