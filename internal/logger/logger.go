package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu           sync.RWMutex
	currentLevel = LevelInfo
	base         = newLogger(os.Stdout, "text")
	closer       io.Closer
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func parseLevel(level string) (Level, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	}
	return LevelInfo, false
}

func newLogger(w io.Writer, format string) zerolog.Logger {
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime, NoColor: true}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(level string) {
	l, ok := parseLevel(level)
	if !ok {
		return
	}
	mu.Lock()
	currentLevel = l
	mu.Unlock()
}

// Configure sets level, format ("text" or "json") and output
// ("stdout", "stderr" or a file path).
func Configure(level, format, output string) error {
	var w io.Writer
	var c io.Closer

	switch strings.ToLower(output) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w, c = f, f
	}

	mu.Lock()
	if closer != nil {
		_ = closer.Close()
	}
	base = newLogger(w, strings.ToLower(format))
	closer = c
	if l, ok := parseLevel(level); ok {
		currentLevel = l
	}
	mu.Unlock()
	return nil
}

// SetOutput redirects log output. Used by tests.
func SetOutput(w io.Writer, format string) {
	mu.Lock()
	base = newLogger(w, format)
	mu.Unlock()
}

func log(level Level, component, format string, v ...any) {
	mu.RLock()
	enabled := level >= currentLevel
	l := base
	mu.RUnlock()
	if !enabled {
		return
	}

	ev := l.WithLevel(level.zerolog())
	if component != "" {
		ev = ev.Str("component", component)
	}
	ev.Msg(fmt.Sprintf(format, v...))
}

func Debug(format string, v ...any) {
	log(LevelDebug, "", format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, "", format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, "", format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, "", format, v...)
}

// Component is a logger that tags every line with a component name.
type Component string

// With returns a logger for the named component.
func With(component string) Component {
	return Component(component)
}

func (c Component) Debug(format string, v ...any) {
	log(LevelDebug, string(c), format, v...)
}

func (c Component) Info(format string, v ...any) {
	log(LevelInfo, string(c), format, v...)
}

func (c Component) Warn(format string, v ...any) {
	log(LevelWarn, string(c), format, v...)
}

func (c Component) Error(format string, v ...any) {
	log(LevelError, string(c), format, v...)
}
