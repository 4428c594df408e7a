package loopdetect

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/itchyny/timefmt-go"
)

// LogLevel represents the severity level for logs.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelNames = [...]string{"ERROR", "WARN", "INFO", "DEBUG"}

func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLogLevel parses a level name, ignoring case. Unknown names mean warn.
func ParseLogLevel(s string) LogLevel {
	name := strings.ToUpper(s)
	if name == "WARNING" {
		return LevelWarn
	}
	if i := slices.Index(levelNames[:], name); i >= 0 {
		return LogLevel(i)
	}
	return LevelWarn
}

// Logger is what the detector reports its progress to. Checks, verdicts and
// stream probes are logged at debug and info; nothing above warn is logged
// for a run that behaves.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	// With returns a child logger that appends fields to every line.
	With(fields map[string]any) Logger
}

// timestampLayout is a strftime layout for UTC log timestamps.
const timestampLayout = "%Y-%m-%dT%H:%M:%SZ"

// formatLine renders one log line: [LEVEL] ts msg key1=val1 key2=val2
func formatLine(ts time.Time, level LogLevel, msg string, fields map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s", level, timefmt.Format(ts.UTC(), timestampLayout), msg)
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		fmt.Fprintf(&b, " %s=%s", k, fieldValue(fields[k]))
	}
	b.WriteByte('\n')
	return b.String()
}

// fieldValue prints v, quoting strings that would break the key=value layout.
func fieldValue(v any) string {
	switch t := v.(type) {
	case string:
		if strings.ContainsFunc(t, func(r rune) bool { return r <= ' ' }) {
			return fmt.Sprintf("%q", t)
		}
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// textLogger writes through a lock shared with every logger derived by With.
type textLogger struct {
	out    io.Writer
	level  LogLevel
	fields map[string]any
	mu     *sync.Mutex
}

// NewLogger creates a text logger at the given level.
// If w is nil, os.Stderr is used.
func NewLogger(level LogLevel, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	return &textLogger{out: w, level: level, mu: &sync.Mutex{}}
}

func (l *textLogger) With(fields map[string]any) Logger {
	if len(fields) == 0 {
		return l
	}
	merged := maps.Clone(l.fields)
	if merged == nil {
		merged = make(map[string]any, len(fields))
	}
	maps.Copy(merged, fields)
	return &textLogger{out: l.out, level: l.level, fields: merged, mu: l.mu}
}

func (l *textLogger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *textLogger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *textLogger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *textLogger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

func (l *textLogger) logf(level LogLevel, format string, args ...any) {
	if level > l.level {
		return
	}
	line := formatLine(time.Now(), level, fmt.Sprintf(format, args...), l.fields)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, line)
}

// NopLogger returns a logger that discards all output.
func NopLogger() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)          {}
func (nopLogger) Infof(string, ...any)           {}
func (nopLogger) Warnf(string, ...any)           {}
func (nopLogger) Errorf(string, ...any)          {}
func (l nopLogger) With(map[string]any) Logger { return l }

// loggerFor builds the run logger described by opts.
func loggerFor(opts Options) Logger {
	return NewLogger(ParseLogLevel(opts.LogLevel), opts.LogWriter)
}
