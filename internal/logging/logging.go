package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents logging severity.
type Level = zapcore.Level

const (
	LevelError = zapcore.ErrorLevel
	LevelWarn  = zapcore.WarnLevel
	LevelInfo  = zapcore.InfoLevel
	LevelDebug = zapcore.DebugLevel
)

// TimeLayout is the timestamp layout of every log line.
const TimeLayout = "2006-01-02 15:04:05"

// Logger wraps zap's SugaredLogger with a runtime-adjustable level.
type Logger struct {
	*zap.SugaredLogger
	level zap.AtomicLevel
	sink  *AppendSink
}

// Options configures New.
type Options struct {
	// Path is the shared append-only log file. Empty disables the file sink.
	Path string
	// Verbose enables debug records.
	Verbose bool
	// Console, when non-nil, receives a copy of every record.
	Console io.Writer
}

// New builds a logger writing `timestamp [LEVEL] message` lines.
func New(opts Options) (*Logger, error) {
	level := zap.NewAtomicLevelAt(LevelFromVerbose(opts.Verbose))
	enc := zapcore.NewConsoleEncoder(encoderConfig())

	var (
		cores []zapcore.Core
		sink  *AppendSink
	)
	if opts.Path != "" {
		var err error
		sink, err = NewAppendSink(opts.Path)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(enc, sink, level))
	}
	if opts.Console != nil {
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.Lock(zapcore.AddSync(opts.Console)), level))
	}
	if len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level))
	}

	return &Logger{
		SugaredLogger: zap.New(zapcore.NewTee(cores...)).Sugar(),
		level:         level,
		sink:          sink,
	}, nil
}

// NewWithCore wraps an existing core; used by tests with zaptest/observer.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{
		SugaredLogger: zap.New(core).Sugar(),
		level:         zap.NewAtomicLevelAt(LevelDebug),
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		SugaredLogger: zap.NewNop().Sugar(),
		level:         zap.NewAtomicLevelAt(LevelInfo),
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(TimeLayout),
		EncodeLevel:      bracketLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
}

func bracketLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

// LevelFromVerbose maps the verbose switch to a level.
func LevelFromVerbose(verbose bool) Level {
	if verbose {
		return LevelDebug
	}
	return LevelInfo
}

// SetLevel changes the minimum recorded level.
func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(level)
}

// LevelName returns current level label.
func (l *Logger) LevelName() string {
	return LevelToString(l.level.Level())
}

// FallbackActive reports whether records go to the per-process fallback file.
func (l *Logger) FallbackActive() bool {
	return l.sink != nil && l.sink.FallbackActive()
}

// Sync flushes buffered records.
func (l *Logger) Sync() error {
	return l.SugaredLogger.Sync()
}

// LevelToString converts a Level to human readable text.
func LevelToString(l Level) string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel returns the Level for a name.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "info":
		return LevelInfo, nil
	case "debug", "trace":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("unknown level %s", s)
	}
}
