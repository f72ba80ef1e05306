package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	envLogLevel     = "LOG_LEVEL"
	envLogFormat    = "LOG_FORMAT"
	envLogFilePath  = "LOG_FILE_PATH"
	envLogMaxSizeMB = "LOG_MAX_SIZE_MB"

	FormatText = "text"
	FormatJSON = "json"

	defaultMaxSizeMB  = 20
	defaultMaxBackups = 5
)

type Options struct {
	Level     string
	Format    string
	FilePath  string
	MaxSizeMB int
	Output    io.Writer
}

var global atomic.Pointer[slog.Logger]

func init() {
	global.Store(New(optionsFromEnv()))
}

func optionsFromEnv() Options {
	opts := Options{
		Level:     os.Getenv(envLogLevel),
		Format:    os.Getenv(envLogFormat),
		FilePath:  os.Getenv(envLogFilePath),
		MaxSizeMB: defaultMaxSizeMB,
	}
	if raw := strings.TrimSpace(os.Getenv(envLogMaxSizeMB)); raw != "" {
		var n int
		if _, err := fmt.Sscanf(raw, "%d", &n); err == nil && n > 0 {
			opts.MaxSizeMB = n
		}
	}
	return opts
}

// New builds a logger writing to stdout (or opts.Output) and, when FilePath is
// set, to a size-rotated file as well.
func New(opts Options) *slog.Logger {
	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}
	if path := strings.TrimSpace(opts.FilePath); path != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = defaultMaxSizeMB
		}
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSize,
			MaxBackups: defaultMaxBackups,
			LocalTime:  true,
		})
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), FormatJSON) {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler)
}

// Setup replaces the process logger. Call it once from main before serving.
func Setup(opts Options) {
	l := New(opts)
	global.Store(l)
	slog.SetDefault(l)
}

func Logger() *slog.Logger {
	return global.Load()
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Debugf(format string, args ...any) {
	logf(slog.LevelDebug, format, args...)
}

func Infof(format string, args ...any) {
	logf(slog.LevelInfo, format, args...)
}

func Warnf(format string, args ...any) {
	logf(slog.LevelWarn, format, args...)
}

func Errorf(format string, args ...any) {
	logf(slog.LevelError, format, args...)
}

func logf(lv slog.Level, format string, args ...any) {
	l := global.Load()
	ctx := context.Background()
	if !l.Enabled(ctx, lv) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), lv, fmt.Sprintf(format, args...), pcs[0])
	r.AddAttrs(slog.String("caller", callerFuncName(pcs[0])))
	_ = l.Handler().Handle(ctx, r)
}

func callerFuncName(pc uintptr) string {
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	fullName := fn.Name()
	if idx := strings.LastIndex(fullName, "/"); idx >= 0 {
		return fullName[idx+1:]
	}
	return fullName
}
