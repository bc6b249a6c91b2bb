// Package observability owns the process-wide zap logger used by the CLI and
// the optimizer, and the per-run child loggers derived from it.
package observability

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/stepwise/internal/config"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

const (
	timeLayout = "2006-01-02T15:04:05.000Z07:00"
	colorReset = "\x1b[0m"
)

// ansiColors maps the color names accepted in config to SGR foreground codes.
var ansiColors = map[string]int{
	"black":   30,
	"red":     31,
	"green":   32,
	"yellow":  33,
	"blue":    34,
	"magenta": 35,
	"cyan":    36,
	"white":   37,
}

func sgr(code int) string { return "\x1b[" + strconv.Itoa(code) + "m" }

// palette holds the pre-rendered, colored label of each level that has a color.
type palette map[zapcore.Level]string

// newPalette renders the configured colors. Unknown names leave a level
// uncolored. NO_COLOR in the environment disables colors entirely.
func newPalette(colors config.ColorConfig) palette {
	if os.Getenv("NO_COLOR") != "" {
		return nil
	}
	p := palette{}
	for level, name := range map[zapcore.Level]string{
		zapcore.DebugLevel:  colors.Debug,
		zapcore.InfoLevel:   colors.Info,
		zapcore.WarnLevel:   colors.Warn,
		zapcore.ErrorLevel:  colors.Error,
		zapcore.DPanicLevel: colors.DPanic,
		zapcore.PanicLevel:  colors.Panic,
		zapcore.FatalLevel:  colors.Fatal,
	} {
		if code, ok := ansiColors[strings.ToLower(name)]; ok {
			p[level] = sgr(code) + level.CapitalString() + colorReset
		}
	}
	return p
}

func (p palette) encodeLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if s, ok := p[level]; ok {
		enc.AppendString(s)
		return
	}
	zapcore.CapitalLevelEncoder(level, enc)
}

func encoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return ec
}

// consoleEncoder writes one line per entry. Logger names end in a dot so
// "stepwise.optimizer." stands apart from the message.
func consoleEncoder(colors config.ColorConfig) zapcore.Encoder {
	ec := encoderConfig()
	ec.EncodeLevel = newPalette(colors).encodeLevel
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}

func newEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	if cfg.Format == "console" {
		return consoleEncoder(cfg.Colors)
	}
	return zapcore.NewJSONEncoder(encoderConfig())
}

// rotatingFile is the writer behind log_file; lumberjack rotates it by size and age.
func rotatingFile(cfg config.LoggerConfig) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
}

// build assembles the logger without installing it. The file core is always JSON.
func build(cfg config.LoggerConfig, console zapcore.WriteSyncer) *zap.Logger {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if cfg.Level != "" {
		if parsed, err := zapcore.ParseLevel(cfg.Level); err == nil {
			level.SetLevel(parsed)
		}
	}

	core := zapcore.NewCore(newEncoder(cfg), console, level)
	if cfg.LogFile != "" {
		core = zapcore.NewTee(core, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), rotatingFile(cfg), level))
	}

	opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(core, opts...).Named(cfg.ServiceName)
}

// Initialize installs the global logger writing to console and, when
// configured, to a rotating file. Only the first call has an effect.
func Initialize(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	once.Do(func() {
		logger := build(cfg, console)
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// InitializeLogger logs to stderr so stdout carries only workflow output.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stderr))
}

// ResetForTest forgets the global logger so the next Initialize takes effect.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}

// GetLogger returns the global logger, or a development logger named
// "fallback" when Initialize has not run yet.
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	l.Warn("Global logger requested before initialization; using fallback.")
	return l.Named("fallback")
}

// ForRun returns a child logger tagged with the optimization run and workflow.
func ForRun(base *zap.Logger, runID, workflowID string) *zap.Logger {
	if base == nil {
		base = GetLogger()
	}
	fields := []zap.Field{zap.String("run_id", runID)}
	if workflowID != "" {
		fields = append(fields, zap.String("workflow_id", workflowID))
	}
	return base.With(fields...)
}

// Sync flushes the global logger. Call it before the process exits.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil && !unsyncable(err) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

// unsyncable reports errors from fsync on terminals and pipes, which cannot be synced.
func unsyncable(err error) bool {
	return errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, syscall.ENOTTY) ||
		errors.Is(err, syscall.ENOTSUP)
}
