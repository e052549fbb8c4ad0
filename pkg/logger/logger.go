// Package logger builds the zap logger shared by the gateway and the
// console commands. Console output goes to stderr, and an optional JSON
// file sink is rotated by lumberjack. The level is atomic so a config
// reload can change it without rebuilding loggers.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is a log level name as written in the config file.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	// LevelFatal exits the process after logging.
	LevelFatal Level = "fatal"
)

// Config describes the sinks. Rotation fields only apply to OutputPath.
type Config struct {
	Level      Level
	OutputPath string // empty disables the file sink

	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool

	// Development renders colored console lines instead of JSON.
	Development bool

	// Quiet drops the console sink so logs never interleave with CLI output.
	Quiet bool
}

// Logger is a zap.Logger whose level can be changed at runtime, including
// for children created with WithFields.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// New builds a logger from cfg.
func New(cfg *Config) (*Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	level := zap.NewAtomicLevelAt(lvl)

	var cores []zapcore.Core
	if !cfg.Quiet {
		cores = append(cores, consoleCore(cfg.Development, level))
	}
	if cfg.OutputPath != "" {
		core, err := fileCore(cfg, level)
		if err != nil {
			return nil, err
		}
		cores = append(cores, core)
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	return &Logger{
		Logger: zap.New(zapcore.NewTee(cores...), opts...),
		level:  level,
	}, nil
}

func encoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder
	ec.FunctionKey = zapcore.OmitKey
	return ec
}

func consoleCore(dev bool, level zap.AtomicLevel) zapcore.Core {
	ec := encoderConfig()
	enc := zapcore.NewJSONEncoder(ec)
	if dev {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
}

func fileCore(cfg *Config, level zap.AtomicLevel) (zapcore.Core, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	w := &lumberjack.Logger{
		Filename:   cfg.OutputPath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(w), level), nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), level: zap.NewAtomicLevel()}
}

// WithFields returns a child logger that follows this logger's level.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), level: l.level}
}

// SetLevel changes the level of this logger and all its children.
func (l *Logger) SetLevel(level Level) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	l.level.SetLevel(lvl)
	return nil
}

func (l *Logger) CurrentLevel() Level {
	return Level(l.level.Level().String())
}

// ParseLevel maps a config level to zap. Empty means info.
func ParseLevel(level Level) (zapcore.Level, error) {
	switch level {
	case "":
		return zapcore.InfoLevel, nil
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return zapcore.ParseLevel(string(level))
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
}
