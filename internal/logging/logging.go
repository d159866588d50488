package logging

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level  string
	Format string
}

var (
	baseLogger *zap.Logger
	sugar      *zap.SugaredLogger
	traceID    atomic.Value
)

func init() {
	baseLogger = zap.NewNop()
	sugar = baseLogger.Sugar()
}

func InitFromEnv() error {
	cfg := Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	}
	return Init(cfg)
}

func Init(cfg Config) error {
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "" {
		level = "info"
	}

	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if format == "" {
		format = "console"
	}

	var zapCfg zap.Config
	switch format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s", cfg.Format)
	}

	atomLevel := zap.NewAtomicLevel()
	if err := atomLevel.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %s", cfg.Level)
	}
	zapCfg.Level = atomLevel

	logger, err := zapCfg.Build(zap.AddCaller())
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	baseLogger = logger
	sugar = logger.Sugar()
	return nil
}

// Use swaps the process logger, mainly for tests wiring an observer core.
func Use(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseLogger = logger
	sugar = logger.Sugar()
}

func Sync() {
	if baseLogger != nil {
		_ = baseLogger.Sync()
	}
}

func SetTraceID(id string) {
	if strings.TrimSpace(id) == "" {
		return
	}
	traceID.Store(id)
}

func NewTraceID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "trace-unknown"
	}
	return hex.EncodeToString(buf)
}

// Session returns a logger scoped to one streaming session.
func Session(sessionID string) *zap.SugaredLogger {
	return withTrace().With("session_id", sessionID)
}

// Component returns a logger tagged with a component name.
func Component(name string) *zap.SugaredLogger {
	return withTrace().With("component", name)
}

func Debugf(format string, args ...interface{}) {
	withTrace().WithOptions(zap.AddCallerSkip(1)).Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	withTrace().WithOptions(zap.AddCallerSkip(1)).Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	withTrace().WithOptions(zap.AddCallerSkip(1)).Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	withTrace().WithOptions(zap.AddCallerSkip(1)).Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	withTrace().WithOptions(zap.AddCallerSkip(1)).Fatalf(format, args...)
}

func withTrace() *zap.SugaredLogger {
	tid, _ := traceID.Load().(string)
	if tid == "" {
		tid = "trace-unknown"
	}
	return sugar.With("trace_id", tid)
}
