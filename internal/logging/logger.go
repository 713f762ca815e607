package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StandardLogger wraps a zap logger with the structured context helpers used
// across the engine. Each With* call returns a new child logger.
type StandardLogger struct {
	logger *zap.Logger
}

// NewStandardLogger builds a JSON logger for production and a console logger
// for everything else.
func NewStandardLogger(logLevel, environment string) *StandardLogger {
	level := zap.NewAtomicLevelAt(getZapLevel(logLevel))

	var encoder zapcore.Encoder
	if strings.EqualFold(environment, "production") {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "time"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("environment", environment))

	return &StandardLogger{logger: logger}
}

// NewFromZap wraps an existing zap logger.
func NewFromZap(logger *zap.Logger) *StandardLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StandardLogger{logger: logger}
}

func getZapLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger exposes the underlying zap logger for components that take *zap.Logger.
func (l *StandardLogger) Logger() *zap.Logger {
	return l.logger
}

func (l *StandardLogger) with(fields ...zap.Field) *StandardLogger {
	return &StandardLogger{logger: l.logger.With(fields...)}
}

func (l *StandardLogger) WithService(service string) *StandardLogger {
	return l.with(zap.String("service", service))
}

func (l *StandardLogger) WithComponent(component string) *StandardLogger {
	return l.with(zap.String("component", component))
}

func (l *StandardLogger) WithOperation(operation string) *StandardLogger {
	return l.with(zap.String("operation", operation))
}

func (l *StandardLogger) WithSymbol(symbol string) *StandardLogger {
	return l.with(zap.String("symbol", symbol))
}

func (l *StandardLogger) WithStrategy(strategy string) *StandardLogger {
	return l.with(zap.String("strategy", strategy))
}

func (l *StandardLogger) WithCycle(cycleID string) *StandardLogger {
	return l.with(zap.String("cycle_id", cycleID))
}

func (l *StandardLogger) WithError(err error) *StandardLogger {
	return l.with(zap.Error(err))
}

func (l *StandardLogger) WithFields(fields map[string]interface{}) *StandardLogger {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return l.with(zapFields...)
}

func (l *StandardLogger) Debug(msg string, fields ...zap.Field) { l.logger.Debug(msg, fields...) }
func (l *StandardLogger) Info(msg string, fields ...zap.Field)  { l.logger.Info(msg, fields...) }
func (l *StandardLogger) Warn(msg string, fields ...zap.Field)  { l.logger.Warn(msg, fields...) }
func (l *StandardLogger) Error(msg string, fields ...zap.Field) { l.logger.Error(msg, fields...) }

// LogStartup records a service start event.
func (l *StandardLogger) LogStartup(service, version string, port int) {
	l.logger.Info("Service starting",
		zap.String("event", "startup"),
		zap.String("service", service),
		zap.String("version", version),
		zap.Int("port", port),
	)
}

// LogShutdown records a service stop event.
func (l *StandardLogger) LogShutdown(service, reason string) {
	l.logger.Info("Service shutting down",
		zap.String("event", "shutdown"),
		zap.String("service", service),
		zap.String("reason", reason),
	)
}

func (l *StandardLogger) Sync() error {
	return l.logger.Sync()
}
