// Package logging builds the process logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps "debug", "info", "warn" and "error" to a zap level.
// Anything else is info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New creates the logger.
// format: "console" (development encoder) or "json" (production encoder).
// If sink is non-nil every record is also written to it as one JSON line;
// the sink must not block.
func New(level, format string, sink zapcore.WriteSyncer) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevelAt(ParseLevel(level))

	var config zap.Config
	if format == "console" {
		config = zap.NewDevelopmentConfig()
		config.Level = lvl
	} else {
		config = zap.NewProductionConfig()
		config.Level = lvl
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	if sink == nil {
		return logger, nil
	}

	sinkCore := zapcore.NewCore(zapcore.NewJSONEncoder(SinkEncoderConfig()), sink, lvl)
	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, sinkCore)
	})), nil
}

// SinkEncoderConfig is the encoding used for records sent to the debug-log sink.
func SinkEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}
