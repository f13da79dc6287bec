// Package utils provides logger construction shared by the nikki commands.
package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "nikki"

// NewLogger returns the daemon logger. When debug is true it uses the development
// config (console, debug level); otherwise JSON at info level with ISO8601 timestamps.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]interface{}{"service": serviceName}
	return cfg.Build()
}

// NewCommandLogger returns a console logger on stderr for one-shot commands.
// Only warnings and errors are shown unless debug is set.
func NewCommandLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	return cfg.Build()
}
