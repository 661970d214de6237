// Package logging wraps zap with the field conventions used across the
// engine's components (tenant, account, trace id, component name).
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap.Logger writing JSON to stdout, or a
// development console logger when dev is true.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	return zap.NewProduction()
}

// Fields is a convenience builder for the engine's common structured
// fields, so call sites read as logger.Info("...", logging.Fields{...}.Zap()...).
type Fields struct {
	Tenant    string
	Account   string
	TraceID   string
	Component string
}

// Zap renders the populated fields as zap.Field values, skipping empties.
func (f Fields) Zap() []zap.Field {
	fields := make([]zap.Field, 0, 4)
	if f.Tenant != "" {
		fields = append(fields, zap.String("tenant", f.Tenant))
	}
	if f.Account != "" {
		fields = append(fields, zap.String("account", f.Account))
	}
	if f.TraceID != "" {
		fields = append(fields, zap.String("trace_id", f.TraceID))
	}
	if f.Component != "" {
		fields = append(fields, zap.String("component", f.Component))
	}
	return fields
}

// Noop returns a logger that discards everything — for tests that don't
// care about log output but must satisfy a constructor's dependency.
func Noop() *zap.Logger {
	return zap.NewNop()
}
