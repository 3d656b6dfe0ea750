// Package logging builds the zap loggers used across the registrar and node
// binaries. Production builds use zap's JSON encoder; a development mode
// switches to the console encoder for local runs.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger tagged with the given component name
// ("registrar" or "node-<uid>"). dev selects a human-readable console
// encoder instead of JSON.
func New(component string, dev bool) *zap.SugaredLogger {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		// zap.Config.Build only fails on bad encoder/level config, which
		// the two branches above never produce.
		panic(err)
	}
	return logger.Named(component).Sugar()
}

// Nop returns a logger that discards everything, for use in tests that
// don't want to assert on log output.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
