// Package logging constructs the single structured logger every component
// constructor takes as an explicit dependency (§10.1): no package-level
// loggers, no ambient singletons. Each subsystem gets its own named
// sub-logger via (*zap.SugaredLogger).Named, mirroring the way the
// teacher's internals/logger tags log lines with their package of origin.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the root logger's verbosity and encoding.
type Config struct {
	Level string // debug, info, warn, error
	JSON  bool   // console encoding when false, matching a developer's terminal
}

// New builds the root logger. Callers derive per-component loggers from it
// with Named, e.g. root.Named("coordinator").
func New(cfg Config) (*zap.SugaredLogger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(orDefault(cfg.Level, "info"))); err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if !cfg.JSON {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
