// Package logging builds the zap loggers used by bookingd and bookingctl.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLevel overrides Config.Level when set.
const EnvLevel = "BOOKING_LOG_LEVEL"

// Config selects the logger flavour.
type Config struct {
	Level       string `toml:"level"`       // debug, info, warn, error; default info
	Development bool   `toml:"development"` // console encoder, stack traces on warn
	Encoding    string `toml:"encoding"`    // json or console; default from Development
}

// New builds a logger from cfg. An empty Config gives an info-level production
// logger.
func New(cfg Config) (*zap.Logger, error) {
	level := cfg.Level
	if env := os.Getenv(EnvLevel); env != "" {
		level = env
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	if cfg.Encoding != "" {
		zc.Encoding = cfg.Encoding
	}
	return zc.Build()
}

// ParseLevel maps a level name to a zap level; empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return lvl, fmt.Errorf("logging: invalid level %q", s)
	}
	return lvl, nil
}

// Named returns a child logger for a component, or a no-op logger when parent is nil.
func Named(parent *zap.Logger, component string) *zap.Logger {
	if parent == nil {
		return zap.NewNop()
	}
	return parent.Named(component)
}
