package logging

import (
	"jobboard/internal/config"

	"go.uber.org/zap"
)

// New builds the process logger. Development mode switches to the console
// encoder with stack traces on warnings.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	return zc.Build()
}
