package main

import (
	"go.uber.org/zap"

	"github.com/campwise/energy-entitlement-worker/internal/config"
	"github.com/campwise/energy-entitlement-worker/internal/logging"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
