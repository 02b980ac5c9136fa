// Carbonmarket - Transactional ledger and settlement engine for carbon credit trading
package main

import (
	"context"
	"os"

	"github.com/tpnguyen128/carbonmarket/internal/config"
	"github.com/tpnguyen128/carbonmarket/internal/logging"
	"github.com/tpnguyen128/carbonmarket/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting carbonmarket",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"port", cfg.Port,
		"certificate_validity_days", cfg.CertificateValidityDays,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
