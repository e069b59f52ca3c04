// Command ledgerctl runs ledger maintenance from a shell: closing lookups, recomputes,
// reports, opening balances and reconciliation. It reads the same environment as the
// server and acts as the admin operator.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"kasirinaja/backoffice/internal/app"
	"kasirinaja/backoffice/internal/config"
	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/logger"
	"kasirinaja/backoffice/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: "console", Output: os.Stderr}); err != nil {
		log.Fatal().Err(err).Msg("setup logger")
	}

	open := func(ctx context.Context) (*service.Service, func() error, error) {
		backoffice, err := app.Build(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return backoffice.Service, backoffice.Close, nil
	}

	if err := newRootCmd(open).Execute(); err != nil {
		lg := logger.WithComponent("ledgerctl")
		lg.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// operator is the actor every ledgerctl command runs as.
var operator = domain.Actor{Username: "ledgerctl", Role: "admin"}
