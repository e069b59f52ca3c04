package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"kasirinaja/backoffice/internal/app"
	"kasirinaja/backoffice/internal/config"
	"kasirinaja/backoffice/internal/httpapi"
	"kasirinaja/backoffice/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		log.Fatal().Err(err).Msg("setup logger")
	}
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backoffice, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build application")
	}

	auth, err := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, operators(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("configure operators")
	}
	api := httpapi.New(backoffice.Service, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        logger.WithComponent("http"),
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("timezone", cfg.Timezone).Msg("back-office ledger listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	if err := backoffice.Close(); err != nil {
		log.Error().Err(err).Msg("close error")
	}

	log.Info().Msg("server stopped")
}

func operators(cfg config.Config) []httpapi.Operator {
	return []httpapi.Operator{
		{Username: "admin", Password: cfg.AdminPassword, Role: httpapi.RoleAdmin},
		{Username: "cashier", Password: cfg.CashierPassword, Role: httpapi.RoleCashier},
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD must be set")
	}
	if err := validatePasswordStrength(cfg.AdminPassword); err != nil {
		return fmt.Errorf("ADMIN_PASSWORD is too weak: %w", err)
	}
	if cfg.CashierPassword != "" {
		if err := validatePasswordStrength(cfg.CashierPassword); err != nil {
			return fmt.Errorf("CASHIER_PASSWORD is too weak: %w", err)
		}
	}
	return nil
}

// validatePasswordStrength accepts bcrypt hashes as-is. Plain passwords must be at least
// eight characters, not a single repeated character and not from a known-weak list.
func validatePasswordStrength(password string) error {
	if strings.HasPrefix(password, "$2") {
		return nil
	}
	if len(password) < 8 {
		return fmt.Errorf("must be at least 8 characters")
	}

	known := map[string]bool{
		"password": true, "12345678": true, "123456789": true, "qwertyui": true,
		"admin123": true, "cashier123": true, "kasir123": true, "password1": true,
	}
	if known[strings.ToLower(password)] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character password not allowed")
	}
	return nil
}
