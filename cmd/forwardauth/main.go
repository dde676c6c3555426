/*
Copyright (c) Amazon Web Services
Distributed under the terms of the MIT license
*/

// Package main provides the entry point for the forwardauth service that
// answers forward-auth validation requests from a reverse proxy.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/fortrancon/forwardauth/internal/forwardauth"
	"github.com/fortrancon/forwardauth/internal/redirectpolicy"
	"github.com/fortrancon/forwardauth/internal/revocation"
	"github.com/fortrancon/forwardauth/internal/stringutil"
	"github.com/fortrancon/forwardauth/internal/telemetry"
)

const (
	serviceName = "forwardauth"

	exitFailure = 1
	exitDenied  = 2

	startupPingTimeout    = 5 * time.Second
	tracerShutdownTimeout = 5 * time.Second
)

// version is set at build time
var version = "dev"

// errRedirectDenied makes check-redirect exit with exitDenied
var errRedirectDenied = errors.New("redirect denied")

func main() {
	err := newRootCmd().Execute()
	if err != nil && !errors.Is(err, errRedirectDenied) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errRedirectDenied):
		return exitDenied
	default:
		return exitFailure
	}
}

// newRootCmd creates the root command; without a subcommand it serves
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Forward-auth validation gateway",
		Long: `Answers forward-auth subrequests from a reverse proxy.

Authenticated callers get 200 with their identity in a response header.
Everyone else is redirected to the login page with a next parameter that
points back at the page they asked for.

Configuration is read from environment variables (BASE_URL, JWT_SIGNING_KEY,
CSRF_AUTH_KEY, ...) and an optional CONFIG_FILE.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	rootCmd.AddCommand(newServeCmd(), newCheckRedirectCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func newCheckRedirectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-redirect URL",
		Short: "Print ALLOW or DENY for a post-login redirect target",
		Long: `Evaluates the redirect policy for URL and prints ALLOW or DENY.
Exits with status 2 when the target is denied.`,
		Args: cobra.ExactArgs(1),
		RunE: runCheckRedirect,
	}

	cmd.Flags().String("base-url", os.Getenv(forwardauth.EnvBaseURL), "Own origin of the gateway")
	cmd.Flags().String("trusted-domains", os.Getenv(forwardauth.EnvTrustedDomains), "Comma-separated trusted domains (exact or .suffix)")
	return cmd
}

func runCheckRedirect(cmd *cobra.Command, args []string) error {
	baseURL, err := cmd.Flags().GetString("base-url")
	if err != nil {
		return err
	}
	rawDomains, err := cmd.Flags().GetString("trusted-domains")
	if err != nil {
		return err
	}

	trusted, err := redirectpolicy.NewTrustedDomainSet(stringutil.SplitAndTrim(rawDomains, ",")...)
	if err != nil {
		return err
	}

	if !redirectpolicy.IsAllowed(args[0], baseURL, trusted) {
		fmt.Fprintln(cmd.OutOrStdout(), "DENY")
		return errRedirectDenied
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ALLOW")
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Load configuration
	cfg, err := forwardauth.NewConfig()
	if err != nil {
		newLogger(os.Stdout, slog.LevelInfo).Error("Failed to load configuration", "error", err)
		return err
	}

	// Initialize logger
	logger := newLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing
	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Endpoint:       cfg.OtelEndpoint,
		Insecure:       cfg.OtelInsecure,
		Headers:        cfg.OtelHeaders,
	})
	if err != nil {
		logger.Error("Failed to set up tracing", "error", err)
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Failed to flush traces", "error", err)
		}
	}()

	// Create JWT handler
	jwtHandler, err := forwardauth.NewJWTHandler(ctx, cfg, logr.FromSlogHandler(logger.Handler()))
	if err != nil {
		logger.Error("Failed to create JWT handler", "error", err)
		return err
	}

	// Create cookie manager
	cookieManager, err := forwardauth.NewCookieManager(cfg)
	if err != nil {
		logger.Error("Failed to create cookie manager", "error", err)
		return err
	}

	opts := []forwardauth.ServerOption{
		forwardauth.WithMetrics(telemetry.NewMetrics()),
	}

	if cfg.OIDCIssuerURL != "" {
		verifier, err := forwardauth.NewOIDCVerifier(cfg, logger)
		if err != nil {
			logger.Error("Failed to create OIDC verifier", "error", err)
			return err
		}
		if err := verifier.Start(ctx); err != nil {
			logger.Error("Failed to start OIDC verifier", "error", err)
			return err
		}
		opts = append(opts, forwardauth.WithIdentitySource(forwardauth.NewOIDCIdentitySource(verifier)))
	}

	if cfg.RedisAddr != "" {
		store := revocation.NewRedisStore(revocation.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RevocationKeyPrefix,
		})
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close revocation store", "error", err)
			}
		}()

		pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
		err := store.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Error("Revocation store unreachable", "error", err, "addr", cfg.RedisAddr)
			return err
		}
		opts = append(opts, forwardauth.WithRevocationStore(store))
	}

	// Create and start server
	server, err := forwardauth.NewServer(cfg, jwtHandler, cookieManager, logger, opts...)
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		return err
	}
	if err := server.Start(ctx); err != nil {
		logger.Error("Server failed", "error", err)
		return err
	}
	return nil
}
