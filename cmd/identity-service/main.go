// Command identity-service verifies clinic bearer tokens and serves a
// sanitized view of the Keycloak user directory.
//
// Configuration comes from the environment, a local .env file and, when
// CONFIG_FILE is set, a YAML or JSON file:
//
//	SERVICE_CLIENT_SECRET=... TRUST_GATEWAY=false go run ./cmd/identity-service
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/StricklySoft/clinic-hub/internal/identity"
	"github.com/StricklySoft/clinic-hub/internal/serve"
	"github.com/StricklySoft/clinic-hub/pkg/config"
	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	loader := config.New().WithDotEnv(".env")
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		loader = loader.WithFile(path)
	}
	cfg := config.MustLoad[identity.Config](loader)

	logger := serve.NewLogger(os.Stdout, identity.ServiceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := identity.New(ctx, cfg, version, identity.WithLogger(logger))
	if err != nil {
		logger.Error("failed to build service", "code", sserr.GetCode(err), "error", err)
		os.Exit(1)
	}

	logger.Info("identity-service starting", "port", cfg.Port, "version", version)
	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("identity-service stopped")
}
