// Package cmd holds the startup plumbing shared by DANZ binaries: env then
// flag configuration, telemetry setup and teardown.
package cmd

import (
	"context"
	"errors"
	"flag"
	"strings"

	"github.com/danz-app/danz/internal/platform/config"
	"github.com/danz-app/danz/internal/platform/logging"
	"github.com/danz-app/danz/internal/platform/otel"
	"github.com/danz-app/danz/internal/platform/timeouts"
	"go.uber.org/zap"
)

// ServiceDashboard names the dashboard in logs and traces.
const ServiceDashboard = "dashboard"

// Load fills cfg from the environment, lets bind register flags defaulting
// to those values, then parses args. Flags win over the environment.
func Load[T any](cfg *T, fs *flag.FlagSet, args []string, bind func(fs *flag.FlagSet, cfg *T)) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	if fs == nil {
		return errors.New("flag set is required")
	}
	if err := config.ParseEnv(cfg); err != nil {
		return err
	}
	if bind != nil {
		bind(fs, cfg)
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// Run sets up tracing for service, executes run and flushes spans on the
// way out.
func Run(ctx context.Context, service string, logger *zap.Logger, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return errors.New("service name is required")
	}
	if run == nil {
		return errors.New("run function is required")
	}
	logger = logging.OrNop(logger)
	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("otel shutdown failed", zap.String("service", service), zap.Error(err))
		}
	}()
	return run(ctx)
}
