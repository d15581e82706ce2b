package cli

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/i474232898/cmip6-download/internal/api/http"
	"github.com/i474232898/cmip6-download/internal/cds"
	"github.com/i474232898/cmip6-download/internal/cmip6"
	"github.com/i474232898/cmip6-download/internal/config"
	"github.com/i474232898/cmip6-download/internal/console"
	"github.com/i474232898/cmip6-download/internal/scheduler"
	"github.com/i474232898/cmip6-download/internal/store"
)

func runBatch(ctx context.Context, stdout, stderr io.Writer) error {
	logger := newLogger(stderr, flags.Verbose)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.CDSKey == "" {
		logger.Warn().Msg("no CDS API key configured; every request will fail (set CDSAPI_KEY or ~/.cdsapirc)")
	}

	opts := cfg.ClientOptions()
	opts.Logger = logger.With().Str("component", "cds").Logger()
	client := cds.NewClient(opts)

	memStore := store.NewMemoryStore(cfg.StoreMaxRuns)

	service := cmip6.NewService(client, cmip6.ServiceConfig{
		Catalog:      cfg.Catalog,
		DataDir:      cfg.DataDir,
		ErrorLog:     cmip6.NewErrorLog(cfg.ErrorLog),
		Reporter:     console.NewReporter(stdout),
		Store:        memStore,
		Logger:       logger,
		InspectFiles: flags.Inspect,
	})

	if cfg.StatusPort != "" {
		stopServer := serveStatus(memStore, cfg.StatusPort, logger)
		defer stopServer()
	}

	if cfg.RunInterval <= 0 {
		_, err := service.Run(ctx)
		return err
	}

	sched := scheduler.New(cfg.RunInterval, service, logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	return nil
}

// serveStatus starts the read-only status API and returns its shutdown func.
func serveStatus(runs httpapi.RunReader, port string, logger zerolog.Logger) func() {
	app := httpapi.NewApp(runs)

	go func() {
		logger.Info().Str("port", port).Msg("status server listening")
		if err := app.Listen(":" + port); err != nil {
			logger.Error().Err(err).Msg("status server stopped")
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("error during status server shutdown")
		}
	}
}
