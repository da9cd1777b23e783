package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apicon/sneakerdb/internal/api"
	"github.com/apicon/sneakerdb/internal/catalog"
	"github.com/apicon/sneakerdb/internal/config"
	"github.com/apicon/sneakerdb/internal/loader"
	"github.com/apicon/sneakerdb/internal/logging"
	"github.com/apicon/sneakerdb/internal/metrics"
	"github.com/apicon/sneakerdb/internal/store"
)

// newBuildCmd creates the 'build' subcommand: one batch run that loads the
// whole catalog and publishes the store artifact.
func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Fetch the full catalog and publish the sneaker database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context())
		},
	}
}

func runBuild(parent context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	if cfg.Metrics.ListenAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics listener started", zap.String("addr", cfg.Metrics.ListenAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client, err := api.New(api.Config{
		Host:           cfg.API.Host,
		Key:            cfg.API.Key,
		CacheDir:       cfg.Cache.Dir,
		Timeout:        cfg.API.Timeout(),
		RateLimitRPS:   cfg.API.RateLimitRPS,
		RateLimitBurst: cfg.API.RateLimitBurst,
	}, logger.Named("api"))
	if err != nil {
		return fmt.Errorf("init api client: %w", err)
	}

	// The vocabularies are required prerequisites: a failure here aborts the
	// run, unlike per-page failures later.
	brands, err := client.Brands(ctx)
	if err != nil {
		return fmt.Errorf("load brand vocabulary: %w", err)
	}
	genders, err := client.Genders(ctx)
	if err != nil {
		return fmt.Errorf("load gender vocabulary: %w", err)
	}
	logger.Info("reference vocabularies loaded",
		zap.Int("brands", len(brands)),
		zap.Int("genders", len(genders)),
	)

	builder, err := store.NewBuilder(logger.Named("store"))
	if err != nil {
		return fmt.Errorf("open scratch store: %w", err)
	}
	defer func() {
		_ = builder.Close()
	}()

	ddl, err := loadSchema(cfg.Store.SchemaPath)
	if err != nil {
		return err
	}
	if err := builder.CreateSchema(ctx, ddl); err != nil {
		return err
	}
	if err := builder.InsertBrands(ctx, brands); err != nil {
		return err
	}
	if err := builder.InsertGenders(ctx, genders); err != nil {
		return err
	}

	normalizer := catalog.NewNormalizer(brands, genders, logger.Named("normalizer"))
	driver := loader.New(client, builder, normalizer, loader.Config{
		PageSize:     cfg.Loader.PageSize,
		Concurrency:  cfg.Loader.Concurrency,
		PageRetries:  cfg.Loader.PageRetries,
		RetryBackoff: cfg.Loader.RetryBackoff(),
	}, logger.Named("loader"))

	summary, err := driver.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	if err := builder.BuildSearchIndex(ctx); err != nil {
		return err
	}
	if err := builder.Publish(ctx, cfg.Store.Output); err != nil {
		return err
	}

	logger.Info("build complete",
		zap.String("output", cfg.Store.Output),
		zap.Int("records", summary.Records),
		zap.Int("pages_loaded", summary.PagesLoaded),
		zap.Int("pages_failed", summary.PagesFailed),
	)
	if summary.PagesFailed > 0 {
		logger.Error("artifact is incomplete", zap.Int("pages_failed", summary.PagesFailed))
	}
	return nil
}

// loadSchema reads an externally supplied DDL script; an empty path selects
// the embedded default schema.
func loadSchema(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	ddl, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read schema script: %w", err)
	}
	return string(ddl), nil
}
