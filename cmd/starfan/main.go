// Command starfan searches GitHub repositories with a fixed filter and stars
// every result, concurrently.
//
// Configuration is read from config.toml ($STARFAN_CONFIG, the working
// directory or $HOME/.config/starfan) and STARFAN_* environment variables.
// Diagnostics and logs go to stderr; the run report goes to stdout.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Sternrassler/starfan/pkg/cache"
	"github.com/Sternrassler/starfan/pkg/client"
	"github.com/Sternrassler/starfan/pkg/config"
	"github.com/Sternrassler/starfan/pkg/logging"
	"github.com/Sternrassler/starfan/pkg/metrics"
	"github.com/Sternrassler/starfan/pkg/pipeline"
	"github.com/Sternrassler/starfan/pkg/progress"
	"github.com/redis/go-redis/v9"
)

const (
	exitOK    = 0
	exitSetup = 1
)

func main() {
	os.Exit(run(os.Stdout, os.Stderr))
}

// run executes one batch and returns the process exit code. Only setup
// failures are non-zero; per-item failures are reported as diagnostics.
func run(stdout, stderr io.Writer) int {
	logging.Setup(logging.Config{Level: logging.LevelInfo, Output: stderr})
	logger := logging.NewLogger("main")

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return exitSetup
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: stderr,
	})
	logger = logging.NewLogger("main")

	ctx := context.Background()
	clientCfg := cfg.ClientConfig()

	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// Redis only adds caching and quota tracking; the run works without it.
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable - continuing without cache and rate limit tracking")
		} else {
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
			clientCfg.Redis = redisClient
		}
	}

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Start(cfg.Metrics.Addr, logging.NewLogger("metrics"))
		if err != nil {
			logger.Error().Err(err).Msg("Failed to start metrics server")
			return exitSetup
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ghClient, err := client.New(clientCfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create GitHub client")
		return exitSetup
	}
	defer ghClient.Close()

	if cfg.Redis.PurgeOnStart && ghClient.GetCache() != nil {
		removed, err := ghClient.GetCache().Purge(ctx, cache.AccountFingerprint(cfg.Token))
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to purge search cache")
		} else {
			logger.Info().Int("removed", removed).Msg("Purged search cache")
		}
	}

	opts := []pipeline.Option{}
	if cfg.Progress.Enabled {
		opts = append(opts, pipeline.WithProgress(progress.RendererConfig{Output: stderr}))
	}

	runner, err := pipeline.NewRunner(ghClient, pipeline.Config{
		PageCount:   cfg.Search.PageCount,
		PageSize:    cfg.Search.PageSize,
		Filter:      cfg.Search.Filter,
		Language:    cfg.Search.Language,
		PageWorkers: cfg.Concurrency.PageWorkers,
		PageTimeout: cfg.Concurrency.PageTimeout,
		MaxInFlight: cfg.Concurrency.MaxInFlight,
		MarkTimeout: cfg.Concurrency.MarkTimeout,
	}, opts...)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create runner")
		return exitSetup
	}

	fmt.Fprintln(stderr, "Scraping and starring repositories...")
	report, err := runner.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Run failed")
		return exitSetup
	}

	if _, err := report.WriteTo(stdout); err != nil {
		logger.Warn().Err(err).Msg("Failed to write report")
	}
	return exitOK
}
