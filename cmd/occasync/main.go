// Command occasync runs the marketplace API server.
//
// Configuration is environment-driven; see occasync.LoadConfig for the
// variables read. The process starts against Postgres when DATABASE_URL
// is set and reachable, and falls back to the in-memory snapshot store
// otherwise.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/occasync/occasync"
	"github.com/occasync/occasync/internal/httpapi"
)

func main() {
	logger, err := occasync.NewProductionZapLogger()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *occasync.ZapLogger) error {
	cfg := occasync.LoadConfig()

	// Fail at startup, not on the first login
	signer, err := occasync.NewTokenSigner(cfg.JWTSecret, nil)
	if err != nil {
		return err
	}

	metrics := occasync.NewPrometheusMetrics(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []occasync.Option{
		occasync.WithLogger(logger),
		occasync.WithMetrics(metrics),
	}
	if backend, key, ok := snapshotBackend(ctx, cfg, logger); ok {
		opts = append(opts, occasync.WithSnapshotBackend(backend, key))
	}

	db, err := occasync.Connect(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer db.Close(context.Background())

	var limiter occasync.Limiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = occasync.NewRedisRateLimiter(client, logger, metrics)
		logger.Info("using redis rate limiter", "addr", cfg.RedisAddr)
	} else {
		limiter = occasync.NewRateLimiter(metrics)
	}

	api := httpapi.NewServer(db, signer, limiter, httpapi.WithLogger(logger))

	mux := http.NewServeMux()
	mux.Handle("/api/", api.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "mode", string(db.Mode()))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// snapshotBackend picks a remote snapshot target when one is configured.
// Construction failures fall through to the filesystem default.
func snapshotBackend(ctx context.Context, cfg occasync.Config, logger occasync.Logger) (occasync.SnapshotBackend, string, bool) {
	switch {
	case cfg.AWSBucket != "":
		backend, err := occasync.NewS3SnapshotBackendFromEnv(ctx, occasync.SnapshotConfig{
			Type:   "s3",
			Bucket: cfg.AWSBucket,
			Region: os.Getenv("AWS_REGION"),
		}, os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"))
		if err != nil {
			logger.Warn("s3 snapshot backend unavailable", "error", err)
			return nil, "", false
		}
		logger.Info("using s3 snapshot backend", "bucket", cfg.AWSBucket)
		return backend, "snapshot.json", true

	case cfg.GCSBucket != "":
		backend, err := occasync.NewGCSSnapshotBackend(ctx, occasync.SnapshotConfig{
			Type:            "gcs",
			Bucket:          cfg.GCSBucket,
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		})
		if err != nil {
			logger.Warn("gcs snapshot backend unavailable", "error", err)
			return nil, "", false
		}
		logger.Info("using gcs snapshot backend", "bucket", cfg.GCSBucket)
		return backend, "snapshot.json", true
	}

	return nil, "", false
}
