package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/changeledger/changeledger/pkg/analytics"
	"github.com/changeledger/changeledger/pkg/api"
	"github.com/changeledger/changeledger/pkg/config"
	"github.com/changeledger/changeledger/pkg/observability"
	"github.com/changeledger/changeledger/pkg/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	archiver, err := buildArchiver(cfg.Retention)
	if err != nil {
		log.Fatalf("Failed to build archiver: %v", err)
	}

	st, err := store.NewDBStore(db, store.Config{
		Dialect:  cfg.Database.Dialect(),
		Archiver: archiver,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		log.Fatalf("Failed to initialize audit log store: %v", err)
	}

	cache, redisClient, err := buildCache(cfg.Cache)
	if err != nil {
		log.Fatalf("Failed to build analytics cache: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	svc := analytics.NewService(st, analytics.ServiceConfig{
		Cache:   cache,
		Logger:  logger,
		Metrics: metrics,
	})

	health := observability.NewHealthChecker(db, redisClient)
	server := api.NewServer(st, svc, api.ServerConfig{
		Logger:  logger,
		Metrics: metrics,
		Health:  health,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics serve on their own port for k8s probes
	opsRouter := mux.NewRouter()
	opsRouter.HandleFunc("/healthz", health.Liveness).Methods("GET")
	opsRouter.HandleFunc("/readyz", health.Readiness).Methods("GET")
	opsRouter.Handle("/metrics", observability.Handler(registry)).Methods("GET")
	opsServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: opsRouter,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("starting API server")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", opsServer.Addr).Info("starting health/metrics server")
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return opsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	logger.Info("shutdown complete")
}

// openDatabase opens and pings the audit log database
func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "sqlite" {
		driver = "sqlite3"
	}

	db, err := sql.Open(driver, cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// buildArchiver builds the retention archiver, or nil when archiving is
// disabled
func buildArchiver(cfg config.RetentionConfig) (store.Archiver, error) {
	if !cfg.Archive {
		return nil, nil
	}

	switch cfg.ArchiveBackend {
	case "s3":
		return store.NewS3Archiver(store.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
			KeyPrefix:    cfg.S3KeyPrefix,
		})
	case "file":
		return store.NewFileArchiver(cfg.ArchiveDir)
	}
	return nil, fmt.Errorf("unknown archive backend: %s", cfg.ArchiveBackend)
}

// buildCache builds the analytics cache; the redis client is returned so
// the health checker can probe it
func buildCache(cfg config.CacheConfig) (analytics.Cache, *redis.Client, error) {
	switch cfg.Type {
	case "off":
		return nil, nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return analytics.NewRedisCache(client, cfg.TTL), client, nil
	case "memory":
		return analytics.NewMemoryCache(cfg.MemorySize, cfg.TTL), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
}
