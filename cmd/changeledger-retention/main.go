package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/changeledger/changeledger/pkg/config"
	"github.com/changeledger/changeledger/pkg/store"
)

var (
	runOnce  = flag.Bool("run-once", false, "Run one cleanup pass and exit")
	cutoffAt = flag.String("cutoff", "", "Cutoff date (YYYY-MM-DD). If empty, the configured retention window is used. Only used with --run-once")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	archiver, err := buildArchiver(cfg.Retention)
	if err != nil {
		log.Fatalf("Failed to build archiver: %v", err)
	}

	st, err := store.NewDBStore(db, store.Config{
		Dialect:  cfg.Database.Dialect(),
		Archiver: archiver,
	})
	if err != nil {
		log.Fatalf("Failed to initialize audit log store: %v", err)
	}

	// Run once mode (for testing or manual cleanup)
	if *runOnce {
		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Retention.RetentionDays)
		if *cutoffAt != "" {
			cutoff, err = time.Parse("2006-01-02", *cutoffAt)
			if err != nil {
				log.Fatalf("Invalid cutoff date: %v", err)
			}
		}

		log.Infof("Running cleanup for logs older than %s", cutoff.Format("2006-01-02"))
		if err := runCleanup(log, st, cfg.Retention, cutoff); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}

		log.Info("Cleanup completed successfully")
		return
	}

	// Scheduled mode
	c := cron.New()

	_, err = c.AddFunc(cfg.Retention.Schedule, func() {
		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Retention.RetentionDays)
		log.Infof("Starting scheduled cleanup for logs older than %s", cutoff.Format("2006-01-02"))

		if err := runCleanup(log, st, cfg.Retention, cutoff); err != nil {
			log.Errorf("Scheduled cleanup failed: %v", err)
		} else {
			log.Info("Scheduled cleanup completed successfully")
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule cleanup: %v", err)
	}

	c.Start()
	log.Info("Changeledger retention worker started")
	log.Infof("Cleanup schedule: %s", cfg.Retention.Schedule)
	log.Infof("Retention window: %d days", cfg.Retention.RetentionDays)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down")
	<-c.Stop().Done()
}

// runCleanup deletes expired logs in batches, archiving first when
// configured
func runCleanup(log *logrus.Logger, st store.Store, cfg config.RetentionConfig, cutoff time.Time) error {
	ctx := context.Background()

	deleted, err := st.DeleteOlderThan(ctx, cutoff, cfg.BatchSize, cfg.Archive)
	if deleted > 0 {
		log.WithField("deleted", deleted).Info("Removed expired audit logs")
	}
	return err
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
