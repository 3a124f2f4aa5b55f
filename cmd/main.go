package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"schoollibrary/internal/backup"
	"schoollibrary/internal/config"
	"schoollibrary/internal/database"
	"schoollibrary/internal/handlers"
	"schoollibrary/internal/metrics"
	"schoollibrary/internal/repositories"
	"schoollibrary/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	db, err := database.Open(cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}

	m := metrics.New()
	opts := []services.Option{
		services.WithLocation(cfg.Location),
		services.WithMetrics(m),
	}
	if cfg.Backup.Enabled() {
		archive, err := backup.NewS3Archive(context.Background(), backup.ArchiveConfig{
			Bucket:    cfg.Backup.Bucket,
			Region:    cfg.Backup.Region,
			Endpoint:  cfg.Backup.Endpoint,
			PathStyle: cfg.Backup.PathStyle,
			Prefix:    cfg.Backup.Prefix,
		})
		if err != nil {
			log.Fatalf("failed to configure backup archive: %v", err)
		}
		opts = append(opts, services.WithArchive(archive))
		log.Printf("Backup archive: s3://%s/%s", cfg.Backup.Bucket, cfg.Backup.Prefix)
	}

	bookRepo := repositories.NewBookRepository(db)
	studentRepo := repositories.NewStudentRepository(db)
	loanRepo := repositories.NewLoanRepository(db)

	libraryService := services.NewLibraryService(db, bookRepo, studentRepo, loanRepo, opts...)
	if err := libraryService.Reload(); err != nil {
		log.Fatalf("failed to load initial snapshot: %v", err)
	}

	router := handlers.NewRouter(libraryService, handlers.RouterConfig{
		CORSOrigins: cfg.CORSOrigins,
		JWTSecret:   []byte(cfg.JWTSecret),
		Metrics:     m,
	})
	if cfg.JWTSecret == "" {
		log.Printf("AUTH_JWT_SECRET not set; API is unauthenticated")
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Printf("Starting server on %s", cfg.ServerAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
