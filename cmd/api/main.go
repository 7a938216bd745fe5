package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"huddle/api/internal/app"
	"huddle/api/internal/authpw"
	"huddle/api/internal/blob"
	"huddle/api/internal/config"
	"huddle/api/internal/session"
	"huddle/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	var sessions interface {
		SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
		LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
		RevokeRefreshSession(ctx context.Context, tokenHash string) error
	} = dataStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		sessions = redisStore
		log.Printf("Using Redis for refresh token storage")
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
	}

	var blobs *blob.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobs, err = blob.New(ctx, blob.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			UploadTTL: cfg.UploadURLTTL,
		})
		if err != nil {
			log.Fatalf("object storage init failed: %v", err)
		}
		log.Printf("Object storage enabled (bucket %s)", cfg.MinioBucket)
	} else {
		log.Printf("Object storage not configured; upload endpoints disabled")
	}

	passwords := authpw.NewService(dataStore)

	// A typed nil *blob.Store must not reach the service; it checks the
	// interface against nil to decide whether uploads are available.
	var service *app.Service
	if blobs != nil {
		service = app.New(cfg, dataStore, sessions, blobs, passwords)
	} else {
		service = app.New(cfg, dataStore, sessions, nil, passwords)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Huddle API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
