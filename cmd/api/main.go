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

	"threadloom/api/internal/account"
	"threadloom/api/internal/app"
	"threadloom/api/internal/archive"
	"threadloom/api/internal/config"
	"threadloom/api/internal/ingest"
	"threadloom/api/internal/payloadcache"
	"threadloom/api/internal/reddit"
	"threadloom/api/internal/search"
	"threadloom/api/internal/store"
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
	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		go searchService.ReindexAllFromPG(context.Background(), pgfts)
	}

	var opts []reddit.Option
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis payload cache (ttl %s)", cfg.PayloadCacheTTL)
		cache, err := payloadcache.NewRedisCache(cfg.RedisURL, cfg.PayloadCacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer cache.Close()
		opts = append(opts, reddit.WithCache(cache))
	}
	if cfg.Archive.Enabled() {
		log.Printf("Archiving payloads to bucket %s", cfg.Archive.Bucket)
		bucket, err := archive.NewS3Store(cfg.Archive)
		if err != nil {
			log.Fatalf("archive store failed: %v", err)
		}
		opts = append(opts, reddit.WithArchive(archive.New(bucket)))
	}
	source := reddit.NewClient(cfg.RedditBaseURL, cfg.RedditUserAgent, cfg.RedditRPS, opts...)

	accounts := account.NewService(dataStore)
	registry, err := ingest.NewRegistry(accounts, cfg.DefaultPassword, 0)
	if err != nil {
		log.Fatalf("user registry failed: %v", err)
	}
	pipeline := ingest.NewPipeline(dataStore, source, registry, searchService)

	service := app.New(cfg, dataStore, accounts, pipeline, searchService)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Threadloom API listening on %s", cfg.Addr)
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
