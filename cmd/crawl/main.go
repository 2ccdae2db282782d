package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"threadloom/api/internal/account"
	"threadloom/api/internal/archive"
	"threadloom/api/internal/config"
	"threadloom/api/internal/ingest"
	"threadloom/api/internal/payloadcache"
	"threadloom/api/internal/reddit"
	"threadloom/api/internal/search"
	"threadloom/api/internal/store"
)

type flags struct {
	subreddits   string
	withComments bool
	concurrency  int
	fromArchive  string
}

func main() {
	cfg := config.Load()
	var f flags
	flag.StringVar(&f.subreddits, "subreddits", strings.Join(cfg.Subreddits, ","), "comma separated subreddits; empty crawls the front page listing")
	flag.BoolVar(&f.withComments, "comments", true, "also import the comment thread of every post")
	flag.IntVar(&f.concurrency, "concurrency", cfg.IngestConcurrency, "subreddits crawled in parallel")
	flag.StringVar(&f.fromArchive, "from-archive", "", "re-import archived threads from this day (YYYY-MM-DD, or \"all\") instead of crawling")
	flag.Parse()

	os.Exit(run(cfg, f))
}

func run(cfg config.Config, f flags) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Printf("database connection failed: %v", err)
		return 1
	}
	defer db.Close()
	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Printf("migrations failed: %v", err)
		return 1
	}
	dataStore := store.NewPostgresStore(db)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgFTS(db))
	defer searchService.Wait()

	var opts []reddit.Option
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err := payloadcache.NewRedisCache(cfg.RedisURL, cfg.PayloadCacheTTL)
		if err != nil {
			log.Printf("redis connection failed: %v", err)
			return 1
		}
		defer cache.Close()
		opts = append(opts, reddit.WithCache(cache))
	}
	var archived *archive.Archiver
	if cfg.Archive.Enabled() {
		bucket, err := archive.NewS3Store(cfg.Archive)
		if err != nil {
			log.Printf("archive store failed: %v", err)
			return 1
		}
		archived = archive.New(bucket)
		opts = append(opts, reddit.WithArchive(archived))
	}
	source := reddit.NewClient(cfg.RedditBaseURL, cfg.RedditUserAgent, cfg.RedditRPS, opts...)

	registry, err := ingest.NewRegistry(account.NewService(dataStore), cfg.DefaultPassword, 0)
	if err != nil {
		log.Printf("user registry failed: %v", err)
		return 1
	}
	pipeline := ingest.NewPipeline(dataStore, source, registry, searchService)

	summary, err := crawl(ctx, pipeline, archived, f)
	if err != nil {
		log.Printf("crawl failed: %v", err)
		return 1
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(summary)
	if len(summary.Failures) > 0 {
		return 1
	}
	return 0
}

func crawl(ctx context.Context, pipeline *ingest.Pipeline, archived *archive.Archiver, f flags) (ingest.Summary, error) {
	if day := strings.TrimSpace(f.fromArchive); day != "" {
		if archived == nil {
			return ingest.Summary{}, errors.New("-from-archive needs the ARCHIVE_S3_* settings")
		}
		if day == "all" {
			day = ""
		}
		summary, err := pipeline.Replay(ctx, archived, day)
		if err != nil {
			return summary, fmt.Errorf("replay archive: %w", err)
		}
		return summary, nil
	}

	var names []string
	for _, name := range strings.Split(f.subreddits, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return pipeline.Run(ctx, ingest.Options{
		Subreddits:   names,
		Concurrency:  f.concurrency,
		WithComments: f.withComments,
	})
}
