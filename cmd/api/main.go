package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/davidjurgens/potato-sub004/internal/app"
	"github.com/davidjurgens/potato-sub004/internal/assign"
	"github.com/davidjurgens/potato-sub004/internal/config"
	"github.com/davidjurgens/potato-sub004/internal/export"
	"github.com/davidjurgens/potato-sub004/internal/history"
	"github.com/davidjurgens/potato-sub004/internal/phase"
	"github.com/davidjurgens/potato-sub004/internal/pool"
	"github.com/davidjurgens/potato-sub004/internal/search"
	"github.com/davidjurgens/potato-sub004/internal/session"
	"github.com/davidjurgens/potato-sub004/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	task, err := config.LoadTask(cfg.TaskFile)
	if err != nil {
		log.Fatalf("task configuration failed: %v", err)
	}

	itemPool := pool.New()
	if err := itemPool.LoadFiles(ctx, dataFilePaths(cfg, task), pool.LoadOptions{
		IDField:       task.IDField,
		TextField:     task.TextField,
		CategoryField: task.CategoryField,
	}); err != nil {
		log.Fatalf("item load failed: %v", err)
	}
	log.Printf("loaded %d items across %d categories", itemPool.Len(), len(itemPool.Categories()))

	engine, err := assign.NewEngine(itemPool, assign.EngineConfig{
		Strategy: task.Assignment.Strategy,
		StrategyConfig: assign.Config{
			QualificationThreshold:    task.Training.QualificationThreshold,
			QualificationMinQuestions: task.Training.QualificationMinQuestions,
			CategoryFallback:          task.Assignment.CategoryFallback,
		},
		MaxAnnotationsPerItem: task.Assignment.MaxAnnotationsPerItem,
		BatchSize:             task.Assignment.BatchSize,
	})
	if err != nil {
		log.Fatalf("assignment engine failed: %v", err)
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		log.Fatalf("failed to create state dir: %v", err)
	}

	model := phase.NewModel(phaseConfig(task))
	manager := session.NewManager(model, session.Settings{
		MaxAssignments:      task.Assignment.MaxAssignmentsPerUser,
		MaxMistakes:         task.Training.MaxMistakes,
		MaxQuestionMistakes: task.Training.MaxQuestionMistakes,
	}, cfg.StateDir)

	opts := app.Options{}

	// Postgres archive is optional; the in-memory core runs without it.
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		opts.Archive = store.NewPostgresStore(db)
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewMemory())
	searchService.IndexItems(itemRecords(itemPool))
	opts.Search = searchService

	if strings.TrimSpace(cfg.HistoryDir) != "" {
		if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
			log.Fatalf("failed to create history dir: %v", err)
		}
		opts.History = history.New(cfg.HistoryDir)
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("mirroring session snapshots to redis")
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.SnapshotTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		opts.Snapshots = redisStore
	}

	service := app.NewService(task, manager, itemPool, engine, cfg.StateDir, opts)

	if opts.Archive != nil {
		archived, err := service.ArchiveCatalog(ctx)
		if err != nil {
			log.Fatalf("archive item catalogue: %v", err)
		}
		log.Printf("archived %d items", archived)
	}

	var uploader *export.Uploader
	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		uploader, err = export.NewUploader(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3UseSSL)
		if err != nil {
			log.Fatalf("object storage connection failed: %v", err)
		}
	}
	exporter := export.NewService(service, uploader)

	httpServer := app.NewHTTPServer(service, exporter, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("annotation API for task %q listening on %s (strategy %s)", task.Name, cfg.Addr, engine.StrategyName())
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

// dataFilePaths resolves the task's item files against the data directory.
func dataFilePaths(cfg config.Config, task *config.Task) []string {
	paths := make([]string, 0, len(task.DataFiles))
	for _, name := range task.DataFiles {
		if filepath.IsAbs(name) {
			paths = append(paths, name)
			continue
		}
		paths = append(paths, filepath.Join(cfg.DataDir, name))
	}
	return paths
}

// phaseConfig converts the validated task phase map to typed keys. LoadTask
// already rejected unknown phase names, so Normalize cannot fall back here.
func phaseConfig(task *config.Task) map[phase.Type][]string {
	configured := make(map[phase.Type][]string, len(task.Phases))
	for name, pages := range task.Phases {
		configured[phase.Normalize(name)] = pages
	}
	return configured
}

func itemRecords(p *pool.Pool) []search.ItemRecord {
	records := make([]search.ItemRecord, 0, p.Len())
	for _, id := range p.Order() {
		item := p.Get(id)
		if item == nil {
			continue
		}
		records = append(records, search.ItemRecord{
			ID:         item.ID,
			Text:       item.Text,
			Categories: item.Categories,
		})
	}
	return records
}
