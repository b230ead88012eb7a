package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rapidassist/docpipe/internal/common"
	"github.com/rapidassist/docpipe/internal/events"
	"github.com/rapidassist/docpipe/internal/export"
	"github.com/rapidassist/docpipe/internal/extract"
	"github.com/rapidassist/docpipe/internal/folder"
	"github.com/rapidassist/docpipe/internal/jobs"
	"github.com/rapidassist/docpipe/internal/llm"
	"github.com/rapidassist/docpipe/internal/llm/gemini"
	"github.com/rapidassist/docpipe/internal/ocr"
	"github.com/rapidassist/docpipe/internal/pipeline"
	"github.com/rapidassist/docpipe/internal/prompt"
	"github.com/rapidassist/docpipe/internal/template"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("config.invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("jobs.store.open_failed", "backend", cfg.Jobs.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("jobs.store.ready", "backend", cfg.Jobs.Backend)

	generator := gemini.NewClient(gemini.Config{
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		BaseURL: cfg.AI.BaseURL,
		Timeout: cfg.AI.Timeout,
	}, logger)

	extractor := extract.NewExtractor(extract.Config{
		MaxFileSizeBytes: cfg.Pipeline.MaxFileSizeBytes,
	}, logger)
	ocrEngine := ocr.NewEngine(ocr.Config{
		Tesseract: cfg.Pipeline.TesseractBin,
		Lang:      cfg.Pipeline.TesseractLang,
	}, logger)
	aggregator := folder.NewAggregator(extractor, ocrEngine, logger)
	dispatcher := llm.NewDispatcher(generator, prompt.NewComposer(cfg.Pipeline.MaxPromptLength), logger)

	templates := template.NewService(cfg.Templates.Dir, cfg.Templates.CacheTTL, logger)
	stopJanitor := templates.StartCacheJanitor()
	defer stopJanitor()

	writer := export.NewWriter(logger)
	writer.StartCleanupLoop(ctx, cfg.Output.Dir, cfg.Output.CleanupMaxAge, cfg.Output.CleanupEvery)

	processor := pipeline.NewProcessor(aggregator, dispatcher, templates, writer, pipeline.Config{
		MaxCombinedLength: cfg.Pipeline.MaxCombinedLength,
		OutputDir:         cfg.Output.Dir,
		CallTimeout:       cfg.AI.Timeout,
		MaxConcurrent:     cfg.AI.MaxConcurrent,
	}, logger)

	queue := jobs.NewQueue(store, jobs.Options{
		Attempts:        cfg.Jobs.Attempts,
		BackoffBase:     cfg.Jobs.BackoffBase,
		PollInterval:    cfg.Jobs.PollInterval,
		RetainCompleted: cfg.Output.CleanupMaxAge,
	}, logger)
	processor.Register(queue)
	queue.Start(ctx, 1)
	defer queue.Stop()

	hub := events.NewHub(logger)
	queueEvents, unsubscribe := queue.Subscribe()
	defer unsubscribe()
	go hub.Run(ctx, queueEvents)

	mux := http.NewServeMux()
	mux.Handle("GET /ws", hub)
	mux.HandleFunc("POST /jobs/folder", func(w http.ResponseWriter, r *http.Request) {
		var payload pipeline.FolderPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		job, err := queue.EnqueueFolder(r.Context(), payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"jobId": job.ID.String()})
	})
	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		view := queue.Status(r.Context(), r.PathValue("id"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(view)
	})

	srv := &http.Server{
		Addr:              cfg.Jobs.WSAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http.serving", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http.serve_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *common.Config) (jobs.Store, error) {
	switch cfg.Jobs.Backend {
	case "sqlite":
		return jobs.NewSQLiteStore(cfg.Jobs.SQLitePath)
	case "postgres":
		return jobs.NewPostgresStore(ctx, cfg.Jobs.PostgresDSN)
	case "redis":
		return jobs.NewRedisStore(ctx, cfg.Jobs.RedisAddr, os.Getenv("JOBS_REDIS_PASSWORD"), 0)
	default:
		return jobs.NewMemoryStore(), nil
	}
}
