package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"

	sconfig "github.com/voicetyped/streamasr/config"
	"github.com/voicetyped/streamasr/internal/httputil"
	"github.com/voicetyped/streamasr/internal/runtime"
	"github.com/voicetyped/streamasr/internal/speech/handler"
	"github.com/voicetyped/streamasr/internal/speech/hotwords"
	"github.com/voicetyped/streamasr/internal/speech/recognizer"
	"github.com/voicetyped/streamasr/internal/speech/registry"
	"github.com/voicetyped/streamasr/internal/speech/symbols"
	"github.com/voicetyped/streamasr/pkg/events"

	// Register model backends via init().
	_ "github.com/voicetyped/streamasr/internal/speech/backends/remote"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[sconfig.SpeechConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("streamasr-speech"),
		frame.WithRegisterServerOauth2Client(),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	authenticator := srv.SecurityManager().GetAuthenticator(ctx)
	pub := events.NewPublisher(srv.QueueManager(), cfg.EventsSource, eventRef)

	table, err := symbols.Load(cfg.TokensPath)
	if err != nil {
		log.Fatalf("loading tokens: %v", err)
	}
	m, err := registry.Models.Create(cfg.ModelBackend, cfg.ModelConfig())
	if err != nil {
		log.Fatalf("creating model: %v", err)
	}
	rec, err := recognizer.New(cfg.RecognizerConfig(), m, table)
	if err != nil {
		log.Fatalf("creating recognizer: %v", err)
	}

	if cfg.HotwordsFile != "" {
		watcher := hotwords.NewWatcher(cfg.HotwordsFile, table, rec)
		watcher.Notify = func(ctx context.Context, list *hotwords.List) {
			_ = pub.Emit(ctx, events.HotwordsReloaded, "", &events.HotwordsReloadedData{
				Path:    cfg.HotwordsFile,
				Phrases: len(list.Phrases),
			})
		}
		if err := watcher.Load(ctx); err != nil {
			log.Fatalf("loading hotwords: %v", err)
		}
		if err := pool.Submit(ctx, func() {
			if err := watcher.Run(ctx); err != nil {
				slog.ErrorContext(ctx, "hotwords watcher stopped", slog.String("error", err.Error()))
			}
		}); err != nil {
			log.Fatalf("starting hotwords watcher: %v", err)
		}
	}

	scheduler := runtime.NewScheduler(rec, runtime.NewStreamSet(cfg.StreamTTL()), pub, cfg.SchedulerConfig())
	if err := pool.Submit(ctx, func() {
		if err := scheduler.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "scheduler stopped", slog.String("error", err.Error()))
		}
	}); err != nil {
		log.Fatalf("starting scheduler: %v", err)
	}

	mux := http.NewServeMux()
	handler.NewHandler(scheduler, pub).RegisterRoutes(mux)

	api := httputil.LoggingMiddleware(httputil.AuthenticatedMiddleware(mux, authenticator))
	srv.Init(ctx, frame.WithHTTPHandler(httputil.H2CHandler(api)))

	slog.InfoContext(ctx, "speech service starting",
		slog.String("model_backend", cfg.ModelBackend),
		slog.String("decoding_method", cfg.DecodingMethod),
		slog.Int("max_batch_size", cfg.MaxBatchSize))

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
