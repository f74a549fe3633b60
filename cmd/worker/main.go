package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kmorozov/docprocessor/internal/bootstrap"
	"github.com/kmorozov/docprocessor/internal/config"
	"github.com/kmorozov/docprocessor/internal/core/domain"
	"github.com/kmorozov/docprocessor/internal/observability/logging"
	"github.com/kmorozov/docprocessor/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", workerMetrics.Handler())
		log.Printf("worker metrics on :%s", cfg.WorkerMetricsPort)
		if err := http.ListenAndServe(":"+cfg.WorkerMetricsPort, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("worker metrics server error: %v", err)
		}
	}()

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, event domain.IngestEvent) error {
		extractCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		if !event.EnqueuedAt.IsZero() {
			workerMetrics.ObserveQueueLag("worker", time.Since(event.EnqueuedAt))
		}

		workerMetrics.StartDocument()
		start := time.Now()
		extractErr := app.ExtractUC.ExtractByID(extractCtx, event.DocumentID)
		workerMetrics.FinishDocument("worker", time.Since(start), extractErr)

		if extractErr == nil {
			if doc, err := app.Repo.GetByID(extractCtx, event.DocumentID); err == nil {
				workerMetrics.ObservePages("worker", doc.PageCount*doc.AccountCount)
			}
		}
		return extractErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
