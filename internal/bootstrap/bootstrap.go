package bootstrap

import (
	"context"
	"fmt"

	"github.com/kmorozov/docprocessor/internal/config"
	"github.com/kmorozov/docprocessor/internal/core/ports"
	"github.com/kmorozov/docprocessor/internal/core/usecase"
	"github.com/kmorozov/docprocessor/internal/infrastructure/blob/localfs"
	"github.com/kmorozov/docprocessor/internal/infrastructure/extractor/pdffields"
	"github.com/kmorozov/docprocessor/internal/infrastructure/queue/nats"
	"github.com/kmorozov/docprocessor/internal/infrastructure/repository/postgres"
	"github.com/kmorozov/docprocessor/internal/infrastructure/resilience"
	uploadfs "github.com/kmorozov/docprocessor/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	IngestUC  ports.DocumentIngestor
	ExtractUC ports.DocumentExtractor
	PageData  *usecase.PageDataStore
	ExportUC  *usecase.ExportDocumentUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	uploads, err := uploadfs.New(cfg.UploadsPath)
	if err != nil {
		return nil, fmt.Errorf("init upload storage: %w", err)
	}

	blobs, err := localfs.NewWithOptions(cfg.PageDataPath, localfs.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.BlobConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("init page-data blob store: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.QueueConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	template, err := loadTemplate(cfg.ExtractionTemplatePath)
	if err != nil {
		return nil, err
	}
	extractor := pdffields.NewExtractor(uploads, template)

	pageOpts := []usecase.PageDataOption{}
	if cfg.PageLockingEnabled {
		pageOpts = append(pageOpts, usecase.WithPerKeyLocking())
	}
	pageData := usecase.NewPageDataStore(blobs, pageOpts...)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, uploads, queue)
	extractUC := usecase.NewExtractDocumentUseCase(repo, extractor, pageData)
	exportUC := usecase.NewExportDocumentUseCase(repo, pageData)

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,

		IngestUC:  ingestUC,
		ExtractUC: extractUC,
		PageData:  pageData,
		ExportUC:  exportUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func loadTemplate(path string) (*pdffields.Template, error) {
	if path == "" {
		return pdffields.DefaultTemplate(), nil
	}
	template, err := pdffields.LoadTemplate(path)
	if err != nil {
		return nil, fmt.Errorf("load extraction template: %w", err)
	}
	return template, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
