package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/pdfreportflow/internal/extract"
	"github.com/Lllllllleong/pdfreportflow/internal/gcp"
	"github.com/Lllllllleong/pdfreportflow/internal/ledger"
	"github.com/Lllllllleong/pdfreportflow/internal/ocr"
	"github.com/Lllllllleong/pdfreportflow/internal/reconcile"
	"github.com/Lllllllleong/pdfreportflow/internal/report"
	"github.com/Lllllllleong/pdfreportflow/internal/workflow"
)

// Config holds all configuration for the processing service.
type Config struct {
	ProjectID           string
	UploadBucket        string
	VertexAIRegion      string
	ReportOutputDir     string
	FirestoreCollection string
	OCRLanguages        []string
	OCRWorkers          int
	Port                string
}

// loadConfig loads and validates all necessary environment variables.
func loadConfig() (*Config, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	uploadBucket := gcp.GetEnv("UPLOAD_BUCKET", "")
	if uploadBucket == "" {
		return nil, fmt.Errorf("UPLOAD_BUCKET environment variable must be set")
	}

	workers, err := strconv.Atoi(gcp.GetEnv("OCR_WORKERS", "4"))
	if err != nil || workers < 1 {
		return nil, fmt.Errorf("OCR_WORKERS must be a positive integer")
	}

	return &Config{
		ProjectID:           projectID,
		UploadBucket:        uploadBucket,
		VertexAIRegion:      gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		ReportOutputDir:     gcp.GetEnv("REPORT_OUTPUT_DIR", filepath.Join(os.TempDir(), "pdfreportflow_results")),
		FirestoreCollection: gcp.GetEnv("FIRESTORE_COLLECTION", ""),
		OCRLanguages:        strings.Split(gcp.GetEnv("OCR_LANGUAGES", "eng"), ","),
		OCRWorkers:          workers,
		Port:                gcp.GetEnv("PORT", "8080"),
	}, nil
}

// App wires the ledger, the capabilities and the orchestrator for the
// process entrypoints.
type App struct {
	Config       *Config
	Store        ledger.Store
	Orchestrator *workflow.Orchestrator
	Tasks        *workflow.Service
	Uploader     *gcp.Uploader

	storageClient   *storage.Client
	vertexClient    *gcp.VertexClient
	firestoreClient *firestore.Client
}

// NewApp builds the full processing stack from the environment.
func NewApp(ctx context.Context) (*App, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	var store ledger.Store = ledger.NewMemoryStore()
	var firestoreClient *firestore.Client
	if config.FirestoreCollection != "" {
		firestoreClient, err = gcp.NewFirestoreClient(ctx, config.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		store = ledger.NewFirestoreMirror(store, firestoreClient, config.FirestoreCollection)
		slog.Info("Ledger mirroring to Firestore enabled.", "collection", config.FirestoreCollection)
	}

	ocrExtractor := ocr.NewTesseractExtractor(storageClient, ocr.Config{
		Languages: config.OCRLanguages,
		Workers:   config.OCRWorkers,
		DPI:       300,
	})
	geminiExtractor := extract.NewGeminiExtractor(vertexClient)
	renderer := report.NewRenderer(config.ReportOutputDir)
	orchestrator := workflow.NewOrchestrator(store, ocrExtractor, geminiExtractor, reconcile.NoopPolicy{}, renderer)

	slog.Info("Processing stack initialized.", "uploadBucket", config.UploadBucket, "reportOutputDir", config.ReportOutputDir)
	return &App{
		Config:          config,
		Store:           store,
		Orchestrator:    orchestrator,
		Tasks:           workflow.NewService(store),
		Uploader:        &gcp.Uploader{Client: storageClient, Bucket: config.UploadBucket},
		storageClient:   storageClient,
		vertexClient:    vertexClient,
		firestoreClient: firestoreClient,
	}, nil
}

// Close releases the GCP clients.
func (a *App) Close() error {
	var firstErr error
	if a.vertexClient != nil {
		if err := a.vertexClient.Close(); err != nil {
			firstErr = err
		}
	}
	if a.firestoreClient != nil {
		if err := a.firestoreClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
