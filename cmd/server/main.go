package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/secondbrain-labs/secondbrain/internal/api"
	"github.com/secondbrain-labs/secondbrain/internal/blob"
	"github.com/secondbrain-labs/secondbrain/internal/config"
	"github.com/secondbrain-labs/secondbrain/internal/core"
	"github.com/secondbrain-labs/secondbrain/internal/extract"
	"github.com/secondbrain-labs/secondbrain/internal/knowledge"
	"github.com/secondbrain-labs/secondbrain/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Command line flag for local ingestion
	ingestPathFlag := flag.String("ingest", "", "Ingest a local file or directory and exit")
	flag.Parse()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Initialize LLM service
	llmService := core.NewLLMService()
	defer llmService.Close()

	// Initialize the vector index
	index, err := newKnowledgeIndex(llmService)
	if err != nil {
		log.Fatalf("Failed to initialize knowledge index: %v", err)
	}

	// Initialize ingestion pipeline
	extractor := extract.New(llmService)
	ingestService := core.NewIngestService(extractor, index)

	// Handle local ingestion if flag is set
	if *ingestPathFlag != "" {
		if err := ingestPath(ingestService, *ingestPathFlag); err != nil {
			log.Fatalf("Ingestion failed: %v", err)
		}
		os.Exit(0)
	}

	// Initialize Chat service
	chatService := core.NewChatService(dbStore, index, llmService, config.AppConfig.RetrievalTopK)

	// Object storage for original uploads (optional)
	var blobs api.BlobUploader
	if config.AppConfig.S3Bucket != "" {
		s3Store, err := blob.NewS3Store(context.Background(), config.AppConfig.S3Bucket, config.AppConfig.S3Region, config.AppConfig.S3PublicBaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize S3 store: %v", err)
		}
		blobs = s3Store
	}

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, ingestService, dbStore, blobs)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}

// newKnowledgeIndex picks the vector backend from configuration. chromem is
// the default and keeps everything local; qdrant points at a remote
// instance.
func newKnowledgeIndex(embedder knowledge.Embedder) (knowledge.Index, error) {
	switch config.AppConfig.VectorBackend {
	case "qdrant":
		log.Printf("Using Qdrant vector backend at %s", config.AppConfig.QdrantURL)
		return knowledge.NewQdrantIndex(config.AppConfig.QdrantURL, config.AppConfig.QdrantAPIKey, config.AppConfig.QdrantCollection, embedder), nil
	case "chromem", "":
		return knowledge.NewChromemIndex(config.AppConfig.DataDir, embedder)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", config.AppConfig.VectorBackend)
	}
}

// ingestPath ingests one file, or every supported file under a directory.
func ingestPath(svc *core.IngestService, path string) error {
	ctx := context.Background()

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		result, err := svc.IngestFile(ctx, path)
		if err != nil {
			return err
		}
		log.Printf("Ingestion complete: %d chunks from %q", result.ChunksStored, result.Title)
		return nil
	}

	total := 0
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if _, ok := extract.KindForPath(p); !ok {
			return nil
		}
		result, err := svc.IngestFile(ctx, p)
		if err != nil {
			log.Printf("Skipping %s: %v", p, err)
			return nil
		}
		total += result.ChunksStored
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("Ingestion complete: %d chunks from %s", total, path)
	return nil
}
