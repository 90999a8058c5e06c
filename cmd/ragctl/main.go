// Package main provides the document index management CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbaxter/docrag/internal/chunker"
	"github.com/dbaxter/docrag/internal/config"
	"github.com/dbaxter/docrag/internal/embedding"
	"github.com/dbaxter/docrag/internal/ingest"
	"github.com/dbaxter/docrag/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Document index management tool",
	Long:  "CLI tool for managing the markdown document index in Qdrant",
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [directory]",
	Short: "Index all markdown files in a directory",
	Long: `Walks the directory tree, chunks every markdown file, generates
embeddings and stores the chunks in Qdrant. Files that fail are
reported at the end; the rest of the run is unaffected. Without an
argument the configured documents directory is used.

Environment variables:
  DOCRAG_QDRANT_HOST    Qdrant hostname (default: localhost)
  DOCRAG_QDRANT_PORT    Qdrant gRPC port (default: 6334)
  DOCRAG_COLLECTION     Collection name (default: documents)
  DOCRAG_DOCUMENTS_DIR  Default ingest directory (default: ./documents)
  OPENAI_API_KEY        OpenAI API key for embeddings (required)`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every chunk from the index",
	Long:  "Drops and recreates the collection, leaving an empty index ready for re-ingestion.",
	RunE:  runClear,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(clearCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func connect(cfg *config.Config) (*storage.Store, error) {
	fmt.Printf("Connecting to Qdrant at %s:%d...\n", cfg.QdrantHost, cfg.QdrantPort)
	store, err := storage.New(cfg.QdrantHost, cfg.QdrantPort, cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	return store, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	// Cancel on SIGTERM/SIGINT so an interrupted run stops between
	// files instead of mid-upsert.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dir := cfg.DocumentsDir
	if len(args) > 0 {
		dir = args[0]
	}

	store, err := connect(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Health(ctx); err != nil {
		return fmt.Errorf("Qdrant health check failed: %w", err)
	}
	fmt.Println("Qdrant healthy")

	if err := store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}

	client, err := embedding.NewClient(cfg.OpenAIAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(client)

	splitter, err := chunker.New(chunker.Config{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Indexing markdown files under %s...\n", dir)
	pipeline := ingest.NewPipeline(splitter, embedder, store, slog.Default())

	result, err := pipeline.IngestDirectory(ctx, dir)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Ingestion complete!")
	fmt.Printf("  Files: %d/%d\n", result.SuccessfulFiles, result.TotalFiles)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))

	if len(result.FailedFiles) > 0 {
		fmt.Println()
		fmt.Println("Failed files:")
		for _, failed := range result.FailedFiles {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))

	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := connect(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Clearing collection %q...\n", cfg.Collection)
	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}
	fmt.Println("Collection cleared")

	return nil
}
