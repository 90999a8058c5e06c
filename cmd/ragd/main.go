// Package main provides the document retrieval HTTP server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dbaxter/docrag/internal/chunker"
	"github.com/dbaxter/docrag/internal/config"
	"github.com/dbaxter/docrag/internal/embedding"
	"github.com/dbaxter/docrag/internal/ingest"
	"github.com/dbaxter/docrag/internal/server"
	"github.com/dbaxter/docrag/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Cancel on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	store, err := storage.New(cfg.QdrantHost, cfg.QdrantPort, cfg.Collection)
	if err != nil {
		logger.Error("failed to connect to Qdrant", "host", cfg.QdrantHost, "port", cfg.QdrantPort, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx); err != nil {
		logger.Error("failed to ensure collection", "collection", cfg.Collection, "error", err)
		os.Exit(1)
	}

	client, err := embedding.NewClient(cfg.OpenAIAPIKey)
	if err != nil {
		logger.Error("failed to create embedding client", "error", err)
		os.Exit(1)
	}
	embedder := embedding.NewEmbedder(client)

	splitter, err := chunker.New(chunker.Config{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap})
	if err != nil {
		logger.Error("invalid chunker configuration", "error", err)
		os.Exit(1)
	}

	pipeline := ingest.NewPipeline(splitter, embedder, store, logger)
	handler := server.NewHandler(pipeline, embedder, store, logger)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           server.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
