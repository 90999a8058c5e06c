// Package ingest walks a directory of markdown files and feeds each
// one through chunking, embedding and storage.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dbaxter/docrag/internal/chunker"
	"github.com/dbaxter/docrag/internal/domain"
	"github.com/dbaxter/docrag/internal/markdown"
)

// EmbeddingProvider turns texts into vectors, order-preserving.
type EmbeddingProvider interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// RecordStore persists chunk batches.
type RecordStore interface {
	Add(ctx context.Context, chunks []string, embeddings [][]float32, metadata []domain.ChunkMetadata) error
}

// FileResult reports one successfully ingested file.
type FileResult struct {
	Path   string
	Chunks int
}

// FailedFile reports one file that could not be ingested.
type FailedFile struct {
	Path   string
	Reason string
}

// Result contains statistics about one ingestion run. Failures are
// collected per file so the caller decides whether partial ingestion
// is acceptable; a failed file never blocks the remaining files.
type Result struct {
	TotalFiles      int
	SuccessfulFiles int
	TotalChunks     int
	Files           []FileResult
	FailedFiles     []FailedFile
	Duration        time.Duration
}

// Pipeline orchestrates chunker, embedder and store for a directory.
type Pipeline struct {
	chunker   *chunker.Chunker
	inspector *markdown.Inspector
	embedder  EmbeddingProvider
	store     RecordStore
	logger    *slog.Logger
}

// NewPipeline wires the ingestion pipeline. All dependencies are
// injected; nothing is read from process-global state.
func NewPipeline(c *chunker.Chunker, embedder EmbeddingProvider, store RecordStore, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker:   c,
		inspector: markdown.NewInspector(),
		embedder:  embedder,
		store:     store,
		logger:    logger,
	}
}

// IngestDirectory processes every markdown file under dir, in
// lexicographic path order so repeated runs are reproducible. One
// file's failure is recorded and the run continues; cancelling ctx
// stops the run between files without corrupting records already
// written.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string) (*Result, error) {
	start := time.Now()

	paths, err := discoverMarkdown(dir)
	if err != nil {
		return nil, err
	}

	result := &Result{TotalFiles: len(paths)}
	p.logger.Info("starting ingestion", "dir", dir, "files", len(paths))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		chunks, err := p.processFile(ctx, path)
		if err != nil {
			p.logger.Warn("failed to ingest file", "path", path, "error", err)
			result.FailedFiles = append(result.FailedFiles, FailedFile{
				Path:   path,
				Reason: err.Error(),
			})
			continue
		}
		result.SuccessfulFiles++
		result.TotalChunks += chunks
		result.Files = append(result.Files, FileResult{Path: path, Chunks: chunks})
	}

	result.Duration = time.Since(start)
	p.logger.Info("ingestion complete",
		"successful", result.SuccessfulFiles,
		"failed", len(result.FailedFiles),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)

	return result, nil
}

// processFile runs the full pipeline for a single file and returns the
// number of chunks written.
func (p *Pipeline) processFile(ctx context.Context, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}
	lastUpdated := info.ModTime().UTC()

	outline, err := p.inspector.Outline(content)
	if err != nil {
		return 0, fmt.Errorf("outline: %w", err)
	}

	chunks := p.chunker.Split(string(content))
	if len(chunks) == 0 {
		p.logger.Debug("skipping empty file", "path", path)
		return 0, nil
	}
	p.logger.Debug("chunked file", "path", path, "chunks", len(chunks))

	embeddings, err := p.embedder.GenerateEmbeddings(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embeddings: %w", err)
	}

	metadata := make([]domain.ChunkMetadata, len(chunks))
	for i := range chunks {
		metadata[i] = domain.ChunkMetadata{
			Source:      path,
			ChunkIndex:  i,
			Title:       outline.Title,
			LastUpdated: lastUpdated,
		}
	}

	if err := p.store.Add(ctx, chunks, embeddings, metadata); err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}

	p.logger.Info("ingested file", "path", path, "chunks", len(chunks))
	return len(chunks), nil
}

// discoverMarkdown lists all .md files under dir, sorted by path.
func discoverMarkdown(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrCodeNotFound, fmt.Sprintf("directory %s", dir), domain.ErrDirectoryNotFound)
		}
		return nil, domain.WrapError(domain.ErrCodeValidation, fmt.Sprintf("directory %s", dir), err)
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeValidation, fmt.Sprintf("walk %s", dir), err)
	}

	sort.Strings(paths)
	return paths, nil
}
