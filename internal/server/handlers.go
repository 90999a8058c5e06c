package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dbaxter/docrag/internal/api"
	"github.com/dbaxter/docrag/internal/domain"
	"github.com/dbaxter/docrag/internal/ingest"
)

// Ingestor runs directory ingestion.
type Ingestor interface {
	IngestDirectory(ctx context.Context, dir string) (*ingest.Result, error)
}

// EmbeddingProvider embeds query text.
type EmbeddingProvider interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// RecordStore is the slice of the storage contract the HTTP layer uses.
type RecordStore interface {
	Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]domain.SearchMatch, error)
	ListAll(ctx context.Context) ([]domain.ChunkRecord, error)
	DeleteBySource(ctx context.Context, source string) (int, error)
	Health(ctx context.Context) error
}

// Handler serves the document and context routes.
type Handler struct {
	ingestor Ingestor
	embedder EmbeddingProvider
	store    RecordStore
	logger   *slog.Logger
}

// NewHandler wires the HTTP handler with its collaborators.
func NewHandler(ingestor Ingestor, embedder EmbeddingProvider, store RecordStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ingestor: ingestor,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

type processRequest struct {
	Directory string `json:"directory"`
}

type processedFileResponse struct {
	Path   string `json:"path"`
	Chunks int    `json:"chunks"`
}

type failedFileResponse struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type processResponse struct {
	Status         string                  `json:"status"`
	ProcessedFiles int                     `json:"processed_files"`
	TotalChunks    int                     `json:"total_chunks"`
	Files          []processedFileResponse `json:"files"`
	Failed         []failedFileResponse    `json:"failed,omitempty"`
}

// ProcessDocuments ingests every markdown file in the requested
// directory. Per-file failures are reported, not fatal.
func (h *Handler) ProcessDocuments(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Directory == "" {
		api.Error(w, http.StatusBadRequest, "directory is required")
		return
	}

	result, err := h.ingestor.IngestDirectory(r.Context(), req.Directory)
	if err != nil {
		h.logger.Error("ingestion failed", "dir", req.Directory, "error", err)
		api.HandleError(w, err)
		return
	}

	resp := processResponse{
		Status:         "success",
		ProcessedFiles: result.SuccessfulFiles,
		TotalChunks:    result.TotalChunks,
		Files:          make([]processedFileResponse, 0, len(result.Files)),
	}
	for _, f := range result.Files {
		resp.Files = append(resp.Files, processedFileResponse{Path: f.Path, Chunks: f.Chunks})
	}
	for _, f := range result.FailedFiles {
		resp.Failed = append(resp.Failed, failedFileResponse{Path: f.Path, Reason: f.Reason})
	}
	if len(result.FailedFiles) > 0 {
		resp.Status = "partial"
	}

	api.JSON(w, http.StatusOK, resp)
}

type generateContextRequest struct {
	Query    string `json:"query"`
	NResults int    `json:"n_results,omitempty"`
}

type contextResponse struct {
	Content        string           `json:"content"`
	Metadata       metadataResponse `json:"metadata"`
	RelevanceScore float64          `json:"relevance_score"`
}

type metadataResponse struct {
	Source      string `json:"source"`
	ChunkIndex  int    `json:"chunk_index"`
	Title       string `json:"title,omitempty"`
	LastUpdated string `json:"last_updated"`
}

type generateContextResponse struct {
	Query    string            `json:"query"`
	Contexts []contextResponse `json:"contexts"`
}

// GenerateContext embeds the query and returns the nearest chunks with
// similarity scores.
func (h *Handler) GenerateContext(w http.ResponseWriter, r *http.Request) {
	var req generateContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.NResults < 0 {
		api.Error(w, http.StatusBadRequest, "n_results must not be negative")
		return
	}
	if req.NResults == 0 {
		req.NResults = 3
	}

	vectors, err := h.embedder.GenerateEmbeddings(r.Context(), []string{req.Query})
	if err != nil {
		h.logger.Error("query embedding failed", "query", req.Query, "error", err)
		api.HandleError(w, err)
		return
	}

	matches, err := h.store.Search(r.Context(), vectors[0], req.NResults, nil)
	if err != nil {
		h.logger.Error("search failed", "query", req.Query, "error", err)
		api.HandleError(w, err)
		return
	}

	resp := generateContextResponse{
		Query:    req.Query,
		Contexts: make([]contextResponse, 0, len(matches)),
	}
	for _, match := range matches {
		resp.Contexts = append(resp.Contexts, contextResponse{
			Content:        match.Text,
			Metadata:       toMetadataResponse(match.Metadata),
			RelevanceScore: match.Similarity(),
		})
	}

	api.JSON(w, http.StatusOK, resp)
}

type documentChunkResponse struct {
	Content    string `json:"content"`
	ChunkIndex int    `json:"chunk_index"`
}

type documentResponse struct {
	Title       string                  `json:"title,omitempty"`
	LastUpdated string                  `json:"last_updated"`
	Chunks      []documentChunkResponse `json:"chunks"`
}

type listDocumentsResponse struct {
	Documents map[string]documentResponse `json:"documents"`
}

// ListDocuments returns every stored chunk grouped by source file.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListAll(r.Context())
	if err != nil {
		h.logger.Error("list failed", "error", err)
		api.HandleError(w, err)
		return
	}

	documents := make(map[string]documentResponse)
	for _, record := range records {
		doc := documents[record.Metadata.Source]
		doc.Title = record.Metadata.Title
		doc.LastUpdated = record.Metadata.LastUpdated.UTC().Format(time.RFC3339)
		doc.Chunks = append(doc.Chunks, documentChunkResponse{
			Content:    record.Text,
			ChunkIndex: record.Metadata.ChunkIndex,
		})
		documents[record.Metadata.Source] = doc
	}

	api.JSON(w, http.StatusOK, listDocumentsResponse{Documents: documents})
}

type deleteDocumentResponse struct {
	Status        string `json:"status"`
	DeletedChunks int    `json:"deleted_chunks"`
}

// DeleteDocument removes every chunk of one source file. The source
// path is the rest of the URL after /documents/, so slashes survive.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "*")
	if source == "" {
		api.Error(w, http.StatusBadRequest, "source is required")
		return
	}

	deleted, err := h.store.DeleteBySource(r.Context(), source)
	if err != nil {
		h.logger.Error("delete failed", "source", source, "error", err)
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, deleteDocumentResponse{
		Status:        "success",
		DeletedChunks: deleted,
	})
}

type healthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	Timestamp string `json:"timestamp"`
}

// Health reports liveness including vector store connectivity.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if err := h.store.Health(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Store = "disconnected"
		api.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.Status = "healthy"
	resp.Store = "connected"
	api.JSON(w, http.StatusOK, resp)
}

func toMetadataResponse(meta domain.ChunkMetadata) metadataResponse {
	return metadataResponse{
		Source:      meta.Source,
		ChunkIndex:  meta.ChunkIndex,
		Title:       meta.Title,
		LastUpdated: meta.LastUpdated.UTC().Format(time.RFC3339),
	}
}
