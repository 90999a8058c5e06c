package domain

import (
	"fmt"
	"time"
)

// ChunkMetadata describes where a chunk came from.
type ChunkMetadata struct {
	Source      string    // File path of the originating document
	ChunkIndex  int       // Zero-based position within the source
	Title       string    // Document title from the first markdown heading, may be empty
	LastUpdated time.Time // Modification time of the source file at ingestion
}

// Validate rejects metadata that cannot produce a usable record ID.
func (m ChunkMetadata) Validate() error {
	if m.Source == "" {
		return NewError(ErrCodeValidation, "chunk metadata missing source")
	}
	if m.ChunkIndex < 0 {
		return NewError(ErrCodeValidation, fmt.Sprintf("negative chunk index %d for %s", m.ChunkIndex, m.Source))
	}
	return nil
}

// RecordID derives the unique record identifier for this chunk.
// Re-ingesting the same source yields the same IDs, so writes upsert.
func (m ChunkMetadata) RecordID() string {
	return fmt.Sprintf("%s_%d", m.Source, m.ChunkIndex)
}

// ChunkRecord is the persisted unit: one chunk of text with its
// embedding vector and provenance metadata.
type ChunkRecord struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  ChunkMetadata
}

// SearchMatch is one ranked result from a similarity search.
// Distance is raw cosine distance: 0 identical, 2 opposite.
type SearchMatch struct {
	Text     string
	Metadata ChunkMetadata
	Distance float64
}

// Similarity converts the match's cosine distance to a score where
// 1 means identical and negative values mean opposed vectors.
func (m SearchMatch) Similarity() float64 {
	return 1 - m.Distance
}
