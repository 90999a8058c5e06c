package ingest

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbaxter/docrag/internal/chunker"
	"github.com/dbaxter/docrag/internal/domain"
)

const fakeDimension = 32

// fakeEmbedder returns a deterministic unit vector per text: identical
// text always embeds to the identical vector. Texts containing failOn
// abort the call, mimicking a provider error.
type fakeEmbedder struct {
	failOn string
}

func (f *fakeEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		if f.failOn != "" && strings.Contains(text, f.failOn) {
			return nil, domain.NewError(domain.ErrCodeEmbedding, fmt.Sprintf("embedding input %d rejected", i))
		}
		out = append(out, embedText(text))
	}
	return out, nil
}

func embedText(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	v := make([]float32, fakeDimension)
	var norm float64
	for i := range v {
		v[i] = float32(rng.NormFloat64())
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// memoryStore is a brute-force cosine store used in place of Qdrant.
type memoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.ChunkRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]domain.ChunkRecord)}
}

func (m *memoryStore) Add(ctx context.Context, chunks []string, embeddings [][]float32, metadata []domain.ChunkMetadata) error {
	if len(chunks) != len(embeddings) || len(chunks) != len(metadata) {
		return domain.NewError(domain.ErrCodeValidation, "length mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range chunks {
		id := metadata[i].RecordID()
		m.records[id] = domain.ChunkRecord{
			ID:        id,
			Text:      chunks[i],
			Embedding: embeddings[i],
			Metadata:  metadata[i],
		}
	}
	return nil
}

func (m *memoryStore) search(vector []float32, k int) []domain.SearchMatch {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]domain.SearchMatch, 0, len(m.records))
	for _, record := range m.records {
		matches = append(matches, domain.SearchMatch{
			Text:     record.Text,
			Metadata: record.Metadata,
			Distance: 1 - cosine(vector, record.Embedding),
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func defaultChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(chunker.DefaultConfig())
	require.NoError(t, err)
	return c
}

func TestIngestDirectory_CountsAndOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.md", "# Beta\n\nSecond file.")
	writeFile(t, dir, "a.md", "# Alpha\n\nFirst file.")
	writeFile(t, dir, "nested/c.md", "# Gamma\n\nThird file.")
	writeFile(t, dir, "ignored.txt", "not markdown")

	store := newMemoryStore()
	pipeline := NewPipeline(defaultChunker(t), &fakeEmbedder{}, store, nil)

	result, err := pipeline.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalFiles)
	assert.Equal(t, 3, result.SuccessfulFiles)
	assert.Equal(t, 3, result.TotalChunks)
	assert.Empty(t, result.FailedFiles)

	// Deterministic lexicographic order.
	var got []string
	for _, f := range result.Files {
		got = append(got, f.Path)
	}
	want := []string{
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "b.md"),
		filepath.Join(dir, "nested", "c.md"),
	}
	assert.Equal(t, want, got)

	record, ok := store.records[filepath.Join(dir, "a.md")+"_0"]
	require.True(t, ok, "expected record for a.md chunk 0")
	assert.Equal(t, "Alpha", record.Metadata.Title)
	assert.False(t, record.Metadata.LastUpdated.IsZero())
}

func TestIngestDirectory_ContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.md", "# Bad\n\nPOISON content that the provider rejects.")
	writeFile(t, dir, "good.md", "# Good\n\nHealthy content.")

	store := newMemoryStore()
	pipeline := NewPipeline(defaultChunker(t), &fakeEmbedder{failOn: "POISON"}, store, nil)

	result, err := pipeline.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalFiles)
	assert.Equal(t, 1, result.SuccessfulFiles)
	require.Len(t, result.FailedFiles, 1)
	assert.Equal(t, filepath.Join(dir, "bad.md"), result.FailedFiles[0].Path)
	assert.Contains(t, result.FailedFiles[0].Reason, "embedding")

	// The failed file must not leave partial records behind.
	for id := range store.records {
		assert.NotContains(t, id, "bad.md")
	}
}

func TestIngestDirectory_MissingDirectory(t *testing.T) {
	pipeline := NewPipeline(defaultChunker(t), &fakeEmbedder{}, newMemoryStore(), nil)

	_, err := pipeline.IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDirectoryNotFound)
}

func TestIngestDirectory_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.md", "")

	store := newMemoryStore()
	pipeline := NewPipeline(defaultChunker(t), &fakeEmbedder{}, store, nil)

	result, err := pipeline.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessfulFiles)
	assert.Equal(t, 0, result.TotalChunks)
	assert.Empty(t, store.records)
}

func TestIngestDirectory_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "# A\n\ncontent")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipeline := NewPipeline(defaultChunker(t), &fakeEmbedder{}, newMemoryStore(), nil)
	_, err := pipeline.IngestDirectory(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestDirectory_QueryRoundTrip(t *testing.T) {
	// Three-section document around 2500 characters: with the default
	// 1000/200 window this splits into three chunks.
	var b strings.Builder
	b.WriteString("# Handbook\n\n")
	for s := 1; s <= 3; s++ {
		fmt.Fprintf(&b, "## Section %d\n\n", s)
		for i := 0; i < 16; i++ {
			fmt.Fprintf(&b, "Section %d sentence %02d carries its own payload. ", s, i)
		}
		b.WriteString("\n\n")
	}
	content := b.String()
	require.InDelta(t, 2500, len(content), 200, "fixture should be near 2500 characters")

	dir := t.TempDir()
	writeFile(t, dir, "handbook.md", content)

	store := newMemoryStore()
	embedder := &fakeEmbedder{}
	pipeline := NewPipeline(defaultChunker(t), embedder, store, nil)

	result, err := pipeline.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 3, result.TotalChunks)

	// Query with one stored chunk's own text: that chunk must rank
	// first with near-perfect similarity.
	var target domain.ChunkRecord
	for _, record := range store.records {
		if record.Metadata.ChunkIndex == 1 {
			target = record
		}
	}
	require.NotEmpty(t, target.Text)

	vectors, err := embedder.GenerateEmbeddings(context.Background(), []string{target.Text})
	require.NoError(t, err)

	matches := store.search(vectors[0], 3)
	require.NotEmpty(t, matches)
	assert.Equal(t, target.Text, matches[0].Text)
	assert.GreaterOrEqual(t, matches[0].Similarity(), 0.99)
}
