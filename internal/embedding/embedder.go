package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/dbaxter/docrag/internal/domain"
)

const (
	// Model is the OpenAI model used for generating embeddings.
	Model = "text-embedding-3-small"

	// Dimension is the vector size produced by Model. Every record in
	// the collection must carry vectors of this dimension.
	Dimension = 1536
)

// Embedder generates one embedding vector per input text.
//
// Each text is sent as its own request, sequentially. The first
// failure aborts the whole call and discards partial results; the
// returned error names the input that triggered it. The Embedder never
// retries, callers own the retry policy.
type Embedder struct {
	client *Client
}

// NewEmbedder creates an Embedder backed by the given client.
func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// GenerateEmbeddings embeds texts in order; result[i] corresponds to
// texts[i].
func (e *Embedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))

	for i, text := range texts {
		vector, err := e.embedOne(ctx, text)
		if err != nil {
			return nil, domain.WrapError(domain.ErrCodeEmbedding,
				fmt.Sprintf("embedding input %d (%s)", i, preview(text)), err)
		}
		embeddings = append(embeddings, vector)
	}

	return embeddings, nil
}

func (e *Embedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model: Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data returned")
	}

	vector := toFloat32(resp.Data[0].Embedding)
	if len(vector) != Dimension {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(vector), Dimension)
	}
	return vector, nil
}

// preview truncates text for error messages.
func preview(text string) string {
	const max = 60
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

// toFloat32 converts the API's float64 vector to the storage type.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
