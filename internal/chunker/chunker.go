// Package chunker splits document text into overlapping chunks that
// respect sentence and line boundaries where possible.
package chunker

import (
	"github.com/dbaxter/docrag/internal/domain"
)

// Default window configuration, tuned for prose documents.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Config controls the chunk window.
type Config struct {
	Size    int // Maximum characters per chunk
	Overlap int // Characters re-included from the previous chunk
}

// DefaultConfig returns the standard 1000/200 window.
func DefaultConfig() Config {
	return Config{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Chunker is a pure splitter; it never fails on well-formed input.
type Chunker struct {
	size    int
	overlap int
}

// New validates the configuration and returns a Chunker.
// Overlap must be smaller than Size or the cursor could not advance.
func New(cfg Config) (*Chunker, error) {
	if cfg.Size <= 0 {
		return nil, domain.NewError(domain.ErrCodeValidation, "chunk size must be positive")
	}
	if cfg.Overlap < 0 {
		return nil, domain.NewError(domain.ErrCodeValidation, "chunk overlap must not be negative")
	}
	if cfg.Overlap >= cfg.Size {
		return nil, domain.NewError(domain.ErrCodeValidation, "chunk overlap must be smaller than chunk size")
	}
	return &Chunker{size: cfg.Size, overlap: cfg.Overlap}, nil
}

// Split turns content into an ordered sequence of overlapping chunks.
// Each window ends at the last period or newline inside it when one
// exists past the window start, otherwise at the hard size limit. The
// next window starts overlap characters before the previous cut, so
// every character of content appears in at least one chunk. Empty
// content yields no chunks; content shorter than the window yields one.
func (c *Chunker) Split(content string) []string {
	if content == "" {
		return nil
	}

	runes := []rune(content)
	var chunks []string

	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		split := lastBoundary(runes, start, end)
		if split <= start {
			split = end
		}

		chunks = append(chunks, string(runes[start:split]))

		next := split - c.overlap
		if next <= start {
			// Boundary landed inside the overlap region; restarting
			// behind the current cursor would loop forever.
			next = split
		}
		start = next
	}

	return chunks
}

// lastBoundary returns the index of the last '.' or '\n' in
// runes[start:end), or -1 when the window holds neither. The boundary
// character itself is carried into the following chunk.
func lastBoundary(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == '.' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}
