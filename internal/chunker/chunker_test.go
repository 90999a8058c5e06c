package chunker

import (
	"fmt"
	"strings"
	"testing"
)

func mustNew(t *testing.T, cfg Config) *Chunker {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v) failed: %v", cfg, err)
	}
	return c
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero size", Config{Size: 0, Overlap: 0}},
		{"negative size", Config{Size: -1, Overlap: 0}},
		{"negative overlap", Config{Size: 100, Overlap: -1}},
		{"overlap equals size", Config{Size: 100, Overlap: 100}},
		{"overlap exceeds size", Config{Size: 100, Overlap: 150}},
	}

	for _, tc := range cases {
		if _, err := New(tc.cfg); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}
}

func TestSplit_EmptyContent(t *testing.T) {
	c := mustNew(t, DefaultConfig())
	if chunks := c.Split(""); len(chunks) != 0 {
		t.Errorf("expected no chunks for empty content, got %d", len(chunks))
	}
}

func TestSplit_ShortContent(t *testing.T) {
	c := mustNew(t, DefaultConfig())
	content := "A document shorter than the chunk size."

	chunks := c.Split(content)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != content {
		t.Errorf("expected chunk to equal content, got %q", chunks[0])
	}
}

func TestSplit_BreaksAtSentenceBoundary(t *testing.T) {
	c := mustNew(t, Config{Size: 50, Overlap: 10})
	content := "First sentence here. Second sentence follows and keeps going well past the window."

	chunks := c.Split(content)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}

	// The first window [0:50) holds the period at offset 19, so the
	// first chunk ends just before it.
	if chunks[0] != "First sentence here" {
		t.Errorf("expected first chunk to end at sentence boundary, got %q", chunks[0])
	}
}

func TestSplit_PrefersLaterNewlineOverPeriod(t *testing.T) {
	c := mustNew(t, Config{Size: 40, Overlap: 5})
	content := "Short line.\nAnother line without end\n then padding padding padding padding"

	chunks := c.Split(content)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	// Offset 36 holds the second newline, later than the period at 10.
	if !strings.HasSuffix(chunks[0], "without end") {
		t.Errorf("expected split at last newline, first chunk was %q", chunks[0])
	}
}

func TestSplit_HardCutWithoutBoundaries(t *testing.T) {
	c := mustNew(t, DefaultConfig())
	content := strings.Repeat("a", 2500)

	chunks := c.Split(content)
	// Hard cuts at 1000: [0:1000), [800:1800), [1600:2500).
	expected := []int{1000, 1000, 900}
	if len(chunks) != len(expected) {
		t.Fatalf("expected %d chunks, got %d", len(expected), len(chunks))
	}
	for i, want := range expected {
		if len(chunks[i]) != want {
			t.Errorf("chunk %d: expected length %d, got %d", i, want, len(chunks[i]))
		}
	}
}

func TestSplit_DotsOverlap(t *testing.T) {
	c := mustNew(t, DefaultConfig())
	content := strings.Repeat(".", DefaultSize+500)

	chunks := c.Split(content)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		overlap := suffixPrefixOverlap(chunks[i-1], chunks[i])
		if overlap < DefaultOverlap-1 {
			t.Errorf("chunks %d/%d overlap by %d, expected at least %d", i-1, i, overlap, DefaultOverlap-1)
		}
	}
}

func TestSplit_CoversEntireContent(t *testing.T) {
	c := mustNew(t, Config{Size: 120, Overlap: 30})

	var b strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "Sentence number %03d carries a little payload. ", i)
	}
	content := b.String()

	chunks := c.Split(content)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	if got := reconstruct(chunks); got != content {
		t.Errorf("reconstructed content diverges: got %d chars, want %d", len(got), len(content))
	}
}

func TestSplit_Terminates_BoundaryInsideOverlap(t *testing.T) {
	// A period right after the window start would pin the cursor in
	// place if the overlap were subtracted blindly.
	c := mustNew(t, Config{Size: 20, Overlap: 15})
	content := "ab. " + strings.Repeat("x", 100)

	chunks := c.Split(content)
	if len(chunks) == 0 {
		t.Fatal("expected chunks, got none")
	}
	if !strings.HasPrefix(content, chunks[0]) {
		t.Errorf("first chunk %q is not a prefix of content", chunks[0])
	}
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(content, last) {
		t.Errorf("last chunk %q is not a suffix of content", last)
	}
}

func TestSplit_MultiByteRunes(t *testing.T) {
	c := mustNew(t, Config{Size: 10, Overlap: 2})
	content := strings.Repeat("日本語", 10) // 30 runes, 90 bytes

	chunks := c.Split(content)
	for i, chunk := range chunks {
		if n := len([]rune(chunk)); n > 10 {
			t.Errorf("chunk %d has %d runes, window is 10", i, n)
		}
	}
	// Hard cuts every size-overlap runes: windows [0,10) [8,18) [16,26) [24,30).
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	runes := []rune(content)
	if chunks[1] != string(runes[8:18]) {
		t.Errorf("chunk 1 cut at the wrong rune offset: %q", chunks[1])
	}
	if !strings.HasSuffix(content, chunks[3]) {
		t.Errorf("last chunk is not a suffix of content: %q", chunks[3])
	}
}

// suffixPrefixOverlap returns the length of the longest suffix of a
// that is also a prefix of b.
func suffixPrefixOverlap(a, b string) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for n := max; n > 0; n-- {
		if a[len(a)-n:] == b[:n] {
			return n
		}
	}
	return 0
}

// reconstruct merges overlapping chunks back into the original text.
func reconstruct(chunks []string) string {
	if len(chunks) == 0 {
		return ""
	}
	out := chunks[0]
	for _, chunk := range chunks[1:] {
		n := suffixPrefixOverlap(out, chunk)
		out += chunk[n:]
	}
	return out
}
