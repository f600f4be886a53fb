package chunk

import (
	"errors"
	"strings"
	"testing"

	"filinglens/pkg/core/company"
	"filinglens/pkg/core/ingest"
)

func testFiling() ingest.Filing {
	co, _ := company.NewCompany("AAPL", "Apple Inc.", "320193")
	return ingest.Filing{
		Company:    co,
		Accession:  "0000320193-25-000057",
		FilingDate: "2025-05-02",
		PeriodEnd:  "2025-03-29",
		FilingType: "10-Q",
	}
}

func TestNewChunkerValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default config", DefaultConfig(), false},
		{"zero chunk size", Config{ChunkSize: 0, ChunkOverlap: 0, MinChunkSize: 1}, true},
		{"negative overlap", Config{ChunkSize: 100, ChunkOverlap: -1, MinChunkSize: 10}, true},
		{"overlap equals size", Config{ChunkSize: 100, ChunkOverlap: 100, MinChunkSize: 10}, true},
		{"zero min size", Config{ChunkSize: 100, ChunkOverlap: 10, MinChunkSize: 0}, true},
		{"min above size", Config{ChunkSize: 100, ChunkOverlap: 10, MinChunkSize: 101}, true},
		{"zero overlap ok", Config{ChunkSize: 100, ChunkOverlap: 0, MinChunkSize: 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewChunker(%+v) error = %v, wantErr %v", tt.cfg, err, tt.wantErr)
			}
		})
	}
}

func TestSplitOrderingAndIDs(t *testing.T) {
	c, err := NewChunker(Config{ChunkSize: 200, ChunkOverlap: 50, MinChunkSize: 20})
	if err != nil {
		t.Fatal(err)
	}

	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString(strings.Repeat("revenue increased across all segments. ", 3))
		sb.WriteString("\n\n")
	}

	chunks, err := c.Split(sb.String(), testFiling())
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	seen := make(map[string]bool)
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
		if seen[ch.ChunkID] {
			t.Errorf("duplicate chunk ID %s", ch.ChunkID)
		}
		seen[ch.ChunkID] = true
		if !strings.HasPrefix(ch.ChunkID, "AAPL_0000320193_25_000057_chunk_") {
			t.Errorf("unexpected chunk ID format: %s", ch.ChunkID)
		}
	}
}

func TestSplitCoversAllParagraphs(t *testing.T) {
	c, err := NewChunker(Config{ChunkSize: 150, ChunkOverlap: 30, MinChunkSize: 10})
	if err != nil {
		t.Fatal(err)
	}

	paragraphs := []string{
		"Net sales for the quarter were strong.",
		"Gross margin expanded by 120 basis points.",
		"Operating expenses grew slower than revenue.",
		"The company repurchased shares during the period.",
		"Cash and equivalents remain above target levels.",
	}
	chunks, err := c.Split(strings.Join(paragraphs, "\n\n"), testFiling())
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	var all strings.Builder
	for _, ch := range chunks {
		all.WriteString(ch.Text)
		all.WriteString("\n\n")
	}
	for _, p := range paragraphs {
		if !strings.Contains(all.String(), p) {
			t.Errorf("paragraph lost during chunking: %q", p)
		}
	}
}

func TestSplitOverlapCarried(t *testing.T) {
	c, err := NewChunker(Config{ChunkSize: 100, ChunkOverlap: 40, MinChunkSize: 10})
	if err != nil {
		t.Fatal(err)
	}

	p1 := strings.Repeat("a", 60)
	p2 := strings.Repeat("b", 60)
	p3 := strings.Repeat("c", 60)
	chunks, err := c.Split(p1+"\n\n"+p2+"\n\n"+p3, testFiling())
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	// Second chunk should open with a suffix of the paragraph that
	// closed the first chunk.
	if !strings.Contains(chunks[1].Text, "b") {
		t.Errorf("overlap missing from second chunk: %q", chunks[1].Text)
	}
}

func TestSplitOversizedParagraph(t *testing.T) {
	c, err := NewChunker(Config{ChunkSize: 100, ChunkOverlap: 20, MinChunkSize: 10})
	if err != nil {
		t.Fatal(err)
	}

	big := strings.Repeat("x", 350)
	chunks, err := c.Split(big, testFiling())
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) < 4 {
		t.Errorf("expected sliding-window chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		if len(ch.Text) > 100 {
			t.Errorf("chunk %d exceeds size limit: %d chars", ch.Index, len(ch.Text))
		}
	}
}

func TestSplitErrors(t *testing.T) {
	c, err := NewChunker(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Split("   \n\n  \n\n", testFiling()); !errors.Is(err, ErrNoParagraphs) {
		t.Errorf("expected ErrNoParagraphs, got %v", err)
	}

	small, err := NewChunker(Config{ChunkSize: 1000, ChunkOverlap: 0, MinChunkSize: 500})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := small.Split("too short", testFiling()); !errors.Is(err, ErrNoChunks) {
		t.Errorf("expected ErrNoChunks, got %v", err)
	}
}
