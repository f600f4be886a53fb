package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"filinglens/pkg/core/chunk"
)

var (
	// ErrNotLoaded is returned by Search before Build or Load.
	ErrNotLoaded = errors.New("index not loaded")

	// ErrEmptyQuery is returned for blank search queries.
	ErrEmptyQuery = errors.New("query cannot be empty")
)

// Result is one search hit with its chunk metadata and similarity
// score (higher is more similar).
type Result struct {
	ChunkID    string  `json:"chunk_id"`
	Ticker     string  `json:"ticker"`
	Accession  string  `json:"accession"`
	PeriodEnd  string  `json:"period_end"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// entry is one indexed chunk as persisted.
type entry struct {
	ChunkID    string    `json:"chunk_id"`
	Ticker     string    `json:"ticker"`
	Accession  string    `json:"accession"`
	PeriodEnd  string    `json:"period_end"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"vector"`
}

type indexFile struct {
	Dimension int     `json:"dimension"`
	Entries   []entry `json:"entries"`
}

// Index stores chunk vectors for one filing and answers similarity
// queries. Persistence is a single JSON file per index directory.
type Index struct {
	dir      string
	embedder Embedder
	entries  []entry
	loaded   bool
}

// New creates an index rooted at dir. The directory is created on
// first save.
func New(dir string, embedder Embedder) *Index {
	if embedder == nil {
		embedder = NewHashEmbedder()
	}
	return &Index{dir: dir, embedder: embedder}
}

func (ix *Index) file() string {
	return filepath.Join(ix.dir, "index.json")
}

// Build embeds all chunks, replaces any existing index, and persists
// it.
func (ix *Index) Build(ctx context.Context, chunks []chunk.DocumentChunk) error {
	if len(chunks) == 0 {
		return errors.New("cannot build index from empty chunk list")
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	entries := make([]entry, len(chunks))
	for i, ch := range chunks {
		entries[i] = entry{
			ChunkID:    ch.ChunkID,
			Ticker:     ch.Filing.Company.Ticker,
			Accession:  ch.Filing.Accession,
			PeriodEnd:  ch.Filing.PeriodEnd,
			ChunkIndex: ch.Index,
			Text:       ch.Text,
			Vector:     vectors[i],
		}
	}
	ix.entries = entries
	ix.loaded = true
	return ix.save()
}

func (ix *Index) save() error {
	if err := os.MkdirAll(ix.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	data, err := json.Marshal(indexFile{Dimension: ix.embedder.Dimension(), Entries: ix.entries})
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	tmp := ix.file() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return os.Rename(tmp, ix.file())
}

// Load reads a previously built index. It returns false when no index
// exists, and an error when the file is present but unreadable; the
// caller should rebuild in that case.
func (ix *Index) Load() (bool, error) {
	data, err := os.ReadFile(ix.file())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read index: %w", err)
	}

	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		return false, fmt.Errorf("index file corrupted: %w", err)
	}
	if f.Dimension != ix.embedder.Dimension() {
		return false, fmt.Errorf("index dimension %d does not match embedder dimension %d",
			f.Dimension, ix.embedder.Dimension())
	}
	for _, e := range f.Entries {
		if len(e.Vector) != f.Dimension {
			return false, fmt.Errorf("index file corrupted: entry %s has %d-dim vector", e.ChunkID, len(e.Vector))
		}
	}

	ix.entries = f.Entries
	ix.loaded = true
	return true, nil
}

// Size returns the number of indexed chunks.
func (ix *Index) Size() int { return len(ix.entries) }

// Search returns the k most similar chunks to the query, best first.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if !ix.loaded {
		return nil, ErrNotLoaded
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	qv := vectors[0]

	results := make([]Result, 0, len(ix.entries))
	for _, e := range ix.entries {
		results = append(results, Result{
			ChunkID:    e.ChunkID,
			Ticker:     e.Ticker,
			Accession:  e.Accession,
			PeriodEnd:  e.PeriodEnd,
			ChunkIndex: e.ChunkIndex,
			Text:       e.Text,
			Score:      dot(qv, e.Vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// dot computes the inner product; with normalized vectors this is
// cosine similarity.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
