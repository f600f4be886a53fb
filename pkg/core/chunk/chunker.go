// Package chunk splits normalized filing text into overlapping,
// paragraph-aligned chunks for indexing and extraction.
package chunk

import (
	"errors"
	"fmt"
	"strings"

	"filinglens/pkg/core/ingest"
)

var (
	// ErrNoParagraphs is returned when the input contains no non-empty
	// paragraphs after splitting on blank lines.
	ErrNoParagraphs = errors.New("no paragraphs found in text")

	// ErrNoChunks is returned when every candidate chunk fell below the
	// minimum size.
	ErrNoChunks = errors.New("no chunks created (all below minimum size)")
)

// DocumentChunk is one contiguous slice of a filing's text, tagged with
// enough metadata to attribute extracted values back to their source.
type DocumentChunk struct {
	ChunkID string        `json:"chunk_id"`
	Text    string        `json:"text"`
	Filing  ingest.Filing `json:"filing"`
	Index   int           `json:"index"`
}

// Config controls chunk geometry. Sizes are in characters.
type Config struct {
	ChunkSize    int // target size per chunk
	ChunkOverlap int // carried between adjacent chunks
	MinChunkSize int // chunks below this are discarded
}

// DefaultConfig matches the sizes used by the analysis pipeline.
func DefaultConfig() Config {
	return Config{ChunkSize: 1000, ChunkOverlap: 200, MinChunkSize: 100}
}

// Chunker combines paragraphs into fixed-size chunks with overlap.
// Paragraph boundaries are respected whenever a paragraph fits within
// the chunk size; oversized paragraphs fall back to a sliding window.
type Chunker struct {
	cfg Config
}

// NewChunker validates the configuration and returns a Chunker.
func NewChunker(cfg Config) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 {
		return nil, fmt.Errorf("chunk overlap must be non-negative, got %d", cfg.ChunkOverlap)
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be less than chunk size (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if cfg.MinChunkSize <= 0 || cfg.MinChunkSize > cfg.ChunkSize {
		return nil, fmt.Errorf("min chunk size must be in (0, chunk size], got %d", cfg.MinChunkSize)
	}
	return &Chunker{cfg: cfg}, nil
}

// Split chunks normalized text from a filing. Returned chunks are
// ordered by position, carry unique IDs, and each meets the minimum
// size.
func (c *Chunker) Split(text string, filing ingest.Filing) ([]DocumentChunk, error) {
	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	if len(paragraphs) == 0 {
		return nil, ErrNoParagraphs
	}

	var (
		chunks      []DocumentChunk
		parts       []string
		currentSize int
		index       int
	)

	flush := func() {
		text := strings.Join(parts, "\n\n")
		if len(text) >= c.cfg.MinChunkSize {
			chunks = append(chunks, newChunk(text, filing, index))
			index++
		}
	}

	for _, para := range paragraphs {
		paraSize := len(para)

		if paraSize > c.cfg.ChunkSize {
			if len(parts) > 0 {
				flush()
				parts = nil
				currentSize = 0
			}
			windowed := c.splitOversized(para, filing, index)
			chunks = append(chunks, windowed...)
			index += len(windowed)
			continue
		}

		if currentSize+paraSize > c.cfg.ChunkSize && len(parts) > 0 {
			flush()

			if c.cfg.ChunkOverlap > 0 {
				// Prefer whole trailing paragraphs as overlap; fall back
				// to a character suffix of the last one.
				overlap := strings.Join(parts[max(0, len(parts)-2):], "\n\n")
				if len(overlap) <= c.cfg.ChunkOverlap {
					parts = []string{overlap}
				} else {
					last := parts[len(parts)-1]
					if len(last) > c.cfg.ChunkOverlap {
						last = last[len(last)-c.cfg.ChunkOverlap:]
					}
					parts = []string{last}
				}
				currentSize = len(parts[0])
			} else {
				parts = nil
				currentSize = 0
			}
		}

		parts = append(parts, para)
		currentSize += paraSize + 2
	}

	if len(parts) > 0 {
		flush()
	}

	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	return chunks, nil
}

// splitOversized windows through a paragraph larger than the chunk
// size, stepping by size minus overlap.
func (c *Chunker) splitOversized(para string, filing ingest.Filing, startIndex int) []DocumentChunk {
	var chunks []DocumentChunk
	index := startIndex
	offset := 0

	for offset < len(para) {
		end := offset + c.cfg.ChunkSize
		if end > len(para) {
			end = len(para)
		}
		if end-offset >= c.cfg.MinChunkSize {
			chunks = append(chunks, newChunk(para[offset:end], filing, index))
			index++
		}
		if end >= len(para) {
			break
		}
		offset = end - c.cfg.ChunkOverlap
		if offset <= 0 {
			offset = end
		}
	}
	return chunks
}

func newChunk(text string, filing ingest.Filing, index int) DocumentChunk {
	accession := strings.ReplaceAll(filing.Accession, "-", "_")
	return DocumentChunk{
		ChunkID: fmt.Sprintf("%s_%s_chunk_%d", filing.Company.Ticker, accession, index),
		Text:    text,
		Filing:  filing,
		Index:   index,
	}
}
