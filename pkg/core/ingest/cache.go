package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilingCache stores raw filing bytes on disk keyed by (ticker,
// accession) so a filing is never downloaded twice. Layout:
// {root}/{TICKER}/{accession-without-dashes}/filing.txt.
type FilingCache struct {
	root string
}

// NewFilingCache creates a cache rooted at dir, creating it if needed.
func NewFilingCache(dir string) (*FilingCache, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache root: %w", err)
	}
	return &FilingCache{root: abs}, nil
}

// Path returns the directory where a filing's artifacts live.
func (c *FilingCache) Path(ticker, accession string) string {
	return filepath.Join(c.root,
		strings.ToUpper(ticker),
		strings.ReplaceAll(accession, "-", ""))
}

func (c *FilingCache) filePath(ticker, accession string) string {
	return filepath.Join(c.Path(ticker, accession), "filing.txt")
}

// Has reports whether raw content is cached for the filing.
func (c *FilingCache) Has(ticker, accession string) bool {
	info, err := os.Stat(c.filePath(ticker, accession))
	return err == nil && info.Size() > 0
}

// Get returns the cached raw content, or an error if absent.
func (c *FilingCache) Get(ticker, accession string) ([]byte, error) {
	data, err := os.ReadFile(c.filePath(ticker, accession))
	if err != nil {
		return nil, fmt.Errorf("filing not cached for %s/%s: %w", ticker, accession, err)
	}
	return data, nil
}

// Put stores raw filing content.
func (c *FilingCache) Put(ticker, accession string, content []byte) error {
	dir := c.Path(ticker, accession)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create filing dir: %w", err)
	}
	if err := os.WriteFile(c.filePath(ticker, accession), content, 0o644); err != nil {
		return fmt.Errorf("failed to write filing: %w", err)
	}
	return nil
}

// Root returns the cache root directory.
func (c *FilingCache) Root() string {
	return c.root
}
