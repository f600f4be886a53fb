// Package company holds the company directory and its YAML-backed config.
package company

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

// Company identifies one SEC registrant.
//
// Invariants: Ticker is uppercase and non-empty, CIK is a 10-digit
// zero-padded string, Name is non-empty.
type Company struct {
	Ticker string `yaml:"ticker" json:"ticker"`
	Name   string `yaml:"name" json:"name"`
	CIK    string `yaml:"cik" json:"cik"`
}

// NewCompany validates and normalizes the fields into a Company.
func NewCompany(ticker, name, cik string) (Company, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return Company{}, fmt.Errorf("ticker cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return Company{}, fmt.Errorf("company name cannot be empty")
	}

	cikClean := strings.TrimLeft(strings.TrimSpace(cik), "0")
	if cikClean == "" {
		cikClean = "0"
	}
	for _, r := range cikClean {
		if r < '0' || r > '9' {
			return Company{}, fmt.Errorf("CIK must be numeric, got %q", cik)
		}
	}

	return Company{
		Ticker: ticker,
		Name:   strings.TrimSpace(name),
		CIK:    fmt.Sprintf("%010s", cikClean),
	}, nil
}

// Directory resolves tickers and exact company names to Company entries
// loaded once from a YAML config file.
type Directory struct {
	companies map[string]Company
}

type directoryConfig struct {
	Companies map[string]struct {
		Name string `yaml:"name"`
		CIK  string `yaml:"cik"`
	} `yaml:"companies"`
}

// LoadDirectory reads the company config from path.
//
// The file must contain a top-level "companies" map keyed by ticker:
//
//	companies:
//	  AAPL:
//	    name: Apple Inc.
//	    cik: "320193"
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read company config: %w", err)
	}

	var cfg directoryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse company config %s: %w", path, err)
	}
	if len(cfg.Companies) == 0 {
		return nil, fmt.Errorf("invalid config %s: missing 'companies' key", path)
	}

	dir := &Directory{companies: make(map[string]Company, len(cfg.Companies))}
	for ticker, info := range cfg.Companies {
		c, err := NewCompany(ticker, info.Name, info.CIK)
		if err != nil {
			return nil, fmt.Errorf("invalid company entry for %s: %w", ticker, err)
		}
		dir.companies[c.Ticker] = c
	}
	return dir, nil
}

// Resolve finds a company by ticker or exact (case-insensitive) name.
func (d *Directory) Resolve(query string) (Company, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Company{}, fmt.Errorf("query cannot be empty")
	}

	if c, ok := d.companies[strings.ToUpper(query)]; ok {
		return c, nil
	}
	for _, c := range d.companies {
		if strings.EqualFold(c.Name, query) {
			return c, nil
		}
	}

	return Company{}, fmt.Errorf(
		"no company found matching %q; available tickers: %s",
		query, strings.Join(d.Tickers(), ", "))
}

// Get returns the company for a ticker, reporting whether it was found.
func (d *Directory) Get(ticker string) (Company, bool) {
	c, ok := d.companies[strings.ToUpper(strings.TrimSpace(ticker))]
	return c, ok
}

// Tickers returns all configured tickers, sorted.
func (d *Directory) Tickers() []string {
	out := make([]string, 0, len(d.companies))
	for t := range d.companies {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
