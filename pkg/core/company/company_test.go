package company

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewCompany(t *testing.T) {
	tests := []struct {
		name    string
		ticker  string
		coName  string
		cik     string
		want    Company
		wantErr bool
	}{
		{
			name:   "normalizes ticker and pads CIK",
			ticker: " aapl ", coName: "Apple Inc.", cik: "320193",
			want: Company{Ticker: "AAPL", Name: "Apple Inc.", CIK: "0000320193"},
		},
		{
			name:   "already padded CIK",
			ticker: "MSFT", coName: "Microsoft Corporation", cik: "0000789019",
			want: Company{Ticker: "MSFT", Name: "Microsoft Corporation", CIK: "0000789019"},
		},
		{name: "empty ticker", ticker: "", coName: "X", cik: "1", wantErr: true},
		{name: "empty name", ticker: "X", coName: " ", cik: "1", wantErr: true},
		{name: "non-numeric CIK", ticker: "X", coName: "X Corp", cik: "12ab", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewCompany(tt.ticker, tt.coName, tt.cik)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "companies.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleConfig = `companies:
  AAPL:
    name: Apple Inc.
    cik: "320193"
  MSFT:
    name: Microsoft Corporation
    cik: "789019"
  NVDA:
    name: NVIDIA Corporation
    cik: "1045810"
`

func TestLoadDirectory(t *testing.T) {
	dir, err := LoadDirectory(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	tickers := dir.Tickers()
	want := []string{"AAPL", "MSFT", "NVDA"}
	if strings.Join(tickers, ",") != strings.Join(want, ",") {
		t.Errorf("Tickers = %v, want %v", tickers, want)
	}

	co, ok := dir.Get("msft")
	if !ok {
		t.Fatal("Get(msft) not found")
	}
	if co.CIK != "0000789019" {
		t.Errorf("CIK = %q, want 0000789019", co.CIK)
	}
}

func TestLoadDirectoryErrors(t *testing.T) {
	if _, err := LoadDirectory(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should error")
	}
	if _, err := LoadDirectory(writeConfig(t, "companies: {}\n")); err == nil {
		t.Error("empty companies map should error")
	}
	if _, err := LoadDirectory(writeConfig(t, ":\nnot yaml at all [\n")); err == nil {
		t.Error("malformed YAML should error")
	}
}

func TestResolve(t *testing.T) {
	dir, err := LoadDirectory(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	if co, err := dir.Resolve("aapl"); err != nil || co.Ticker != "AAPL" {
		t.Errorf("Resolve(aapl) = %+v, %v", co, err)
	}
	if co, err := dir.Resolve("nvidia corporation"); err != nil || co.Ticker != "NVDA" {
		t.Errorf("Resolve by name = %+v, %v", co, err)
	}
	if _, err := dir.Resolve("ZZZZ"); err == nil {
		t.Error("unknown ticker should error")
	} else if !strings.Contains(err.Error(), "AAPL") {
		t.Errorf("error should list available tickers: %v", err)
	}
	if _, err := dir.Resolve("  "); err == nil {
		t.Error("blank query should error")
	}
}
