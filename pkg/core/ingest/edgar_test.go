package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"filinglens/pkg/core/company"
)

func TestDocumentPriority(t *testing.T) {
	tests := []struct {
		name string
		href string
		desc string
		want int
	}{
		{"xbrl instance", "aapl-20250329_htm.xml", "XBRL INSTANCE DOCUMENT", 99},
		{"complete submission txt", "0000320193-25-000057.txt", "Complete submission text file", 1},
		{"named 10q htm", "aapl-10q_20250329.htm", "FORM 10-Q", 2},
		{"d-prefixed 10q htm", "d123456d10q.htm", "FORM 10-Q", 2},
		{"generic htm", "a2025q3exhibitindex.htm", "INDEX", 3},
		{"exhibit htm", "ex-991.htm", "EXHIBIT 99.1", 10},
		{"10-k", "annualreport.pdf", "FORM 10-K", 5},
		{"unmatched", "graphic.jpg", "GRAPHIC", 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := documentPriority(tt.href, tt.desc); got != tt.want {
				t.Errorf("documentPriority(%q, %q) = %d, want %d", tt.href, tt.desc, got, tt.want)
			}
		})
	}
}

func TestParseSECDate(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"20250329", "2025-03-29"},
		{"2025-03-29", "2025-03-29"},
		{"  20241228 ", "2024-12-28"},
		{"2025032", "2025032"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseSECDate(tt.in); got != tt.want {
			t.Errorf("parseSECDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPeriodLabel(t *testing.T) {
	if got := periodLabel("2025-03-29"); got != "Mar 2025" {
		t.Errorf("periodLabel = %q, want Mar 2025", got)
	}
	// Unparseable dates pass through for display rather than erroring.
	if got := periodLabel("unknown"); got != "unknown" {
		t.Errorf("periodLabel fallback = %q, want unknown", got)
	}
}

// edgarTestServer serves a submissions index with three 10-Qs where the
// newest accession 404s on every download strategy.
func edgarTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	var body strings.Builder
	body.WriteString("<SEC-DOCUMENT>0000320193-25-000057.txt\n")
	body.WriteString("CONDENSED CONSOLIDATED STATEMENTS OF OPERATIONS\n")
	for body.Len() < 51000 {
		body.WriteString("Total net sales 95,359 Net income 24,780 Earnings per share 1.65\n")
	}
	filing := body.String()

	submissions := `{
		"cik": "320193",
		"filings": {
			"recent": {
				"form": ["10-Q", "10-Q", "10-Q"],
				"accessionNumber": ["0000320193-25-000900", "0000320193-25-000057", "0000320193-25-000008"],
				"filingDate": ["2025-08-01", "2025-05-02", "2025-01-31"],
				"reportDate": ["2025-06-28", "2025-03-29", "2024-12-28"]
			}
		}
	}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/CIK0000320193.json"):
			fmt.Fprint(w, submissions)
		case strings.Contains(r.URL.Path, "000032019325000900"):
			http.NotFound(w, r)
		case strings.HasSuffix(r.URL.Path, "000032019325000057.txt"),
			strings.HasSuffix(r.URL.Path, "000032019325000008.txt"):
			fmt.Fprint(w, filing)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchPairEmptyPeriodSkipsBadAccession(t *testing.T) {
	srv := edgarTestServer(t)
	c := newClient(nil, "", srv.URL, srv.URL)

	co, err := company.NewCompany("AAPL", "Apple Inc.", "320193")
	if err != nil {
		t.Fatal(err)
	}

	current, previous, err := c.FetchPair(context.Background(), co, "10-Q", "")
	if err != nil {
		t.Fatalf("FetchPair failed: %v", err)
	}
	if current.Accession != "0000320193-25-000057" {
		t.Errorf("current = %s, want the first downloadable accession", current.Accession)
	}
	if previous.Accession != "0000320193-25-000008" {
		t.Errorf("previous = %s", previous.Accession)
	}
	if current.PeriodEnd != "2025-03-29" || previous.PeriodEnd != "2024-12-28" {
		t.Errorf("period ends = %s / %s", current.PeriodEnd, previous.PeriodEnd)
	}
}

func TestFetchPairExplicitPeriodStaysStrict(t *testing.T) {
	srv := edgarTestServer(t)
	c := newClient(nil, "", srv.URL, srv.URL)

	co, err := company.NewCompany("AAPL", "Apple Inc.", "320193")
	if err != nil {
		t.Fatal(err)
	}

	// The Jun 2025 accession is broken; a named period must not silently
	// substitute an older filing.
	if _, _, err := c.FetchPair(context.Background(), co, "10-Q", "Jun 2025"); err == nil {
		t.Fatal("expected error for a period whose filing cannot be downloaded")
	}
}

func TestSubmissionsResponseParsing(t *testing.T) {
	raw := []byte(`{
		"cik": "320193",
		"filings": {
			"recent": {
				"form": ["10-Q", "10-Q/A", "8-K", "10-K"],
				"accessionNumber": ["0000320193-25-000057", "0000320193-25-000060", "0000320193-25-000070", "0000320193-24-000123"],
				"filingDate": ["2025-05-02", "2025-05-10", "2025-06-01", "2024-11-01"],
				"reportDate": ["2025-03-29", "2025-03-29", "2025-05-28", "2024-09-28"]
			}
		}
	}`)
	var resp submissionsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatal(err)
	}
	recent := resp.Filings.Recent
	if len(recent.Form) != 4 || recent.Form[0] != "10-Q" {
		t.Fatalf("unexpected forms: %v", recent.Form)
	}
	if recent.AccessionNumber[3] != "0000320193-24-000123" {
		t.Errorf("accession[3] = %q", recent.AccessionNumber[3])
	}
}
