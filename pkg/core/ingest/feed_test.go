package ingest

import (
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
)

func TestEntryFromItem(t *testing.T) {
	updated := time.Date(2025, 5, 2, 16, 30, 0, 0, time.UTC)
	item := &gofeed.Item{
		Title:         " 10-Q - Apple Inc. (0000320193) (Filer) ",
		Link:          "https://www.sec.gov/Archives/edgar/data/320193/000032019325000057/0000320193-25-000057-index.htm",
		GUID:          "urn:tag:sec.gov,2008:accession-number=0000320193-25-000057",
		UpdatedParsed: &updated,
	}

	entry := entryFromItem(item)
	if entry.Form != "10-Q" {
		t.Errorf("Form = %q, want 10-Q", entry.Form)
	}
	if entry.Accession != "0000320193-25-000057" {
		t.Errorf("Accession = %q", entry.Accession)
	}
	if entry.Filed != "2025-05-02" {
		t.Errorf("Filed = %q, want 2025-05-02", entry.Filed)
	}
}

func TestEntryFromItemFallbacks(t *testing.T) {
	published := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	item := &gofeed.Item{
		Title:           "10-K filing without dash separator in title?",
		Link:            "https://www.sec.gov/nothing-here",
		PublishedParsed: &published,
	}
	entry := entryFromItem(item)
	if entry.Accession != "" {
		t.Errorf("Accession = %q, want empty when link carries none", entry.Accession)
	}
	if entry.Filed != "2024-11-01" {
		t.Errorf("Filed = %q, want published date fallback", entry.Filed)
	}
}

func TestHasNewerFiling(t *testing.T) {
	entries := []FeedEntry{
		{Accession: "a", Filed: "2025-05-02"},
		{Accession: "b", Filed: "not-a-date"},
	}
	if !HasNewerFiling(entries, "2025-01-31") {
		t.Error("entry filed after cutoff not detected")
	}
	if HasNewerFiling(entries, "2025-05-02") {
		t.Error("same-day filing should not count as newer")
	}
	if HasNewerFiling(entries, "bad-date") {
		t.Error("unparseable cutoff should report false")
	}
	if HasNewerFiling(nil, "2025-01-01") {
		t.Error("empty feed should report false")
	}
}
