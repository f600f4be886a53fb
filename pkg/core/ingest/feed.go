package ingest

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const browseEdgarURL = "https://www.sec.gov/cgi-bin/browse-edgar"

// FeedEntry is one item from the EDGAR recent-filings Atom feed.
type FeedEntry struct {
	Title     string `json:"title"`
	Form      string `json:"form"`
	Accession string `json:"accession"`
	Filed     string `json:"filed"` // YYYY-MM-DD
	Link      string `json:"link"`
}

// FeedReader polls EDGAR's Atom feed for newly filed documents. It is
// used to surface fresh 10-Q/10-K filings without refetching the full
// submissions index.
type FeedReader struct {
	parser    *gofeed.Parser
	userAgent string
}

func NewFeedReader(userAgent string) *FeedReader {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	return &FeedReader{parser: p, userAgent: userAgent}
}

var accessionRe = regexp.MustCompile(`\d{10}-\d{2}-\d{6}`)

// RecentFilings returns the latest filings of the given form type for a
// CIK, newest first. formType may be empty to include all forms.
func (r *FeedReader) RecentFilings(ctx context.Context, cik, formType string, limit int) ([]FeedEntry, error) {
	if limit <= 0 || limit > 40 {
		limit = 40
	}
	q := url.Values{}
	q.Set("action", "getcompany")
	q.Set("CIK", cik)
	q.Set("type", formType)
	q.Set("dateb", "")
	q.Set("owner", "include")
	q.Set("count", fmt.Sprintf("%d", limit))
	q.Set("output", "atom")

	feed, err := r.parser.ParseURLWithContext(browseEdgarURL+"?"+q.Encode(), ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch EDGAR feed for CIK %s: %w", cik, err)
	}

	entries := make([]FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, entryFromItem(item))
	}
	return entries, nil
}

func entryFromItem(item *gofeed.Item) FeedEntry {
	entry := FeedEntry{
		Title: strings.TrimSpace(item.Title),
		Link:  item.Link,
	}
	if m := accessionRe.FindString(item.Link + " " + item.GUID); m != "" {
		entry.Accession = m
	}
	// Feed titles look like "10-Q - Apple Inc. (0000320193) (Filer)".
	if idx := strings.Index(entry.Title, " - "); idx > 0 {
		entry.Form = strings.TrimSpace(entry.Title[:idx])
	}
	if item.UpdatedParsed != nil {
		entry.Filed = item.UpdatedParsed.Format("2006-01-02")
	} else if item.PublishedParsed != nil {
		entry.Filed = item.PublishedParsed.Format("2006-01-02")
	}
	return entry
}

// HasNewerFiling reports whether any feed entry was filed after the
// given date (YYYY-MM-DD). Unparseable dates count as not newer.
func HasNewerFiling(entries []FeedEntry, since string) bool {
	cutoff, err := time.Parse("2006-01-02", since)
	if err != nil {
		return false
	}
	for _, e := range entries {
		t, err := time.Parse("2006-01-02", e.Filed)
		if err != nil {
			continue
		}
		if t.After(cutoff) {
			return true
		}
	}
	return false
}
