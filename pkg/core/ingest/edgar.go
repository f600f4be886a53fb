// Package ingest retrieves SEC EDGAR filings: submission metadata,
// document downloads with a strategy cascade, content classification,
// and a local byte cache.
// API documentation: https://www.sec.gov/developer
package ingest

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"filinglens/pkg/core/company"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

const (
	submissionsAPI = "https://data.sec.gov/submissions"
	archivesBase   = "https://www.sec.gov/Archives/edgar/data"
	tickerMapURL   = "https://www.sec.gov/files/company_tickers.json"

	// SEC allows 10 req/s; one request every 300ms keeps a wide margin.
	requestInterval = 300 * time.Millisecond

	defaultUserAgent = "FilingLens/1.0 (contact@example.com)"
)

// ErrFilingNotFound marks lookups where EDGAR has no filing matching
// the requested type or period. Callers can map it to a 404.
var ErrFilingNotFound = errors.New("filing not found")

// Filing is one SEC filing with resolved metadata. Immutable once
// created; raw content is fetched lazily through the cache.
type Filing struct {
	Company    company.Company `json:"company"`
	Accession  string          `json:"accession"`
	FilingDate string          `json:"filing_date"` // YYYY-MM-DD
	PeriodEnd  string          `json:"period_end"`  // YYYY-MM-DD
	FilingType string          `json:"filing_type"` // "10-Q" or "10-K"
}

// FilingMeta is one entry from the submissions index, before download.
type FilingMeta struct {
	Form        string `json:"form"`
	Accession   string `json:"accession"`
	FilingDate  string `json:"date"`
	ReportDate  string `json:"report_date"`
	PeriodLabel string `json:"period"` // "Mar 2025" or "FY Mar 2025"
}

// submissionsResponse mirrors the parallel-array layout of the SEC
// submissions API.
type submissionsResponse struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			ReportDate      []string `json:"reportDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// Client talks to SEC EDGAR. All requests share one rate limiter so
// concurrent callers stay within SEC's fair-access policy.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	classifier *ContentClassifier
	cache      *FilingCache
	userAgent  string

	submissionsBase string
	archivesBase    string
}

// NewClient creates an EDGAR client backed by the given byte cache.
// userAgent must follow SEC's "Company/Version (contact)" convention;
// empty selects the default.
func NewClient(cache *FilingCache, userAgent string) *Client {
	return newClient(cache, userAgent, submissionsAPI, archivesBase)
}

func newClient(cache *FilingCache, userAgent, submissionsBase, archivesBaseURL string) *Client {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		limiter:         rate.NewLimiter(rate.Every(requestInterval), 1),
		classifier:      NewContentClassifier(),
		cache:           cache,
		userAgent:       userAgent,
		submissionsBase: submissionsBase,
		archivesBase:    archivesBaseURL,
	}
}

// get performs one rate-limited request with retries on 429/5xx.
func (c *Client) get(ctx context.Context, url, accept string) ([]byte, int, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", accept)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, resp.StatusCode, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("SEC returned status %d", resp.StatusCode)
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
			continue
		default:
			return body, resp.StatusCode, fmt.Errorf("SEC returned status %d", resp.StatusCode)
		}
	}
	return nil, 0, fmt.Errorf("request failed after retries: %w", lastErr)
}

// fetchSubmissions retrieves the submissions index for a company.
func (c *Client) fetchSubmissions(ctx context.Context, co company.Company) (*submissionsResponse, error) {
	url := fmt.Sprintf("%s/CIK%s.json", c.submissionsBase, co.CIK)
	body, _, err := c.get(ctx, url, "application/json")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch submissions for %s (CIK %s): %w", co.Ticker, co.CIK, err)
	}

	var subs submissionsResponse
	if err := json.Unmarshal(body, &subs); err != nil {
		return nil, fmt.Errorf("failed to parse submissions for %s: %w", co.Ticker, err)
	}
	return &subs, nil
}

// AvailableFilings lists recent 10-Q and 10-K filings for a company,
// newest first. 10-K amendments are excluded. 10-Q history is limited
// to 12 periods and 10-K to 5.
func (c *Client) AvailableFilings(ctx context.Context, co company.Company) (tenQ, tenK []FilingMeta, err error) {
	subs, err := c.fetchSubmissions(ctx, co)
	if err != nil {
		return nil, nil, err
	}

	recent := subs.Filings.Recent
	for i, form := range recent.Form {
		if form == "" || i >= len(recent.AccessionNumber) {
			continue
		}
		filingDate := ""
		if i < len(recent.FilingDate) {
			filingDate = parseSECDate(recent.FilingDate[i])
		}
		reportDate := filingDate
		if i < len(recent.ReportDate) && recent.ReportDate[i] != "" {
			reportDate = parseSECDate(recent.ReportDate[i])
		}

		meta := FilingMeta{
			Form:        form,
			Accession:   recent.AccessionNumber[i],
			FilingDate:  filingDate,
			ReportDate:  reportDate,
			PeriodLabel: periodLabel(reportDate),
		}

		formUpper := strings.ToUpper(form)
		switch {
		case strings.Contains(formUpper, "10-Q"):
			tenQ = append(tenQ, meta)
		case strings.Contains(formUpper, "10-K") && !strings.Contains(formUpper, "/A"):
			meta.PeriodLabel = "FY " + meta.PeriodLabel
			tenK = append(tenK, meta)
		}
	}

	sort.SliceStable(tenQ, func(i, j int) bool { return tenQ[i].ReportDate > tenQ[j].ReportDate })
	sort.SliceStable(tenK, func(i, j int) bool { return tenK[i].ReportDate > tenK[j].ReportDate })

	if len(tenQ) > 12 {
		tenQ = tenQ[:12]
	}
	if len(tenK) > 5 {
		tenK = tenK[:5]
	}
	return tenQ, tenK, nil
}

// FetchPair fetches two consecutive filings of the given type: the one
// matching period (or the latest when period is empty) and the filing
// immediately before it. Both are validated by the content classifier
// and cached on disk. An empty period routes through FetchLatestTwo,
// which tolerates individual bad accessions.
func (c *Client) FetchPair(ctx context.Context, co company.Company, filingType, period string) (current, previous Filing, err error) {
	if period == "" {
		return c.FetchLatestTwo(ctx, co, filingType)
	}

	tenQ, tenK, err := c.AvailableFilings(ctx, co)
	if err != nil {
		return Filing{}, Filing{}, err
	}

	available := tenQ
	if filingType == "10-K" {
		available = tenK
	}
	if len(available) < 2 {
		return Filing{}, Filing{}, fmt.Errorf(
			"only found %d %s filing(s) for %s, need at least 2 for comparison: %w",
			len(available), filingType, co.Ticker, ErrFilingNotFound)
	}

	idx := -1
	for i, f := range available {
		if f.PeriodLabel == period {
			idx = i
			break
		}
	}
	if idx < 0 {
		labels := make([]string, len(available))
		for i, f := range available {
			labels[i] = f.PeriodLabel
		}
		return Filing{}, Filing{}, fmt.Errorf(
			"period %q not found, available: %s: %w", period, strings.Join(labels, ", "), ErrFilingNotFound)
	}
	if idx >= len(available)-1 {
		return Filing{}, Filing{}, fmt.Errorf("no previous filing available for comparison with %s: %w", period, ErrFilingNotFound)
	}

	filings := make([]Filing, 0, 2)
	for _, meta := range []FilingMeta{available[idx], available[idx+1]} {
		f, err := c.fetchOne(ctx, co, meta, filingType)
		if err != nil {
			return Filing{}, Filing{}, err
		}
		filings = append(filings, f)
	}
	return filings[0], filings[1], nil
}

// FetchLatestTwo walks the available filings of the given type, newest
// first, until two download and validate successfully, skipping any
// that fail. This tolerates individual bad accessions without failing
// the whole comparison.
func (c *Client) FetchLatestTwo(ctx context.Context, co company.Company, filingType string) (current, previous Filing, err error) {
	tenQ, tenK, err := c.AvailableFilings(ctx, co)
	if err != nil {
		return Filing{}, Filing{}, err
	}
	available := tenQ
	if filingType == "10-K" {
		available = tenK
	}
	if len(available) < 2 {
		return Filing{}, Filing{}, fmt.Errorf(
			"only found %d %s filing(s) for %s, need at least 2 for comparison: %w",
			len(available), filingType, co.Ticker, ErrFilingNotFound)
	}

	var ok []Filing
	for _, meta := range available {
		if len(ok) >= 2 {
			break
		}
		f, err := c.fetchOne(ctx, co, meta, filingType)
		if err != nil {
			slog.Warn("skipping filing", "ticker", co.Ticker, "accession", meta.Accession, "err", err)
			continue
		}
		ok = append(ok, f)
	}
	if len(ok) < 2 {
		return Filing{}, Filing{}, fmt.Errorf(
			"could not obtain 2 valid %s filings for %s (tried %d): %w",
			filingType, co.Ticker, len(available), ErrFilingNotFound)
	}
	return ok[0], ok[1], nil
}

func (c *Client) fetchOne(ctx context.Context, co company.Company, meta FilingMeta, filingType string) (Filing, error) {
	filing := Filing{
		Company:    co,
		Accession:  meta.Accession,
		FilingDate: meta.FilingDate,
		PeriodEnd:  meta.ReportDate,
		FilingType: filingType,
	}

	if c.cache != nil && c.cache.Has(co.Ticker, meta.Accession) {
		slog.Debug("using cached filing", "ticker", co.Ticker, "accession", meta.Accession)
		return filing, nil
	}

	content, err := c.downloadDocument(ctx, co, meta.Accession)
	if err != nil {
		return Filing{}, fmt.Errorf("failed to download %s: %w", meta.Accession, err)
	}
	if v := c.classifier.Classify(content); !v.Valid {
		return Filing{}, fmt.Errorf("downloaded content rejected for %s: %s", meta.Accession, v.Reason)
	}
	if c.cache != nil {
		if err := c.cache.Put(co.Ticker, meta.Accession, content); err != nil {
			return Filing{}, err
		}
	}
	slog.Info("downloaded filing", "ticker", co.Ticker, "accession", meta.Accession, "bytes", len(content))
	return filing, nil
}

// RawContent returns the cached bytes for a filing, downloading them if
// necessary.
func (c *Client) RawContent(ctx context.Context, f Filing) ([]byte, error) {
	if c.cache != nil && c.cache.Has(f.Company.Ticker, f.Accession) {
		return c.cache.Get(f.Company.Ticker, f.Accession)
	}
	content, err := c.downloadDocument(ctx, f.Company, f.Accession)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Put(f.Company.Ticker, f.Accession, content); err != nil {
			return nil, err
		}
	}
	return content, nil
}

// =============================================================================
// DOWNLOAD STRATEGY CASCADE
// =============================================================================

// filingSummary mirrors the parts of FilingSummary.xml we read.
type filingSummary struct {
	Reports []struct {
		Instance     string `xml:"instance,attr"`
		HTMLFileName string `xml:"HtmlFileName"`
		ShortName    string `xml:"ShortName"`
		LongName     string `xml:"LongName"`
	} `xml:"MyReports>Report"`
}

// downloadDocument tries, in order: the complete submission .txt file,
// documents named by FilingSummary.xml (instance document first), and
// finally documents linked from the index page. Every candidate is
// gated by the content classifier.
func (c *Client) downloadDocument(ctx context.Context, co company.Company, accession string) ([]byte, error) {
	parts := strings.Split(accession, "-")
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid accession format: %s", accession)
	}
	cikClean := strings.TrimLeft(parts[0], "0")
	if cikClean == "" {
		cikClean = "0"
	}
	accessionClean := strings.ReplaceAll(accession, "-", "")
	baseURL := fmt.Sprintf("%s/%s/%s", c.archivesBase, cikClean, accessionClean)

	const htmlAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

	// Strategy 1: complete submission text file.
	if body, status, err := c.get(ctx, baseURL+"/"+accessionClean+".txt", htmlAccept); err == nil && status == http.StatusOK && len(body) > 50000 {
		if v := c.classifier.Classify(body); v.Valid {
			slog.Debug("download via complete submission", "accession", accession)
			return body, nil
		} else {
			slog.Debug("complete submission rejected", "accession", accession, "reason", v.Reason)
		}
	}

	// Strategy 2: FilingSummary.xml.
	if body, status, err := c.get(ctx, baseURL+"/FilingSummary.xml", htmlAccept); err == nil && status == http.StatusOK {
		if doc := c.tryFilingSummary(ctx, baseURL, body); doc != nil {
			return doc, nil
		}
	}

	// Strategy 3: index pages.
	for _, indexURL := range []string{
		baseURL + "/" + accession + "-index.htm",
		baseURL + "/index.html",
	} {
		body, status, err := c.get(ctx, indexURL, htmlAccept)
		if err != nil || status != http.StatusOK {
			continue
		}
		if doc := c.tryIndexPage(ctx, baseURL, body); doc != nil {
			return doc, nil
		}
		break
	}

	return nil, fmt.Errorf("all download strategies failed for %s", accession)
}

func (c *Client) tryFilingSummary(ctx context.Context, baseURL string, summaryXML []byte) []byte {
	var summary filingSummary
	if err := xml.Unmarshal(summaryXML, &summary); err != nil {
		slog.Debug("failed to parse FilingSummary.xml", "err", err)
		return nil
	}
	if len(summary.Reports) == 0 {
		return nil
	}

	// The instance document is the filing itself, without viewer pop-ups.
	for _, r := range summary.Reports {
		if strings.HasSuffix(r.Instance, ".htm") {
			if doc := c.tryCandidate(ctx, baseURL+"/"+r.Instance, 20000); doc != nil {
				return doc
			}
			break
		}
	}

	// Fall back to prioritized R-files.
	type candidate struct {
		priority int
		filename string
	}
	var candidates []candidate
	for _, r := range summary.Reports {
		filename := strings.TrimSpace(r.HTMLFileName)
		if filename == "" || strings.HasSuffix(strings.ToLower(filename), ".xml") {
			continue
		}
		combined := strings.ToLower(r.ShortName + " " + r.LongName)
		priority := 5
		switch {
		case strings.Contains(combined, "complete") || strings.Contains(combined, "submission"):
			priority = 1
		case strings.Contains(combined, "statement") && strings.Contains(combined, "operation"):
			priority = 2
		case strings.Contains(combined, "10-q") || strings.Contains(combined, "10q"):
			priority = 3
		case strings.Contains(combined, "document"):
			priority = 4
		}
		candidates = append(candidates, candidate{priority, filename})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].priority < candidates[j].priority })

	for i, cand := range candidates {
		if i >= 5 {
			break
		}
		if doc := c.tryCandidate(ctx, baseURL+"/"+cand.filename, 0); doc != nil {
			return doc
		}
	}
	return nil
}

func (c *Client) tryIndexPage(ctx context.Context, baseURL string, indexHTML []byte) []byte {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(indexHTML)))
	if err != nil {
		return nil
	}

	type link struct {
		priority int
		href     string
	}
	var links []link
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		a := cells.First().Find("a[href]")
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		desc := strings.TrimSpace(cells.Eq(1).Text())
		links = append(links, link{documentPriority(href, desc), href})
	})
	sort.SliceStable(links, func(i, j int) bool { return links[i].priority < links[j].priority })

	for i, l := range links {
		if i >= 5 {
			break
		}
		url := l.href
		if !strings.HasPrefix(url, "http") {
			url = baseURL + "/" + strings.TrimPrefix(url, "/")
		}
		if doc := c.tryCandidate(ctx, url, 0); doc != nil {
			return doc
		}
	}
	return nil
}

func (c *Client) tryCandidate(ctx context.Context, url string, minSize int) []byte {
	body, status, err := c.get(ctx, url, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil || status != http.StatusOK || len(body) < minSize {
		return nil
	}
	v := c.classifier.Classify(body)
	if !v.Valid {
		slog.Debug("candidate rejected", "url", url, "reason", v.Reason)
		return nil
	}
	slog.Debug("candidate accepted", "url", url, "reason", v.Reason)
	return body
}

var tenQFileRe = regexp.MustCompile(`d\d+.*10q`)

// documentPriority scores index-page document links; lower wins. Pure
// XBRL XML instance documents are pushed to the bottom since they carry
// no prose, while XBRL-enhanced HTML is acceptable.
func documentPriority(href, description string) int {
	hrefLower := strings.ToLower(href)
	descLower := strings.ToLower(description)
	combined := hrefLower + " " + descLower

	if strings.HasSuffix(hrefLower, ".xml") && strings.Contains(combined, "instance") {
		return 99
	}
	if strings.Contains(hrefLower, ".txt") && !strings.Contains(descLower, "exhibit") {
		return 1
	}
	if strings.Contains(hrefLower, ".htm") && !strings.Contains(descLower, "exhibit") {
		if strings.Contains(hrefLower, "10q") || strings.Contains(hrefLower, "10-q") || tenQFileRe.MatchString(hrefLower) {
			return 2
		}
		return 3
	}
	if strings.Contains(combined, "10-k") || strings.Contains(combined, "10k") {
		return 5
	}
	if strings.Contains(descLower, "exhibit") {
		return 10
	}
	return 6
}

// =============================================================================
// TICKER LOOKUP
// =============================================================================

// LookupTicker resolves a ticker through SEC's company_tickers.json,
// for companies not present in the local directory.
func (c *Client) LookupTicker(ctx context.Context, ticker string) (company.Company, error) {
	body, _, err := c.get(ctx, tickerMapURL, "application/json")
	if err != nil {
		return company.Company{}, fmt.Errorf("failed to fetch ticker mapping: %w", err)
	}

	var mapping map[string]struct {
		CIK    int    `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(body, &mapping); err != nil {
		return company.Company{}, fmt.Errorf("failed to parse ticker mapping: %w", err)
	}

	upper := strings.ToUpper(strings.TrimSpace(ticker))
	for _, entry := range mapping {
		if strings.ToUpper(entry.Ticker) == upper {
			return company.NewCompany(upper, entry.Title, fmt.Sprintf("%d", entry.CIK))
		}
	}
	return company.Company{}, fmt.Errorf("ticker %s not found in SEC database", ticker)
}

// parseSECDate normalizes SEC date strings to YYYY-MM-DD. YYYYMMDD
// passes through a reformat; anything else is returned unchanged.
func parseSECDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 8 && isDigits(s) {
		return s[:4] + "-" + s[4:6] + "-" + s[6:8]
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// periodLabel renders a report date as "Mar 2025" for display.
func periodLabel(reportDate string) string {
	t, err := time.Parse("2006-01-02", reportDate)
	if err != nil {
		return reportDate
	}
	return t.Format("Jan 2006")
}
