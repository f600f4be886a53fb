package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"filinglens/pkg/core/company"
	"filinglens/pkg/core/ingest"
	"filinglens/pkg/core/report"
)

var (
	tickerRe       = regexp.MustCompile(`^[A-Z]{1,5}$`)
	periodMonthRe  = regexp.MustCompile(`^(FY\s+)?[A-Z][a-z]{2}\s+\d{4}$`)
	periodLegacyRe = regexp.MustCompile(`^\d{4}(-Q[1-4])?$`)
)

// AnalyzeRequest is the body for POST /api/analyze.
type AnalyzeRequest struct {
	Ticker     string `json:"ticker"`
	FilingType string `json:"filing_type"`
	Period     string `json:"period,omitempty"`
}

// CompanyInfo is one entry in the companies listing.
type CompanyInfo struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// CompaniesResponse is the body of GET /api/companies.
type CompaniesResponse struct {
	Companies []CompanyInfo `json:"companies"`
}

// FilingInfo describes one available filing.
type FilingInfo struct {
	Accession string `json:"accession"`
	Date      string `json:"date"`
	Period    string `json:"period"`
	Form      string `json:"form"`
}

// AvailableFilingsResponse is the body of GET /api/filings/{ticker}.
type AvailableFilingsResponse struct {
	Ticker     string       `json:"ticker"`
	Filings10Q []FilingInfo `json:"filings_10q"`
	Filings10K []FilingInfo `json:"filings_10k"`
}

// RecentFilingsResponse is the body of GET /api/filings/{ticker}/recent.
// HasNewer is present only when the request carried a ?since date.
type RecentFilingsResponse struct {
	Ticker   string             `json:"ticker"`
	Entries  []ingest.FeedEntry `json:"entries"`
	HasNewer *bool              `json:"has_newer,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	resp := CompaniesResponse{Companies: []CompanyInfo{}}
	for _, t := range s.dir.Tickers() {
		if co, ok := s.dir.Get(t); ok {
			resp.Companies = append(resp.Companies, CompanyInfo{Ticker: co.Ticker, Name: co.Name})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolve answers from the configured directory first and falls back
// to the SEC ticker map for anything not listed there.
func (s *Server) resolve(ctx context.Context, ticker string) (company.Company, error) {
	co, err := s.dir.Resolve(ticker)
	if err == nil {
		return co, nil
	}
	if s.filings != nil {
		return s.filings.LookupTicker(ctx, ticker)
	}
	return company.Company{}, err
}

func (s *Server) handleFilings(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "ticker")))
	if !tickerRe.MatchString(ticker) {
		writeError(w, http.StatusBadRequest, "Invalid ticker")
		return
	}

	co, err := s.resolve(r.Context(), ticker)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	tenQ, tenK, err := s.filings.AvailableFilings(r.Context(), co)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := AvailableFilingsResponse{
		Ticker:     ticker,
		Filings10Q: filingInfos(tenQ, "10-Q"),
		Filings10K: filingInfos(tenK, "10-K"),
	}
	writeJSON(w, http.StatusOK, resp)
}

func filingInfos(metas []ingest.FilingMeta, form string) []FilingInfo {
	infos := make([]FilingInfo, 0, len(metas))
	for _, m := range metas {
		infos = append(infos, FilingInfo{
			Accession: m.Accession,
			Date:      m.FilingDate,
			Period:    m.PeriodLabel,
			Form:      form,
		})
	}
	return infos
}

// handleRecentFilings answers from EDGAR's Atom feed, which updates
// ahead of the submissions index. With ?since=YYYY-MM-DD the response
// also reports whether anything was filed after that date.
func (s *Server) handleRecentFilings(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "ticker")))
	if !tickerRe.MatchString(ticker) {
		writeError(w, http.StatusBadRequest, "Invalid ticker")
		return
	}
	if s.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "recent filings feed not configured")
		return
	}

	co, err := s.resolve(r.Context(), ticker)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	entries, err := s.feed.RecentFilings(r.Context(), co.CIK, "", 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := RecentFilingsResponse{Ticker: ticker, Entries: entries}
	if since := strings.TrimSpace(r.URL.Query().Get("since")); since != "" {
		newer := ingest.HasNewerFiling(entries, since)
		resp.HasNewer = &newer
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if !tickerRe.MatchString(ticker) {
		writeError(w, http.StatusBadRequest, "Ticker must be 1-5 letters (A-Z)")
		return
	}

	filingType := strings.ToUpper(strings.TrimSpace(req.FilingType))
	if filingType == "" {
		filingType = "10-Q"
	}
	if filingType != "10-Q" && filingType != "10-K" {
		writeError(w, http.StatusBadRequest, "Filing type must be '10-Q' or '10-K'")
		return
	}

	period := strings.TrimSpace(req.Period)
	if period != "" && !periodMonthRe.MatchString(period) && !periodLegacyRe.MatchString(period) {
		writeError(w, http.StatusBadRequest, "Period must be 'Mon YYYY' format (e.g., 'Mar 2025')")
		return
	}

	co, err := s.resolve(r.Context(), ticker)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AnalyzeTimeout)
	defer cancel()

	result, err := s.analyzer.Run(ctx, co, filingType, period)
	if err != nil {
		analysesTotal.WithLabelValues("error").Inc()
		status := http.StatusInternalServerError
		if errors.Is(err, ingest.ErrFilingNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	analysesTotal.WithLabelValues("ok").Inc()

	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		html, err := report.RenderHTML(result.ReportMarkdown)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to render report")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(html)); err != nil {
			slog.Error("failed to write HTML response", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}
