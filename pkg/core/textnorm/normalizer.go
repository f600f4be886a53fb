// Package textnorm turns raw SEC filing artifacts into clean text.
//
// Filings arrive in three shapes: complete submission files bundling
// several <DOCUMENT> records, standalone HTML (sometimes XBRL-flavored),
// and legacy plain text. The normalizer picks the most useful record,
// strips EDGAR site furniture and XBRL reference pop-ups, flattens
// financial tables into "label: value" lines, and normalizes whitespace.
package textnorm

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrEmptyContent is returned when cleaning leaves nothing behind.
// Downstream chunking cannot operate on an empty document, so this is a
// hard failure rather than a degraded result.
var ErrEmptyContent = errors.New("extracted text is empty after cleaning")

// htmlDetectWindow is how far into a record we look for tag-like markup.
// EDGAR headers can run tens of kilobytes before the first tag, so a
// short window mis-classifies HTML documents as plain text.
const htmlDetectWindow = 20000

var (
	documentRe    = regexp.MustCompile(`(?is)<DOCUMENT>(.*?)</DOCUMENT>`)
	textSectionRe = regexp.MustCompile(`(?is)<TEXT>(.*?)</TEXT>`)
	docTypeRe     = regexp.MustCompile(`(?is)<TYPE>(.*?)</TYPE>`)
	docDescRe     = regexp.MustCompile(`(?is)<DESCRIPTION>(.*?)</DESCRIPTION>`)
	htmlTagRe     = regexp.MustCompile(`(?i)<[a-z][\s\S]*>`)

	pageNumberRe = regexp.MustCompile(`(?i)Page \d+ of \d+`)
	dashRunRe    = regexp.MustCompile(`-{3,}`)
	spaceRunRe   = regexp.MustCompile(` +`)
	newlineRunRe = regexp.MustCompile(`\n\s*\n\s*\n+`)

	navClassRe = regexp.MustCompile(`(?i)nav|menu|header|footer|sidebar`)
	defrefIDRe = regexp.MustCompile(`(?i)^defref_`)

	// Multi-line EDGAR website boilerplate runs.
	siteBoilerplateRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)Directory List of.*?Search Options`),
		regexp.MustCompile(`(?is)Skip to Main Content.*?About What We Do`),
		regexp.MustCompile(`(?is)Quick EDGAR Tutorial.*?Company Filings`),
		regexp.MustCompile(`(?is)Site Map.*?Accessibility.*?Contracts.*?Privacy`),
		regexp.MustCompile(`(?is)Investor\.gov.*?USA\.gov`),
		regexp.MustCompile(`(?is)No FEAR Act.*?EEO Data`),
		regexp.MustCompile(`(?is)Open Government.*?Plain Writing`),
	}
)

// Site-furniture phrases removed wherever they appear in extracted text.
var sitePhrases = []string{
	"Directory List of",
	"Search Options",
	"Skip to Main Content",
	"About What We Do",
	"Commissioners",
	"Securities Laws",
	"Quick EDGAR Tutorial",
	"Company Filings Search",
	"Requesting Public Documents",
	"Site Map",
	"Accessibility",
	"Inspector General",
	"No FEAR Act",
	"EEO Data",
	"Open Government",
	"Plain Writing",
	"Investor.gov",
	"USA.gov",
}

// Keywords that mark a short line as navigation rather than content.
var navLineKeywords = []string{
	"site map", "accessibility", "privacy", "contact", "careers",
	"investor.gov", "usa.gov", "skip to", "search options", "directory list",
}

// Keywords signalling that an XBRL table carries financial statements.
var financialTableKeywords = []string{
	"revenue", "sales", "net income", "operating income", "earnings",
	"income statement", "balance sheet", "cash flow", "financial",
	"consolidated", "condensed", "statement of operations",
}

// Visible anchor texts for links that are pure site navigation.
var navLinkTexts = []string{"site map", "accessibility", "privacy", "contact", "careers"}

// Normalizer extracts clean text from raw filing bytes.
type Normalizer struct{}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize converts a raw filing artifact into cleaned text.
//
// The only failure mode for non-empty input is ErrEmptyContent; every
// unrecognized document shape degrades to a plainer extraction path.
func (n *Normalizer) Normalize(raw []byte) (string, error) {
	// Tolerate invalid byte sequences the way EDGAR's legacy encodings demand.
	text := strings.ToValidUTF8(string(raw), "")

	if strings.Contains(text, "<DOCUMENT>") && strings.Contains(text, "</DOCUMENT>") {
		return n.fromSubmission(text)
	}
	if isHTML(text) {
		return n.fromHTML(text)
	}
	return n.cleanPlainText(text)
}

// isHTML reports whether a tag-like pattern appears early in the text.
func isHTML(text string) bool {
	if len(text) > htmlDetectWindow {
		text = text[:htmlDetectWindow]
	}
	return htmlTagRe.MatchString(text)
}

// =============================================================================
// MULTI-DOCUMENT SUBMISSION SELECTION
// =============================================================================

// recordPriority scores one <DOCUMENT> record. Lower wins.
//
//	1: 10-Q declared and HTML-formatted
//	2: 10-Q declared, other format
//	3: HTML-formatted
//	4: 10-K declared
func recordPriority(doc string) int {
	docType := ""
	if m := docTypeRe.FindStringSubmatch(doc); m != nil {
		docType = strings.ToLower(strings.TrimSpace(m[1]))
	}
	desc := ""
	if m := docDescRe.FindStringSubmatch(doc); m != nil {
		desc = strings.ToLower(strings.TrimSpace(m[1]))
	}

	head := strings.ToLower(doc)
	if len(head) > 500 {
		head = head[:500]
	}
	looksHTML := strings.Contains(docType, "html") ||
		strings.Contains(desc, "htm") ||
		strings.Contains(head, "<html")

	switch {
	case strings.Contains(desc, "10-q") || strings.Contains(docType, "10-q"):
		if looksHTML {
			return 1
		}
		return 2
	case looksHTML:
		return 3
	case strings.Contains(desc, "10-k") || strings.Contains(docType, "10-k"):
		return 4
	}
	return 999
}

// isXBRLRecord reports whether a record is explicitly an XBRL/XML
// instance document. Those carry machine metadata, never prose.
func isXBRLRecord(doc string) bool {
	lower := strings.ToLower(doc)
	head := lower
	if len(head) > 200 {
		head = head[:200]
	}
	if !strings.Contains(lower, "xbrl") && !strings.Contains(head, "xml") {
		return false
	}
	return strings.Contains(lower, "idea: xbrl document") || strings.Contains(lower, "type>xml")
}

// fromSubmission selects the best record from a complete submission file
// and extracts its text. The fallback chain never fails for non-empty
// input: best record, first non-XBRL record, first record, whole file.
func (n *Normalizer) fromSubmission(submission string) (string, error) {
	matches := documentRe.FindAllStringSubmatch(submission, -1)
	if len(matches) == 0 {
		return n.cleanPlainText(submission)
	}

	docs := make([]string, 0, len(matches))
	for _, m := range matches {
		docs = append(docs, m[1])
	}

	best := ""
	bestPriority := 999
	for _, doc := range docs {
		if isXBRLRecord(doc) {
			continue
		}
		if p := recordPriority(doc); p < bestPriority {
			best = doc
			bestPriority = p
		}
	}

	if best != "" {
		return n.fromRecord(best)
	}

	// No scored record: take the first non-XBRL record with a TEXT section.
	for _, doc := range docs {
		if isXBRLRecord(doc) {
			continue
		}
		if m := textSectionRe.FindStringSubmatch(doc); m != nil {
			if isHTML(m[1]) {
				return n.fromHTML(m[1])
			}
			return n.cleanPlainText(m[1])
		}
	}

	// Then the first record unconditionally.
	if m := textSectionRe.FindStringSubmatch(docs[0]); m != nil {
		return n.cleanPlainText(m[1])
	}
	return n.cleanPlainText(submission)
}

// fromRecord extracts the TEXT section of a selected record, falling
// back to the whole record body when no TEXT tags are present.
func (n *Normalizer) fromRecord(doc string) (string, error) {
	body := doc
	if m := textSectionRe.FindStringSubmatch(doc); m != nil {
		body = m[1]
	}
	if isHTML(body) {
		return n.fromHTML(body)
	}
	return n.cleanPlainText(body)
}

// =============================================================================
// HTML CLEANUP
// =============================================================================

// isXBRLFlavored detects HTML pages built from XBRL viewer output.
// Generic stripping on these pages discards the financial tables, so
// they route to the table-flattening path instead.
func isXBRLFlavored(html string) bool {
	lower := strings.ToLower(html)
	return strings.Contains(lower, "entity information [line items]") ||
		strings.Contains(lower, "xbrl document") ||
		strings.Contains(lower, "period type:") ||
		strings.HasPrefix(strings.TrimSpace(html), "<?xml") ||
		strings.Contains(lower, "<xbrl")
}

func (n *Normalizer) fromHTML(html string) (string, error) {
	if isXBRLFlavored(html) {
		return n.flattenXBRL(html)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Unparseable markup still has to yield something.
		slog.Warn("html parse failed, falling back to plain text", "err", err)
		return n.cleanPlainText(html)
	}

	removeNoise(doc)

	// Navigation landmarks and anything named like one.
	doc.Find("nav, header, footer").Remove()
	doc.Find("[class]").Each(func(_ int, sel *goquery.Selection) {
		if class, _ := sel.Attr("class"); navClassRe.MatchString(class) {
			sel.Remove()
		}
	})
	doc.Find("[id]").Each(func(_ int, sel *goquery.Selection) {
		if id, _ := sel.Attr("id"); navClassRe.MatchString(id) && !defrefIDRe.MatchString(id) {
			sel.Remove()
		}
	})

	// Links that are site furniture rather than content.
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		text := strings.ToLower(sel.Text())
		for _, phrase := range navLinkTexts {
			if strings.Contains(text, phrase) {
				sel.Remove()
				return
			}
		}
		href, _ := sel.Attr("href")
		href = strings.ToLower(href)
		if strings.Contains(href, "sec.gov") &&
			(strings.Contains(href, "/about") || strings.Contains(href, "/divisions") || strings.Contains(href, "/careers")) {
			sel.Remove()
		}
	})

	text := doc.Text()
	for _, re := range siteBoilerplateRes {
		text = re.ReplaceAllString(text, "")
	}
	for _, phrase := range sitePhrases {
		text = strings.ReplaceAll(text, phrase, "")
	}

	return n.cleanPlainText(text)
}

// removeNoise strips elements that never carry filing content: scripts,
// styles, hidden XBRL definition pop-ups, and reference-data tables.
func removeNoise(doc *goquery.Document) {
	doc.Find("script, style, meta, link, noscript").Remove()
	doc.Find("[style*='display:none'], [style*='display: none']").Remove()
	doc.Find(".authRefData").Remove()
	doc.Find("table[id]").Each(func(_ int, sel *goquery.Selection) {
		if id, _ := sel.Attr("id"); defrefIDRe.MatchString(id) {
			sel.Remove()
		}
	})
}

// =============================================================================
// XBRL TABLE FLATTENING
// =============================================================================

// flattenXBRL extracts financial tables from XBRL-flavored HTML as
// "label: value1, value2" lines so the KPI patterns can match them the
// same way they match prose.
func (n *Normalizer) flattenXBRL(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		slog.Warn("xbrl html parse failed, falling back to plain text", "err", err)
		return n.cleanPlainText(html)
	}

	removeNoise(doc)

	var lines []string
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		if !tableIsFinancial(table) {
			return
		}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td, th")
			if cells.Length() < 2 {
				return
			}
			label := collapseSpaces(cells.First().Text())
			var values []string
			cells.Slice(1, cells.Length()).Each(func(_ int, cell *goquery.Selection) {
				if v := cleanCellValue(cell.Text()); v != "" {
					values = append(values, v)
				}
			})
			if label != "" && len(values) > 0 {
				lines = append(lines, fmt.Sprintf("%s: %s", label, strings.Join(values, ", ")))
			}
		})
	})

	if len(lines) > 0 {
		combined := strings.Join(lines, "\n") + "\n\n" + collapseSpaces(doc.Text())
		return n.cleanPlainText(combined)
	}

	// No table qualified as financial: dump every row pipe-delimited so
	// at least the raw cell data survives.
	var rows []string
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			if t := collapseSpaces(cell.Text()); t != "" {
				cells = append(cells, t)
			}
		})
		if len(cells) > 0 {
			rows = append(rows, strings.Join(cells, " | "))
		}
	})
	if len(rows) > 0 {
		return n.cleanPlainText(strings.Join(rows, "\n"))
	}

	return n.cleanPlainText(collapseSpaces(doc.Text()))
}

// tableIsFinancial reports whether a table's text mentions a financial
// statement keyword or the table carries an XBRL "report" class.
func tableIsFinancial(table *goquery.Selection) bool {
	text := strings.ToLower(table.Text())
	for _, kw := range financialTableKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	class, _ := table.Attr("class")
	return strings.Contains(strings.ToLower(class), "report")
}

var numericCellRe = regexp.MustCompile(`^[\d,.\-]+`)

// cleanCellValue normalizes a table cell to a numeric-looking token.
// Parenthesized negatives become a leading minus; non-numeric cells
// collapse to the empty string.
func cleanCellValue(v string) string {
	v = strings.ReplaceAll(v, " ", "")
	v = strings.ReplaceAll(v, "&nbsp;", "")
	v = strings.ReplaceAll(v, "&#160;", "")
	v = strings.ReplaceAll(v, "(", "-")
	v = strings.ReplaceAll(v, ")", "")
	v = strings.Join(strings.Fields(v), "")
	if v == "" || v == "—" || v == "-" {
		return ""
	}
	if strings.HasPrefix(v, "$") || numericCellRe.MatchString(v) {
		return v
	}
	return ""
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

// =============================================================================
// WHITESPACE NORMALIZATION (shared by all paths)
// =============================================================================

// cleanPlainText applies the final normalization pass: collapse space
// runs, keep paragraph breaks but no more, drop page-number artifacts,
// shorten separator runs, and filter short navigation lines.
func (n *Normalizer) cleanPlainText(text string) (string, error) {
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = newlineRunRe.ReplaceAllString(text, "\n\n")
	text = pageNumberRe.ReplaceAllString(text, "")
	text = dashRunRe.ReplaceAllString(text, "---")

	lines := strings.Split(text, "\n")
	filtered := lines[:0]
	for _, line := range lines {
		lower := strings.ToLower(strings.TrimSpace(line))
		if len(lower) < 50 && containsAny(lower, navLineKeywords) {
			continue
		}
		switch lower {
		case "about", "what we do", "commissioners", "divisions", "reports":
			continue
		}
		filtered = append(filtered, line)
	}
	text = strings.TrimSpace(strings.Join(filtered, "\n"))

	if text == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
