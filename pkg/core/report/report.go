// Package report renders period-over-period analysis into Markdown
// research memos and HTML.
package report

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filinglens/pkg/core/chunk"
	"filinglens/pkg/core/company"
	"filinglens/pkg/core/delta"
	"filinglens/pkg/core/kpi"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const maxEvidenceChunks = 8

// Generator builds Markdown research reports for one company.
type Generator struct {
	company company.Company
	now     func() time.Time
}

func NewGenerator(co company.Company) *Generator {
	return &Generator{company: co, now: time.Now}
}

// Generate renders the full report: header, current snapshot, KPI
// comparison table, change summary, and cited evidence.
func (g *Generator) Generate(current, previous *kpi.Snapshot, evidence []chunk.DocumentChunk) string {
	sections := []string{
		g.header(),
		g.snapshotSection(current),
		g.comparisonTable(current, previous),
		g.changesSection(current, previous),
		g.evidenceSection(evidence),
	}
	return strings.Join(sections, "\n\n")
}

// RenderHTML converts a Markdown report to HTML with table support.
func RenderHTML(markdown string) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render report HTML: %w", err)
	}
	return buf.String(), nil
}

// Save writes a report under baseDir as TICKER_timestamp.md.
func Save(reportMD string, co company.Company, baseDir string) (string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s.md", co.Ticker, time.Now().Format("20060102_150405"))
	path := filepath.Join(baseDir, name)
	if err := os.WriteFile(path, []byte(reportMD), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

func (g *Generator) header() string {
	return fmt.Sprintf(`# Equity Research Report: %s (%s)

**Generated:** %s
**CIK:** %s

---`, g.company.Name, g.company.Ticker, g.now().Format("2006-01-02 15:04:05"), g.company.CIK)
}

func (g *Generator) snapshotSection(s *kpi.Snapshot) string {
	lines := []string{"## Snapshot", "",
		fmt.Sprintf("**Period End:** %s", s.PeriodEnd), "",
		"### Key Metrics", ""}

	if s.Revenue != nil {
		lines = append(lines, fmt.Sprintf("- **Revenue:** $%sM", withCommas(*s.Revenue)))
	}
	if s.NetIncome != nil {
		lines = append(lines, fmt.Sprintf("- **Net Income:** $%sM", withCommas(*s.NetIncome)))
	}
	if s.EPS != nil {
		lines = append(lines, fmt.Sprintf("- **EPS:** $%.2f", *s.EPS))
	}
	if s.OperatingMargin != nil {
		lines = append(lines, fmt.Sprintf("- **Operating Margin:** %.1f%%", *s.OperatingMargin*100))
	}
	if s.GrossMargin != nil {
		lines = append(lines, fmt.Sprintf("- **Gross Margin:** %.1f%%", *s.GrossMargin*100))
	}
	if s.Guidance != "" {
		lines = append(lines, "", fmt.Sprintf("**Guidance:** %s", s.Guidance))
	}
	return strings.Join(lines, "\n")
}

func (g *Generator) comparisonTable(current, previous *kpi.Snapshot) string {
	lines := []string{"## KPI Comparison", "",
		"| Metric | Current | Previous | Change | % Change |",
		"|--------|---------|----------|--------|----------|"}

	for _, item := range delta.Compare(current, previous) {
		deltaStr := "N/A"
		if item.Delta != nil {
			deltaStr = formatValue(*item.Delta, item.Metric, true)
		}
		pctStr := "N/A"
		if item.PctChange != nil {
			pctStr = formatPct(*item.PctChange)
		}
		lines = append(lines, fmt.Sprintf("| %s | %s | %s | %s | %s |",
			item.Metric,
			formatOptional(item.Current, item.Metric),
			formatOptional(item.Previous, item.Metric),
			deltaStr, pctStr))
	}
	return strings.Join(lines, "\n")
}

func (g *Generator) changesSection(current, previous *kpi.Snapshot) string {
	return "## What Changed\n\n" + FormatDeltaSummary(delta.Compare(current, previous))
}

func (g *Generator) evidenceSection(chunks []chunk.DocumentChunk) string {
	lines := []string{"## Evidence", "",
		"Key excerpts from SEC filings supporting the analysis:", ""}

	if len(chunks) > maxEvidenceChunks {
		chunks = chunks[:maxEvidenceChunks]
	}
	for i, ch := range chunks {
		text := ch.Text
		if len(text) > 300 {
			text = text[:297] + "..."
		}
		citation := fmt.Sprintf("%s %s (%s), Chunk %d",
			ch.Filing.Company.Ticker, ch.Filing.FilingType, ch.Filing.PeriodEnd, ch.Index)

		lines = append(lines,
			fmt.Sprintf("### Evidence %d", i+1), "",
			fmt.Sprintf("**Source:** %s", citation),
			fmt.Sprintf("**Chunk ID:** `%s`", ch.ChunkID), "",
			"> "+strings.ReplaceAll(text, "\n", "\n> "), "")
	}
	return strings.Join(lines, "\n")
}

// FormatDeltaSummary renders delta items as Markdown bullets. Metrics
// that appeared from nothing are tagged "(new)".
func FormatDeltaSummary(items []delta.Item) string {
	if len(items) == 0 {
		return "No changes detected."
	}

	var lines []string
	for _, item := range items {
		switch {
		case item.Current == nil && item.Previous == nil:
			continue
		case item.Current == nil:
			lines = append(lines, fmt.Sprintf("- **%s**: Not reported (was %s)",
				item.Metric, formatValue(*item.Previous, item.Metric, false)))
		case item.Previous == nil:
			lines = append(lines, fmt.Sprintf("- **%s**: %s (new)",
				item.Metric, formatValue(*item.Current, item.Metric, false)))
		default:
			changeStr := ""
			if item.PctChange != nil {
				if math.IsInf(*item.PctChange, 0) {
					changeStr = " (new)"
				} else {
					changeStr = fmt.Sprintf(" (%s)", formatPct(*item.PctChange))
				}
			}
			deltaStr := ""
			if item.Delta != nil {
				deltaStr = fmt.Sprintf(" (%s)", formatValue(*item.Delta, item.Metric, true))
			}
			lines = append(lines, fmt.Sprintf("- **%s**: %s vs %s%s%s",
				item.Metric,
				formatValue(*item.Current, item.Metric, false),
				formatValue(*item.Previous, item.Metric, false),
				changeStr, deltaStr))
		}
	}
	return strings.Join(lines, "\n")
}

func formatOptional(v *float64, metric string) string {
	if v == nil {
		return "N/A"
	}
	return formatValue(*v, metric, false)
}

// formatValue renders a metric value: margins as percent, EPS as
// dollars per share, and other metrics in millions or billions.
func formatValue(v float64, metric string, showSign bool) string {
	sign := ""
	if showSign && v >= 0 {
		sign = "+"
	}
	switch {
	case strings.Contains(metric, "Margin"):
		return fmt.Sprintf("%s%.1f%%", sign, v*100)
	case strings.Contains(metric, "EPS"):
		return fmt.Sprintf("%s$%.2f", sign, v)
	case math.Abs(v) >= 1000:
		return fmt.Sprintf("%s$%.2fB", sign, v/1000)
	default:
		return fmt.Sprintf("%s$%.2fM", sign, v)
	}
}

func formatPct(pct float64) string {
	if math.IsInf(pct, 0) {
		return "∞"
	}
	sign := ""
	if pct >= 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.1f%%", sign, pct)
}

// withCommas formats a value with thousands separators and two
// decimals.
func withCommas(v float64) string {
	s := fmt.Sprintf("%.2f", math.Abs(v))
	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]

	var sb strings.Builder
	if v < 0 {
		sb.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('.')
	sb.WriteString(parts[1])
	return sb.String()
}
