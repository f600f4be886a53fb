package kpi

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"filinglens/pkg/core/chunk"
)

// UnitScale is the magnitude a filing reports monetary values in.
type UnitScale string

const (
	ScaleMillions  UnitScale = "millions"
	ScaleThousands UnitScale = "thousands"
	ScaleDollars   UnitScale = "dollars"
)

// =============================================================================
// UNIT SCALE DETECTION
// =============================================================================

var (
	inMillionsRe      = regexp.MustCompile(`\(\s*in\s+millions?\s*[,)]`)
	dollarsMillionsRe = regexp.MustCompile(`\(\s*dollars?\s+in\s+millions?\s*[,)]`)
	amountsMillionsRe = regexp.MustCompile(`amounts?\s+in\s+millions?`)
	inThousandsRe     = regexp.MustCompile(`\(\s*in\s+thousands?\s*[,)]`)
	dollarsThouRe     = regexp.MustCompile(`\(\s*dollars?\s+in\s+thousands?\s*[,)]`)
)

// DetectUnitScale reads the scale declaration most 10-Q statements
// carry, like "(in millions, except per share amounts)". SEC filings
// default to millions when no declaration is found.
func DetectUnitScale(text string) UnitScale {
	lower := strings.ToLower(text)
	switch {
	case inMillionsRe.MatchString(lower),
		dollarsMillionsRe.MatchString(lower),
		amountsMillionsRe.MatchString(lower):
		return ScaleMillions
	case inThousandsRe.MatchString(lower), dollarsThouRe.MatchString(lower):
		return ScaleThousands
	}
	return ScaleMillions
}

// normalizeToMillions converts a raw value to millions USD. Values
// already in millions pass through unchanged, so re-normalizing is a
// no-op.
func normalizeToMillions(value float64, scale UnitScale) float64 {
	switch scale {
	case ScaleThousands:
		return value / 1000
	case ScaleDollars:
		return value / 1e6
	}
	return value
}

// =============================================================================
// METRIC PATTERNS
// =============================================================================

// metricPattern describes how one metric is recognized. Patterns are
// tried in order; the first occurrence that parses and lands inside
// [minVal, maxVal] wins. rejectPrefix, when set, names a capture group
// whose presence disqualifies the occurrence (RE2 has no lookbehind).
type metricPattern struct {
	re           *regexp.Regexp
	rejectPrefix bool // group 1 is a disqualifying prefix, value is group 2
}

// metricDef holds the patterns and plausibility bounds for one metric.
type metricDef struct {
	name     string
	patterns []metricPattern
	minVal   float64
	maxVal   float64
	// skipRawBelow discards raw matches under this threshold before
	// normalization; tiny numbers near these labels are usually
	// footnote references, not the metric.
	skipRawBelow float64
	// monetary metrics are normalized to millions; EPS is not.
	monetary bool
}

func pat(expr string) metricPattern {
	return metricPattern{re: regexp.MustCompile(`(?im)` + expr)}
}

func patReject(expr string) metricPattern {
	return metricPattern{re: regexp.MustCompile(`(?im)` + expr), rejectPrefix: true}
}

// Metric names double as keys in Snapshot.SourceChunkIDs and delta
// output, so they stay in snake_case.
var metricDefs = []metricDef{
	{
		name: "revenue",
		patterns: []metricPattern{
			pat(`total\s+net\s+sales[^0-9]*(\d[\d,]+)`),
			patReject(`(cost\s+of\s+)?net\s+sales[^0-9]*(\d[\d,]+)`),
			pat(`total\s+(?:net\s+)?revenues?[^0-9]*(\d[\d,]+)`),
			pat(`\brevenues?\s*:[^0-9]*(\d[\d,]+)`),
		},
		minVal: 1000, maxVal: 500000, monetary: true,
	},
	{
		name: "cost_of_revenue",
		patterns: []metricPattern{
			pat(`total\s+cost\s+of\s+(?:sales|revenue)[^0-9]*(\d[\d,]+)`),
			pat(`cost\s+of\s+(?:sales|revenue|goods\s+sold)[^0-9]*(\d[\d,]+)`),
		},
		minVal: 500, maxVal: 400000, monetary: true,
	},
	{
		name: "gross_profit",
		patterns: []metricPattern{
			pat(`\bgross\s+(?:profit|margin)[^0-9]*(\d[\d,]+)`),
			pat(`total\s+gross\s+profit[^0-9]*(\d[\d,]+)`),
		},
		minVal: 500, maxVal: 200000, monetary: true,
	},
	{
		name: "operating_income",
		patterns: []metricPattern{
			pat(`\boperating\s+income[^0-9]*(\d[\d,]+)`),
			pat(`\bincome\s+from\s+operations[^0-9]*(\d[\d,]+)`),
		},
		minVal: -100000, maxVal: 100000, skipRawBelow: 100, monetary: true,
	},
	{
		name: "net_income",
		patterns: []metricPattern{
			pat(`\bnet\s+income[^0-9]*(\d[\d,]+)`),
			pat(`\bnet\s+earnings[^0-9]*(\d[\d,]+)`),
		},
		minVal: -50000, maxVal: 50000, skipRawBelow: 100, monetary: true,
	},
	{
		name: "eps",
		patterns: []metricPattern{
			pat(`\bdiluted[^0-9]*(\d+\.\d+)`),
			pat(`earnings\s+per\s+share[^0-9]*diluted[^0-9]*(\d+\.\d+)`),
			pat(`basic\s+and\s+diluted[^0-9]*(\d+\.\d+)`),
		},
		minVal: 0.01, maxVal: 50,
	},
	{
		name: "research_and_development",
		patterns: []metricPattern{
			pat(`research\s+and\s+development[^0-9]*(\d[\d,]+)`),
			pat(`r\s*&\s*d\s+expenses?[^0-9]*(\d[\d,]+)`),
		},
		minVal: 100, maxVal: 50000, monetary: true,
	},
	{
		name: "selling_general_admin",
		patterns: []metricPattern{
			pat(`selling,?\s*general\s+and\s+administrative[^0-9]*(\d[\d,]+)`),
			pat(`sg\s*&\s*a[^0-9]*(\d[\d,]+)`),
		},
		minVal: 100, maxVal: 50000, monetary: true,
	},
	{
		name: "depreciation_amortization",
		patterns: []metricPattern{
			pat(`depreciation\s+and\s+amortization[^0-9]*(\d[\d,]+)`),
			pat(`d\s*&\s*a[^0-9]*(\d[\d,]+)`),
			pat(`depreciation[^0-9]*(\d[\d,]+)`),
		},
		minVal: 100, maxVal: 30000, monetary: true,
	},
	{
		name: "operating_cash_flow",
		patterns: []metricPattern{
			pat(`cash\s+(?:generated\s+by|provided\s+by|from)\s+operating\s+activities[^0-9]*(\d[\d,]+)`),
			pat(`operating\s+cash\s+flow[^0-9]*(\d[\d,]+)`),
			pat(`net\s+cash\s+from\s+operations[^0-9]*(\d[\d,]+)`),
		},
		minVal: 500, maxVal: 100000, monetary: true,
	},
}

// extract applies one metric definition to a chunk of text.
func (d metricDef) extract(text string, scale UnitScale) (float64, bool) {
	for _, p := range d.patterns {
		raw, ok := p.firstValue(text)
		if !ok {
			continue
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			continue
		}
		if d.skipRawBelow > 0 && value < d.skipRawBelow {
			continue
		}
		if d.monetary {
			value = normalizeToMillions(value, scale)
		}
		if d.name == "eps" {
			abs := value
			if abs < 0 {
				abs = -abs
			}
			if abs < d.minVal || abs > d.maxVal {
				continue
			}
			return value, true
		}
		if value < d.minVal || value > d.maxVal {
			continue
		}
		return value, true
	}
	return 0, false
}

// firstValue returns the numeric capture of the first acceptable
// occurrence.
func (p metricPattern) firstValue(text string) (string, bool) {
	if !p.rejectPrefix {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return m[1], true
	}
	for _, m := range p.re.FindAllStringSubmatch(text, -1) {
		if m[1] == "" {
			return m[2], true
		}
	}
	return "", false
}

// =============================================================================
// EXTRACTOR
// =============================================================================

// Extractor pulls structured KPIs out of document chunks. The first
// chunk (in document order) containing a plausible value for a metric
// wins, and the chunk is recorded for attribution.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract builds a snapshot for the period from the given chunks.
// Chunks must be in document order.
func (e *Extractor) Extract(chunks []chunk.DocumentChunk, periodEnd string) (Snapshot, error) {
	var sb strings.Builder
	for i, ch := range chunks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(ch.Text)
	}
	scale := DetectUnitScale(sb.String())
	slog.Debug("detected unit scale", "scale", scale, "period_end", periodEnd)

	values := make(map[string]float64)
	sources := make(map[string]string)

	for _, ch := range chunks {
		for _, def := range metricDefs {
			if _, done := values[def.name]; done {
				continue
			}
			if v, ok := def.extract(ch.Text, scale); ok {
				values[def.name] = v
				sources[def.name] = ch.ChunkID
				slog.Debug("extracted metric", "metric", def.name, "value", v, "chunk", ch.ChunkID)
			}
		}
	}

	e.sanityCheck(values)

	guidance := extractGuidance(chunks)
	if guidance != "" {
		for _, ch := range chunks {
			lower := strings.ToLower(ch.Text)
			if strings.Contains(lower, "guidance") || strings.Contains(lower, "outlook") {
				sources["guidance"] = ch.ChunkID
				break
			}
		}
	}

	// Always produce something reviewable, even from a filing the
	// patterns could not read.
	if len(values) == 0 && guidance == "" {
		guidance = "Financial metrics could not be extracted automatically. Please verify manually."
		if len(chunks) > 0 {
			sources["guidance"] = chunks[0].ChunkID
		}
	}

	get := func(name string) *float64 {
		if v, ok := values[name]; ok {
			return &v
		}
		return nil
	}

	return NewSnapshot(Snapshot{
		PeriodEnd:              periodEnd,
		Revenue:                get("revenue"),
		CostOfRevenue:          get("cost_of_revenue"),
		GrossProfit:            get("gross_profit"),
		OperatingIncome:        get("operating_income"),
		NetIncome:              get("net_income"),
		EPS:                    get("eps"),
		ResearchAndDevelopment: get("research_and_development"),
		SellingGeneralAdmin:    get("selling_general_admin"),
		DepreciationAmort:      get("depreciation_amortization"),
		OperatingCashFlow:      get("operating_cash_flow"),
		Guidance:               guidance,
		SourceChunkIDs:         sources,
	})
}

// sanityCheck cross-validates extracted values. A net income exceeding
// revenue is discarded; implausible margins are only flagged since the
// values may still be legitimate.
func (e *Extractor) sanityCheck(values map[string]float64) {
	revenue, hasRev := values["revenue"]
	netIncome, hasNI := values["net_income"]
	opIncome, hasOI := values["operating_income"]

	if hasRev && hasNI && revenue != 0 {
		margin := netIncome / revenue
		switch {
		case margin > 1.0:
			slog.Warn("net income exceeds revenue, discarding",
				"net_income", netIncome, "revenue", revenue)
			delete(values, "net_income")
		case margin < 0.005 && revenue > 10000:
			slog.Warn("very low net margin, value may be incorrect",
				"margin", margin, "revenue", revenue)
		}
	}

	if hasRev && hasOI && revenue != 0 {
		if opMargin := opIncome / revenue; opMargin > 0.7 {
			slog.Warn("unusually high operating margin", "margin", opMargin)
		}
	}
}

var sentenceSplitRe = regexp.MustCompile(`[.!?]+`)

var guidanceKeywords = []string{"guidance", "outlook", "expect", "forecast"}

// extractGuidance returns the first reasonably sized sentence that
// mentions forward-looking language.
func extractGuidance(chunks []chunk.DocumentChunk) string {
	for _, ch := range chunks {
		for _, sentence := range sentenceSplitRe.Split(ch.Text, -1) {
			lower := strings.ToLower(sentence)
			for _, kw := range guidanceKeywords {
				if strings.Contains(lower, kw) {
					g := strings.TrimSpace(sentence)
					if len(g) > 20 && len(g) < 500 {
						return g
					}
					break
				}
			}
		}
	}
	return ""
}
