// Package delta computes period-over-period changes between KPI
// snapshots.
package delta

import (
	"encoding/json"
	"math"
	"strings"

	"filinglens/pkg/core/kpi"
)

// Item is the change in one metric between two periods. Delta and
// PctChange are set only when both values exist. PctChange is in
// percent, relative to the magnitude of the previous value; it is
// +Inf/-Inf when the metric appeared from a zero base.
type Item struct {
	Metric    string   `json:"metric"`
	Current   *float64 `json:"current"`
	Previous  *float64 `json:"previous"`
	Delta     *float64 `json:"delta,omitempty"`
	PctChange *float64 `json:"pct_change,omitempty"`
}

// NewItem calculates the delta fields for a metric.
func NewItem(metric string, current, previous *float64) Item {
	item := Item{Metric: metric, Current: current, Previous: previous}
	if current == nil || previous == nil {
		return item
	}

	d := *current - *previous
	item.Delta = &d

	var pct float64
	switch {
	case *previous != 0:
		pct = d / math.Abs(*previous) * 100
	case *current > 0:
		pct = math.Inf(1)
	case *current < 0:
		pct = math.Inf(-1)
	default:
		pct = 0
	}
	item.PctChange = &pct
	return item
}

// MarshalJSON encodes infinite percent changes as the strings
// "Infinity"/"-Infinity", since JSON has no literal for them and
// encoding/json refuses to emit them as numbers.
func (i Item) MarshalJSON() ([]byte, error) {
	type plain Item
	out := struct {
		plain
		PctChange any `json:"pct_change,omitempty"`
	}{plain: plain(i)}

	switch {
	case i.PctChange == nil:
	case math.IsInf(*i.PctChange, 1):
		out.PctChange = "Infinity"
	case math.IsInf(*i.PctChange, -1):
		out.PctChange = "-Infinity"
	default:
		out.PctChange = *i.PctChange
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts both the numeric and the string encoding of
// pct_change.
func (i *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	aux := struct {
		*plain
		PctChange json.RawMessage `json:"pct_change"`
	}{plain: (*plain)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.PctChange) == 0 || string(aux.PctChange) == "null" {
		i.PctChange = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(aux.PctChange, &s); err == nil {
		v := math.Inf(1)
		if strings.HasPrefix(s, "-") {
			v = math.Inf(-1)
		}
		i.PctChange = &v
		return nil
	}

	var f float64
	if err := json.Unmarshal(aux.PctChange, &f); err != nil {
		return err
	}
	i.PctChange = &f
	return nil
}

// comparedMetrics fixes the comparison order used in reports.
var comparedMetrics = []struct {
	display string
	get     func(*kpi.Snapshot) *float64
}{
	{"Revenue", func(s *kpi.Snapshot) *float64 { return s.Revenue }},
	{"Cost of Revenue", func(s *kpi.Snapshot) *float64 { return s.CostOfRevenue }},
	{"Gross Profit", func(s *kpi.Snapshot) *float64 { return s.GrossProfit }},
	{"Operating Income", func(s *kpi.Snapshot) *float64 { return s.OperatingIncome }},
	{"Net Income", func(s *kpi.Snapshot) *float64 { return s.NetIncome }},
	{"EPS", func(s *kpi.Snapshot) *float64 { return s.EPS }},
	{"Gross Margin", func(s *kpi.Snapshot) *float64 { return s.GrossMargin }},
	{"Operating Margin", func(s *kpi.Snapshot) *float64 { return s.OperatingMargin }},
	{"Net Margin", func(s *kpi.Snapshot) *float64 { return s.NetMargin }},
	{"EBITDA", func(s *kpi.Snapshot) *float64 { return s.EBITDA }},
	{"Operating Cash Flow", func(s *kpi.Snapshot) *float64 { return s.OperatingCashFlow }},
	{"Free Cash Flow", func(s *kpi.Snapshot) *float64 { return s.FreeCashFlow }},
	{"R&D Expense", func(s *kpi.Snapshot) *float64 { return s.ResearchAndDevelopment }},
	{"SG&A Expense", func(s *kpi.Snapshot) *float64 { return s.SellingGeneralAdmin }},
	{"D&A", func(s *kpi.Snapshot) *float64 { return s.DepreciationAmort }},
}

// Compare produces delta items for every metric present in at least
// one of the two snapshots, in a fixed report order. Metrics absent
// from both are omitted.
func Compare(current, previous *kpi.Snapshot) []Item {
	var items []Item
	for _, m := range comparedMetrics {
		cur := m.get(current)
		prev := m.get(previous)
		if cur == nil && prev == nil {
			continue
		}
		items = append(items, NewItem(m.display, cur, prev))
	}
	return items
}
