package delta

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"filinglens/pkg/core/kpi"
)

func floatPtr(v float64) *float64 { return &v }

func TestNewItem(t *testing.T) {
	tests := []struct {
		name     string
		current  *float64
		previous *float64
		wantD    *float64
		wantPct  *float64
	}{
		{"growth", floatPtr(120), floatPtr(100), floatPtr(20), floatPtr(20)},
		{"decline", floatPtr(80), floatPtr(100), floatPtr(-20), floatPtr(-20)},
		{"from zero positive", floatPtr(100), floatPtr(0), floatPtr(100), floatPtr(math.Inf(1))},
		{"from zero negative", floatPtr(-100), floatPtr(0), floatPtr(-100), floatPtr(math.Inf(-1))},
		{"both zero", floatPtr(0), floatPtr(0), floatPtr(0), floatPtr(0)},
		{"negative base", floatPtr(-50), floatPtr(-100), floatPtr(50), floatPtr(50)},
		{"current missing", nil, floatPtr(100), nil, nil},
		{"previous missing", floatPtr(50), nil, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := NewItem("Revenue", tt.current, tt.previous)

			if (item.Delta == nil) != (tt.wantD == nil) {
				t.Fatalf("delta = %v, want %v", item.Delta, tt.wantD)
			}
			if item.Delta != nil && *item.Delta != *tt.wantD {
				t.Errorf("delta = %v, want %v", *item.Delta, *tt.wantD)
			}
			if (item.PctChange == nil) != (tt.wantPct == nil) {
				t.Fatalf("pct = %v, want %v", item.PctChange, tt.wantPct)
			}
			if item.PctChange != nil && *item.PctChange != *tt.wantPct {
				t.Errorf("pct = %v, want %v", *item.PctChange, *tt.wantPct)
			}
		})
	}
}

func TestItemJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		item     Item
		wantText string
	}{
		{"finite pct stays numeric", NewItem("Revenue", floatPtr(120), floatPtr(100)), `"pct_change":20`},
		{"from zero positive", NewItem("FCF", floatPtr(100), floatPtr(0)), `"pct_change":"Infinity"`},
		{"from zero negative", NewItem("FCF", floatPtr(-100), floatPtr(0)), `"pct_change":"-Infinity"`},
		{"missing side omits pct", NewItem("EPS", floatPtr(1.65), nil), `"metric":"EPS"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.item)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if !strings.Contains(string(data), tt.wantText) {
				t.Errorf("encoded item missing %q:\n%s", tt.wantText, data)
			}

			var back Item
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if (back.PctChange == nil) != (tt.item.PctChange == nil) {
				t.Fatalf("pct presence changed: %v vs %v", back.PctChange, tt.item.PctChange)
			}
			if back.PctChange != nil && *back.PctChange != *tt.item.PctChange {
				t.Errorf("pct = %v after round trip, want %v", *back.PctChange, *tt.item.PctChange)
			}
			if back.Metric != tt.item.Metric {
				t.Errorf("metric = %q, want %q", back.Metric, tt.item.Metric)
			}
		})
	}
}

func TestAnalysisDeltasSerializable(t *testing.T) {
	// FCF can derive to exactly zero, so a following period produces an
	// infinite percent change in the full delta list.
	current := &kpi.Snapshot{Revenue: floatPtr(1000), FreeCashFlow: floatPtr(150)}
	previous := &kpi.Snapshot{Revenue: floatPtr(900), FreeCashFlow: floatPtr(0)}

	data, err := json.Marshal(Compare(current, previous))
	if err != nil {
		t.Fatalf("delta list with infinite pct change must serialize: %v", err)
	}
	if !strings.Contains(string(data), `"Infinity"`) {
		t.Errorf("infinite pct change not encoded:\n%s", data)
	}
}

func TestCompareOrderAndOmission(t *testing.T) {
	current := &kpi.Snapshot{
		Revenue:   floatPtr(95359),
		NetIncome: floatPtr(24780),
		EPS:       floatPtr(1.65),
	}
	previous := &kpi.Snapshot{
		Revenue:   floatPtr(90753),
		NetIncome: floatPtr(23636),
		EPS:       floatPtr(1.53),
	}

	items := Compare(current, previous)
	wantOrder := []string{"Revenue", "Net Income", "EPS"}
	if len(items) != len(wantOrder) {
		t.Fatalf("got %d items, want %d", len(items), len(wantOrder))
	}
	for i, want := range wantOrder {
		if items[i].Metric != want {
			t.Errorf("items[%d] = %s, want %s", i, items[i].Metric, want)
		}
	}
}

func TestCompareOneSidedMetrics(t *testing.T) {
	current := &kpi.Snapshot{Revenue: floatPtr(95359)}
	previous := &kpi.Snapshot{Revenue: floatPtr(90753), NetIncome: floatPtr(23636)}

	items := Compare(current, previous)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	ni := items[1]
	if ni.Metric != "Net Income" {
		t.Fatalf("second item = %s", ni.Metric)
	}
	if ni.Current != nil {
		t.Error("current should be nil")
	}
	if ni.Previous == nil || *ni.Previous != 23636 {
		t.Error("previous value lost")
	}
	if ni.Delta != nil || ni.PctChange != nil {
		t.Error("delta fields should be nil when one side is missing")
	}
}

func TestCompareEmptySnapshots(t *testing.T) {
	if items := Compare(&kpi.Snapshot{}, &kpi.Snapshot{}); len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}
