package kpi

import (
	"errors"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }

func TestNewSnapshotRejectsEmpty(t *testing.T) {
	_, err := NewSnapshot(Snapshot{PeriodEnd: "2025-03-29"})
	if !errors.Is(err, ErrEmptySnapshot) {
		t.Fatalf("expected ErrEmptySnapshot, got %v", err)
	}
}

func TestNewSnapshotGuidanceOnly(t *testing.T) {
	snap, err := NewSnapshot(Snapshot{
		PeriodEnd: "2025-03-29",
		Guidance:  "We expect continued growth in services revenue",
	})
	if err != nil {
		t.Fatalf("guidance-only snapshot should be valid: %v", err)
	}
	if snap.SourceChunkIDs == nil {
		t.Error("source chunk map should be initialized")
	}
	if snap.Segments == nil {
		t.Error("segments should be initialized")
	}
}

func TestNewSnapshotDerivesMetrics(t *testing.T) {
	snap, err := NewSnapshot(Snapshot{
		PeriodEnd:         "2025-03-29",
		Revenue:           floatPtr(1000),
		CostOfRevenue:     floatPtr(600),
		OperatingIncome:   floatPtr(300),
		NetIncome:         floatPtr(250),
		DepreciationAmort: floatPtr(500),
		OperatingCashFlow: floatPtr(2000),
	})
	if err != nil {
		t.Fatalf("NewSnapshot failed: %v", err)
	}

	tests := []struct {
		name string
		got  *float64
		want float64
	}{
		{"gross profit = revenue - cost", snap.GrossProfit, 400},
		{"gross margin", snap.GrossMargin, 0.4},
		{"operating margin", snap.OperatingMargin, 0.3},
		{"net margin", snap.NetMargin, 0.25},
		{"ebitda = op income + d&a", snap.EBITDA, 800},
		{"fcf = ocf - d&a", snap.FreeCashFlow, 1500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got == nil {
				t.Fatalf("value not derived")
			}
			if *tt.got != tt.want {
				t.Errorf("got %v, want %v", *tt.got, tt.want)
			}
		})
	}
}

func TestNewSnapshotEBITDAWithoutDA(t *testing.T) {
	snap, err := NewSnapshot(Snapshot{
		PeriodEnd:       "2025-03-29",
		OperatingIncome: floatPtr(300),
	})
	if err != nil {
		t.Fatalf("NewSnapshot failed: %v", err)
	}
	if snap.EBITDA == nil || *snap.EBITDA != 300 {
		t.Errorf("ebitda = %v, want operating income fallback 300", snap.EBITDA)
	}
}

func TestNewSnapshotDropsImplausibleMargins(t *testing.T) {
	snap, err := NewSnapshot(Snapshot{
		PeriodEnd:   "2025-03-29",
		Revenue:     floatPtr(1000),
		GrossMargin: floatPtr(2.0),
		NetMargin:   floatPtr(0.25),
	})
	if err != nil {
		t.Fatalf("NewSnapshot failed: %v", err)
	}
	if snap.GrossMargin != nil {
		t.Errorf("gross margin 2.0 should be dropped, got %v", *snap.GrossMargin)
	}
	if snap.NetMargin == nil || *snap.NetMargin != 0.25 {
		t.Errorf("plausible net margin should survive, got %v", snap.NetMargin)
	}
}
