package nadir

import (
	"errors"
	"fmt"
	"testing"
)

// AssertionConfig contains thresholds for table and model checks.
type AssertionConfig struct {
	// Minimum R² of every fit of a cost model
	MinRSquared float64

	// Largest |predicted-measured|/measured tolerated at a swept point
	MaxRelativeError float64
}

// DefaultAssertionConfig returns conservative thresholds.
func DefaultAssertionConfig() AssertionConfig {
	return AssertionConfig{
		MinRSquared:      0.95, // 95% model fit
		MaxRelativeError: 0.25, // within 25% of the measurement
	}
}

// AssertComplete verifies table holds one row per option and point of d,
// with every duration non-negative.
func AssertComplete(t testing.TB, table *Table, d *Domain) {
	t.Helper()

	if err := table.CheckComplete(d); err != nil {
		t.Fatalf("Table incomplete: %v", err)
	}
	AssertNonNegative(t, table)

	t.Logf("✓ Complete: %d options × %d points = %d rows", len(table.Options()), d.Points(), table.Len())
}

// AssertNonNegative verifies no measurement has a negative duration.
func AssertNonNegative(t testing.TB, table *Table) {
	t.Helper()

	for i, m := range table.Rows() {
		if m.Seconds < 0 {
			t.Errorf("Row %d: %s at %s has negative duration %v", i, m.Option, m.Params, m.Seconds)
		}
	}
}

// AssertChooses verifies the selector picks want at query.
func AssertChooses(t testing.TB, table *Table, query Params, want string) {
	t.Helper()

	got, err := Choose(table, query)
	if err != nil {
		t.Fatalf("Choose(%s) failed: %v", FormatParams(table.Schema(), query), err)
	}
	if got != want {
		preds, _ := table.Selector().Ranking(query)
		t.Errorf("Choose(%s) = %q, want %q\nranking: %v",
			FormatParams(table.Schema(), query), got, want, preds)
		return
	}
	t.Logf("✓ %s → %s", FormatParams(table.Schema(), query), got)
}

// AssertSelectionError verifies err is a selection failure of the given kind.
func AssertSelectionError(t testing.TB, err error, kind error) {
	t.Helper()

	var se *SelectionError
	if !errors.As(err, &se) {
		t.Fatalf("Expected *SelectionError wrapping %v, got %T: %v", kind, err, err)
	}
	if !errors.Is(err, kind) {
		t.Errorf("Expected %v, got %v", kind, err)
	}
}

// AssertModelFit verifies every fit of option's cost model explains its rows
// and reproduces each measurement within cfg.MaxRelativeError.
func AssertModelFit(t testing.TB, table *Table, option string, cfg AssertionConfig) {
	t.Helper()

	m, err := table.Selector().Model(option)
	if err != nil {
		t.Fatalf("Failed to fit cost model for %q: %v", option, err)
	}

	for _, f := range m.Fits {
		if f.RSquared < cfg.MinRSquared {
			t.Errorf("Poor model fit for %q [%s]: R² = %.4f (min: %.4f)\n"+
				"Measurements are too noisy or the cost is not polynomial in the parameters.",
				option, f.Group, f.RSquared, cfg.MinRSquared)
		}
	}

	var failures []string
	for _, row := range table.RowsFor(option) {
		if row.Seconds == 0 {
			continue
		}
		predicted := m.Predict(row.Params)
		rel := (predicted - row.Seconds) / row.Seconds
		if rel < 0 {
			rel = -rel
		}
		if rel > cfg.MaxRelativeError {
			failures = append(failures, fmt.Sprintf(
				"  %s: measured=%.4g predicted=%.4g (%.1f%% off)",
				FormatParams(table.Schema(), row.Params), row.Seconds, predicted, rel*100))
		}
	}
	if len(failures) > 0 {
		t.Errorf("Cost model for %q misses measurements:\n%v", option, failures)
	}

	t.Logf("✓ Model fit for %q: %d group(s)", option, len(m.Fits))
}

// PrintAnalysis outputs per-option statistics and fitted models to the test log.
func PrintAnalysis(t testing.TB, table *Table) {
	t.Helper()

	t.Logf("\n=== Measurement Analysis ===")
	if table.RunID != "" {
		t.Logf("Run: %s", table.RunID)
	}
	t.Logf("  Option               Rows   Mean          Min           P50           Max")
	t.Logf("  -------------------  -----  ------------  ------------  ------------  ------------")
	for _, s := range table.Summarize() {
		t.Logf("  %-19s  %5d  %12.4g  %12.4g  %12.4g  %12.4g",
			s.Option, s.Count, s.Mean, s.Min, s.P50, s.Max)
	}

	if table.Len() == 0 {
		return
	}
	t.Logf("\nCost Models:")
	sel := table.Selector()
	for _, opt := range table.Options() {
		m, err := sel.Model(opt)
		if err != nil {
			t.Logf("  %s: %v", opt, err)
			continue
		}
		for _, f := range m.Fits {
			group := f.Group
			if group == "" {
				group = "*"
			}
			t.Logf("  %s [%s]: %s", opt, group, f)
			if f.RSquared < 0.90 {
				t.Logf("    ⚠ Poor fit (R² < 0.90) - check for measurement noise")
			}
		}
	}
}
