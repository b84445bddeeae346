package nadir

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Measurement is one immutable row: an option, the parameter tuple in slot
// order, and the mean duration of one call in seconds.
type Measurement struct {
	Option  string
	Params  Params
	Seconds float64
}

// Duration returns Seconds as a time.Duration, rounded to the nanosecond.
func (m Measurement) Duration() time.Duration {
	return time.Duration(math.Round(m.Seconds * float64(time.Second)))
}

// Table is the ordered collection of measurements produced by a sweep.
// It is append-only until sealed; a sealed table is read-only and safe for
// concurrent readers.
type Table struct {
	// RunID identifies the sweep that produced the table, if known.
	RunID string

	mu       sync.Mutex
	sealed   bool
	schema   []ParameterSpec
	rows     []Measurement
	order    []string
	byOption map[string][]int
	seen     map[string]struct{}

	selOnce  sync.Once
	selector *Selector
}

// NewTable creates an empty table whose tuples follow schema.
func NewTable(schema ...ParameterSpec) *Table {
	return &Table{
		schema:   append([]ParameterSpec(nil), schema...),
		byOption: make(map[string][]int),
		seen:     make(map[string]struct{}),
	}
}

// Add appends a measurement. The tuple must fit the schema and the
// (option, tuple) pair must be new.
func (t *Table) Add(option string, params Params, seconds float64) error {
	if option == "" {
		return fmt.Errorf("measurement: %w", ErrInvalidIdentifier)
	}
	if err := checkTuple(t.schema, params); err != nil {
		return fmt.Errorf("measurement for %q: %w: %v", option, ErrQueryMismatch, err)
	}
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return fmt.Errorf("measurement for %q at %s: invalid duration %v", option, params, seconds)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sealed {
		return ErrTableSealed
	}
	key := option + "\x00" + params.String()
	if _, dup := t.seen[key]; dup {
		return fmt.Errorf("measurement for %q at %s: %w", option, params, ErrDuplicateMeasurement)
	}
	t.seen[key] = struct{}{}

	if _, ok := t.byOption[option]; !ok {
		t.order = append(t.order, option)
	}
	t.byOption[option] = append(t.byOption[option], len(t.rows))
	t.rows = append(t.rows, Measurement{
		Option:  option,
		Params:  append(Params(nil), params...),
		Seconds: seconds,
	})
	return nil
}

// Seal ends the append phase. Sealing twice is harmless.
func (t *Table) Seal() {
	t.mu.Lock()
	t.sealed = true
	t.mu.Unlock()
}

// Sealed reports whether the append phase is over.
func (t *Table) Sealed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sealed
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Schema returns the parameter slots in order.
func (t *Table) Schema() []ParameterSpec {
	return append([]ParameterSpec(nil), t.schema...)
}

// Options returns the option identifiers in first-appearance order, which
// for a sweep is registration order.
func (t *Table) Options() []string {
	return append([]string(nil), t.order...)
}

// Row returns row i.
func (t *Table) Row(i int) Measurement {
	m := t.rows[i]
	m.Params = append(Params(nil), m.Params...)
	return m
}

// Rows returns a copy of every row in order.
func (t *Table) Rows() []Measurement {
	out := make([]Measurement, len(t.rows))
	for i := range t.rows {
		out[i] = t.Row(i)
	}
	return out
}

// RowsFor returns the rows of one option in order.
func (t *Table) RowsFor(option string) []Measurement {
	idx := t.byOption[option]
	out := make([]Measurement, len(idx))
	for i, j := range idx {
		out[i] = t.Row(j)
	}
	return out
}

// CheckComplete verifies the table holds exactly one row per option and
// point of d's Cartesian product.
func (t *Table) CheckComplete(d *Domain) error {
	if len(t.schema) != d.Len() {
		return fmt.Errorf("%w: table has %d slots, domain has %d", ErrIncompleteTable, len(t.schema), d.Len())
	}
	for i, s := range t.schema {
		ds := d.Spec(i)
		if s.Name != ds.Name || s.Kind != ds.Kind {
			return fmt.Errorf("%w: slot %d is %s %q, domain has %s %q", ErrIncompleteTable, i, s.Kind, s.Name, ds.Kind, ds.Name)
		}
	}
	points := d.Points()
	for _, opt := range t.order {
		if n := len(t.byOption[opt]); n != points {
			return fmt.Errorf("%w: option %q has %d rows, want %d", ErrIncompleteTable, opt, n, points)
		}
	}
	for _, m := range t.rows {
		if !d.Contains(m.Params) {
			return fmt.Errorf("%w: option %q has tuple %s outside the domain", ErrIncompleteTable, m.Option, m.Params)
		}
	}
	return nil
}

// OptionSummary describes the spread of one option's measurements.
type OptionSummary struct {
	Option string
	Count  int
	Mean   float64
	Stddev float64
	Min    float64
	Max    float64
	P50    float64
}

// Summarize computes per-option statistics, in option order.
func (t *Table) Summarize() []OptionSummary {
	out := make([]OptionSummary, 0, len(t.order))
	for _, opt := range t.order {
		idx := t.byOption[opt]
		sorted := make([]float64, len(idx))
		for i, j := range idx {
			sorted[i] = t.rows[j].Seconds
		}
		sort.Float64s(sorted)

		var sum float64
		for _, s := range sorted {
			sum += s
		}
		mean := sum / float64(len(sorted))

		var variance float64
		for _, s := range sorted {
			diff := s - mean
			variance += diff * diff
		}

		out = append(out, OptionSummary{
			Option: opt,
			Count:  len(sorted),
			Mean:   mean,
			Stddev: math.Sqrt(variance / float64(len(sorted))),
			Min:    sorted[0],
			Max:    sorted[len(sorted)-1],
			P50:    sorted[len(sorted)*50/100],
		})
	}
	return out
}

// Selector returns the table's selector, sealing the table. Models are fit
// on first use and shared by every later caller.
func (t *Table) Selector() *Selector {
	t.selOnce.Do(func() {
		t.Seal()
		t.selector = NewSelector(t)
	})
	return t.selector
}

// Choose returns the option predicted fastest for query.
func Choose(t *Table, query Params) (string, error) {
	return t.Selector().Choose(query)
}

func checkTuple(schema []ParameterSpec, p Params) error {
	if len(p) != len(schema) {
		return fmt.Errorf("got %d values, want %d", len(p), len(schema))
	}
	for i, s := range schema {
		if err := s.Check(p[i]); err != nil {
			return err
		}
	}
	return nil
}
