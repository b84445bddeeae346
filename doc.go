// Package nadir picks the fastest of several interchangeable implementations
// from measurements instead of guesses.
//
// # Overview
//
// A program that can solve one problem several ways (an insertion sort and a
// merge sort, a map and a slice scan) registers each way as an option, names
// the parameters that decide which is faster, and sweeps them. The sweep
// produces a measurement table. Later, at decision time, the table is asked
// which option to run for concrete parameters.
//
// The package components:
//
//   - param.go     - Parameter kinds, values and tuples
//   - domain.go    - Per-slot sweep values and their Cartesian product
//   - registry.go  - Candidate options and their setup fixtures
//   - runner.go    - The sweep: warmup, timed repeats, one row per cell
//   - table.go     - The append-only measurement table
//   - fit.go       - Least-squares cost models per option
//   - selector.go  - Choose, Ranking and Predict over the cost models
//   - sink.go      - Where a finished table is written
//   - assertions.go - Test helpers for tables and selections
//
// Encodings live in tablefmt, run history in store/sqlitestore.
//
// # Quick Start
//
// Register the options and the parameters they depend on:
//
//	domain, _ := nadir.NewDomain(
//	    nadir.Size("size"),
//	    nadir.EnumParam("direction", "Forward", "Backward"),
//	)
//
//	registry := nadir.NewRegistry()
//	nadir.AddOption(registry, "sort_n2", insertionSort, makeInput)
//	nadir.AddOption(registry, "sort_nlogn", librarySort, makeInput)
//
// Sweep and persist the table:
//
//	runner := nadir.NewRunner(registry, domain, nadir.DefaultConfig())
//	table, err := runner.Run(ctx, nadir.FileSink{Path: "sort.csv"}, tablefmt.CSV{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Decide:
//
//	choice, err := nadir.Choose(table, nadir.Params{nadir.Num(n), nadir.Enum(0)})
//
// # Cost Models
//
// Durations are only measured at the swept points. To answer queries in
// between and beyond them, each option gets a least-squares model over its
// numeric parameters:
//
//	t(x) = b0 + b1·x + b2·x·ln(x) + b3·x²
//
// fitted separately for every combination of enumerated values. Poorly
// conditioned bases fall back to fewer terms, down to the mean. Predictions
// never go below zero, and options whose predictions differ by less than
// TieEpsilon are tied; ties go to the option registered first.
//
// # Errors
//
// Registration problems are *RegistrationError, sweep failures *SweepError
// and decision failures *SelectionError. Each wraps one of the package
// sentinels, so callers branch with errors.Is:
//
//	if errors.Is(err, nadir.ErrEmptyTable) {
//	    return defaultOption
//	}
//
// # Testing
//
//	func TestSortSelection(t *testing.T) {
//	    table := sweep(t)
//	    nadir.AssertComplete(t, table, domain)
//	    nadir.AssertChooses(t, table, nadir.Params{nadir.Num(10), nadir.Enum(0)}, "sort_n2")
//	}
package nadir
