package nadir

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Config controls sweep execution.
type Config struct {
	Repeats     int          // Timed calls per cell, averaged (default: 10)
	Parallelism int          // Cells measured at once (default: 1, strictly sequential)
	Logger      *slog.Logger // nil uses slog.Default()
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Repeats:     10,
		Parallelism: 1,
	}
}

// Runner measures every registered option at every point of the domain.
//
// Concurrent cells contend for CPU and cache, which makes timings of
// different options incomparable. Keep Parallelism at 1 unless the options
// are known to be isolated from each other.
type Runner struct {
	registry *Registry
	domain   *Domain
	cfg      Config
}

// NewRunner creates a runner over a registry and a domain. Both are owned
// by the runner's session and must not change during a sweep.
func NewRunner(registry *Registry, domain *Domain, cfg Config) *Runner {
	return &Runner{registry: registry, domain: domain, cfg: cfg}
}

// SetRepeats sets the number of timed calls per cell.
func (r *Runner) SetRepeats(n int) error {
	if n < 1 {
		return registrationf(ErrInvalidRepeats, "got %d", n)
	}
	r.cfg.Repeats = n
	return nil
}

// SetParameterDomain replaces the sweep values of one slot.
func (r *Runner) SetParameterDomain(slot int, values ...Value) error {
	return r.domain.Override(slot, values...)
}

// Domain returns the runner's domain.
func (r *Runner) Domain() *Domain { return r.domain }

// Run opens sink, sweeps, and encodes the table into it. The sink writer is
// released on every path; on failure it is aborted, so nothing is committed.
// The returned table is sealed; after a failure it holds only the rows
// recorded before the failing cell and must not be used for selection.
func (r *Runner) Run(ctx context.Context, sink Sink, enc Encoder) (table *Table, err error) {
	w, err := sink.Open()
	if err != nil {
		return nil, &SweepError{Kind: ErrSinkUnavailable, Err: err}
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if a, ok := w.(Aborter); ok {
			a.Abort()
		} else {
			w.Close()
		}
	}()

	table, err = r.Sweep(ctx)
	if err != nil {
		return table, err
	}
	if err := enc.Encode(w, table); err != nil {
		return table, &SweepError{Kind: ErrSinkUnavailable, Err: fmt.Errorf("encode: %w", err)}
	}
	committed = true
	if err := w.Close(); err != nil {
		return table, &SweepError{Kind: ErrSinkUnavailable, Err: err}
	}
	r.logger().Info("table written", "run_id", table.RunID, "rows", table.Len())
	return table, nil
}

// Sweep measures every option in registration order at every tuple of the
// domain, last slot varying fastest. It stops at the first failing cell.
func (r *Runner) Sweep(ctx context.Context) (*Table, error) {
	if r.cfg.Repeats < 1 {
		return nil, registrationf(ErrInvalidRepeats, "got %d", r.cfg.Repeats)
	}
	runID, err := nanoid.New()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}

	table := NewTable(r.domain.Specs()...)
	table.RunID = runID
	defer table.Seal()

	tuples := r.domain.Tuples()
	log := r.logger().With("run_id", runID)
	log.Info("sweep starting",
		"options", r.registry.Len(),
		"points", len(tuples),
		"repeats", r.cfg.Repeats,
		"parallelism", r.cfg.Parallelism)

	start := time.Now()
	if r.cfg.Parallelism > 1 {
		err = r.sweepParallel(ctx, table, tuples, log)
	} else {
		err = r.sweepSequential(ctx, table, tuples, log)
	}
	if err != nil {
		log.Error("sweep failed", "rows", table.Len(), "error", err)
		return table, err
	}

	log.Info("sweep complete", "rows", table.Len(), "elapsed", time.Since(start))
	return table, nil
}

func (r *Runner) sweepSequential(ctx context.Context, table *Table, tuples []Params, log *slog.Logger) error {
	for _, o := range r.registry.options {
		for _, p := range tuples {
			if err := ctx.Err(); err != nil {
				return &SweepError{Kind: ErrSweepAborted, Option: o.id, Params: p, Err: err}
			}
			seconds, err := r.measure(o, p)
			if err != nil {
				return err
			}
			if err := table.Add(o.id, p, seconds); err != nil {
				return err
			}
			log.Debug("cell measured", "option", o.id, "params", p, "seconds", seconds)
		}
	}
	return nil
}

// sweepParallel measures cells with bounded concurrency and records the
// longest prefix of cells, in sequential order, that all succeeded.
func (r *Runner) sweepParallel(ctx context.Context, table *Table, tuples []Params, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := len(r.registry.options) * len(tuples)
	seconds := make([]float64, n)
	errs := make([]error, n)
	done := make([]bool, n)

	semaphore := make(chan struct{}, r.cfg.Parallelism)
	var wg sync.WaitGroup

	for k := 0; k < n; k++ {
		o := r.registry.options[k/len(tuples)]
		p := tuples[k%len(tuples)]

		semaphore <- struct{}{}
		if ctx.Err() != nil {
			<-semaphore
			break
		}
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			s, err := r.measure(o, p)
			seconds[k], errs[k], done[k] = s, err, true
			if err != nil {
				cancel()
			}
		}(k)
	}
	wg.Wait()

	for k := 0; k < n; k++ {
		o := r.registry.options[k/len(tuples)]
		p := tuples[k%len(tuples)]
		if errs[k] != nil {
			return errs[k]
		}
		if !done[k] {
			for _, err := range errs[k:] {
				if err != nil {
					return err
				}
			}
			return &SweepError{Kind: ErrSweepAborted, Option: o.id, Params: p, Err: context.Cause(ctx)}
		}
		if err := table.Add(o.id, p, seconds[k]); err != nil {
			return err
		}
		log.Debug("cell measured", "option", o.id, "params", p, "seconds", seconds[k])
	}
	return nil
}

// measure builds the fixture, warms up once, then times Repeats calls as one
// batch and returns the mean seconds per call.
func (r *Runner) measure(o option, p Params) (float64, error) {
	fail := func(stage string, err error) error {
		return &SweepError{Kind: ErrExperimentFailed, Option: o.id, Params: p, Err: fmt.Errorf("%s: %w", stage, err)}
	}

	var trial Trial
	if err := protect(func() error {
		var err error
		trial, err = o.prepare(p)
		return err
	}); err != nil {
		return 0, fail("setup", err)
	}

	if err := protect(trial); err != nil {
		return 0, fail("warmup", err)
	}

	repeats := r.cfg.Repeats
	var elapsed time.Duration
	if err := protect(func() error {
		start := time.Now()
		for i := 0; i < repeats; i++ {
			if err := trial(); err != nil {
				return err
			}
		}
		elapsed = time.Since(start)
		return nil
	}); err != nil {
		return 0, fail("experiment", err)
	}

	return elapsed.Seconds() / float64(repeats), nil
}

func (r *Runner) logger() *slog.Logger {
	if r.cfg.Logger != nil {
		return r.cfg.Logger
	}
	return slog.Default()
}

// protect converts a panic in fn into an error.
func protect(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}
