package nadir

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineEncoder writes one "option params seconds" line per row.
type lineEncoder struct{}

func (lineEncoder) Encode(w io.Writer, t *Table) error {
	for _, m := range t.Rows() {
		if _, err := fmt.Fprintf(w, "%s %s %g\n", m.Option, FormatParams(t.Schema(), m.Params), m.Seconds); err != nil {
			return err
		}
	}
	return nil
}

type failingEncoder struct{}

func (failingEncoder) Encode(io.Writer, *Table) error { return errors.New("disk full") }

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.Repeats = 3
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func testDomain(t *testing.T) *Domain {
	t.Helper()
	d, err := NewDomain(NumericParam("size", 1, 2, 3), EnumParam("mode", "x", "y"))
	require.NoError(t, err)
	return d
}

// TestSweep_CoversDomain verifies one row per option and point, in
// registration order then domain order.
func TestSweep_CoversDomain(t *testing.T) {
	d := testDomain(t)
	r := NewRegistry()
	require.NoError(t, r.Add("b", noop))
	require.NoError(t, r.Add("a", noop))

	table, err := NewRunner(r, d, quietConfig()).Sweep(context.Background())
	require.NoError(t, err)

	AssertComplete(t, table, d)
	assert.Equal(t, 2*3*2, table.Len())
	assert.True(t, table.Sealed())
	assert.NotEmpty(t, table.RunID)
	assert.Equal(t, []string{"b", "a"}, table.Options())

	tuples := d.Tuples()
	for i, m := range table.Rows() {
		assert.Equal(t, []string{"b", "a"}[i/len(tuples)], m.Option)
		assert.True(t, tuples[i%len(tuples)].Equal(m.Params), "row %d", i)
	}
}

// TestSweep_CallCounts verifies setup runs once per cell and the experiment
// runs once for warmup plus once per repeat.
func TestSweep_CallCounts(t *testing.T) {
	d := testDomain(t)
	r := NewRegistry()

	var setups, calls int
	require.NoError(t, AddOption(r, "counted", func(n int, p Params) error {
		calls++
		if n != p.Int(0)*10 {
			return fmt.Errorf("fixture %d does not match %s", n, p)
		}
		return nil
	}, func(p Params) (int, error) {
		setups++
		return p.Int(0) * 10, nil
	}))

	runner := NewRunner(r, d, quietConfig())
	require.NoError(t, runner.SetRepeats(4))

	table, err := runner.Sweep(context.Background())
	require.NoError(t, err)

	cells := d.Points()
	assert.Equal(t, cells, table.Len())
	assert.Equal(t, cells, setups)
	assert.Equal(t, cells*(1+4), calls)
}

// TestSweep_ExperimentFailure verifies the sweep stops at the failing cell and
// keeps what was measured before it.
func TestSweep_ExperimentFailure(t *testing.T) {
	d, err := NewDomain(NumericParam("size", 1, 2, 3, 4))
	require.NoError(t, err)

	boom := errors.New("boom")
	r := NewRegistry()
	require.NoError(t, r.Add("fragile", func(p Params) error {
		if p.Int(0) == 3 {
			return boom
		}
		return nil
	}))
	require.NoError(t, r.Add("never", noop))

	table, err := NewRunner(r, d, quietConfig()).Sweep(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExperimentFailed)
	assert.ErrorIs(t, err, boom)

	var se *SweepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "fragile", se.Option)
	assert.True(t, se.Params.Equal(Params{Num(3)}))

	require.NotNil(t, table)
	assert.Equal(t, 2, table.Len())
	assert.True(t, table.Sealed())
	assert.Empty(t, table.RowsFor("never"))
}

// TestSweep_PanicAndSetupFailure verifies both surface as experiment failures.
func TestSweep_PanicAndSetupFailure(t *testing.T) {
	d, err := NewDomain(NumericParam("size", 1))
	require.NoError(t, err)

	t.Run("panic", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Add("panics", func(Params) error { panic("index out of range") }))

		_, err := NewRunner(r, d, quietConfig()).Sweep(context.Background())
		assert.ErrorIs(t, err, ErrExperimentFailed)
		assert.Contains(t, err.Error(), "index out of range")
	})

	t.Run("setup", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, AddOption(r, "nofixture", func(int, Params) error { return nil },
			func(Params) (int, error) { return 0, errors.New("no input") }))

		_, err := NewRunner(r, d, quietConfig()).Sweep(context.Background())
		assert.ErrorIs(t, err, ErrExperimentFailed)
		assert.Contains(t, err.Error(), "setup")
	})
}

// TestSweep_Cancelled verifies a cancelled context stops the sweep between cells.
func TestSweep_Cancelled(t *testing.T) {
	d := testDomain(t)
	r := NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	require.NoError(t, r.Add("cancels", func(Params) error {
		calls++
		cancel()
		return nil
	}))

	table, err := NewRunner(r, d, quietConfig()).Sweep(ctx)
	assert.ErrorIs(t, err, ErrSweepAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, table.Len(), "the cell in progress completes")
	assert.Equal(t, 1+3, calls)
}

// TestSweep_InvalidRepeats verifies a non-positive repeat count is refused.
func TestSweep_InvalidRepeats(t *testing.T) {
	d := testDomain(t)
	r := NewRegistry()
	require.NoError(t, r.Add("a", noop))

	runner := NewRunner(r, d, Config{})
	assert.ErrorIs(t, runner.SetRepeats(0), ErrInvalidRepeats)

	_, err := runner.Sweep(context.Background())
	assert.ErrorIs(t, err, ErrInvalidRepeats)
}

// TestSweep_Parallel verifies the bounded parallel path records the same
// rows, in the same order, as the sequential one.
func TestSweep_Parallel(t *testing.T) {
	d := testDomain(t)
	r := NewRegistry()

	var calls atomic.Int64
	count := func(Params) error {
		calls.Add(1)
		return nil
	}
	require.NoError(t, r.Add("a", count))
	require.NoError(t, r.Add("b", count))

	cfg := quietConfig()
	cfg.Parallelism = 4
	table, err := NewRunner(r, d, cfg).Sweep(context.Background())
	require.NoError(t, err)

	AssertComplete(t, table, d)
	assert.Equal(t, int64(2*d.Points()*(1+cfg.Repeats)), calls.Load())

	tuples := d.Tuples()
	for i, m := range table.Rows() {
		assert.True(t, tuples[i%len(tuples)].Equal(m.Params), "row %d", i)
	}
}

// TestSweep_ParallelFailure verifies the parallel path keeps only the
// successful prefix.
func TestSweep_ParallelFailure(t *testing.T) {
	d, err := NewDomain(NumericParam("size", 1, 2, 3, 4, 5, 6))
	require.NoError(t, err)

	r := NewRegistry()
	require.NoError(t, r.Add("fragile", func(p Params) error {
		if p.Int(0) == 3 {
			return errors.New("boom")
		}
		return nil
	}))

	cfg := quietConfig()
	cfg.Parallelism = 2
	table, err := NewRunner(r, d, cfg).Sweep(context.Background())
	assert.ErrorIs(t, err, ErrExperimentFailed)
	assert.Equal(t, 2, table.Len())
}

// TestRun_FileSink verifies a successful run commits the encoded table.
func TestRun_FileSink(t *testing.T) {
	d := testDomain(t)
	r := NewRegistry()
	require.NoError(t, r.Add("a", noop))

	path := filepath.Join(t.TempDir(), "out.txt")
	table, err := NewRunner(r, d, quietConfig()).Run(context.Background(), FileSink{Path: path}, lineEncoder{})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, table.Len(), bytes.Count(data, []byte("\n")))
	assert.Contains(t, string(data), "a size=1,mode=x ")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files remain")
}

// TestRun_FailureCommitsNothing verifies a failed sweep or encoding leaves no
// table at the sink path.
func TestRun_FailureCommitsNothing(t *testing.T) {
	d := testDomain(t)

	t.Run("experiment", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Add("broken", func(Params) error { return errors.New("broken") }))

		dir := t.TempDir()
		path := filepath.Join(dir, "out.txt")
		_, err := NewRunner(r, d, quietConfig()).Run(context.Background(), FileSink{Path: path}, lineEncoder{})
		assert.ErrorIs(t, err, ErrExperimentFailed)
		assert.NoFileExists(t, path)

		entries, _ := os.ReadDir(dir)
		assert.Empty(t, entries)
	})

	t.Run("encoder", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Add("a", noop))

		path := filepath.Join(t.TempDir(), "out.txt")
		_, err := NewRunner(r, d, quietConfig()).Run(context.Background(), FileSink{Path: path}, failingEncoder{})
		assert.ErrorIs(t, err, ErrSinkUnavailable)
		assert.NoFileExists(t, path)
	})
}

// TestRun_SinkUnavailable verifies an unopenable sink fails before any
// experiment runs.
func TestRun_SinkUnavailable(t *testing.T) {
	d := testDomain(t)
	r := NewRegistry()
	calls := 0
	require.NoError(t, r.Add("a", func(Params) error {
		calls++
		return nil
	}))

	path := filepath.Join(t.TempDir(), "missing", "out.txt")
	table, err := NewRunner(r, d, quietConfig()).Run(context.Background(), FileSink{Path: path}, lineEncoder{})
	assert.ErrorIs(t, err, ErrSinkUnavailable)
	assert.Nil(t, table)
	assert.Zero(t, calls)
}

// TestRun_WriterSink verifies an existing writer receives the table.
func TestRun_WriterSink(t *testing.T) {
	d := testDomain(t)
	r := NewRegistry()
	require.NoError(t, r.Add("a", noop))

	var buf bytes.Buffer
	table, err := NewRunner(r, d, quietConfig()).Run(context.Background(), WriterSink{W: &buf}, lineEncoder{})
	require.NoError(t, err)
	assert.Equal(t, table.Len(), bytes.Count(buf.Bytes(), []byte("\n")))

	var again bytes.Buffer
	require.NoError(t, WriteTable(WriterSink{W: &again}, lineEncoder{}, table))
	assert.Equal(t, buf.String(), again.String())
}
