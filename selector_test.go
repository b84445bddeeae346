package nadir

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// crossoverTable holds a quadratic and an n·ln(n) option whose costs cross
// at size 64.
func crossoverTable(t *testing.T) *Table {
	t.Helper()
	b := 1e-9 * 64 / math.Log(64)

	table := NewTable(Size("size"))
	sizes := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}
	for _, x := range sizes {
		require.NoError(t, table.Add("n2", Params{Num(x)}, 1e-9*x*x))
	}
	for _, x := range sizes {
		require.NoError(t, table.Add("nlogn", Params{Num(x)}, b*xlogx(x)))
	}
	return table
}

// TestChoose_Crossover verifies the quadratic option wins small inputs and
// the n·ln(n) option wins large ones, including sizes never measured.
func TestChoose_Crossover(t *testing.T) {
	table := crossoverTable(t)

	AssertChooses(t, table, Params{Num(10)}, "n2")
	AssertChooses(t, table, Params{Num(50)}, "n2")
	AssertChooses(t, table, Params{Num(100)}, "nlogn")
	AssertChooses(t, table, Params{Num(100000)}, "nlogn")

	cfg := DefaultAssertionConfig()
	AssertModelFit(t, table, "n2", cfg)
	AssertModelFit(t, table, "nlogn", cfg)
	PrintAnalysis(t, table)
}

// TestChoose_SealsTable verifies selection ends the append phase.
func TestChoose_SealsTable(t *testing.T) {
	table := crossoverTable(t)

	_, err := Choose(table, Params{Num(10)})
	require.NoError(t, err)
	assert.True(t, table.Sealed())
	assert.ErrorIs(t, table.Add("late", Params{Num(1)}, 1), ErrTableSealed)
}

// TestChoose_Errors covers every selection failure.
func TestChoose_Errors(t *testing.T) {
	_, err := Choose(NewTable(Size("size")), Params{Num(1)})
	AssertSelectionError(t, err, ErrEmptyTable)

	table := crossoverTable(t)
	sel := table.Selector()

	_, err = sel.Choose(Params{Enum(0)})
	AssertSelectionError(t, err, ErrQueryMismatch)

	_, err = sel.Choose(Params{Num(1), Num(2)})
	AssertSelectionError(t, err, ErrQueryMismatch)

	_, err = sel.Choose(Params{Num(math.Inf(1))})
	AssertSelectionError(t, err, ErrQueryMismatch)

	_, err = sel.Predict("bubble", Params{Num(1)})
	AssertSelectionError(t, err, ErrUnknownOption)

	_, err = sel.Model("bubble")
	AssertSelectionError(t, err, ErrUnknownOption)

	_, err = NewSelector(NewTable()).Model("n2")
	AssertSelectionError(t, err, ErrEmptyTable)
}

// TestChoose_TieGoesToFirst verifies identical predictions pick the option
// that appears first.
func TestChoose_TieGoesToFirst(t *testing.T) {
	for _, order := range [][]string{{"a", "b"}, {"b", "a"}} {
		table := NewTable(Size("size"))
		for _, opt := range order {
			for _, x := range []float64{1, 10, 100} {
				require.NoError(t, table.Add(opt, Params{Num(x)}, 1e-6*x))
			}
		}

		got, err := Choose(table, Params{Num(50)})
		require.NoError(t, err)
		assert.Equal(t, order[0], got)

		ranking, err := table.Selector().Ranking(Params{Num(50)})
		require.NoError(t, err)
		assert.Equal(t, order[0], ranking[0].Option)
		assert.Equal(t, order[1], ranking[1].Option)
	}
}

// TestRanking_Order verifies predictions are sorted fastest first.
func TestRanking_Order(t *testing.T) {
	table := crossoverTable(t)

	ranking, err := table.Selector().Ranking(Params{Num(1000)})
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	assert.Equal(t, "nlogn", ranking[0].Option)
	assert.Equal(t, "n2", ranking[1].Option)
	assert.Less(t, ranking[0].Seconds, ranking[1].Seconds)

	s, err := table.Selector().Predict("n2", Params{Num(1000)})
	require.NoError(t, err)
	assert.InEpsilon(t, 1e-3, s, 1e-6)
}

// TestChoose_Groups verifies enumerated parameters select per combination.
func TestChoose_Groups(t *testing.T) {
	table := NewTable(Size("size"), EnumParam("mode", "x", "y"))
	for _, x := range []float64{1, 2, 4, 8, 16} {
		require.NoError(t, table.Add("a", Params{Num(x), Enum(0)}, 1e-6*x))
		require.NoError(t, table.Add("a", Params{Num(x), Enum(1)}, 1e-3))
		require.NoError(t, table.Add("b", Params{Num(x), Enum(0)}, 5e-4))
		require.NoError(t, table.Add("b", Params{Num(x), Enum(1)}, 5e-4))
	}

	AssertChooses(t, table, Params{Num(100), Enum(0)}, "a")
	AssertChooses(t, table, Params{Num(100), Enum(1)}, "b")
	AssertChooses(t, table, Params{Num(1000), Enum(0)}, "b")
}

// TestChoose_Concurrent verifies concurrent callers agree and the models are
// fit once.
func TestChoose_Concurrent(t *testing.T) {
	table := crossoverTable(t)

	const workers = 16
	results := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := Choose(table, Params{Num(10)})
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, "n2", got)
	}
	assert.Same(t, table.Selector(), table.Selector())

	m1, err := table.Selector().Model("n2")
	require.NoError(t, err)
	m2, err := table.Selector().Model("n2")
	require.NoError(t, err)
	assert.Same(t, m1, m2)
}

// TestChoose_Deterministic verifies repeated queries give the same answer.
func TestChoose_Deterministic(t *testing.T) {
	table := crossoverTable(t)
	first, err := Choose(table, Params{Num(64)})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		got, err := Choose(table, Params{Num(64)})
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

func TestNearlyEqual(t *testing.T) {
	assert.True(t, nearlyEqual(1, 1))
	assert.True(t, nearlyEqual(1, 1+1e-12))
	assert.False(t, nearlyEqual(1, 1+1e-6))
	assert.True(t, nearlyEqual(0, 0))
	assert.False(t, nearlyEqual(0, 1e-300))
}

// TestChoose_SingleValuedSlot verifies a numeric slot held at one value does
// not flatten the model of the slots that vary.
func TestChoose_SingleValuedSlot(t *testing.T) {
	b := 1e-9 * 64 / math.Log(64)
	table := NewTable(Size("size"), NumericParam("threads", 1))
	sizes := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}
	for _, x := range sizes {
		require.NoError(t, table.Add("n2", Params{Num(x), Num(1)}, 1e-9*x*x))
	}
	for _, x := range sizes {
		require.NoError(t, table.Add("nlogn", Params{Num(x), Num(1)}, b*xlogx(x)))
	}

	AssertChooses(t, table, Params{Num(10), Num(1)}, "n2")
	AssertChooses(t, table, Params{Num(100000), Num(1)}, "nlogn")

	m, err := table.Selector().Model("n2")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "size", "size·ln(size)", "size²"}, m.Pooled.Terms)
	assert.InDelta(t, 1.0, m.Pooled.RSquared, 1e-9)
}

// TestRanking_AgreesWithChoose verifies chained near-ties rank the option
// Choose picks first.
func TestRanking_AgreesWithChoose(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Add("a", Params{}, 1))
	require.NoError(t, table.Add("b", Params{}, 1-0.8e-9))
	require.NoError(t, table.Add("c", Params{}, 1-1.6e-9))

	choice, err := Choose(table, Params{})
	require.NoError(t, err)
	assert.Equal(t, "c", choice)

	ranking, err := table.Selector().Ranking(Params{})
	require.NoError(t, err)
	require.Len(t, ranking, 3)
	assert.Equal(t, []string{"c", "a", "b"},
		[]string{ranking[0].Option, ranking[1].Option, ranking[2].Option})
}
