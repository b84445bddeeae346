package nadir

import (
	"math"
	"sync"
)

// TieEpsilon is the relative difference under which two predictions are
// considered equal. Ties go to the option registered first.
const TieEpsilon = 1e-9

// Prediction is one option's predicted seconds for a query.
type Prediction struct {
	Option  string
	Seconds float64
}

// Selector answers "which option is fastest for these parameters" from a
// sealed table. Models are fit once, on first use, and are read-only
// afterwards, so a Selector is safe for concurrent use.
type Selector struct {
	table *Table

	once   sync.Once
	models map[string]*CostModel
	err    error
}

// NewSelector seals t and returns a selector over it.
func NewSelector(t *Table) *Selector {
	t.Seal()
	return &Selector{table: t}
}

// Choose returns the identifier of the option with the lowest predicted
// duration at query.
func (s *Selector) Choose(query Params) (string, error) {
	preds, err := s.predictAll(query)
	if err != nil {
		return "", err
	}
	return preds[fastest(preds)].Option, nil
}

// Ranking returns every option ordered from fastest to slowest predicted.
// Each position holds what Choose would pick among the options not yet
// placed, so Ranking(q)[0] is always Choose(q).
func (s *Selector) Ranking(query Params) ([]Prediction, error) {
	preds, err := s.predictAll(query)
	if err != nil {
		return nil, err
	}
	for i := range preds {
		best := i + fastest(preds[i:])
		p := preds[best]
		copy(preds[i+1:best+1], preds[i:best])
		preds[i] = p
	}
	return preds, nil
}

// fastest scans preds in order and returns the index of the lowest
// prediction. A later entry replaces the current best only when it is
// lower by more than TieEpsilon, so ties keep the earlier option.
func fastest(preds []Prediction) int {
	best := 0
	for i := 1; i < len(preds); i++ {
		a, b := preds[i].Seconds, preds[best].Seconds
		if a < b && !nearlyEqual(a, b) {
			best = i
		}
	}
	return best
}

// Predict returns one option's predicted seconds at query.
func (s *Selector) Predict(option string, query Params) (float64, error) {
	m, err := s.Model(option)
	if err != nil {
		return 0, err
	}
	if err := s.checkQuery(query); err != nil {
		return 0, err
	}
	return m.Predict(query), nil
}

// Model returns the fitted cost model of one option.
func (s *Selector) Model(option string) (*CostModel, error) {
	if s.table.Len() == 0 {
		return nil, &SelectionError{Kind: ErrEmptyTable}
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	m, ok := s.models[option]
	if !ok {
		return nil, selectionf(ErrUnknownOption, "%q", option)
	}
	return m, nil
}

func (s *Selector) predictAll(query Params) ([]Prediction, error) {
	if s.table.Len() == 0 {
		return nil, &SelectionError{Kind: ErrEmptyTable}
	}
	if err := s.checkQuery(query); err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	options := s.table.Options()
	preds := make([]Prediction, len(options))
	for i, opt := range options {
		preds[i] = Prediction{Option: opt, Seconds: s.models[opt].Predict(query)}
	}
	return preds, nil
}

func (s *Selector) checkQuery(query Params) error {
	if err := checkTuple(s.table.schema, query); err != nil {
		return &SelectionError{Kind: ErrQueryMismatch, Msg: err.Error()}
	}
	return nil
}

func (s *Selector) load() error {
	s.once.Do(func() {
		models := make(map[string]*CostModel)
		for _, opt := range s.table.Options() {
			m, err := FitCostModel(opt, s.table.schema, s.table.RowsFor(opt))
			if err != nil {
				s.err = err
				return
			}
			models[opt] = m
		}
		s.models = models
	})
	return s.err
}

func nearlyEqual(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= TieEpsilon*math.Max(math.Abs(a), math.Abs(b))
}
