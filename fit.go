package nadir

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// maxCondition bounds the condition number of an accepted design matrix.
// Above it the basis is reduced and the fit retried.
const maxCondition = 1e12

// flatTolerance is the relative spread under which rows count as constant.
const flatTolerance = 1e-20

// feature is one regression column derived from a numeric slot.
type feature struct {
	slot int
	name string
	eval func(x float64) float64
}

// bases are tried in order, richest first; the first well-conditioned one
// with no more columns than rows wins. The intercept is always present.
var bases = [][]featureKind{
	{linear, logLinear, quadratic},
	{linear, quadratic},
	{linear},
	{},
}

type featureKind int

const (
	linear featureKind = iota
	logLinear
	quadratic
)

func (k featureKind) feature(slot int, name string) feature {
	switch k {
	case logLinear:
		return feature{slot: slot, name: name + "·ln(" + name + ")", eval: xlogx}
	case quadratic:
		return feature{slot: slot, name: name + "²", eval: func(x float64) float64 { return x * x }}
	default:
		return feature{slot: slot, name: name, eval: func(x float64) float64 { return x }}
	}
}

func xlogx(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return x * math.Log(x)
}

// Fit is a least-squares model of seconds against numeric parameters for
// the rows sharing one combination of enumerated values.
type Fit struct {
	Group        string    // Enumerated labels joined by "/", empty without enumerated slots
	Terms        []string  // Column names, "1" for the intercept
	Coefficients []float64 // One per term, in unscaled units
	RSquared     float64   // 1.0 = perfect fit
	Rows         int

	features []feature
}

// Predict evaluates the fit at q. Predictions are clamped at zero.
func (f *Fit) Predict(q Params) float64 {
	y := f.Coefficients[0]
	for j, ft := range f.features {
		y += f.Coefficients[j+1] * ft.eval(q[ft.slot].Float())
	}
	if y < 0 || math.IsNaN(y) {
		return 0
	}
	return y
}

// CostModel predicts the seconds one option takes for a parameter tuple.
// Each combination of enumerated values gets its own Fit; a pooled Fit over
// all rows answers combinations the option was never measured at.
type CostModel struct {
	Option string
	Fits   []*Fit
	Pooled *Fit

	schema []ParameterSpec
	groups map[string]*Fit
}

// FitCostModel fits a cost model from one option's rows.
func FitCostModel(option string, schema []ParameterSpec, rows []Measurement) (*CostModel, error) {
	if len(rows) == 0 {
		return nil, selectionf(ErrUnknownOption, "%q has no rows", option)
	}

	m := &CostModel{
		Option: option,
		schema: schema,
		groups: make(map[string]*Fit),
	}

	var order []string
	grouped := make(map[string][]Measurement)
	for _, row := range rows {
		key := groupKey(schema, row.Params)
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], row)
	}

	for _, key := range order {
		f, err := fitRows(schema, grouped[key])
		if err != nil {
			return nil, fmt.Errorf("option %q group %q: %w", option, key, err)
		}
		f.Group = key
		m.groups[key] = f
		m.Fits = append(m.Fits, f)
	}

	if len(order) == 1 {
		m.Pooled = m.Fits[0]
	} else {
		pooled, err := fitRows(schema, rows)
		if err != nil {
			return nil, fmt.Errorf("option %q pooled: %w", option, err)
		}
		m.Pooled = pooled
	}
	return m, nil
}

// Predict returns the predicted seconds at q.
func (m *CostModel) Predict(q Params) float64 {
	if f, ok := m.groups[groupKey(m.schema, q)]; ok {
		return f.Predict(q)
	}
	return m.Pooled.Predict(q)
}

func groupKey(schema []ParameterSpec, p Params) string {
	var parts []string
	for i, s := range schema {
		if s.Kind == Enumerated {
			parts = append(parts, s.Format(p[i]))
		}
	}
	return strings.Join(parts, "/")
}

// fitRows regresses seconds on the numeric slots of rows.
// A slot with d distinct values contributes at most d-1 features, so a slot
// held at one value drops out instead of collapsing the whole basis.
// It always succeeds for non-empty rows: the intercept-only basis is the
// mean, which is well conditioned.
func fitRows(schema []ParameterSpec, rows []Measurement) (*Fit, error) {
	distinct := make([]int, len(schema))
	for slot, s := range schema {
		if s.Kind != Numeric {
			continue
		}
		seen := make(map[float64]struct{})
		for _, r := range rows {
			seen[r.Params[slot].Float()] = struct{}{}
		}
		distinct[slot] = len(seen)
	}

	var lastErr error
	for _, kinds := range bases {
		var features []feature
		for slot, s := range schema {
			if s.Kind != Numeric {
				continue
			}
			slotKinds := kinds
			if limit := distinct[slot] - 1; len(slotKinds) > limit {
				slotKinds = slotKinds[:limit]
			}
			for _, k := range slotKinds {
				features = append(features, k.feature(slot, s.Name))
			}
		}
		if len(features)+1 > len(rows) {
			continue
		}
		f, err := solve(rows, features)
		if err != nil {
			lastErr = err
			continue
		}
		return f, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no basis fits %d rows", len(rows))
	}
	return nil, lastErr
}

// solve fits y = b0 + Σ bj·fj(x) by least squares on a QR factorization.
// Columns are scaled to unit max-norm before factorizing.
func solve(rows []Measurement, features []feature) (*Fit, error) {
	n, cols := len(rows), len(features)+1

	x := mat.NewDense(n, cols, nil)
	y := mat.NewVecDense(n, nil)
	scale := make([]float64, cols)
	scale[0] = 1

	for i, row := range rows {
		x.Set(i, 0, 1)
		for j, ft := range features {
			v := ft.eval(row.Params[ft.slot].Float())
			x.Set(i, j+1, v)
			scale[j+1] = math.Max(scale[j+1], math.Abs(v))
		}
		y.SetVec(i, row.Seconds)
	}
	for j := 1; j < cols; j++ {
		if scale[j] == 0 {
			return nil, fmt.Errorf("column %s is all zero", features[j-1].name)
		}
		for i := 0; i < n; i++ {
			x.Set(i, j, x.At(i, j)/scale[j])
		}
	}

	var qr mat.QR
	qr.Factorize(x)
	if c := qr.Cond(); c > maxCondition || math.IsNaN(c) {
		return nil, mat.Condition(c)
	}
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, y); err != nil {
		return nil, err
	}

	coef := make([]float64, cols)
	for j := range coef {
		coef[j] = beta.AtVec(j) / scale[j]
		if math.IsNaN(coef[j]) || math.IsInf(coef[j], 0) {
			return nil, fmt.Errorf("non-finite coefficient for column %d", j)
		}
	}

	terms := make([]string, cols)
	terms[0] = "1"
	for j, ft := range features {
		terms[j+1] = ft.name
	}

	f := &Fit{
		Terms:        terms,
		Coefficients: coef,
		Rows:         n,
		features:     features,
	}
	f.RSquared = rSquared(f, rows)
	return f, nil
}

// rSquared is the coefficient of determination of f over rows.
func rSquared(f *Fit, rows []Measurement) float64 {
	var mean float64
	for _, r := range rows {
		mean += r.Seconds
	}
	mean /= float64(len(rows))

	var ssRes, ssTot float64
	for _, r := range rows {
		predicted := f.Coefficients[0]
		for j, ft := range f.features {
			predicted += f.Coefficients[j+1] * ft.eval(r.Params[ft.slot].Float())
		}
		ssRes += (r.Seconds - predicted) * (r.Seconds - predicted)
		ssTot += (r.Seconds - mean) * (r.Seconds - mean)
	}
	// Flat data: compare against the magnitude of the mean instead.
	floor := flatTolerance * mean * mean * float64(len(rows))
	if ssTot <= floor {
		if ssRes <= floor {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

func (f *Fit) String() string {
	var b strings.Builder
	for j, t := range f.Terms {
		if j > 0 {
			b.WriteString(" + ")
		}
		b.WriteString(strconv.FormatFloat(f.Coefficients[j], 'g', 4, 64))
		if t != "1" {
			b.WriteString("·" + t)
		}
	}
	fmt.Fprintf(&b, " (R²=%.4f, n=%d)", f.RSquared, f.Rows)
	return b.String()
}
