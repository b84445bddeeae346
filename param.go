package nadir

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/constraints"
)

// ParameterKind is the semantic type of a parameter slot.
// The set of kinds is closed; each kind maps to an entry in kindBehaviors.
type ParameterKind uint8

const (
	// KindInvalid is the zero value and is never accepted at registration.
	KindInvalid ParameterKind = iota
	// Numeric is a scalar such as a problem size.
	Numeric
	// Enumerated is a category drawn from a fixed, finite set of labels.
	Enumerated
)

func (k ParameterKind) String() string {
	if b, ok := kindBehaviors[k]; ok {
		return b.name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of ParameterKind.String for supported kinds.
func ParseKind(s string) (ParameterKind, error) {
	for k, b := range kindBehaviors {
		if b.name == s {
			return k, nil
		}
	}
	return KindInvalid, registrationf(ErrUnsupportedParameterType, "%q", s)
}

// DefaultSizeLadder spans several orders of magnitude so a sweep covers both
// the small and the large regime cheaply.
var DefaultSizeLadder = []float64{0, 1, 5, 10, 25, 50, 100, 500, 1000, 5000, 10000, 50000, 100000}

// Value is one parameter value: a number for Numeric slots or a label index
// for Enumerated slots.
type Value struct {
	kind ParameterKind
	num  float64
	idx  int
}

// Num returns a numeric value.
func Num[T constraints.Integer | constraints.Float](v T) Value {
	return Value{kind: Numeric, num: float64(v)}
}

// Numbers converts a list of numbers to values.
func Numbers[T constraints.Integer | constraints.Float](vs ...T) []Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = Num(v)
	}
	return out
}

// Enum returns the enumerated value with the given label index.
func Enum(index int) Value {
	return Value{kind: Enumerated, idx: index}
}

// Kind reports which variant the value holds.
func (v Value) Kind() ParameterKind { return v.kind }

// Float returns the numeric payload, or the label index as a float for
// enumerated values.
func (v Value) Float() float64 {
	if v.kind == Enumerated {
		return float64(v.idx)
	}
	return v.num
}

// Int returns the numeric payload truncated to an int, or the label index.
func (v Value) Int() int {
	if v.kind == Enumerated {
		return v.idx
	}
	return int(v.num)
}

// Index returns the label index of an enumerated value.
func (v Value) Index() int { return v.idx }

func (v Value) String() string {
	switch v.kind {
	case Numeric:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case Enumerated:
		return "#" + strconv.Itoa(v.idx)
	default:
		return "<invalid>"
	}
}

// Params is an ordered parameter tuple, indexed by slot.
type Params []Value

// Int returns slot i as an int.
func (p Params) Int(i int) int { return p[i].Int() }

// Float returns slot i as a float64.
func (p Params) Float(i int) float64 { return p[i].Float() }

// Index returns the label index held in enumerated slot i.
func (p Params) Index(i int) int { return p[i].Index() }

// Equal reports whether both tuples hold the same values in the same order.
func (p Params) Equal(o Params) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

func (p Params) String() string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ParameterSpec describes one parameter slot.
type ParameterSpec struct {
	Name string
	Kind ParameterKind

	// Labels is the complete value set of an Enumerated slot, in order.
	Labels []string

	// Defaults overrides the kind's built-in sweep for a Numeric slot.
	Defaults []Value
}

// Size declares a numeric slot swept over DefaultSizeLadder.
func Size(name string) ParameterSpec {
	return ParameterSpec{Name: name, Kind: Numeric}
}

// NumericParam declares a numeric slot with its own default sweep values.
func NumericParam[T constraints.Integer | constraints.Float](name string, defaults ...T) ParameterSpec {
	return ParameterSpec{Name: name, Kind: Numeric, Defaults: Numbers(defaults...)}
}

// EnumParam declares an enumerated slot whose default sweep is every label.
func EnumParam(name string, labels ...string) ParameterSpec {
	return ParameterSpec{Name: name, Kind: Enumerated, Labels: labels}
}

// Format renders v the way persisted tables store it.
func (s ParameterSpec) Format(v Value) string {
	b, ok := kindBehaviors[s.Kind]
	if !ok {
		return v.String()
	}
	return b.format(s, v)
}

// Parse reads a persisted value for this slot.
func (s ParameterSpec) Parse(text string) (Value, error) {
	b, ok := kindBehaviors[s.Kind]
	if !ok {
		return Value{}, registrationf(ErrUnsupportedParameterType, "parameter %q has kind %s", s.Name, s.Kind)
	}
	return b.parse(s, text)
}

// Check reports whether v is a legal value for this slot.
func (s ParameterSpec) Check(v Value) error {
	b, ok := kindBehaviors[s.Kind]
	if !ok {
		return registrationf(ErrUnsupportedParameterType, "parameter %q has kind %s", s.Name, s.Kind)
	}
	if v.kind != s.Kind {
		return fmt.Errorf("parameter %q: got %s value, want %s", s.Name, v.kind, s.Kind)
	}
	return b.check(s, v)
}

// reservedChars separate names, labels and values in persisted headers and
// query strings, so they cannot appear inside either.
const reservedChars = ":=|,"

// Validate reports whether the declaration can be swept and persisted.
// Tables decoded from storage run the same check as Domain.Register.
func (s ParameterSpec) Validate() error {
	if !validToken(s.Name) {
		return registrationf(ErrUnsupportedParameterType, "parameter name %q must be non-empty, untrimmed and free of %q", s.Name, reservedChars)
	}
	b, ok := kindBehaviors[s.Kind]
	if !ok {
		return registrationf(ErrUnsupportedParameterType, "parameter %q has kind %s", s.Name, s.Kind)
	}
	return b.validate(s)
}

func validToken(s string) bool {
	return s != "" && s == strings.TrimSpace(s) && !strings.ContainsAny(s, reservedChars)
}

func (s ParameterSpec) defaults() []Value {
	return kindBehaviors[s.Kind].defaults(s)
}

// kindBehavior is the per-kind dispatch table.
type kindBehavior struct {
	name     string
	validate func(ParameterSpec) error
	defaults func(ParameterSpec) []Value
	check    func(ParameterSpec, Value) error
	format   func(ParameterSpec, Value) string
	parse    func(ParameterSpec, string) (Value, error)
}

var kindBehaviors map[ParameterKind]kindBehavior

func init() {
	kindBehaviors = map[ParameterKind]kindBehavior{
		Numeric: {
			name: "numeric",
			validate: func(s ParameterSpec) error {
				for _, v := range s.Defaults {
					if err := s.Check(v); err != nil {
						return registrationf(ErrInvalidDomain, "%v", err)
					}
				}
				return nil
			},
			defaults: func(s ParameterSpec) []Value {
				if len(s.Defaults) > 0 {
					return append([]Value(nil), s.Defaults...)
				}
				return Numbers(DefaultSizeLadder...)
			},
			check: func(s ParameterSpec, v Value) error {
				if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
					return fmt.Errorf("parameter %q: non-finite value %v", s.Name, v.num)
				}
				return nil
			},
			format: func(_ ParameterSpec, v Value) string {
				return strconv.FormatFloat(v.num, 'g', -1, 64)
			},
			parse: func(s ParameterSpec, text string) (Value, error) {
				f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
				if err != nil {
					return Value{}, fmt.Errorf("parameter %q: %w", s.Name, err)
				}
				v := Num(f)
				return v, s.Check(v)
			},
		},
		Enumerated: {
			name: "enumerated",
			validate: func(s ParameterSpec) error {
				if len(s.Labels) == 0 {
					return registrationf(ErrUnsupportedParameterType, "enumerated parameter %q declares no labels", s.Name)
				}
				seen := make(map[string]bool, len(s.Labels))
				for _, l := range s.Labels {
					if !validToken(l) || seen[l] {
						return registrationf(ErrUnsupportedParameterType, "enumerated parameter %q: empty, repeated or malformed label %q", s.Name, l)
					}
					seen[l] = true
				}
				return nil
			},
			defaults: func(s ParameterSpec) []Value {
				out := make([]Value, len(s.Labels))
				for i := range s.Labels {
					out[i] = Enum(i)
				}
				return out
			},
			check: func(s ParameterSpec, v Value) error {
				if v.idx < 0 || v.idx >= len(s.Labels) {
					return fmt.Errorf("parameter %q: label index %d out of range [0,%d)", s.Name, v.idx, len(s.Labels))
				}
				return nil
			},
			format: func(s ParameterSpec, v Value) string {
				if v.idx < 0 || v.idx >= len(s.Labels) {
					return v.String()
				}
				return s.Labels[v.idx]
			},
			parse: func(s ParameterSpec, text string) (Value, error) {
				text = strings.TrimSpace(text)
				for i, l := range s.Labels {
					if l == text {
						return Enum(i), nil
					}
				}
				return Value{}, fmt.Errorf("parameter %q: unknown label %q", s.Name, text)
			},
		},
	}
}

// ParseParams reads a tuple written as "name=value,name=value". Every slot
// of schema must appear exactly once; order does not matter.
func ParseParams(schema []ParameterSpec, text string) (Params, error) {
	given := make(map[string]string)
	if strings.TrimSpace(text) != "" {
		for _, pair := range strings.Split(text, ",") {
			name, value, ok := strings.Cut(pair, "=")
			name = strings.TrimSpace(name)
			if !ok || name == "" {
				return nil, fmt.Errorf("%w: malformed pair %q", ErrQueryMismatch, pair)
			}
			if _, dup := given[name]; dup {
				return nil, fmt.Errorf("%w: %q given twice", ErrQueryMismatch, name)
			}
			given[name] = value
		}
	}
	if len(given) != len(schema) {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrQueryMismatch, len(given), len(schema))
	}
	p := make(Params, len(schema))
	for i, s := range schema {
		text, ok := given[s.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrQueryMismatch, s.Name)
		}
		v, err := s.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryMismatch, err)
		}
		p[i] = v
	}
	return p, nil
}

// FormatParams is the inverse of ParseParams, in slot order.
func FormatParams(schema []ParameterSpec, p Params) string {
	parts := make([]string, len(p))
	for i, v := range p {
		if i < len(schema) {
			parts[i] = schema[i].Name + "=" + schema[i].Format(v)
		} else {
			parts[i] = v.String()
		}
	}
	return strings.Join(parts, ",")
}
