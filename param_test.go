package nadir

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseKind_RoundTrip verifies every supported kind parses back from its name.
func TestParseKind_RoundTrip(t *testing.T) {
	for _, k := range []ParameterKind{Numeric, Enumerated} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("complex")
	assert.ErrorIs(t, err, ErrUnsupportedParameterType)
	assert.Equal(t, "kind(0)", KindInvalid.String())
}

// TestValue_Accessors verifies both variants expose their payload.
func TestValue_Accessors(t *testing.T) {
	n := Num(42)
	assert.Equal(t, Numeric, n.Kind())
	assert.Equal(t, 42, n.Int())
	assert.Equal(t, 42.0, n.Float())
	assert.Equal(t, "42", n.String())

	e := Enum(1)
	assert.Equal(t, Enumerated, e.Kind())
	assert.Equal(t, 1, e.Index())
	assert.Equal(t, 1, e.Int())
	assert.Equal(t, "#1", e.String())

	assert.Equal(t, Num(2.5), Numbers(2.5)[0])
	assert.Equal(t, Num(int64(7)), Num(7.0), "integer and float constructors agree")
}

// TestParameterSpec_Check covers kind mismatch, range and finiteness.
func TestParameterSpec_Check(t *testing.T) {
	size := Size("size")
	dir := EnumParam("direction", "Forward", "Backward")

	assert.NoError(t, size.Check(Num(10)))
	assert.Error(t, size.Check(Enum(0)))
	assert.Error(t, size.Check(Num(math.NaN())))
	assert.Error(t, size.Check(Num(math.Inf(1))))

	assert.NoError(t, dir.Check(Enum(1)))
	assert.Error(t, dir.Check(Enum(2)))
	assert.Error(t, dir.Check(Enum(-1)))
	assert.Error(t, dir.Check(Num(0)))

	err := ParameterSpec{Name: "x"}.Check(Num(1))
	assert.ErrorIs(t, err, ErrUnsupportedParameterType)
}

// TestParameterSpec_FormatParse verifies persisted text reads back as the same value.
func TestParameterSpec_FormatParse(t *testing.T) {
	size := Size("size")
	dir := EnumParam("direction", "Forward", "Backward")

	assert.Equal(t, "1000", size.Format(Num(1000)))
	assert.Equal(t, "0.5", size.Format(Num(0.5)))
	assert.Equal(t, "Backward", dir.Format(Enum(1)))

	v, err := size.Parse(" 1e3 ")
	require.NoError(t, err)
	assert.Equal(t, Num(1000), v)

	v, err = dir.Parse("Backward")
	require.NoError(t, err)
	assert.Equal(t, Enum(1), v)

	_, err = dir.Parse("Sideways")
	assert.Error(t, err)
	_, err = size.Parse("big")
	assert.Error(t, err)
}

// TestParseParams_AnyOrder verifies names, not positions, place the values.
func TestParseParams_AnyOrder(t *testing.T) {
	schema := []ParameterSpec{Size("size"), EnumParam("direction", "Forward", "Backward")}

	p, err := ParseParams(schema, "direction=Backward, size=100")
	require.NoError(t, err)
	assert.True(t, p.Equal(Params{Num(100), Enum(1)}))
	assert.Equal(t, "size=100,direction=Backward", FormatParams(schema, p))

	for name, text := range map[string]string{
		"missing":   "size=100",
		"extra":     "size=100,direction=Forward,depth=2",
		"duplicate": "size=1,size=2",
		"malformed": "size",
		"bad label": "size=1,direction=Up",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseParams(schema, text)
			assert.ErrorIs(t, err, ErrQueryMismatch)
		})
	}

	empty, err := ParseParams(nil, "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// TestParams_Equal compares length and values.
func TestParams_Equal(t *testing.T) {
	a := Params{Num(1), Enum(0)}
	assert.True(t, a.Equal(Params{Num(1), Enum(0)}))
	assert.False(t, a.Equal(Params{Num(1), Enum(1)}))
	assert.False(t, a.Equal(Params{Num(1)}))
	assert.False(t, Params{Num(0)}.Equal(Params{Enum(0)}), "kinds differ")
	assert.Equal(t, "(1, #0)", a.String())
}

func TestRegistrationError_Unwrap(t *testing.T) {
	err := registrationf(ErrInvalidDomain, "parameter %q: no values", "size")
	var re *RegistrationError
	require.True(t, errors.As(err, &re))
	assert.ErrorIs(t, err, ErrInvalidDomain)
	assert.Equal(t, `invalid parameter domain: parameter "size": no values`, err.Error())
}

// TestParameterSpec_Validate verifies names and labels that would not
// survive a persisted header or a query string are refused.
func TestParameterSpec_Validate(t *testing.T) {
	assert.NoError(t, Size("size").Validate())
	assert.NoError(t, EnumParam("mode", "fast path", "safe").Validate())

	for _, spec := range []ParameterSpec{
		Size(""),
		Size("a:b"),
		Size(" size"),
		EnumParam("mode", "x|y"),
		EnumParam("mode", "a=b"),
		EnumParam("mode", "a,b"),
		EnumParam("mode:kind", "x"),
		EnumParam("mode", " x"),
	} {
		err := spec.Validate()
		assert.ErrorIs(t, err, ErrUnsupportedParameterType, "%+v", spec)

		_, err = NewDomain(spec)
		assert.ErrorIs(t, err, ErrUnsupportedParameterType, "%+v", spec)
	}
}
