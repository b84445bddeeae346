package nadir

// Domain holds, per parameter slot, the finite set of values a sweep visits.
// Slots are addressed by registration order.
type Domain struct {
	specs  []ParameterSpec
	values [][]Value
}

// NewDomain registers each spec in order with its default sweep.
func NewDomain(specs ...ParameterSpec) (*Domain, error) {
	d := &Domain{}
	for _, s := range specs {
		if _, err := d.Register(s); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Register appends a slot and installs its default domain.
// It returns the slot index.
func (d *Domain) Register(spec ParameterSpec) (int, error) {
	if err := spec.Validate(); err != nil {
		return -1, err
	}
	spec.Labels = append([]string(nil), spec.Labels...)
	spec.Defaults = append([]Value(nil), spec.Defaults...)
	d.specs = append(d.specs, spec)
	d.values = append(d.values, nil)
	slot := len(d.specs) - 1
	if err := d.RegisterDefault(slot); err != nil {
		d.specs = d.specs[:slot]
		d.values = d.values[:slot]
		return -1, err
	}
	return slot, nil
}

// RegisterDefault installs the built-in domain for the slot's kind:
// the size ladder (or the spec's own defaults) for Numeric, every label for
// Enumerated. Calling it twice yields the same domain.
func (d *Domain) RegisterDefault(slot int) error {
	if err := d.checkSlot(slot); err != nil {
		return err
	}
	values := d.specs[slot].defaults()
	if len(values) == 0 {
		return registrationf(ErrInvalidDomain, "parameter %q has an empty default domain", d.specs[slot].Name)
	}
	d.values[slot] = values
	return nil
}

// Override replaces the slot's domain.
func (d *Domain) Override(slot int, values ...Value) error {
	if err := d.checkSlot(slot); err != nil {
		return err
	}
	spec := d.specs[slot]
	if len(values) == 0 {
		return registrationf(ErrInvalidDomain, "parameter %q: no values", spec.Name)
	}
	for _, v := range values {
		if err := spec.Check(v); err != nil {
			return registrationf(ErrInvalidDomain, "%v", err)
		}
	}
	d.values[slot] = append([]Value(nil), values...)
	return nil
}

// Slot returns the index of the named parameter.
func (d *Domain) Slot(name string) (int, bool) {
	for i, s := range d.specs {
		if s.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Len returns the number of slots.
func (d *Domain) Len() int { return len(d.specs) }

// Spec returns the slot's declaration.
func (d *Domain) Spec(slot int) ParameterSpec { return d.specs[slot] }

// Specs returns all slot declarations in slot order.
func (d *Domain) Specs() []ParameterSpec {
	return append([]ParameterSpec(nil), d.specs...)
}

// Values returns a copy of the slot's current domain.
func (d *Domain) Values(slot int) []Value {
	return append([]Value(nil), d.values[slot]...)
}

// Points returns the size of the Cartesian product of all slot domains.
// A domain without slots has exactly one point, the empty tuple.
func (d *Domain) Points() int {
	n := 1
	for _, vs := range d.values {
		n *= len(vs)
	}
	return n
}

// Each calls fn for every point of the Cartesian product, last slot varying
// fastest. Iteration stops at the first error, which is returned.
// fn receives a fresh tuple it may retain.
func (d *Domain) Each(fn func(Params) error) error {
	counters := make([]int, len(d.values))
	for _, vs := range d.values {
		if len(vs) == 0 {
			return nil
		}
	}
	for {
		p := make(Params, len(d.values))
		for i, c := range counters {
			p[i] = d.values[i][c]
		}
		if err := fn(p); err != nil {
			return err
		}

		i := len(counters) - 1
		for ; i >= 0; i-- {
			counters[i]++
			if counters[i] < len(d.values[i]) {
				break
			}
			counters[i] = 0
		}
		if i < 0 {
			return nil
		}
	}
}

// Tuples returns every point of the Cartesian product in iteration order.
func (d *Domain) Tuples() []Params {
	out := make([]Params, 0, d.Points())
	_ = d.Each(func(p Params) error {
		out = append(out, p)
		return nil
	})
	return out
}

// Contains reports whether p is a point of the Cartesian product.
func (d *Domain) Contains(p Params) bool {
	if len(p) != len(d.values) {
		return false
	}
	for i, v := range p {
		found := false
		for _, dv := range d.values[i] {
			if dv == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (d *Domain) checkSlot(slot int) error {
	if slot < 0 || slot >= len(d.specs) {
		return registrationf(ErrInvalidDomain, "slot %d out of range [0,%d)", slot, len(d.specs))
	}
	return nil
}
