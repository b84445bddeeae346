package nadir

// Experiment runs one candidate implementation against a parameter tuple.
// A returned error aborts the sweep.
type Experiment func(p Params) error

// Setup builds a fixture for a parameter tuple outside of timing.
type Setup[F any] func(p Params) (F, error)

// Trial is an experiment bound to one tuple and its fixture.
type Trial func() error

// option is a registered candidate. prepare runs the setup procedure, if
// any, and binds the fixture into a Trial.
type option struct {
	id      string
	prepare func(p Params) (Trial, error)
}

// Registry is the ordered set of candidate options for one session.
// Registration order is sweep order, persisted order, and the selector's
// tie-break order.
type Registry struct {
	options []option
	index   map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Add registers an option without a fixture.
func (r *Registry) Add(id string, experiment Experiment) error {
	if experiment == nil {
		return registrationf(ErrInvalidIdentifier, "option %q has no experiment", id)
	}
	return r.add(id, func(p Params) (Trial, error) {
		return func() error { return experiment(p) }, nil
	})
}

// AddOption registers an option whose experiment receives a fixture of type
// F built by setup. A nil setup passes F's zero value.
func AddOption[F any](r *Registry, id string, experiment func(fixture F, p Params) error, setup Setup[F]) error {
	if experiment == nil {
		return registrationf(ErrInvalidIdentifier, "option %q has no experiment", id)
	}
	return r.add(id, func(p Params) (Trial, error) {
		var fixture F
		if setup != nil {
			var err error
			if fixture, err = setup(p); err != nil {
				return nil, err
			}
		}
		return func() error { return experiment(fixture, p) }, nil
	})
}

func (r *Registry) add(id string, prepare func(Params) (Trial, error)) error {
	if id == "" {
		return registrationf(ErrInvalidIdentifier, "empty identifier")
	}
	if _, ok := r.index[id]; ok {
		return registrationf(ErrDuplicateIdentifier, "%q", id)
	}
	r.index[id] = len(r.options)
	r.options = append(r.options, option{id: id, prepare: prepare})
	return nil
}

// Len returns the number of registered options.
func (r *Registry) Len() int { return len(r.options) }

// IDs returns the identifiers in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.options))
	for i, o := range r.options {
		ids[i] = o.id
	}
	return ids
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.index[id]
	return ok
}
