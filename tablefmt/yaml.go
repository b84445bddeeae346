package tablefmt

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/alexshd/nadir"
)

// YAML writes the schema and rows as a YAML document.
type YAML struct{}

type yamlTable struct {
	RunID      string          `yaml:"run_id,omitempty"`
	Parameters []yamlParameter `yaml:"parameters"`
	Rows       []yamlRow       `yaml:"rows"`
}

type yamlParameter struct {
	Name   string   `yaml:"name"`
	Kind   string   `yaml:"kind"`
	Labels []string `yaml:"labels,omitempty,flow"`
}

type yamlRow struct {
	Option  string   `yaml:"option"`
	Params  []string `yaml:"params,flow"`
	Seconds float64  `yaml:"seconds"`
}

// Encode writes t as YAML.
func (YAML) Encode(w io.Writer, t *nadir.Table) error {
	schema := t.Schema()
	doc := yamlTable{
		RunID:      t.RunID,
		Parameters: marshalSchema(schema),
		Rows:       make([]yamlRow, 0, t.Len()),
	}
	for _, m := range t.Rows() {
		params := make([]string, len(schema))
		for i, s := range schema {
			params[i] = s.Format(m.Params[i])
		}
		doc.Rows = append(doc.Rows, yamlRow{Option: m.Option, Params: params, Seconds: m.Seconds})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// ReadYAML decodes a table written by YAML.Encode. The table is sealed.
func ReadYAML(r io.Reader) (*nadir.Table, error) {
	var doc yamlTable
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	schema, err := unmarshalSchema(doc.Parameters)
	if err != nil {
		return nil, err
	}

	t := nadir.NewTable(schema...)
	t.RunID = doc.RunID
	for n, row := range doc.Rows {
		if len(row.Params) != len(schema) {
			return nil, fmt.Errorf("decode yaml: row %d: got %d params, want %d", n, len(row.Params), len(schema))
		}
		params := make(nadir.Params, len(schema))
		for i, s := range schema {
			v, err := s.Parse(row.Params[i])
			if err != nil {
				return nil, fmt.Errorf("decode yaml: row %d: %w", n, err)
			}
			params[i] = v
		}
		if err := t.Add(row.Option, params, row.Seconds); err != nil {
			return nil, fmt.Errorf("decode yaml: row %d: %w", n, err)
		}
	}
	t.Seal()
	return t, nil
}

// MarshalSchema encodes parameter specs as a YAML list.
func MarshalSchema(schema []nadir.ParameterSpec) ([]byte, error) {
	return yaml.Marshal(marshalSchema(schema))
}

// UnmarshalSchema is the inverse of MarshalSchema.
func UnmarshalSchema(data []byte) ([]nadir.ParameterSpec, error) {
	var params []yamlParameter
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return unmarshalSchema(params)
}

func marshalSchema(schema []nadir.ParameterSpec) []yamlParameter {
	out := make([]yamlParameter, len(schema))
	for i, s := range schema {
		out[i] = yamlParameter{Name: s.Name, Kind: s.Kind.String(), Labels: s.Labels}
	}
	return out
}

func unmarshalSchema(params []yamlParameter) ([]nadir.ParameterSpec, error) {
	out := make([]nadir.ParameterSpec, len(params))
	for i, p := range params {
		kind, err := nadir.ParseKind(p.Kind)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		out[i] = nadir.ParameterSpec{Name: p.Name, Kind: kind, Labels: p.Labels}
		if err := out[i].Validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
