package tablefmt

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alexshd/nadir"
)

const (
	optionColumn   = "option"
	durationColumn = "duration_seconds"
	runIDPrefix    = "# nadir run_id="
)

// CSV writes one row per measurement:
//
//	option,<name>:<kind>[=<label>|<label>...],...,duration_seconds
//
// Enumerated values are written as labels. A leading comment line carries
// the run id.
type CSV struct{}

// Encode writes t as CSV.
func (CSV) Encode(w io.Writer, t *nadir.Table) error {
	if t.RunID != "" {
		if _, err := io.WriteString(w, runIDPrefix+t.RunID+"\n"); err != nil {
			return err
		}
	}

	schema := t.Schema()
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(schema)+2)
	header = append(header, optionColumn)
	for _, s := range schema {
		header = append(header, formatColumn(s))
	}
	header = append(header, durationColumn)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for _, m := range t.Rows() {
		record[0] = m.Option
		for i, s := range schema {
			record[i+1] = s.Format(m.Params[i])
		}
		record[len(record)-1] = strconv.FormatFloat(m.Seconds, 'g', -1, 64)
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV decodes a table written by CSV.Encode. The table is sealed.
func ReadCSV(r io.Reader) (*nadir.Table, error) {
	br := bufio.NewReader(r)
	var runID string
	if b, _ := br.Peek(len(runIDPrefix)); string(b) == runIDPrefix {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		runID = strings.TrimSpace(strings.TrimPrefix(line, runIDPrefix))
	}

	// No comment character: option ids may start with '#'.
	cr := csv.NewReader(br)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read csv: missing header")
	}

	header := records[0]
	if len(header) < 2 || header[0] != optionColumn || header[len(header)-1] != durationColumn {
		return nil, fmt.Errorf("read csv: header must start with %q and end with %q", optionColumn, durationColumn)
	}
	schema := make([]nadir.ParameterSpec, 0, len(header)-2)
	for _, col := range header[1 : len(header)-1] {
		s, err := parseColumn(col)
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		schema = append(schema, s)
	}

	t := nadir.NewTable(schema...)
	t.RunID = runID
	for line, rec := range records[1:] {
		params := make(nadir.Params, len(schema))
		for i, s := range schema {
			v, err := s.Parse(rec[i+1])
			if err != nil {
				return nil, fmt.Errorf("read csv: row %d: %w", line+1, err)
			}
			params[i] = v
		}
		seconds, err := strconv.ParseFloat(rec[len(rec)-1], 64)
		if err != nil {
			return nil, fmt.Errorf("read csv: row %d: %w", line+1, err)
		}
		if err := t.Add(rec[0], params, seconds); err != nil {
			return nil, fmt.Errorf("read csv: row %d: %w", line+1, err)
		}
	}
	t.Seal()
	return t, nil
}

// ParseCSV decodes a table from a string.
func ParseCSV(s string) (*nadir.Table, error) {
	return ReadCSV(strings.NewReader(s))
}

// MustParseCSV is like ParseCSV but panics on error. Generated sources use
// it to load embedded tables.
func MustParseCSV(s string) *nadir.Table {
	t, err := ParseCSV(s)
	if err != nil {
		panic(fmt.Sprintf("tablefmt: %v", err))
	}
	return t
}

func formatColumn(s nadir.ParameterSpec) string {
	col := s.Name + ":" + s.Kind.String()
	if s.Kind == nadir.Enumerated {
		col += "=" + strings.Join(s.Labels, "|")
	}
	return col
}

func parseColumn(col string) (nadir.ParameterSpec, error) {
	name, rest, ok := strings.Cut(col, ":")
	if !ok {
		return nadir.ParameterSpec{}, fmt.Errorf("column %q: want name:kind", col)
	}
	kindText, labels, _ := strings.Cut(rest, "=")
	kind, err := nadir.ParseKind(kindText)
	if err != nil {
		return nadir.ParameterSpec{}, fmt.Errorf("column %q: %w", col, err)
	}
	s := nadir.ParameterSpec{Name: name, Kind: kind}
	if kind == nadir.Enumerated {
		s.Labels = strings.Split(labels, "|")
	}
	if err := s.Validate(); err != nil {
		return nadir.ParameterSpec{}, fmt.Errorf("column %q: %w", col, err)
	}
	return s, nil
}
