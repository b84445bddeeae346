package tablefmt

import (
	"bytes"
	"fmt"
	"go/format"
	"io"
	"strconv"
	"strings"
	"text/template"

	"github.com/alexshd/nadir"
)

// GoSource writes a Go file that embeds the table, so a consumer can
// compile the measurements in and choose without reading files at runtime.
type GoSource struct {
	Package string // default: "benchmarks"
	Var     string // default: "Table"
}

var goSourceTemplate = template.Must(template.New("gosource").Parse(`// Code generated by nadir; DO NOT EDIT.

package {{.Package}}

import "github.com/alexshd/nadir/tablefmt"

// {{.Var}} holds {{.Rows}} measurements of {{.Options}}{{if .RunID}} from run {{.RunID}}{{end}}.
var {{.Var}} = tablefmt.MustParseCSV({{.Literal}})
`))

// Encode writes t as Go source.
func (g GoSource) Encode(w io.Writer, t *nadir.Table) error {
	var data bytes.Buffer
	if err := (CSV{}).Encode(&data, t); err != nil {
		return err
	}

	pkg, name := g.Package, g.Var
	if pkg == "" {
		pkg = "benchmarks"
	}
	if name == "" {
		name = "Table"
	}

	var src bytes.Buffer
	err := goSourceTemplate.Execute(&src, map[string]any{
		"Package": pkg,
		"Var":     name,
		"Rows":    t.Len(),
		"Options": strings.Join(t.Options(), ", "),
		"RunID":   t.RunID,
		"Literal": goLiteral(data.String()),
	})
	if err != nil {
		return fmt.Errorf("generate source: %w", err)
	}

	formatted, err := format.Source(src.Bytes())
	if err != nil {
		return fmt.Errorf("format generated source: %w", err)
	}
	_, err = w.Write(formatted)
	return err
}

// goLiteral prefers a raw string so the embedded table stays readable.
func goLiteral(s string) string {
	if strings.Contains(s, "`") || strings.Contains(s, "\r") {
		return strconv.Quote(s)
	}
	return "`" + s + "`"
}
