// Package tablefmt provides concrete encodings of a nadir measurement table:
// CSV and YAML, which can be read back for the decision phase, and generated
// Go source that embeds the table in a consuming program.
package tablefmt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexshd/nadir"
)

// EncoderFor picks an encoder from the file extension of path.
// pkg names the package of generated Go source.
func EncoderFor(path, pkg string) (nadir.Encoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return CSV{}, nil
	case ".yaml", ".yml":
		return YAML{}, nil
	case ".go":
		return GoSource{Package: pkg}, nil
	default:
		return nil, fmt.Errorf("no encoder for %q (want .csv, .yaml, .yml or .go)", path)
	}
}

// Load reads a table from a .csv, .yaml or .yml file.
func Load(path string) (*nadir.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table %s: %w", path, err)
	}
	defer f.Close()

	var t *nadir.Table
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		t, err = ReadCSV(f)
	case ".yaml", ".yml":
		t, err = ReadYAML(f)
	default:
		return nil, fmt.Errorf("cannot load %q (want .csv, .yaml or .yml)", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse table %s: %w", path, err)
	}
	return t, nil
}
