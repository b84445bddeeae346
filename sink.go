package nadir

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultOutputPath is where hosts write the table when nothing else is
// configured.
const DefaultOutputPath = "nadir_benchmarks.csv"

// Encoder writes a table in a concrete format.
type Encoder interface {
	Encode(w io.Writer, t *Table) error
}

// Sink is the destination of a persisted table. Open is called once per run
// and the writer is always released before Run returns.
type Sink interface {
	Open() (io.WriteCloser, error)
}

// Aborter is implemented by writers that can discard everything written
// so far. Run aborts instead of closing when the sweep fails.
type Aborter interface {
	Abort() error
}

// FileSink writes to a temporary file next to Path and renames it into place
// on Close, so a failed run never leaves a partial table at Path.
type FileSink struct {
	Path string
	Perm os.FileMode
}

// Open creates the temporary file.
func (s FileSink) Open() (io.WriteCloser, error) {
	f, err := os.CreateTemp(filepath.Dir(s.Path), "."+filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return nil, err
	}
	perm := s.Perm
	if perm == 0 {
		perm = 0o644
	}
	return &fileWriter{File: f, path: s.Path, perm: perm}, nil
}

type fileWriter struct {
	*os.File
	path string
	perm os.FileMode
	done bool
}

func (w *fileWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.File.Close(); err != nil {
		os.Remove(w.Name())
		return err
	}
	if err := os.Chmod(w.Name(), w.perm); err != nil {
		os.Remove(w.Name())
		return err
	}
	return os.Rename(w.Name(), w.path)
}

func (w *fileWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.File.Close()
	return os.Remove(w.Name())
}

// WriterSink adapts an existing writer. Closing it does not close W.
type WriterSink struct {
	W io.Writer
}

// Open returns W behind a no-op Close.
func (s WriterSink) Open() (io.WriteCloser, error) {
	return nopCloser{s.W}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// WriteTable encodes an existing table into sink. The writer is aborted if
// encoding fails.
func WriteTable(sink Sink, enc Encoder, t *Table) error {
	w, err := sink.Open()
	if err != nil {
		return &SweepError{Kind: ErrSinkUnavailable, Err: err}
	}
	if err := enc.Encode(w, t); err != nil {
		if a, ok := w.(Aborter); ok {
			a.Abort()
		} else {
			w.Close()
		}
		return &SweepError{Kind: ErrSinkUnavailable, Err: fmt.Errorf("encode: %w", err)}
	}
	if err := w.Close(); err != nil {
		return &SweepError{Kind: ErrSinkUnavailable, Err: err}
	}
	return nil
}
