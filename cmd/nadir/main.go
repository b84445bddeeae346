// Command nadir inspects and converts persisted measurement tables and asks
// them which option to run.
//
//	nadir choose  -table sort.csv -q size=100,direction=Forward [-rank]
//	nadir summary -table sort.csv [-fit]
//	nadir convert -in sort.csv -out sort_benchmarks.go [-package sortbench]
//	nadir store   -db runs.sqlite -table sort.csv
//	nadir runs    -db runs.sqlite
//
// choose and summary accept -db/-run instead of -table to read a stored run;
// without -run the newest run is used.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alexshd/nadir"
	"github.com/alexshd/nadir/internal/logging"
	"github.com/alexshd/nadir/store/sqlitestore"
	"github.com/alexshd/nadir/tablefmt"
)

// Exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitSelection = 3
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	var err error
	switch args[0] {
	case "choose":
		err = cmdChoose(ctx, args[1:], stdout, stderr)
	case "summary":
		err = cmdSummary(ctx, args[1:], stdout, stderr)
	case "convert":
		err = cmdConvert(args[1:], stderr)
	case "store":
		err = cmdStore(ctx, args[1:], stdout, stderr)
	case "runs":
		err = cmdRuns(ctx, args[1:], stdout, stderr)
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return exitUsage
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		return exitUsage
	case errors.Is(err, nadir.ErrEmptyTable), errors.Is(err, nadir.ErrUnknownOption), errors.Is(err, nadir.ErrQueryMismatch):
		fmt.Fprintln(stderr, err)
		return exitSelection
	default:
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
}

var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: nadir <choose|summary|convert|store|runs> [flags]")
}

// source flags select a table from a file or a stored run.
type source struct {
	table string
	db    string
	runID string
}

func (s *source) register(fs *flag.FlagSet) {
	fs.StringVar(&s.table, "table", "", "table file (.csv, .yaml)")
	fs.StringVar(&s.db, "db", "", "sqlite database of stored runs")
	fs.StringVar(&s.runID, "run", "", "run id in -db (default: newest)")
}

func (s *source) load(ctx context.Context) (*nadir.Table, error) {
	switch {
	case s.table != "" && s.db != "":
		return nil, fmt.Errorf("%w: -table and -db are exclusive", errUsage)
	case s.table != "":
		return tablefmt.Load(s.table)
	case s.db != "":
		st, err := sqlitestore.Open(ctx, s.db)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		if s.runID == "" {
			return st.Latest(ctx)
		}
		return st.Load(ctx, s.runID)
	default:
		return nil, fmt.Errorf("%w: -table or -db is required", errUsage)
	}
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	level := fs.String("log-level", "warn", "debug, info, warn or error")
	return fs, level
}

// parse reports bad flags as usage errors. -h is passed through.
func parse(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return err
	}
	return fmt.Errorf("%w: %v", errUsage, err)
}

func cmdChoose(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, level := newFlagSet("choose", stderr)
	var src source
	src.register(fs)
	query := fs.String("q", "", "query tuple: name=value,...")
	rank := fs.Bool("rank", false, "print every option with its predicted seconds")
	if err := parse(fs, args); err != nil {
		return err
	}
	log := logging.New(*level, stderr)

	t, err := src.load(ctx)
	if err != nil {
		return err
	}
	q, err := nadir.ParseParams(t.Schema(), *query)
	if err != nil {
		return err
	}

	sel := t.Selector()
	if *rank {
		preds, err := sel.Ranking(q)
		if err != nil {
			return err
		}
		for _, p := range preds {
			fmt.Fprintf(stdout, "%s\t%.6g\n", p.Option, p.Seconds)
		}
		return nil
	}

	choice, err := sel.Choose(q)
	if err != nil {
		return err
	}
	log.Debug("chose option", "run_id", t.RunID, "query", nadir.FormatParams(t.Schema(), q), "option", choice)
	fmt.Fprintln(stdout, choice)
	return nil
}

func cmdSummary(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, _ := newFlagSet("summary", stderr)
	var src source
	src.register(fs)
	fits := fs.Bool("fit", false, "also print each option's fitted cost model")
	if err := parse(fs, args); err != nil {
		return err
	}

	t, err := src.load(ctx)
	if err != nil {
		return err
	}
	if t.Len() == 0 {
		return &nadir.SelectionError{Kind: nadir.ErrEmptyTable}
	}

	if t.RunID != "" {
		fmt.Fprintf(stdout, "run %s\n", t.RunID)
	}
	fmt.Fprintf(stdout, "%-20s %6s %12s %12s %12s %12s\n", "option", "rows", "mean", "min", "p50", "max")
	for _, s := range t.Summarize() {
		fmt.Fprintf(stdout, "%-20s %6d %12.4g %12.4g %12.4g %12.4g\n", s.Option, s.Count, s.Mean, s.Min, s.P50, s.Max)
	}
	if !*fits {
		return nil
	}

	sel := t.Selector()
	for _, opt := range t.Options() {
		m, err := sel.Model(opt)
		if err != nil {
			return err
		}
		for _, f := range m.Fits {
			group := f.Group
			if group == "" {
				group = "*"
			}
			fmt.Fprintf(stdout, "%s [%s]: %s\n", opt, group, f)
		}
	}
	return nil
}

func cmdConvert(args []string, stderr io.Writer) error {
	fs, level := newFlagSet("convert", stderr)
	in := fs.String("in", "", "input table (.csv, .yaml)")
	out := fs.String("out", "", "output file (.csv, .yaml, .go)")
	pkg := fs.String("package", "benchmarks", "package name for .go output")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("%w: -in and -out are required", errUsage)
	}
	log := logging.New(*level, stderr)

	t, err := tablefmt.Load(*in)
	if err != nil {
		return err
	}
	enc, err := tablefmt.EncoderFor(*out, *pkg)
	if err != nil {
		return err
	}
	if err := nadir.WriteTable(nadir.FileSink{Path: *out}, enc, t); err != nil {
		return err
	}
	log.Info("table converted", "in", *in, "out", *out, "rows", t.Len())
	return nil
}

func cmdStore(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, level := newFlagSet("store", stderr)
	db := fs.String("db", "", "sqlite database")
	table := fs.String("table", "", "table file (.csv, .yaml)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *db == "" || *table == "" {
		return fmt.Errorf("%w: -db and -table are required", errUsage)
	}
	log := logging.New(*level, stderr)

	t, err := tablefmt.Load(*table)
	if err != nil {
		return err
	}
	st, err := sqlitestore.Open(ctx, *db)
	if err != nil {
		return err
	}
	defer st.Close()

	runID, err := st.Save(ctx, t)
	if err != nil {
		return err
	}
	log.Info("run stored", slog.String("run_id", runID), slog.Int("rows", t.Len()))
	fmt.Fprintln(stdout, runID)
	return nil
}

func cmdRuns(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, _ := newFlagSet("runs", stderr)
	db := fs.String("db", "", "sqlite database")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *db == "" {
		return fmt.Errorf("%w: -db is required", errUsage)
	}

	st, err := sqlitestore.Open(ctx, *db)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.Runs(ctx)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Fprintf(stdout, "%s\t%s\t%d\n", r.ID, r.CreatedAt.Format("2006-01-02T15:04:05"), r.Rows)
	}
	return nil
}
