package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mickamy/cardest/internal/analyzer"
	"github.com/mickamy/cardest/internal/compare"
	"github.com/mickamy/cardest/internal/config"
	"github.com/mickamy/cardest/internal/errs"
	"github.com/mickamy/cardest/internal/export"
	"github.com/mickamy/cardest/internal/logging"
	"github.com/mickamy/cardest/internal/model"
	"github.com/mickamy/cardest/internal/queryset"
	"github.com/mickamy/cardest/internal/render/html"
	"github.com/mickamy/cardest/internal/render/tui"
	"github.com/mickamy/cardest/internal/report"
	"github.com/mickamy/cardest/internal/runner"
	"github.com/mickamy/cardest/internal/store"
)

var version = "dev"

// errUsage marks argument errors; the command's usage has already been printed.
var errUsage = errors.New("invalid arguments")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch cmd {
	case "run":
		err = runCommand(ctx, args)
	case "analyze":
		err = analyzeCommand(ctx, args)
	case "shapes":
		err = shapesCommand(ctx, args)
	case "compare":
		err = compareCommand(ctx, args)
	case "runs":
		err = runsCommand(ctx, args)
	case "version":
		err = versionCommand(args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		_, _ = fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		if !errors.Is(err, errUsage) {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`cardest - PostgreSQL cardinality estimation and join-shape analysis

Usage:
  cardest <command> [options]

Commands:
  run      EXPLAIN ANALYZE queries and store the plans
  analyze  Report q-errors by join level and query (live or from the store)
  shapes   Run a query directory under each join-tree shape and compare with default
  compare  Time two query directories and compare their execution times
  runs     List stored runs
  version  Show CLI version information

Use "cardest <command> -h" for command-specific help.`)
}

// newFlagSet builds a command flag set that prints its usage on -h.
func newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stdout, "Usage: cardest %s\n\nOptions:\n", synopsis)
		fs.SetOutput(os.Stdout)
		fs.PrintDefaults()
		fs.SetOutput(io.Discard)
	}
	return fs
}

// parseFlags returns done=true when help was requested.
func parseFlags(fs *flag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.Usage()
			return true, nil
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		fs.Usage()
		return false, errors.Wrap(errUsage, err.Error())
	}
	return false, nil
}

func usageError(fs *flag.FlagSet) error {
	fs.Usage()
	return errUsage
}

type commonFlags struct {
	url        *string
	configPath *string
	timeout    *time.Duration
}

func registerCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		url:        fs.String("url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string; defaults to $DATABASE_URL"),
		configPath: fs.String("config", "", "Path to configuration file (JSON or YAML). Falls back to $CARDEST_CONFIG"),
		timeout:    fs.Duration("timeout", 0, "Per-statement timeout, e.g. 45s (default from config)"),
	}
}

// setup applies the configuration and builds the logger and runner options.
func (c commonFlags) setup() (runner.Options, func(), error) {
	if err := applyConfigPath(*c.configPath); err != nil {
		return runner.Options{}, nil, err
	}
	cfg := config.Active()
	logger, closeLog := logging.Setup(cfg.Log, os.Stderr)
	opts := runner.OptionsFromConfig(cfg, logger)
	if *c.timeout > 0 {
		opts.Timeout = *c.timeout
	}
	return opts, closeLog, nil
}

func (c commonFlags) connection() (string, error) {
	connection := strings.TrimSpace(*c.url)
	if connection == "" {
		return "", errors.New("--url is required or set $DATABASE_URL")
	}
	return connection, nil
}

func applyConfigPath(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("CARDEST_CONFIG"))
	}
	return config.Apply(path)
}

func storePath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	return config.Active().Store.Path
}

func runCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("run", "run --url <url> [--store results.db] [--label name] QUERY_FILE_OR_DIR...")
	common := registerCommon(fs)
	var (
		storeFlag = fs.String("store", "", "Results database (default from config)")
		label     = fs.String("label", "", "Label for the stored run (defaults to the current time)")
	)
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageError(fs)
	}

	opts, closeLog, err := common.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	execs, err := explainQueries(ctx, common, fs.Args(), opts)
	if err != nil {
		return err
	}

	db, err := store.Open(ctx, storePath(*storeFlag))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	name := strings.TrimSpace(*label)
	if name == "" {
		name = time.Now().Format(time.RFC3339)
	}
	id, err := db.SaveExecutions(ctx, name, execs)
	if err != nil {
		return err
	}
	opts.Logger.Info("run stored", "run", id, "queries", len(execs))
	fmt.Println(id)
	return nil
}

func explainQueries(ctx context.Context, common commonFlags, paths []string, opts runner.Options) ([]*model.QueryExecution, error) {
	connection, err := common.connection()
	if err != nil {
		return nil, err
	}
	queries, err := queryset.Load(paths, queryset.ByPath)
	if err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, errors.Newf("no .sql files found in %s", strings.Join(paths, ", "))
	}

	session, err := runner.Open(ctx, connection, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = session.Close(context.WithoutCancel(ctx)) }()

	return runner.ExplainAll(ctx, session, queries)
}

func analyzeCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("analyze", "analyze (--url <url> QUERY_FILE_OR_DIR... | --store results.db [--run id]) [--mode tui|html] [--export file]")
	common := registerCommon(fs)
	var (
		storeFlag  = fs.String("store", "", "Read executions from this results database instead of running queries")
		runID      = fs.String("run", "", "Stored run id (latest explain run if omitted)")
		mode       = fs.String("mode", "tui", "Output mode: tui or html")
		outPath    = fs.String("out", "", "Output path (stdout if omitted)")
		exportPath = fs.String("export", "", "Also write the node table to a .csv, .json or .xlsx file")
		title      = fs.String("title", "cardest report", "Report title (HTML)")
		color      = fs.Bool("color", true, "Enable ANSI colors for TUI output")
		tree       = fs.Bool("tree", false, "Print the annotated plan of every query (TUI)")
		maxDepth   = fs.Int("max-depth", 0, "Limit tree depth (TUI)")
		includeCSS = fs.Bool("css", true, "Include inline styles (HTML)")
	)
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}
	if fs.NArg() == 0 && *storeFlag == "" {
		return usageError(fs)
	}

	opts, closeLog, err := common.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	var execs []*model.QueryExecution
	if fs.NArg() > 0 {
		execs, err = explainQueries(ctx, common, fs.Args(), opts)
	} else {
		execs, err = loadStored(ctx, *storeFlag, *runID, opts.PlanOptions)
	}
	if err != nil {
		return err
	}

	sel, err := report.Build(execs, opts.PlanOptions)
	if err != nil {
		return err
	}

	if *exportPath != "" {
		if err := writeExport(*exportPath, sel); err != nil {
			return err
		}
	}

	target, closeOut, err := openOutput(*outPath)
	if err != nil {
		return err
	}
	defer closeOut()

	switch *mode {
	case "tui":
		return tui.RenderSelectivity(target, sel, tui.Options{
			EnableColor: *color && *outPath == "",
			MaxDepth:    *maxDepth,
			ShowTrees:   *tree,
		})
	case "html":
		return html.Render(target, sel, html.Options{Title: *title, IncludeStyles: *includeCSS})
	default:
		return errors.Newf("unknown mode %q (expected tui or html)", *mode)
	}
}

func loadStored(ctx context.Context, path, runID string, opts analyzer.Options) ([]*model.QueryExecution, error) {
	db, err := store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	return db.LoadExecutions(ctx, runID, opts)
}

func writeExport(path string, sel *report.Selectivity) error {
	format, err := export.FormatFromPath(path)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create export")
	}
	defer func() { _ = file.Close() }()

	return export.Write(file, export.Data{
		Table:      sel.Table,
		Summaries:  sel.Summaries,
		JoinLevels: sel.JoinLevels,
		Costs:      sel.Costs,
	}, format)
}

func shapesCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("shapes", "shapes --url <url> [--shapes left,right,zig-zag] [--format md|json|tui|html] QUERY_DIR")
	common := registerCommon(fs)
	var (
		shapes    = fs.String("shapes", "left,right,zig-zag", "Comma-separated join-tree shapes compared against default")
		format    = fs.String("format", "tui", "Output format: md, json, tui or html")
		outPath   = fs.String("out", "", "Output path (stdout if omitted)")
		storeFlag = fs.String("store", "", "Also save every configuration run to this results database")
		maxItems  = fs.Int("limit", 0, "Maximum queries listed per section (default from config)")
	)
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError(fs)
	}

	// every shape is validated before the first query runs
	targets := []runner.Shape{runner.ShapeDefault}
	for _, name := range strings.Split(*shapes, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		shape, err := runner.ParseShape(name)
		if err != nil {
			return err
		}
		if shape != runner.ShapeDefault {
			targets = append(targets, shape)
		}
	}
	if len(targets) < 2 {
		return errors.New("--shapes must name at least one shape besides default")
	}

	opts, closeLog, err := common.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	connection, err := common.connection()
	if err != nil {
		return err
	}
	queries, err := queryset.Load(fs.Args(), queryset.ByStem)
	if err != nil {
		return err
	}

	runs := make([]*model.ConfigurationRun, 0, len(targets))
	for _, shape := range targets {
		run, err := runner.RunShape(ctx, runner.Open, connection, queries, string(shape), opts)
		if err != nil {
			return err
		}
		runs = append(runs, run)
	}

	if err := saveRuns(ctx, *storeFlag, runs, opts.Logger); err != nil {
		return err
	}

	reports := make([]*compare.Report, 0, len(runs)-1)
	for _, run := range runs[1:] {
		r, err := compare.Build(runs[0], run, compare.Options{MaxItems: *maxItems})
		if err != nil {
			return err
		}
		reports = append(reports, r)
	}
	return writeComparisons(reports, *format, *outPath)
}

func compareCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("compare", "compare --url <url> [--format md|json|tui|html] DIR1 DIR2")
	common := registerCommon(fs)
	var (
		format    = fs.String("format", "tui", "Output format: md, json, tui or html")
		outPath   = fs.String("out", "", "Output path (stdout if omitted)")
		storeFlag = fs.String("store", "", "Also save both runs to this results database")
		maxItems  = fs.Int("limit", 0, "Maximum queries listed per section (default from config)")
	)
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return usageError(fs)
	}

	opts, closeLog, err := common.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	connection, err := common.connection()
	if err != nil {
		return err
	}
	dirs := fs.Args()
	sets := make([][]model.Query, len(dirs))
	for i, dir := range dirs {
		if sets[i], err = queryset.Load([]string{dir}, queryset.ByStem); err != nil {
			return err
		}
	}

	session, err := runner.Open(ctx, connection, opts)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close(context.WithoutCancel(ctx)) }()

	runs := make([]*model.ConfigurationRun, len(dirs))
	for i, dir := range dirs {
		if runs[i], err = runner.RunTimed(ctx, session, dir, sets[i]); err != nil {
			return err
		}
	}

	if err := saveRuns(ctx, *storeFlag, runs, opts.Logger); err != nil {
		return err
	}

	r, err := compare.Build(runs[0], runs[1], compare.Options{MaxItems: *maxItems})
	if err != nil {
		return err
	}
	return writeComparisons([]*compare.Report{r}, *format, *outPath)
}

func saveRuns(ctx context.Context, path string, runs []*model.ConfigurationRun, logger *slog.Logger) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	db, err := store.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	for _, run := range runs {
		id, err := db.SaveRun(ctx, run)
		if err != nil {
			return err
		}
		logger.Info("run stored", "run", id, "config", run.Config, "queries", run.Len())
	}
	return nil
}

func writeComparisons(reports []*compare.Report, format, outPath string) error {
	target, closeOut, err := openOutput(outPath)
	if err != nil {
		return err
	}
	defer closeOut()

	switch format {
	case "md", "markdown":
		for i, r := range reports {
			if i > 0 {
				_, _ = io.WriteString(target, "\n")
			}
			if _, err := io.WriteString(target, r.Markdown()); err != nil {
				return err
			}
		}
		return nil
	case "json":
		for _, r := range reports {
			payload, err := r.JSON()
			if err != nil {
				return err
			}
			if _, err := target.Write(append(payload, '\n')); err != nil {
				return err
			}
		}
		return nil
	case "tui":
		return tui.RenderComparison(target, reports, tui.Options{EnableColor: outPath == ""})
	case "html":
		return html.RenderComparison(target, reports, html.Options{IncludeStyles: true})
	default:
		return errors.Newf("unsupported format %q", format)
	}
}

func runsCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("runs", "runs [--store results.db]")
	var (
		storeFlag  = fs.String("store", "", "Results database (default from config)")
		configPath = fs.String("config", "", "Path to configuration file (JSON or YAML). Falls back to $CARDEST_CONFIG")
	)
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return usageError(fs)
	}
	if err := applyConfigPath(*configPath); err != nil {
		return err
	}

	path := storePath(*storeFlag)
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(errs.ErrNotFound, "%s", path)
	}
	db, err := store.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	runs, err := db.ListRuns(ctx)
	if err != nil {
		return err
	}
	return tui.RenderRuns(os.Stdout, runs)
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create output")
	}
	return file, func() { _ = file.Close() }, nil
}

func versionCommand(args []string) error {
	fs := newFlagSet("version", "version [--short]")
	short := fs.Bool("short", false, "Print only the version number")
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}

	v, meta := resolveVersion()
	if *short {
		fmt.Println(v)
		return nil
	}
	if meta != "" {
		fmt.Printf("cardest %s (%s)\n", v, meta)
	} else {
		fmt.Printf("cardest %s\n", v)
	}
	return nil
}

func resolveVersion() (string, string) {
	v := strings.TrimSpace(version)
	if v == "" {
		v = "dev"
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v, ""
	}
	if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" &&
		!strings.HasPrefix(info.Main.Version, "v0.0.0-") {
		v = info.Main.Version
	}

	var details []string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			details = append(details, "commit "+setting.Value[:min(12, len(setting.Value))])
		case "vcs.time":
			details = append(details, "built "+setting.Value)
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if modified {
		details = append(details, "modified workspace")
	}
	return v, strings.Join(details, ", ")
}
