// specpatch: anchored, idempotent patching of specification documents.
//
// A patch set names, for each edit, the document it targets, the exact text
// expected there today (the anchor) and its replacement. specpatch applies
// the set, writes each document at most once and only when every patch on
// it succeeded, then checks the result.
//
// Usage:
//
//	specpatch plan    sets/revisions.yaml   # Preview, write nothing
//	specpatch apply   sets/revisions.yaml   # Apply and journal the run
//	specpatch check   sets/revisions.yaml   # Verify stored documents
//	specpatch history                       # List recent runs
//	specpatch serve                         # Start MCP server (stdio transport)
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/specpatch/internal/config"
	perrors "github.com/HendryAvila/specpatch/internal/errors"
	"github.com/HendryAvila/specpatch/internal/journal"
	"github.com/HendryAvila/specpatch/internal/logging"
	"github.com/HendryAvila/specpatch/internal/report"
	specserver "github.com/HendryAvila/specpatch/internal/server"
	"github.com/HendryAvila/specpatch/internal/workspace"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return perrors.ExitFatal
	}

	var err error
	switch args[0] {
	case "apply", "plan", "check":
		return runPatch(args[0], args[1:], stdout, stderr)
	case "history":
		err = runHistory(args[1:], stdout, stderr)
	case "init":
		err = runInit(args[1:], stdout)
	case "serve":
		err = serve(stderr)
	case "--help", "-h", "help":
		printUsage(stdout)
		return perrors.ExitOK
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "specpatch v%s\n", specserver.Version)
		return perrors.ExitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return perrors.ExitFatal
	}
	if err != nil {
		perrors.Print(stderr, err)
	}
	return perrors.ExitCode(err)
}

// ─── Shared setup ────────────────────────────────────────────────────────────

type globalFlags struct {
	logLevel string
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return perrors.Wrap(perrors.EUsage, "parsing flags", err)
	}
	return nil
}

// setup loads the project configuration from the working directory and
// builds the logger. Callers must close the logger.
func setup(g globalFlags, stderr io.Writer) (*config.Config, *logging.Logger, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, perrors.Wrap(perrors.EUsage, "getting working directory", err)
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	log, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.LogFile(),
		Journal: cfg.Log.Journal,
		Stderr:  stderr,
	})
	if err != nil {
		return nil, nil, perrors.Wrap(perrors.EConfig, "configuring logging", err)
	}
	log.Debug("configuration loaded", "config", cfg.Path, "root", cfg.DocumentRoot())
	return cfg, log, nil
}

// absRefs resolves patch set and overlay paths against the working
// directory; the workspace would otherwise resolve them against the
// config directory.
func absRefs(args []string) ([]workspace.Ref, error) {
	refs := workspace.ParseRefs(args)
	for i := range refs {
		p, err := filepath.Abs(refs[i].Path)
		if err != nil {
			return nil, perrors.Wrap(perrors.EUsage, "resolving patch set path", err)
		}
		refs[i].Path = p
		for j, o := range refs[i].Overlays {
			if refs[i].Overlays[j], err = filepath.Abs(o); err != nil {
				return nil, perrors.Wrap(perrors.EUsage, "resolving overlay path", err)
			}
		}
	}
	return refs, nil
}

// ─── Commands ────────────────────────────────────────────────────────────────

func runPatch(cmd string, args []string, stdout, stderr io.Writer) int {
	var (
		g       globalFlags
		asJSON  bool
		noDiff  bool
		colorFl string
	)
	fs := newFlagSet(cmd, stderr)
	g.register(fs)
	fs.BoolVar(&asJSON, "json", false, "write the report as JSON")
	fs.BoolVar(&noDiff, "no-diff", false, "omit document diffs")
	fs.StringVar(&colorFl, "color", "", "auto, always or never (overrides config)")

	fail := func(err error) int {
		perrors.Print(stderr, err)
		return perrors.ExitCode(err)
	}

	if err := parseFlags(fs, args); err != nil {
		return fail(err)
	}
	if fs.NArg() == 0 {
		return fail(perrors.Newf(perrors.EUsage, "usage: specpatch %s [flags] SET[+OVERLAY]...", cmd))
	}
	refs, err := absRefs(fs.Args())
	if err != nil {
		return fail(err)
	}

	cfg, log, err := setup(g, stderr)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = log.Close() }()

	mode := report.ColorMode(cfg.Color)
	if colorFl != "" {
		mode = report.ColorMode(colorFl)
	}
	if !mode.Valid() {
		return fail(perrors.Newf(perrors.EUsage, "unknown color mode %q", mode))
	}

	w := workspace.Open(cfg, log.Logger)
	defer func() { _ = w.Close() }()

	var rep *report.Report
	switch cmd {
	case "apply":
		rep, err = w.Apply(refs)
	case "plan":
		rep, err = w.Plan(refs)
	default:
		rep, err = w.Check(refs)
	}
	if rep == nil {
		return fail(err)
	}

	if asJSON {
		if werr := rep.WriteJSON(stdout); werr != nil {
			return fail(perrors.Wrap(perrors.EInternal, "writing report", werr))
		}
	} else {
		f, _ := stdout.(*os.File)
		if werr := report.NewPrinter(stdout, mode.Enabled(f), !noDiff).Print(rep); werr != nil {
			return fail(perrors.Wrap(perrors.EInternal, "writing report", werr))
		}
	}

	if err == nil {
		err = rep.Err()
	}
	if err != nil {
		return fail(err)
	}
	return perrors.ExitOK
}

func runHistory(args []string, stdout, stderr io.Writer) error {
	var (
		g      globalFlags
		limit  int
		asJSON bool
	)
	fs := newFlagSet("history", stderr)
	g.register(fs)
	fs.IntVar(&limit, "limit", 10, "maximum runs to list")
	fs.BoolVar(&asJSON, "json", false, "write JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return perrors.New(perrors.EUsage, "usage: specpatch history [flags] [RUN_ID]")
	}

	cfg, log, err := setup(g, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	w := workspace.Open(cfg, log.Logger)
	defer func() { _ = w.Close() }()

	var (
		value any
		text  string
	)
	if id := fs.Arg(0); id != "" {
		d, err := w.Run(id)
		if err != nil {
			return err
		}
		value, text = d, journal.FormatRun(d)
	} else {
		runs, err := w.History(limit)
		if err != nil {
			return err
		}
		value, text = runs, journal.FormatHistory(runs)
	}

	if asJSON {
		return writeJSON(stdout, value)
	}
	_, err = fmt.Fprintln(stdout, strings.TrimRight(text, "\n"))
	return err
}

func runInit(args []string, stdout io.Writer) error {
	if len(args) > 1 {
		return perrors.New(perrors.EUsage, "usage: specpatch init [DIR]")
	}
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return perrors.Wrap(perrors.EUsage, "resolving directory", err)
	}
	path, err := config.WriteDefault(abs)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Created %s\n", path)
	return nil
}

// serve runs the MCP server on stdio. Logs go to stderr so they never
// interleave with the protocol on stdout.
func serve(stderr io.Writer) error {
	_, log, err := setup(globalFlags{}, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	s := specserver.New(log.Logger)
	log.Info("mcp server starting", "version", specserver.Version)
	if err := server.ServeStdio(s); err != nil {
		return perrors.Wrap(perrors.EInternal, "serving stdio", err)
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `specpatch v%s: anchored, idempotent patching of spec documents

Usage:
  specpatch plan    [flags] SET[+OVERLAY]...   Preview a run; nothing is written
  specpatch apply   [flags] SET[+OVERLAY]...   Apply patch sets and journal the run
  specpatch check   [flags] SET[+OVERLAY]...   Verify stored documents against patch sets
  specpatch history [flags] [RUN_ID]           List recent runs, or show one
  specpatch init    [DIR]                      Write a default %s
  specpatch serve                              Start the MCP server (stdio transport)
  specpatch version

Flags (plan, apply, check):
  --json             Write the report as JSON
  --no-diff          Omit document diffs
  --color MODE       auto, always or never
  --log-level LEVEL  debug, info, warn or error

Several sets form a chain applied in order. Overlays are RFC 6902 JSON
Patch files applied to a set before validation.

Exit codes:
  0  every patch applied or already applied, documents consistent
  1  drift, ambiguous anchors, failed preconditions or inconsistency
  2  usage, configuration, patch set or document store errors

MCP configuration:

  {
    "mcpServers": {
      "specpatch": {
        "command": "specpatch",
        "args": ["serve"]
      }
    }
  }
`, specserver.Version, config.FileName)
}
