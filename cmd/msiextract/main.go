// cmd/msiextract/main.go

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/windowsadmins/msiextract/pkg/cfb"
	"github.com/windowsadmins/msiextract/pkg/config"
	"github.com/windowsadmins/msiextract/pkg/extract"
	"github.com/windowsadmins/msiextract/pkg/logging"
	"github.com/windowsadmins/msiextract/pkg/msi"
	"github.com/windowsadmins/msiextract/pkg/msidb"
)

const usage = `Usage: msiextract [-config path] [-v] [-debug] <command> [flags] <package>

Commands:
  list                     list the files in the package
  tables                   list the database tables
  table <name>             print one table as YAML
  info                     print product metadata as YAML
  streams [-dump dir]      list (or write out) the raw compound file streams
  extract [-o dir] [-f name]... [-i] [-manifest file]
                           extract files
  config [-save]           print the effective configuration, or write it
                           to the configuration file
`

// exitCanceled is the conventional status for a run stopped by SIGINT.
const exitCanceled = 130

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "Path to the configuration file")
	verbose := flag.Bool("v", false, "Verbose output")
	debug := flag.Bool("debug", false, "Debug logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}
	cfg.Verbose = cfg.Verbose || *verbose
	cfg.Debug = cfg.Debug || *debug
	if err := logging.Init(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logging:", err)
		os.Exit(1)
	}
	defer logging.CloseLogger()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "list":
		err = runList(args)
	case "tables":
		err = runTables(args)
	case "table":
		err = runTable(args)
	case "info":
		err = runInfo(args)
	case "streams":
		err = runStreams(args)
	case "extract":
		err = runExtract(ctx, cfg, args)
	case "config":
		err = runConfig(cfg, *configPath, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		// Deferred calls do not run past os.Exit.
		stop()
		logging.CloseLogger()
		os.Exit(reportError(err))
	}
}

// reportError prints err the way a user should see it and returns the
// exit status.
func reportError(err error) int {
	switch {
	case errors.Is(err, msi.ErrCanceled):
		return exitCanceled
	case errors.Is(err, msi.ErrDatabase), errors.Is(err, msi.ErrCorruptPackage),
		errors.Is(err, msi.ErrCabinetNotFound), errors.Is(err, msi.ErrMultipleCandidates):
		fmt.Fprintln(os.Stderr, "Not a valid installer package:", err)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return 1
}

// packageArg parses the subcommand flags and returns the trailing package
// path.
func packageArg(fs *flag.FlagSet, args []string, positional int) ([]string, string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	rest := fs.Args()
	if len(rest) != positional+1 {
		return nil, "", fmt.Errorf("%w: %s expects %d argument(s) and a package path", msi.ErrInvalidArgument, fs.Name(), positional)
	}
	return rest[:positional], rest[positional], nil
}

func runList(args []string) error {
	_, path, err := packageArg(flag.NewFlagSet("list", flag.ExitOnError), args, 0)
	if err != nil {
		return err
	}
	p, err := msi.Open(path)
	if err != nil {
		return err
	}
	defer p.Close()

	files, err := msi.BuildCatalog(p)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tSIZE\tVERSION\tFILE")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", f.Path(), f.Size, f.Version, f.FileKey)
	}
	return w.Flush()
}

func runTables(args []string) error {
	_, path, err := packageArg(flag.NewFlagSet("tables", flag.ExitOnError), args, 0)
	if err != nil {
		return err
	}
	p, err := msi.Open(path)
	if err != nil {
		return err
	}
	defer p.Close()

	snaps, err := msi.SnapshotAll(p)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROWS\tCOLUMNS")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%d\t%d\n", s.Name, len(s.Rows), len(s.Columns))
	}
	return w.Flush()
}

// tableDocument is the YAML form of a table snapshot.
type tableDocument struct {
	Table   string           `yaml:"table"`
	Columns []msi.ColumnSpec `yaml:"columns"`
	Rows    [][]string       `yaml:"rows"`
}

func runTable(args []string) error {
	pos, path, err := packageArg(flag.NewFlagSet("table", flag.ExitOnError), args, 1)
	if err != nil {
		return err
	}
	p, err := msi.Open(path)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := requireTable(p, pos[0]); err != nil {
		return err
	}
	snap, err := msi.SnapshotTable(p, pos[0])
	if err != nil {
		return err
	}
	doc := tableDocument{Table: snap.Name, Columns: snap.Columns}
	for _, row := range snap.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.String()
		}
		doc.Rows = append(doc.Rows, cells)
	}
	return printYAML(doc)
}

// requireTable fails with the list of user tables when name is neither one
// of them nor a system table.
func requireTable(p *msi.Package, name string) error {
	switch name {
	case msidb.TablesTable, msidb.ColumnsTable, msidb.StreamsTable:
		return nil
	}
	if p.HasTable(name) {
		return nil
	}
	tables := p.Tables()
	sort.Strings(tables)
	return fmt.Errorf("%w: table %q is not in %s (tables: %s)", msi.ErrNotFound, name, p.Path(), strings.Join(tables, ", "))
}

func runInfo(args []string) error {
	_, path, err := packageArg(flag.NewFlagSet("info", flag.ExitOnError), args, 0)
	if err != nil {
		return err
	}
	md, err := extract.MsiMetadata(path)
	if err != nil {
		return err
	}
	return printYAML(md)
}

func runStreams(args []string) error {
	fs := flag.NewFlagSet("streams", flag.ExitOnError)
	dumpDir := fs.String("dump", "", "Write every stream and an index to this directory")
	_, path, err := packageArg(fs, args, 0)
	if err != nil {
		return err
	}

	cf, err := cfb.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", msi.ErrIO, err)
	}
	defer cf.Close()

	if *dumpDir != "" {
		entries, err := cfb.Dump(cf.Streams(), *dumpDir, streamDisplayName)
		if err != nil {
			return fmt.Errorf("%w: %w", msi.ErrIO, err)
		}
		logging.Info("Dumped streams", "count", len(entries), "dir", *dumpDir)
		return nil
	}

	streams := append([]*cfb.Stream(nil), cf.Streams()...)
	sort.SliceStable(streams, func(i, j int) bool {
		return streamDisplayName(streams[i].Name) < streamDisplayName(streams[j].Name)
	})
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STREAM\tSIZE\tCABINET")
	for _, s := range streams {
		isCab, err := s.HasMagic(cfb.CabinetMagic)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%t\n", streamDisplayName(s.Name), s.Size, isCab)
	}
	return w.Flush()
}

func runConfig(cfg *config.Configuration, path string, args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	save := fs.Bool("save", false, "Write the effective configuration to the configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("%w: config takes no arguments", msi.ErrInvalidArgument)
	}
	if !*save {
		return printYAML(cfg)
	}
	if err := config.SaveConfig(path, cfg); err != nil {
		return fmt.Errorf("%w: %w", msi.ErrIO, err)
	}
	logging.Info("Saved configuration", "path", path)
	return nil
}

// streamDisplayName decodes MSI stream names and marks table streams.
func streamDisplayName(raw string) string {
	name, table := msidb.DecodeStreamName(raw)
	if table {
		return "!" + name
	}
	return name
}

func printYAML(v interface{}) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
