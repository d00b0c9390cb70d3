// Command jsonlt is a CLI front-end over the jsonlt table engine: open,
// read, write, compact, and sweep JSONLT files from the shell.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"golang.org/x/term"

	"github.com/jsonlt/jsonlt/config"
	"github.com/jsonlt/jsonlt/jsonltkey"
	"github.com/jsonlt/jsonlt/maint"
	"github.com/jsonlt/jsonlt/table"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "get":
		cmdGet(ctx, os.Args[2:])
	case "has":
		cmdHas(ctx, os.Args[2:])
	case "put":
		cmdPut(ctx, os.Args[2:])
	case "delete", "rm":
		cmdDelete(ctx, os.Args[2:])
	case "keys":
		cmdKeys(ctx, os.Args[2:])
	case "find":
		cmdFind(ctx, os.Args[2:])
	case "compact":
		cmdCompact(ctx, os.Args[2:])
	case "clear":
		cmdClear(ctx, os.Args[2:])
	case "reload":
		cmdReload(ctx, os.Args[2:])
	case "compact-all":
		cmdCompactAll(ctx, os.Args[2:])
	default:
		fatalf("unknown command: %s", os.Args[1])
	}
}

// ─── Shared flags ────────────────────────────────────────────────────────────

// commonFlags attaches the flags shared by every single-table subcommand: the
// key field list and the size/timeout guards that become a config.Options.
type commonFlags struct {
	keyFields   *string
	maxLine     *string
	maxFile     *string
	lockTimeout *time.Duration
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		keyFields:   fs.String("key", "", "key field name, or comma-separated for a compound key (defaults to the file's own header; required when creating a new file)"),
		maxLine:     fs.String("max-line-size", "", "reject a write whose encoded line exceeds this size, e.g. 64KB"),
		maxFile:     fs.String("max-file-size", "", "reject a write that would grow the file past this size, e.g. 1GB"),
		lockTimeout: fs.Duration("lock-timeout", 0, "give up waiting for the file lock after this long (0 = wait forever)"),
	}
}

func (c *commonFlags) options() (config.Options, error) {
	overrides := map[string]any{"lock_timeout": c.lockTimeout.String()}
	if *c.maxLine != "" {
		n, err := config.ParseSize(*c.maxLine)
		if err != nil {
			return config.Options{}, err
		}
		overrides["max_line_bytes"] = n
	}
	if *c.maxFile != "" {
		n, err := config.ParseSize(*c.maxFile)
		if err != nil {
			return config.Options{}, err
		}
		overrides["max_file_bytes"] = n
	}
	return config.ApplyOverrides(config.DefaultOptions(), overrides)
}

// expandPath expands a leading "~" the way a CLI path flag conventionally
// does, leaving the path untouched if it isn't home-relative or homedir can't
// resolve (e.g. no $HOME set).
func expandPath(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

// openTable opens the .jsonlt file at path. An empty -key leaves the key
// specifier unconstrained: table.Open then adopts whatever key an existing
// file's header declares, and fails clearly if there is no existing file to
// read a header from (a new file has nothing for the header to adopt).
func openTable(path string, cf *commonFlags) (*table.Table, error) {
	opts, err := cf.options()
	if err != nil {
		return nil, err
	}
	if *cf.keyFields == "" {
		return table.Open(expandPath(path), nil, opts)
	}

	names := strings.Split(*cf.keyFields, ",")
	var spec jsonltkey.Spec
	if len(names) == 1 {
		spec, err = jsonltkey.SingleField(names[0])
	} else {
		spec, err = jsonltkey.Tuple(names...)
	}
	if err != nil {
		return nil, err
	}
	return table.Open(expandPath(path), &spec, opts)
}

func parseKeyParts(spec jsonltkey.Spec, raw []string) (jsonltkey.Key, error) {
	if len(raw) != spec.Arity() {
		return jsonltkey.Key{}, fmt.Errorf("expected %d key component(s), got %d", spec.Arity(), len(raw))
	}
	parts := make([]jsonltkey.Scalar, len(raw))
	for i, r := range raw {
		var n int64
		if _, err := fmt.Sscanf(r, "%d", &n); err == nil && fmt.Sprintf("%d", n) == r {
			parts[i] = jsonltkey.Int(n)
			continue
		}
		parts[i] = jsonltkey.String(r)
	}
	return jsonltkey.Of(parts...), nil
}

// ─── get / has ───────────────────────────────────────────────────────────────

func cmdGet(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	path := fs.String("file", "", "path to the .jsonlt file")
	cf := addCommonFlags(fs)
	fs.Parse(args) //nolint:errcheck

	t, err := openTable(*path, cf)
	if err != nil {
		fatalf("open %s: %v", *path, err)
	}
	key, err := parseKeyParts(t.Spec(), fs.Args())
	if err != nil {
		fatalf("%v", err)
	}
	rec, ok, err := t.Get(ctx, key)
	if err != nil {
		fatalf("get: %v", err)
	}
	if !ok {
		fmt.Println("null")
		return
	}
	printJSON(rec)
}

func cmdHas(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("has", flag.ExitOnError)
	path := fs.String("file", "", "path to the .jsonlt file")
	cf := addCommonFlags(fs)
	fs.Parse(args) //nolint:errcheck

	t, err := openTable(*path, cf)
	if err != nil {
		fatalf("open %s: %v", *path, err)
	}
	key, err := parseKeyParts(t.Spec(), fs.Args())
	if err != nil {
		fatalf("%v", err)
	}
	ok, err := t.Has(ctx, key)
	if err != nil {
		fatalf("has: %v", err)
	}
	fmt.Println(ok)
}

// ─── put / delete ────────────────────────────────────────────────────────────

func cmdPut(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	path := fs.String("file", "", "path to the .jsonlt file")
	cf := addCommonFlags(fs)
	fs.Parse(args) //nolint:errcheck

	if fs.NArg() == 0 {
		fatalf("usage: jsonlt put -file <path> '<json object>'")
	}

	t, err := openTable(*path, cf)
	if err != nil {
		fatalf("open %s: %v", *path, err)
	}
	var rec jsonltkey.Record
	dec := json.NewDecoder(strings.NewReader(fs.Arg(0)))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		fatalf("invalid record JSON: %v", err)
	}
	if err := t.Put(ctx, rec); err != nil {
		fatalf("put: %v", err)
	}
}

func cmdDelete(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	path := fs.String("file", "", "path to the .jsonlt file")
	cf := addCommonFlags(fs)
	fs.Parse(args) //nolint:errcheck

	t, err := openTable(*path, cf)
	if err != nil {
		fatalf("open %s: %v", *path, err)
	}
	key, err := parseKeyParts(t.Spec(), fs.Args())
	if err != nil {
		fatalf("%v", err)
	}
	if err := t.Delete(ctx, key); err != nil {
		fatalf("delete: %v", err)
	}
}

// ─── keys / find ─────────────────────────────────────────────────────────────

func cmdKeys(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("keys", flag.ExitOnError)
	path := fs.String("file", "", "path to the .jsonlt file")
	cf := addCommonFlags(fs)
	fs.Parse(args) //nolint:errcheck

	t, err := openTable(*path, cf)
	if err != nil {
		fatalf("open %s: %v", *path, err)
	}
	items, err := t.Items(ctx)
	if err != nil {
		fatalf("keys: %v", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, it := range items {
		fmt.Fprintf(w, "%s\n", formatKey(it.Key))
	}
	w.Flush() //nolint:errcheck
}

func cmdFind(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	path := fs.String("file", "", "path to the .jsonlt file")
	field := fs.String("field", "", "field to match")
	value := fs.String("equals", "", "value the field must equal (string compare)")
	limit := fs.Int("limit", 0, "maximum matches (0 = unbounded)")
	cf := addCommonFlags(fs)
	fs.Parse(args) //nolint:errcheck

	t, err := openTable(*path, cf)
	if err != nil {
		fatalf("open %s: %v", *path, err)
	}
	recs, err := t.Find(ctx, func(r jsonltkey.Record) bool {
		if *field == "" {
			return true
		}
		return fmt.Sprintf("%v", r[*field]) == *value
	}, *limit)
	if err != nil {
		fatalf("find: %v", err)
	}
	for _, r := range recs {
		printJSON(r)
	}
}

// ─── compact / clear / reload ────────────────────────────────────────────────

func cmdCompact(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("compact", flag.ExitOnError)
	path := fs.String("file", "", "path to the .jsonlt file")
	cf := addCommonFlags(fs)
	fs.Parse(args) //nolint:errcheck

	t, err := openTable(*path, cf)
	if err != nil {
		fatalf("open %s: %v", *path, err)
	}
	if err := t.Compact(ctx); err != nil {
		fatalf("compact: %v", err)
	}
}

func cmdClear(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	path := fs.String("file", "", "path to the .jsonlt file")
	cf := addCommonFlags(fs)
	fs.Parse(args) //nolint:errcheck

	t, err := openTable(*path, cf)
	if err != nil {
		fatalf("open %s: %v", *path, err)
	}
	if err := t.Clear(ctx); err != nil {
		fatalf("clear: %v", err)
	}
}

func cmdReload(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("reload", flag.ExitOnError)
	path := fs.String("file", "", "path to the .jsonlt file")
	cf := addCommonFlags(fs)
	fs.Parse(args) //nolint:errcheck

	t, err := openTable(*path, cf)
	if err != nil {
		fatalf("open %s: %v", *path, err)
	}
	if err := t.Reload(ctx); err != nil {
		fatalf("reload: %v", err)
	}
}

// cmdCompactAll sweeps every file passed as a positional argument through the
// maintenance runner, compacting as many as are not currently busy with
// another process's exclusive lock.
func cmdCompactAll(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("compact-all", flag.ExitOnError)
	concurrency := fs.Int("concurrency", 0, "max tables compacted at once (0 = unbounded)")
	cf := addCommonFlags(fs)
	fs.Parse(args) //nolint:errcheck

	if fs.NArg() == 0 {
		fatalf("usage: jsonlt compact-all -key <field> <path...>")
	}

	runner := maint.New()
	runner.Concurrency = *concurrency
	for _, path := range fs.Args() {
		t, err := openTable(path, cf)
		if err != nil {
			fatalf("open %s: %v", path, err)
		}
		runner.Register(path, t)
	}

	results, err := runner.Run(ctx)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, r := range results {
		status := "compacted"
		switch {
		case r.Err != nil:
			status = "error: " + r.Err.Error()
		case !r.Compacted:
			status = "skipped (busy)"
		}
		fmt.Fprintf(w, "%s\t%s\n", r.Name, status)
	}
	w.Flush() //nolint:errcheck
	if err != nil {
		fatalf("%v", err)
	}
}

// ─── output helpers ──────────────────────────────────────────────────────────

// printJSON renders rec as compact JSON when stdout is piped (the usual case
// for scripting) and indented JSON when it's an interactive terminal.
func printJSON(rec jsonltkey.Record) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			fatalf("marshal record: %v", err)
		}
		fmt.Println(string(data))
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		fatalf("marshal record: %v", err)
	}
	fmt.Println(string(data))
}

func formatKey(k jsonltkey.Key) string {
	parts := make([]string, k.Arity())
	for i, p := range k.Parts() {
		if s, ok := p.StringValue(); ok {
			parts[i] = s
			continue
		}
		n, _ := p.IntValue()
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, "\t")
}

func usage() {
	fmt.Fprintf(os.Stderr, `jsonlt - append-only keyed-record JSON-lines store

Usage: jsonlt <command> [arguments]

Commands:
  get         -file <path> [-key <field[,field...]>] <key-part...>   Print a record, or "null"
  has         -file <path> [-key <field[,field...]>] <key-part...>   Print true/false
  put         -file <path> [-key <field[,field...]>] '<json object>' Insert or update a record
  delete      -file <path> [-key <field[,field...]>] <key-part...>   Remove a record
  keys        -file <path> [-key <field[,field...]>]                 List keys in canonical order
  find        -file <path> [-field name] [-equals value] [-limit n]  Print matching records
  compact     -file <path>                                           Rewrite the file, dropping tombstones
  clear       -file <path>                                           Rewrite the file with zero records
  reload      -file <path>                                           Force a full index rebuild
  compact-all [-concurrency n] <path...>                             Compact several files, skipping busy ones

-key is optional for an existing file: its own header always wins when -key
is omitted. Creating a new file requires -key, since there is no header yet
to adopt one from.
`)
	os.Exit(1)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
