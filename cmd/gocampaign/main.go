/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"gocampaign/internal/backend"
	"gocampaign/internal/config"
	"gocampaign/internal/crash"
	"gocampaign/internal/edit"
	"gocampaign/internal/export"
	applog "gocampaign/internal/log"
	"gocampaign/internal/roundtrip"
	"gocampaign/internal/schema"
	"gocampaign/internal/script"
	"gocampaign/internal/storage"
	"gocampaign/internal/version"
)

// errUsage makes run print the usage and exit with 2.
var errUsage = errors.New("usage")

// errFailed exits with 1 after the command already reported why.
var errFailed = errors.New("failed")

// errFlags exits with 2; the flag package has printed the problem.
var errFlags = errors.New("bad flags")

type cli struct {
	ctx    context.Context
	cfg    config.AppConfig
	stdout io.Writer
	stderr io.Writer
	crash  *crash.Context
	log    *slog.Logger
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "gocampaign: campaign script tool")
	fmt.Fprintf(w, "Version: %s\n", version.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: gocampaign [-config file] <command> [flags] args")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  version                                  Show version")
	fmt.Fprintln(w, "  parse [-lang L] [-ids] [-keep-comments] <file>")
	fmt.Fprintln(w, "                                           Print the script tree of a file as JSON")
	fmt.Fprintln(w, "  fmt [-lang L] [-w] <file>                Reformat a script file")
	fmt.Fprintln(w, "  check [-lang L] <file>                   Parse and round-trip check a file")
	fmt.Fprintln(w, "  validate <tree.json>                     Validate a JSON tree against the schema")
	fmt.Fprintln(w, "  list <root>                              List the scripts and missions of a game")
	fmt.Fprintln(w, "  info <root> <script>                     Show languages, stats and problems of a script")
	fmt.Fprintln(w, "  merge [-lang L] <root> <script>          Print the merged multilingual tree as JSON or text")
	fmt.Fprintln(w, "  index [-force] <root>                    Check or rebuild the search index")
	fmt.Fprintln(w, "  search [flags] <root> <text>             Search dialogue text")
	fmt.Fprintln(w, "  where-used [-kind K] <root> <value>      List references to a variable, character, label...")
	fmt.Fprintln(w, "  snapshots [-lang L] <root> <script>      List saved snapshots of a script")
	fmt.Fprintln(w, "  restore <root> <lang> <file>             Restore the newest backup of a file")
	fmt.Fprintln(w, "  edit <root> <script> show|delete|replace|insert <path> [node.json|-]")
	fmt.Fprintln(w, "                                           Edit one node of a script and save it")
	fmt.Fprintln(w, "  export-pdf [-langs L,..] [-font ttf] <root> <script> <out.pdf>")
	fmt.Fprintln(w, "                                           Write a dialogue sheet")
	fmt.Fprintln(w, "  package [-check] [-strict] <root> <out.zip>")
	fmt.Fprintln(w, "                                           Pack the campaign files")
	fmt.Fprintln(w, "  verify <pkg.zip>                         Verify package checksums")
	fmt.Fprintln(w, "  export [-preset review|release] [-formats pdf,zip] [-scripts a,b] [-out dir] <root>")
	fmt.Fprintln(w, "  mirror [-dsn url] <root>                 Push every script to PostgreSQL")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cc := &crash.Context{}
	defer crash.Recover(cc)

	global := flag.NewFlagSet("gocampaign", flag.ContinueOnError)
	global.SetOutput(stderr)
	cfgPath := global.String("config", "", "config file (default: user config dir)")
	if err := global.Parse(args); err != nil {
		return 2
	}

	var (
		cfg config.AppConfig
		err error
	)
	if *cfgPath != "" {
		cfg, err = config.LoadFile(*cfgPath)
	} else {
		cfg, err = config.Load()
	}
	lo := cfg.Logging.Options()
	lo.Output = stderr
	applog.Init(lo)
	l := applog.WithComponent("cli")
	if err != nil {
		l.Warn("config not loaded, using defaults", slog.Any("err", err))
	}

	rest := global.Args()
	if len(rest) == 0 {
		usage(stderr)
		return 2
	}
	cc.Command = rest[0]
	c := &cli{ctx: ctx, cfg: cfg, stdout: stdout, stderr: stderr, crash: cc, log: l}
	l.Debug("start", slog.String("command", rest[0]), slog.Int("args", len(rest)-1))

	err = c.dispatch(rest[0], rest[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		usage(stderr)
		return 2
	case errors.Is(err, errFlags):
		return 2
	case errors.Is(err, errFailed):
		return 1
	}
	l.Error("command failed", slog.String("command", rest[0]), slog.Any("err", err))
	fmt.Fprintln(stderr, "Error:", err)
	return 1
}

func (c *cli) dispatch(cmd string, args []string) error {
	switch cmd {
	case "version", "--version", "-v":
		fmt.Fprintln(c.stdout, "gocampaign", version.String())
		return nil
	case "help", "-h", "--help":
		usage(c.stdout)
		return nil
	case "parse":
		return c.parse(args)
	case "fmt":
		return c.format(args)
	case "check":
		return c.check(args)
	case "validate":
		return c.validate(args)
	case "list":
		return c.list(args)
	case "info":
		return c.info(args)
	case "merge":
		return c.merge(args)
	case "index":
		return c.index(args)
	case "search":
		return c.search(args)
	case "where-used":
		return c.whereUsed(args)
	case "snapshots":
		return c.snapshots(args)
	case "restore":
		return c.restore(args)
	case "edit":
		return c.edit(args)
	case "export-pdf":
		return c.exportPDF(args)
	case "package":
		return c.pack(args)
	case "verify":
		return c.verify(args)
	case "export":
		return c.export(args)
	case "mirror":
		return c.mirror(args)
	}
	fmt.Fprintf(c.stderr, "unknown command %q\n", cmd)
	return errUsage
}

// flags returns a FlagSet for a subcommand writing its errors to stderr.
func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// parseArgs parses fs and requires at least n positional arguments.
func parseArgs(fs *flag.FlagSet, args []string, n int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, errFlags
	}
	if fs.NArg() < n {
		fmt.Fprintf(fs.Output(), "%s requires %d argument(s)\n", fs.Name(), n)
		return nil, errUsage
	}
	return fs.Args(), nil
}

func (c *cli) lang(v string) string {
	if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
		return v
	}
	return c.cfg.General.ReferenceLanguage
}

func (c *cli) workspace(root string) (*storage.Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	c.crash.Root = abs
	return storage.OpenWorkspace(abs, c.cfg)
}

// printDiagnostics writes one line per parser error and reports whether
// there were any.
func (c *cli) printDiagnostics(file string, errs []script.Error) bool {
	for _, e := range errs {
		fmt.Fprintf(c.stderr, "%s:%d:%d: %s: %s\n", file, e.Line, e.Column, e.Kind, e.Message)
	}
	return len(errs) > 0
}

func (c *cli) parse(args []string) error {
	fs := c.flags("parse")
	lang := fs.String("lang", "", "language of the file")
	ids := fs.Bool("ids", false, "assign ids to commands")
	keep := fs.Bool("keep-comments", false, "keep // lines as unknown nodes")
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	opts := c.cfg.ParserOptions(c.lang(*lang))
	opts.KeepComments = opts.KeepComments || *keep
	tree, errs, err := storage.ParseFile(pos[0], opts)
	if err != nil {
		return err
	}
	if *ids {
		script.AssignIDs(tree)
	}
	b, err := script.MarshalTree(tree)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, string(b))
	if c.printDiagnostics(pos[0], errs) {
		return errFailed
	}
	return nil
}

func (c *cli) format(args []string) error {
	fs := c.flags("fmt")
	lang := fs.String("lang", "", "language of the file")
	write := fs.Bool("w", false, "write the result back to the file")
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	path := pos[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := script.SplitLines(string(data))
	opts := c.cfg.ParserOptions(c.lang(*lang))
	opts.KeepComments = true
	tree, errs := script.ParseWithOptions(storage.MaskWrapper(lines), opts)
	if c.printDiagnostics(path, errs) {
		return errFailed
	}
	out := script.SerializeLines(tree, opts)
	if storage.HasWrapper(lines) {
		out = storage.WrapLines(out)
	}
	text := strings.Join(out, "\n") + "\n"
	if !*write {
		_, err := io.WriteString(c.stdout, text)
		return err
	}
	if text == string(data) {
		return nil
	}
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(text), st.Mode().Perm()); err != nil {
		return err
	}
	c.log.Info("formatted", slog.String("file", path))
	return nil
}

func (c *cli) check(args []string) error {
	fs := c.flags("check")
	lang := fs.String("lang", "", "language of the file")
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	opts := c.cfg.ParserOptions(c.lang(*lang))
	tree, errs, err := storage.ParseFile(pos[0], opts)
	if err != nil {
		return err
	}
	failed := c.printDiagnostics(pos[0], errs)
	res := roundtrip.Check(tree, opts.Language, opts)
	fmt.Fprintf(c.stdout, "%s: %s\n", pos[0], res)
	if failed || !res.OK() {
		return errFailed
	}
	return nil
}

func (c *cli) validate(args []string) error {
	pos, err := parseArgs(c.flags("validate"), args, 1)
	if err != nil {
		return err
	}
	data, err := readInput(pos[0])
	if err != nil {
		return err
	}
	if err := schema.ValidateJSON(data); err != nil {
		var ve *schema.ValidationError
		if errors.As(err, &ve) {
			for _, p := range ve.Problems {
				fmt.Fprintln(c.stdout, p)
			}
			return errFailed
		}
		return err
	}
	fmt.Fprintln(c.stdout, "ok")
	return nil
}

// readInput reads path, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func (c *cli) list(args []string) error {
	pos, err := parseArgs(c.flags("list"), args, 1)
	if err != nil {
		return err
	}
	ws, err := c.workspace(pos[0])
	if err != nil {
		return err
	}
	refs, err := ws.ListScripts(c.ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tFILE\tLINE")
	for _, r := range refs {
		file := r.File
		if r.Source == storage.SourceMissions {
			file = filepath.Base(ws.MissionsPath(ws.Reference()))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.Kind, r.Name, file, r.Line)
	}
	return tw.Flush()
}

func (c *cli) info(args []string) error {
	pos, err := parseArgs(c.flags("info"), args, 2)
	if err != nil {
		return err
	}
	ws, err := c.workspace(pos[0])
	if err != nil {
		return err
	}
	ld, err := ws.LoadScript(c.ctx, pos[1])
	if err != nil {
		return err
	}
	st := ld.Stats
	fmt.Fprintln(c.stdout, ld.Ref)
	fmt.Fprintf(c.stdout, "languages:  %s\n", strings.Join(ld.Languages, ", "))
	fmt.Fprintf(c.stdout, "commands:   %d\n", st.Commands)
	fmt.Fprintf(c.stdout, "containers: %d\n", st.Containers)
	fmt.Fprintf(c.stdout, "dialogues:  %d\n", st.Dialogues)
	fmt.Fprintf(c.stdout, "variables:  %d  semaphores: %d  characters: %d  labels: %d\n", st.Variables, st.Semaphores, st.Characters, st.Labels)
	failed := false
	if st.Unknown > 0 {
		fmt.Fprintf(c.stdout, "unknown:    %d\n", st.Unknown)
	}
	for _, lang := range ld.Languages {
		for _, e := range ld.Diagnostics[lang] {
			fmt.Fprintf(c.stdout, "%s: %v\n", lang, e)
			failed = true
		}
	}
	if ld.MergeErr != nil {
		fmt.Fprintf(c.stdout, "merge: %v\n", ld.MergeErr)
		failed = true
	}
	if lang, res := roundtrip.CheckLanguages(ld.Tree, ld.Languages, c.cfg.ParserOptions(ws.Reference())); lang != "" {
		fmt.Fprintf(c.stdout, "round trip %s: %s\n", lang, res)
		failed = true
	}
	if failed {
		return errFailed
	}
	return nil
}

func (c *cli) merge(args []string) error {
	fs := c.flags("merge")
	lang := fs.String("lang", "", "print the script text in this language instead of JSON")
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	ws, err := c.workspace(pos[0])
	if err != nil {
		return err
	}
	ld, err := ws.LoadScript(c.ctx, pos[1])
	if err != nil {
		return err
	}
	if *lang != "" {
		fmt.Fprintln(c.stdout, script.SerializeWithOptions(ld.Tree, c.cfg.ParserOptions(c.lang(*lang))))
	} else {
		b, err := script.MarshalTree(ld.Tree)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, string(b))
	}
	if ld.MergeErr != nil {
		fmt.Fprintln(c.stderr, "merge:", ld.MergeErr)
		return errFailed
	}
	return nil
}

// openIndex checks the workspace index, building it when it is missing
// and rebuilding it when damaged, and opens it.
func (c *cli) openIndex(ws *storage.Workspace) (*storage.Index, error) {
	_, statErr := os.Stat(ws.IndexPath())
	fresh := errors.Is(statErr, os.ErrNotExist)
	rebuilt, err := storage.DetectAndRebuildIndex(c.ctx, ws)
	if err != nil {
		return nil, err
	}
	if rebuilt {
		c.log.Info("index rebuilt", slog.String("path", ws.IndexPath()))
	}
	ix, err := storage.OpenIndex(ws.IndexPath())
	if err != nil {
		return nil, err
	}
	if fresh && !rebuilt {
		if _, err := ix.Rebuild(c.ctx, ws); err != nil {
			_ = ix.Close()
			return nil, err
		}
	}
	return ix, nil
}

func (c *cli) index(args []string) error {
	fs := c.flags("index")
	force := fs.Bool("force", false, "rebuild even when the index is healthy")
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	ws, err := c.workspace(pos[0])
	if err != nil {
		return err
	}
	var ix *storage.Index
	if *force {
		if ix, err = storage.OpenIndex(ws.IndexPath()); err != nil {
			return err
		}
		if _, err := ix.Rebuild(c.ctx, ws); err != nil {
			_ = ix.Close()
			return err
		}
	} else if ix, err = c.openIndex(ws); err != nil {
		return err
	}
	defer ix.Close()
	scripts, dialogues, refs, err := ix.Counts(c.ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s: %d scripts, %d dialogues, %d references\n", ix.Path(), scripts, dialogues, refs)
	return nil
}

// searcher is implemented by the local index and the PostgreSQL mirror.
type searcher interface {
	Search(ctx context.Context, q storage.SearchQuery) ([]storage.SearchResult, error)
	WhereUsed(ctx context.Context, kind, value string, limit, offset int) ([]storage.Usage, error)
}

// searchBackend opens the mirror when pg is set and the local index
// otherwise. The returned func releases it.
func (c *cli) searchBackend(ws *storage.Workspace, pg bool) (searcher, func(), error) {
	if pg {
		m, err := backend.Open(c.ctx, c.cfg.Backend, campaignName(ws))
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	}
	ix, err := c.openIndex(ws)
	if err != nil {
		return nil, nil, err
	}
	return ix, func() { _ = ix.Close() }, nil
}

func campaignName(ws *storage.Workspace) string {
	return filepath.Base(filepath.Clean(ws.Root))
}

func (c *cli) search(args []string) error {
	fs := c.flags("search")
	lang := fs.String("lang", "", "only this language")
	character := fs.String("character", "", "only lines of this character")
	scr := fs.String("script", "", "only this script")
	kinds := fs.String("kinds", "", "comma separated block kinds: script, mission")
	limit := fs.Int("limit", 50, "maximum results")
	offset := fs.Int("offset", 0, "results to skip")
	pg := fs.Bool("pg", false, "search the PostgreSQL mirror")
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	ws, err := c.workspace(pos[0])
	if err != nil {
		return err
	}
	s, closeFn, err := c.searchBackend(ws, *pg)
	if err != nil {
		return err
	}
	defer closeFn()
	q := storage.SearchQuery{
		Text:      strings.Join(pos[1:], " "),
		Language:  strings.ToUpper(*lang),
		Character: *character,
		Script:    *scr,
		Kinds:     splitList(*kinds),
		Limit:     *limit,
		Offset:    *offset,
	}
	res, err := s.Search(c.ctx, q)
	if err != nil {
		return err
	}
	for _, r := range res {
		who := r.Character
		if who != "" {
			who += ": "
		}
		fmt.Fprintf(c.stdout, "%s:%d [%s] %s%s\n", r.Script, r.Line, r.Language, who, r.Snippet)
	}
	if len(res) == 0 {
		fmt.Fprintln(c.stderr, "no matches")
		return errFailed
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *cli) whereUsed(args []string) error {
	fs := c.flags("where-used")
	kind := fs.String("kind", "", "reference kind: variable, semaphore, character, label, node, route...")
	limit := fs.Int("limit", 100, "maximum results")
	pg := fs.Bool("pg", false, "query the PostgreSQL mirror")
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	ws, err := c.workspace(pos[0])
	if err != nil {
		return err
	}
	s, closeFn, err := c.searchBackend(ws, *pg)
	if err != nil {
		return err
	}
	defer closeFn()
	uses, err := s.WhereUsed(c.ctx, *kind, pos[1], *limit, 0)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	for _, u := range uses {
		fmt.Fprintf(tw, "%s %s\t%s\t%s\tline %d\n", u.ScriptKind, u.Script, u.Kind, u.Path, u.Line)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(uses) == 0 {
		fmt.Fprintln(c.stderr, "no references")
		return errFailed
	}
	return nil
}

func (c *cli) snapshots(args []string) error {
	fs := c.flags("snapshots")
	lang := fs.String("lang", "", "language")
	limit := fs.Int("limit", 20, "maximum snapshots")
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	ws, err := c.workspace(pos[0])
	if err != nil {
		return err
	}
	ix, err := c.openIndex(ws)
	if err != nil {
		return err
	}
	defer ix.Close()
	list, err := ix.ListSnapshots(c.ctx, pos[1], c.lang(*lang), *limit)
	if err != nil {
		return err
	}
	for _, s := range list {
		fmt.Fprintf(c.stdout, "%s  %s  %d bytes\n", s.TS.Format("2006-01-02 15:04:05"), s.ID, len(s.Text))
	}
	return nil
}

func (c *cli) restore(args []string) error {
	pos, err := parseArgs(c.flags("restore"), args, 3)
	if err != nil {
		return err
	}
	ws, err := c.workspace(pos[0])
	if err != nil {
		return err
	}
	lang := c.lang(pos[1])
	dst := filepath.Join(ws.ScriptsDir(lang), pos[2])
	if pos[2] == filepath.Base(ws.MissionsPath(lang)) {
		dst = ws.MissionsPath(lang)
	}
	from, err := storage.RestoreLatestBackup(ws.Root, lang, dst)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "restored %s from %s\n", dst, from)
	return nil
}

func (c *cli) edit(args []string) error {
	pos, err := parseArgs(c.flags("edit"), args, 4)
	if err != nil {
		return err
	}
	ws, err := c.workspace(pos[0])
	if err != nil {
		return err
	}
	ld, err := ws.LoadScript(c.ctx, pos[1])
	if err != nil {
		return err
	}
	if err := ld.Err(); err != nil {
		return err
	}
	if ld.MergeErr != nil {
		return fmt.Errorf("refusing to edit a script whose languages differ: %w", ld.MergeErr)
	}
	op := pos[2]
	path, err := edit.ParsePath(pos[3])
	if err != nil {
		return err
	}
	s := edit.NewSession(pos[1], ld.Tree, nil)
	c.crash.Tree = s.Tree

	switch op {
	case "show":
		n, ok := s.NodeAt(path)
		if !ok {
			return fmt.Errorf("%w: %s", edit.ErrBadPath, path)
		}
		b, err := script.MarshalTree(script.Tree{n})
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, string(b))
		return nil
	case "delete":
		n, err := s.Delete(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "deleted %s at %s\n", n.Kind(), path)
	case "replace", "insert":
		if len(pos) < 5 {
			fmt.Fprintf(c.stderr, "%s needs a node (file or - for stdin)\n", op)
			return errUsage
		}
		n, err := readNode(pos[4])
		if err != nil {
			return err
		}
		done := "replaced"
		if op == "replace" {
			err = s.Replace(path, n)
		} else {
			err, done = s.Insert(path, n), "inserted"
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "%s %s at %s\n", done, n.Kind(), path)
	default:
		fmt.Fprintf(c.stderr, "unknown edit operation %q\n", op)
		return errUsage
	}

	var ix *storage.Index
	if ws.Config().Index.Enabled {
		if ix, err = c.openIndex(ws); err != nil {
			c.log.Warn("index unavailable, saving without it", slog.Any("err", err))
			ix = nil
		} else {
			defer ix.Close()
		}
	}
	res, err := s.Save(c.ctx, ws, ix)
	if err != nil {
		return err
	}
	for _, lang := range ws.Languages() {
		if f, ok := res.Files[lang]; ok {
			fmt.Fprintf(c.stdout, "wrote %s\n", f)
		}
	}
	return nil
}

// readNode decodes a single node given either as a JSON object or as a
// one-element tree.
func readNode(path string) (script.Node, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		trimmed = "[" + trimmed + "]"
	}
	tree, err := schema.DecodeTree([]byte(trimmed))
	if err != nil {
		return nil, err
	}
	if len(tree) != 1 {
		return nil, fmt.Errorf("expected one node, got %d", len(tree))
	}
	return tree[0], nil
}

func (c *cli) exportPDF(args []string) error {
	fs := c.flags("export-pdf")
	langs := fs.String("langs", "", "comma separated languages, default all")
	font := fs.String("font", "", "UTF-8 TrueType font file")
	pos, err := parseArgs(fs, args, 3)
	if err != nil {
		return err
	}
	ws, err := c.workspace(pos[0])
	if err != nil {
		return err
	}
	ld, err := ws.LoadScript(c.ctx, pos[1])
	if err != nil {
		return err
	}
	opt := export.PDFOptions{FontFile: *font}
	for _, l := range splitList(*langs) {
		opt.Languages = append(opt.Languages, strings.ToUpper(l))
	}
	if err := export.DialogueSheetPDF(ld, pos[2], opt); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "wrote", pos[2])
	return nil
}

func (c *cli) pack(args []string) error {
	fs := c.flags("package")
	check := fs.Bool("check", true, "check every script and record problems in the manifest")
	strict := fs.Bool("strict", false, "fail instead of packing scripts with problems")
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	ws, err := c.workspace(pos[0])
	if err != nil {
		return err
	}
	m, err := export.Package(c.ctx, ws, pos[1], export.PackageOptions{Check: *check || *strict, Strict: *strict})
	if m != nil {
		c.printProblems(m)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "wrote %s: %d files, %d scripts\n", pos[1], len(m.Files), len(m.Scripts))
	return nil
}

func (c *cli) printProblems(m *export.Manifest) {
	for _, e := range m.Scripts {
		for _, p := range e.Problems {
			fmt.Fprintf(c.stderr, "%s %s: %s\n", e.Kind, e.Name, p)
		}
	}
}

func (c *cli) verify(args []string) error {
	pos, err := parseArgs(c.flags("verify"), args, 1)
	if err != nil {
		return err
	}
	m, bad, err := export.VerifyPackage(pos[0])
	if err != nil {
		return err
	}
	for _, p := range bad {
		fmt.Fprintln(c.stdout, "checksum mismatch:", p)
	}
	if len(bad) > 0 {
		return errFailed
	}
	fmt.Fprintf(c.stdout, "ok: %d files, reference %s\n", len(m.Files), m.Reference)
	return nil
}

func (c *cli) export(args []string) error {
	fs := c.flags("export")
	preset := fs.String("preset", string(export.PresetReview), "review or release")
	formats := fs.String("formats", "", "comma separated formats (pdf, zip), default from preset")
	scripts := fs.String("scripts", "", "comma separated script names, default all")
	out := fs.String("out", "", "output directory")
	font := fs.String("font", "", "UTF-8 TrueType font file for PDFs")
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	ws, err := c.workspace(pos[0])
	if err != nil {
		return err
	}
	res, err := export.BatchExport(c.ctx, ws, export.BatchOptions{
		Preset:   export.PresetName(*preset),
		Formats:  splitList(*formats),
		Scripts:  splitList(*scripts),
		OutDir:   *out,
		FontFile: *font,
	})
	if res != nil {
		for _, f := range res.Files {
			fmt.Fprintln(c.stdout, "wrote", f)
		}
		if res.Manifest != nil {
			c.printProblems(res.Manifest)
		}
	}
	return err
}

func (c *cli) mirror(args []string) error {
	fs := c.flags("mirror")
	dsn := fs.String("dsn", "", "PostgreSQL connection string, overrides the config")
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	ws, err := c.workspace(pos[0])
	if err != nil {
		return err
	}
	bc := c.cfg.Backend
	if *dsn != "" {
		bc.Enabled, bc.DSN = true, *dsn
	}
	m, err := backend.Open(c.ctx, bc, campaignName(ws))
	if errors.Is(err, backend.ErrDisabled) {
		return fmt.Errorf("%w: set backend.enabled or pass -dsn", err)
	}
	if err != nil {
		return err
	}
	defer m.Close()
	n, err := m.PushAll(c.ctx, ws)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "pushed %d scripts to campaign %s\n", n, m.Campaign())
	return nil
}
