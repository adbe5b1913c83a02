/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gocampaign/internal/config"
	applog "gocampaign/internal/log"
	"gocampaign/internal/multilang"
	"gocampaign/internal/roundtrip"
	"gocampaign/internal/script"
)

const (
	CampaignDirName = "campaign"
	wrapperOpen     = "SCRIPTS"
	wrapperClose    = "END_OF_SCRIPTS"
)

var (
	// ErrNotFound is returned when a script, mission or workspace is missing.
	ErrNotFound = errors.New("not found")
	// ErrRoundTrip marks a save refused because the tree does not survive
	// serialization.
	ErrRoundTrip = errors.New("round trip check failed")
	// ErrParse marks a load whose input produced parser diagnostics.
	ErrParse = errors.New("script has parse errors")
)

// Source tells which file family a block lives in.
type Source int

const (
	// SourceScripts is campaign/campaignScripts<LANG>/<File>.
	SourceScripts Source = iota
	// SourceMissions is campaign/missions_<LANG>.txt.
	SourceMissions
)

// ScriptRef locates a SCRIPT or MISSION block. Line is the header line in
// the reference language file.
type ScriptRef struct {
	Kind   script.NodeKind
	Name   string
	Source Source
	File   string
	Line   int
}

func (r ScriptRef) String() string {
	if r.Source == SourceMissions {
		return fmt.Sprintf("%s %s (missions)", r.Kind, r.Name)
	}
	return fmt.Sprintf("%s %s (%s)", r.Kind, r.Name, r.File)
}

// Workspace is a game directory holding the campaign script files.
type Workspace struct {
	Root string
	cfg  config.AppConfig
	now  func() time.Time
}

// OpenWorkspace opens the campaign under root. cfg supplies the language
// set, parser options and save policy; its game root is replaced by root.
func OpenWorkspace(root string, cfg config.AppConfig) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	st, err := os.Stat(filepath.Join(root, CampaignDirName))
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("open workspace %s: campaign directory %w", root, ErrNotFound)
	}
	cfg.General.GameRoot = root
	return &Workspace{Root: root, cfg: cfg, now: time.Now}, nil
}

// Config returns the effective configuration.
func (w *Workspace) Config() config.AppConfig { return w.cfg }

// Languages returns the configured languages.
func (w *Workspace) Languages() []string { return append([]string(nil), w.cfg.General.Languages...) }

// Reference returns the reference language.
func (w *Workspace) Reference() string { return w.cfg.General.ReferenceLanguage }

// IndexPath returns the location of the SQLite index.
func (w *Workspace) IndexPath() string { return w.cfg.IndexPath() }

// ScriptsDir returns the script directory for lang.
func (w *Workspace) ScriptsDir(lang string) string {
	return filepath.Join(w.Root, CampaignDirName, "campaignScripts"+lang)
}

// MissionsPath returns the missions file for lang.
func (w *Workspace) MissionsPath(lang string) string {
	return filepath.Join(w.Root, CampaignDirName, "missions_"+lang+".txt")
}

// PathFor returns the file holding ref in lang.
func (w *Workspace) PathFor(ref ScriptRef, lang string) string {
	if ref.Source == SourceMissions {
		return w.MissionsPath(lang)
	}
	return filepath.Join(w.ScriptsDir(lang), ref.File)
}

// ListScripts lists the SCRIPT and MISSION blocks of the reference language
// in file order, script files sorted by name first, then the missions file.
// A name seen twice for the same kind keeps its first location.
func (w *Workspace) ListScripts(ctx context.Context) ([]ScriptRef, error) {
	l := applog.WithComponent("storage")
	ref := w.Reference()
	var files []string
	ents, err := os.ReadDir(w.ScriptsDir(ref))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	for _, e := range ents {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var out []ScriptRef
	seen := map[string]bool{}
	add := func(src Source, file, content string) {
		for _, h := range blockHeaders(script.SplitLines(content)) {
			key := string(h.kind) + "\x00" + h.name
			if seen[key] {
				l.WarnContext(ctx, "duplicate block ignored", slog.String("kind", string(h.kind)), slog.String("name", h.name), slog.String("file", file))
				continue
			}
			seen[key] = true
			out = append(out, ScriptRef{Kind: h.kind, Name: h.name, Source: src, File: file, Line: h.line})
		}
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := os.ReadFile(filepath.Join(w.ScriptsDir(ref), f))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		add(SourceScripts, f, string(b))
	}
	if b, err := os.ReadFile(w.MissionsPath(ref)); err == nil {
		add(SourceMissions, filepath.Base(w.MissionsPath(ref)), string(b))
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read missions: %w", err)
	}
	return out, nil
}

// Find returns the block named name, preferring scripts over missions.
func (w *Workspace) Find(ctx context.Context, name string) (ScriptRef, error) {
	refs, err := w.ListScripts(ctx)
	if err != nil {
		return ScriptRef{}, err
	}
	var mission *ScriptRef
	for i := range refs {
		if refs[i].Name != name {
			continue
		}
		if refs[i].Kind == script.KindScript {
			return refs[i], nil
		}
		if mission == nil {
			mission = &refs[i]
		}
	}
	if mission != nil {
		return *mission, nil
	}
	return ScriptRef{}, fmt.Errorf("script %q: %w", name, ErrNotFound)
}

func (w *Workspace) findKind(ctx context.Context, kind script.NodeKind, name string) (ScriptRef, bool, error) {
	refs, err := w.ListScripts(ctx)
	if err != nil {
		return ScriptRef{}, false, err
	}
	for _, r := range refs {
		if r.Kind == kind && r.Name == name {
			return r, true, nil
		}
	}
	return ScriptRef{}, false, nil
}

// ParseError carries the diagnostics of one language. It matches ErrParse.
type ParseError struct {
	Language    string
	Diagnostics []script.Error
}

func (e *ParseError) Error() string {
	msgs := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		msgs = append(msgs, d.Error())
	}
	return fmt.Sprintf("%s: %s", e.Language, strings.Join(msgs, "; "))
}

func (e *ParseError) Unwrap() error { return ErrParse }

// Loaded is a merged multilingual script.
type Loaded struct {
	Ref  ScriptRef
	Tree script.Tree
	// Languages that had the block, sorted.
	Languages   []string
	Diagnostics map[string][]script.Error
	// MergeErr is set when a language did not match the reference
	// structure. Tree then holds the reference language only.
	MergeErr error
	Stats    script.Stats
}

// Err reports the parser diagnostics of every language as ParseErrors.
func (l *Loaded) Err() error {
	var errs []error
	for _, lang := range l.Languages {
		if d := l.Diagnostics[lang]; len(d) > 0 {
			errs = append(errs, &ParseError{Language: lang, Diagnostics: d})
		}
	}
	return errors.Join(errs...)
}

// LoadScript loads the block named name in every language and merges them.
func (w *Workspace) LoadScript(ctx context.Context, name string) (*Loaded, error) {
	ref, err := w.Find(ctx, name)
	if err != nil {
		return nil, err
	}
	return w.LoadRef(ctx, ref)
}

// LoadRef parses ref in each configured language concurrently and merges
// the trees on the reference structure. When a language does not match,
// the reference tree is returned and the mismatch is kept in MergeErr.
func (w *Workspace) LoadRef(ctx context.Context, ref ScriptRef) (*Loaded, error) {
	l, done := applog.WithOperation(applog.WithComponent("storage"), "load_script")
	defer done()
	ctx = applog.ContextWith(ctx, slog.String("script", ref.Name))

	var (
		mu    sync.Mutex
		trees = map[string]script.Tree{}
		diags = map[string][]script.Error{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, lang := range w.cfg.General.Languages {
		lang := lang
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := os.ReadFile(w.PathFor(ref, lang))
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", lang, err)
			}
			lines := script.SplitLines(string(b))
			start, end, ok := locateBlock(lines, ref.Kind, ref.Name)
			if !ok {
				return nil
			}
			// Blank out the rest of the file so node lines match the file.
			masked := make([]string, end+1)
			copy(masked[start:], lines[start:end+1])
			tree, errs := script.ParseWithOptions(masked, w.cfg.ParserOptions(lang))
			mu.Lock()
			trees[lang] = tree
			if len(errs) > 0 {
				diags[lang] = errs
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load %s: %w", ref.Name, err)
	}
	if _, ok := trees[w.Reference()]; !ok {
		return nil, fmt.Errorf("load %s: reference language %s: %w", ref.Name, w.Reference(), ErrNotFound)
	}

	out := &Loaded{Ref: ref, Languages: multilang.Languages(trees), Diagnostics: diags}
	out.Tree, out.MergeErr = multilang.MergeOrFallback(trees, w.Reference())
	if out.MergeErr != nil {
		l.WarnContext(ctx, "languages differ; using reference only", slog.Any("err", out.MergeErr))
	}
	for lang, d := range diags {
		l.WarnContext(ctx, "parse diagnostics", slog.String("lang", lang), slog.Int("count", len(d)))
	}
	out.Stats = script.Collect(out.Tree)
	l.DebugContext(ctx, "script loaded", slog.Int("languages", len(trees)), slog.Int("commands", out.Stats.Commands))
	return out, nil
}

// RoundTripError is returned by SaveScript when the tree would not read
// back in Language. It matches ErrRoundTrip.
type RoundTripError struct {
	Language string
	Result   roundtrip.Result
}

func (e *RoundTripError) Error() string {
	return fmt.Sprintf("%s: %s", e.Language, e.Result.String())
}

func (e *RoundTripError) Unwrap() error { return ErrRoundTrip }

// SaveResult lists the files written and their backups, keyed by language.
type SaveResult struct {
	Ref     ScriptRef
	Files   map[string]string
	Backups map[string]string
}

// SaveScript writes tree, which must hold exactly one SCRIPT or MISSION
// node, into every configured language. The block replaces the existing
// one of the same kind and name or is appended to its file. With strict
// saves enabled nothing is written unless the tree passes the round trip
// check in every language.
func (w *Workspace) SaveScript(ctx context.Context, tree script.Tree) (*SaveResult, error) {
	l, done := applog.WithOperation(applog.WithComponent("storage"), "save_script")
	defer done()

	if len(tree) != 1 {
		return nil, fmt.Errorf("save: expected one top-level block, got %d", len(tree))
	}
	var kind script.NodeKind
	var name string
	switch n := tree[0].(type) {
	case *script.Script:
		kind, name = script.KindScript, n.Name
	case *script.Mission:
		kind, name = script.KindMission, n.Name
	default:
		return nil, fmt.Errorf("save: top-level node is %s, want script or mission", n.Kind())
	}
	ctx = applog.ContextWith(ctx, slog.String("script", name))

	langs := w.cfg.General.Languages
	if lang, res := roundtrip.CheckLanguages(tree, langs, w.cfg.ParserOptions("")); !res.OK() {
		rerr := &RoundTripError{Language: lang, Result: res}
		if w.cfg.Parser.StrictSave {
			l.WarnContext(ctx, "save refused", slog.Any("err", rerr))
			return nil, fmt.Errorf("save %s: %w", name, rerr)
		}
		l.WarnContext(ctx, "saving despite round trip mismatch", slog.Any("err", rerr))
	}

	ref, found, err := w.findKind(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	if !found {
		ref = ScriptRef{Kind: kind, Name: name, Source: SourceScripts, File: name + ".txt"}
		if kind == script.KindMission {
			ref.Source, ref.File = SourceMissions, ""
		}
	}

	res := &SaveResult{Ref: ref, Files: map[string]string{}, Backups: map[string]string{}}
	staged := make([]stagedFile, len(langs))
	stamp := w.now()
	g, gctx := errgroup.WithContext(ctx)
	for i, lang := range langs {
		i, lang := i, lang
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := w.PathFor(ref, lang)
			existing, err := os.ReadFile(path)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("read %s: %w", lang, err)
			}
			block := script.SerializeLines(tree, w.cfg.ParserOptions(lang))
			data := spliceBlock(string(existing), kind, name, block, ref.Source == SourceScripts)
			bak, err := backupFile(w.Root, lang, path, stamp)
			if err != nil {
				return err
			}
			temp, err := stageFile(path, []byte(data))
			if err != nil {
				return fmt.Errorf("write %s: %w", lang, err)
			}
			staged[i] = stagedFile{lang: lang, path: path, temp: temp, backup: bak}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		discardStaged(staged)
		return res, fmt.Errorf("save %s: %w", name, err)
	}
	// No language file changes until every language is staged.
	for i, sf := range staged {
		if err := commitFile(sf.temp, sf.path); err != nil {
			discardStaged(staged[i+1:])
			if rerr := rollbackStaged(staged[:i]); rerr != nil {
				l.ErrorContext(ctx, "rollback failed", slog.Any("err", rerr))
			}
			return res, fmt.Errorf("save %s: write %s: %w", name, sf.lang, err)
		}
	}
	for _, sf := range staged {
		res.Files[sf.lang] = sf.path
		if sf.backup != "" {
			res.Backups[sf.lang] = sf.backup
		}
	}
	l.InfoContext(ctx, "script saved", slog.Int("files", len(res.Files)), slog.Int("backups", len(res.Backups)))
	return res, nil
}

// stagedFile is one language file of a save, written but not yet moved
// into place.
type stagedFile struct {
	lang   string
	path   string
	temp   string
	backup string
}

func discardStaged(files []stagedFile) {
	for _, sf := range files {
		if sf.temp != "" {
			_ = os.Remove(sf.temp)
		}
	}
}

// rollbackStaged puts committed files back to their backed up content.
// Files without a backup did not exist before the save and are removed.
func rollbackStaged(files []stagedFile) error {
	var errs []error
	for _, sf := range files {
		if sf.backup == "" {
			if err := os.Remove(sf.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		data, err := os.ReadFile(sf.backup)
		if err == nil {
			err = writeFileAtomic(sf.path, data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", sf.lang, err))
		}
	}
	return errors.Join(errs...)
}

// ParseFile parses a whole script file. The wrapper lines are blanked
// rather than removed so node lines are file lines.
func ParseFile(path string, opts script.Options) (script.Tree, []script.Error, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	tree, errs := script.ParseWithOptions(MaskWrapper(script.SplitLines(string(b))), opts)
	return tree, errs, nil
}

// wrapperBounds returns the index range inside the wrapper and whether the
// open and close lines were present. Surrounding blank lines are outside.
func wrapperBounds(lines []string) (i, j int, wrapped bool) {
	i, j = 0, len(lines)
	for i < j && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	for j > i && strings.TrimSpace(lines[j-1]) == "" {
		j--
	}
	if i < j && strings.TrimSpace(lines[i]) == wrapperOpen {
		i++
		wrapped = true
	}
	if j > i && strings.TrimSpace(lines[j-1]) == wrapperClose {
		j--
		wrapped = true
	}
	return i, j, wrapped
}

// StripWrapper removes the SCRIPTS / END_OF_SCRIPTS file wrapper and the
// blank lines around it. Lines without a wrapper are returned unchanged.
func StripWrapper(lines []string) []string {
	i, j, _ := wrapperBounds(lines)
	return lines[i:j]
}

// MaskWrapper is StripWrapper keeping line positions: the wrapper lines are
// replaced by blank lines in a copy of lines.
func MaskWrapper(lines []string) []string {
	i, j, _ := wrapperBounds(lines)
	out := make([]string, len(lines))
	copy(out[i:j], lines[i:j])
	return out
}

// HasWrapper reports whether lines carry a SCRIPTS / END_OF_SCRIPTS wrapper.
func HasWrapper(lines []string) bool {
	_, _, wrapped := wrapperBounds(lines)
	return wrapped
}

// WrapLines puts block lines inside a SCRIPTS wrapper, indented by one
// level, the way campaign script files are laid out.
func WrapLines(block []string) []string {
	out := make([]string, 0, len(block)+2)
	out = append(out, wrapperOpen)
	for _, l := range block {
		if l == "" {
			out = append(out, l)
			continue
		}
		out = append(out, "  "+l)
	}
	return append(out, wrapperClose)
}

// ExtractBlock returns the lines of the block of the given kind and name in
// content, header and close marker included.
func ExtractBlock(content string, kind script.NodeKind, name string) ([]string, bool) {
	lines := script.SplitLines(content)
	start, end, ok := locateBlock(lines, kind, name)
	if !ok {
		return nil, false
	}
	return lines[start : end+1], true
}

type header struct {
	kind script.NodeKind
	name string
	line int
}

func familyOf(kind script.NodeKind) script.Family {
	if kind == script.KindMission {
		return script.FamilyMission
	}
	return script.FamilyScript
}

// headerAt classifies line as a SCRIPT or MISSION header.
func headerAt(line string) (header, bool) {
	t := strings.TrimSpace(line)
	if t == "" || strings.HasPrefix(t, "//") {
		return header{}, false
	}
	c := script.Classify(t, script.FamilyNone)
	if c.Class != script.ClassOpen || len(c.Captures) == 0 {
		return header{}, false
	}
	switch c.Family {
	case script.FamilyScript:
		return header{kind: script.KindScript, name: strings.TrimSpace(c.Captures[0])}, true
	case script.FamilyMission:
		return header{kind: script.KindMission, name: strings.TrimSpace(c.Captures[0])}, true
	}
	return header{}, false
}

func blockHeaders(lines []string) []header {
	var out []header
	for i, ln := range lines {
		if h, ok := headerAt(ln); ok {
			h.line = i + 1
			out = append(out, h)
		}
	}
	return out
}

// locateBlock finds the header and close marker of a block. A block with
// no close marker runs to the file wrapper or the end of the file.
func locateBlock(lines []string, kind script.NodeKind, name string) (int, int, bool) {
	closeMarker := familyOf(kind).CloseMarker()
	for i, ln := range lines {
		h, ok := headerAt(ln)
		if !ok || h.kind != kind || h.name != name {
			continue
		}
		last := i
		for j := i + 1; j < len(lines); j++ {
			t := strings.TrimSpace(lines[j])
			if t == closeMarker {
				return i, j, true
			}
			if t == wrapperClose {
				break
			}
			if _, next := headerAt(lines[j]); next {
				break
			}
			if t != "" {
				last = j
			}
		}
		return i, last, true
	}
	return 0, 0, false
}

// spliceBlock replaces the named block in content with block, or appends
// it. Scripts files keep their SCRIPTS wrapper; a new one gets it. The
// line ending of content is preserved.
func spliceBlock(content string, kind script.NodeKind, name string, block []string, wrapped bool) string {
	eol := "\n"
	if strings.Contains(content, "\r\n") {
		eol = "\r\n"
	}
	lines := script.SplitLines(content)
	var out []string
	if start, end, ok := locateBlock(lines, kind, name); ok {
		out = append(out, lines[:start]...)
		out = append(out, block...)
		out = append(out, lines[end+1:]...)
	} else {
		for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
			lines = lines[:len(lines)-1]
		}
		closeAt := -1
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == wrapperClose {
			closeAt = len(lines) - 1
		}
		switch {
		case closeAt >= 0:
			out = append(out, lines[:closeAt]...)
			out = append(out, block...)
			out = append(out, lines[closeAt:]...)
		case wrapped && len(lines) == 0:
			out = append(out, wrapperOpen)
			out = append(out, block...)
			out = append(out, wrapperClose)
		default:
			out = append(out, lines...)
			out = append(out, block...)
		}
	}
	return strings.Join(out, eol) + eol
}
