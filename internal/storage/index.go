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
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	applog "gocampaign/internal/log"
	"gocampaign/internal/script"
	"gocampaign/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	IndexFileName = "index.sqlite"

	// schemaVersion tracks the local SQLite schema for the embedded index.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2
)

// DefaultIndexPath returns <root>/.gcs/index.sqlite.
func DefaultIndexPath(root string) string {
	return filepath.Join(root, WorkDirName, IndexFileName)
}

// Index is the derived search index of a workspace.
type Index struct {
	db   *sql.DB
	path string
}

// OpenIndex opens or creates the index database at path, enables WAL mode
// and brings the schema up to date.
func OpenIndex(path string) (*Index, error) {
	l, done := applog.WithOperation(applog.WithComponent("storage"), "index_init")
	defer done()
	l = l.With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("index path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		l.Error("create index dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	// Use a URI with shared cache and set busy timeout. Convert to forward slashes for SQLite URI.
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", slog.Any("err", err))
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("index ready")
	return &Index{db: db, path: path}, nil
}

// Close closes the database.
func (ix *Index) Close() error { return ix.db.Close() }

// Path returns the database file.
func (ix *Index) Path() string { return ix.path }

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// Keep the stored schema for runMigrations.
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		// Written by a newer build; leave it alone.
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		switch next {
		case 2:
			// Lookup indexes for where-used and per-script dialogue queries.
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin migration %d: %w", next, err)
			}
			stmts := []string{
				`CREATE INDEX IF NOT EXISTS idx_refs_kind_value ON refs(kind, value);`,
				`CREATE INDEX IF NOT EXISTS idx_dialogues_script ON dialogues(script_id);`,
			}
			for _, q := range stmts {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("migration %d stmt failed: %w", next, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d update version: %w", next, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("migration %d commit: %w", next, err)
			}
			// Best-effort optimize outside the tx.
			_, _ = db.ExecContext(ctx, `INSERT INTO fts_dialogues(fts_dialogues) VALUES('optimize')`)
		}
		cur = next
	}
	return nil
}

var indexTables = []string{
	`CREATE TABLE IF NOT EXISTS scripts (
		script_id   INTEGER PRIMARY KEY,
		kind        TEXT    NOT NULL,
		name        TEXT    NOT NULL,
		source      INTEGER NOT NULL,
		file        TEXT    NOT NULL,
		languages   TEXT    NOT NULL,
		commands    INTEGER NOT NULL DEFAULT 0,
		dialogues   INTEGER NOT NULL DEFAULT 0,
		unknown     INTEGER NOT NULL DEFAULT 0,
		merge_error TEXT,
		indexed_at  TEXT    NOT NULL,
		UNIQUE(kind, name)
	);`,

	// One row per dialogue line and language.
	`CREATE TABLE IF NOT EXISTS dialogues (
		dialogue_id INTEGER PRIMARY KEY,
		script_id   INTEGER NOT NULL REFERENCES scripts(script_id) ON DELETE CASCADE,
		language    TEXT    NOT NULL,
		path        TEXT    NOT NULL,
		line        INTEGER NOT NULL,
		command     TEXT    NOT NULL,
		character   TEXT,
		text        TEXT    NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_dialogues_script ON dialogues(script_id);`,

	// External-content FTS5 over dialogues.text, kept in sync by triggers.
	`CREATE VIRTUAL TABLE IF NOT EXISTS fts_dialogues USING fts5(
		text,
		content='dialogues',
		content_rowid='dialogue_id',
		tokenize = 'unicode61 remove_diacritics 2'
	);`,

	// Entity references for where-used.
	`CREATE TABLE IF NOT EXISTS refs (
		script_id INTEGER NOT NULL REFERENCES scripts(script_id) ON DELETE CASCADE,
		kind      TEXT    NOT NULL,
		value     TEXT    NOT NULL,
		path      TEXT    NOT NULL,
		line      INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_refs_kind_value ON refs(kind, value);`,

	// Script text history per language.
	`CREATE TABLE IF NOT EXISTS script_snapshots (
		id       TEXT PRIMARY KEY,
		script   TEXT NOT NULL,
		language TEXT NOT NULL,
		ts       TEXT NOT NULL,
		text     TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_script_snapshots_ts ON script_snapshots(script, language, ts);`,
}

var indexTriggers = []string{
	`CREATE TRIGGER IF NOT EXISTS dialogues_ai AFTER INSERT ON dialogues BEGIN
		INSERT INTO fts_dialogues(rowid, text) VALUES (new.dialogue_id, new.text);
	END;`,
	`CREATE TRIGGER IF NOT EXISTS dialogues_ad AFTER DELETE ON dialogues BEGIN
		INSERT INTO fts_dialogues(fts_dialogues, rowid, text) VALUES ('delete', old.dialogue_id, old.text);
	END;`,
	`CREATE TRIGGER IF NOT EXISTS dialogues_au AFTER UPDATE OF text ON dialogues BEGIN
		INSERT INTO fts_dialogues(fts_dialogues, rowid, text) VALUES ('delete', old.dialogue_id, old.text);
		INSERT INTO fts_dialogues(rowid, text) VALUES (new.dialogue_id, new.text);
	END;`,
}

// ensureIndexSchema creates the index tables, the FTS table and its triggers.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	for _, q := range indexTables {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	for _, q := range indexTriggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// DetectAndRebuildIndex checks the workspace index for corruption or a
// missing schema and rebuilds it if needed. It returns true when a rebuild
// was performed.
func DetectAndRebuildIndex(ctx context.Context, ws *Workspace) (bool, error) {
	path := ws.IndexPath()
	ix, err := OpenIndex(path)
	if err != nil {
		backupIndexFile(path)
		removeIndexFiles(path)
		if _, rbErr := RebuildIndex(ctx, ws); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	needs := false
	var chk string
	if err := ix.db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	if !needs {
		if _, err := ix.db.ExecContext(ctx, `SELECT 1 FROM scripts LIMIT 1;`); err != nil {
			needs = true
		}
	}
	_ = ix.Close()
	if !needs {
		return false, nil
	}
	backupIndexFile(path)
	removeIndexFiles(path)
	if _, err := RebuildIndex(ctx, ws); err != nil {
		return false, err
	}
	return true, nil
}

// backupIndexFile copies the index file into a timestamped backup next to it.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), BackupsDirName)
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format(backupStamp)
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

func removeIndexFiles(indexPath string) {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(indexPath + suffix)
	}
}

// RebuildIndex opens the workspace index and replaces its content with
// every script of the workspace. It returns the number of scripts indexed.
func RebuildIndex(ctx context.Context, ws *Workspace) (int, error) {
	ix, err := OpenIndex(ws.IndexPath())
	if err != nil {
		return 0, err
	}
	defer ix.Close()
	return ix.Rebuild(ctx, ws)
}

// Rebuild loads every script of ws and replaces the index content. Scripts
// that fail to load are logged and skipped.
func (ix *Index) Rebuild(ctx context.Context, ws *Workspace) (int, error) {
	l, done := applog.WithOperation(applog.WithComponent("storage"), "index_rebuild")
	defer done()
	refs, err := ws.ListScripts(ctx)
	if err != nil {
		return 0, err
	}
	loaded := make([]*Loaded, 0, len(refs))
	for _, ref := range refs {
		ld, err := ws.LoadRef(ctx, ref)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return 0, cerr
			}
			l.WarnContext(ctx, "script skipped", slog.String("script", ref.Name), slog.Any("err", err))
			continue
		}
		loaded = append(loaded, ld)
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	for _, q := range []string{"DELETE FROM refs;", "DELETE FROM dialogues;", "DELETE FROM scripts;"} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("clear index: %w", err)
		}
	}
	for _, ld := range loaded {
		if err := insertScript(ctx, tx, ld); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	l.InfoContext(ctx, "index rebuilt", slog.Int("scripts", len(loaded)))
	return len(loaded), nil
}

// Update replaces the indexed content of one script.
func (ix *Index) Update(ctx context.Context, ld *Loaded) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := deleteScript(ctx, tx, ld.Ref.Kind, ld.Ref.Name); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := insertScript(ctx, tx, ld); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func deleteScript(ctx context.Context, tx *sql.Tx, kind script.NodeKind, name string) error {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT script_id FROM scripts WHERE kind=? AND name=?`, string(kind), name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find script: %w", err)
	}
	for _, q := range []string{`DELETE FROM refs WHERE script_id=?`, `DELETE FROM dialogues WHERE script_id=?`, `DELETE FROM scripts WHERE script_id=?`} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete script rows: %w", err)
		}
	}
	return nil
}

func insertScript(ctx context.Context, tx *sql.Tx, ld *Loaded) error {
	var mergeErr sql.NullString
	if ld.MergeErr != nil {
		mergeErr = sql.NullString{String: ld.MergeErr.Error(), Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO scripts(kind, name, source, file, languages, commands, dialogues, unknown, merge_error, indexed_at) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		string(ld.Ref.Kind), ld.Ref.Name, int(ld.Ref.Source), ld.Ref.File, strings.Join(ld.Languages, ","),
		ld.Stats.Commands, ld.Stats.Dialogues, ld.Stats.Unknown, mergeErr, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert script %s: %w", ld.Ref.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("script id: %w", err)
	}

	insD, err := tx.PrepareContext(ctx, `INSERT INTO dialogues(script_id, language, path, line, command, character, text) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare dialogue insert: %w", err)
	}
	defer insD.Close()
	for _, d := range Dialogues(ld.Tree) {
		var ch sql.NullString
		if d.Character != "" {
			ch = sql.NullString{String: d.Character, Valid: true}
		}
		if _, err := insD.ExecContext(ctx, id, d.Language, d.Path.String(), d.Line, d.Command, ch, d.Text); err != nil {
			return fmt.Errorf("insert dialogue: %w", err)
		}
	}

	insR, err := tx.PrepareContext(ctx, `INSERT INTO refs(script_id, kind, value, path, line) VALUES(?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare ref insert: %w", err)
	}
	defer insR.Close()
	for _, r := range script.References(ld.Tree) {
		if _, err := insR.ExecContext(ctx, id, r.Kind, r.Value, r.Path.String(), r.Line); err != nil {
			return fmt.Errorf("insert ref: %w", err)
		}
	}
	return nil
}

// Dialogue is one line of text in one language.
type Dialogue struct {
	Path      script.Path
	Line      int
	Command   string
	Character string
	Language  string
	Text      string
}

// Dialogues lists every non-empty text of tree, one entry per language,
// in document order. Languages follow script.Languages, others come last.
func Dialogues(tree script.Tree) []Dialogue {
	var out []Dialogue
	add := func(p script.Path, line int, cmd, char string, t script.Text) {
		for _, lang := range sortedLangs(t) {
			if t[lang] != "" {
				out = append(out, Dialogue{Path: p, Line: line, Command: cmd, Character: char, Language: lang, Text: t[lang]})
			}
		}
	}
	script.Walk(tree, func(n script.Node, p script.Path) bool {
		switch n := n.(type) {
		case *script.Option:
			add(p, n.Line, "OPT", "", n.Text)
		case *script.Command:
			spec, ok := script.LookupCommand(n.Name)
			if !ok || !spec.HasText() {
				return true
			}
			char := ""
			if v, ok := n.Param("character"); ok {
				char = v.Str
			}
			for _, prm := range spec.Params {
				if prm.Kind != script.ParamText {
					continue
				}
				if v, ok := n.Param(prm.Name); ok {
					add(p, n.Line, n.Name, char, v.Text)
				}
			}
		}
		return true
	})
	return out
}

func sortedLangs(t script.Text) []string {
	out := make([]string, 0, len(t))
	known := map[string]bool{}
	for _, l := range script.Languages {
		known[l] = true
		if _, ok := t[l]; ok {
			out = append(out, l)
		}
	}
	var rest []string
	for l := range t {
		if !known[l] {
			rest = append(rest, l)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Counts reports the number of indexed scripts, dialogue rows and
// references.
func (ix *Index) Counts(ctx context.Context) (scripts, dialogues, refs int, err error) {
	err = ix.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM scripts), (SELECT COUNT(*) FROM dialogues), (SELECT COUNT(*) FROM refs)`,
	).Scan(&scripts, &dialogues, &refs)
	return
}
