/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */
// Package backend mirrors indexed campaign scripts into PostgreSQL so teams
// can search a shared copy. The local SQLite index stays the source for the
// CLI; the mirror offers the same Search and WhereUsed queries over
// tsvector columns.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"gocampaign/internal/config"
	applog "gocampaign/internal/log"
	"gocampaign/internal/script"
	"gocampaign/internal/storage"
)

// ErrDisabled is returned by Open when the backend is switched off in the
// configuration.
var ErrDisabled = errors.New("backend disabled")

// Mirror is a connection to the Postgres mirror of one campaign.
type Mirror struct {
	pool     *pgxpool.Pool
	db       *sql.DB
	campaign string
	timeout  time.Duration
}

// Open connects to cfg.DSN, applies migrations and scopes the mirror to
// campaign.
func Open(ctx context.Context, cfg config.BackendConfig, campaign string) (*Mirror, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	return Connect(ctx, cfg.DSN, campaign, cfg.Timeout())
}

// Connect is Open without the configuration switch.
func Connect(ctx context.Context, dsn, campaign string, timeout time.Duration) (*Mirror, error) {
	if strings.TrimSpace(campaign) == "" {
		return nil, errors.New("backend: campaign name is required")
	}
	l, done := applog.WithOperation(applog.WithComponent("backend"), "connect")
	defer done()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	m := &Mirror{pool: pool, db: stdlib.OpenDBFromPool(pool), campaign: campaign, timeout: timeout}
	cctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		m.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(cctx, m.db); err != nil {
		m.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	l.DebugContext(ctx, "backend connected", slog.String("campaign", campaign))
	return m, nil
}

// Close releases the pool.
func (m *Mirror) Close() {
	_ = m.db.Close()
	m.pool.Close()
}

// Campaign returns the campaign the mirror is scoped to.
func (m *Mirror) Campaign() string { return m.campaign }

func (m *Mirror) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

// Push replaces the mirrored copy of one loaded script.
func (m *Mirror) Push(ctx context.Context, ld *storage.Loaded) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := m.push(ctx, tx, ld); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// PushAll mirrors every script of ws in one transaction and removes mirrored
// scripts that no longer exist. It returns the number of scripts pushed.
func (m *Mirror) PushAll(ctx context.Context, ws *storage.Workspace) (int, error) {
	l, done := applog.WithOperation(applog.WithComponent("backend"), "push_all")
	defer done()
	refs, err := ws.ListScripts(ctx)
	if err != nil {
		return 0, err
	}
	loaded := make([]*storage.Loaded, 0, len(refs))
	for _, ref := range refs {
		ld, err := ws.LoadRef(ctx, ref)
		if err != nil {
			return 0, fmt.Errorf("load %s: %w", ref, err)
		}
		loaded = append(loaded, ld)
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `DELETE FROM scripts WHERE campaign = $1`, m.campaign); err != nil {
		return 0, fmt.Errorf("clear campaign: %w", err)
	}
	for _, ld := range loaded {
		if err := m.push(ctx, tx, ld); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	l.InfoContext(ctx, "campaign mirrored", slog.String("campaign", m.campaign), slog.Int("scripts", len(loaded)))
	return len(loaded), nil
}

func (m *Mirror) push(ctx context.Context, tx pgx.Tx, ld *storage.Loaded) error {
	data, err := script.MarshalTree(ld.Tree)
	if err != nil {
		return err
	}
	var mergeErr *string
	if ld.MergeErr != nil {
		s := ld.MergeErr.Error()
		mergeErr = &s
	}
	langs := ld.Languages
	if langs == nil {
		langs = []string{}
	}
	var id int64
	err = tx.QueryRow(ctx, `INSERT INTO scripts(campaign, kind, name, file, languages, tree, merge_error, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (campaign, kind, name) DO UPDATE SET
			file = EXCLUDED.file, languages = EXCLUDED.languages, tree = EXCLUDED.tree,
			merge_error = EXCLUDED.merge_error, updated_at = now()
		RETURNING id`,
		m.campaign, string(ld.Ref.Kind), ld.Ref.Name, ld.Ref.File, langs, string(data), mergeErr).Scan(&id)
	if err != nil {
		return fmt.Errorf("upsert script %s: %w", ld.Ref.Name, err)
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM dialogues WHERE script_id = $1`, id)
	batch.Queue(`DELETE FROM refs WHERE script_id = $1`, id)
	for _, d := range storage.Dialogues(ld.Tree) {
		var ch *string
		if d.Character != "" {
			c := d.Character
			ch = &c
		}
		batch.Queue(`INSERT INTO dialogues(script_id, language, path, line, command, character, text) VALUES($1,$2,$3,$4,$5,$6,$7)`,
			id, d.Language, d.Path.String(), d.Line, d.Command, ch, d.Text)
	}
	for _, r := range script.References(ld.Tree) {
		batch.Queue(`INSERT INTO refs(script_id, kind, value, path, line) VALUES($1,$2,$3,$4,$5)`,
			id, r.Kind, r.Value, r.Path.String(), r.Line)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("mirror rows of %s: %w", ld.Ref.Name, err)
	}
	return nil
}

// Remove deletes a mirrored script. Removing a missing script is not an
// error.
func (m *Mirror) Remove(ctx context.Context, kind script.NodeKind, name string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	_, err := m.pool.Exec(ctx, `DELETE FROM scripts WHERE campaign = $1 AND kind = $2 AND name = $3`, m.campaign, string(kind), name)
	return err
}

// Tree returns the mirrored tree of a script, or storage.ErrNotFound.
func (m *Mirror) Tree(ctx context.Context, kind script.NodeKind, name string) (script.Tree, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	var data []byte
	err := m.pool.QueryRow(ctx, `SELECT tree::text FROM scripts WHERE campaign = $1 AND kind = $2 AND name = $3`,
		m.campaign, string(kind), name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", kind, name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return script.UnmarshalTree(data)
}

// Counts reports the number of mirrored scripts, dialogue rows and
// references of the campaign.
func (m *Mirror) Counts(ctx context.Context) (scripts, dialogues, refs int, err error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	err = m.db.QueryRowContext(ctx, `SELECT
		(SELECT count(*) FROM scripts WHERE campaign = $1),
		(SELECT count(*) FROM dialogues d JOIN scripts s ON s.id = d.script_id WHERE s.campaign = $1),
		(SELECT count(*) FROM refs r JOIN scripts s ON s.id = r.script_id WHERE s.campaign = $1)`,
		m.campaign).Scan(&scripts, &dialogues, &refs)
	return scripts, dialogues, refs, err
}
