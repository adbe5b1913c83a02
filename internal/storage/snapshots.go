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
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// language=SQL
// dialect=SQLite
const insertScriptSnapshotSQL = `INSERT INTO script_snapshots(id, script, language, ts, text) VALUES (?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestScriptSnapshotSQL = `SELECT id, ts, text FROM script_snapshots WHERE script = ? AND language = ? ORDER BY ts DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listScriptSnapshotsSQL = `SELECT id, ts, text FROM script_snapshots WHERE script = ? AND language = ? ORDER BY ts DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneOldScriptSnapshotsSQL = `DELETE FROM script_snapshots WHERE script = ? AND language = ? AND id NOT IN (
	SELECT id FROM script_snapshots WHERE script = ? AND language = ? ORDER BY ts DESC LIMIT ?
)`

// Snapshot is a saved copy of one script's text in one language.
type Snapshot struct {
	ID       string
	Script   string
	Language string
	TS       time.Time
	Text     string
}

// SaveSnapshot records text as the state of script in lang at ts and
// returns the snapshot id. Snapshots live in the index and are lost when it
// is deleted; they serve change tracking, not storage.
func (ix *Index) SaveSnapshot(ctx context.Context, scriptName, lang, text string, ts time.Time) (string, error) {
	if scriptName == "" || lang == "" {
		return "", errors.New("snapshot: script and language are required")
	}
	id := uuid.NewString()
	if _, err := ix.db.ExecContext(ctx, insertScriptSnapshotSQL, id, scriptName, lang, ts.UTC().Format(time.RFC3339Nano), text); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	return id, nil
}

// LatestSnapshot returns the newest snapshot of script in lang. ok is false
// when there is none.
func (ix *Index) LatestSnapshot(ctx context.Context, scriptName, lang string) (Snapshot, bool, error) {
	var id, tsStr, txt string
	err := ix.db.QueryRowContext(ctx, selectLatestScriptSnapshotSQL, scriptName, lang).Scan(&id, &tsStr, &txt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	ts, _ := time.Parse(time.RFC3339Nano, tsStr)
	return Snapshot{ID: id, Script: scriptName, Language: lang, TS: ts, Text: txt}, true, nil
}

// ListSnapshots returns up to limit snapshots of script in lang, newest
// first.
func (ix *Index) ListSnapshots(ctx context.Context, scriptName, lang string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := ix.db.QueryContext(ctx, listScriptSnapshotsSQL, scriptName, lang, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Snapshot
	for rows.Next() {
		s := Snapshot{Script: scriptName, Language: lang}
		var tsStr string
		if err := rows.Scan(&s.ID, &tsStr, &s.Text); err != nil {
			return nil, err
		}
		s.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneSnapshots keeps the keepLast newest snapshots of script in lang and
// deletes the rest. keepLast <= 0 keeps everything.
func (ix *Index) PruneSnapshots(ctx context.Context, scriptName, lang string, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	res, err := ix.db.ExecContext(ctx, pruneOldScriptSnapshotsSQL, scriptName, lang, scriptName, lang, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordSave snapshots the saved block in every written language, prunes
// old snapshots to keep and refreshes the script's index rows.
func (ix *Index) RecordSave(ctx context.Context, ws *Workspace, res *SaveResult, keep int) error {
	langs := make([]string, 0, len(res.Files))
	for lang := range res.Files {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	now := time.Now()
	for _, lang := range langs {
		b, err := os.ReadFile(res.Files[lang])
		if err != nil {
			return fmt.Errorf("read saved %s: %w", lang, err)
		}
		block, ok := ExtractBlock(string(b), res.Ref.Kind, res.Ref.Name)
		if !ok {
			return fmt.Errorf("saved %s in %s: %w", res.Ref.Name, lang, ErrNotFound)
		}
		if _, err := ix.SaveSnapshot(ctx, res.Ref.Name, lang, strings.Join(block, "\n"), now); err != nil {
			return err
		}
		if _, err := ix.PruneSnapshots(ctx, res.Ref.Name, lang, keep); err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
	}
	ld, err := ws.LoadRef(ctx, res.Ref)
	if err != nil {
		return err
	}
	return ix.Update(ctx, ld)
}
