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
	"fmt"
	"strings"
)

// SearchQuery describes a dialogue search.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT).
// An empty Text lists dialogues matching the filters only.
// Limit/Offset implement pagination; reasonable defaults applied if zero.
type SearchQuery struct {
	Text      string
	Language  string
	Character string
	Script    string
	Kinds     []string // script, mission
	Limit     int
	Offset    int
}

// SearchResult is one matching dialogue row. Snippet marks the matched
// terms with [ ] when Text was given.
type SearchResult struct {
	Script     string
	ScriptKind string
	Language   string
	Path       string
	Line       int
	Command    string
	Character  string
	Text       string
	Snippet    string
}

// Search runs q against the dialogue index.
func (ix *Index) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	useFTS := strings.TrimSpace(q.Text) != ""
	if useFTS {
		sb.WriteString("SELECT s.name, s.kind, d.language, d.path, d.line, d.command, COALESCE(d.character,''), d.text, snippet(fts_dialogues, 0, '[', ']', '...', 10)\n")
		sb.WriteString("FROM fts_dialogues JOIN dialogues d ON fts_dialogues.rowid = d.dialogue_id JOIN scripts s ON s.script_id = d.script_id\n")
		sb.WriteString("WHERE fts_dialogues MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT s.name, s.kind, d.language, d.path, d.line, d.command, COALESCE(d.character,''), d.text, ''\n")
		sb.WriteString("FROM dialogues d JOIN scripts s ON s.script_id = d.script_id\nWHERE 1=1\n")
	}
	if s := strings.TrimSpace(q.Language); s != "" {
		sb.WriteString(" AND d.language = ?\n")
		args = append(args, strings.ToUpper(s))
	}
	if s := strings.TrimSpace(q.Character); s != "" {
		sb.WriteString(" AND lower(d.character) = ?\n")
		args = append(args, strings.ToLower(s))
	}
	if s := strings.TrimSpace(q.Script); s != "" {
		sb.WriteString(" AND s.name = ?\n")
		args = append(args, s)
	}
	if len(q.Kinds) > 0 {
		sb.WriteString(" AND s.kind IN (" + placeholders(len(q.Kinds)) + ")\n")
		for _, k := range q.Kinds {
			args = append(args, k)
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	sb.WriteString("ORDER BY s.name, d.dialogue_id\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := ix.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var sn sql.NullString
		if err := rows.Scan(&r.Script, &r.ScriptKind, &r.Language, &r.Path, &r.Line, &r.Command, &r.Character, &r.Text, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if sn.Valid {
			r.Snippet = sn.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Usage is one place where an entity is referenced.
type Usage struct {
	Script     string
	ScriptKind string
	Kind       string
	Value      string
	Path       string
	Line       int
}

// WhereUsed lists the references to value. An empty kind matches every
// reference kind (variable, semaphore, character, label, node, route,
// script, mission).
func (ix *Index) WhereUsed(ctx context.Context, kind, value string, limit, offset int) ([]Usage, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("where-used: value is required")
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	q := `SELECT s.name, s.kind, r.kind, r.value, r.path, r.line
		FROM refs r
		JOIN scripts s ON s.script_id = r.script_id
		WHERE r.value = ? AND (? = '' OR r.kind = ?)
		ORDER BY s.name, r.rowid
		LIMIT ? OFFSET ?`
	rows, err := ix.db.QueryContext(ctx, q, value, kind, kind, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("where-used query: %w", err)
	}
	defer rows.Close()
	var out []Usage
	for rows.Next() {
		var u Usage
		if err := rows.Scan(&u.Script, &u.ScriptKind, &u.Kind, &u.Value, &u.Path, &u.Line); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := strings.Builder{}
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
	}
	return b.String()
}
