/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */
package backend

import (
	"context"
	"fmt"
	"strings"

	"gocampaign/internal/storage"
)

// buildSearch renders q as a Postgres query over the campaign's dialogues.
// Text is matched with plainto_tsquery, so FTS5 operators are treated as
// plain words.
func buildSearch(campaign string, q storage.SearchQuery) (string, []any) {
	var (
		args []any
		b    strings.Builder
	)
	place := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	useFTS := strings.TrimSpace(q.Text) != ""
	if useFTS {
		text := place(q.Text)
		b.WriteString("SELECT s.name, s.kind, d.language, d.path, d.line, d.command, COALESCE(d.character,''), d.text, ")
		b.WriteString("COALESCE(ts_headline('simple', d.text, plainto_tsquery('simple', " + text + "), 'StartSel=[, StopSel=], MaxFragments=1, MaxWords=12'), '') ")
		b.WriteString("FROM dialogues d JOIN scripts s ON s.id = d.script_id ")
		b.WriteString("WHERE s.campaign = " + place(campaign) + " AND d.search_vector @@ plainto_tsquery('simple', " + text + ")")
	} else {
		b.WriteString("SELECT s.name, s.kind, d.language, d.path, d.line, d.command, COALESCE(d.character,''), d.text, '' ")
		b.WriteString("FROM dialogues d JOIN scripts s ON s.id = d.script_id ")
		b.WriteString("WHERE s.campaign = " + place(campaign))
	}
	if s := strings.TrimSpace(q.Language); s != "" {
		b.WriteString(" AND d.language = " + place(strings.ToUpper(s)))
	}
	if s := strings.TrimSpace(q.Character); s != "" {
		b.WriteString(" AND lower(d.character) = " + place(strings.ToLower(s)))
	}
	if s := strings.TrimSpace(q.Script); s != "" {
		b.WriteString(" AND s.name = " + place(s))
	}
	if len(q.Kinds) > 0 {
		b.WriteString(" AND s.kind = ANY (" + place(q.Kinds) + ")")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	b.WriteString(" ORDER BY s.name, d.id")
	b.WriteString(" LIMIT " + place(limit) + " OFFSET " + place(offset))
	return b.String(), args
}

// Search runs q against the mirrored dialogues. Results use the same shape
// as the local index so callers can switch between both.
func (m *Mirror) Search(ctx context.Context, q storage.SearchQuery) ([]storage.SearchResult, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	query, args := buildSearch(m.campaign, q)
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search pg query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.SearchResult
	for rows.Next() {
		var r storage.SearchResult
		if err := rows.Scan(&r.Script, &r.ScriptKind, &r.Language, &r.Path, &r.Line, &r.Command, &r.Character, &r.Text, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WhereUsed lists the mirrored references to value. An empty kind matches
// every reference kind.
func (m *Mirror) WhereUsed(ctx context.Context, kind, value string, limit, offset int) ([]storage.Usage, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("where-used: value is required")
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	rows, err := m.db.QueryContext(ctx, `SELECT s.name, s.kind, r.kind, r.value, r.path, r.line
		FROM refs r JOIN scripts s ON s.id = r.script_id
		WHERE s.campaign = $1 AND r.value = $2 AND ($3 = '' OR r.kind = $3)
		ORDER BY s.name, r.id
		LIMIT $4 OFFSET $5`, m.campaign, value, kind, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("where-used pg query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.Usage
	for rows.Next() {
		var u storage.Usage
		if err := rows.Scan(&u.Script, &u.ScriptKind, &u.Kind, &u.Value, &u.Path, &u.Line); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
