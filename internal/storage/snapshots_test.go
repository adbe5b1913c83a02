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
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocampaign/internal/script"
)

func TestScriptSnapshots(t *testing.T) {
	_, ix := indexedWorkspace(t)
	ctx := context.Background()

	_, ok, err := ix.LatestSnapshot(ctx, "intro", "EN")
	require.NoError(t, err)
	assert.False(t, ok)

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		id, err := ix.SaveSnapshot(ctx, "intro", "EN", strings.Repeat("x", i+1), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		_, perr := uuid.Parse(id)
		require.NoError(t, perr)
		ids = append(ids, id)
	}
	_, err = ix.SaveSnapshot(ctx, "intro", "DE", "de", base)
	require.NoError(t, err)

	latest, ok, err := ix.LatestSnapshot(ctx, "intro", "EN")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ids[4], latest.ID)
	assert.Equal(t, "xxxxx", latest.Text)
	assert.True(t, latest.TS.Equal(base.Add(4*time.Minute)))

	list, err := ix.ListSnapshots(ctx, "intro", "EN", 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "xxxx", list[1].Text)

	n, err := ix.PruneSnapshots(ctx, "intro", "EN", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	list, err = ix.ListSnapshots(ctx, "intro", "EN", 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	de, err := ix.ListSnapshots(ctx, "intro", "DE", 0)
	require.NoError(t, err)
	assert.Len(t, de, 1, "pruning is per language")

	n, err = ix.PruneSnapshots(ctx, "intro", "EN", 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = ix.SaveSnapshot(ctx, "", "EN", "x", base)
	assert.Error(t, err)
}

func TestRecordSave(t *testing.T) {
	ws, ix := indexedWorkspace(t)
	ctx := context.Background()
	ld, err := ws.LoadScript(ctx, "outro")
	require.NoError(t, err)
	ld.Tree[0].(*script.Script).Children[0].(*script.Command).Params["text"] = script.TextValue(script.Text{"EN": "Farewell", "DE": "Lebewohl"})
	res, err := ws.SaveScript(ctx, ld.Tree)
	require.NoError(t, err)

	require.NoError(t, ix.RecordSave(ctx, ws, res, 10))
	snap, ok, err := ix.LatestSnapshot(ctx, "outro", "DE")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "SCRIPT outro\n  Say \"Lebewohl\"\nEND_OF_SCRIPT", snap.Text)

	hits, err := ix.Search(ctx, SearchQuery{Text: "Farewell"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	hits, err = ix.Search(ctx, SearchQuery{Text: "Bye"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
