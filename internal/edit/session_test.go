/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package edit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocampaign/internal/config"
	"gocampaign/internal/script"
	"gocampaign/internal/storage"
	"gocampaign/internal/undo"
)

const src = `SCRIPT intro
  Say "One"
  IF met_tom
    Say "Two"
  END_OF_IF
END_OF_SCRIPT`

func newSession(t *testing.T) *Session {
	t.Helper()
	tree, errs := script.ParseText(src, "EN")
	require.Empty(t, errs)
	return NewSession("intro", tree, undo.NewManager(undo.Config{MinInterval: -1}))
}

func say(s string) *script.Command {
	return &script.Command{Name: "Say", Params: map[string]script.Value{
		"text": script.TextValue(script.Text{"EN": s}),
	}}
}

func text(t *testing.T, s *Session) string {
	t.Helper()
	return script.Serialize(s.Tree(), "EN")
}

func mustPath(t *testing.T, s string) script.Path {
	t.Helper()
	p, err := ParsePath(s)
	require.NoError(t, err)
	return p
}

func TestParsePath(t *testing.T) {
	p := mustPath(t, "[0].then[1].options[2]")
	assert.Equal(t, script.Path{{Index: 0}, {Field: "then", Index: 1}, {Field: "options", Index: 2}}, p)
	assert.Equal(t, "[0].then[1].options[2]", p.String())

	for _, bad := range []string{"", "children[0]", "[0].[1]", "[x]", "[0].then[-1]", "[0]then"} {
		_, err := ParsePath(bad)
		assert.ErrorIs(t, err, ErrBadPath, bad)
	}
}

func TestReplaceInsertDelete(t *testing.T) {
	s := newSession(t)
	assert.False(t, s.Dirty())

	require.NoError(t, s.Replace(mustPath(t, "[0].children[0]"), say("Uno")))
	require.NoError(t, s.Insert(mustPath(t, "[0].children[1].then[1]"), say("Three")))
	removed, err := s.Delete(mustPath(t, "[0].children[1].then[0]"))
	require.NoError(t, err)
	assert.Equal(t, "Say", removed.(*script.Command).Name)

	assert.True(t, s.Dirty())
	want := "SCRIPT intro\n  Say \"Uno\"\n  IF met_tom\n    Say \"Three\"\n  END_OF_IF\nEND_OF_SCRIPT"
	assert.Equal(t, want, strings.TrimRight(text(t, s), "\n"))

	n, ok := s.NodeAt(mustPath(t, "[0].children[0]"))
	require.True(t, ok)
	n.(*script.Command).Name = "changed"
	assert.Contains(t, text(t, s), `Say "Uno"`, "NodeAt must return a copy")
}

func TestInsertAppendsAtEnd(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.Insert(mustPath(t, "[0].children[2]"), say("Last")))
	tree := s.Tree()
	children := tree[0].(*script.Script).Children
	require.Len(t, children, 3)
	assert.Equal(t, "Last", children[2].(*script.Command).Params["text"].Text["EN"])
}

func TestBadEdits(t *testing.T) {
	s := newSession(t)
	for _, p := range []string{"[5]", "[0].children[3]", "[0].finish[0]", "[0].children[0].then[0]"} {
		_, err := s.Delete(mustPath(t, p))
		assert.ErrorIs(t, err, ErrBadPath, p)
	}
	assert.ErrorIs(t, s.Replace(mustPath(t, "[0].children[0]"), nil), ErrNilNode)
	assert.ErrorIs(t, s.Replace(mustPath(t, "[0].children[2]"), say("x")), ErrBadPath)
	assert.False(t, s.Dirty())
	assert.False(t, s.CanUndo(), "failed edits must not record history")
}

func TestUndoRedo(t *testing.T) {
	s := newSession(t)
	orig := text(t, s)

	ok, err := s.Undo()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Replace(mustPath(t, "[0].children[0]"), say("A")))
	afterA := text(t, s)
	require.NoError(t, s.Replace(mustPath(t, "[0].children[0]"), say("B")))
	afterB := text(t, s)

	ok, err = s.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, afterA, text(t, s))

	ok, _ = s.Undo()
	require.True(t, ok)
	assert.Equal(t, orig, text(t, s))
	assert.False(t, s.CanUndo())

	ok, _ = s.Redo()
	require.True(t, ok)
	assert.Equal(t, afterA, text(t, s))
	ok, _ = s.Redo()
	require.True(t, ok)
	assert.Equal(t, afterB, text(t, s))
	assert.False(t, s.CanRedo())

	// A new edit after undo drops the redo branch.
	_, _ = s.Undo()
	_, err = s.Delete(mustPath(t, "[0].children[1]"))
	require.NoError(t, err)
	assert.False(t, s.CanRedo())
}

func TestSessionsShareManagerByKey(t *testing.T) {
	m := undo.NewManager(undo.Config{MinInterval: -1})
	tree, _ := script.ParseText(src, "EN")
	a := NewSession("a", tree, m)
	b := NewSession("b", tree, m)
	require.NoError(t, a.Replace(mustPath(t, "[0].children[0]"), say("A")))
	assert.True(t, a.CanUndo())
	assert.False(t, b.CanUndo())
}

func TestSaveWritesFilesAndIndex(t *testing.T) {
	root := t.TempDir()
	write := func(rel, body string) {
		p := filepath.Join(root, storage.CampaignDirName, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	write("campaignScriptsEN/outro.txt", "SCRIPTS\n  SCRIPT outro\n    Say \"Bye\"\n  END_OF_SCRIPT\nEND_OF_SCRIPTS\n")
	write("campaignScriptsDE/outro.txt", "SCRIPTS\n  SCRIPT outro\n    Say \"Tschüss\"\n  END_OF_SCRIPT\nEND_OF_SCRIPTS\n")
	cfg := config.Defaults()
	cfg.General.Languages = []string{"EN", "DE"}
	ws, err := storage.OpenWorkspace(root, cfg)
	require.NoError(t, err)

	ctx := context.Background()
	ix, err := storage.OpenIndex(filepath.Join(t.TempDir(), "index.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	_, err = ix.Rebuild(ctx, ws)
	require.NoError(t, err)

	ld, err := ws.LoadScript(ctx, "outro")
	require.NoError(t, err)
	s := NewSession("outro", ld.Tree, nil)
	repl := &script.Command{Name: "Say", Params: map[string]script.Value{
		"text": script.TextValue(script.Text{"EN": "See you", "DE": "Bis bald"}),
	}}
	require.NoError(t, s.Replace(mustPath(t, "[0].children[0]"), repl))

	res, err := s.Save(ctx, ws, ix)
	require.NoError(t, err)
	assert.False(t, s.Dirty())
	require.Len(t, res.Files, 2)

	en, err := os.ReadFile(filepath.Join(ws.ScriptsDir("EN"), "outro.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(en), `Say "See you"`)
	de, err := os.ReadFile(filepath.Join(ws.ScriptsDir("DE"), "outro.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(de), `Say "Bis bald"`)

	hits, err := ix.Search(ctx, storage.SearchQuery{Text: "bald", Language: "DE"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSaveRefusesUnserializableTree(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, storage.CampaignDirName, "campaignScriptsEN", "outro.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("SCRIPT outro\n  Say \"Bye\"\nEND_OF_SCRIPT\n"), 0o644))
	cfg := config.Defaults()
	cfg.General.Languages = []string{"EN"}
	ws, err := storage.OpenWorkspace(root, cfg)
	require.NoError(t, err)

	ld, err := ws.LoadScript(context.Background(), "outro")
	require.NoError(t, err)
	s := NewSession("outro", ld.Tree, nil)
	require.NoError(t, s.Replace(mustPath(t, "[0].children[0]"), say("two\nlines")))

	_, err = s.Save(context.Background(), ws, nil)
	assert.True(t, errors.Is(err, storage.ErrRoundTrip), "got %v", err)
	assert.True(t, s.Dirty())
}
