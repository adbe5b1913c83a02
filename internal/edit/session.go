/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package edit applies structural edits to a parsed script with undo and
// redo. History is stored as JSON snapshots of the whole tree in an
// undo.Manager keyed by script name, so several sessions can share one
// manager and its memory caps.
package edit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	applog "gocampaign/internal/log"
	"gocampaign/internal/script"
	"gocampaign/internal/storage"
	"gocampaign/internal/undo"
)

var (
	// ErrBadPath is returned when a path does not resolve in the tree.
	ErrBadPath = errors.New("edit: path does not resolve")
	// ErrNilNode is returned when an edit would place a nil node.
	ErrNilNode = errors.New("edit: nil node")
)

// Session holds one script tree being edited.
type Session struct {
	key   string
	tree  script.Tree
	hist  *undo.Manager
	now   func() time.Time
	dirty bool
}

// NewSession starts a session for the script named key. The tree is cloned.
// A nil hist gets a private manager with default caps.
func NewSession(key string, tree script.Tree, hist *undo.Manager) *Session {
	if hist == nil {
		hist = undo.NewManager(undo.Config{})
	}
	return &Session{key: key, tree: script.Clone(tree), hist: hist, now: time.Now}
}

// Key returns the history key of the session.
func (s *Session) Key() string { return s.key }

// Tree returns a copy of the current tree.
func (s *Session) Tree() script.Tree { return script.Clone(s.tree) }

// Dirty reports whether the tree changed since the session started or was
// last saved.
func (s *Session) Dirty() bool { return s.dirty }

func (s *Session) CanUndo() bool { return s.hist.CanUndo(s.key) }
func (s *Session) CanRedo() bool { return s.hist.CanRedo(s.key) }

// NodeAt returns a copy of the node at path.
func (s *Session) NodeAt(path script.Path) (script.Node, bool) {
	n, ok := script.NodeAt(s.tree, path)
	if !ok {
		return nil, false
	}
	return script.CloneNode(n), true
}

// Replace puts n at path.
func (s *Session) Replace(path script.Path, n script.Node) error {
	if n == nil {
		return ErrNilNode
	}
	list, i, err := s.slot(path)
	if err != nil {
		return err
	}
	if i >= len(*list) {
		return fmt.Errorf("%w: %s", ErrBadPath, path)
	}
	if err := s.record(); err != nil {
		return err
	}
	(*list)[i] = script.CloneNode(n)
	return nil
}

// Insert places n at path, shifting later siblings. The last index may equal
// the list length to append.
func (s *Session) Insert(path script.Path, n script.Node) error {
	if n == nil {
		return ErrNilNode
	}
	list, i, err := s.slot(path)
	if err != nil {
		return err
	}
	if err := s.record(); err != nil {
		return err
	}
	l := *list
	l = append(l, nil)
	copy(l[i+1:], l[i:])
	l[i] = script.CloneNode(n)
	*list = l
	return nil
}

// Delete removes the node at path and returns it.
func (s *Session) Delete(path script.Path) (script.Node, error) {
	list, i, err := s.slot(path)
	if err != nil {
		return nil, err
	}
	if i >= len(*list) {
		return nil, fmt.Errorf("%w: %s", ErrBadPath, path)
	}
	if err := s.record(); err != nil {
		return nil, err
	}
	l := *list
	removed := l[i]
	*list = append(l[:i:i], l[i+1:]...)
	return removed, nil
}

// Undo restores the state before the last edit. It reports false when there
// is nothing to undo.
func (s *Session) Undo() (bool, error) {
	return s.step(s.hist.Undo)
}

// Redo re-applies the last undone edit.
func (s *Session) Redo() (bool, error) {
	return s.step(s.hist.Redo)
}

func (s *Session) step(move func(undo.Snapshot) (undo.Snapshot, bool)) (bool, error) {
	cur, err := s.snapshot()
	if err != nil {
		return false, err
	}
	prev, ok := move(cur)
	if !ok {
		return false, nil
	}
	tree, err := script.UnmarshalTree(prev.Blob)
	if err != nil {
		return false, fmt.Errorf("restore %s: %w", s.key, err)
	}
	s.tree = tree
	s.dirty = true
	return true, nil
}

// Save writes the tree through ws and, when ix is not nil, records snapshots
// and refreshes the index entry.
func (s *Session) Save(ctx context.Context, ws *storage.Workspace, ix *storage.Index) (*storage.SaveResult, error) {
	l, done := applog.WithOperation(applog.WithComponent("edit"), "save")
	defer done()
	res, err := ws.SaveScript(ctx, s.tree)
	if err != nil {
		return nil, err
	}
	s.dirty = false
	if ix != nil {
		if err := ix.RecordSave(ctx, ws, res, ws.Config().Index.SnapshotsKeep); err != nil {
			// The files are written; a stale index is repaired by the next rebuild.
			l.WarnContext(ctx, "index update failed", "script", s.key, "err", err)
		}
	}
	return res, nil
}

func (s *Session) snapshot() (undo.Snapshot, error) {
	b, err := script.MarshalTree(s.tree)
	if err != nil {
		return undo.Snapshot{}, fmt.Errorf("snapshot %s: %w", s.key, err)
	}
	return undo.Snapshot{Key: s.key, Blob: b, TS: s.now()}, nil
}

func (s *Session) record() error {
	snap, err := s.snapshot()
	if err != nil {
		return err
	}
	s.hist.Push(snap)
	s.dirty = true
	return nil
}

// slot resolves the list that holds the last step of path and the index in
// it. The index is at most len(list).
func (s *Session) slot(path script.Path) (*[]script.Node, int, error) {
	if len(path) == 0 {
		return nil, 0, fmt.Errorf("%w: empty path", ErrBadPath)
	}
	last := path[len(path)-1]
	var list *[]script.Node
	if len(path) == 1 {
		if last.Field != "" {
			return nil, 0, fmt.Errorf("%w: %s", ErrBadPath, path)
		}
		list = (*[]script.Node)(&s.tree)
	} else {
		parent, ok := script.NodeAt(s.tree, path[:len(path)-1])
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s", ErrBadPath, path)
		}
		for _, sec := range script.Sections(parent) {
			if sec.Field == last.Field {
				list = sec.Nodes
			}
		}
		if list == nil {
			return nil, 0, fmt.Errorf("%w: %s has no %q section", ErrBadPath, path[:len(path)-1], last.Field)
		}
	}
	if last.Index < 0 || last.Index > len(*list) {
		return nil, 0, fmt.Errorf("%w: %s", ErrBadPath, path)
	}
	return list, last.Index, nil
}

// ParsePath reads the form printed by script.Path.String, e.g.
// "[0].then[1].options[2]".
func ParsePath(s string) (script.Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty path", ErrBadPath)
	}
	var p script.Path
	for i, seg := range strings.Split(s, ".") {
		open := strings.IndexByte(seg, '[')
		if open < 0 || !strings.HasSuffix(seg, "]") {
			return nil, fmt.Errorf("%w: bad segment %q", ErrBadPath, seg)
		}
		field := seg[:open]
		if (i == 0) != (field == "") {
			return nil, fmt.Errorf("%w: bad segment %q", ErrBadPath, seg)
		}
		n, err := strconv.Atoi(seg[open+1 : len(seg)-1])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad index in %q", ErrBadPath, seg)
		}
		p = append(p, script.Step{Field: field, Index: n})
	}
	return p, nil
}
