/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"testing"
	"time"
)

func snap(key, blob string, ts time.Time) Snapshot {
	return Snapshot{Key: key, Blob: []byte(blob), TS: ts}
}

func TestUndoRedoBasic(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxPerKey: 10, MinInterval: 10 * time.Millisecond})
	t0 := time.Now()
	m.Push(snap("intro", "a", t0))
	m.Push(snap("intro", "b", t0.Add(20*time.Millisecond)))
	if _, keys, total := m.Stats(); keys != 1 || total != 2 {
		t.Fatalf("expected 1 key and 2 snapshots, got keys=%d total=%d", keys, total)
	}
	s, ok := m.Undo(snap("intro", "c", t0))
	if !ok || string(s.Blob) != "b" {
		t.Fatalf("undo expected 'b', got ok=%v blob=%q", ok, string(s.Blob))
	}
	if !m.CanRedo("intro") || !m.CanUndo("intro") {
		t.Fatalf("expected both stacks to be non-empty")
	}
	s, ok = m.Redo(snap("intro", "b", t0))
	if !ok || string(s.Blob) != "c" {
		t.Fatalf("redo expected 'c', got ok=%v blob=%q", ok, string(s.Blob))
	}
	if m.CanRedo("intro") {
		t.Fatalf("redo stack should be empty")
	}
	if _, ok := m.Undo(snap("other", "x", t0)); ok {
		t.Fatalf("keys are independent")
	}
}

func TestPushClearsRedo(t *testing.T) {
	m := NewManager(Config{MinInterval: -1})
	t0 := time.Now()
	m.Push(snap("k", "1", t0))
	m.Undo(snap("k", "2", t0))
	m.Push(snap("k", "1", t0))
	if m.CanRedo("k") {
		t.Fatalf("a new change must drop redo history")
	}
}

func TestCoalesceKeepsEarlierState(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxPerKey: 10, MinInterval: 50 * time.Millisecond})
	t0 := time.Now()
	m.Push(snap("k", "1", t0))
	m.Push(snap("k", "2", t0.Add(10*time.Millisecond)))
	m.Push(snap("k", "3", t0.Add(55*time.Millisecond)))
	if _, _, total := m.Stats(); total != 1 {
		t.Fatalf("expected coalesced to 1 snapshot, got %d", total)
	}
	s, ok := m.Undo(snap("k", "4", t0))
	if !ok || string(s.Blob) != "1" {
		t.Fatalf("expected earliest state '1', got ok=%v blob=%q", ok, string(s.Blob))
	}
}

func TestNegativeIntervalDisablesCoalescing(t *testing.T) {
	m := NewManager(Config{MinInterval: -1})
	t0 := time.Now()
	m.Push(snap("k", "1", t0))
	m.Push(snap("k", "2", t0))
	if _, _, total := m.Stats(); total != 2 {
		t.Fatalf("expected 2 snapshots, got %d", total)
	}
}

func TestCaps(t *testing.T) {
	m := NewManager(Config{MaxBytes: 20, MaxPerKey: 2, MinInterval: time.Millisecond})
	t0 := time.Now()
	for i := 0; i < 10; i++ {
		m.Push(snap("k", "xxxxx", t0.Add(time.Duration(i)*time.Second)))
	}
	tb, _, total := m.Stats()
	if total > 2 || tb > 20 {
		t.Fatalf("expected caps to hold, got %d snapshots, %d bytes", total, tb)
	}
}

func TestClearAndStats(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024, MaxPerKey: 10, MinInterval: time.Millisecond})
	t0 := time.Now()
	m.Push(snap("k", "abcdef", t0))
	m.Push(snap("k", "abcdef", t0.Add(time.Second)))
	m.Undo(snap("k", "xyz", t0))
	tb, keys, total := m.Stats()
	if tb != 9 || keys != 1 || total != 1 {
		t.Fatalf("unexpected stats before clear: tb=%d keys=%d total=%d", tb, keys, total)
	}
	m.Clear("k")
	tb, keys, total = m.Stats()
	if tb != 0 || keys != 0 || total != 0 {
		t.Fatalf("expected cleared stats to be zero, got tb=%d keys=%d total=%d", tb, keys, total)
	}
}

func TestGlobalPruneAcrossKeys(t *testing.T) {
	m := NewManager(Config{MaxBytes: 8, MinInterval: time.Millisecond})
	t0 := time.Now()
	m.Push(snap("a", "xxxx", t0))
	m.Push(snap("b", "yyyy", t0.Add(time.Second)))
	m.Push(snap("b", "zzzz", t0.Add(2*time.Second)))

	if m.CanUndo("a") {
		t.Fatalf("expected key a to have been pruned")
	}
	if _, ok := m.Undo(snap("b", "", t0)); !ok {
		t.Fatalf("expected key b to have snapshots")
	}
}
