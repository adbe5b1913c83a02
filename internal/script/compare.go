/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"fmt"
	"strings"
)

// Mismatch describes the first structural difference between two trees.
type Mismatch struct {
	Path   Path
	Reason string
}

func (m *Mismatch) String() string {
	if m == nil {
		return ""
	}
	if len(m.Path) == 0 {
		return m.Reason
	}
	return m.Path.String() + ": " + m.Reason
}

// Compare checks that a and b have the same shape: node kinds, command
// names, condition types, option variants, presence of else branches and
// finish sections, and the same number of children in every list. Text,
// identifiers and numbers are not compared. It returns nil when the trees
// match. Lists are walked by position; a length difference is reported at
// the first index present in only one of them.
func Compare(a, b Tree) *Mismatch {
	return compareList(nil, "", a, b)
}

func compareList(parent Path, field string, a, b []Node) *Mismatch {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if m := compareNode(parent.Child(field, i), a[i], b[i]); m != nil {
			return m
		}
	}
	if len(a) != len(b) {
		return &Mismatch{
			Path:   parent.Child(field, n),
			Reason: fmt.Sprintf("%d vs %d elements", len(a), len(b)),
		}
	}
	return nil
}

func compareNode(p Path, a, b Node) *Mismatch {
	if a.Kind() != b.Kind() {
		return &Mismatch{Path: p, Reason: fmt.Sprintf("kind %s vs %s", a.Kind(), b.Kind())}
	}
	switch x := a.(type) {
	case *Command:
		y := b.(*Command)
		if !strings.EqualFold(x.Name, y.Name) {
			return &Mismatch{Path: p, Reason: fmt.Sprintf("command %s vs %s", x.Name, y.Name)}
		}
	case *Conditional:
		y := b.(*Conditional)
		if x.IfType != y.IfType {
			return &Mismatch{Path: p, Reason: fmt.Sprintf("condition %s vs %s", x.IfType, y.IfType)}
		}
		if x.ElsePresent() != y.ElsePresent() {
			return &Mismatch{Path: p, Reason: "else branch present in only one tree"}
		}
	case *Mission:
		y := b.(*Mission)
		if x.HasFinish != y.HasFinish {
			return &Mismatch{Path: p, Reason: "finish section present in only one tree"}
		}
	case *Option:
		y := b.(*Option)
		if x.Variant != y.Variant {
			return &Mismatch{Path: p, Reason: fmt.Sprintf("option %s vs %s", x.Variant, y.Variant)}
		}
	}
	as, bs := Sections(a), Sections(b)
	for i := range as {
		if m := compareList(p, as[i].Field, *as[i].Nodes, *bs[i].Nodes); m != nil {
			return m
		}
	}
	return nil
}
