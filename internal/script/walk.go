/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"sort"
	"strconv"
	"strings"
)

// Step is one hop of a Path: the child list field of the parent (empty for
// the top level) and the index into it.
type Step struct {
	Field string
	Index int
}

// Path locates a node inside a tree, e.g. [0].then[1].options[2].
type Path []Step

func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if i > 0 || s.Field != "" {
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(s.Field)
		}
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(s.Index))
		b.WriteByte(']')
	}
	return b.String()
}

// Child returns a new path extended by one step.
func (p Path) Child(field string, index int) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Step{Field: field, Index: index})
}

// Section is a named child list of a container node. Nodes points into the
// node so edits through it change the tree.
type Section struct {
	Field string
	Nodes *[]Node
}

// Sections returns the child lists of n in document order. Atomic nodes
// have none.
func Sections(n Node) []Section {
	switch n := n.(type) {
	case *Script:
		return []Section{{"children", &n.Children}}
	case *Mission:
		return []Section{{"children", &n.Children}, {"finish", &n.Finish}}
	case *Conditional:
		return []Section{{"then", &n.Then}, {"else", &n.Else}}
	case *Menu:
		return []Section{{"options", &n.Options}}
	case *Option:
		return []Section{{"children", &n.Children}}
	case *Loop:
		return []Section{{"children", &n.Children}}
	case *Parallel:
		return []Section{{"children", &n.Children}}
	case *SubScript:
		return []Section{{"children", &n.Children}}
	case *BuildPhase:
		return []Section{{"init", &n.Init}, {"start", &n.Start}}
	case *FlightPhase:
		return []Section{{"init", &n.Init}, {"start", &n.Start}, {"evaluate", &n.Evaluate}}
	}
	return nil
}

// Walk visits every node depth-first in document order. Returning false
// from fn skips the node's descendants.
func Walk(nodes []Node, fn func(n Node, path Path) bool) {
	walk(nodes, nil, "", fn)
}

func walk(nodes []Node, parent Path, field string, fn func(Node, Path) bool) {
	for i, n := range nodes {
		p := parent.Child(field, i)
		if !fn(n, p) {
			continue
		}
		for _, s := range Sections(n) {
			walk(*s.Nodes, p, s.Field, fn)
		}
	}
}

// NodeAt resolves path in tree.
func NodeAt(tree Tree, path Path) (Node, bool) {
	if len(path) == 0 {
		return nil, false
	}
	list := []Node(tree)
	var cur Node
	for i, st := range path {
		if i > 0 {
			list = nil
			for _, s := range Sections(cur) {
				if s.Field == st.Field {
					list = *s.Nodes
				}
			}
		}
		if st.Index < 0 || st.Index >= len(list) {
			return nil, false
		}
		cur = list[st.Index]
	}
	return cur, true
}

// FindLabel returns the path of the LABEL command named name.
func FindLabel(tree Tree, name string) (Path, bool) {
	var found Path
	Walk(tree, func(n Node, p Path) bool {
		if found != nil {
			return false
		}
		if c, ok := n.(*Command); ok && c.Name == "LABEL" {
			if v, ok := c.Param("name"); ok && v.Str == name {
				found = p
				return false
			}
		}
		return true
	})
	return found, found != nil
}

// Reference kinds reported by References.
const (
	RefVariable  = "variable"
	RefSemaphore = "semaphore"
	RefCharacter = "character"
	RefLabel     = "label"
	RefNode      = "node"
	RefRoute     = "route"
	RefScript    = "script"
	RefMission   = "mission"
)

// Reference is a named entity a node mentions.
type Reference struct {
	Kind  string
	Value string
	Path  Path
	Line  int
}

var refParams = map[string]string{
	"variable":  RefVariable,
	"semaphore": RefSemaphore,
	"character": RefCharacter,
	"name":      RefLabel,
	"label":     RefLabel,
	"node":      RefNode,
	"node1":     RefNode,
	"node2":     RefNode,
	"route":     RefRoute,
	"script":    RefScript,
	"mission":   RefMission,
}

// References lists every entity reference in tree in document order.
func References(tree Tree) []Reference {
	var out []Reference
	add := func(kind, value string, p Path, line int) {
		if value != "" {
			out = append(out, Reference{Kind: kind, Value: value, Path: p, Line: line})
		}
	}
	Walk(tree, func(n Node, p Path) bool {
		switch n := n.(type) {
		case *Command:
			keys := make([]string, 0, len(n.Params))
			for k := range n.Params {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if kind, ok := refParams[k]; ok && n.Params[k].Kind == KindString {
					add(kind, n.Params[k].Str, p, n.Line)
				}
			}
		case *Conditional:
			switch n.IfType {
			case IfSemaphore, IfNotSemaphore:
				add(RefSemaphore, n.Variable, p, n.Line)
			case IfIs, IfMin, IfMax:
				add(RefVariable, n.Variable, p, n.Line)
			}
		case *Option:
			add(RefSemaphore, n.Variable, p, n.Line)
		case *SubScript:
			add(RefScript, n.Name, p, n.Line)
		}
		return true
	})
	return out
}

// Stats summarizes a tree.
type Stats struct {
	Commands   int
	Containers int
	Unknown    int
	Dialogues  int
	Variables  int
	Semaphores int
	Characters int
	Labels     int
}

// Collect computes Stats. Variables, semaphores, characters and labels are
// counted once per distinct name.
func Collect(tree Tree) Stats {
	var st Stats
	Walk(tree, func(n Node, _ Path) bool {
		switch n := n.(type) {
		case *Command:
			st.Commands++
			if spec, ok := LookupCommand(n.Name); ok && spec.HasText() {
				st.Dialogues++
			}
		case *Option:
			st.Containers++
			st.Dialogues++
		case *Unknown, *Overflow:
			st.Unknown++
		default:
			st.Containers++
		}
		return true
	})
	seen := map[string]map[string]struct{}{}
	for _, r := range References(tree) {
		if seen[r.Kind] == nil {
			seen[r.Kind] = map[string]struct{}{}
		}
		if r.Kind == RefLabel {
			if c, ok := mustNode(tree, r.Path).(*Command); !ok || c.Name != "LABEL" {
				continue
			}
		}
		seen[r.Kind][r.Value] = struct{}{}
	}
	st.Variables = len(seen[RefVariable])
	st.Semaphores = len(seen[RefSemaphore])
	st.Characters = len(seen[RefCharacter])
	st.Labels = len(seen[RefLabel])
	return st
}

func mustNode(tree Tree, p Path) Node {
	n, _ := NodeAt(tree, p)
	return n
}

// Clone returns a deep copy of tree.
func Clone(tree Tree) Tree {
	if tree == nil {
		return nil
	}
	out := make(Tree, len(tree))
	for i, n := range tree {
		out[i] = CloneNode(n)
	}
	return out
}

func cloneList(ns []Node) []Node {
	if ns == nil {
		return nil
	}
	out := make([]Node, len(ns))
	for i, n := range ns {
		out[i] = CloneNode(n)
	}
	return out
}

// CloneNode returns a deep copy of n.
func CloneNode(n Node) Node {
	switch n := n.(type) {
	case *Script:
		c := *n
		c.Children = cloneList(n.Children)
		return &c
	case *Mission:
		c := *n
		c.Children = cloneList(n.Children)
		c.Finish = cloneList(n.Finish)
		return &c
	case *Conditional:
		c := *n
		c.Positions = append([]string(nil), n.Positions...)
		c.Then = cloneList(n.Then)
		c.Else = cloneList(n.Else)
		return &c
	case *Menu:
		c := *n
		c.Options = cloneList(n.Options)
		return &c
	case *Option:
		c := *n
		c.Text = n.Text.Clone()
		c.Children = cloneList(n.Children)
		return &c
	case *Loop:
		c := *n
		c.Children = cloneList(n.Children)
		return &c
	case *Parallel:
		c := *n
		c.Children = cloneList(n.Children)
		return &c
	case *SubScript:
		c := *n
		c.Children = cloneList(n.Children)
		return &c
	case *BuildPhase:
		c := *n
		c.Init = cloneList(n.Init)
		c.Start = cloneList(n.Start)
		return &c
	case *FlightPhase:
		c := *n
		c.Init = cloneList(n.Init)
		c.Start = cloneList(n.Start)
		c.Evaluate = cloneList(n.Evaluate)
		return &c
	case *Command:
		c := *n
		if n.Params != nil {
			c.Params = make(map[string]Value, len(n.Params))
			for k, v := range n.Params {
				v.Text = v.Text.Clone()
				c.Params[k] = v
			}
		}
		return &c
	case *Unknown:
		c := *n
		return &c
	case *Overflow:
		c := *n
		c.Raw = append([]string(nil), n.Raw...)
		return &c
	}
	return n
}
