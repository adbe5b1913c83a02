/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package multilang merges per-language parses of one script into a single
// tree whose text fields carry every language.
package multilang

import (
	"errors"
	"fmt"
	"sort"

	"gocampaign/internal/script"
)

// ErrNoReference is returned when the reference language has no tree.
var ErrNoReference = errors.New("reference language tree missing")

// StructureMismatchError reports that one language's tree does not have the
// shape of the reference tree.
type StructureMismatchError struct {
	Language string
	Path     script.Path
	Reason   string
}

func (e *StructureMismatchError) Error() string {
	loc := e.Path.String()
	if loc == "" {
		loc = "top level"
	}
	return fmt.Sprintf("language %s differs from reference at %s: %s", e.Language, loc, e.Reason)
}

// Languages returns the keys of trees in sorted order.
func Languages(trees map[string]script.Tree) []string {
	out := make([]string, 0, len(trees))
	for k := range trees {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Merge combines trees parsed from the same script in several languages.
// The result has the reference tree's structure; every multilingual field
// holds one entry per language in trees, and entries that are missing or
// empty in a language are filled with the reference text. Trees are checked
// in sorted language order and the first structural divergence is returned
// as a *StructureMismatchError. The inputs are not modified.
func Merge(trees map[string]script.Tree, ref string) (script.Tree, error) {
	base, ok := trees[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoReference, ref)
	}
	langs := Languages(trees)
	for _, lang := range langs {
		if lang == ref {
			continue
		}
		if m := script.Compare(base, trees[lang]); m != nil {
			return nil, &StructureMismatchError{Language: lang, Path: m.Path, Reason: m.Reason}
		}
	}

	merged := script.Clone(base)
	slots := textSlots(merged)
	for _, s := range slots {
		s.fill(ref, s.get(ref))
	}
	for _, lang := range langs {
		if lang == ref {
			continue
		}
		other := textSlots(trees[lang])
		for i, s := range slots {
			v := other[i].get(lang)
			if v == "" {
				v = s.get(ref)
			}
			s.fill(lang, v)
		}
	}
	return merged, nil
}

// MergeOrFallback is Merge that degrades to a copy of the reference tree
// when the languages disagree. The error is returned alongside so callers
// can report it.
func MergeOrFallback(trees map[string]script.Tree, ref string) (script.Tree, error) {
	merged, err := Merge(trees, ref)
	if err == nil {
		return merged, nil
	}
	if base, ok := trees[ref]; ok {
		return script.Clone(base), err
	}
	return nil, err
}

// slot is one multilingual field of a tree.
type slot struct {
	load  func() script.Text
	store func(script.Text)
}

// get returns the field's text in lang. A tree parsed in a single language
// keys its text by that language only, so a lone entry is accepted as is.
func (s slot) get(lang string) string {
	t := s.load()
	if v := t[lang]; v != "" {
		return v
	}
	if len(t) == 1 {
		for _, v := range t {
			return v
		}
	}
	return ""
}

func (s slot) fill(lang, v string) {
	t := s.load().Clone()
	if t == nil {
		t = script.Text{}
	}
	t[lang] = v
	s.store(t)
}

// textSlots lists the multilingual fields of tree in document order. Two
// trees of the same shape yield slots that line up by index. Only store
// modifies the tree.
func textSlots(tree script.Tree) []slot {
	var out []slot
	script.Walk(tree, func(n script.Node, _ script.Path) bool {
		switch n := n.(type) {
		case *script.Option:
			out = append(out, slot{
				load:  func() script.Text { return n.Text },
				store: func(t script.Text) { n.Text = t },
			})
		case *script.Command:
			spec, ok := script.LookupCommand(n.Name)
			if !ok {
				return true
			}
			for _, p := range spec.Params {
				if p.Kind != script.ParamText {
					continue
				}
				name := p.Name
				out = append(out, slot{
					load: func() script.Text { return n.Params[name].Text },
					store: func(t script.Text) {
						if n.Params == nil {
							n.Params = map[string]script.Value{}
						}
						n.Params[name] = script.TextValue(t)
					},
				})
			}
		}
		return true
	})
	return out
}
