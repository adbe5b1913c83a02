/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package roundtrip verifies that a tree survives serialize then parse with
// its structure intact. Saves are refused when it does not.
package roundtrip

import (
	"strings"

	"gocampaign/internal/script"
)

// Result is the outcome of a validation. Location is empty when IsMatch.
type Result struct {
	IsMatch  bool
	Location string
	Reason   string
	// Diagnostics holds parser errors raised while re-reading the text.
	Diagnostics []script.Error
}

// String renders the result for logs and CLI output.
func (r Result) String() string {
	if r.IsMatch && len(r.Diagnostics) == 0 {
		return "ok"
	}
	var b strings.Builder
	if !r.IsMatch {
		b.WriteString("mismatch at ")
		if r.Location == "" {
			b.WriteString("top level")
		} else {
			b.WriteString(r.Location)
		}
		if r.Reason != "" {
			b.WriteString(": ")
			b.WriteString(r.Reason)
		}
	}
	for _, d := range r.Diagnostics {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(d.Error())
	}
	return b.String()
}

// OK reports whether the tree is safe to persist.
func (r Result) OK() bool { return r.IsMatch && len(r.Diagnostics) == 0 }

// Validate compares the structure of original and roundTripped: node kinds,
// command names, condition types, else and finish presence and every child
// list, recursively. Text and parameter values are not compared.
func Validate(original, roundTripped script.Tree) Result {
	if m := script.Compare(original, roundTripped); m != nil {
		return Result{Location: m.Path.String(), Reason: m.Reason}
	}
	return Result{IsMatch: true}
}

// Check serializes tree in lang, parses the text back and validates the
// result against tree.
func Check(tree script.Tree, lang string, opts script.Options) Result {
	opts.Language = lang
	text := script.SerializeLines(tree, opts)
	back, errs := script.ParseWithOptions(text, opts)
	res := Validate(tree, back)
	res.Diagnostics = errs
	return res
}

// CheckLanguages runs Check for every language and returns the first
// failing result with its language, or ("", ok result).
func CheckLanguages(tree script.Tree, langs []string, opts script.Options) (string, Result) {
	for _, lang := range langs {
		if r := Check(tree, lang, opts); !r.OK() {
			return lang, r
		}
	}
	return "", Result{IsMatch: true}
}
