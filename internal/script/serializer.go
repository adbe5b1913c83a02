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

const indentUnit = "  "

// Serialize writes tree back as DSL text in the given language. Lines are
// joined with "\n"; there is no trailing newline.
func Serialize(tree Tree, lang string) string {
	return SerializeWithOptions(tree, Options{Language: lang})
}

// SerializeWithOptions is Serialize with explicit options.
func SerializeWithOptions(tree Tree, opts Options) string {
	return strings.Join(SerializeLines(tree, opts), "\n")
}

// SerializeLines returns the DSL lines for tree.
//
// Children of SCRIPT, MISSION, IF, MENU, OPT, LOOP, PARALLEL and sub-script
// blocks are indented by two spaces; build and flight phase bodies are not.
// START_BUILDING, START_FLIGHT and EVALUATE_FLIGHT are always written, ELSE
// only when the conditional has an else branch.
func SerializeLines(tree Tree, opts Options) []string {
	w := &writer{opts: opts.normalized()}
	w.nodes(tree, 0)
	return w.out
}

type writer struct {
	opts Options
	out  []string
}

func (w *writer) line(indent int, s string) {
	w.out = append(w.out, strings.Repeat(indentUnit, indent)+s)
}

func (w *writer) nodes(ns []Node, indent int) {
	for _, n := range ns {
		w.node(n, indent)
	}
}

func (w *writer) node(n Node, indent int) {
	switch n := n.(type) {
	case *Script:
		w.line(indent, "SCRIPT "+n.Name)
		w.nodes(n.Children, indent+1)
		w.line(indent, FamilyScript.CloseMarker())
	case *Mission:
		w.line(indent, "MISSION "+n.Name)
		w.nodes(n.Children, indent+1)
		if n.HasFinish {
			w.line(indent, markerFinish)
			w.nodes(n.Finish, indent+1)
		}
		w.line(indent, FamilyMission.CloseMarker())
	case *Conditional:
		w.line(indent, ConditionHead(n))
		w.nodes(n.Then, indent+1)
		if n.ElsePresent() {
			w.line(indent, markerElse)
			w.nodes(n.Else, indent+1)
		}
		w.line(indent, FamilyIf.CloseMarker())
	case *Menu:
		w.line(indent, "MENU")
		w.nodes(n.Options, indent+1)
		w.line(indent, FamilyMenu.CloseMarker())
	case *Option:
		w.line(indent, w.optionHead(n))
		w.nodes(n.Children, indent+1)
		w.line(indent, FamilyOption.CloseMarker())
	case *Loop:
		w.line(indent, "LOOP "+strconv.FormatInt(n.Count, 10))
		w.nodes(n.Children, indent+1)
		w.line(indent, FamilyLoop.CloseMarker())
	case *Parallel:
		w.line(indent, "PARALLEL")
		w.nodes(n.Children, indent+1)
		w.line(indent, FamilyParallel.CloseMarker())
	case *SubScript:
		w.line(indent, "BEGIN_SUB_SCRIPT "+n.Name)
		w.nodes(n.Children, indent+1)
		w.line(indent, FamilySubScript.CloseMarker())
	case *BuildPhase:
		if n.Header {
			w.line(indent, headerBuild)
		}
		w.line(indent, "INIT_BUILD")
		w.nodes(n.Init, indent)
		w.line(indent, markerStartBuilding)
		w.nodes(n.Start, indent)
		w.line(indent, FamilyBuild.CloseMarker())
	case *FlightPhase:
		if n.Header {
			w.line(indent, headerFlight)
		}
		w.line(indent, "INIT_FLIGHT")
		w.nodes(n.Init, indent)
		w.line(indent, markerStartFlight)
		w.nodes(n.Start, indent)
		w.line(indent, markerEvaluate)
		w.nodes(n.Evaluate, indent)
		w.line(indent, FamilyFlight.CloseMarker())
	case *Command:
		w.line(indent, w.command(n))
	case *Unknown:
		w.line(indent, n.Raw)
	case *Overflow:
		for _, r := range n.Raw {
			w.line(indent, r)
		}
	}
}

// ConditionHead returns the IF line for n. Unknown types fall back to
// "IF <condition>" or "IF UNKNOWN".
func ConditionHead(n *Conditional) string {
	v := strconv.FormatInt(n.Value, 10)
	switch n.IfType {
	case IfSemaphore:
		return "IF " + n.Variable
	case IfNotSemaphore:
		return "IFNOT " + n.Variable
	case IfSystem:
		return "IF_" + strings.ToUpper(n.Variable)
	case IfHasCredits:
		return "IF_HAS_CREDITS " + v
	case IfIs:
		return "IF_IS " + n.Variable + " " + v
	case IfMin:
		return "IF_MIN " + n.Variable + " " + v
	case IfMax:
		return "IF_MAX " + n.Variable + " " + v
	case IfProbability:
		return "IF_PROB " + v
	case IfOrder:
		return "IF_ORDER " + strings.Join(n.Positions, " ")
	case IfMissionResIs:
		return "IfMissionResultIs " + v
	case IfMissionResMin:
		return "IfMissionResultMin " + v
	}
	if n.Condition != "" {
		return "IF " + n.Condition
	}
	return "IF UNKNOWN"
}

func (w *writer) optionHead(n *Option) string {
	t := `"` + w.text(n.Text) + `"`
	switch n.Variant {
	case OptIf:
		return "OPT_IF " + n.Variable + " " + t
	case OptIfNot:
		return "OPT_IFNOT " + n.Variable + " " + t
	}
	return "OPT " + t
}

func (w *writer) text(t Text) string {
	return NormalizeText(t.For(w.opts.Language, w.opts.ReferenceLanguage), w.opts.Language)
}

func (w *writer) command(c *Command) string {
	spec, ok := LookupCommand(c.Name)
	if !ok {
		// Not a catalog command: write the name and parameters in key order.
		keys := make([]string, 0, len(c.Params))
		for k := range c.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := []string{c.Name}
		for _, k := range keys {
			parts = append(parts, w.plain(c.Params[k]))
		}
		return strings.Join(parts, " ")
	}

	parts := []string{spec.Name}
	for _, prm := range spec.Params {
		v, ok := c.Params[prm.Name]
		if !ok && prm.Name == "plan" {
			v, ok = c.Params["shipPlan"]
		}
		if !ok {
			continue
		}
		parts = append(parts, w.param(prm, v))
	}
	return strings.Join(parts, " ")
}

// param applies the quoting table to one parameter.
func (w *writer) param(prm Param, v Value) string {
	s := w.plain(v)
	switch {
	case prm.Kind == ParamText || v.Kind == KindText:
		return `"` + s + `"`
	case prm.Kind == ParamRaw || v.Kind == KindRaw:
		return s
	case prm.Quote == QuoteAlways:
		return `"` + s + `"`
	case prm.Quote == QuoteIfSpace && strings.ContainsAny(s, " \t"):
		return `"` + s + `"`
	}
	return s
}

func (w *writer) plain(v Value) string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindText:
		return w.text(v.Text)
	}
	return v.Str
}
