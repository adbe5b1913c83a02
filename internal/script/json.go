/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// jsonNode is the record form of a node. Only the fields of the node's kind
// are set.
type jsonNode struct {
	Kind       NodeKind         `json:"kind"`
	Line       int              `json:"line,omitempty"`
	ID         string           `json:"id,omitempty"`
	Name       string           `json:"name,omitempty"`
	IfType     IfType           `json:"ifType,omitempty"`
	Variable   string           `json:"variable,omitempty"`
	Value      *int64           `json:"value,omitempty"`
	Positions  []string         `json:"positions,omitempty"`
	Condition  string           `json:"condition,omitempty"`
	OptType    OptionKind       `json:"optType,omitempty"`
	Text       Text             `json:"text,omitempty"`
	Count      *int64           `json:"count,omitempty"`
	Header     bool             `json:"header,omitempty"`
	HasFinish  bool             `json:"hasFinish,omitempty"`
	HasElse    bool             `json:"hasElse,omitempty"`
	Parameters map[string]Value `json:"parameters,omitempty"`
	Raw        string           `json:"raw,omitempty"`
	RawLines   []string         `json:"rawLines,omitempty"`
	Children   []jsonNode       `json:"children,omitempty"`
	Finish     []jsonNode       `json:"finish,omitempty"`
	Then       []jsonNode       `json:"then,omitempty"`
	Else       []jsonNode       `json:"else,omitempty"`
	Options    []jsonNode       `json:"options,omitempty"`
	Init       []jsonNode       `json:"init,omitempty"`
	Start      []jsonNode       `json:"start,omitempty"`
	Evaluate   []jsonNode       `json:"evaluate,omitempty"`
}

type jsonValue struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON writes {"kind": ..., "value": ...}.
func (v Value) MarshalJSON() ([]byte, error) {
	var raw any
	switch v.Kind {
	case KindInt:
		raw = v.Int
	case KindText:
		raw = v.Text
	default:
		raw = v.Str
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonValue{Kind: v.Kind.String(), Value: b})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	switch jv.Kind {
	case "string", "raw":
		var s string
		if err := json.Unmarshal(jv.Value, &s); err != nil {
			return err
		}
		*v = Value{Kind: KindString, Str: s}
		if jv.Kind == "raw" {
			v.Kind = KindRaw
		}
	case "int":
		var n int64
		if err := json.Unmarshal(jv.Value, &n); err != nil {
			return err
		}
		*v = IntValue(n)
	case "text":
		var t Text
		if err := json.Unmarshal(jv.Value, &t); err != nil {
			return err
		}
		*v = TextValue(t)
	default:
		return fmt.Errorf("unknown value kind %q", jv.Kind)
	}
	return nil
}

// MarshalTree encodes tree as indented JSON.
func MarshalTree(tree Tree) ([]byte, error) {
	return json.MarshalIndent(toJSONList(tree), "", "  ")
}

// UnmarshalTree decodes JSON produced by MarshalTree.
func UnmarshalTree(data []byte) (Tree, error) {
	var list []jsonNode
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	nodes, err := fromJSONList(list)
	if err != nil {
		return nil, err
	}
	return Tree(nodes), nil
}

func toJSONList(ns []Node) []jsonNode {
	out := make([]jsonNode, 0, len(ns))
	for _, n := range ns {
		out = append(out, toJSON(n))
	}
	return out
}

func i64(n int64) *int64 { return &n }

func toJSON(n Node) jsonNode {
	j := jsonNode{Kind: n.Kind(), Line: n.SourceLine()}
	switch n := n.(type) {
	case *Script:
		j.Name, j.Children = n.Name, toJSONList(n.Children)
	case *Mission:
		j.Name, j.Children = n.Name, toJSONList(n.Children)
		j.HasFinish, j.Finish = n.HasFinish, toJSONList(n.Finish)
	case *Conditional:
		j.IfType, j.Variable, j.Value = n.IfType, n.Variable, i64(n.Value)
		j.Positions, j.Condition = n.Positions, n.Condition
		j.Then, j.HasElse, j.Else = toJSONList(n.Then), n.HasElse, toJSONList(n.Else)
	case *Menu:
		j.Options = toJSONList(n.Options)
	case *Option:
		j.OptType, j.Variable, j.Text = n.Variant, n.Variable, n.Text
		j.Children = toJSONList(n.Children)
	case *Loop:
		j.Count, j.Children = i64(n.Count), toJSONList(n.Children)
	case *Parallel:
		j.Children = toJSONList(n.Children)
	case *SubScript:
		j.Name, j.Children = n.Name, toJSONList(n.Children)
	case *BuildPhase:
		j.Header, j.Init, j.Start = n.Header, toJSONList(n.Init), toJSONList(n.Start)
	case *FlightPhase:
		j.Header, j.Init, j.Start = n.Header, toJSONList(n.Init), toJSONList(n.Start)
		j.Evaluate = toJSONList(n.Evaluate)
	case *Command:
		j.Name, j.ID, j.Parameters = n.Name, n.ID, n.Params
	case *Unknown:
		j.Raw = n.Raw
	case *Overflow:
		j.RawLines = n.Raw
	}
	return j
}

func fromJSONList(list []jsonNode) ([]Node, error) {
	out := make([]Node, 0, len(list))
	for _, j := range list {
		n, err := fromJSON(j)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func fromJSON(j jsonNode) (Node, error) {
	lists := func(src ...[]jsonNode) ([][]Node, error) {
		out := make([][]Node, len(src))
		for i, s := range src {
			ns, err := fromJSONList(s)
			if err != nil {
				return nil, err
			}
			out[i] = ns
		}
		return out, nil
	}
	switch j.Kind {
	case KindScript, KindMission, KindMenu, KindOption, KindLoop, KindParallel, KindSubScript:
		l, err := lists(j.Children, j.Finish, j.Options)
		if err != nil {
			return nil, err
		}
		switch j.Kind {
		case KindScript:
			return &Script{Name: j.Name, Children: l[0], Line: j.Line}, nil
		case KindMission:
			return &Mission{Name: j.Name, Children: l[0], HasFinish: j.HasFinish, Finish: l[1], Line: j.Line}, nil
		case KindMenu:
			return &Menu{Options: l[2], Line: j.Line}, nil
		case KindOption:
			return &Option{Variant: j.OptType, Variable: j.Variable, Text: j.Text, Children: l[0], Line: j.Line}, nil
		case KindLoop:
			return &Loop{Count: deref(j.Count), Children: l[0], Line: j.Line}, nil
		case KindParallel:
			return &Parallel{Children: l[0], Line: j.Line}, nil
		default:
			return &SubScript{Name: j.Name, Children: l[0], Line: j.Line}, nil
		}
	case KindConditional:
		l, err := lists(j.Then, j.Else)
		if err != nil {
			return nil, err
		}
		return &Conditional{IfType: j.IfType, Variable: j.Variable, Value: deref(j.Value), Positions: j.Positions,
			Condition: j.Condition, Then: l[0], HasElse: j.HasElse, Else: l[1], Line: j.Line}, nil
	case KindBuild, KindFlight:
		l, err := lists(j.Init, j.Start, j.Evaluate)
		if err != nil {
			return nil, err
		}
		if j.Kind == KindBuild {
			return &BuildPhase{Header: j.Header, Init: l[0], Start: l[1], Line: j.Line}, nil
		}
		return &FlightPhase{Header: j.Header, Init: l[0], Start: l[1], Evaluate: l[2], Line: j.Line}, nil
	case KindCommand:
		if j.Name == "" {
			return nil, fmt.Errorf("command without name at line %d", j.Line)
		}
		params := j.Parameters
		if params == nil {
			params = map[string]Value{}
		}
		return &Command{Name: j.Name, ID: j.ID, Params: params, Line: j.Line}, nil
	case KindUnknown:
		return &Unknown{Raw: j.Raw, Line: j.Line}, nil
	case KindOverflow:
		return &Overflow{Raw: j.RawLines, Line: j.Line}, nil
	}
	return nil, fmt.Errorf("unknown node kind %q", j.Kind)
}

// AssignIDs gives every command without an ID a fresh UUID. Editors use the
// IDs to keep selections stable across re-parses of the same tree.
func AssignIDs(tree Tree) {
	Walk(tree, func(n Node, _ Path) bool {
		if c, ok := n.(*Command); ok && c.ID == "" {
			c.ID = uuid.NewString()
		}
		return true
	})
}
