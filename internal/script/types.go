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
	"sort"
)

// ReferenceLanguage is the language used as structural template during merge
// and as the last named fallback when selecting text.
const ReferenceLanguage = "EN"

// Languages lists the campaign languages in their customary order.
var Languages = []string{"EN", "CS", "DE", "ES", "FR", "PL", "RU"}

// Text maps a language code to the text in that language.
type Text map[string]string

// For selects the text for lang. Priority: lang, then ref, then the first
// non-empty entry in sorted language order, then "".
func (t Text) For(lang, ref string) string {
	if v := t[lang]; v != "" {
		return v
	}
	if v := t[ref]; v != "" {
		return v
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if t[k] != "" {
			return t[k]
		}
	}
	return ""
}

// Clone returns a copy of the map.
func (t Text) Clone() Text {
	if t == nil {
		return nil
	}
	out := make(Text, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// ValueKind tells which field of a Value is meaningful.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindRaw
	KindText
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindRaw:
		return "raw"
	case KindText:
		return "text"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is a single command parameter.
type Value struct {
	Kind ValueKind
	Str  string // KindString and KindRaw
	Int  int64
	Text Text
}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func IntValue(n int64) Value     { return Value{Kind: KindInt, Int: n} }
func RawValue(s string) Value    { return Value{Kind: KindRaw, Str: s} }
func TextValue(t Text) Value     { return Value{Kind: KindText, Text: t} }

// NodeKind names a node variant. The string form is used as JSON tag.
type NodeKind string

const (
	KindScript      NodeKind = "script"
	KindMission     NodeKind = "mission"
	KindConditional NodeKind = "if"
	KindMenu        NodeKind = "menu"
	KindOption      NodeKind = "option"
	KindLoop        NodeKind = "loop"
	KindParallel    NodeKind = "parallel"
	KindSubScript   NodeKind = "subscript"
	KindBuild       NodeKind = "build"
	KindFlight      NodeKind = "flight"
	KindCommand     NodeKind = "command"
	KindUnknown     NodeKind = "unknown"
	KindOverflow    NodeKind = "overflow"
)

// Node is one element of a block tree. The set of implementations is closed:
// every operation over nodes switches over the concrete types below.
type Node interface {
	Kind() NodeKind
	SourceLine() int
	node()
}

// Tree is the ordered list of top-level nodes produced by one parse call.
// Nodes own their children; there are no parent links.
type Tree []Node

type Script struct {
	Name     string
	Children []Node
	Line     int
}

// Mission holds a mission body and, when FINISH_MISSION was present, the
// finish section. HasFinish distinguishes an empty finish section from none.
type Mission struct {
	Name      string
	Children  []Node
	HasFinish bool
	Finish    []Node
	Line      int
}

// IfType selects the head template of a Conditional.
type IfType string

const (
	IfSemaphore     IfType = "IF_SEMAPHORE"
	IfNotSemaphore  IfType = "IFNOT_SEMAPHORE"
	IfSystem        IfType = "IF_SYSTEM"
	IfHasCredits    IfType = "IF_HAS_CREDITS"
	IfIs            IfType = "IF_IS"
	IfMin           IfType = "IF_MIN"
	IfMax           IfType = "IF_MAX"
	IfProbability   IfType = "IF_PROBABILITY"
	IfOrder         IfType = "IF_ORDER"
	IfMissionResIs  IfType = "IF_MISSION_RESULT_IS"
	IfMissionResMin IfType = "IF_MISSION_RESULT_MIN"
)

// Conditional is an IF block. Variable holds the semaphore or variable name,
// or for IfSystem the flag name (DEBUG, FROM_CAMPAIGN, ...). Condition is
// only used when IfType is not one of the known types. HasElse records an
// ELSE marker even when the else branch is empty.
type Conditional struct {
	IfType    IfType
	Variable  string
	Value     int64
	Positions []string
	Condition string
	Then      []Node
	HasElse   bool
	Else      []Node
	Line      int
}

// ElsePresent reports whether the conditional has an else branch.
func (n *Conditional) ElsePresent() bool { return n.HasElse || len(n.Else) > 0 }

// Menu holds the options of a MENU block. Lines that are not OPT blocks are
// kept in order next to the options.
type Menu struct {
	Options []Node
	Line    int
}

type OptionKind string

const (
	OptSimple OptionKind = "OPT_SIMPLE"
	OptIf     OptionKind = "OPT_CONDITIONAL"
	OptIfNot  OptionKind = "OPT_CONDITIONAL_NOT"
)

// Option is an OPT block inside a menu. Variable is the guarding semaphore
// for the conditional variants.
type Option struct {
	Variant  OptionKind
	Variable string
	Text     Text
	Children []Node
	Line     int
}

type Loop struct {
	Count    int64
	Children []Node
	Line     int
}

type Parallel struct {
	Children []Node
	Line     int
}

type SubScript struct {
	Name     string
	Children []Node
	Line     int
}

// BuildPhase is an INIT_BUILD block. Header records a leading BUILD line.
type BuildPhase struct {
	Header bool
	Init   []Node
	Start  []Node
	Line   int
}

// FlightPhase is an INIT_FLIGHT block. Header records a leading FLIGHT line.
type FlightPhase struct {
	Header   bool
	Init     []Node
	Start    []Node
	Evaluate []Node
	Line     int
}

// Command is an atomic command. Name is the canonical spelling from the
// command catalog. ID is optional and only set by AssignIDs.
type Command struct {
	Name   string
	Params map[string]Value
	ID     string
	Line   int
}

// Unknown keeps a line no catalog entry recognized, verbatim.
type Unknown struct {
	Raw  string
	Line int
}

// Overflow replaces a container nested deeper than the parser allows. It
// keeps the container's lines verbatim.
type Overflow struct {
	Raw  []string
	Line int
}

func (*Script) Kind() NodeKind      { return KindScript }
func (*Mission) Kind() NodeKind     { return KindMission }
func (*Conditional) Kind() NodeKind { return KindConditional }
func (*Menu) Kind() NodeKind        { return KindMenu }
func (*Option) Kind() NodeKind      { return KindOption }
func (*Loop) Kind() NodeKind        { return KindLoop }
func (*Parallel) Kind() NodeKind    { return KindParallel }
func (*SubScript) Kind() NodeKind   { return KindSubScript }
func (*BuildPhase) Kind() NodeKind  { return KindBuild }
func (*FlightPhase) Kind() NodeKind { return KindFlight }
func (*Command) Kind() NodeKind     { return KindCommand }
func (*Unknown) Kind() NodeKind     { return KindUnknown }
func (*Overflow) Kind() NodeKind    { return KindOverflow }

func (n *Script) SourceLine() int      { return n.Line }
func (n *Mission) SourceLine() int     { return n.Line }
func (n *Conditional) SourceLine() int { return n.Line }
func (n *Menu) SourceLine() int        { return n.Line }
func (n *Option) SourceLine() int      { return n.Line }
func (n *Loop) SourceLine() int        { return n.Line }
func (n *Parallel) SourceLine() int    { return n.Line }
func (n *SubScript) SourceLine() int   { return n.Line }
func (n *BuildPhase) SourceLine() int  { return n.Line }
func (n *FlightPhase) SourceLine() int { return n.Line }
func (n *Command) SourceLine() int     { return n.Line }
func (n *Unknown) SourceLine() int     { return n.Line }
func (n *Overflow) SourceLine() int    { return n.Line }

func (*Script) node()      {}
func (*Mission) node()     {}
func (*Conditional) node() {}
func (*Menu) node()        {}
func (*Option) node()      {}
func (*Loop) node()        {}
func (*Parallel) node()    {}
func (*SubScript) node()   {}
func (*BuildPhase) node()  {}
func (*FlightPhase) node() {}
func (*Command) node()     {}
func (*Unknown) node()     {}
func (*Overflow) node()    {}

// Param returns the named parameter and whether it is set.
func (c *Command) Param(name string) (Value, bool) {
	v, ok := c.Params[name]
	return v, ok
}

// ErrorKind classifies parse diagnostics.
type ErrorKind int

const (
	ErrUnclosed ErrorKind = iota + 1
	ErrStrayMarker
	ErrDepthExceeded
	ErrBadNumber
)

func (k ErrorKind) String() string {
	switch k {
	case ErrUnclosed:
		return "unclosed container"
	case ErrStrayMarker:
		return "stray marker"
	case ErrDepthExceeded:
		return "nesting too deep"
	case ErrBadNumber:
		return "invalid number"
	}
	return "error"
}

// Error represents a parse diagnostic with position context.
type Error struct {
	Line    int
	Column  int
	Kind    ErrorKind
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}
