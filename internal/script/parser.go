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
	"strconv"
	"strings"
)

// DefaultMaxDepth is the container nesting bound used when Options.MaxDepth
// is unset. Smaller values are raised to it.
const DefaultMaxDepth = 50

// Options tunes Parse and Serialize.
type Options struct {
	// Language keys multilingual values created by the parser and selects
	// text when serializing. Defaults to ReferenceLanguage.
	Language string
	// ReferenceLanguage is the serializer fallback. Defaults to "EN".
	ReferenceLanguage string
	MaxDepth          int
	// KeepComments keeps "//" lines as Unknown nodes instead of dropping them.
	KeepComments bool
}

func (o Options) normalized() Options {
	if o.Language == "" {
		o.Language = ReferenceLanguage
	}
	if o.ReferenceLanguage == "" {
		o.ReferenceLanguage = ReferenceLanguage
	}
	if o.MaxDepth < DefaultMaxDepth {
		o.MaxDepth = DefaultMaxDepth
	}
	return o
}

// Parse parses lines of a script body into a block tree. The file wrapper
// (SCRIPTS / END_OF_SCRIPTS) must already be stripped.
//
// Parse never fails on malformed input: unrecognized lines become Unknown
// nodes and structural problems (unclosed containers, markers outside their
// container, nesting deeper than the bound, numbers out of range) are
// returned as diagnostics next to a best-effort tree. Callers must treat a
// non-empty diagnostic list as unsafe to persist.
func Parse(lines []string, lang string) (Tree, []Error) {
	return ParseWithOptions(lines, Options{Language: lang})
}

// ParseWithOptions is Parse with explicit options.
func ParseWithOptions(lines []string, opts Options) (Tree, []Error) {
	opts = opts.normalized()
	p := &parser{lines: lines, lang: opts.Language, maxDepth: opts.MaxDepth, keepComments: opts.KeepComments}
	tree := Tree{}
	for {
		ln, text, ok := p.next()
		if !ok {
			break
		}
		tree = append(tree, p.element(Classify(text, FamilyNone), ln, 0))
	}
	return tree, p.errs
}

// ParseText splits src into lines and parses them.
func ParseText(src string, lang string) (Tree, []Error) {
	return Parse(SplitLines(src), lang)
}

// SplitLines splits text into lines, dropping line terminators. Lines have
// no length limit; a final terminator does not start an empty line.
func SplitLines(src string) []string {
	if src == "" {
		return nil
	}
	out := strings.Split(strings.TrimSuffix(src, "\n"), "\n")
	for i, line := range out {
		out[i] = strings.TrimRight(line, "\r")
	}
	return out
}

type parser struct {
	lines        []string
	pos          int
	lang         string
	maxDepth     int
	keepComments bool
	errs         []Error
}

// next returns the next significant line with its 1-based number.
func (p *parser) next() (int, string, bool) {
	for p.pos < len(p.lines) {
		i := p.pos
		p.pos++
		t := strings.TrimSpace(p.lines[i])
		if t == "" {
			continue
		}
		if strings.HasPrefix(t, "//") && !p.keepComments {
			continue
		}
		return i + 1, t, true
	}
	return 0, "", false
}

func (p *parser) peek() (int, string, bool) {
	saved := p.pos
	ln, t, ok := p.next()
	p.pos = saved
	return ln, t, ok
}

func (p *parser) errorf(kind ErrorKind, line int, format string, args ...any) {
	p.errs = append(p.errs, Error{Line: line, Column: 1, Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// element turns one classified line into a node. Containers consume lines
// up to their close marker. depth is the nesting level of the caller.
func (p *parser) element(c Classified, ln, depth int) Node {
	switch c.Class {
	case ClassOpen:
		return p.container(c, ln, depth+1)
	case ClassCommand:
		return p.command(c, ln)
	}
	if c.Raw == headerBuild || c.Raw == headerFlight {
		if _, t, ok := p.peek(); ok && t == "INIT_"+c.Raw {
			nln, nt, _ := p.next()
			n := p.container(Classify(nt, FamilyNone), nln, depth+1)
			switch v := n.(type) {
			case *BuildPhase:
				v.Header, v.Line = true, ln
			case *FlightPhase:
				v.Header, v.Line = true, ln
			case *Overflow:
				v.Raw = append([]string{c.Raw}, v.Raw...)
				v.Line = ln
			}
			return n
		}
	}
	if c.Stray {
		p.errorf(ErrStrayMarker, ln, "%s outside of %s", c.Raw, c.Family)
	}
	return &Unknown{Raw: c.Raw, Line: ln}
}

// body consumes children of a container of family f until its close marker.
// add receives each child; branch is called for each branch marker and
// reports whether the marker was accepted at this point.
func (p *parser) body(f Family, openLine, depth int, add func(Node), branch func(marker string) bool) {
	for {
		ln, text, ok := p.next()
		if !ok {
			p.errorf(ErrUnclosed, openLine, "unclosed %s opened at line %d", f, openLine)
			return
		}
		c := Classify(text, f)
		switch c.Class {
		case ClassClose:
			return
		case ClassBranch:
			if branch == nil || !branch(c.Marker) {
				p.errorf(ErrStrayMarker, ln, "unexpected %s in %s", c.Marker, f)
				add(&Unknown{Raw: c.Raw, Line: ln})
			}
		default:
			add(p.element(c, ln, depth))
		}
	}
}

func (p *parser) container(c Classified, ln, depth int) Node {
	if depth > p.maxDepth {
		return p.overflow(c.Raw, ln)
	}
	caps := c.Captures
	switch c.Family {
	case FamilyScript:
		n := &Script{Name: strings.TrimSpace(caps[0]), Children: []Node{}, Line: ln}
		p.body(FamilyScript, ln, depth, func(x Node) { n.Children = append(n.Children, x) }, nil)
		return n

	case FamilyMission:
		n := &Mission{Name: strings.TrimSpace(caps[0]), Children: []Node{}, Line: ln}
		p.body(FamilyMission, ln, depth, func(x Node) {
			if n.HasFinish {
				n.Finish = append(n.Finish, x)
			} else {
				n.Children = append(n.Children, x)
			}
		}, func(marker string) bool {
			if n.HasFinish {
				return false
			}
			n.HasFinish, n.Finish = true, []Node{}
			return true
		})
		return n

	case FamilyIf:
		n := p.conditional(c, ln)
		p.body(FamilyIf, ln, depth, func(x Node) {
			if n.HasElse {
				n.Else = append(n.Else, x)
			} else {
				n.Then = append(n.Then, x)
			}
		}, func(marker string) bool {
			if n.HasElse {
				return false
			}
			n.HasElse = true
			return true
		})
		return n

	case FamilyMenu:
		n := &Menu{Options: []Node{}, Line: ln}
		p.body(FamilyMenu, ln, depth, func(x Node) { n.Options = append(n.Options, x) }, nil)
		return n

	case FamilyOption:
		n := &Option{Variant: OptionKind(c.Variant), Children: []Node{}, Line: ln}
		if c.Variant == varOpt {
			n.Text = Text{p.lang: caps[0]}
		} else {
			n.Variable, n.Text = caps[0], Text{p.lang: caps[1]}
		}
		p.body(FamilyOption, ln, depth, func(x Node) { n.Children = append(n.Children, x) }, nil)
		return n

	case FamilyLoop:
		n := &Loop{Count: p.number(caps[0], ln, "LOOP"), Children: []Node{}, Line: ln}
		p.body(FamilyLoop, ln, depth, func(x Node) { n.Children = append(n.Children, x) }, nil)
		return n

	case FamilyParallel:
		n := &Parallel{Children: []Node{}, Line: ln}
		p.body(FamilyParallel, ln, depth, func(x Node) { n.Children = append(n.Children, x) }, nil)
		return n

	case FamilySubScript:
		n := &SubScript{Name: caps[0], Children: []Node{}, Line: ln}
		p.body(FamilySubScript, ln, depth, func(x Node) { n.Children = append(n.Children, x) }, nil)
		return n

	case FamilyBuild:
		n := &BuildPhase{Init: []Node{}, Start: []Node{}, Line: ln}
		started := false
		p.body(FamilyBuild, ln, depth, func(x Node) {
			if started {
				n.Start = append(n.Start, x)
			} else {
				n.Init = append(n.Init, x)
			}
		}, func(marker string) bool {
			if started {
				return false
			}
			started = true
			return true
		})
		return n

	case FamilyFlight:
		n := &FlightPhase{Init: []Node{}, Start: []Node{}, Evaluate: []Node{}, Line: ln}
		phase := 0
		p.body(FamilyFlight, ln, depth, func(x Node) {
			switch phase {
			case 0:
				n.Init = append(n.Init, x)
			case 1:
				n.Start = append(n.Start, x)
			default:
				n.Evaluate = append(n.Evaluate, x)
			}
		}, func(marker string) bool {
			want := 1
			if marker == markerEvaluate {
				want = 2
			}
			if phase >= want {
				return false
			}
			phase = want
			return true
		})
		return n
	}
	// Every catalog family is handled above.
	panic(fmt.Sprintf("script: unhandled container family %v", c.Family))
}

func (p *parser) conditional(c Classified, ln int) *Conditional {
	caps := c.Captures
	n := &Conditional{IfType: IfType(c.Variant), Then: []Node{}, Else: []Node{}, Line: ln}
	switch c.Variant {
	case varIf, varIfNot, varIfSystem:
		n.Variable = strings.TrimSpace(caps[0])
	case varIfIs, varIfMin, varIfMax:
		n.Variable = caps[0]
		n.Value = p.number(caps[1], ln, c.Variant)
	case varIfCredits, varIfProb, varIfResultIs, varIfResultMin:
		n.Value = p.number(caps[0], ln, c.Variant)
	case varIfOrder:
		n.Positions = strings.Fields(caps[0])
	}
	return n
}

// number converts a container operand. Out of range values are reported and
// stored as 0; the container itself is kept so its body still parses.
func (p *parser) number(s string, ln int, what string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.errorf(ErrBadNumber, ln, "invalid number %q in %s", s, what)
		return 0
	}
	return n
}

// command builds an atomic node. A parameter that fails its coercion turns
// the whole line into an Unknown node so the text is not altered.
func (p *parser) command(c Classified, ln int) Node {
	spec := c.Command
	n := &Command{Name: spec.Name, Params: make(map[string]Value, len(spec.Params)), Line: ln}
	for i, prm := range spec.Params {
		if i >= len(c.Captures) || c.Captures[i] == "" {
			continue
		}
		v := c.Captures[i]
		switch prm.Kind {
		case ParamInt:
			x, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				p.errorf(ErrBadNumber, ln, "invalid number %q for %s %s", v, spec.Name, prm.Name)
				return &Unknown{Raw: c.Raw, Line: ln}
			}
			n.Params[prm.Name] = IntValue(x)
		case ParamText:
			n.Params[prm.Name] = TextValue(Text{p.lang: v})
		case ParamRaw:
			n.Params[prm.Name] = RawValue(v)
		default:
			n.Params[prm.Name] = StringValue(unquote(v))
		}
	}
	return n
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// overflow captures the lines of a container nested past the bound without
// recursing: it scans forward keeping a balance of opens and closes.
func (p *parser) overflow(first string, ln int) Node {
	p.errorf(ErrDepthExceeded, ln, "nesting deeper than %d levels", p.maxDepth)
	n := &Overflow{Raw: []string{first}, Line: ln}
	balance := 1
	for balance > 0 {
		_, text, ok := p.next()
		if !ok {
			p.errorf(ErrUnclosed, ln, "unclosed container opened at line %d", ln)
			break
		}
		n.Raw = append(n.Raw, text)
		if v, _ := matchOpen(text); v != nil {
			balance++
		} else if isClose(text) {
			balance--
		}
	}
	return n
}
