/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNestedConditionals(t *testing.T) {
	tree, errs := Parse([]string{"IF a", "IF b", "END_OF_IF", "ELSE", "END_OF_IF"}, "EN")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if len(tree) != 1 {
		t.Fatalf("expected 1 top-level node, got %d", len(tree))
	}
	outer, ok := tree[0].(*Conditional)
	if !ok || outer.Variable != "a" || outer.IfType != IfSemaphore {
		t.Fatalf("expected Conditional(a), got %#v", tree[0])
	}
	if len(outer.Then) != 1 {
		t.Fatalf("expected one nested node in then-branch, got %d", len(outer.Then))
	}
	inner, ok := outer.Then[0].(*Conditional)
	if !ok || inner.Variable != "b" {
		t.Fatalf("expected nested Conditional(b), got %#v", outer.Then[0])
	}
	if inner.ElsePresent() {
		t.Fatalf("nested conditional must not have an else branch")
	}
	if !outer.ElsePresent() {
		t.Fatalf("outer conditional must own the ELSE")
	}
}

func TestParseElseBindsToInnermostConditional(t *testing.T) {
	lines := []string{
		"IF a",
		"  IF b",
		"    Say \"then b\"",
		"  ELSE",
		"    Say \"else b\"",
		"  END_OF_IF",
		"END_OF_IF",
	}
	tree, errs := Parse(lines, "EN")
	require.Empty(t, errs)
	outer := tree[0].(*Conditional)
	assert.False(t, outer.ElsePresent(), "ELSE of nested IF leaked to ancestor")
	inner := outer.Then[0].(*Conditional)
	require.Len(t, inner.Then, 1)
	require.Len(t, inner.Else, 1)
	assert.Equal(t, "else b", inner.Else[0].(*Command).Params["text"].Text["EN"])
}

func TestParseMissionBuildEndToEnd(t *testing.T) {
	lines := []string{"MISSION m", "BUILD", "INIT_BUILD", "ADDPARTTOSHIP 1 7 alienEngine 3333 0", "END_BUILDING", "END_OF_MISSION"}
	tree, errs := Parse(lines, "EN")
	require.Empty(t, errs)
	require.Len(t, tree, 1)

	m, ok := tree[0].(*Mission)
	require.True(t, ok, "expected mission, got %T", tree[0])
	assert.Equal(t, "m", m.Name)
	require.Len(t, m.Children, 1)
	b, ok := m.Children[0].(*BuildPhase)
	require.True(t, ok, "expected build phase, got %T", m.Children[0])
	assert.True(t, b.Header)
	require.Len(t, b.Init, 1)
	assert.Empty(t, b.Start)
	c := b.Init[0].(*Command)
	assert.Equal(t, "AddPartToShip", c.Name)
	assert.Equal(t, RawValue("1 7 alienEngine 3333 0"), c.Params["params"])

	out := SerializeLines(tree, Options{Language: "EN"})
	assert.Equal(t, []string{
		"MISSION m",
		"  BUILD",
		"  INIT_BUILD",
		"  AddPartToShip 1 7 alienEngine 3333 0",
		"  START_BUILDING",
		"  END_BUILDING",
		"END_OF_MISSION",
	}, out)

	again, errs := Parse(out, "EN")
	require.Empty(t, errs)
	assert.Nil(t, Compare(tree, again))
}

func TestParseMissionFinishSection(t *testing.T) {
	src := `MISSION tutorial
  SayChar tom "Welcome"
  INIT_FLIGHT
  Say "init"
  START_FLIGHT
  Say "start"
  EVALUATE_FLIGHT
  Say "evaluate"
  END_FLIGHT
FINISH_MISSION
  SetMissionAsCompleted
END_OF_MISSION`
	tree, errs := ParseText(src, "EN")
	require.Empty(t, errs)
	m := tree[0].(*Mission)
	require.True(t, m.HasFinish)
	require.Len(t, m.Finish, 1)
	assert.Equal(t, "SetMissionAsCompleted", m.Finish[0].(*Command).Name)
	f := m.Children[1].(*FlightPhase)
	assert.False(t, f.Header)
	assert.Len(t, f.Init, 1)
	assert.Len(t, f.Start, 1)
	assert.Len(t, f.Evaluate, 1)
}

func TestParseEmptyFinishSectionIsKept(t *testing.T) {
	tree, errs := Parse([]string{"MISSION m", "FINISH_MISSION", "END_OF_MISSION"}, "EN")
	require.Empty(t, errs)
	m := tree[0].(*Mission)
	assert.True(t, m.HasFinish)
	assert.Equal(t, "MISSION m\nFINISH_MISSION\nEND_OF_MISSION", Serialize(tree, "EN"))
}

func TestParseMenuOptions(t *testing.T) {
	src := `MENU
  OPT "First"
    Say "one"
  END_OF_OPT
  OPT_IF met_bob "Second"
  END_OF_OPT
  OPT_IFNOT met_bob "Third"
    EXIT_MENU
  END_OF_OPT
END_OF_MENU`
	tree, errs := ParseText(src, "CS")
	require.Empty(t, errs)
	menu := tree[0].(*Menu)
	require.Len(t, menu.Options, 3)

	o0 := menu.Options[0].(*Option)
	assert.Equal(t, OptSimple, o0.Variant)
	assert.Equal(t, Text{"CS": "First"}, o0.Text)
	assert.Len(t, o0.Children, 1)

	o1 := menu.Options[1].(*Option)
	assert.Equal(t, OptIf, o1.Variant)
	assert.Equal(t, "met_bob", o1.Variable)

	o2 := menu.Options[2].(*Option)
	assert.Equal(t, OptIfNot, o2.Variant)
	assert.Equal(t, "EXIT_MENU", o2.Children[0].(*Command).Name)
}

func TestParseLoopParallelSubScript(t *testing.T) {
	src := `SCRIPT s
  LOOP 3
    PARALLEL
      Say "a"
      Delay 10
    END_OF_PARALLEL
  END_OF_LOOP
  BEGIN_SUB_SCRIPT helper
    SUB_SCRIPT other
  END_OF_SUB_SCRIPT
END_OF_SCRIPT`
	tree, errs := ParseText(src, "EN")
	require.Empty(t, errs)
	s := tree[0].(*Script)
	require.Len(t, s.Children, 2)
	loop := s.Children[0].(*Loop)
	assert.Equal(t, int64(3), loop.Count)
	par := loop.Children[0].(*Parallel)
	assert.Len(t, par.Children, 2)
	assert.Equal(t, IntValue(10), par.Children[1].(*Command).Params["duration"])
	sub := s.Children[1].(*SubScript)
	assert.Equal(t, "helper", sub.Name)
	assert.Equal(t, StringValue("other"), sub.Children[0].(*Command).Params["script"])
}

func TestParseUnclosedContainer(t *testing.T) {
	tree, errs := Parse([]string{"SCRIPT s", "IF a", "Say \"x\""}, "EN")
	require.Len(t, errs, 2)
	assert.Equal(t, ErrUnclosed, errs[0].Kind)
	assert.Equal(t, 2, errs[0].Line)
	assert.Equal(t, ErrUnclosed, errs[1].Kind)
	assert.Equal(t, 1, errs[1].Line)

	s := tree[0].(*Script)
	c := s.Children[0].(*Conditional)
	assert.Len(t, c.Then, 1, "partial tree keeps parsed children")
}

func TestParseStrayMarkers(t *testing.T) {
	lines := []string{"ELSE", "END_OF_IF", "SCRIPT s", "FINISH_MISSION", "END_OF_SCRIPT"}
	tree, errs := Parse(lines, "EN")
	require.Len(t, errs, 3)
	for _, e := range errs {
		assert.Equal(t, ErrStrayMarker, e.Kind)
	}
	require.Len(t, tree, 3)
	assert.Equal(t, &Unknown{Raw: "ELSE", Line: 1}, tree[0])
	assert.Equal(t, &Unknown{Raw: "END_OF_IF", Line: 2}, tree[1])
	s := tree[2].(*Script)
	assert.Equal(t, &Unknown{Raw: "FINISH_MISSION", Line: 4}, s.Children[0])

	// Stray markers are kept verbatim.
	assert.Equal(t, "ELSE\nEND_OF_IF\nSCRIPT s\n  FINISH_MISSION\nEND_OF_SCRIPT", Serialize(tree, "EN"))
}

func TestParseSecondElseIsStray(t *testing.T) {
	tree, errs := Parse([]string{"IF a", "ELSE", "ELSE", "END_OF_IF"}, "EN")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrStrayMarker, errs[0].Kind)
	assert.Equal(t, 3, errs[0].Line)
	c := tree[0].(*Conditional)
	require.Len(t, c.Else, 1)
	assert.Equal(t, "ELSE", c.Else[0].(*Unknown).Raw)
}

func TestParseFlightMarkersOutOfOrder(t *testing.T) {
	tree, errs := Parse([]string{"INIT_FLIGHT", "EVALUATE_FLIGHT", "START_FLIGHT", "END_FLIGHT"}, "EN")
	require.Len(t, errs, 1)
	f := tree[0].(*FlightPhase)
	assert.Empty(t, f.Start)
	require.Len(t, f.Evaluate, 1)
	assert.Equal(t, "START_FLIGHT", f.Evaluate[0].(*Unknown).Raw)
}

func TestParseDepthGuard(t *testing.T) {
	const n = 10000
	lines := make([]string, 0, 2*n)
	for i := 0; i < n; i++ {
		lines = append(lines, "IF a")
	}
	for i := 0; i < n; i++ {
		lines = append(lines, "END_OF_IF")
	}
	tree, errs := Parse(lines, "EN")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDepthExceeded, errs[0].Kind)
	assert.Equal(t, DefaultMaxDepth+1, errs[0].Line)

	var cur Node = tree[0]
	for depth := 1; depth <= DefaultMaxDepth; depth++ {
		c, ok := cur.(*Conditional)
		require.True(t, ok, "depth %d: expected conditional, got %T", depth, cur)
		require.Len(t, c.Then, 1)
		cur = c.Then[0]
	}
	o, ok := cur.(*Overflow)
	require.True(t, ok, "expected overflow node, got %T", cur)
	assert.Len(t, o.Raw, 2*(n-DefaultMaxDepth))
	assert.Len(t, SerializeLines(tree, Options{}), 2*n)
}

func TestParseDepthGuardHonorsConfiguredMaximum(t *testing.T) {
	lines := []string{}
	for i := 0; i < 60; i++ {
		lines = append(lines, "LOOP 1")
	}
	for i := 0; i < 60; i++ {
		lines = append(lines, "END_OF_LOOP")
	}
	_, errs := ParseWithOptions(lines, Options{MaxDepth: 100})
	assert.Empty(t, errs)
	_, errs = ParseWithOptions(lines, Options{MaxDepth: 10}) // raised to the default bound
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDepthExceeded, errs[0].Kind)
}

func TestParseNumberOutOfRange(t *testing.T) {
	tree, errs := Parse([]string{"AddCredits 99999999999999999999", "IF_HAS_CREDITS 99999999999999999999", "END_OF_IF"}, "EN")
	require.Len(t, errs, 2)
	assert.Equal(t, ErrBadNumber, errs[0].Kind)
	assert.Equal(t, ErrBadNumber, errs[1].Kind)
	assert.Equal(t, &Unknown{Raw: "AddCredits 99999999999999999999", Line: 1}, tree[0])
	c := tree[1].(*Conditional)
	assert.Equal(t, IfHasCredits, c.IfType)
	assert.Equal(t, int64(0), c.Value)
}

func TestParseCommentsAndBlankLines(t *testing.T) {
	lines := []string{"", "// note", "SCRIPT s", "   ", "  // inner", "  RETURN", "END_OF_SCRIPT"}
	tree, errs := Parse(lines, "EN")
	require.Empty(t, errs)
	s := tree[0].(*Script)
	require.Len(t, s.Children, 1)
	assert.Equal(t, 6, s.Children[0].SourceLine())

	tree, errs = ParseWithOptions(lines, Options{KeepComments: true})
	require.Empty(t, errs)
	require.Len(t, tree, 2)
	assert.Equal(t, "// note", tree[0].(*Unknown).Raw)
	assert.Equal(t, "// inner", tree[1].(*Script).Children[0].(*Unknown).Raw)
}

func TestParseMultilingualKeyedByLanguage(t *testing.T) {
	tree, errs := Parse([]string{`SayChar tom "Hallo Welt"`}, "DE")
	require.Empty(t, errs)
	c := tree[0].(*Command)
	assert.Equal(t, StringValue("tom"), c.Params["character"])
	assert.Equal(t, TextValue(Text{"DE": "Hallo Welt"}), c.Params["text"])
}

func TestParseOptionalParameters(t *testing.T) {
	tree, errs := Parse([]string{
		"ShowChar tom left",
		`ShowChar tom right "tom happy.png"`,
		"ChangeChar tom campaign/tom2.png",
		`SetDeckPreparationScript "PrepScript"`,
		"UnlockShipPlan IISuper",
	}, "EN")
	require.Empty(t, errs)
	_, hasImage := tree[0].(*Command).Param("image")
	assert.False(t, hasImage)
	assert.Equal(t, StringValue("tom happy.png"), tree[1].(*Command).Params["image"])
	assert.Equal(t, StringValue("campaign/tom2.png"), tree[2].(*Command).Params["image"])
	assert.Equal(t, StringValue("PrepScript"), tree[3].(*Command).Params["script"])
	assert.Equal(t, StringValue("IISuper"), tree[4].(*Command).Params["plan"])
}

func TestSplitLines(t *testing.T) {
	got := SplitLines("a\r\nb\n\nc")
	assert.Equal(t, []string{"a", "b", "", "c"}, got)
	assert.Nil(t, SplitLines(""))
	assert.Equal(t, []string{"a", ""}, SplitLines("a\n\n"))
}

func TestSplitLinesKeepsLinesAfterVeryLongLine(t *testing.T) {
	long := strings.Repeat("x", 5<<20)
	lines := SplitLines("SCRIPT s\n  Say \"" + long + "\"\n  SET x\nEND_OF_SCRIPT\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "  SET x", lines[2])

	tree, errs := Parse(lines, "EN")
	require.Empty(t, errs)
	require.Len(t, tree, 1)
	assert.Equal(t, lines, SerializeLines(tree, Options{Language: "EN"}))
}

func TestParseNeverPanicsOnGarbage(t *testing.T) {
	garbage := []string{
		"END_OF_SCRIPTS", "\"", "IF", "OPT", "OPT \"\"", "MENU x", "LOOP x", "INIT_BUILD extra",
		strings.Repeat("x", 10000), "SayChar", "ShowChar tom nowhere", "START_BUILDING", "END_BUILDING",
	}
	tree, _ := Parse(garbage, "EN")
	assert.Len(t, tree, len(garbage))
}
