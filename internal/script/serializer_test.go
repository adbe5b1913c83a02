/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func command(name string, kv ...any) *Command {
	c := &Command{Name: name, Params: map[string]Value{}}
	for i := 0; i+1 < len(kv); i += 2 {
		c.Params[kv[i].(string)] = kv[i+1].(Value)
	}
	return c
}

func TestSerializeQuoting(t *testing.T) {
	cases := []struct {
		name string
		node *Command
		want string
	}{
		{"preparation script quoted", command("SetDeckPreparationScript", "script", StringValue("Prep1")), `SetDeckPreparationScript "Prep1"`},
		{"flight preparation script quoted", command("SetFlightDeckPreparationScript", "script", StringValue("FPrep")), `SetFlightDeckPreparationScript "FPrep"`},
		{"complex params raw", command("SetAdvPile", "params", RawValue("1 3")), "SetAdvPile 1 3"},
		{"special condition quoted", command("SetSpecCondition", "condition", StringValue("NO_SHIELDS")), `SetSpecCondition "NO_SHIELDS"`},
		{"sub script raw", command("SUB_SCRIPT", "script", StringValue("intro")), "SUB_SCRIPT intro"},
		{"help script raw", command("FlightHelpScript", "script", StringValue("fhelp")), "FlightHelpScript fhelp"},
		{"building help path raw", command("BuildingHelpScript", "value", IntValue(2), "script", StringValue("help/build1")), "BuildingHelpScript 2 help/build1"},
		{"info window image quoted", command("AddInfoWindow", "image", StringValue("info.png")), `AddInfoWindow "info.png"`},
		{"ship plan quoted", command("UnlockShipPlan", "plan", StringValue("IISuper")), `UnlockShipPlan "IISuper"`},
		{"ship plan alias", command("UnlockShipPlan", "shipPlan", StringValue("IISuper")), `UnlockShipPlan "IISuper"`},
		{"ship parts quoted", command("AddShipParts", "params", StringValue("parts/allParts.yaml")), `AddShipParts "parts/allParts.yaml"`},
		{"identifier and number", command("SetAchievementProgress", "achievement", StringValue("pilot"), "value", IntValue(3)), "SetAchievementProgress pilot 3"},
		{"negative number", command("AddCredits", "amount", IntValue(-50)), "AddCredits -50"},
		{"text quoted", command("SayChar", "character", StringValue("tom"), "text", TextValue(Text{"EN": "Hi"})), `SayChar tom "Hi"`},
		{"image without space", command("ShowChar", "character", StringValue("tom"), "position", StringValue("left"), "image", StringValue("tom.png")), "ShowChar tom left tom.png"},
		{"image with space", command("ShowChar", "character", StringValue("tom"), "position", StringValue("left"), "image", StringValue("tom 2.png")), `ShowChar tom left "tom 2.png"`},
		{"optional image absent", command("ShowChar", "character", StringValue("tom"), "position", StringValue("left")), "ShowChar tom left"},
		{"no params", command("RETURN"), "RETURN"},
		{"canonical casing", command("hideallpaths", "node1", StringValue("a"), "node2", StringValue("b")), "HideAllPaths a b"},
		{"not in catalog", command("CustomThing", "b", IntValue(2), "a", StringValue("x")), "CustomThing x 2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Serialize(Tree{tc.node}, "EN"))
		})
	}
}

func TestSerializeCanonicalizesCaseInsensitiveCommands(t *testing.T) {
	tree, errs := Parse([]string{"HIDEALLPATHS a b", "delay 5", "savestate", "movePlayerToNode mars"}, "EN")
	require.Empty(t, errs)
	assert.Equal(t, "HideAllPaths a b\nDelay 5\nSaveState\nMovePlayerToNode mars", Serialize(tree, "EN"))
}

func TestConditionHead(t *testing.T) {
	cases := []struct {
		node *Conditional
		want string
	}{
		{&Conditional{IfType: IfSemaphore, Variable: "a"}, "IF a"},
		{&Conditional{IfType: IfNotSemaphore, Variable: "a"}, "IFNOT a"},
		{&Conditional{IfType: IfSystem, Variable: "debug"}, "IF_DEBUG"},
		{&Conditional{IfType: IfHasCredits, Value: 10}, "IF_HAS_CREDITS 10"},
		{&Conditional{IfType: IfIs, Variable: "v", Value: 2}, "IF_IS v 2"},
		{&Conditional{IfType: IfMin, Variable: "v", Value: 1}, "IF_MIN v 1"},
		{&Conditional{IfType: IfMax, Variable: "v", Value: 3}, "IF_MAX v 3"},
		{&Conditional{IfType: IfProbability, Value: 25}, "IF_PROB 25"},
		{&Conditional{IfType: IfOrder, Positions: []string{"1", "3"}}, "IF_ORDER 1 3"},
		{&Conditional{IfType: IfMissionResIs, Value: -1}, "IfMissionResultIs -1"},
		{&Conditional{IfType: IfMissionResMin, Value: 2}, "IfMissionResultMin 2"},
		{&Conditional{IfType: "IF_WEATHER", Condition: "sunny"}, "IF sunny"},
		{&Conditional{IfType: "IF_WEATHER"}, "IF UNKNOWN"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ConditionHead(tc.node))
	}
}

func TestSerializeElse(t *testing.T) {
	then := []Node{command("RETURN")}
	assert.Equal(t, "IF a\n  RETURN\nEND_OF_IF",
		Serialize(Tree{&Conditional{IfType: IfSemaphore, Variable: "a", Then: then}}, "EN"))
	assert.Equal(t, "IF a\n  RETURN\nELSE\nEND_OF_IF",
		Serialize(Tree{&Conditional{IfType: IfSemaphore, Variable: "a", Then: then, HasElse: true}}, "EN"))
	assert.Equal(t, "IF a\nELSE\n  RETURN\nEND_OF_IF",
		Serialize(Tree{&Conditional{IfType: IfSemaphore, Variable: "a", Else: then}}, "EN"))
}

func TestSerializeIndentation(t *testing.T) {
	src := []string{
		"SCRIPT s",
		"  MENU",
		"    OPT \"A\"",
		"      LOOP 2",
		"        Say \"x\"",
		"      END_OF_LOOP",
		"    END_OF_OPT",
		"  END_OF_MENU",
		"  INIT_FLIGHT",
		"  Say \"i\"",
		"  START_FLIGHT",
		"  EVALUATE_FLIGHT",
		"  END_FLIGHT",
		"END_OF_SCRIPT",
	}
	tree, errs := Parse(src, "EN")
	require.Empty(t, errs)
	assert.Equal(t, src, SerializeLines(tree, Options{Language: "EN"}))
}

func TestTextFallback(t *testing.T) {
	cases := []struct {
		name string
		text Text
		lang string
		want string
	}{
		{"requested language", Text{"EN": "Hi", "DE": "Hallo"}, "DE", "Hallo"},
		{"empty requested falls back to reference", Text{"EN": "Hi", "FR": ""}, "FR", "Hi"},
		{"missing in third language uses reference", Text{"EN": "Hi", "DE": "Hallo", "FR": "Salut"}, "PL", "Hi"},
		{"no reference uses first non-empty in key order", Text{"FR": "Salut", "DE": "Hallo", "CS": ""}, "PL", "Hallo"},
		{"nothing available", Text{}, "PL", ""},
		{"nil", nil, "EN", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.text.For(tc.lang, ReferenceLanguage))
		})
	}

	c := command("Say", "text", TextValue(Text{"EN": "Hi", "DE": "Hallo"}))
	assert.Equal(t, `Say "Hi"`, Serialize(Tree{c}, "PL"))
	assert.Equal(t, `Say ""`, Serialize(Tree{command("Say", "text", TextValue(Text{}))}, "PL"))
}

func TestNormalizeText(t *testing.T) {
	cases := []struct {
		in, lang, want string
	}{
		{`He said "hi" and "bye"`, "EN", "He said “hi” and “bye”"},
		{"èlite pilot. àh well", "IT", "Èlite pilot. Àh well"},
		{"échappé", "FR", "Échappé"},
		{"middle èlite", "FR", "middle èlite"},
		{"plain text", "EN", "plain text"},
		{"", "EN", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeText(tc.in, tc.lang), tc.in)
	}
}

func TestNormalizeTextIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[a-zA-Zàèéìòù"., ]{0,40}`).Draw(t, "text")
		once := NormalizeText(s, "EN")
		if twice := NormalizeText(once, "EN"); twice != once {
			t.Fatalf("not idempotent: %q -> %q -> %q", s, once, twice)
		}
	})
}

func TestValidLanguage(t *testing.T) {
	for _, code := range Languages {
		assert.True(t, ValidLanguage(code), code)
	}
	assert.False(t, ValidLanguage(""))
	assert.False(t, ValidLanguage("not a language"))
}

func TestUnknownLinesAreStable(t *testing.T) {
	for _, line := range []string{"FOO_BAR 1 2", "Say unquoted text", "SHOWCHAR tom middle", "END_OF_SCRIPTS"} {
		tree, errs := Parse([]string{line}, "EN")
		require.Empty(t, errs, line)
		require.IsType(t, &Unknown{}, tree[0], line)
		assert.Equal(t, line, Serialize(tree, "EN"))
	}

	rapid.Check(t, func(t *rapid.T) {
		line := rapid.StringMatching(`~[A-Za-z0-9 _"]{0,30}[A-Za-z0-9]`).Draw(t, "line")
		tree, errs := Parse([]string{line}, "EN")
		if len(errs) != 0 {
			t.Fatalf("unexpected errors for %q: %v", line, errs)
		}
		if got := Serialize(tree, "EN"); got != line {
			t.Fatalf("unknown line changed: %q -> %q", line, got)
		}
	})
}
