/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package multilang

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocampaign/internal/script"
)

func mustParse(t *testing.T, src, lang string) script.Tree {
	t.Helper()
	tree, errs := script.ParseText(src, lang)
	require.Empty(t, errs)
	return tree
}

const menuEN = `MENU
  OPT "One"
  END_OF_OPT
  OPT "Two"
  END_OF_OPT
  OPT "Three"
  END_OF_OPT
END_OF_MENU`

const menuFR = `MENU
  OPT "Un"
  END_OF_OPT
  OPT "Deux"
  END_OF_OPT
END_OF_MENU`

func TestMergeCollectsEveryLanguage(t *testing.T) {
	trees := map[string]script.Tree{
		"EN": mustParse(t, "SCRIPT s\n  SayChar tom \"Hello\"\n  OPT \"Go\"\n  END_OF_OPT\nEND_OF_SCRIPT", "EN"),
		"DE": mustParse(t, "SCRIPT s\n  SayChar tom \"Hallo\"\n  OPT \"Los\"\n  END_OF_OPT\nEND_OF_SCRIPT", "DE"),
		"FR": mustParse(t, "SCRIPT s\n  SayChar tom \"Bonjour\"\n  OPT \"Allez\"\n  END_OF_OPT\nEND_OF_SCRIPT", "FR"),
	}
	merged, err := Merge(trees, "EN")
	require.NoError(t, err)

	s := merged[0].(*script.Script)
	say := s.Children[0].(*script.Command)
	assert.Equal(t, script.Text{"EN": "Hello", "DE": "Hallo", "FR": "Bonjour"}, say.Params["text"].Text)
	opt := s.Children[1].(*script.Option)
	assert.Equal(t, script.Text{"EN": "Go", "DE": "Los", "FR": "Allez"}, opt.Text)

	assert.Equal(t, "SCRIPT s\n  SayChar tom \"Hallo\"\n  OPT \"Los\"\n  END_OF_OPT\nEND_OF_SCRIPT", script.Serialize(merged, "DE"))

	// Inputs stay single-language.
	assert.Equal(t, script.Text{"DE": "Hallo"}, trees["DE"][0].(*script.Script).Children[0].(*script.Command).Params["text"].Text)
	assert.Equal(t, script.Text{"EN": "Hello"}, trees["EN"][0].(*script.Script).Children[0].(*script.Command).Params["text"].Text)
}

func TestMergeFillsMissingFromReference(t *testing.T) {
	say := func(text script.Text) script.Tree {
		return script.Tree{&script.Command{Name: "Say", Params: map[string]script.Value{"text": script.TextValue(text)}}}
	}
	trees := map[string]script.Tree{
		"EN": say(script.Text{"EN": "Hi"}),
		"DE": say(script.Text{"DE": "Hallo"}),
		"FR": say(script.Text{"FR": ""}),
		"PL": {&script.Command{Name: "Say", Params: map[string]script.Value{}}},
	}
	merged, err := Merge(trees, "EN")
	require.NoError(t, err)
	got := merged[0].(*script.Command).Params["text"].Text
	assert.Equal(t, script.Text{"EN": "Hi", "DE": "Hallo", "FR": "Hi", "PL": "Hi"}, got)
	assert.Equal(t, `Say "Hi"`, script.Serialize(merged, "FR"))
}

func TestMergeReportsStructureMismatch(t *testing.T) {
	trees := map[string]script.Tree{
		"EN": mustParse(t, menuEN, "EN"),
		"FR": mustParse(t, menuFR, "FR"),
	}
	_, err := Merge(trees, "EN")
	require.Error(t, err)

	var mm *StructureMismatchError
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, "FR", mm.Language)
	assert.Equal(t, "[0].options[2]", mm.Path.String())
	assert.Equal(t, "3 vs 2 elements", mm.Reason)
	assert.Contains(t, err.Error(), "[0].options[2]")
}

func TestMergeChecksLanguagesInOrder(t *testing.T) {
	trees := map[string]script.Tree{
		"EN": mustParse(t, "IF a\nEND_OF_IF", "EN"),
		"RU": mustParse(t, "IFNOT a\nEND_OF_IF", "RU"),
		"CS": mustParse(t, "IF a\nELSE\nEND_OF_IF", "CS"),
	}
	_, err := Merge(trees, "EN")
	var mm *StructureMismatchError
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, "CS", mm.Language)
	assert.Equal(t, "[0]", mm.Path.String())
}

func TestMergeWithoutReference(t *testing.T) {
	_, err := Merge(map[string]script.Tree{"DE": {}}, "EN")
	assert.ErrorIs(t, err, ErrNoReference)

	tree, err := MergeOrFallback(map[string]script.Tree{"DE": {}}, "EN")
	assert.Nil(t, tree)
	assert.ErrorIs(t, err, ErrNoReference)
}

func TestMergeOrFallbackUsesReference(t *testing.T) {
	trees := map[string]script.Tree{
		"EN": mustParse(t, menuEN, "EN"),
		"FR": mustParse(t, menuFR, "FR"),
	}
	tree, err := MergeOrFallback(trees, "EN")
	require.Error(t, err)
	require.Len(t, tree, 1)
	assert.Len(t, tree[0].(*script.Menu).Options, 3)
	assert.Equal(t, menuEN, script.Serialize(tree, "FR"))

	tree[0].(*script.Menu).Options = nil
	assert.Len(t, trees["EN"][0].(*script.Menu).Options, 3, "fallback must be a copy")
}

func TestLanguagesSorted(t *testing.T) {
	assert.Equal(t, []string{"CS", "DE", "EN"}, Languages(map[string]script.Tree{"EN": nil, "CS": nil, "DE": nil}))
}
