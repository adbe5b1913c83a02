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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonSample = `MISSION m
  MENU
    OPT_IF met "Yes"
      AddPartToShip 1 7 alienEngine 3333 0
    END_OF_OPT
  END_OF_MENU
  IF_ORDER 1 2
  ELSE
    LOOP 3
      Delay 5
    END_OF_LOOP
  END_OF_IF
  BUILD
  INIT_BUILD
  START_BUILDING
  END_BUILDING
FINISH_MISSION
  ~left as is
END_OF_MISSION`

func TestTreeJSONKeepsStructureAndValues(t *testing.T) {
	tree, errs := ParseText(jsonSample, "EN")
	require.Empty(t, errs)
	AssignIDs(tree)

	data, err := MarshalTree(tree)
	require.NoError(t, err)
	back, err := UnmarshalTree(data)
	require.NoError(t, err)

	assert.Nil(t, Compare(tree, back))
	assert.Equal(t, Serialize(tree, "EN"), Serialize(back, "EN"))

	orig := tree[0].(*Mission).Children[0].(*Menu).Options[0].(*Option).Children[0].(*Command)
	got := back[0].(*Mission).Children[0].(*Menu).Options[0].(*Option).Children[0].(*Command)
	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, KindRaw, got.Params["params"].Kind)
	assert.Equal(t, 4, got.Line)

	cond := back[0].(*Mission).Children[1].(*Conditional)
	assert.True(t, cond.HasElse)
	assert.Equal(t, []string{"1", "2"}, cond.Positions)
}

func TestValueJSON(t *testing.T) {
	b, err := json.Marshal(TextValue(Text{"EN": "Hi"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"text","value":{"EN":"Hi"}}`, string(b))

	var v Value
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"int","value":42}`), &v))
	assert.Equal(t, IntValue(42), v)
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"raw","value":"1 3"}`), &v))
	assert.Equal(t, RawValue("1 3"), v)
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"blob","value":1}`), &v))
}

func TestUnmarshalTreeRejectsBadInput(t *testing.T) {
	_, err := UnmarshalTree([]byte(`[{"kind":"bogus"}]`))
	assert.Error(t, err)
	_, err = UnmarshalTree([]byte(`[{"kind":"command"}]`))
	assert.Error(t, err)
	_, err = UnmarshalTree([]byte(`{`))
	assert.Error(t, err)
}

func TestAssignIDsKeepsExisting(t *testing.T) {
	tree := Tree{&Command{Name: "RETURN", ID: "fixed", Params: map[string]Value{}}, &Command{Name: "RETURN", Params: map[string]Value{}}}
	AssignIDs(tree)
	assert.Equal(t, "fixed", tree[0].(*Command).ID)
	assert.NotEmpty(t, tree[1].(*Command).ID)
	assert.NotEqual(t, "fixed", tree[1].(*Command).ID)
}
