/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"regexp"
	"strings"
)

// ParamKind is the coercion applied to a captured parameter.
type ParamKind int

const (
	ParamString ParamKind = iota
	ParamInt
	ParamRaw  // opaque, kept and emitted verbatim
	ParamText // multilingual, quoted
)

// Quote controls how a string parameter is written back.
type Quote int

const (
	QuoteNever Quote = iota
	QuoteAlways
	QuoteIfSpace
)

// Param is one typed slot of a command. Each slot maps to exactly one
// capture group of the command pattern; an empty optional group leaves the
// parameter unset.
type Param struct {
	Name  string
	Kind  ParamKind
	Quote Quote
}

// CommandSpec describes one atomic command shape.
type CommandSpec struct {
	Name     string // canonical spelling used when serializing
	Category string
	Pattern  *regexp.Regexp
	Params   []Param
}

func str(name string) Param  { return Param{Name: name, Kind: ParamString} }
func qstr(name string) Param { return Param{Name: name, Kind: ParamString, Quote: QuoteAlways} }
func sstr(name string) Param { return Param{Name: name, Kind: ParamString, Quote: QuoteIfSpace} }
func num(name string) Param  { return Param{Name: name, Kind: ParamInt} }
func raw(name string) Param  { return Param{Name: name, Kind: ParamRaw} }
func text(name string) Param { return Param{Name: name, Kind: ParamText, Quote: QuoteAlways} }

func cmd(category, name, pattern string, params ...Param) CommandSpec {
	return CommandSpec{Name: name, Category: category, Pattern: regexp.MustCompile(pattern), Params: params}
}

const (
	catDialogue  = "dialogue"
	catCharacter = "character"
	catScene     = "scene"
	catVariable  = "variable"
	catFlow      = "flow"
	catMap       = "map"
	catMission   = "mission"
	catCredits   = "credits"
	catUI        = "ui"
	catAchieve   = "achievement"
	catHelp      = "help"
	catStatus    = "status"
	catState     = "state"
	catComplex   = "complex"
	catDeck      = "deck"
)

// commandCatalog is matched in order; the first matching pattern wins.
// Quoting follows the file format: dialogue text, preparation scripts, the
// special condition, info window images, ship plans and ship part files are
// quoted; identifiers, numbers and complex parameter strings are not.
var commandCatalog = []CommandSpec{
	cmd(catDialogue, "Say", `^Say\s+"(.+)"$`, text("text")),
	cmd(catDialogue, "Ask", `^Ask\s+"(.+)"$`, text("text")),
	cmd(catDialogue, "SayChar", `^SayChar\s+(\w+)\s+"(.+)"$`, str("character"), text("text")),
	cmd(catDialogue, "AskChar", `^AskChar\s+(\w+)\s+"(.+)"$`, str("character"), text("text")),
	cmd(catDialogue, "Announce", `^Announce\s+"(.+)"$`, text("text")),
	cmd(catDialogue, "SetFlightStatusBar", `^SetFlightStatusBar\s+"(.+)"$`, text("text")),

	cmd(catCharacter, "ShowChar", `(?i)^ShowChar\s+(\w+)\s+(left|center|right|top|bottom|lefttop|leftbottom|righttop|rightbottom)(?:\s+(".+"|\S+))?$`,
		str("character"), str("position"), sstr("image")),
	cmd(catCharacter, "HideChar", `^HideChar\s+(\w+)$`, str("character")),
	cmd(catCharacter, "ChangeChar", `^ChangeChar\s+(\w+)\s+(".+"|\S+)$`, str("character"), sstr("image")),
	cmd(catCharacter, "FocusChar", `(?i)^FocusChar\s+(\w+)$`, str("character")),

	cmd(catScene, "ShowDlgScene", `^ShowDlgScene$`),
	cmd(catScene, "HideDlgScene", `^HideDlgScene$`),

	cmd(catVariable, "SET", `^SET\s+(\w+)$`, str("semaphore")),
	cmd(catVariable, "RESET", `^RESET\s+(\w+)$`, str("semaphore")),
	cmd(catVariable, "SET_TO", `(?i)^SET_TO\s+(\w+)\s+(\d+)$`, str("variable"), num("value")),
	cmd(catVariable, "ADD", `(?i)^ADD\s+(\w+)\s+(\d+)$`, str("variable"), num("value")),

	cmd(catFlow, "LABEL", `(?i)^LABEL\s+(\w+)$`, str("name")),
	cmd(catFlow, "GO", `(?i)^GO\s+(\w+)$`, str("label")),
	cmd(catFlow, "SUB_SCRIPT", `(?i)^SUB_SCRIPT\s+(\w+)$`, str("script")),
	cmd(catFlow, "RETURN", `(?i)^RETURN$`),
	cmd(catFlow, "EXIT_MENU", `(?i)^EXIT_MENU$`),
	cmd(catFlow, "Delay", `(?i)^DELAY\s+(\d+)$`, num("duration")),

	cmd(catMap, "ShowPath", `^ShowPath\s+(.+)$`, str("route")),
	cmd(catMap, "HidePath", `(?i)^HidePath\s+(.+)$`, str("route")),
	cmd(catMap, "HideAllPaths", `(?i)^HIDEALLPATHS\s+(\w+)\s+(\w+)$`, str("node1"), str("node2")),
	cmd(catMap, "ShowNode", `(?i)^ShowNode\s+(.+)$`, str("node")),
	cmd(catMap, "HideNode", `(?i)^HIDENODE\s+(.+)$`, str("node")),
	cmd(catMap, "ShowButton", `(?i)^ShowButton\s+(\w+)$`, str("button")),
	cmd(catMap, "HideButton", `(?i)^HideButton\s+(\w+)$`, str("button")),
	cmd(catMap, "CenterMapByNode", `(?i)^CenterMapByNode\s+(\w+)$`, str("node")),
	cmd(catMap, "CenterMapByPath", `(?i)^CenterMapByPath\s+(.+)$`, str("route")),
	cmd(catMap, "MovePlayerToNode", `(?i)^MOVEPLAYERTONODE\s+(\w+)$`, str("node")),

	cmd(catMission, "AddOpponent", `^AddOpponent\s+([\w-]+)$`, str("character")),
	cmd(catMission, "ACT_MISSION", `^ACT_MISSION\s+([\w-]+)$`, str("mission")),
	cmd(catMission, "AddOpponentsCredits", `^AddOpponentsCredits\s+(\d+)\s+(-?\d+)$`, num("index"), num("credits")),
	cmd(catMission, "ModifyOpponentsBuildSpeed", `(?i)^ModifyOpponentsBuildSpeed\s+(\d+)$`, num("percentage")),
	cmd(catMission, "SetShipType", `^SetShipType\s+([\w-]+)$`, str("type")),
	cmd(catMission, "SetDeckPreparationScript", `^SetDeckPreparationScript\s+"?(\w+)"?$`, qstr("script")),
	cmd(catMission, "SetFlightDeckPreparationScript", `(?i)^SetFlightDeckPreparationScript\s+"?(\w+)"?$`, qstr("script")),
	cmd(catMission, "SetTurnBased", `^SetTurnBased$`),

	cmd(catCredits, "AddCredits", `(?i)^AddCredits\s+(-?\d+)$`, num("amount")),
	cmd(catCredits, "SetCredits", `^SetCredits\s+(-?\d+)$`, num("amount")),
	cmd(catCredits, "AddMissionCredits", `^AddMissionCredits\s+(-?\d+)$`, num("amount")),
	cmd(catCredits, "AddMissionCreditsByResult", `(?i)^AddMissionCreditsByResult$`),
	cmd(catCredits, "SubOpponentCreditsByResult", `(?i)^SubOpponentCreditsByResult$`),

	cmd(catUI, "SetFocus", `(?i)^SetFocus\s+(\w+)$`, str("button")),
	cmd(catUI, "ResetFocus", `(?i)^ResetFocus\s+(\w+)$`, str("button")),
	cmd(catUI, "SetFocusIfCredits", `(?i)^SETFOCUSIFCREDITS\s+(\w+)\s+(\d+)$`, str("button"), num("credits")),
	cmd(catUI, "SetNodeKnown", `(?i)^SETNODEKNOWN\s+(\w+)$`, str("node")),
	cmd(catUI, "AddInfoWindow", `(?i)^AddInfoWindow\s+(".+"|\S+)$`, qstr("image")),
	cmd(catUI, "ShowInfoWindow", `(?i)^SHOWINFOWINDOW\s+(".+"|\S+)$`, qstr("image")),

	cmd(catAchieve, "SetAchievementProgress", `(?i)^SetAchievementProgress\s+(\w+)\s+(\d+)$`, str("achievement"), num("value")),
	cmd(catAchieve, "SetAchievementAttempt", `(?i)^SetAchievementAttempt\s+(\w+)\s+(\d+)$`, str("achievement"), num("value")),
	cmd(catAchieve, "UnlockAchievement", `(?i)^UnlockAchievement\s+(\w+)$`, str("achievement")),
	cmd(catAchieve, "UnlockShipPlan", `(?i)^UnlockShipPlan\s+"?([^"]+)"?$`, qstr("plan")),
	cmd(catAchieve, "UnlockShuttles", `(?i)^UnlockShuttles$`),

	cmd(catHelp, "BuildingHelpScript", `(?i)^BuildingHelpScript\s+(\d+)\s+"?([\\/\w-]+)"?$`, num("value"), str("script")),
	cmd(catHelp, "FlightHelpScript", `^FlightHelpScript\s+"?(\w+)"?$`, str("script")),
	cmd(catHelp, "AlienHelpScript", `^AlienHelpScript\s+"?(\w+)"?$`, str("script")),

	cmd(catStatus, "SetMissionAsFailed", `^SetMissionAsFailed$`),
	cmd(catStatus, "SetMissionAsCompleted", `^SetMissionAsCompleted$`),
	cmd(catStatus, "AllShipsGiveUp", `^AllShipsGiveUp$`),
	cmd(catStatus, "GiveUpFlight", `^GiveUpFlight$`),
	cmd(catStatus, "SetSpecCondition", `^SetSpecCondition\s+"?(\w+)"?$`, qstr("condition")),

	cmd(catState, "SaveState", `(?i)^SAVESTATE$`),
	cmd(catState, "LoadState", `(?i)^LOADSTATE$`),
	cmd(catState, "AddNode", `(?i)^ADDNODE\s+(\w+)$`, str("node")),
	cmd(catState, "QuitCampaign", `(?i)^QUITCAMPAIGN$`),

	cmd(catComplex, "AddPartToShip", `(?i)^AddPartToShip\s+(.+)$`, raw("params")),
	cmd(catComplex, "AddPartToAsideSlot", `(?i)^AddPartToAsideSlot\s+(.+)$`, raw("params")),
	cmd(catComplex, "SetAdvPile", `(?i)^SetAdvPile\s+(.+)$`, raw("params")),
	cmd(catComplex, "SetSecretAdvPile", `(?i)^SetSecretAdvPile\s+(.+)$`, raw("params")),
	cmd(catComplex, "AddShipParts", `(?i)^AddShipParts\s+(.+)$`, qstr("params")),
	cmd(catComplex, "ShowHelpImage", `(?i)^SHOWHELPIMAGE\s+(.+)$`, raw("params")),

	cmd(catDeck, "DeckAddCardType", `(?i)^DeckAddCardType\s+(.+)$`, raw("params")),
	cmd(catDeck, "DeckAddAllCards", `(?i)^DeckAddAllCards$`),
	cmd(catDeck, "DeckAddCardRound", `(?i)^DeckAddCardRound\s+(.+)$`, raw("params")),
	cmd(catDeck, "DeckAddRulePosition", `(?i)^DeckAddRulePosition\s+(.+)$`, raw("params")),
	cmd(catDeck, "DeckAddRuleRange", `(?i)^DeckAddRuleRange\s+(.+)$`, raw("params")),
	cmd(catDeck, "DeckShuffle", `(?i)^DeckShuffle$`),
	cmd(catDeck, "SetSuperCardsCnt", `(?i)^SetSuperCardsCnt\s+(.+)$`, raw("params")),
}

var commandIndex = func() map[string]*CommandSpec {
	m := make(map[string]*CommandSpec, len(commandCatalog))
	for i := range commandCatalog {
		key := strings.ToUpper(commandCatalog[i].Name)
		if _, dup := m[key]; dup {
			panic("script: duplicate command " + commandCatalog[i].Name)
		}
		m[key] = &commandCatalog[i]
	}
	return m
}()

// LookupCommand finds a command spec by name, ignoring case.
func LookupCommand(name string) (*CommandSpec, bool) {
	c, ok := commandIndex[strings.ToUpper(name)]
	return c, ok
}

// Commands returns the command catalog in match order.
func Commands() []CommandSpec {
	out := make([]CommandSpec, len(commandCatalog))
	copy(out, commandCatalog)
	return out
}

// matchCommand returns the first command whose pattern matches line.
func matchCommand(line string) (*CommandSpec, []string) {
	for i := range commandCatalog {
		if m := commandCatalog[i].Pattern.FindStringSubmatch(line); m != nil {
			return &commandCatalog[i], m[1:]
		}
	}
	return nil, nil
}

// HasText reports whether the command carries multilingual text.
func (c *CommandSpec) HasText() bool {
	for _, p := range c.Params {
		if p.Kind == ParamText {
			return true
		}
	}
	return false
}
