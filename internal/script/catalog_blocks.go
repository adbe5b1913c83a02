/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import "regexp"

// Family groups the container variants that share a close marker.
type Family int

const (
	FamilyNone Family = iota
	FamilyScript
	FamilyMission
	FamilyIf
	FamilyMenu
	FamilyOption
	FamilyLoop
	FamilyParallel
	FamilySubScript
	FamilyBuild
	FamilyFlight
)

type familyDef struct {
	name    string
	close   string
	markers []string
}

var families = [...]familyDef{
	FamilyNone:      {name: "none"},
	FamilyScript:    {name: "SCRIPT", close: "END_OF_SCRIPT"},
	FamilyMission:   {name: "MISSION", close: "END_OF_MISSION", markers: []string{"FINISH_MISSION"}},
	FamilyIf:        {name: "IF", close: "END_OF_IF", markers: []string{"ELSE"}},
	FamilyMenu:      {name: "MENU", close: "END_OF_MENU"},
	FamilyOption:    {name: "OPT", close: "END_OF_OPT"},
	FamilyLoop:      {name: "LOOP", close: "END_OF_LOOP"},
	FamilyParallel:  {name: "PARALLEL", close: "END_OF_PARALLEL"},
	FamilySubScript: {name: "SUB_SCRIPT", close: "END_OF_SUB_SCRIPT"},
	FamilyBuild:     {name: "BUILD", close: "END_BUILDING", markers: []string{"START_BUILDING"}},
	FamilyFlight:    {name: "FLIGHT", close: "END_FLIGHT", markers: []string{"START_FLIGHT", "EVALUATE_FLIGHT"}},
}

func (f Family) String() string { return families[f].name }

// CloseMarker returns the literal that closes a container of this family.
func (f Family) CloseMarker() string { return families[f].close }

// BranchMarkers returns the literals that switch the active branch of a
// container of this family.
func (f Family) BranchMarkers() []string { return families[f].markers }

const (
	markerElse          = "ELSE"
	markerFinish        = "FINISH_MISSION"
	markerStartBuilding = "START_BUILDING"
	markerStartFlight   = "START_FLIGHT"
	markerEvaluate      = "EVALUATE_FLIGHT"

	headerBuild  = "BUILD"
	headerFlight = "FLIGHT"
)

// blockVariant is one open pattern. The variant name is what the parser
// switches on when building the node.
type blockVariant struct {
	family  Family
	variant string
	pattern *regexp.Regexp
}

// Block variant names.
const (
	varScript      = "SCRIPT"
	varMission     = "MISSION"
	varIf          = string(IfSemaphore)
	varIfNot       = string(IfNotSemaphore)
	varIfSystem    = string(IfSystem)
	varIfCredits   = string(IfHasCredits)
	varIfIs        = string(IfIs)
	varIfMin       = string(IfMin)
	varIfMax       = string(IfMax)
	varIfOrder     = string(IfOrder)
	varIfProb      = string(IfProbability)
	varIfResultIs  = string(IfMissionResIs)
	varIfResultMin = string(IfMissionResMin)
	varMenu        = "MENU"
	varOpt         = string(OptSimple)
	varOptIf       = string(OptIf)
	varOptIfNot    = string(OptIfNot)
	varLoop        = "LOOP"
	varParallel    = "PARALLEL"
	varSubScript   = "SUB_SCRIPT"
	varBuild       = "BUILD"
	varFlight      = "FLIGHT"
)

// blockCatalog is ordered; the first matching pattern wins. Patterns of
// different variants never match the same line (see catalog tests).
var blockCatalog = []blockVariant{
	{FamilyScript, varScript, regexp.MustCompile(`^SCRIPT\s+(.+)$`)},
	{FamilyMission, varMission, regexp.MustCompile(`^MISSION\s+(.+)$`)},

	{FamilyIf, varIf, regexp.MustCompile(`^IF\s+(.+)$`)},
	{FamilyIf, varIfNot, regexp.MustCompile(`^IFNOT\s+(.+)$`)},
	{FamilyIf, varIfSystem, regexp.MustCompile(`^IF_(DEBUG|FROM_CAMPAIGN|MISSION_WON|TUTORIAL_SEEN)$`)},
	{FamilyIf, varIfCredits, regexp.MustCompile(`^IF_HAS_CREDITS\s+(\d+)$`)},
	{FamilyIf, varIfIs, regexp.MustCompile(`^IF_IS\s+(\w+)\s+(\d+)$`)},
	{FamilyIf, varIfMin, regexp.MustCompile(`^IF_MIN\s+(\w+)\s+(\d+)$`)},
	{FamilyIf, varIfMax, regexp.MustCompile(`^IF_MAX\s+(\w+)\s+(\d+)$`)},
	{FamilyIf, varIfOrder, regexp.MustCompile(`^IF_ORDER\s+(.+)$`)},
	{FamilyIf, varIfProb, regexp.MustCompile(`^IF_PROB\s+(\d+)$`)},
	{FamilyIf, varIfResultIs, regexp.MustCompile(`^(?:IfMissionResultIs|IFMISSIONRESULTIS)\s+(-?\d+)$`)},
	{FamilyIf, varIfResultMin, regexp.MustCompile(`^(?:IfMissionResultMin|IFMISSIONRESULTMIN)\s+(-?\d+)$`)},

	{FamilyMenu, varMenu, regexp.MustCompile(`^MENU$`)},
	{FamilyOption, varOpt, regexp.MustCompile(`^OPT\s+"(.+)"$`)},
	{FamilyOption, varOptIf, regexp.MustCompile(`^OPT_IF\s+(\w+)\s+"(.+)"$`)},
	{FamilyOption, varOptIfNot, regexp.MustCompile(`^OPT_IFNOT\s+(\w+)\s+"(.+)"$`)},

	{FamilyLoop, varLoop, regexp.MustCompile(`^LOOP\s+(\d+)$`)},
	{FamilyParallel, varParallel, regexp.MustCompile(`^PARALLEL$`)},
	{FamilySubScript, varSubScript, regexp.MustCompile(`^BEGIN_SUB_SCRIPT\s+(\w+)$`)},

	{FamilyBuild, varBuild, regexp.MustCompile(`^INIT_BUILD$`)},
	{FamilyFlight, varFlight, regexp.MustCompile(`^INIT_FLIGHT$`)},
}

// matchOpen returns the first block variant whose open pattern matches line.
func matchOpen(line string) (*blockVariant, []string) {
	for i := range blockCatalog {
		if m := blockCatalog[i].pattern.FindStringSubmatch(line); m != nil {
			return &blockCatalog[i], m[1:]
		}
	}
	return nil, nil
}

// structuralFamily reports the family owning a close or branch marker literal.
func structuralFamily(line string) (Family, bool) {
	for f := FamilyScript; f <= FamilyFlight; f++ {
		if families[f].close == line {
			return f, true
		}
		for _, m := range families[f].markers {
			if m == line {
				return f, true
			}
		}
	}
	return FamilyNone, false
}

// isClose reports whether line closes any container family.
func isClose(line string) bool {
	for f := FamilyScript; f <= FamilyFlight; f++ {
		if families[f].close == line {
			return true
		}
	}
	return false
}
