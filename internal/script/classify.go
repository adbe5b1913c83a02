/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

// LineClass is the category the classifier assigns to a line.
type LineClass int

const (
	ClassUnknown LineClass = iota
	ClassOpen
	ClassClose
	ClassBranch
	ClassCommand
)

func (c LineClass) String() string {
	switch c {
	case ClassOpen:
		return "open"
	case ClassClose:
		return "close"
	case ClassBranch:
		return "branch"
	case ClassCommand:
		return "command"
	}
	return "unknown"
}

// Classified is the result of classifying one line.
type Classified struct {
	Class    LineClass
	Family   Family // open, close and branch lines
	Variant  string // open lines
	Marker   string // branch lines
	Command  *CommandSpec
	Captures []string
	Raw      string
	// Stray is set on unknown lines that are close or branch markers of a
	// family other than the open one.
	Stray bool
}

// Classify assigns line to exactly one class. open is the family of the
// innermost open container, FamilyNone at top level. line must already be
// trimmed, non-blank and not a comment.
//
// Order: container open patterns, the close marker of the open family, the
// branch markers of the open family, atomic commands, unknown.
func Classify(line string, open Family) Classified {
	if v, caps := matchOpen(line); v != nil {
		return Classified{Class: ClassOpen, Family: v.family, Variant: v.variant, Captures: caps, Raw: line}
	}
	if open != FamilyNone {
		if line == open.CloseMarker() {
			return Classified{Class: ClassClose, Family: open, Raw: line}
		}
		for _, m := range open.BranchMarkers() {
			if line == m {
				return Classified{Class: ClassBranch, Family: open, Marker: m, Raw: line}
			}
		}
	}
	if c, caps := matchCommand(line); c != nil {
		return Classified{Class: ClassCommand, Command: c, Captures: caps, Raw: line}
	}
	f, stray := structuralFamily(line)
	return Classified{Class: ClassUnknown, Family: f, Raw: line, Stray: stray}
}
