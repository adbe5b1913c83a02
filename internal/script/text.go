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

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const (
	openQuote  = '“'
	closeQuote = '”'
)

// accented lists the lowercase vowels (and ñ) that are capitalized at the
// start of a sentence when text is written back.
const accented = "àèéìòùáíóúâêîôûäëïöüãõñ"

// NormalizeText prepares dialogue text for a quoted DSL field: straight
// double quotes become alternating typographic quotes, and an accented
// lowercase vowel at the start of the text or after ". " is capitalized.
// Input is brought to NFC first so decomposed accents are recognized.
func NormalizeText(s, lang string) string {
	if s == "" {
		return s
	}
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	quotes := 0
	for _, r := range s {
		if r == '"' {
			if quotes%2 == 0 {
				b.WriteRune(openQuote)
			} else {
				b.WriteRune(closeQuote)
			}
			quotes++
			continue
		}
		b.WriteRune(r)
	}

	rs := []rune(b.String())
	var caser *cases.Caser
	for i, r := range rs {
		sentenceStart := i == 0 || (i >= 2 && rs[i-2] == '.' && rs[i-1] == ' ')
		if !sentenceStart || !strings.ContainsRune(accented, r) {
			continue
		}
		if caser == nil {
			c := cases.Upper(languageTag(lang))
			caser = &c
		}
		if up := []rune(caser.String(string(r))); len(up) == 1 {
			rs[i] = up[0]
		}
	}
	return string(rs)
}

func languageTag(lang string) language.Tag {
	t, err := language.Parse(strings.ToLower(lang))
	if err != nil {
		return language.Und
	}
	return t
}

// ValidLanguage reports whether code is a well-formed language code.
func ValidLanguage(code string) bool {
	if code == "" {
		return false
	}
	_, err := language.Parse(strings.ToLower(code))
	return err == nil
}
