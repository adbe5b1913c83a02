/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"gocampaign/internal/script"
	"gocampaign/internal/storage"
	"gocampaign/internal/version"
)

// PDFOptions controls the dialogue sheet layout. Units are millimetres.
//
// The core Helvetica font only covers cp1252. Campaigns with Polish or
// Russian text need FontFile, a TTF with the required glyphs, which is
// embedded as a UTF-8 font.
type PDFOptions struct {
	// Languages selects and orders the text columns. Empty means every
	// language present in the tree, in script.Languages order.
	Languages []string
	Title     string
	FontFile  string
	FontSize  float64
	// Uncompressed leaves page streams readable. Used by tests and for
	// diffing exports.
	Uncompressed bool
}

// SheetRow is one dialogue node with its text per language.
type SheetRow struct {
	Path      string
	Line      int
	Command   string
	Character string
	Text      map[string]string
}

// DialogueRows groups the dialogues of tree by node in document order.
func DialogueRows(tree script.Tree) []SheetRow {
	var rows []SheetRow
	for _, d := range storage.Dialogues(tree) {
		p := d.Path.String()
		if n := len(rows); n == 0 || rows[n-1].Path != p {
			rows = append(rows, SheetRow{Path: p, Line: d.Line, Command: d.Command, Character: d.Character, Text: map[string]string{}})
		}
		r := &rows[len(rows)-1]
		if prev := r.Text[d.Language]; prev != "" {
			r.Text[d.Language] = prev + " / " + d.Text
		} else {
			r.Text[d.Language] = d.Text
		}
	}
	return rows
}

func rowLanguages(rows []SheetRow) []string {
	seen := map[string]bool{}
	for _, r := range rows {
		for l := range r.Text {
			seen[l] = true
		}
	}
	var out []string
	for _, l := range script.Languages {
		if seen[l] {
			out = append(out, l)
			delete(seen, l)
		}
	}
	var rest []string
	for l := range seen {
		rest = append(rest, l)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// WriteDialogueSheet renders the dialogue table of tree as PDF to w.
func WriteDialogueSheet(w io.Writer, name string, tree script.Tree, opt PDFOptions) error {
	rows := DialogueRows(tree)
	langs := opt.Languages
	if len(langs) == 0 {
		langs = rowLanguages(rows)
	}
	if len(langs) == 0 {
		langs = []string{"EN"}
	}
	orientation := "P"
	if len(langs) > 2 {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetCompression(!opt.Uncompressed)
	title := opt.Title
	if title == "" {
		title = name
	}
	pdf.SetTitle(title, true)
	pdf.SetCreator("gocampaign "+version.String(), true)

	family := "Helvetica"
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if opt.FontFile != "" {
		family = "body"
		pdf.AddUTF8Font(family, "", opt.FontFile)
		pdf.AddUTF8Font(family, "B", opt.FontFile)
		tr = func(s string) string { return s }
	}
	size := opt.FontSize
	if size <= 0 {
		size = 9
	}
	lineH := size * 0.5

	const margin = 10.0
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pageW, pageH := pdf.GetPageSize()
	usable := pageW - 2*margin

	// Fixed columns for line and speaker, the rest shared by languages.
	widths := []float64{12, 24}
	headings := []string{"Line", "Who"}
	textW := (usable - 36) / float64(len(langs))
	for _, l := range langs {
		widths = append(widths, textW)
		headings = append(headings, l)
	}

	header := func() {
		pdf.AddPage()
		pdf.SetFont(family, "B", size+3)
		pdf.CellFormat(usable, lineH*2, tr(title), "", 1, "L", false, 0, "")
		pdf.SetFont(family, "B", size)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range headings {
			pdf.CellFormat(widths[i], lineH*1.6, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont(family, "", size)
	}
	header()

	for _, r := range rows {
		cells := []string{strconv.Itoa(r.Line), r.Character}
		if r.Command == "OPT" {
			cells[1] = "[OPT]"
		}
		for _, l := range langs {
			cells = append(cells, r.Text[l])
		}
		split := make([][][]byte, len(cells))
		maxLines := 1
		for i, c := range cells {
			split[i] = pdf.SplitLines([]byte(tr(c)), widths[i]-2)
			if n := len(split[i]); n > maxLines {
				maxLines = n
			}
		}
		h := float64(maxLines)*lineH + 1
		_, y := pdf.GetXY()
		if y+h > pageH-margin {
			header()
			_, y = pdf.GetXY()
		}
		x := margin
		for i := range cells {
			pdf.Rect(x, y, widths[i], h, "D")
			for j, ln := range split[i] {
				pdf.SetXY(x+1, y+0.5+float64(j)*lineH)
				pdf.CellFormat(widths[i]-2, lineH, string(ln), "", 0, "L", false, 0, "")
			}
			x += widths[i]
		}
		pdf.SetXY(margin, y+h)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

// DialogueSheetPDF writes the dialogue sheet of a loaded script to outPath.
func DialogueSheetPDF(ld *storage.Loaded, outPath string, opt PDFOptions) error {
	if ld == nil {
		return fmt.Errorf("no script loaded")
	}
	if opt.Title == "" {
		opt.Title = strings.TrimSpace(string(ld.Ref.Kind) + " " + ld.Ref.Name)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	if err := WriteDialogueSheet(f, ld.Ref.Name, ld.Tree, opt); err != nil {
		_ = f.Close()
		return fmt.Errorf("write pdf: %w", err)
	}
	return f.Close()
}
