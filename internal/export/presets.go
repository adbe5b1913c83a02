/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders campaign scripts for review and packages campaign
// files for distribution.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"gocampaign/internal/storage"
)

// PresetName represents a named export preset.
type PresetName string

const (
	// PresetReview writes one dialogue sheet PDF per script.
	PresetReview PresetName = "review"
	// PresetRelease writes a checked zip package.
	PresetRelease PresetName = "release"
)

// BatchOptions controls batch export across formats and scripts.
//
// Path semantics:
//   - If OutDir is empty or relative, it is created under <root>/exports/<preset>/.
//   - PDF sheets are named <kind>-<name>.pdf in a pdf/ subfolder.
//   - The package is <dirname of root>.zip in OutDir.
type BatchOptions struct {
	Preset   PresetName
	Formats  []string // allowed: pdf, zip; empty means preset defaults
	Scripts  []string // script or mission names; empty means all
	OutDir   string
	FontFile string
}

// BatchResult lists the files written.
type BatchResult struct {
	Files    []string
	Manifest *Manifest
}

// BatchExport runs exports according to the given preset.
func BatchExport(ctx context.Context, ws *storage.Workspace, opt BatchOptions) (*BatchResult, error) {
	if ws == nil {
		return nil, fmt.Errorf("workspace is nil")
	}
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	baseOut := opt.OutDir
	if baseOut == "" {
		baseOut = string(opt.Preset)
		if baseOut == "" {
			baseOut = "default"
		}
	}
	if !filepath.IsAbs(baseOut) {
		baseOut = filepath.Join(ws.Root, "exports", baseOut)
	}

	refs, err := ws.ListScripts(ctx)
	if err != nil {
		return nil, err
	}
	if len(opt.Scripts) > 0 {
		want := map[string]bool{}
		for _, s := range opt.Scripts {
			want[s] = true
		}
		kept := refs[:0:0]
		for _, r := range refs {
			if want[r.Name] {
				kept = append(kept, r)
				delete(want, r.Name)
			}
		}
		for name := range want {
			return nil, fmt.Errorf("script %s: %w", name, storage.ErrNotFound)
		}
		refs = kept
	}

	res := &BatchResult{}
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "pdf":
			for _, ref := range refs {
				ld, err := ws.LoadRef(ctx, ref)
				if err != nil {
					return res, fmt.Errorf("load %s: %w", ref, err)
				}
				out := filepath.Join(baseOut, "pdf", fmt.Sprintf("%s-%s.pdf", ref.Kind, ref.Name))
				if err := DialogueSheetPDF(ld, out, PDFOptions{FontFile: opt.FontFile}); err != nil {
					return res, fmt.Errorf("pdf %s: %w", ref.Name, err)
				}
				res.Files = append(res.Files, out)
			}
		case "zip":
			out := filepath.Join(baseOut, filepath.Base(filepath.Clean(ws.Root))+".zip")
			m, err := Package(ctx, ws, out, PackageOptions{Check: true, Strict: presetStrict(opt.Preset)})
			if err != nil {
				return res, fmt.Errorf("package: %w", err)
			}
			res.Files = append(res.Files, out)
			res.Manifest = m
		default:
			return res, fmt.Errorf("unknown format: %s", f)
		}
	}
	return res, nil
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetReview:
		return []string{"pdf"}
	case PresetRelease:
		return []string{"zip"}
	default:
		return []string{"pdf", "zip"}
	}
}

func presetStrict(p PresetName) bool { return p == PresetRelease }
