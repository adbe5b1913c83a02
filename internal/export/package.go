/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	applog "gocampaign/internal/log"
	"gocampaign/internal/roundtrip"
	"gocampaign/internal/storage"
	"gocampaign/internal/version"
)

// ManifestName is the archive entry holding the package manifest.
const ManifestName = "manifest.json"

// ManifestFormat identifies package archives.
const ManifestFormat = "gocampaign-package"

// PackageOptions controls Package.
type PackageOptions struct {
	// Languages restricts the packaged languages. Empty means all configured.
	Languages []string
	// Check loads every script and records merge, parse and round-trip
	// problems in the manifest.
	Check bool
	// Strict makes Package fail when Check found a problem.
	Strict bool
	// Now overrides the creation time. Used by tests.
	Now func() time.Time
}

// Manifest describes a campaign package.
type Manifest struct {
	Format    string          `json:"format"`
	Version   int             `json:"version"`
	Tool      string          `json:"tool"`
	Created   time.Time       `json:"created"`
	Reference string          `json:"reference"`
	Languages []string        `json:"languages"`
	Files     []ManifestFile  `json:"files"`
	Scripts   []ManifestEntry `json:"scripts,omitempty"`
}

// ManifestFile is one packaged file.
type ManifestFile struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
}

// ManifestEntry records the check result of one script.
type ManifestEntry struct {
	Kind      string   `json:"kind"`
	Name      string   `json:"name"`
	File      string   `json:"file"`
	Languages []string `json:"languages"`
	Commands  int      `json:"commands"`
	Dialogues int      `json:"dialogues"`
	Problems  []string `json:"problems,omitempty"`
}

// ErrPackageCheck is returned in strict mode when a script has problems.
var ErrPackageCheck = errors.New("package check failed")

// Package writes the campaign files of ws into a zip archive at outPath.
// Entries keep their path relative to the game root.
func Package(ctx context.Context, ws *storage.Workspace, outPath string, opt PackageOptions) (*Manifest, error) {
	l, done := applog.WithOperation(applog.WithComponent("export"), "package")
	defer done()
	now := time.Now
	if opt.Now != nil {
		now = opt.Now
	}
	langs := opt.Languages
	if len(langs) == 0 {
		langs = ws.Languages()
	}
	m := &Manifest{
		Format:    ManifestFormat,
		Version:   1,
		Tool:      "gocampaign " + version.String(),
		Created:   now().UTC(),
		Reference: ws.Reference(),
		Languages: langs,
	}

	var problems int
	if opt.Check {
		entries, err := checkScripts(ctx, ws)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			problems += len(e.Problems)
		}
		m.Scripts = entries
		if opt.Strict && problems > 0 {
			return m, fmt.Errorf("%w: %d problem(s)", ErrPackageCheck, problems)
		}
	}

	zw, f, err := createZip(outPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	for _, lang := range langs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := campaignFiles(ws, lang)
		if err != nil {
			return nil, err
		}
		for _, p := range files {
			mf, err := addFileEntry(zw, ws.Root, p, lang)
			if err != nil {
				return nil, fmt.Errorf("zip add %s: %w", p, err)
			}
			m.Files = append(m.Files, mf)
		}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("build manifest: %w", err)
	}
	if err := addZipFile(zw, ManifestName, data); err != nil {
		return nil, fmt.Errorf("zip add manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close file: %w", err)
	}
	l.InfoContext(ctx, "package written", slog.String("path", outPath), slog.Int("files", len(m.Files)), slog.Int("problems", problems))
	return m, nil
}

// campaignFiles lists the script files and missions file of lang.
func campaignFiles(ws *storage.Workspace, lang string) ([]string, error) {
	var out []string
	entries, err := os.ReadDir(ws.ScriptsDir(lang))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read scripts dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			out = append(out, filepath.Join(ws.ScriptsDir(lang), e.Name()))
		}
	}
	sort.Strings(out)
	if _, err := os.Stat(ws.MissionsPath(lang)); err == nil {
		out = append(out, ws.MissionsPath(lang))
	}
	return out, nil
}

func checkScripts(ctx context.Context, ws *storage.Workspace) ([]ManifestEntry, error) {
	refs, err := ws.ListScripts(ctx)
	if err != nil {
		return nil, err
	}
	opts := ws.Config().ParserOptions(ws.Reference())
	out := make([]ManifestEntry, 0, len(refs))
	for _, ref := range refs {
		ld, err := ws.LoadRef(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", ref, err)
		}
		e := ManifestEntry{Kind: string(ref.Kind), Name: ref.Name, File: ref.File, Languages: ld.Languages,
			Commands: ld.Stats.Commands, Dialogues: ld.Stats.Dialogues}
		if ld.MergeErr != nil {
			e.Problems = append(e.Problems, ld.MergeErr.Error())
		}
		if err := ld.Err(); err != nil {
			e.Problems = append(e.Problems, strings.Split(err.Error(), "\n")...)
		}
		if lang, res := roundtrip.CheckLanguages(ld.Tree, ld.Languages, opts); !res.IsMatch {
			e.Problems = append(e.Problems, fmt.Sprintf("%s: %s", lang, res))
		}
		out = append(out, e)
	}
	return out, nil
}

func createZip(outPath string) (*zip.Writer, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, fmt.Errorf("create zip: %w", err)
	}
	return zip.NewWriter(f), f, nil
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func addFileEntry(zw *zip.Writer, root, p, lang string) (ManifestFile, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return ManifestFile{}, err
	}
	name := filepath.ToSlash(rel)
	src, err := os.Open(p)
	if err != nil {
		return ManifestFile{}, err
	}
	defer func() { _ = src.Close() }()
	st, err := src.Stat()
	if err != nil {
		return ManifestFile{}, err
	}
	hdr, err := zip.FileInfoHeader(st)
	if err != nil {
		return ManifestFile{}, err
	}
	hdr.Name, hdr.Method = name, zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return ManifestFile{}, err
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, h), src)
	if err != nil {
		return ManifestFile{}, err
	}
	return ManifestFile{Path: name, Language: lang, Size: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// ReadManifest opens a package and decodes its manifest.
func ReadManifest(pkgPath string) (*Manifest, error) {
	zr, err := zip.OpenReader(pkgPath)
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	defer func() { _ = zr.Close() }()
	return readManifest(&zr.Reader)
}

func readManifest(zr *zip.Reader) (*Manifest, error) {
	for _, f := range zr.File {
		if f.Name != ManifestName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()
		var m Manifest
		if err := json.NewDecoder(rc).Decode(&m); err != nil {
			return nil, fmt.Errorf("decode manifest: %w", err)
		}
		if m.Format != ManifestFormat {
			return nil, fmt.Errorf("not a campaign package: format %q", m.Format)
		}
		return &m, nil
	}
	return nil, fmt.Errorf("package has no %s", ManifestName)
}

// VerifyPackage checks every file listed in the manifest against its size
// and checksum. It returns the manifest and the list of mismatching paths.
func VerifyPackage(pkgPath string) (*Manifest, []string, error) {
	zr, err := zip.OpenReader(pkgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open package: %w", err)
	}
	defer func() { _ = zr.Close() }()
	m, err := readManifest(&zr.Reader)
	if err != nil {
		return nil, nil, err
	}
	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		byName[path.Clean(f.Name)] = f
	}
	var bad []string
	for _, mf := range m.Files {
		f, ok := byName[path.Clean(mf.Path)]
		if !ok {
			bad = append(bad, mf.Path)
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return m, nil, err
		}
		h := sha256.New()
		n, err := io.Copy(h, rc)
		_ = rc.Close()
		if err != nil {
			return m, nil, err
		}
		if n != mf.Size || hex.EncodeToString(h.Sum(nil)) != mf.SHA256 {
			bad = append(bad, mf.Path)
		}
	}
	return m, bad, nil
}
