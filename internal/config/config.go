/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	applog "gocampaign/internal/log"
	"gocampaign/internal/script"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user configuration persisted as YAML in the user config
// directory. Environment variables override it at runtime and are never
// written back.
//
// config_version: bump when the structure changes incompatibly.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Parser        ParserConfig  `yaml:"parser"`
	Index         IndexConfig   `yaml:"index"`
	Backend       BackendConfig `yaml:"backend"`
	Logging       LoggingConfig `yaml:"logging"`
}

type GeneralConfig struct {
	// GameRoot is the game installation or mod folder holding campaign/.
	GameRoot          string   `yaml:"game_root"`
	ReferenceLanguage string   `yaml:"reference_language"`
	Languages         []string `yaml:"languages"`
}

type ParserConfig struct {
	MaxDepth int `yaml:"max_depth"`
	// StrictSave refuses a save when the tree fails the round-trip check in
	// any configured language. Without it the mismatch is only logged.
	StrictSave   bool `yaml:"strict_save"`
	KeepComments bool `yaml:"keep_comments"`
}

type IndexConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path defaults to <game_root>/.gcs/index.sqlite.
	Path string `yaml:"path"`
	// SnapshotsKeep is how many snapshots per script PruneSnapshots retains.
	SnapshotsKeep int `yaml:"snapshots_keep"`
}

type BackendConfig struct {
	Enabled   bool   `yaml:"enabled"`
	DSN       string `yaml:"dsn"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General: GeneralConfig{
			ReferenceLanguage: script.ReferenceLanguage,
			Languages:         append([]string(nil), script.Languages...),
		},
		Parser:  ParserConfig{MaxDepth: script.DefaultMaxDepth, StrictSave: true},
		Index:   IndexConfig{Enabled: true, SnapshotsKeep: 20},
		Backend: BackendConfig{TimeoutMs: 15000},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvGameRoot          = "GCS_GAME_ROOT"
	EnvReferenceLanguage = "GCS_REFERENCE_LANGUAGE"
	EnvLanguages         = "GCS_LANGUAGES" // comma separated
	EnvParserMaxDepth    = "GCS_PARSER_MAX_DEPTH"
	EnvIndexPath         = "GCS_INDEX_PATH"
	EnvBackendDSN        = "GCS_BACKEND_DSN"
	EnvBackendEnabled    = "GCS_BACKEND_ENABLED"
	EnvLogLevel          = "GCS_LOG_LEVEL"
	EnvLogFormat         = "GCS_LOG_FORMAT"
	EnvLogSource         = "GCS_LOG_SOURCE"
	EnvLogFile           = "GCS_LOG_FILE"
)

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "GoCampaign")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "GoCampaign")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "gocampaign")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "gocampaign")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file if present, applies defaults and merges
// environment overrides.
func Load() (AppConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), err
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit file. A missing file yields defaults; a
// malformed one is an error.
func LoadFile(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg, data)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes cfg to the user config file.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

// SaveFile writes cfg as YAML to path.
func SaveFile(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// mergeInto copies the values set in the file over dst. raw is the file
// content; booleans are taken only when their key is present so defaults
// that are true survive files written by older versions.
func mergeInto(dst, src *AppConfig, raw []byte) {
	present := presentKeys(raw)
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if v := strings.TrimSpace(src.General.GameRoot); v != "" {
		dst.General.GameRoot = v
	}
	if v := strings.TrimSpace(src.General.ReferenceLanguage); v != "" {
		dst.General.ReferenceLanguage = strings.ToUpper(v)
	}
	if len(src.General.Languages) > 0 {
		dst.General.Languages = normalizeLanguages(src.General.Languages)
	}
	if src.Parser.MaxDepth != 0 {
		dst.Parser.MaxDepth = src.Parser.MaxDepth
	}
	if present["parser.strict_save"] {
		dst.Parser.StrictSave = src.Parser.StrictSave
	}
	dst.Parser.KeepComments = src.Parser.KeepComments
	if present["index.enabled"] {
		dst.Index.Enabled = src.Index.Enabled
	}
	if v := strings.TrimSpace(src.Index.Path); v != "" {
		dst.Index.Path = v
	}
	if src.Index.SnapshotsKeep != 0 {
		dst.Index.SnapshotsKeep = src.Index.SnapshotsKeep
	}
	dst.Backend.Enabled = src.Backend.Enabled
	if v := strings.TrimSpace(src.Backend.DSN); v != "" {
		dst.Backend.DSN = v
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	if v := strings.TrimSpace(src.Logging.Level); v != "" {
		dst.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Logging.Format); v != "" {
		dst.Logging.Format = strings.ToLower(v)
	}
	dst.Logging.Source = src.Logging.Source
	if v := strings.TrimSpace(src.Logging.File); v != "" {
		dst.Logging.File = v
	}
}

// presentKeys lists "section.key" for every second-level key in a YAML
// document.
func presentKeys(raw []byte) map[string]bool {
	var doc map[string]map[string]any
	out := map[string]bool{}
	if yaml.Unmarshal(raw, &doc) != nil {
		return out
	}
	for section, keys := range doc {
		for k := range keys {
			out[section+"."+k] = true
		}
	}
	return out
}

func normalizeLanguages(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, l := range in {
		l = strings.ToUpper(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvGameRoot)); v != "" {
		cfg.General.GameRoot = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvReferenceLanguage)); v != "" {
		cfg.General.ReferenceLanguage = strings.ToUpper(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLanguages)); v != "" {
		cfg.General.Languages = normalizeLanguages(strings.Split(v, ","))
	}
	if v := strings.TrimSpace(os.Getenv(EnvParserMaxDepth)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Parser.MaxDepth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvIndexPath)); v != "" {
		cfg.Index.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendDSN)); v != "" {
		cfg.Backend.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendEnabled)); v != "" {
		cfg.Backend.Enabled = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by the
// environment.
func EnvOverrideFor(key string) (string, bool) {
	names := map[string]string{
		"general.game_root":          EnvGameRoot,
		"general.reference_language": EnvReferenceLanguage,
		"general.languages":          EnvLanguages,
		"parser.max_depth":           EnvParserMaxDepth,
		"index.path":                 EnvIndexPath,
		"backend.dsn":                EnvBackendDSN,
		"backend.enabled":            EnvBackendEnabled,
		"logging.level":              EnvLogLevel,
		"logging.format":             EnvLogFormat,
		"logging.source":             EnvLogSource,
		"logging.file":               EnvLogFile,
	}
	if env, ok := names[key]; ok && os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}

// Validate reports configuration that cannot work.
func (c AppConfig) Validate() error {
	var errs []error
	if len(c.General.Languages) == 0 {
		errs = append(errs, errors.New("general.languages is empty"))
	}
	hasRef := false
	for _, l := range c.General.Languages {
		if !script.ValidLanguage(l) {
			errs = append(errs, fmt.Errorf("general.languages: invalid language %q", l))
		}
		if l == c.General.ReferenceLanguage {
			hasRef = true
		}
	}
	if !hasRef {
		errs = append(errs, fmt.Errorf("general.reference_language %q is not in general.languages", c.General.ReferenceLanguage))
	}
	if c.Parser.MaxDepth < 0 {
		errs = append(errs, errors.New("parser.max_depth must not be negative"))
	}
	if c.Backend.Enabled && strings.TrimSpace(c.Backend.DSN) == "" {
		errs = append(errs, errors.New("backend.enabled requires backend.dsn"))
	}
	return errors.Join(errs...)
}

// ParserOptions returns parser options for lang.
func (c AppConfig) ParserOptions(lang string) script.Options {
	return script.Options{
		Language:          lang,
		ReferenceLanguage: c.General.ReferenceLanguage,
		MaxDepth:          c.Parser.MaxDepth,
		KeepComments:      c.Parser.KeepComments,
	}
}

// IndexPath returns the index database path for the configured game root.
func (c AppConfig) IndexPath() string {
	if c.Index.Path != "" {
		return c.Index.Path
	}
	return filepath.Join(c.General.GameRoot, ".gcs", "index.sqlite")
}

// Timeout returns the backend timeout.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// Options converts the logging section to logger options.
func (l LoggingConfig) Options() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}
