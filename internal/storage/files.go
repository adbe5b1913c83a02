/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

const (
	// WorkDirName holds derived data (index, backups, crash reports) under
	// the game root.
	WorkDirName    = ".gcs"
	BackupsDirName = "backups"

	backupStamp = "20060102-150405"
)

// writeFileAtomic writes data to a temp file next to path and renames it
// over path, so readers never see a half-written script file.
func writeFileAtomic(path string, data []byte) error {
	temp, err := stageFile(path, data)
	if err != nil {
		return err
	}
	return commitFile(temp, path)
}

// stageFile writes data to a synced temp file in the directory of path and
// returns its name. commitFile moves it into place.
func stageFile(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure dir: %w", err)
	}
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if err := writeFileSync(temp, data); err != nil {
		_ = os.Remove(temp)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return temp, nil
}

// commitFile renames temp over path. Rename replaces the target atomically
// on POSIX; Windows refuses to rename over an existing file, so the target
// goes first there.
func commitFile(temp, path string) error {
	if runtime.GOOS == "windows" {
		if _, err := os.Stat(path); err == nil {
			_ = os.Remove(path)
		}
	}
	if err := os.Rename(temp, path); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// backupDir returns the directory receiving backups of files in lang.
func backupDir(root, lang string) string {
	return filepath.Join(root, WorkDirName, BackupsDirName, lang)
}

// backupFile copies path into the language backup directory under a
// timestamped name. It returns "" when path does not exist yet.
func backupFile(root, lang, path string, now time.Time) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	bak := filepath.Join(backupDir(root, lang), fmt.Sprintf("%s.%s.bak", filepath.Base(path), now.Format(backupStamp)))
	if err := copyFile(path, bak); err != nil {
		return "", fmt.Errorf("backup %s: %w", filepath.Base(path), err)
	}
	return bak, nil
}

// ListBackups returns the backups of the file named base in lang, oldest
// first.
func ListBackups(root, lang, base string) ([]string, error) {
	ents, err := os.ReadDir(backupDir(root, lang))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, base+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(backupDir(root, lang), name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

// RestoreLatestBackup replaces dst with the newest backup of its file in
// lang. The current content is backed up first so the restore can itself
// be undone.
func RestoreLatestBackup(root, lang, dst string) (string, error) {
	list, err := ListBackups(root, lang, filepath.Base(dst))
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", fmt.Errorf("restore %s: %w", filepath.Base(dst), ErrNotFound)
	}
	latest := list[len(list)-1]
	data, err := os.ReadFile(latest)
	if err != nil {
		return "", fmt.Errorf("read latest backup: %w", err)
	}
	// A distinct stamp keeps the restored-from file apart from the one we
	// are about to write.
	if _, err := backupFile(root, lang, dst, time.Now().Add(time.Second)); err != nil {
		return "", err
	}
	if err := writeFileAtomic(dst, data); err != nil {
		return "", err
	}
	return latest, nil
}
