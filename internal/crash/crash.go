/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns panics in the CLI into a report file and, when an
// edit was in progress, a JSON dump of the tree being edited.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "gocampaign/internal/log"
	"gocampaign/internal/script"
	"gocampaign/internal/storage"
	"gocampaign/internal/version"
)

// DirName is the crash folder below the workspace directory.
const DirName = "crash"

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Context describes what was running when a panic happened. Tree, when set,
// returns the tree being edited so it can be dumped.
type Context struct {
	Root    string
	Command string
	Tree    func() script.Tree
}

// Recover captures a panic, logs it with its stack, writes a report file
// and dumps the tree of c if any, then exits with code 2.
//
// Usage: defer crash.Recover(c)
func Recover(c *Context) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		now := time.Now()
		reportPath, err := writeReport(c, r, stack, now)
		if err != nil {
			l.Error("crash report failed", slog.Any("err", err))
		}
		if c != nil && c.Tree != nil {
			if path, err := dumpTree(c, now); err != nil {
				l.Error("tree dump failed", slog.Any("err", err))
			} else {
				l.Info("tree dump written", slog.String("path", path))
			}
		}

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		exitFn(2)
	}
}

// Dir returns the folder reports are written to for c.
func Dir(c *Context) string {
	if c != nil && c.Root != "" {
		return filepath.Join(c.Root, storage.WorkDirName, DirName)
	}
	return os.TempDir()
}

func writeReport(c *Context, panicVal any, stack []byte, now time.Time) (string, error) {
	dir := Dir(c)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", now.Format("20060102-150405")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "gocampaign crash report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", now.Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if c != nil {
		if c.Root != "" {
			_, _ = fmt.Fprintf(&buf, "GameRoot: %s\n", c.Root)
		}
		if c.Command != "" {
			_, _ = fmt.Fprintf(&buf, "Command: %s\n", c.Command)
		}
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()
	return path, nil
}

// dumpTree writes the tree of c next to the report. The tree callback may
// itself panic when the state is broken; that is reported as an error.
func dumpTree(c *Context, now time.Time) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tree callback panicked: %v", r)
		}
	}()
	data, err := script.MarshalTree(c.Tree())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(Dir(c), 0o755); err != nil {
		return "", err
	}
	path = filepath.Join(Dir(c), fmt.Sprintf("crash-%s.tree.json", now.Format("20060102-150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
