/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage reads and writes campaign script files and keeps the
// per-workspace SQLite index at <root>/.gcs/index.sqlite.
//
// Script files are the canonical data. Every language lives in its own
// directory (campaign/campaignScripts<LANG>) and is merged into one
// multilingual tree on load. Saves are refused unless the tree survives a
// serialize/parse round trip in every language; existing files are copied
// to .gcs/backups before they are replaced.
//
// The index is derived from the script files and can be deleted at any time.
package storage
