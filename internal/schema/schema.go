/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package schema checks exported script trees against the JSON schema of the
// tree format. Tools that edit the JSON form outside this module validate it
// here before feeding it back to UnmarshalTree.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"gocampaign/internal/script"
)

//go:embed tree.schema.json
var treeSchema []byte

// Schema returns the raw tree schema document.
func Schema() []byte { return append([]byte(nil), treeSchema...) }

var compiled = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(treeSchema))
})

// ValidationError lists every schema violation of a document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tree does not conform to schema: %s", strings.Join(e.Problems, "; "))
}

// ValidateJSON validates data, the output of script.MarshalTree or a hand
// edited copy of it. A *ValidationError is returned for documents that parse
// but violate the schema.
func ValidateJSON(data []byte) error {
	s, err := compiled()
	if err != nil {
		return fmt.Errorf("compile tree schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate tree: %w", err)
	}
	if res.Valid() {
		return nil
	}
	ve := &ValidationError{}
	for _, e := range res.Errors() {
		ve.Problems = append(ve.Problems, e.String())
	}
	return ve
}

// ValidateTree marshals tree and validates the result.
func ValidateTree(tree script.Tree) error {
	data, err := script.MarshalTree(tree)
	if err != nil {
		return err
	}
	return ValidateJSON(data)
}

// DecodeTree validates data and decodes it.
func DecodeTree(data []byte) (script.Tree, error) {
	if err := ValidateJSON(data); err != nil {
		return nil, err
	}
	return script.UnmarshalTree(data)
}
