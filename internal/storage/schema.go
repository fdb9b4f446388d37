/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

// itemsSchema describes the contractInputs payload.
const itemsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "contractInputs",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "x", "y", "width", "height"],
    "properties": {
      "id":     {"type": "string", "minLength": 1},
      "x":      {"type": "number"},
      "y":      {"type": "number"},
      "width":  {"type": "number", "exclusiveMinimum": 0},
      "height": {"type": "number", "exclusiveMinimum": 0},
      "label":  {"type": "string"},
      "value":  {"type": "string"}
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(itemsSchema))
	})
	return schema, schemaErr
}

// ValidateItems checks a contractInputs payload against the items schema.
func ValidateItems(raw []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile items schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validate items: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New("items do not conform to schema: " + strings.Join(msgs, "; "))
}
