/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"formcanvas/internal/canvas"
	"formcanvas/internal/preview"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, canvas.ErrItemNotFound), errors.Is(err, preview.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, canvas.ErrNoContainer):
		return http.StatusBadRequest
	case errors.Is(err, canvas.ErrInvalidSize), errors.Is(err, canvas.ErrInvalidPosition), errors.Is(err, errContainerSize):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// readJSON decodes a bounded request body into v.
func readJSON(r *http.Request, v any) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func strconvFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
