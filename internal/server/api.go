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
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"formcanvas/internal/canvas"
	"formcanvas/internal/domain"

	"github.com/go-chi/chi/v5"
)

type dropRequest struct {
	ID        string       `json:"id"`
	Pointer   domain.Point `json:"pointer"`
	Container *domain.Rect `json:"container"`
}

type moveRequest struct {
	X         float64      `json:"x"`
	Y         float64      `json:"y"`
	Container *domain.Rect `json:"container"`
}

type resizeRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type valueRequest struct {
	Value string `json:"value"`
}

// errContainerSize rejects a container whose extent is not the page.
var errContainerSize = errors.New("container must match the page size")

// containerTolerance absorbs sub-pixel layout rounding in the browser.
const containerTolerance = 0.5

// checkContainer lets a nil container through for the canvas to report.
func checkContainer(c *domain.Rect) error {
	if c == nil {
		return nil
	}
	dw, dh := math.Abs(c.Width-domain.PageWidth), math.Abs(c.Height-domain.PageHeight)
	if !(dw <= containerTolerance) || !(dh <= containerTolerance) {
		return fmt.Errorf("%vx%v: %w", c.Width, c.Height, errContainerSize)
	}
	return nil
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.canvas.State())
}

// respond writes a transition result or maps its error.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, res canvas.Result, err error) {
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.log.ErrorContext(r.Context(), "canvas operation failed", slog.String("path", r.URL.Path), slog.Any("err", err))
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) drop(w http.ResponseWriter, r *http.Request) {
	var req dropRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := checkContainer(req.Container); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	res, err := s.canvas.Drop(domain.Field{ID: req.ID}, req.Pointer, req.Container)
	s.respond(w, r, res, err)
}

func (s *Server) move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := checkContainer(req.Container); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	res, err := s.canvas.Move(chi.URLParam(r, "id"), domain.Point{X: req.X, Y: req.Y}, req.Container)
	s.respond(w, r, res, err)
}

func (s *Server) resize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.canvas.Resize(chi.URLParam(r, "id"),
		domain.Size{Width: req.Width, Height: req.Height}, domain.Point{X: req.X, Y: req.Y})
	s.respond(w, r, res, err)
}

func (s *Server) editValue(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.canvas.EditValue(chi.URLParam(r, "id"), req.Value)
	s.respond(w, r, res, err)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	res, err := s.canvas.Remove(chi.URLParam(r, "id"))
	s.respond(w, r, res, err)
}

// uploadBackground accepts a multipart "file" and decodes it asynchronously.
// The canvas background changes once decoding succeeds.
func (s *Server) uploadBackground(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}
	// The multipart temp files are removed when the handler returns; copy first.
	var buf bytes.Buffer
	_, err = io.Copy(&buf, f)
	_ = f.Close()
	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}
	name := hdr.Filename
	s.loader.Load(&buf, func(dataURL string, err error) {
		if err != nil {
			s.log.Warn("background rejected", slog.String("file", name), slog.Any("err", err))
			return
		}
		s.canvas.SetBackground(dataURL)
		s.log.Info("background set", slog.String("file", name))
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "loading", "file": name})
}

func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (s *Server) clearBackground(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.canvas.ClearBackground())
}

func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	res, err := s.canvas.Save(r.Context())
	s.respond(w, r, res, err)
}

func (s *Server) clear(w http.ResponseWriter, r *http.Request) {
	res, err := s.canvas.Clear(r.Context())
	s.respond(w, r, res, err)
}

func (s *Server) getPreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.previews.Get(chi.URLParam(r, "sid"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("preview session not found"))
		return
	}
	snap := sess.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         sess.ID,
		"found":      sess.Found,
		"background": snap.Background,
		"items":      snap.Items,
	})
}

func (s *Server) editPreviewValue(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.previews.Get(chi.URLParam(r, "sid"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("preview session not found"))
		return
	}
	var req valueRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	it, err := sess.EditValue(chi.URLParam(r, "id"), req.Value)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func filenameSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return -1
		}
		return r
	}, s)
}
