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
	"fmt"
	"log/slog"
	"net/http"

	"formcanvas/internal/canvas"
	"formcanvas/internal/domain"
	"formcanvas/internal/export"
	"formcanvas/internal/preview"

	"github.com/go-chi/chi/v5"
)

type editorData struct {
	PageWidth  float64
	PageHeight float64
	State      canvas.State
}

type previewData struct {
	PageWidth  float64
	PageHeight float64
	Session    *preview.Session
	Snapshot   domain.Snapshot
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.ErrorContext(r.Context(), "template exec failed", slog.String("template", name), slog.Any("err", err))
		http.Error(w, fmt.Sprintf("template exec error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func (s *Server) editorPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "editor.html", editorData{
		PageWidth:  domain.PageWidth,
		PageHeight: domain.PageHeight,
		State:      s.canvas.State(),
	})
}

// previewPage opens a new preview session on the saved snapshot.
func (s *Server) previewPage(w http.ResponseWriter, r *http.Request) {
	sess := s.previews.Open(r.Context())
	s.render(w, r, "preview.html", previewData{
		PageWidth:  domain.PageWidth,
		PageHeight: domain.PageHeight,
		Session:    sess,
		Snapshot:   sess.Snapshot(),
	})
}

// printSaved renders the last saved snapshot.
func (s *Server) printSaved(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, _ := s.store.Load(r.Context())
		s.writePrint(w, r, snap, format, "form")
	}
}

func (s *Server) printPreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.previews.Get(chi.URLParam(r, "sid"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.writePrint(w, r, sess.Snapshot(), "pdf", "form-"+sess.ID[:8])
}

func (s *Server) writePrint(w http.ResponseWriter, r *http.Request, snap domain.Snapshot, format, name string) {
	var (
		buf  bytes.Buffer
		err  error
		ctyp string
	)
	opt := export.Options{Title: name}
	switch format {
	case "png":
		err = export.PNG(&buf, snap, opt)
		ctyp = "image/png"
	default:
		err = export.PDF(&buf, snap, opt)
		ctyp = "application/pdf"
	}
	if err != nil {
		s.log.ErrorContext(r.Context(), "print export failed", slog.String("format", format), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", ctyp)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s.%s"`, filenameSafe(name), format))
	_, _ = buf.WriteTo(w)
}
