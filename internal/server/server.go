/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package server exposes the canvas and the preview over HTTP: two HTML pages and a
// small JSON API the pages drive. Every gesture maps to one canvas transition.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"formcanvas/internal/background"
	"formcanvas/internal/canvas"
	"formcanvas/internal/config"
	applog "formcanvas/internal/log"
	"formcanvas/internal/preview"
	"formcanvas/internal/storage"
	"formcanvas/internal/version"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

//go:embed templates/*.html
var templatesFS embed.FS

// maxUpload bounds a background upload request.
const maxUpload = background.DefaultMaxBytes + 1<<20

// Server wires the HTTP surface to a canvas, its store and the preview registry.
type Server struct {
	cfg      config.ServerConfig
	canvas   *canvas.Canvas
	store    *storage.Store
	previews *preview.Registry
	loader   *background.Loader
	tmpl     *template.Template
	log      *slog.Logger
}

// New builds the server. Templates are parsed once; a parse failure is a programming error.
func New(cfg config.ServerConfig, c *canvas.Canvas, store *storage.Store, previews *preview.Registry) *Server {
	return &Server{
		cfg:      cfg,
		canvas:   c,
		store:    store,
		previews: previews,
		loader:   background.NewLoader(background.DefaultMaxBytes),
		tmpl:     template.Must(template.New("pages").Funcs(funcMap).ParseFS(templatesFS, "templates/*.html")),
		log:      applog.WithComponent("server"),
	}
}

var funcMap = template.FuncMap{
	// imageURL lets stored data URLs through html/template's URL filter.
	"imageURL": func(s string) template.URL {
		if strings.HasPrefix(s, "data:image/") {
			return template.URL(s)
		}
		return ""
	},
	"px": func(v float64) string { return strconvFloat(v) + "px" },
}

// Handler returns the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(version.String()))
	})

	r.Get("/", s.editorPage)
	r.Get("/preview", s.previewPage)
	r.Get("/print.pdf", s.printSaved("pdf"))
	r.Get("/print.png", s.printSaved("png"))
	r.Get("/preview/{sid}/print.pdf", s.printPreview)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/state", s.getState)
		r.Post("/drop", s.drop)
		r.Post("/items/{id}/move", s.move)
		r.Post("/items/{id}/resize", s.resize)
		r.Post("/items/{id}/value", s.editValue)
		r.Delete("/items/{id}", s.remove)
		r.Post("/background", s.uploadBackground)
		r.Delete("/background", s.clearBackground)
		r.Post("/save", s.save)
		r.Post("/clear", s.clear)
		r.Get("/preview/{sid}", s.getPreview)
		r.Post("/preview/{sid}/items/{id}/value", s.editPreviewValue)
	})
	return r
}

// Wait blocks until pending background uploads are applied.
func (s *Server) Wait() { s.loader.Wait() }

// ListenAndServe serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", s.cfg.Addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.loader.Close()
	s.log.Info("server stopped")
	return err
}

// requestLogger logs one line per request; preview routes carry the session id.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := r.Context()
		if sid := previewSessionFromPath(r.URL.Path); sid != "" {
			ctx = applog.WithSession(ctx, sid)
		}
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.log.DebugContext(ctx, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("dur", time.Since(start)),
			slog.String("req_id", middleware.GetReqID(ctx)),
		)
	})
}

func previewSessionFromPath(p string) string {
	for _, prefix := range []string{"/api/preview/", "/preview/"} {
		if rest, ok := strings.CutPrefix(p, prefix); ok {
			sid, _, _ := strings.Cut(rest, "/")
			return sid
		}
	}
	return ""
}
