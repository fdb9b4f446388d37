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
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"formcanvas/internal/canvas"
	"formcanvas/internal/config"
	"formcanvas/internal/domain"
	"formcanvas/internal/preview"
	"formcanvas/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv    *Server
	canvas *canvas.Canvas
	store  *storage.Store
	http   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewStore(storage.NewMemKV())
	c := canvas.New(store, canvas.Options{})
	s := New(config.ServerConfig{Addr: "127.0.0.1:0"}, c, store, preview.NewRegistry(store, time.Minute))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: s, canvas: c, store: store, http: ts}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.http.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeResult(t *testing.T, data []byte) canvas.Result {
	t.Helper()
	var res canvas.Result
	require.NoError(t, json.Unmarshal(data, &res))
	return res
}

var page = &domain.Rect{X: 100, Y: 50, Width: domain.PageWidth, Height: domain.PageHeight}

func TestDropThenMoveResizeEditRemove(t *testing.T) {
	f := newFixture(t)

	resp, data := f.do(t, http.MethodPost, "/api/drop", dropRequest{
		ID: "firstName", Pointer: domain.Point{X: 150, Y: 80}, Container: page,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeResult(t, data)
	assert.Equal(t, canvas.Placed, res.Outcome)
	require.NotNil(t, res.Item)
	assert.Equal(t, domain.PlacedItem{ID: "firstName", X: 50, Y: 30, Width: 200, Height: 40, Label: "First Name"}, *res.Item)
	assert.Equal(t, []domain.Field{{ID: "secondName", Label: "Second Name"}}, res.State.Pool)

	resp, data = f.do(t, http.MethodPost, "/api/items/firstName/move", moveRequest{X: 300, Y: 400, Container: page})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res = decodeResult(t, data)
	assert.Equal(t, canvas.Moved, res.Outcome)
	assert.Equal(t, 300.0, res.Item.X)

	resp, data = f.do(t, http.MethodPost, "/api/items/firstName/resize", resizeRequest{X: 300, Y: 400, Width: 250, Height: 60})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, canvas.Resized, decodeResult(t, data).Outcome)

	resp, data = f.do(t, http.MethodPost, "/api/items/firstName/value", valueRequest{Value: "Ada"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res = decodeResult(t, data)
	assert.Equal(t, "Ada", res.Item.Value)
	assert.Equal(t, 250.0, res.Item.Width)

	resp, data = f.do(t, http.MethodDelete, "/api/items/firstName", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res = decodeResult(t, data)
	assert.Equal(t, canvas.Removed, res.Outcome)
	assert.Empty(t, res.State.Items)
	assert.Len(t, res.State.Pool, 2)
}

func TestContainerMustMatchPage(t *testing.T) {
	f := newFixture(t)
	// The page box measured including a 1px border on each side.
	bordered := &domain.Rect{X: 99, Y: 49, Width: domain.PageWidth + 2, Height: domain.PageHeight + 2}

	resp, data := f.do(t, http.MethodPost, "/api/drop", dropRequest{
		ID: "firstName", Pointer: domain.Point{X: 99 + 795, Y: 100}, Container: bordered,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(data), "page size")
	assert.Empty(t, f.canvas.Items())

	resp, data = f.do(t, http.MethodPost, "/api/drop", dropRequest{
		ID: "firstName", Pointer: domain.Point{X: 100 + 795, Y: 100}, Container: page,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, canvas.Rejected, decodeResult(t, data).Outcome)

	_, err := f.canvas.Drop(domain.Field{ID: "firstName"}, domain.Point{X: 200, Y: 200}, page)
	require.NoError(t, err)
	resp, _ = f.do(t, http.MethodPost, "/api/items/firstName/move", moveRequest{X: 596, Y: 100, Container: bordered})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	it, ok := f.canvas.Item("firstName")
	require.True(t, ok)
	assert.Equal(t, 100.0, it.X)

	resp, data = f.do(t, http.MethodPost, "/api/items/firstName/move", moveRequest{X: 596, Y: 100, Container: page})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, canvas.Evicted, decodeResult(t, data).Outcome)
}

func TestDropOutsideIsRejected(t *testing.T) {
	f := newFixture(t)
	resp, data := f.do(t, http.MethodPost, "/api/drop", dropRequest{
		ID: "firstName", Pointer: domain.Point{X: 10, Y: 10}, Container: page,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeResult(t, data)
	assert.Equal(t, canvas.Rejected, res.Outcome)
	assert.Nil(t, res.Item)
	assert.Empty(t, f.canvas.Items())
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t)

	resp, data := f.do(t, http.MethodPost, "/api/drop", dropRequest{ID: "firstName", Pointer: domain.Point{X: 1, Y: 1}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(data), "container")

	resp, _ = f.do(t, http.MethodPost, "/api/items/nope/move", moveRequest{X: 1, Y: 1, Container: page})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, err := f.canvas.Drop(domain.Field{ID: "firstName"}, domain.Point{X: 200, Y: 200}, page)
	require.NoError(t, err)
	resp, _ = f.do(t, http.MethodPost, "/api/items/firstName/resize", resizeRequest{Width: 0, Height: 10})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(canvas.ErrInvalidPosition))

	req, err := http.NewRequest(http.MethodPost, f.http.URL+"/api/items/firstName/value", strings.NewReader("{"))
	require.NoError(t, err)
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestSaveAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.canvas.Drop(domain.Field{ID: "secondName"}, domain.Point{X: 300, Y: 300}, page)
	require.NoError(t, err)

	resp, data := f.do(t, http.MethodPost, "/api/save", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, canvas.Saved, decodeResult(t, data).Outcome)
	snap, ok := f.store.Load(ctx)
	require.True(t, ok)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "secondName", snap.Items[0].ID)

	resp, data = f.do(t, http.MethodPost, "/api/clear", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeResult(t, data)
	assert.Equal(t, canvas.Cleared, res.Outcome)
	assert.Empty(t, res.State.Items)
	_, ok = f.store.Load(ctx)
	assert.False(t, ok)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func upload(t *testing.T, f *fixture, name string, content []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	resp, err := http.Post(f.http.URL+"/api/background", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp
}

func TestBackgroundUpload(t *testing.T) {
	f := newFixture(t)

	resp := upload(t, f, "bg.png", pngBytes(t))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	f.srv.Wait()
	assert.True(t, strings.HasPrefix(f.canvas.State().Background, "data:image/png;base64,"))

	resp = upload(t, f, "notes.txt", []byte("not an image"))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	f.srv.Wait()
	assert.True(t, strings.HasPrefix(f.canvas.State().Background, "data:image/png;base64,"), "rejected upload keeps the previous background")

	r, data := f.do(t, http.MethodDelete, "/api/background", nil)
	require.Equal(t, http.StatusOK, r.StatusCode)
	assert.Empty(t, decodeResult(t, data).State.Background)
}

func TestBackgroundUploadWithoutFile(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Post(f.http.URL+"/api/background", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPreviewSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.canvas.Drop(domain.Field{ID: "firstName"}, domain.Point{X: 120, Y: 70}, page)
	require.NoError(t, err)
	_, err = f.canvas.EditValue("firstName", "saved")
	require.NoError(t, err)
	_, err = f.canvas.Save(ctx)
	require.NoError(t, err)

	sess := f.srv.previews.Open(ctx)
	resp, data := f.do(t, http.MethodGet, "/api/preview/"+sess.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		ID    string              `json:"id"`
		Found bool                `json:"found"`
		Items []domain.PlacedItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, sess.ID, got.ID)
	assert.True(t, got.Found)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "saved", got.Items[0].Value)

	resp, data = f.do(t, http.MethodPost, "/api/preview/"+sess.ID+"/items/firstName/value", valueRequest{Value: "typed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"typed"`)

	// Preview edits never reach the store or the editor.
	snap, ok := f.store.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "saved", snap.Items[0].Value)
	it, ok := f.canvas.Item("firstName")
	require.True(t, ok)
	assert.Equal(t, "saved", it.Value)

	resp, _ = f.do(t, http.MethodPost, "/api/preview/"+sess.ID+"/items/nope/value", valueRequest{Value: "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/api/preview/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, data = f.do(t, http.MethodGet, "/preview/"+sess.ID+"/print.pdf", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestPages(t *testing.T) {
	f := newFixture(t)
	_, err := f.canvas.Drop(domain.Field{ID: "firstName"}, domain.Point{X: 120, Y: 70}, page)
	require.NoError(t, err)
	_, err = f.canvas.Save(context.Background())
	require.NoError(t, err)

	resp, data := f.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(data), `id="canvas-container"`)
	assert.Contains(t, string(data), "container.clientWidth")
	assert.Contains(t, string(data), "Second Name")

	resp, data = f.do(t, http.MethodGet, "/preview", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `data-id="firstName"`)
	assert.Equal(t, 1, f.srv.previews.Len())
}

func TestPrintAndProbes(t *testing.T) {
	f := newFixture(t)

	resp, data := f.do(t, http.MethodGet, "/print.pdf", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="form.pdf"`)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	resp, data = f.do(t, http.MethodGet, "/print.png", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int(domain.PageWidth), cfg.Width)

	resp, data = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(data))

	resp, data = f.do(t, http.MethodGet, "/version", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, data)
}

func TestPreviewSessionFromPath(t *testing.T) {
	assert.Equal(t, "abc", previewSessionFromPath("/api/preview/abc/items/x/value"))
	assert.Equal(t, "abc", previewSessionFromPath("/preview/abc/print.pdf"))
	assert.Equal(t, "", previewSessionFromPath("/api/state"))
}
