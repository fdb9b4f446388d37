/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package background turns user supplied images into data URLs and back.
package background

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	applog "formcanvas/internal/log"
)

// DefaultMaxBytes bounds the size of an accepted image.
const DefaultMaxBytes = 20 << 20

var (
	ErrTooLarge     = errors.New("background: image too large")
	ErrNotImage     = errors.New("background: not a supported image")
	ErrInvalidURL   = errors.New("background: invalid data URL")
	ErrLoaderClosed = errors.New("background: loader closed")
)

var mimeByFormat = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",
}

// Loader reads images asynchronously. The zero value is not usable; call NewLoader.
type Loader struct {
	MaxBytes int64

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	log    *slog.Logger
}

// NewLoader returns a loader accepting up to maxBytes (DefaultMaxBytes when <= 0).
func NewLoader(maxBytes int64) *Loader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Loader{MaxBytes: maxBytes, log: applog.WithComponent("background")}
}

// Load reads r on its own goroutine and calls done exactly once with the data URL or an error.
// If r is an io.Closer it is closed when reading finishes.
func (l *Loader) Load(r io.Reader, done func(dataURL string, err error)) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		if c, ok := r.(io.Closer); ok {
			_ = c.Close()
		}
		done("", ErrLoaderClosed)
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		url, err := l.read(r)
		if c, ok := r.(io.Closer); ok {
			_ = c.Close()
		}
		if err != nil {
			l.log.Warn("background load failed", slog.Any("err", err))
		} else {
			l.log.Debug("background loaded", slog.Int("bytes", len(url)))
		}
		done(url, err)
	}()
}

// Wait blocks until every pending Load has called its callback.
func (l *Loader) Wait() { l.wg.Wait() }

// Close refuses new loads and waits for pending ones.
func (l *Loader) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Loader) read(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > l.MaxBytes {
		return "", ErrTooLarge
	}
	return Encode(data)
}

// Encode validates data as an image and returns its data URL.
func Encode(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	mime, ok := mimeByFormat[format]
	if !ok {
		return "", fmt.Errorf("%w: format %s", ErrNotImage, format)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// FromFile is the synchronous variant of Load for a file path.
func FromFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	l := NewLoader(0)
	return l.read(f)
}

// ParseDataURL splits a base64 data URL into its mime type and payload.
func ParseDataURL(s string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrInvalidURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidURL
	}
	mime, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidURL)
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return mime, data, nil
}

// Decode turns a stored background back into an image.
func Decode(dataURL string) (image.Image, string, error) {
	_, data, err := ParseDataURL(dataURL)
	if err != nil {
		return nil, "", err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return img, format, nil
}
