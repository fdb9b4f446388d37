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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	applog "formcanvas/internal/log"
)

const (
	DocumentFileName = "layout.json"
	BackupsDirName   = "backups"
	// maxBackups bounds the number of timestamped copies kept next to the document.
	maxBackups = 20
)

// FileKV stores all entries in one JSON document under Root.
// Every write goes to a temp file that replaces the document; the previous
// document is copied to a timestamped backup first.
type FileKV struct {
	Root string
	Path string

	mu     sync.Mutex
	closed bool
	log    *slog.Logger
}

// OpenFileKV prepares root (creating it and its backups folder) and returns the backend.
func OpenFileKV(root string) (*FileKV, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	if err := os.MkdirAll(filepath.Join(root, BackupsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileKV{
		Root: root,
		Path: filepath.Join(root, DocumentFileName),
		log:  applog.WithComponent("storage").With(slog.String("backend", "file"), slog.String("root", root)),
	}, nil
}

func (f *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", false, ErrClosed
	}
	doc, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := doc[key]
	return v, ok, nil
}

func (f *FileKV) Put(_ context.Context, entries map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	doc, err := f.read()
	if err != nil {
		// An unreadable document without usable backups is replaced.
		f.log.Warn("replacing unreadable document", slog.Any("err", err))
		doc = map[string]string{}
	}
	for k, v := range entries {
		doc[k] = v
	}
	return f.write(doc)
}

func (f *FileKV) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	doc, err := f.read()
	if err != nil {
		f.log.Warn("replacing unreadable document", slog.Any("err", err))
		doc = map[string]string{}
	}
	for _, k := range keys {
		delete(doc, k)
	}
	return f.write(doc)
}

func (f *FileKV) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// read loads the document. A missing document is empty; an unreadable one
// falls back to the latest backup.
func (f *FileKV) read() (map[string]string, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		err = fmt.Errorf("read document: %w", err)
	} else {
		doc := map[string]string{}
		uerr := json.Unmarshal(b, &doc)
		if uerr == nil {
			return doc, nil
		}
		err = fmt.Errorf("parse document: %w", uerr)
	}
	doc, berr := f.latestBackup()
	if berr != nil {
		return nil, fmt.Errorf("%w; backup attempt: %v", err, berr)
	}
	f.log.Warn("document unreadable, using latest backup", slog.Any("err", err))
	return doc, nil
}

func (f *FileKV) write(doc map[string]string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	data = append(data, '\n')

	bdir := filepath.Join(f.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(f.Path); statErr == nil {
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", DocumentFileName, stamp))
		if cerr := copyFile(f.Path, bpath); cerr != nil {
			return fmt.Errorf("backup current document: %w", cerr)
		}
		f.pruneBackups()
	}

	temp := filepath.Join(f.Root, fmt.Sprintf(".%s.tmp-%d-%d", DocumentFileName, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("write temp document: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(f.Path); err == nil {
		_ = os.Remove(f.Path)
	}
	if rerr := os.Rename(temp, f.Path); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace document: %w", rerr)
	}
	return nil
}

// backups lists backup files, oldest first.
func (f *FileKV) backups() ([]string, error) {
	bdir := filepath.Join(f.Root, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, DocumentFileName+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

func (f *FileKV) latestBackup() (map[string]string, error) {
	candidates, err := f.backups()
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errors.New("no backups found")
	}
	latest := candidates[len(candidates)-1]
	b, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("read latest backup: %w", err)
	}
	doc := map[string]string{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse latest backup: %w", err)
	}
	return doc, nil
}

func (f *FileKV) pruneBackups() {
	candidates, err := f.backups()
	if err != nil || len(candidates) <= maxBackups {
		return
	}
	for _, p := range candidates[:len(candidates)-maxBackups] {
		if err := os.Remove(p); err != nil {
			f.log.Debug("prune backup failed", slog.String("path", p), slog.Any("err", err))
		}
	}
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
