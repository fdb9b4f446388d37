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
	"fmt"
	"log/slog"
	"strings"

	"formcanvas/internal/config"
	applog "formcanvas/internal/log"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Open builds the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendFile
	}
	var (
		kv  KV
		err error
	)
	switch backend {
	case BackendMemory:
		kv = NewMemKV()
	case BackendFile, BackendSQLite:
		dir, derr := cfg.DataDir()
		if derr != nil {
			return nil, derr
		}
		if backend == BackendFile {
			kv, err = OpenFileKV(dir)
		} else {
			kv, err = OpenSQLiteKV(ctx, dir)
		}
	case BackendPostgres:
		kv, err = OpenPostgresKV(ctx, cfg.ResolvedDSN())
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", backend, err)
	}
	applog.WithComponent("storage").Info("storage ready", slog.String("backend", backend))
	return NewStore(kv), nil
}
