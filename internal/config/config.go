/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"formcanvas/internal/domain"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type ServerConfig struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
	// PreviewTTLMin is the idle lifetime of a preview session in minutes.
	PreviewTTLMin int `yaml:"preview_ttl_min"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"` // "memory" | "file" | "sqlite" | "postgres"
	Dir         string `yaml:"dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
	// The postgres password is not stored on disk; it lives in the OS keychain.
}

type CanvasConfig struct {
	ItemWidth  float64        `yaml:"item_width"`
	ItemHeight float64        `yaml:"item_height"`
	Fields     []domain.Field `yaml:"fields"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type TelemetryConfig struct {
	OptIn bool `yaml:"opt_in"`
}

type AppConfig struct {
	ConfigVersion int             `yaml:"config_version"`
	Server        ServerConfig    `yaml:"server"`
	Storage       StorageConfig   `yaml:"storage"`
	Canvas        CanvasConfig    `yaml:"canvas"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Server:        ServerConfig{Addr: "127.0.0.1:8080", ReadTimeoutMs: 15000, WriteTimeoutMs: 30000, PreviewTTLMin: 30},
		Storage:       StorageConfig{Backend: "file"},
		Canvas: CanvasConfig{
			ItemWidth:  domain.DefaultItemWidth,
			ItemHeight: domain.DefaultItemHeight,
			Fields:     domain.DefaultFields(),
		},
		Logging:   LoggingConfig{Level: "info", Format: "console"},
		Telemetry: TelemetryConfig{OptIn: false},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile     = "FCV_CONFIG"
	EnvServerAddr     = "FCV_SERVER_ADDR"
	EnvStorageBackend = "FCV_STORAGE_BACKEND"
	EnvStorageDir     = "FCV_STORAGE_DIR"
	EnvPostgresDSN    = "FCV_POSTGRES_DSN"
	EnvItemWidth      = "FCV_ITEM_WIDTH"
	EnvItemHeight     = "FCV_ITEM_HEIGHT"
	EnvTelemetryOptIn = "FCV_TELEMETRY_OPT_IN"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "FCV_LOG_LEVEL"
	EnvLogFormat = "FCV_LOG_FORMAT"
	EnvLogSource = "FCV_LOG_SOURCE"
	EnvLogFile   = "FCV_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService  = "FormCanvas"
	keyringPassword = "postgres_password"
)

// secrets abstracts the keyring, so we can stub in tests.
var secrets SecretStore = osKeyring{}

// SecretStore keeps credentials outside the config file.
type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements SecretStore using the OS keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// SetSecretStore swaps the secret backend and returns the previous one.
func SetSecretStore(s SecretStore) SecretStore {
	prev := secrets
	secrets = s
	return prev
}

// baseDir returns the per-user application directory.
func baseDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "FormCanvas")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "FormCanvas")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "formcanvas")
	}
	if base == "" || base == "FormCanvas" || base == filepath.Join(".config", "formcanvas") {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the config file path. FCV_CONFIG wins over the per-user default.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	base, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.yaml"), nil
}

// DataDir returns the directory used by the file and sqlite backends.
func (s StorageConfig) DataDir() (string, error) {
	if d := strings.TrimSpace(s.Dir); d != "" {
		return d, nil
	}
	base, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "data"), nil
}

// Load reads the config file (if present), applies defaults, and merges environment overrides.
func Load() (AppConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, err
	}
	return LoadFile(path)
}

// LoadFile is Load for an explicit path. A missing file is not an error; a malformed one is.
func LoadFile(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			applyEnvOverrides(&cfg)
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		applyEnvOverrides(&cfg)
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the config YAML to path.
func Save(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// SavePostgresPassword stores the password in the OS keyring; an empty password removes it.
func SavePostgresPassword(pw string) error {
	if pw == "" {
		if err := secrets.Delete(keyringService, keyringPassword); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
		return nil
	}
	return secrets.Set(keyringService, keyringPassword, pw)
}

// ResolvedDSN returns the postgres DSN with the keyring password filled in
// when the configured URL carries a user but no password.
func (s StorageConfig) ResolvedDSN() string {
	dsn := strings.TrimSpace(s.PostgresDSN)
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return dsn
	}
	if _, has := u.User.Password(); has {
		return dsn
	}
	pw, err := secrets.Get(keyringService, keyringPassword)
	if err != nil || pw == "" {
		return dsn
	}
	u.User = url.UserPassword(u.User.Username(), pw)
	return u.String()
}

func (s ServerConfig) ReadTimeout() time.Duration {
	return millis(s.ReadTimeoutMs, Defaults().Server.ReadTimeoutMs)
}

func (s ServerConfig) WriteTimeout() time.Duration {
	return millis(s.WriteTimeoutMs, Defaults().Server.WriteTimeoutMs)
}

func (s ServerConfig) PreviewTTL() time.Duration {
	if s.PreviewTTLMin <= 0 {
		return time.Duration(Defaults().Server.PreviewTTLMin) * time.Minute
	}
	return time.Duration(s.PreviewTTLMin) * time.Minute
}

func millis(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if strings.TrimSpace(src.Server.Addr) != "" {
		dst.Server.Addr = strings.TrimSpace(src.Server.Addr)
	}
	if src.Server.ReadTimeoutMs > 0 {
		dst.Server.ReadTimeoutMs = src.Server.ReadTimeoutMs
	}
	if src.Server.WriteTimeoutMs > 0 {
		dst.Server.WriteTimeoutMs = src.Server.WriteTimeoutMs
	}
	if src.Server.PreviewTTLMin > 0 {
		dst.Server.PreviewTTLMin = src.Server.PreviewTTLMin
	}
	// storage
	if strings.TrimSpace(src.Storage.Backend) != "" {
		dst.Storage.Backend = strings.ToLower(strings.TrimSpace(src.Storage.Backend))
	}
	if strings.TrimSpace(src.Storage.Dir) != "" {
		dst.Storage.Dir = strings.TrimSpace(src.Storage.Dir)
	}
	if strings.TrimSpace(src.Storage.PostgresDSN) != "" {
		dst.Storage.PostgresDSN = strings.TrimSpace(src.Storage.PostgresDSN)
	}
	// canvas: non-positive sizes would break the width/height invariant
	if src.Canvas.ItemWidth > 0 {
		dst.Canvas.ItemWidth = src.Canvas.ItemWidth
	}
	if src.Canvas.ItemHeight > 0 {
		dst.Canvas.ItemHeight = src.Canvas.ItemHeight
	}
	if fields := cleanFields(src.Canvas.Fields); len(fields) > 0 {
		dst.Canvas.Fields = fields
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.Telemetry.OptIn = src.Telemetry.OptIn
}

// cleanFields drops entries without id and repeated ids, filling empty labels with the id.
func cleanFields(in []domain.Field) []domain.Field {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.Field, 0, len(in))
	for _, f := range in {
		f.ID = strings.TrimSpace(f.ID)
		if f.ID == "" {
			continue
		}
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		if strings.TrimSpace(f.Label) == "" {
			f.Label = f.ID
		}
		out = append(out, f)
	}
	return out
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvServerAddr)); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageBackend)); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageDir)); v != "" {
		cfg.Storage.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPostgresDSN)); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvItemWidth)); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			cfg.Canvas.ItemWidth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvItemHeight)); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			cfg.Canvas.ItemHeight = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.Telemetry.OptIn = truthy(v)
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var overrideKeys = map[string]string{
	"server.addr":          EnvServerAddr,
	"storage.backend":      EnvStorageBackend,
	"storage.dir":          EnvStorageDir,
	"storage.postgres_dsn": EnvPostgresDSN,
	"canvas.item_width":    EnvItemWidth,
	"canvas.item_height":   EnvItemHeight,
	"telemetry.opt_in":     EnvTelemetryOptIn,
	"logging.level":        EnvLogLevel,
	"logging.format":       EnvLogFormat,
	"logging.source":       EnvLogSource,
	"logging.file":         EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := overrideKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}
