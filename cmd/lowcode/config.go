package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/dominossauro/lowcode/internal/secrets"
	"github.com/dominossauro/lowcode/internal/store"
)

const (
	envPrefix         = "LOWCODE_"
	defaultSecretSalt = "lowcode"
)

// Config holds all lowcode server configuration.
// Priority: LOWCODE_* env vars (including .env) > settings file > defaults.
type Config struct {
	ListenAddr     string `json:"listen_addr"`
	FlowsDir       string `json:"flows_dir"`
	ManifestPath   string `json:"manifest_path"`
	LogLevel       string `json:"log_level"`
	LogFormat      string `json:"log_format"`
	ReloadSchedule string `json:"reload_schedule"`
	ShowExceptions bool   `json:"show_exceptions"`
	// MaxConcurrent bounds in-flight flow executions. Zero means unbounded.
	MaxConcurrent int   `json:"max_concurrent"`
	MaxBodyBytes  int64 `json:"max_body_bytes"`
	// MCPHTTP mounts the MCP streamable HTTP transport on /mcp in serve mode.
	MCPHTTP     bool                    `json:"mcp_http"`
	Datasources map[string]store.Config `json:"datasources"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:   ":8080",
		FlowsDir:     "flows",
		LogLevel:     "info",
		LogFormat:    "json",
		MaxBodyBytes: 4 << 20,
	}
}

// loadConfig layers settingsPath (ignored when missing), then envFile (loaded
// into the process environment without overriding what is already set), then
// LOWCODE_* variables read through getenv.
func loadConfig(settingsPath, envFile string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	if settingsPath != "" {
		data, err := os.ReadFile(settingsPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read settings %s: %w", settingsPath, err)
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse settings %s: %w", settingsPath, err)
			}
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}

	sealer, err := sealerFromEnv(getenv)
	if err != nil {
		return cfg, err
	}
	for name, ds := range cfg.Datasources {
		dsn, err := secrets.Reveal(sealer, ds.DSN)
		if err != nil {
			return cfg, fmt.Errorf("datasource %q dsn: %w", name, err)
		}
		ds.DSN = dsn
		cfg.Datasources[name] = ds
	}
	return cfg, nil
}

// sealerFromEnv builds the sealer for "enc:" values from LOWCODE_SECRET_KEY,
// salted with LOWCODE_SECRET_SALT. It returns nil when no key is set.
func sealerFromEnv(getenv func(string) string) (*secrets.Sealer, error) {
	key := getenv(envPrefix + "SECRET_KEY")
	if key == "" {
		return nil, nil
	}
	salt := getenv(envPrefix + "SECRET_SALT")
	if salt == "" {
		salt = defaultSecretSalt
	}
	s, err := secrets.New(secrets.KeyConfig{Passphrase: key, Salt: []byte(salt)})
	if err != nil {
		return nil, fmt.Errorf("%sSECRET_KEY: %w", envPrefix, err)
	}
	return s, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	strs := map[string]*string{
		"LISTEN_ADDR":     &cfg.ListenAddr,
		"FLOWS_DIR":       &cfg.FlowsDir,
		"MANIFEST_PATH":   &cfg.ManifestPath,
		"LOG_LEVEL":       &cfg.LogLevel,
		"LOG_FORMAT":      &cfg.LogFormat,
		"RELOAD_SCHEDULE": &cfg.ReloadSchedule,
	}
	for key, dst := range strs {
		if v := getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"SHOW_EXCEPTIONS": &cfg.ShowExceptions,
		"MCP_HTTP":        &cfg.MCPHTTP,
	}
	for key, dst := range bools {
		if v := getenv(envPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = b
		}
	}

	if v := getenv(envPrefix + "MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_CONCURRENT: %w", envPrefix, err)
		}
		cfg.MaxConcurrent = n
	}
	if v := getenv(envPrefix + "MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_BODY_BYTES: %w", envPrefix, err)
		}
		cfg.MaxBodyBytes = n
	}

	// LOWCODE_DATASOURCES is a JSON object shaped like the settings field.
	if v := getenv(envPrefix + "DATASOURCES"); v != "" {
		var ds map[string]store.Config
		if err := json.Unmarshal([]byte(v), &ds); err != nil {
			return fmt.Errorf("%sDATASOURCES: %w", envPrefix, err)
		}
		cfg.Datasources = ds
	}
	return nil
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged       bool
	ShowExceptionsChanged bool
	RestartNeeded         []string // fields that require a restart
}

func (d configDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ShowExceptionsChanged && len(d.RestartNeeded) == 0
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if !strings.EqualFold(old.LogLevel, new.LogLevel) {
		d.LogLevelChanged = true
	}
	if old.ShowExceptions != new.ShowExceptions {
		d.ShowExceptionsChanged = true
	}

	restart := []struct {
		name    string
		changed bool
	}{
		{"listen_addr", old.ListenAddr != new.ListenAddr},
		{"flows_dir", old.FlowsDir != new.FlowsDir},
		{"manifest_path", old.ManifestPath != new.ManifestPath},
		{"log_format", old.LogFormat != new.LogFormat},
		{"reload_schedule", old.ReloadSchedule != new.ReloadSchedule},
		{"max_concurrent", old.MaxConcurrent != new.MaxConcurrent},
		{"max_body_bytes", old.MaxBodyBytes != new.MaxBodyBytes},
		{"mcp_http", old.MCPHTTP != new.MCPHTTP},
		{"datasources", !reflect.DeepEqual(old.Datasources, new.Datasources)},
	}
	for _, f := range restart {
		if f.changed {
			d.RestartNeeded = append(d.RestartNeeded, f.name)
		}
	}
	return d
}
