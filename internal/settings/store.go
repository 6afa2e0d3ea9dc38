package settings

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

const AppName = "Clipdeck"

const settingsFileName = "settings.json"

func appDataDir() (string, error) {
	localAppData := os.Getenv("LOCALAPPDATA")
	if localAppData == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		localAppData = cacheDir
	}
	return filepath.Join(localAppData, AppName), nil
}

func subDir(name string) (string, error) {
	base, err := appDataDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

func RecordingsDir() (string, error) { return subDir("recordings") }
func ConfigDir() (string, error)     { return subDir("config") }
func LogsDir() (string, error)       { return subDir("logs") }

// Store persists Settings as a JSON file.
type Store struct {
	path string
}

// NewStore creates a store at the default per-user config location.
func NewStore() (*Store, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return &Store{path: filepath.Join(dir, settingsFileName)}, nil
}

// NewStoreAt creates a store at an explicit path, for tests and overrides.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

// Load reads settings from disk, falling back to defaults when no file
// exists or the file cannot be parsed.
func (st *Store) Load() Settings {
	cfg := Default()

	data, err := os.ReadFile(st.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read settings, using defaults", "path", st.path, "error", err)
		}
		return cfg
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Warn("failed to parse settings, using defaults", "path", st.path, "error", err)
		return Default()
	}

	return cfg
}

// Save validates and writes settings to disk.
func (st *Store) Save(cfg Settings) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(st.path), 0755); err != nil {
		return err
	}

	if err := os.WriteFile(st.path, data, 0644); err != nil {
		return err
	}

	slog.Info("settings saved", "path", st.path)
	return nil
}
