package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Loader reads and writes the configuration file.
type Loader struct {
	baseDir string
}

// NewLoader creates a loader for the configuration directory. The directory is
// resolved in this order:
//  1. the SOURCENAV_CONFIG environment variable.
//  2. ~/.sourcenav.
//  3. .sourcenav below the working directory, when no home directory exists.
func NewLoader() *Loader {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return &Loader{baseDir: dir}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return &Loader{baseDir: filepath.Join(home, DefaultDir)}
	}
	return &Loader{baseDir: DefaultDir}
}

// NewLoaderAt creates a loader for an explicit configuration directory.
func NewLoaderAt(dir string) *Loader {
	return &Loader{baseDir: dir}
}

// ConfigPath returns the path of the configuration file.
func (l *Loader) ConfigPath() string {
	return filepath.Join(l.baseDir, ConfigFile)
}

// Load reads the configuration file, falling back to defaults when it does
// not exist, and applies environment overrides. The result is validated.
func (l *Loader) Load() (*Config, error) {
	return l.LoadFile(l.ConfigPath())
}

// LoadFile is Load for an explicit file path.
func (l *Loader) LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	//nolint:gosec // G304: path is the user's own configuration file.
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to the configuration file, creating the directory.
func (l *Loader) Save(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	//nolint:gosec // G301: directory needs standard permissions for traversal.
	if err := os.MkdirAll(l.baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	//nolint:gosec // G306: the config file holds no secrets.
	if err := os.WriteFile(l.ConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
