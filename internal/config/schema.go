// Package config provides configuration loading for the sourcenav CLI.
//
// Configuration is layered: built-in defaults, then the YAML file at
// ~/.sourcenav/config.yaml (or $SOURCENAV_CONFIG/config.yaml), then
// environment variables named by the `env` struct tags, then command line
// flags applied by the caller.
package config

const (
	// DefaultDir is the configuration directory below the home directory.
	DefaultDir = ".sourcenav"
	// ConfigFile is the name of the configuration file.
	ConfigFile = "config.yaml"
	// ConfigDirEnv overrides the configuration directory.
	ConfigDirEnv = "SOURCENAV_CONFIG"
)

// Config is the sourcenav configuration.
type Config struct {
	Version string        `yaml:"version"`
	Logging LoggingConfig `yaml:"logging"`
	Resolve ResolveConfig `yaml:"resolve"`
}

// LoggingConfig configures the diagnostic log.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"SOURCENAV_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"SOURCENAV_LOG_PRETTY"`
}

// ResolveConfig configures how binaries are opened.
type ResolveConfig struct {
	// Format is auto, native or portable.
	Format string `yaml:"format" env:"SOURCENAV_FORMAT"`
	// SearchPath is probed for debug companions not found next to the binary.
	SearchPath string `yaml:"search_path" env:"SOURCENAV_SEARCH_PATH"`
	// VerifyCRC checks portable symbol file checksums on open.
	VerifyCRC bool `yaml:"verify_crc" env:"SOURCENAV_VERIFY_CRC"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Logging: LoggingConfig{
			Level:  "warn",
			Pretty: true,
		},
		Resolve: ResolveConfig{
			Format:    "auto",
			VerifyCRC: true,
		},
	}
}
