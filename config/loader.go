package config

// loader.go - configuration loading.
//
// Precedence order (highest wins):
//   1. CLI flags  (overlaid by cmd/root.go)
//   2. LILGAMES_* environment variables
//   3. YAML file given with --config
//   4. env-default tags (mirroring defaults.go)

import (
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	ncerr "lilgames/internal/errors"
)

// Load reads the optional YAML file at path and then the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		field := "config"
		if path == "" {
			field = "environment"
		}
		return nil, &ncerr.ConfigError{Field: field, Value: nilIfEmpty(path), Message: err.Error()}
	}
	return cfg, nil
}

// Default is the configuration with nothing but defaults applied.
func Default() *Config {
	return &Config{
		Server:      DefaultServer,
		SocketPath:  DefaultSocketPath,
		Timeout:     DefaultConnTimeout,
		JoinTimeout: DefaultJoinTimeout,
		Tunnel:      Tunnel{KeepAlive: DefaultSSHKeepAlive},
	}
}

// EnvUsage describes every environment variable, for --help.
func EnvUsage() string {
	header := "Environment variables:"
	text, err := cleanenv.GetDescription(&Config{}, &header)
	if err != nil {
		return ""
	}
	return strings.TrimRight(text, "\n") + "\n"
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
