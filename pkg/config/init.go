package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# TurboPipe Configuration File
#
# Every key can be overridden from the environment with the TURBOPIPE_
# prefix, e.g. TURBOPIPE_ENGINE_WORKERS=8 or TURBOPIPE_LOGGING_LEVEL=DEBUG.
# TURBOPIPE_READ_THREADS is accepted as an alias for engine.workers.
#
# Sizes accept human-readable values ("4KiB", "1MB"); durations accept
# Go duration strings ("30s", "5m").

`

// InitConfig writes a default configuration file to the default location
// and returns its path. It fails if the file exists unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	data, err := RenderDefault()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// RenderDefault returns the default configuration as commented YAML.
func RenderDefault() ([]byte, error) {
	body, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.Write(body)
	return buf.Bytes(), nil
}
