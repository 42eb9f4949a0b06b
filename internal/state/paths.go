// Package state centralizes filesystem locations for settle configuration.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ConfigDirEnv overrides the default configuration root.
	ConfigDirEnv = "SETTLE_CONFIG_DIR"

	xdgConfigHomeEnv = "XDG_CONFIG_HOME"
	appName          = "settle"

	// ProjectConfigName is the per-project config file looked up in the working directory.
	ProjectConfigName = ".settle.yaml"
)

// ConfigDir returns the configuration root for settle.
// Resolution order:
//  1. SETTLE_CONFIG_DIR (if set)
//  2. XDG_CONFIG_HOME/settle (if XDG_CONFIG_HOME is set)
//  3. os.UserConfigDir()/settle (cross-platform fallback)
func ConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv(ConfigDirEnv)); override != "" {
		return normalizePath(override)
	}

	if xdg := strings.TrimSpace(os.Getenv(xdgConfigHomeEnv)); xdg != "" {
		root, err := normalizePath(xdg)
		if err != nil {
			return "", err
		}
		return filepath.Join(root, appName), nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	root, err := normalizePath(configDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, appName), nil
}

// GlobalConfigFile returns the user-wide config file path.
func GlobalConfigFile() (string, error) {
	return InConfigDir("config.yaml")
}

// ProjectConfigFile returns the project config file path inside dir.
func ProjectConfigFile(dir string) (string, error) {
	root, err := normalizePath(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, ProjectConfigName), nil
}

// InConfigDir returns a path rooted under ConfigDir with additional path elements.
func InConfigDir(parts ...string) (string, error) {
	root, err := ConfigDir()
	if err != nil {
		return "", err
	}
	all := make([]string, 0, len(parts)+1)
	all = append(all, root)
	all = append(all, parts...)
	return filepath.Join(all...), nil
}

func normalizePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %q: %w", path, err)
	}
	return filepath.Clean(absPath), nil
}
