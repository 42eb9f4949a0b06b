package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigDirUsesOverride(t *testing.T) {
	base := t.TempDir()
	override := filepath.Join(base, "..", filepath.Base(base), "custom-config")

	t.Setenv(ConfigDirEnv, override)
	t.Setenv(xdgConfigHomeEnv, "")

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}

	want, err := filepath.Abs(override)
	if err != nil {
		t.Fatalf("filepath.Abs(%q) error = %v", override, err)
	}
	want = filepath.Clean(want)

	if got != want {
		t.Fatalf("ConfigDir() = %q, want %q", got, want)
	}
}

func TestConfigDirUsesXDGConfigHome(t *testing.T) {
	xdgHome := t.TempDir()

	t.Setenv(ConfigDirEnv, "")
	t.Setenv(xdgConfigHomeEnv, xdgHome)

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}

	want := filepath.Join(xdgHome, appName)
	if got != want {
		t.Fatalf("ConfigDir() = %q, want %q", got, want)
	}
}

func TestConfigDirOverrideWhitespaceOnly(t *testing.T) {
	// Whitespace-only override should fall through to XDG
	xdgHome := t.TempDir()
	t.Setenv(ConfigDirEnv, "   ")
	t.Setenv(xdgConfigHomeEnv, xdgHome)

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if want := filepath.Join(xdgHome, appName); got != want {
		t.Fatalf("ConfigDir() = %q, want %q", got, want)
	}
}

func TestConfigDirFallsBackToUserConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("AppData", home)
	t.Setenv(ConfigDirEnv, "")
	t.Setenv(xdgConfigHomeEnv, "")

	configDir, err := os.UserConfigDir()
	if err != nil {
		t.Fatalf("os.UserConfigDir() error = %v", err)
	}

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if want := filepath.Join(filepath.Clean(configDir), appName); got != want {
		t.Fatalf("ConfigDir() = %q, want %q", got, want)
	}
}

func TestConfigFilePaths(t *testing.T) {
	root := t.TempDir()
	t.Setenv(ConfigDirEnv, root)
	t.Setenv(xdgConfigHomeEnv, "")

	global, err := GlobalConfigFile()
	if err != nil {
		t.Fatalf("GlobalConfigFile() error = %v", err)
	}
	if want := filepath.Join(root, "config.yaml"); global != want {
		t.Fatalf("GlobalConfigFile() = %q, want %q", global, want)
	}

	project := t.TempDir()
	got, err := ProjectConfigFile(project)
	if err != nil {
		t.Fatalf("ProjectConfigFile() error = %v", err)
	}
	if want := filepath.Join(project, ".settle.yaml"); got != want {
		t.Fatalf("ProjectConfigFile() = %q, want %q", got, want)
	}
}

func TestNormalizePathRejectsEmpty(t *testing.T) {
	t.Parallel()
	if _, err := normalizePath(""); err == nil {
		t.Fatal("normalizePath(\"\") should fail")
	}
}
