package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "keysense"

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - Windows: %LOCALAPPDATA%\keysense\
//   - macOS:   ~/Library/Application Support/keysense/
//   - Linux:   ~/.local/share/keysense/
//
// Falls back to ~/.keysense if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return windowsDataDir()
	case "darwin":
		return macOSDataDir()
	case "linux":
		return linuxDataDir()
	default:
		return fallbackDataDir()
	}
}

// Activity data is per machine, so Windows uses the local (not roaming) profile.
func windowsDataDir() string {
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		return filepath.Join(localAppData, appName)
	}
	return filepath.Join(homeDir(), "AppData", "Local", appName)
}

func macOSDataDir() string {
	return filepath.Join(homeDir(), "Library", "Application Support", appName)
}

// XDG Base Directory Specification
func linuxDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, appName)
	}
	return filepath.Join(homeDir(), ".local", "share", appName)
}

func fallbackDataDir() string {
	return filepath.Join(homeDir(), "."+appName)
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if none found.
func FindConfigFile() string {
	// Current directory first, then the data directory.
	searchDirs := []string{
		".",
		KeysenseDir(),
	}

	for _, dir := range searchDirs {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
