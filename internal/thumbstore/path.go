package thumbstore

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mitchellh/go-homedir"
)

// AppDir is the per-application directory created under the user data dir.
const AppDir = "imgview"

// DataDir returns the platform's per-user data directory:
// $XDG_DATA_HOME or ~/.local/share on Unix, ~/Library/Application Support
// on macOS and %LOCALAPPDATA% on Windows.
func DataDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return dir, nil
		}
		return homedir.Expand(`~\AppData\Local`)
	case "darwin":
		return homedir.Expand("~/Library/Application Support")
	default:
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return dir, nil
		}
		return homedir.Expand("~/.local/share")
	}
}

// DefaultPath returns <data dir>/imgview/thumbs.db, creating the directory.
func DefaultPath() (string, error) {
	base, err := DataDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory: %w", err)
	}
	return PathIn(filepath.Join(base, AppDir))
}

// PathIn returns dir/thumbs.db, creating dir if needed.
func PathIn(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return filepath.Join(dir, FileName), nil
}
