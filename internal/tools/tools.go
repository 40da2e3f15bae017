// Package tools resolves the bundled external binaries for the running
// operating system.
package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Tool identifies a bundled external program
type Tool string

const (
	Rclone      Tool = "rclone"
	BoostStudio Tool = "booststudio"
)

// ErrUnsupportedOS is returned when a tool has no build for the running OS
var ErrUnsupportedOS = errors.New("tool is not available on this operating system")

// BinaryName returns the file name of tool's binary on goos
func BinaryName(tool Tool, goos string) (string, error) {
	switch tool {
	case Rclone:
		switch goos {
		case "windows":
			return "rclone-win.exe", nil
		case "linux":
			return "rclone-linux.exe", nil
		case "darwin":
			return "rclone-mac.exe", nil
		}
	case BoostStudio:
		switch goos {
		case "windows":
			return "BoostStudio.Console.exe", nil
		case "linux":
			return "BoostStudio.Console", nil
		}
	default:
		return "", fmt.Errorf("unknown tool %q", tool)
	}
	return "", fmt.Errorf("%w: %s on %s", ErrUnsupportedOS, tool, goos)
}

// Locator finds tool binaries below <dataDir>/tools
type Locator struct {
	dataDir   string
	overrides map[Tool]string
	goos      string
}

// NewLocator creates a locator for the running OS. A non-empty override
// path for a tool is used as-is.
func NewLocator(dataDir string, overrides map[Tool]string) *Locator {
	return &Locator{
		dataDir:   dataDir,
		overrides: overrides,
		goos:      runtime.GOOS,
	}
}

// ForOS returns a copy of the locator resolving names for goos
func (l *Locator) ForOS(goos string) *Locator {
	c := *l
	c.goos = goos
	return &c
}

// Path returns the binary path of tool
func (l *Locator) Path(tool Tool) (string, error) {
	if p := l.overrides[tool]; p != "" {
		return p, nil
	}

	name, err := BinaryName(tool, l.goos)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.dataDir, "tools", string(tool), name), nil
}

// RcloneConfig returns the rclone.conf bundled with the tools
func (l *Locator) RcloneConfig() string {
	return filepath.Join(l.dataDir, "tools", "rclone.conf")
}

// EnsureExecutable adds the execute bits to path on Linux. Other systems
// are left alone.
func EnsureExecutable(path string) error {
	return ensureExecutable(path, runtime.GOOS)
}

func ensureExecutable(path, goos string) error {
	if goos != "linux" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	mode := info.Mode().Perm()
	if mode&0111 == 0111 {
		return nil
	}
	if err := os.Chmod(path, mode|0111); err != nil {
		return fmt.Errorf("failed to make %s executable: %w", path, err)
	}
	return nil
}
