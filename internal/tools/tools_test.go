package tools

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryName(t *testing.T) {
	tests := []struct {
		tool    Tool
		goos    string
		want    string
		wantErr error
	}{
		{Rclone, "windows", "rclone-win.exe", nil},
		{Rclone, "linux", "rclone-linux.exe", nil},
		{Rclone, "darwin", "rclone-mac.exe", nil},
		{BoostStudio, "windows", "BoostStudio.Console.exe", nil},
		{BoostStudio, "linux", "BoostStudio.Console", nil},
		{BoostStudio, "darwin", "", ErrUnsupportedOS},
		{Rclone, "plan9", "", ErrUnsupportedOS},
	}

	for _, tt := range tests {
		t.Run(string(tt.tool)+"/"+tt.goos, func(t *testing.T) {
			got, err := BinaryName(tt.tool, tt.goos)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBinaryName_UnknownTool(t *testing.T) {
	_, err := BinaryName("unknown", "linux")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedOS)
}

func TestLocator_Path(t *testing.T) {
	l := NewLocator("/data", map[Tool]string{BoostStudio: "/opt/bs/BoostStudio.Console"}).ForOS("linux")

	rclone, err := l.Path(Rclone)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "tools", "rclone", "rclone-linux.exe"), rclone)

	bs, err := l.Path(BoostStudio)
	require.NoError(t, err)
	assert.Equal(t, "/opt/bs/BoostStudio.Console", bs)

	assert.Equal(t, filepath.Join("/data", "tools", "rclone.conf"), l.RcloneConfig())

	_, err = NewLocator("/data", nil).ForOS("darwin").Path(BoostStudio)
	assert.ErrorIs(t, err, ErrUnsupportedOS)
}

func TestEnsureExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}

	path := filepath.Join(t.TempDir(), "BoostStudio.Console")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0644))

	require.NoError(t, ensureExecutable(path, "darwin"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	require.NoError(t, ensureExecutable(path, "linux"))
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	// Already executable is a no-op.
	require.NoError(t, ensureExecutable(path, "linux"))

	assert.Error(t, ensureExecutable(filepath.Join(t.TempDir(), "missing"), "linux"))
}
