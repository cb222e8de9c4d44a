package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	logsSubdir    = "logs"
	backupsSubdir = "backups"
)

// LogDir is where rotated log files are written.
func (c *AppConfig) LogDir() string {
	if c == nil {
		return runtimeDir("", logsSubdir)
	}
	return runtimeDir(c.Paths.Logs, logsSubdir)
}

// BackupDir holds local archives when no backup bucket is configured.
func (c *AppConfig) BackupDir() string {
	if c == nil {
		return runtimeDir("", backupsSubdir)
	}
	return runtimeDir(c.Paths.Backups, backupsSubdir)
}

// runtimeDir returns configured as an absolute path. Empty values fall back
// to subdir; relative values are joined onto the runtime home.
func runtimeDir(configured, subdir string) string {
	dir := strings.TrimSpace(configured)
	if dir == "" {
		dir = subdir
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(runtimeHome(), dir)
}

// runtimeHome is INKWELL_HOME when set. Otherwise it is the directory of the
// running binary, except for binaries built into the temp dir by `go run` or
// `go test`, which use the working directory.
func runtimeHome() string {
	if home := strings.TrimSpace(os.Getenv(EnvHome)); home != "" {
		if abs, err := filepath.Abs(home); err == nil {
			return abs
		}
		return filepath.Clean(home)
	}
	if dir, ok := binaryDir(); ok && !underTempDir(dir) {
		return dir
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func binaryDir() (string, bool) {
	exe, err := os.Executable()
	if err != nil || exe == "" {
		return "", false
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), true
}

func underTempDir(dir string) bool {
	tmp := os.TempDir()
	if resolved, err := filepath.EvalSymlinks(tmp); err == nil {
		tmp = resolved
	}
	rel, err := filepath.Rel(tmp, dir)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
