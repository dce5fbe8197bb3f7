package log

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

var (
	logDir     string
	logDirOnce sync.Once
)

// GetLogDir returns the platform-specific log directory for xtmatch.
// - Linux: /var/log/xtmatch/
// - Other: ~/.xtmatch/
// - Fallback: temp directory
// The directory is created if it doesn't exist.
func GetLogDir() string {
	logDirOnce.Do(func() {
		logDir = determineLogDir()
		if err := os.MkdirAll(logDir, 0755); err != nil {
			logDir = filepath.Join(os.TempDir(), "xtmatch")
			_ = os.MkdirAll(logDir, 0755)
		}
	})
	return logDir
}

func determineLogDir() string {
	if runtime.GOOS == "linux" {
		varLogDir := "/var/log/xtmatch"
		if err := os.MkdirAll(varLogDir, 0755); err == nil {
			testFile := filepath.Join(varLogDir, ".write_test")
			if f, err := os.Create(testFile); err == nil {
				_ = f.Close()
				_ = os.Remove(testFile)
				return varLogDir
			}
		}
	}
	return getUserLogDir()
}

func getUserLogDir() string {
	homeDir, err := os.UserHomeDir()
	if err == nil {
		userLogDir := filepath.Join(homeDir, ".xtmatch")
		if err := os.MkdirAll(userLogDir, 0755); err == nil {
			return userLogDir
		}
	}
	return filepath.Join(os.TempDir(), "xtmatch")
}

// ResolvePath places a bare file name in the log directory. Paths with a
// directory component are returned unchanged.
func ResolvePath(name string) string {
	if name == "" || filepath.Base(name) != name {
		return name
	}
	return filepath.Join(GetLogDir(), name)
}
