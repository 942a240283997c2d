package filesystem

import (
	"os"
	"path/filepath"
)

// UserHomeDir returns the current user's home directory.
// If the home directory cannot be determined, it returns "." as a fallback.
func UserHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

// AppDir returns the cmdai state directory (~/.cmdai), honoring CMDAI_HOME
// for tests and alternate installs. The directory is not created here.
func AppDir() string {
	if dir := os.Getenv("CMDAI_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(UserHomeDir(), ".cmdai")
}
