package config

import (
	"os"
	"path/filepath"
	"strings"
)

// quackstackDirName is the name of the per-user config directory, mirroring
// the teacher's ".crabstack" convention.
const quackstackDirName = ".quackstack"

// expandPath resolves a leading "~" to the current user's home directory.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// localQuackstackDirExists reports whether "./.quackstack" exists in the
// current working directory, which takes priority over the home directory.
func localQuackstackDirExists() bool {
	info, err := os.Stat(quackstackDirName)
	return err == nil && info.IsDir()
}

// defaultQuackstackRoot returns the directory that holds the config file and
// on-disk stores when no explicit root is configured: "./.quackstack" if
// present, otherwise "$HOME/.quackstack".
func defaultQuackstackRoot() string {
	if localQuackstackDirExists() {
		return quackstackDirName
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return quackstackDirName
	}
	return filepath.Join(home, quackstackDirName)
}

// defaultQuackstackPath joins the default root with the given relative path.
func defaultQuackstackPath(elem ...string) string {
	return filepath.Join(append([]string{defaultQuackstackRoot()}, elem...)...)
}

// resolveQuackstackPath expands "~" in an explicit override path, or falls
// back to defaultQuackstackPath when override is empty.
func resolveQuackstackPath(override string, elem ...string) string {
	if override != "" {
		return expandPath(override)
	}
	return defaultQuackstackPath(elem...)
}
