package engine

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// EngineEnv returns base with PATH replaced by libraryDirs, which lets the
// engine find the shared libraries its runtime loads. With no library
// directories base is returned unchanged.
func EngineEnv(base []string, libraryDirs []string) []string {
	env := make([]string, 0, len(base)+1)
	if len(libraryDirs) == 0 {
		return append(env, base...)
	}

	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if isPathVar(name) {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "PATH="+strings.Join(libraryDirs, string(os.PathListSeparator)))
}

func isPathVar(name string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(name, "PATH")
	}
	return name == "PATH"
}

// DefaultLibraryDirs lists the directories, relative to an installation root,
// that hold the engine's runtime libraries. Only Windows needs them on PATH.
func DefaultLibraryDirs(root string) []string {
	if runtime.GOOS != "windows" {
		return nil
	}
	rHome := filepath.Join(root, "Frameworks", "R")
	return []string{
		filepath.Join(root, "Resources", "lib"),
		filepath.Join(rHome, "bin", "x64"),
		filepath.Join(rHome, "library", "RInside", "lib", "x64"),
	}
}

// DefaultExecutable is the engine binary inside an installation root.
func DefaultExecutable(root string) string {
	name := "jamovi-engine"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(root, "bin", name)
}
