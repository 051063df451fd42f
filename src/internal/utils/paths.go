package utils

import "path/filepath"

// GetAbsolutePath returns path unchanged when it is absolute, otherwise
// resolves it against baseDir.
func GetAbsolutePath(path, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Clean(filepath.Join(baseDir, path))
}
