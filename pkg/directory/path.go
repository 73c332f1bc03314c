package directory

import "strings"

// Normalize canonicalizes a path to begin with a dot. The empty path
// normalizes to ".", the folder that matches every key.
func Normalize(path string) string {
	if strings.HasPrefix(path, ".") {
		return path
	}
	return "." + path
}

// IsFolder reports whether a normalized path designates a folder (partial
// qualification).
func IsFolder(path string) bool {
	return strings.HasSuffix(path, ".")
}

// Join prepends a view prefix to a path. The prefix carries its own
// leading dot and no trailing dot.
func Join(prefix, path string) string {
	return prefix + Normalize(path)
}

// ValidKey reports whether a normalized, fully qualified key obeys the
// segment grammar: dot-joined segments of [A-Za-z_][A-Za-z0-9_]*.
func ValidKey(key string) bool {
	if !strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") {
		return false
	}
	for _, segment := range strings.Split(key[1:], ".") {
		if !validSegment(segment) {
			return false
		}
	}
	return true
}

func validSegment(segment string) bool {
	if len(segment) == 0 {
		return false
	}
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// coalesce drops paths that are covered by another path in the set: an
// exact key under a folder, or a folder under a shorter folder. The result
// keeps the original kind split: folders as prefixes, the rest as exact
// keys.
func coalesce(paths []string) (folders, exacts []string) {
	normalized := make([]string, 0, len(paths))
	for _, path := range paths {
		normalized = append(normalized, Normalize(path))
	}

	var allFolders []string
	for _, path := range normalized {
		if IsFolder(path) {
			allFolders = append(allFolders, path)
		}
	}

	covered := func(path string) bool {
		for _, folder := range allFolders {
			if path != folder && strings.HasPrefix(path, folder) {
				return true
			}
		}
		return false
	}

	for _, path := range normalized {
		if covered(path) {
			continue
		}
		if IsFolder(path) {
			folders = append(folders, path)
		} else {
			exacts = append(exacts, path)
		}
	}
	return folders, exacts
}
