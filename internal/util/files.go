package util

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode"
)

// CleanFileName reduces a client-supplied file name to its last path
// element with control characters removed. It returns "" when nothing
// usable is left.
func CleanFileName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}

func withinRoot(root, target string) bool {
	if root == target {
		return true
	}
	return strings.HasPrefix(target, root+string(filepath.Separator))
}

// SafeJoin joins a single path element under root and refuses anything that
// would land outside it.
func SafeJoin(root, elem string) (string, error) {
	if elem == "" || strings.ContainsAny(elem, "/\\\x00") || elem == "." || elem == ".." {
		return "", errors.New("invalid path element")
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	rootAbs = filepath.Clean(rootAbs)
	joined := filepath.Join(rootAbs, elem)
	if !withinRoot(rootAbs, joined) {
		return "", errors.New("path escapes root")
	}
	return joined, nil
}
