package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	idPattern     = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	columnPattern = regexp.MustCompile(`^[a-zA-Z0-9_\- ]+$`)
)

// IsValidID reports whether id only contains letters, digits, '-' and '_'.
func IsValidID(id string) bool {
	return idPattern.MatchString(id)
}

// IsValidColumnName reports whether name only contains letters, digits,
// spaces, '-' and '_'.
func IsValidColumnName(name string) bool {
	return columnPattern.MatchString(name)
}

// SafeJoin joins elem onto root and rejects results that escape root.
func SafeJoin(root string, elem ...string) (string, error) {
	for _, e := range elem {
		if e == "" || e == "." || e == ".." || strings.ContainsAny(e, `/\`) {
			return "", fmt.Errorf("invalid path element %q", e)
		}
	}
	joined := filepath.Join(append([]string{root}, elem...)...)
	rel, err := filepath.Rel(filepath.Clean(root), joined)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path escapes root: %s", joined)
	}
	return joined, nil
}
