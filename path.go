package treeforge

import (
	"path"
	"strings"
)

// NormalizePath normalizes a repository path by trimming whitespace, removing
// leading/trailing slashes, collapsing repeated slashes and dropping "." segments.
// The empty result is the root. Paths with ".." segments are rejected.
func NormalizePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, "/")
	if p == "" {
		return "", nil
	}

	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}

	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", NewInvalidPathError(p, "path contains parent directory references (..)")
		}
		if strings.ContainsRune(part, 0) {
			return "", NewInvalidPathError(p, "path contains a NUL byte")
		}
		if part == ".git" {
			return "", NewInvalidPathError(p, "path enters the .git directory")
		}
	}

	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", nil
	}

	return cleaned, nil
}

// ValidateEntryPath normalizes a path that must name an entry, not the root.
func ValidateEntryPath(p string) (string, error) {
	normalized, err := NormalizePath(p)
	if err != nil {
		return "", err
	}

	if normalized == "" {
		return "", NewInvalidPathError(p, "path cannot be empty")
	}

	return normalized, nil
}

// ValidateNestedPath normalizes a path that must lie inside a directory,
// i.e. have at least the shape dir/name.
func ValidateNestedPath(p string) (string, error) {
	normalized, err := ValidateEntryPath(p)
	if err != nil {
		return "", err
	}

	if !strings.Contains(normalized, "/") {
		return "", NewInvalidPathError(p, "root-level entries cannot be modified")
	}

	return normalized, nil
}

// ValidateName checks that name is a single path segment.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return NewInvalidPathError(name, "name cannot be empty")
	case strings.TrimSpace(name) != name:
		return NewInvalidPathError(name, "name cannot start or end with whitespace")
	case strings.Contains(name, "/"):
		return NewInvalidPathError(name, "name must be a single path segment")
	case name == "." || name == "..":
		return NewInvalidPathError(name, "name cannot be a relative reference")
	case name == ".git":
		return NewInvalidPathError(name, "name is reserved")
	case strings.ContainsRune(name, 0):
		return NewInvalidPathError(name, "name contains a NUL byte")
	}
	return nil
}

// SplitPath returns the parent directory and the final segment of a normalized path.
func SplitPath(p string) (dir, name string) {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

// IsWithin reports whether p equals dir or lies below it.
func IsWithin(p, dir string) bool {
	if dir == "" {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}
