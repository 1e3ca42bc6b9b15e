package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validation errors for security checks.
var (
	// ErrPathTraversal indicates a path contains directory traversal sequences.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")
)

// ValidatePath checks a path for security issues:
//   - No directory traversal (..)
//   - Resolves to absolute path and validates it stays within expected root
//   - Returns the cleaned, absolute path or an error
//
// If allowedRoot is empty, only traversal checks are performed.
// If allowedRoot is provided, the path must resolve within that directory.
func ValidatePath(path, allowedRoot string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	// Check for obvious traversal patterns before any processing. Both
	// separators are checked: Windows-style "..\\" would survive Clean on
	// Unix hosts otherwise.
	if strings.Contains(path, "..") || strings.Contains(path, "\\") {
		return "", fmt.Errorf("%w: contains '..' or '\\'", ErrPathTraversal)
	}

	cleanPath := filepath.Clean(path)

	// Re-check after cleaning (handles edge cases like "foo/../..")
	if strings.Contains(cleanPath, "..") {
		return "", fmt.Errorf("%w: resolves to traversal", ErrPathTraversal)
	}

	absPath := cleanPath
	if !filepath.IsAbs(cleanPath) {
		var err error
		absPath, err = filepath.Abs(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
	}

	if allowedRoot != "" {
		absRoot, err := filepath.Abs(allowedRoot)
		if err != nil {
			return "", fmt.Errorf("failed to resolve allowed root: %w", err)
		}

		rel, err := filepath.Rel(absRoot, absPath)
		if err != nil {
			return "", fmt.Errorf("%w: path outside allowed root", ErrPathTraversal)
		}

		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: path escapes allowed root", ErrPathTraversal)
		}
	}

	return absPath, nil
}

// ValidateStoredFilename checks that a stored filename is a bare file name
// with no path components, then resolves it within the tenant folder.
//
// This is the single gate every vault read/delete goes through; the returned
// path is guaranteed to live directly under tenantDir.
func ValidateStoredFilename(tenantDir, storedFilename string) (string, error) {
	if storedFilename == "" {
		return "", ErrEmptyPath
	}

	if strings.ContainsAny(storedFilename, "/\\") || strings.Contains(storedFilename, "..") {
		return "", fmt.Errorf("%w: stored filename contains path characters", ErrPathTraversal)
	}

	if storedFilename != filepath.Base(filepath.Clean(storedFilename)) {
		return "", fmt.Errorf("%w: stored filename is not a base name", ErrPathTraversal)
	}

	return ValidatePath(filepath.Join(tenantDir, storedFilename), tenantDir)
}
