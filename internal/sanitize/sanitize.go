// Package sanitize provides shared identifier and filename sanitization.
//
// Tenant folder names and stored filenames end up on disk, so every
// identifier derived from user input is normalized through this package
// before it touches the filesystem.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const (
	// MaxIdentifierLength is the maximum length for folder name components.
	MaxIdentifierLength = 64

	// HashSuffixLength is the length of the hash suffix added to truncated
	// identifiers. Format: _<8-char-hash> = 9 characters total.
	HashSuffixLength = 9

	// DefaultIdentifier is used when sanitization produces an empty result.
	DefaultIdentifier = "default"

	// MaxFilenameLength bounds stored filenames (before the timestamp prefix).
	MaxFilenameLength = 128
)

// Identifier sanitizes a string for use in tenant folder names.
//
// Rules applied:
//   - Converts to lowercase
//   - Replaces invalid characters with underscores
//   - Collapses multiple underscores
//   - Trims leading/trailing underscores
//   - Truncates to MaxIdentifierLength with hash suffix if too long
//   - Returns DefaultIdentifier if result would be empty
//
// Examples:
//
//	"Acme Corp"   -> "acme_corp"
//	"My Tenant!"  -> "my_tenant"
//	"" or "!!!"   -> "default"
func Identifier(s string) string {
	if s == "" {
		return DefaultIdentifier
	}

	s = strings.ToLower(s)

	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}

	sanitized := result.String()
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")

	if sanitized == "" {
		return DefaultIdentifier
	}

	if len(sanitized) > MaxIdentifierLength {
		sanitized = truncateWithHash(sanitized)
	}

	return sanitized
}

// Filename sanitizes an uploaded filename for on-disk storage.
//
// Any path components are stripped first, so "a/b/../c.txt" reduces to
// "c.txt". The extension is preserved (lowercased); the base name goes
// through the same character rules as Identifier.
func Filename(name string) string {
	// Strip any directory components from untrusted input. Both separators
	// are handled so Windows-style uploads cannot smuggle path segments.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.Clean(name))
	if name == "." || name == "/" || name == "" {
		return DefaultIdentifier
	}

	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))

	sanitized := Identifier(base)
	if len(sanitized)+len(ext) > MaxFilenameLength {
		sanitized = truncateWithHash(sanitized)
	}

	// Extensions are restricted to dot + alphanumerics; anything else is dropped.
	if ext != "" {
		for _, r := range ext[1:] {
			if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
				return sanitized
			}
		}
	}

	return sanitized + ext
}

// truncateWithHash truncates a string to fit within MaxIdentifierLength,
// appending a hash suffix to preserve uniqueness.
//
// Format: <truncated>_<8-char-hash>
func truncateWithHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	hashSuffix := "_" + hex.EncodeToString(hash[:])[:8]

	maxBase := MaxIdentifierLength - HashSuffixLength
	truncated := s[:maxBase]
	truncated = strings.TrimRight(truncated, "_")

	return truncated + hashSuffix
}
