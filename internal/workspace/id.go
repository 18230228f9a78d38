package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"runtime"
	"strings"
)

// Canonicalize normalizes a path to its canonical form: absolute, forward
// slashes, and lowercased on host families with case-insensitive filesystems.
// Path to ID is a pure function of this form.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	canonical := filepath.ToSlash(abs)
	if caseInsensitiveFS() {
		canonical = strings.ToLower(canonical)
	}
	return canonical, nil
}

func caseInsensitiveFS() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}

// GenerateID derives the 16-hex-digit workspace ID from a canonical path via
// SHA-256 truncation.
func GenerateID(canonicalPath string) string {
	sum := sha256.Sum256([]byte(canonicalPath))
	return hex.EncodeToString(sum[:8])
}
