package agent

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aura-dev/aura/internal/core"
)

// DefaultMaxValidationFailures ends a run after this many consecutive failed
// validation attempts.
const DefaultMaxValidationFailures = 5

// codeExtensions are the file types whose modification makes a build
// validation worthwhile.
var codeExtensions = map[string]bool{
	"cs": true, "ts": true, "tsx": true, "js": true, "jsx": true,
	"py": true, "go": true, "rs": true, "java": true, "kt": true,
	"swift": true, "cpp": true, "c": true, "h": true, "fs": true, "rb": true,
}

// ValidationTracker follows which code files an agent touched and how many
// validation attempts failed in a row. Tracking is idempotent per file.
type ValidationTracker struct {
	mu          sync.Mutex
	modified    map[string]bool
	failures    int
	maxFailures int
}

// NewValidationTracker creates a tracker with the default failure cap.
func NewValidationTracker() *ValidationTracker {
	return &ValidationTracker{
		modified:    make(map[string]bool),
		maxFailures: DefaultMaxValidationFailures,
	}
}

// TrackFile records a modified file. Non-code files, empty and whitespace
// paths are ignored; tracking the same file twice is a no-op.
func (v *ValidationTracker) TrackFile(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if !codeExtensions[ext] {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.modified[filepath.ToSlash(path)] = true
}

// ModifiedFiles returns the tracked files, sorted.
func (v *ValidationTracker) ModifiedFiles() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	files := make([]string, 0, len(v.modified))
	for f := range v.modified {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// NeedsValidation reports whether any code file was modified since the last
// successful validation.
func (v *ValidationTracker) NeedsValidation() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.modified) > 0
}

// RecordSuccess clears the tracked files and resets the failure streak.
func (v *ValidationTracker) RecordSuccess() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.modified = make(map[string]bool)
	v.failures = 0
}

// RecordFailure counts one failed validation attempt and reports an error
// once the streak reaches the cap.
func (v *ValidationTracker) RecordFailure() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures++
	if v.failures >= v.maxFailures {
		return core.ErrExecution("VALIDATION_EXHAUSTED",
			"validation failed "+strconv.Itoa(v.failures)+" times in a row")
	}
	return nil
}

// Failures returns the current consecutive failure count.
func (v *ValidationTracker) Failures() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.failures
}
