package core

import (
	"time"
)

// Workspace is a registered root directory. Its identity is a deterministic
// hash of the canonical path, so registering the same path twice always
// yields the same ID.
type Workspace struct {
	ID        string // 16 lowercase hex digits
	Path      string // canonical form
	Alias     string // optional, unique case-insensitively
	Tags      []string
	IsDefault bool
	CreatedAt time.Time
}

// HasTag reports whether the workspace carries the tag.
func (w *Workspace) HasTag(tag string) bool {
	for _, t := range w.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
