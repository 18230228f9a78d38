package main

import (
	"errors"
	"os"

	"github.com/aura-dev/aura/cmd/aura/cmd"
	"github.com/aura-dev/aura/internal/core"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(version, commit, date)

	// Usage and validation mistakes exit 2; everything else exits 1.
	if err := cmd.Execute(); err != nil {
		var derr *core.DomainError
		if errors.As(err, &derr) && derr.Category == core.ErrCatValidation {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
