package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/diagnostics"
	"github.com/aura-dev/aura/internal/proc"
)

type doctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // ok, warn, fail
	Message string `json:"message,omitempty"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the host environment and configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		checks := runDoctor(cmd.Context())

		if jsonOutput {
			if err := outputJSON(checks); err != nil {
				return err
			}
		} else {
			for _, c := range checks {
				mark := "ok"
				switch c.Status {
				case "warn":
					mark = "warn"
				case "fail":
					mark = "FAIL"
				}
				printf("[%s]\t%s", mark, c.Name)
				if c.Message != "" {
					printf(": %s", c.Message)
				}
				printf("\n")
			}
		}

		for _, c := range checks {
			if c.Status == "fail" {
				return core.ErrExecution("DOCTOR_FAILED", "one or more environment checks failed")
			}
		}
		return nil
	},
}

func runDoctor(ctx context.Context) []doctorCheck {
	var checks []doctorCheck
	add := func(name, status, message string) {
		checks = append(checks, doctorCheck{Name: name, Status: status, Message: message})
	}

	app, err := initApp()
	if err != nil {
		add("configuration", "fail", err.Error())
		return checks
	}
	defer app.Close()
	add("configuration", "ok", "")

	if err := writableDir(app.Config.State.Dir); err != nil {
		add("state directory", "fail", err.Error())
	} else {
		add("state directory", "ok", app.Config.State.Dir)
	}

	for _, tool := range []string{"git", "gh"} {
		res, err := app.Gateway.Run(ctx, proc.Request{Name: tool, Args: []string{"--version"}})
		switch {
		case err != nil && tool == "gh":
			add(tool, "warn", "not available; pull request creation will fail")
		case err != nil:
			add(tool, "fail", "not available")
		default:
			add(tool, "ok", strings.TrimSpace(firstLine(res.Stdout)))
		}
	}

	if defs := app.Agents.List(); len(defs) == 0 {
		add("agents", "warn", "no agent definitions found under "+strings.Join(app.Config.Agents.Dirs, ", "))
	} else {
		add("agents", "ok", "")
	}

	if len(app.Config.LLM.Providers) == 0 {
		add("providers", "warn", "no LLM providers configured; agent execution will fail")
	} else {
		add("providers", "ok", "")
	}

	pf := diagnostics.NewChecker().Run()
	switch {
	case !pf.OK:
		add("host resources", "fail", strings.Join(pf.Errors, "; "))
	case len(pf.Warnings) > 0:
		add("host resources", "warn", strings.Join(pf.Warnings, "; "))
	default:
		add("host resources", "ok", "")
	}

	return checks
}

func writableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o640); err != nil {
		return err
	}
	return os.Remove(probe)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
