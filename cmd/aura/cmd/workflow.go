package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aura-dev/aura/internal/core"
)

var (
	workflowWorkspace   string
	workflowDescription string
	workflowIssue       string
	workflowAutonomous  bool
	workflowPRTitle     string
	workflowPRBody      string
	workflowReason      string
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Create and drive automated workflows",
}

var workflowNewCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Create a workflow with an isolated branch and worktree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		mode := core.AutomationStructured
		if workflowAutonomous {
			mode = core.AutomationAutonomous
		}
		ref := workflowWorkspace
		if ref == "" {
			ws, err := app.Workspaces.Default(cmd.Context())
			if err != nil {
				return err
			}
			ref = ws.ID
		}

		w, err := app.Orch.Create(cmd.Context(), ref, args[0], workflowDescription, workflowIssue, mode)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(w)
		}
		printf("Created workflow %s\n  branch:   %s\n  worktree: %s\n", w.ID, w.Branch, w.WorktreePath)
		return nil
	},
}

var workflowAnalyzeCmd = &cobra.Command{
	Use:   "analyze <workflow-id>",
	Short: "Run the analysis phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		w, err := app.Orch.Analyze(cmd.Context(), core.WorkflowID(args[0]))
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(w)
		}
		printf("Workflow %s is now %s\n\n%s\n", w.ID, w.Status, truncateString(w.AnalyzedContext, 2000))
		return nil
	},
}

var workflowPlanCmd = &cobra.Command{
	Use:   "plan <workflow-id>",
	Short: "Turn the analysis into an ordered step plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		w, err := app.Orch.Plan(cmd.Context(), core.WorkflowID(args[0]))
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(w)
		}
		printf("Planned %d steps for workflow %s:\n", len(w.Steps), w.ID)
		for _, step := range w.Steps {
			printf("  %d. %s [%s]\n", step.Order, step.Name, step.Capability)
		}
		return nil
	},
}

var workflowRunCmd = &cobra.Command{
	Use:   "run <workflow-id>",
	Short: "Execute all pending steps in order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		w, err := app.Orch.ExecuteAllPending(cmd.Context(), core.WorkflowID(args[0]))
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(w)
		}
		printWorkflow(w)
		return nil
	},
}

var workflowStepCmd = &cobra.Command{
	Use:   "step <workflow-id> <step-id>",
	Short: "Execute a single step",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		w, err := app.Orch.ExecuteStep(cmd.Context(), core.WorkflowID(args[0]), args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(w)
		}
		printWorkflow(w)
		return nil
	},
}

var workflowCompleteCmd = &cobra.Command{
	Use:   "complete <workflow-id>",
	Short: "Squash, push and open a pull request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		w, prURL, err := app.Orch.Complete(cmd.Context(), core.WorkflowID(args[0]), workflowPRTitle, workflowPRBody)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]interface{}{"workflow": w, "pr_url": prURL})
		}
		printf("Workflow %s completed.\n", w.ID)
		if prURL != "" {
			printf("Pull request: %s\n", prURL)
		}
		return nil
	},
}

var workflowCancelCmd = &cobra.Command{
	Use:   "cancel <workflow-id>",
	Short: "Cancel a workflow and clean up its worktree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		w, err := app.Orch.Cancel(cmd.Context(), core.WorkflowID(args[0]), workflowReason)
		if err != nil {
			return err
		}
		printf("Workflow %s cancelled.\n", w.ID)
		return nil
	},
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		workspaceID := ""
		if workflowWorkspace != "" {
			ws, err := app.resolveWorkspace(cmd.Context(), workflowWorkspace)
			if err != nil {
				return err
			}
			workspaceID = ws.ID
		}

		list, err := app.Orch.List(cmd.Context(), workspaceID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(list)
		}
		if len(list) == 0 {
			printf("No workflows.\n")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer tw.Flush()
		fmt.Fprintf(tw, "ID\tSTATUS\tTITLE\tSTEPS\tCREATED\n")
		for _, w := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				w.ID, w.Status, truncateString(w.Title, 40), len(w.Steps),
				w.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var workflowShowCmd = &cobra.Command{
	Use:   "show <workflow-id>",
	Short: "Show a workflow and its steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		w, err := app.Orch.Get(cmd.Context(), core.WorkflowID(args[0]))
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(w)
		}
		printWorkflow(w)
		return nil
	},
}

func printWorkflow(w *core.Workflow) {
	printf("Workflow %s\n", w.ID)
	printf("  title:    %s\n", w.Title)
	printf("  status:   %s\n", w.Status)
	printf("  branch:   %s\n", orDash(w.Branch))
	printf("  worktree: %s\n", orDash(w.WorktreePath))
	if w.Error != "" {
		printf("  error:    %s\n", w.Error)
	}
	if len(w.Steps) == 0 {
		return
	}
	printf("  steps:\n")
	for _, step := range w.Steps {
		printf("    %d. [%s] %s (%s", step.Order, step.Status, step.Name, step.ID)
		if step.Attempts > 1 {
			printf(", %d attempts", step.Attempts)
		}
		printf(")\n")
		if step.Error != "" {
			printf("       error: %s\n", truncateString(step.Error, 160))
		}
	}
}

func init() {
	workflowNewCmd.Flags().StringVarP(&workflowWorkspace, "workspace", "w", "", "workspace ID, alias or path")
	workflowNewCmd.Flags().StringVar(&workflowDescription, "description", "", "what the workflow should accomplish")
	workflowNewCmd.Flags().StringVar(&workflowIssue, "issue", "", "issue reference, e.g. owner/repo#42")
	workflowNewCmd.Flags().BoolVar(&workflowAutonomous, "autonomous", false, "run without confirmation gates")

	workflowCompleteCmd.Flags().StringVar(&workflowPRTitle, "title", "", "pull request title (default: workflow title)")
	workflowCompleteCmd.Flags().StringVar(&workflowPRBody, "body", "", "pull request body")

	workflowCancelCmd.Flags().StringVar(&workflowReason, "reason", "cancelled by user", "reason recorded on the workflow")

	workflowListCmd.Flags().StringVarP(&workflowWorkspace, "workspace", "w", "", "filter by workspace")

	workflowCmd.AddCommand(workflowNewCmd)
	workflowCmd.AddCommand(workflowAnalyzeCmd)
	workflowCmd.AddCommand(workflowPlanCmd)
	workflowCmd.AddCommand(workflowRunCmd)
	workflowCmd.AddCommand(workflowStepCmd)
	workflowCmd.AddCommand(workflowCompleteCmd)
	workflowCmd.AddCommand(workflowCancelCmd)
	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowShowCmd)
	rootCmd.AddCommand(workflowCmd)
}
