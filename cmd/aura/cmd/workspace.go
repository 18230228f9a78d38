package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	workspaceAlias string
	workspaceTags  []string
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage registered workspaces",
}

var workspaceAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register a directory as a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ws, err := app.Workspaces.Add(cmd.Context(), args[0], workspaceAlias, workspaceTags)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(ws)
		}
		printf("Registered workspace %s\n  path:  %s\n", ws.ID, ws.Path)
		if ws.Alias != "" {
			printf("  alias: %s\n", ws.Alias)
		}
		return nil
	},
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered workspaces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		list, err := app.Workspaces.List(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(list)
		}
		if len(list) == 0 {
			printf("No workspaces registered. Use 'aura workspace add <path>'.\n")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer tw.Flush()
		fmt.Fprintf(tw, "ID\tALIAS\tPATH\tTAGS\tDEFAULT\n")
		for _, ws := range list {
			def := ""
			if ws.IsDefault {
				def = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				ws.ID, orDash(ws.Alias), ws.Path, joinOrDash(ws.Tags), def)
		}
		return nil
	},
}

var workspaceRemoveCmd = &cobra.Command{
	Use:   "remove <workspace>",
	Short: "Unregister a workspace by ID, alias or path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ws, err := app.resolveWorkspace(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := app.Workspaces.Remove(cmd.Context(), ws.ID); err != nil {
			return err
		}
		if err := app.IndexStore.DeleteWorkspace(cmd.Context(), ws.ID); err != nil {
			app.Logger.Warn("cannot delete index rows for removed workspace", "workspace", ws.ID, "error", err)
		}
		printf("Removed workspace %s (%s)\n", ws.ID, ws.Path)
		return nil
	},
}

var workspaceDefaultCmd = &cobra.Command{
	Use:   "default <workspace>",
	Short: "Mark a workspace as the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ws, err := app.resolveWorkspace(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := app.Workspaces.SetDefault(cmd.Context(), ws.ID); err != nil {
			return err
		}
		printf("Default workspace is now %s (%s)\n", ws.ID, ws.Path)
		return nil
	},
}

func init() {
	workspaceAddCmd.Flags().StringVar(&workspaceAlias, "alias", "", "short name for the workspace")
	workspaceAddCmd.Flags().StringSliceVar(&workspaceTags, "tag", nil, "tag the workspace (repeatable)")

	workspaceCmd.AddCommand(workspaceAddCmd)
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceRemoveCmd)
	workspaceCmd.AddCommand(workspaceDefaultCmd)
	rootCmd.AddCommand(workspaceCmd)
}
