package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aura-dev/aura/internal/core"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List loaded agent definitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		defs := app.Agents.List()
		if jsonOutput {
			return outputJSON(defs)
		}
		if len(defs) == 0 {
			printf("No agents loaded. Add *.md definitions under: %s\n",
				strings.Join(app.Config.Agents.Dirs, ", "))
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer tw.Flush()
		fmt.Fprintf(tw, "ID\tPRIORITY\tCAPABILITIES\tPROVIDER\tSOURCE\n")
		for _, def := range defs {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
				def.ID, def.Priority, joinOrDash(capabilityNames(def.Capabilities)),
				orDash(def.Provider), def.SourcePath)
		}
		return nil
	},
}

func capabilityNames(caps []core.Capability) []string {
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, string(c))
	}
	return names
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}
