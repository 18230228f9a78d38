package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/events"
	"github.com/aura-dev/aura/internal/index"
)

var indexWatch bool

var indexCmd = &cobra.Command{
	Use:   "index [workspace]",
	Short: "Build or refresh the workspace index",
	Long: `Index ingests every tracked file of the workspace into retrievable
chunks and a code graph. With --watch it keeps running, re-indexing on
filesystem changes until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ref := ""
		if len(args) == 1 {
			ref = args[0]
		}
		ws, err := app.resolveWorkspace(cmd.Context(), ref)
		if err != nil {
			return err
		}

		if indexWatch {
			return watchWorkspace(app, ws)
		}

		printf("Indexing %s ...\n", ws.Path)
		stats, err := app.Queue.RunNow(cmd.Context(), ws)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(stats)
		}
		printf("Indexed %d files in %s (%d failed, %d chunks, %d graph nodes)\n",
			stats.Processed, stats.Duration.Round(time.Millisecond),
			stats.Failed, stats.ChunksCreated, stats.NodesCreated)
		if stats.CommitSHA != "" {
			printf("Commit: %s\n", stats.CommitSHA)
		}
		return nil
	},
}

// watchWorkspace runs the job queue and a filesystem watcher until SIGINT.
func watchWorkspace(app *App, ws *core.Workspace) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Queue.Start(ctx)
	if _, err := app.Queue.Enqueue(ws); err != nil {
		return err
	}

	sub := app.Bus.Subscribe(
		events.TypeIndexJobStarted,
		events.TypeIndexJobProgress,
		events.TypeIndexJobCompleted,
		events.TypeIndexJobFailed,
	)
	go func() {
		for ev := range sub {
			je, ok := ev.(events.IndexJobEvent)
			if !ok {
				continue
			}
			switch ev.EventType() {
			case events.TypeIndexJobStarted:
				printf("indexing started\n")
			case events.TypeIndexJobProgress:
				printf("  %d/%d files\n", je.Processed, je.Total)
			case events.TypeIndexJobCompleted:
				printf("indexing complete: %d files, %d failed\n", je.Processed, je.Failed)
			case events.TypeIndexJobFailed:
				printf("indexing failed: %s\n", je.Error)
			}
		}
	}()

	printf("Watching %s for changes (Ctrl-C to stop)\n", ws.Path)
	watcher := index.NewWatcher(app.Queue, app.Logger)
	err := watcher.Watch(ctx, ws)
	app.Queue.Wait()
	return err
}

var indexStatusCmd = &cobra.Command{
	Use:   "status [workspace]",
	Short: "Report index freshness for a workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ref := ""
		if len(args) == 1 {
			ref = args[0]
		}
		ws, err := app.resolveWorkspace(cmd.Context(), ref)
		if err != nil {
			return err
		}

		fr, err := app.Freshness.Check(cmd.Context(), ws)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(fr)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer tw.Flush()
		fmt.Fprintf(tw, "workspace\t%s\n", ws.ID)
		if fr.IndexedAt.IsZero() {
			fmt.Fprintf(tw, "indexed\tnever\n")
			return nil
		}
		fmt.Fprintf(tw, "indexed\t%s\n", fr.IndexedAt.Format(time.RFC3339))
		fmt.Fprintf(tw, "fresh\t%v\n", fr.Fresh)
		if fr.IndexedSHA != "" {
			fmt.Fprintf(tw, "indexed commit\t%s\n", fr.IndexedSHA)
		}
		if fr.HeadSHA != "" {
			fmt.Fprintf(tw, "head commit\t%s\n", fr.HeadSHA)
		}
		if fr.CommitsBehind > 0 {
			fmt.Fprintf(tw, "commits behind\t%d\n", fr.CommitsBehind)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&indexWatch, "watch", false, "keep indexing on filesystem changes")
	indexCmd.AddCommand(indexStatusCmd)
	rootCmd.AddCommand(indexCmd)
}
