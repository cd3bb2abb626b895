package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/charoster/internal/app"
	"github.com/conneroisu/charoster/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Reload the packs whenever a pack file changes",
	Long: `Watch <work_folder>/packs and reload every pack after a burst of changes
settles. Each reload resets the caches, rediscovers the packs and reports
the load errors it collected.

Examples:
  charoster watch              # Report a summary per reload
  charoster watch --verbose    # Also list the changed files`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchVerbose bool

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "List the changed files")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	reportLoad(out, a.App)

	fileWatcher, err := watchPacks(ctx, a.App, func(events []watcher.ChangeEvent) {
		if watchVerbose {
			for _, event := range events {
				fmt.Fprintf(out, "  %s: %s\n", event.Type, event.Path)
			}
		} else {
			fmt.Fprintf(out, "%d file(s) changed\n", len(events))
		}
	}, func() {
		reportLoad(out, a.App)
	})
	if err != nil {
		return err
	}
	defer fileWatcher.Stop()

	fmt.Fprintf(out, "Watching %s (Press Ctrl+C to stop)\n", a.Config().PacksFolder())
	<-ctx.Done()
	fmt.Fprintln(out, "Stopping file watcher...")
	return nil
}

// watchPacks reloads a whenever a pack file changes. changed runs before
// each reload, reloaded after it.
func watchPacks(ctx context.Context, a *app.App, changed func([]watcher.ChangeEvent), reloaded func()) (*watcher.FileWatcher, error) {
	cfg := a.Config()
	logger := a.Logger().WithComponent("watcher")

	fileWatcher, err := watcher.NewFileWatcher(cfg.Watch.Debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	fileWatcher.AddFilter(watcher.NoHiddenFilter)
	fileWatcher.AddFilter(watcher.PackFileFilter)
	fileWatcher.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		if changed != nil {
			changed(events)
		}
		if _, err := a.Reload(ctx); err != nil {
			return err
		}
		if err := a.AwaitIdle(ctx); err != nil {
			return err
		}
		if reloaded != nil {
			reloaded()
		}
		return nil
	})

	if err := fileWatcher.AddRecursive(cfg.PacksFolder()); err != nil {
		_ = fileWatcher.Stop()
		return nil, fmt.Errorf("failed to watch %s: %w", cfg.PacksFolder(), err)
	}
	if err := fileWatcher.Start(ctx); err != nil {
		_ = fileWatcher.Stop()
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}
	return fileWatcher, nil
}

// reportLoad prints the pack and entity counts plus every collected error
func reportLoad(w io.Writer, a *app.App) {
	status := a.Status()
	fmt.Fprintf(w, "Loaded %d pack(s), %d definition(s): %v\n",
		status["packs"], status["definitions"], status["entities"])

	records := a.Errors()
	for _, record := range records {
		fmt.Fprintf(w, "  error: %v\n", record.Err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
