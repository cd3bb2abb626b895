package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/charoster/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the query surface over HTTP",
	Long: `Serve entities, definitions and derived images as JSON and PNG endpoints
and stream load notifications to WebSocket clients at /ws. Pack changes
reload the packs unless --no-watch is set.

Examples:
  charoster serve                  # Serve on localhost:8180
  charoster serve -p 9000          # Serve on another port
  charoster serve --host 0.0.0.0   # Listen on every interface
  charoster serve --no-watch       # Serve without reloading on changes`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveNoWatch bool

func init() {
	rootCmd.AddCommand(serveCmd)
	AddStandardFlags(serveCmd, "server")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Don't reload when pack files change")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	reportLoad(out, a.App)

	if !serveNoWatch {
		fileWatcher, err := watchPacks(ctx, a.App, nil, func() {
			fmt.Fprintln(out, "Packs reloaded")
		})
		if err != nil {
			return err
		}
		defer fileWatcher.Stop()
	}

	srv := server.New(a.App)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()
	fmt.Fprintf(out, "Serving on http://%s (Press Ctrl+C to stop)\n", a.Config().Address())

	select {
	case err := <-errCh:
		_ = srv.Shutdown(context.Background())
		return err
	case <-ctx.Done():
	}

	fmt.Fprintln(out, "Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return <-errCh
}
