package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll every configured stream until interrupted",
	Long:  "run submits every feed at start and on each tick of its stream's schedule. SIGHUP reloads the enrichment directory.",
	RunE:  runAction,
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "poll every feed once and exit (env RUN_ONCE)")
	rootCmd.AddCommand(runCmd)
}

func runAction(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	r, err := a.factory.Build(ctx, a.doc)
	if err != nil {
		return err
	}

	if runOnce || a.env.RunOnce {
		run, err := r.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("run %s: %w", run.ID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d feeds polled, %d items stored\n", run.ID, len(run.Results), run.Stored())
		return nil
	}

	go a.watchReload(ctx)
	return r.Start(ctx)
}

func (a *app) watchReload(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	a.reloadOn(ctx, hup)
}

// reloadOn reloads the directory on every value received from reload until ctx
// is done.
func (a *app) reloadOn(ctx context.Context, reload <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-reload:
			if err := a.reloadDirectory(); err != nil {
				a.logger.Error("Failed to reload directory", slog.String("error", err.Error()))
			}
		}
	}
}
