package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sadopc/stackvault/internal/timers"
)

func newTimerCmd(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Start, stop and inspect session timers",
		Long: `Session timers measure how long a tool is used. Timers survive restarts:
start one here and stop it later from the dashboard or another shell.
Stopping a timer logs the session in the usage ledger.`,
	}
	cmd.AddCommand(
		newTimerStartCmd(r),
		newTimerStopCmd(r),
		newTimerListCmd(r),
		newTimerWatchCmd(r),
	)
	return cmd
}

func newTimerStartCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "start TOOL",
		Short: "Start a timer (restarts it if already running)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := r.open(false)
			if err != nil {
				return err
			}
			defer e.close()

			t, err := e.store.FindTool(args[0])
			if err != nil {
				return err
			}
			if t.Archived {
				return fmt.Errorf("%s is archived", t.Name)
			}

			restarted := e.registry.IsRunning(t.ID)
			at := e.registry.Start(t.ID, t.Name)

			w := cmd.OutOrStdout()
			if restarted {
				yellow.Fprintf(w, "Restarted timer for %s", t.Name)
			} else {
				green.Fprintf(w, "Started timer for %s", t.Name)
			}
			fmt.Fprintf(w, " at %s\n", at.Started().In(e.clock.Now().Location()).Format("15:04:05"))
			return nil
		},
	}
}

func newTimerStopCmd(r *runner) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "stop [TOOL]",
		Short: "Stop a timer and log the session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("give a TOOL or --all")
			}

			e, err := r.open(false)
			if err != nil {
				return err
			}
			defer e.close()

			var targets []timers.ActiveTimer
			if all {
				targets = e.registry.ListActive()
			} else {
				t, err := e.store.FindTool(args[0])
				if err != nil {
					return err
				}
				targets = []timers.ActiveTimer{{ToolID: t.ID, ToolName: t.Name}}
			}

			w := cmd.OutOrStdout()
			if len(targets) == 0 {
				fmt.Fprintln(w, "No timers running")
				return nil
			}
			for _, at := range targets {
				if err := stopAndLog(w, e, at.ToolID, at.ToolName); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Stop every running timer")
	return cmd
}

// stopAndLog stops one timer and appends its session to the ledger.
func stopAndLog(w io.Writer, e *env, toolID, name string) error {
	if !e.registry.IsRunning(toolID) {
		fmt.Fprintf(w, "No timer running for %s\n", name)
		return nil
	}

	secs := e.registry.Stop(toolID)
	if _, err := e.store.LogTimerSession(toolID, secs, e.clock.Now()); err != nil {
		return fmt.Errorf("record session for %s: %w", name, err)
	}

	if secs == 0 {
		fmt.Fprintf(w, "Stopped %s (under a second, nothing logged)\n", name)
		return nil
	}
	green.Fprintf(w, "Stopped %s", name)
	fmt.Fprintf(w, " after %s\n", formatSeconds(secs))
	return nil
}

func newTimerListCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List running timers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := r.open(false)
			if err != nil {
				return err
			}
			defer e.close()

			printTimers(cmd.OutOrStdout(), e.registry)
			return nil
		},
	}
}

func printTimers(w io.Writer, reg *timers.Registry) {
	active := reg.ListActive()
	if len(active) == 0 {
		fmt.Fprintln(w, "No timers running")
		return
	}
	for _, at := range active {
		green.Fprint(w, "● ")
		fmt.Fprintf(w, "%-24s %s\n", truncate(at.ToolName, 24), formatSeconds(reg.Elapsed(at.ToolID)))
	}
}

func newTimerWatchCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show running timers live until they stop or Ctrl-C",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := r.open(true)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchTimers(ctx, cmd.OutOrStdout(), e.registry)
		},
	}
}

// watchTimers redraws the timer list on every registry tick, picking up
// timers started or stopped from other shells.
func watchTimers(ctx context.Context, w io.Writer, reg *timers.Registry) error {
	printTimers(w, reg)
	updates := reg.Updates()
	for reg.Ticking() {
		select {
		case <-ctx.Done():
			return nil
		case <-updates:
			reg.Sync()
			faint.Fprintln(w, "──")
			printTimers(w, reg)
		}
	}
	return nil
}
