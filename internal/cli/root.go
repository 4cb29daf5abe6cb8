// Package cli implements the stackvault command line.
package cli

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sadopc/stackvault/internal/clock"
	"github.com/sadopc/stackvault/internal/tui"
)

var version = "dev"

// runner carries global flags into subcommands.
type runner struct {
	configPath string
	clock      clock.Clock
}

func (r *runner) open(serveMetrics bool) (*env, error) {
	return openEnv(openOptions{
		configPath:   r.configPath,
		clock:        r.clock,
		serveMetrics: serveMetrics,
	})
}

func newRootCmd(r *runner) *cobra.Command {
	root := &cobra.Command{
		Use:   "stackvault",
		Short: "StackVault - track your software tools, usage and ROI",
		Long: `StackVault tracks purchased software tools and subscriptions: what you
paid, how often you use them, usage streaks and goals, refund windows, and
the cost per use of every tool. Run without a subcommand for the dashboard.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.runTUI()
		},
	}

	root.PersistentFlags().StringVarP(&r.configPath, "config", "c", "", "Path to configuration file")

	root.AddCommand(
		newToolsCmd(r),
		newAddCmd(r),
		newArchiveCmd(r),
		newUseCmd(r),
		newGoalCmd(r),
		newTimerCmd(r),
		newStatsCmd(r),
		newGoalsCmd(r),
		newExportCmd(r),
		newPromptCmd(r),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd(&runner{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (r *runner) runTUI() error {
	e, err := r.open(true)
	if err != nil {
		return err
	}
	defer e.close()

	e.logger.Info().Str("version", version).Msg("Starting dashboard")

	app := tui.NewApp(e.store, e.registry, e.prefs, e.clock, e.logger)
	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
