package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/sadopc/stackvault/internal/vault"
)

func newPromptCmd(r *runner) *cobra.Command {
	var (
		picked []string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Daily check-in: log which tools you used today",
		Long: `Asks once per day which tools you used and logs a daily-prompt entry for
each. Pass --tool to answer without the interactive form.`,
		Example: `  stackvault prompt
  stackvault prompt --tool Figma --tool Notion`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := r.open(false)
			if err != nil {
				return err
			}
			defer e.close()

			ctx := context.Background()
			now := e.clock.Now()
			w := cmd.OutOrStdout()

			if !force && !e.prefs.ShouldPromptToday(ctx, now) {
				fmt.Fprintln(w, "Already checked in today. Use --force to log more.")
				return nil
			}

			tools, err := e.store.ListTools(false)
			if err != nil {
				return err
			}
			if len(tools) == 0 {
				fmt.Fprintln(w, "No tools yet.")
				return nil
			}

			var ids []string
			if len(picked) > 0 {
				for _, ref := range picked {
					t, err := e.store.FindTool(ref)
					if err != nil {
						return err
					}
					if t.Archived {
						return fmt.Errorf("%s is archived", t.Name)
					}
					ids = append(ids, t.ID)
				}
			} else {
				options := lo.Map(tools, func(t vault.Tool, _ int) huh.Option[string] {
					return huh.NewOption(t.Name, t.ID)
				})
				err := huh.NewForm(huh.NewGroup(
					huh.NewMultiSelect[string]().
						Title("Which tools did you use today?").
						Options(options...).
						Value(&ids),
				)).Run()
				if err != nil {
					return fmt.Errorf("daily prompt: %w", err)
				}
			}

			for _, id := range lo.Uniq(ids) {
				if _, err := e.store.AppendUsage(id, vault.UsageEntry{Timestamp: now, Source: vault.SourceDailyPrompt}); err != nil {
					return err
				}
			}
			if err := e.prefs.MarkPrompted(ctx, now); err != nil {
				e.logger.Warn().Err(err).Msg("Failed to mark daily prompt")
			}

			green.Fprintf(w, "Logged %d tool(s) for today\n", len(lo.Uniq(ids)))
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&picked, "tool", "t", nil, "Tool used today (repeatable)")
	cmd.Flags().BoolVar(&force, "force", false, "Check in even if already done today")
	return cmd
}
