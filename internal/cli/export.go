package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sadopc/stackvault/internal/export"
	"github.com/sadopc/stackvault/internal/store"
)

func newExportCmd(r *runner) *cobra.Command {
	var (
		format, output string
		usage          bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tools or the usage ledger as CSV or JSON",
		Example: `  stackvault export --format json --output tools.json
  stackvault export --usage > usage.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("format must be csv or json, got %q", format)
			}

			e, err := r.open(false)
			if err != nil {
				return err
			}
			defer e.close()

			now := e.clock.Now()
			var write func(io.Writer) error
			if usage {
				records, err := e.store.ListUsage(store.UsageFilter{})
				if err != nil {
					return err
				}
				write = func(w io.Writer) error { return export.UsageCSV(w, records) }
				if format == "json" {
					write = func(w io.Writer) error { return export.UsageJSON(w, records, now) }
				}
			} else {
				tools, err := e.store.ListTools(true)
				if err != nil {
					return err
				}
				write = func(w io.Writer) error { return export.ToolsCSV(w, tools, now) }
				if format == "json" {
					write = func(w io.Writer) error { return export.ToolsJSON(w, tools, now) }
				}
			}

			if output == "-" {
				return write(cmd.OutOrStdout())
			}
			if err := export.ToFile(output, write); err != nil {
				return err
			}
			e.logger.Info().Str("path", output).Str("format", format).Bool("usage", usage).Msg("Exported")
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", output)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", "csv", "Output format (csv or json)")
	f.StringVarP(&output, "output", "o", "-", "Output file, - for stdout")
	f.BoolVar(&usage, "usage", false, "Export the usage ledger instead of tools")
	return cmd
}
