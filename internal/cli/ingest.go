package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newIngestCmd(a *app) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Extract, chunk and store documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := a.pipeline()
			out := cmd.OutOrStdout()

			if reset {
				if err := p.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Cleared existing documents.")
			}

			var errs []error
			for _, path := range args {
				res, err := p.Ingest(ctx, path)
				switch {
				case err != nil:
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					errs = append(errs, err)
				case res.Skipped:
					fmt.Fprintf(out, "Skipped %s: no text could be extracted.\n", res.Source)
				default:
					fmt.Fprintf(out, "Ingested %s: %d chunks.\n", res.Source, res.Chunks)
				}
			}
			if len(errs) > 0 {
				return fmt.Errorf("failed to ingest %d of %d files: %w", len(errs), len(args), errors.Join(errs...))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the store before ingesting")
	return cmd
}
