package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"analyst-rag/internal/helper"
	"analyst-rag/internal/response"
)

func newAskCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer a question from the stored documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			ans, err := a.pipeline().Answer(cmd.Context(), question, nil)
			if err != nil {
				return err
			}
			view := response.NewView(ans)
			if asJSON {
				return helper.PrettyPrint(cmd.OutOrStdout(), view)
			}
			printView(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func printView(w io.Writer, v response.View) {
	switch v.Kind {
	case response.KindChart:
		fmt.Fprintf(w, "Chart (%s): %s\n%s\n", v.Chart.ChartType, v.Chart.Title, v.ChartJSON)
	case response.KindChartError:
		fmt.Fprintf(w, "%s\n%s\n", v.ChartError, v.Answer)
	default:
		fmt.Fprintln(w, v.Answer)
	}

	if len(v.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		seen := map[string]bool{}
		for _, md := range v.Sources {
			if s := md["source"]; s != "" && !seen[s] {
				seen[s] = true
				fmt.Fprintf(w, "  - %s\n", s)
			}
		}
	}
	if len(v.NextSteps) > 0 {
		fmt.Fprintln(w, "\nSuggested next steps:")
		for i, s := range v.NextSteps {
			fmt.Fprintf(w, "  %d. %s\n", i+1, s)
		}
	}
}
