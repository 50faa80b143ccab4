package cmd

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/orefield/specharvest/internal/specs"
)

func newStatusCmd() *cobra.Command {
	var (
		serverURL string
		apiKey    string
	)

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Query a running server for the state of a harvest run.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := resty.New().
				SetBaseURL(serverURL).
				SetTimeout(10 * time.Second)
			if apiKey != "" {
				client.SetHeader("X-API-Key", apiKey)
			}

			var body struct {
				Run specs.RunRecord `json:"run"`
			}
			resp, err := client.R().
				SetContext(cmd.Context()).
				SetResult(&body).
				Get("/v1/runs/" + args[0])
			if err != nil {
				return fmt.Errorf("query run: %w", err)
			}
			if resp.StatusCode() == 404 {
				return fmt.Errorf("run %s not found", args[0])
			}
			if resp.IsError() {
				return fmt.Errorf("server returned %s", resp.Status())
			}
			run := body.Run

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %s\n", run.RunID, run.Status)
			fmt.Fprintf(out, "  machine: %s %s\n", run.Brand, run.Model)
			fmt.Fprintf(out, "  started: %s\n", run.StartedAt.Format(time.RFC3339))
			if run.FinishedAt != nil {
				fmt.Fprintf(out, "  finished: %s\n", run.FinishedAt.Format(time.RFC3339))
			}
			if run.Error != "" {
				fmt.Fprintf(out, "  error: %s\n", run.Error)
			}
			fmt.Fprintf(out, "  documents fetched: %d (denied %d, failed %d)\n",
				run.Counters.DocumentsFetched, run.Counters.FetchesDenied, run.Counters.FetchesFailed)
			fmt.Fprintf(out, "  specs: %d validated, %d flagged, %d rejected\n",
				run.Counters.SpecsValidated, run.Counters.SpecsFlagged, run.Counters.SpecsRejected)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the specharvest server")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key when the server has auth enabled")

	return cmd
}
