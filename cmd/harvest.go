package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/orefield/specharvest/internal/id/uuid"
	"github.com/orefield/specharvest/internal/server"
	"github.com/orefield/specharvest/internal/specs"
)

func newHarvestCmd() *cobra.Command {
	var (
		brand          string
		model          string
		equipmentClass string
		seedURLs       []string
		timeout        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Run a single harvest for one machine and print the results.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if brand == "" || model == "" {
				return fmt.Errorf("--brand and --model are required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer app.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			workerCtx, stopWorkers := context.WithCancel(ctx)
			defer stopWorkers()
			go app.Dispatcher().Run(workerCtx)

			runID, err := uuid.NewGenerator().NewID()
			if err != nil {
				return fmt.Errorf("generate run id: %w", err)
			}
			item := specs.WorkItem{
				RunID:          runID,
				Brand:          brand,
				Model:          model,
				EquipmentClass: equipmentClass,
				SeedURLs:       seedURLs,
			}
			if err := app.RunStore().StartRun(ctx, item); err != nil {
				return fmt.Errorf("register run: %w", err)
			}
			if err := app.Dispatcher().Enqueue(ctx, item); err != nil {
				return fmt.Errorf("enqueue run: %w", err)
			}

			run, err := waitForRun(ctx, app.RunStore(), runID)
			if err != nil {
				return err
			}
			return printRunSummary(ctx, cmd, app, run)
		},
	}

	cmd.Flags().StringVar(&brand, "brand", "", "equipment brand, e.g. Komatsu")
	cmd.Flags().StringVar(&model, "model", "", "equipment model, e.g. 980E-5")
	cmd.Flags().StringVar(&equipmentClass, "class", "", "equipment class, e.g. haul_truck")
	cmd.Flags().StringSliceVar(&seedURLs, "seed-url", nil, "seed URL to fetch (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall harvest deadline")

	return cmd
}

func waitForRun(ctx context.Context, runs specs.RunStore, runID string) (specs.RunRecord, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return specs.RunRecord{}, fmt.Errorf("harvest did not finish: %w", ctx.Err())
		case <-ticker.C:
			run, err := runs.GetRun(ctx, runID)
			if err != nil {
				return specs.RunRecord{}, fmt.Errorf("poll run: %w", err)
			}
			if run.FinishedAt != nil {
				return run, nil
			}
		}
	}
}

func printRunSummary(ctx context.Context, cmd *cobra.Command, app *server.App, run specs.RunRecord) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %s\n", run.RunID, run.Status)
	if run.Error != "" {
		fmt.Fprintf(out, "  error: %s\n", run.Error)
	}
	fmt.Fprintf(out, "  documents fetched: %d (denied %d, failed %d)\n",
		run.Counters.DocumentsFetched, run.Counters.FetchesDenied, run.Counters.FetchesFailed)
	fmt.Fprintf(out, "  candidates: %d\n", run.Counters.Candidates)
	fmt.Fprintf(out, "  specs: %d validated, %d flagged, %d rejected\n",
		run.Counters.SpecsValidated, run.Counters.SpecsFlagged, run.Counters.SpecsRejected)

	records, err := app.SpecStore().GetSpecs(ctx, run.Brand, run.Model)
	if err != nil {
		return fmt.Errorf("load specs: %w", err)
	}
	for _, record := range records {
		value := record.Value.Text
		if record.Value.Numeric {
			value = strconv.FormatFloat(record.Value.Number, 'f', -1, 64)
		}
		fmt.Fprintf(out, "  %-28s %s %s [%s, confidence %.3f]\n",
			record.Parameter, value, record.Unit, record.Status, record.Confidence)
	}
	curve, err := app.SpecStore().GetRimpull(ctx, run.Brand, run.Model)
	if err != nil {
		return fmt.Errorf("load rimpull: %w", err)
	}
	if curve != nil {
		fmt.Fprintf(out, "  rimpull curve: %d points, confidence %.3f\n", len(curve.Points), curve.Confidence)
	}
	return nil
}
