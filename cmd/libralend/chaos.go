package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"libralend/internal/chaos"
	"libralend/internal/library"
)

func newChaosCmd(a *app) *cobra.Command {
	var (
		opts   chaos.Options
		pause  time.Duration
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "chaos",
		Short: "Run the contention and fault experiments against an in-process registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			target := chaos.NewTarget(library.WithLogger(a.log))
			engine := chaos.NewEngine(a.log)
			engine.RegisterExperiments(target, opts)

			err := engine.ExecuteGameDay(ctx, chaos.GameDay{
				Name:      "Contention Game Day",
				Date:      time.Now(),
				Scenarios: engine.Experiments(),
				Pause:     pause,
			}, cmd.OutOrStdout())

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(engine.Results()); encErr != nil {
					return fmt.Errorf("encode results: %w", encErr)
				}
			}
			return err
		},
	}

	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 50, "concurrent borrowers per experiment")
	cmd.Flags().IntVar(&opts.Rounds, "rounds", 20, "borrow/return rounds per borrower")
	cmd.Flags().DurationVar(&opts.Duration, "observe", 3*time.Second, "how long to sample metrics after each workload")
	cmd.Flags().DurationVar(&opts.Latency, "latency", time.Millisecond, "journal latency injected by the latency experiment")
	cmd.Flags().Float64Var(&opts.FailureRate, "failure-rate", 0.3, "share of journal appends failed by the outage experiment")
	cmd.Flags().DurationVar(&pause, "pause", 0, "wait between experiments")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the results as JSON")
	return cmd
}
