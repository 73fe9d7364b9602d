package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/handsign/internal/dataset"
	"github.com/ayusman/handsign/internal/store"
)

func newBalanceCommand(ctx *commandContext) *cobra.Command {
	var maxPerClass int
	var dryRun bool
	var processed bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Randomly remove samples until every label has the same count",
		Long: `Balance trims every label down to the size of the smallest label (or to
--max when that is lower). Removed samples are chosen at random and deleted
from disk; each deletion is recorded in the audit database first, and a
deletion that cannot be recorded is not performed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxPerClass < 0 {
				return fmt.Errorf("--max must not be negative, got %d", maxPerClass)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root := cfg.Paths.RawDir
			if processed {
				root = cfg.Paths.ProcessedDir
			}

			ds := dataset.NewDirStore(root)
			if err := ds.Lock(); err != nil {
				if errors.Is(err, dataset.ErrEmptyInventory) {
					return fmt.Errorf("nothing to balance under %s: %w", root, err)
				}
				return err
			}
			defer ds.Unlock()

			log := ctx.componentLog("balance")
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			runs := st.BalanceRuns()

			plan, err := dataset.NewBalancer(dataset.Config{Store: ds, Logger: log}).
				Plan(cmd.Context(), dataset.PlanOptions{MaxPerClass: maxPerClass})
			if err != nil {
				if errors.Is(err, dataset.ErrEmptyInventory) {
					return fmt.Errorf("nothing to balance under %s: %w", root, err)
				}
				return err
			}

			run := &store.BalanceRun{DatasetRoot: root, Target: plan.Target, Planned: len(plan.Removals)}
			if dryRun {
				run.Status = store.BalanceDryRun
			}
			if err := runs.Create(run); err != nil {
				return fmt.Errorf("record balance run: %w", err)
			}

			if dryRun {
				if err := runs.Finish(run.ID, store.BalanceDryRun, ""); err != nil {
					return fmt.Errorf("record balance run: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, plan)
				}
				printPlan(cmd.OutOrStdout(), plan, nil)
				fmt.Fprintln(cmd.OutOrStdout(), "Dry run: no samples were removed")
				return nil
			}

			m := ctx.metricsValue()
			balancer := dataset.NewBalancer(dataset.Config{
				Store:  ds,
				Logger: log,
				OnRemove: func(r dataset.Removal) error {
					if err := runs.AddRemoval(run.ID, r.Label, r.Sample); err != nil {
						return fmt.Errorf("audit removal: %w", err)
					}
					m.SamplesRemoved.WithLabelValues(r.Label).Inc()
					return nil
				},
			})

			report, applyErr := balancer.Apply(cmd.Context(), plan)
			status, errMsg := store.BalanceCompleted, ""
			if applyErr != nil {
				status, errMsg = store.BalancePartial, applyErr.Error()
			}
			if err := runs.Finish(run.ID, status, errMsg); err != nil {
				log.Error().Err(err).Str("run", run.ID).Msg("failed to finish balance run")
			}

			if asJSON {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				printPlan(cmd.OutOrStdout(), plan, report)
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s: removed %d samples, target %d\n", run.ID, len(report.Removed), report.Target)
			}

			return applyErr
		},
	}

	cmd.Flags().IntVar(&maxPerClass, "max", 0, "Cap every label at this many samples (0 means no cap)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the plan without removing anything")
	cmd.Flags().BoolVar(&processed, "processed", false, "Balance the processed dataset instead of the raw one")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	cmd.AddCommand(newBalanceHistoryCommand(ctx))
	return cmd
}

// printPlan renders per-label counts before and after. A nil report shows
// the planned outcome.
func printPlan(out io.Writer, plan *dataset.Plan, report *dataset.Report) {
	labels := make([]string, 0, len(plan.Counts))
	for label := range plan.Counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	rows := make([][]string, 0, len(labels))
	for _, label := range labels {
		before := plan.Counts[label]
		remove := plan.RemovalsFor(label)
		after := before - remove
		if report != nil {
			after = report.After[label]
		}
		rows = append(rows, []string{label, strconv.Itoa(before), strconv.Itoa(remove), strconv.Itoa(after)})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Label", "Before", "Remove", "After"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	))
}

func newBalanceHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded balance runs, or the removals of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				removals, err := st.BalanceRuns().Removals(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, removals)
				}
				rows := make([][]string, 0, len(removals))
				for _, r := range removals {
					rows = append(rows, []string{r.Label, r.Sample, r.RemovedAt.Format(time.DateTime)})
				}
				fmt.Fprintln(out, renderTable([]string{"Label", "Sample", "Removed"}, rows, nil))
				return nil
			}

			runs, err := st.BalanceRuns().List(limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No balance runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID,
					r.StartedAt.Format(time.DateTime),
					string(r.Status),
					strconv.Itoa(r.Target),
					fmt.Sprintf("%d/%d", r.Removed, r.Planned),
					r.DatasetRoot,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Started", "Status", "Target", "Removed", "Dataset"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list (0 lists all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
