package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ayusman/handsign/internal/preprocess"
)

func newPreprocessCommand(ctx *commandContext) *cobra.Command {
	var regionMode string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "preprocess [label]",
		Short: "Crop the hand out of every raw sample and resize it",
		Long: `Preprocess reads data/raw/<label>/ and writes square crops of the hand to
data/processed/<label>/. Images without a detectable hand are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			region, det, err := ctx.newRegionDetector(cfg, regionMode, cfg.Preprocess.Padding)
			if err != nil {
				return err
			}
			if det != nil {
				defer det.Close()
			}

			p, err := preprocess.New(preprocess.Config{
				RawDir:     cfg.Paths.RawDir,
				OutDir:     cfg.Paths.ProcessedDir,
				ImageSize:  cfg.Preprocess.ImageSize,
				Extensions: cfg.Preprocess.Extensions,
				Region:     region,
				Metrics:    ctx.metricsValue(),
				Logger:     ctx.componentLog("preprocess"),
			})
			if err != nil {
				return err
			}

			summaries := map[string]preprocess.LabelSummary{}
			if len(args) == 1 {
				s, err := p.RunLabel(cmd.Context(), args[0])
				summaries[args[0]] = s
				if err != nil {
					return err
				}
			} else {
				summaries, err = p.Run(cmd.Context())
				if err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(cmd, summaries)
			}

			labels, err := p.Labels()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(summaries))
			for _, label := range labels {
				s, ok := summaries[label]
				if !ok {
					continue
				}
				rows = append(rows, []string{
					label,
					strconv.Itoa(s.Saved),
					strconv.Itoa(s.NoHand),
					strconv.Itoa(s.Unreadable + s.Failed),
					strconv.Itoa(s.Total()),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Label", "Saved", "No hand", "Errors", "Total"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&regionMode, "region", "landmarks", "How the hand is located: landmarks or fixed")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
