package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/classifier"
	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/store"
)

func newTemplatesCommand(ctx *commandContext) *cobra.Command {
	templatesCmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage landmark templates for the template classifier",
	}

	templatesCmd.AddCommand(newTemplatesTrainCommand(ctx))
	templatesCmd.AddCommand(newTemplatesListCommand(ctx))
	templatesCmd.AddCommand(newTemplatesDeleteCommand(ctx))
	return templatesCmd
}

func newTemplatesTrainCommand(ctx *commandContext) *cobra.Command {
	var tolerance float64
	var limit int

	cmd := &cobra.Command{
		Use:   "train <label> [dir]",
		Short: "Average the hand landmarks of a label's samples into a template",
		Long: `Train runs the hand landmark detector over every image in dir (default
data/raw/<label>) and stores the averaged, normalized landmarks as the
template for label.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			label := args[0]
			dir := filepath.Join(cfg.Paths.RawDir, label)
			if len(args) == 2 {
				dir = args[1]
			}

			log := ctx.componentLog("templates")
			det, err := ctx.newLandmarkDetector()
			if err != nil {
				return err
			}
			defer det.Close()

			hands, skipped, err := collectLandmarks(cmd, det, dir, cfg.Preprocess.Extensions, limit)
			if err != nil {
				return err
			}
			if len(hands) == 0 {
				return fmt.Errorf("no hands detected in %d images under %s", skipped, dir)
			}

			tmpl, err := classifier.TrainTemplate(label, hands, tolerance)
			if err != nil {
				return err
			}

			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			if err := st.Templates().Save(tmpl.ToRecord()); err != nil {
				return fmt.Errorf("save template: %w", err)
			}

			log.Info().Str("label", label).Int("samples", len(hands)).Int("skipped", skipped).Msg("template trained")
			fmt.Fprintf(cmd.OutOrStdout(), "Trained %q from %d samples (%d without a hand)\n", label, len(hands), skipped)
			return nil
		},
	}

	cmd.Flags().Float64Var(&tolerance, "tolerance", classifier.DefaultTolerance, "Maximum landmark distance that still matches")
	cmd.Flags().IntVar(&limit, "limit", 0, "Use at most this many images (0 uses all)")
	return cmd
}

// collectLandmarks detects the most confident hand in each image of dir.
func collectLandmarks(cmd *cobra.Command, det detector.Detector, dir string, extensions []string, limit int) ([]detector.HandLandmarks, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("read sample directory: %w", err)
	}

	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}

	var hands []detector.HandLandmarks
	skipped := 0
	for _, e := range entries {
		if err := cmd.Context().Err(); err != nil {
			return nil, 0, err
		}
		if e.IsDir() || !allowed[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		if limit > 0 && len(hands) >= limit {
			break
		}

		img := gocv.IMRead(filepath.Join(dir, e.Name()), gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			skipped++
			continue
		}
		found, err := det.Detect(&img)
		img.Close()
		if err != nil {
			return nil, 0, err
		}
		if len(found) == 0 {
			skipped++
			continue
		}

		best := found[0]
		for _, h := range found[1:] {
			if h.Score > best.Score {
				best = h
			}
		}
		hands = append(hands, best)
	}
	return hands, skipped, nil
}

func newTemplatesListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			templates, err := st.Templates().List()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, templates)
			}
			if len(templates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No templates stored")
				return nil
			}

			rows := make([][]string, 0, len(templates))
			for _, t := range templates {
				rows = append(rows, []string{
					t.Label,
					strconv.Itoa(t.Samples),
					strconv.FormatFloat(t.Tolerance, 'f', 2, 64),
					t.UpdatedAt.Format(time.DateTime),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Label", "Samples", "Tolerance", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newTemplatesDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <label>",
		Short: "Delete a stored template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			if err := st.Templates().Delete(args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no template for label %q", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted template %q\n", args[0])
			return nil
		},
	}
}
