package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ayusman/handsign/internal/dataset"
)

type inventoryView struct {
	Root     string         `json:"root"`
	Total    int            `json:"total"`
	Balanced bool           `json:"balanced"`
	Counts   map[string]int `json:"counts"`
}

func newInventoryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var processed bool

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Show the number of samples per label",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root := cfg.Paths.RawDir
			if processed {
				root = cfg.Paths.ProcessedDir
			}

			inv, err := dataset.NewDirStore(root).Inventory(cmd.Context())
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			view := inventoryView{
				Root:     root,
				Total:    inv.Total(),
				Balanced: inv.Balanced(),
				Counts:   inv.Counts(),
			}
			if asJSON {
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			if len(inv) == 0 {
				fmt.Fprintf(out, "No label directories under %s\n", root)
				return nil
			}

			least, _ := inv.Min()
			rows := make([][]string, 0, len(inv))
			for _, label := range inv.Labels() {
				n := len(inv[label])
				rows = append(rows, []string{label, strconv.Itoa(n), strconv.Itoa(n - least)})
			}
			fmt.Fprintln(out, renderTable([]string{"Label", "Samples", "Excess"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
			fmt.Fprintf(out, "Root: %s\nTotal: %d  Balanced: %s\n", root, view.Total, yesNo(view.Balanced))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&processed, "processed", false, "Inspect the processed dataset instead of the raw one")
	return cmd
}
