package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/camden-git/mediasysintegrity/integrity"
)

func newRepairCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "repair [category]",
		Short: "Apply the fix for one category, or every fixable category with --all",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("pass a category or --all, not both")
			}
			if !all && len(args) != 1 {
				return errors.New("a category is required unless --all is set")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			var results []integrity.RepairResult
			if all {
				results = app.Engine.RepairAll(cmd.Context())
			} else {
				results = []integrity.RepairResult{app.Engine.Repair(cmd.Context(), integrity.Category(args[0]))}
			}

			if err := ctx.emit(cmd, results, func(w io.Writer) { renderRepairs(w, results) }); err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if !r.Success {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d repairs failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Repair every fixable category in catalog order")
	return cmd
}

func renderRepairs(w io.Writer, results []integrity.RepairResult) {
	rows := make([][]string, 0, len(results))
	var fixed int64
	for _, r := range results {
		fixed += r.Fixed
		rows = append(rows, []string{string(r.Category), okLabel(r.Success), itoa64(r.Fixed), r.Error})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Category", "Status", "Fixed", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))
	fmt.Fprintf(w, "Fixed %d rows\n", fixed)
}
