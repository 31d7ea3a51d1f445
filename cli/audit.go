package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/camden-git/mediasysintegrity/integrity"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var failOnIssues bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run every detector and print the integrity report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Engine.Audit(cmd.Context())
			if err != nil {
				return err
			}
			if err := ctx.emit(cmd, report, func(w io.Writer) { renderReport(w, report) }); err != nil {
				return err
			}
			if failOnIssues && !report.Healthy() {
				return fmt.Errorf("audit found %d issues and %d failed detectors", report.TotalIssues, len(report.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnIssues, "fail-on-issues", false, "Exit non-zero unless the report is healthy")
	return cmd
}

func renderReport(w io.Writer, r *integrity.Report) {
	fmt.Fprintf(w, "Run %s at %s\n", r.RunID, r.CheckedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Faces %d  People %d  Images %d  Albums %d\n\n",
		r.Stats.Faces, r.Stats.People, r.Stats.Images, r.Stats.Albums)

	rows := make([][]string, 0, len(integrity.Categories()))
	for _, info := range integrity.Categories() {
		count := "-"
		if n, ok := r.Violations[info.Category]; ok {
			count = strconv.Itoa(n)
		}
		switch info.Category {
		case integrity.PeopleWithoutLinks:
			count = optionalCount(r.IdentityIssues.WithoutLinks)
		case integrity.DuplicateIdentityGroups:
			count = optionalCount(r.IdentityIssues.DuplicateGroups)
		}
		rows = append(rows, []string{string(info.Category), severityLabel(info.Severity), count, yesNo(info.AutoFixable)})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Category", "Severity", "Count", "Fixable"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))

	if len(r.Errors) > 0 {
		keys := make([]string, 0, len(r.Errors))
		for k := range r.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w)
		for _, k := range keys {
			fmt.Fprintf(w, "%s %s: %s\n", color.RedString("error"), k, r.Errors[k])
		}
	}

	status := color.GreenString("healthy")
	if !r.Healthy() {
		status = color.YellowString("%d issues", r.TotalIssues)
	}
	fmt.Fprintf(w, "\nTotal: %s\n", status)
}

func optionalCount(n *int) string {
	if n == nil {
		return "-"
	}
	return strconv.Itoa(*n)
}

func newCategoriesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List violation categories in repair order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cats := integrity.Categories()
			return ctx.emit(cmd, cats, func(w io.Writer) {
				rows := make([][]string, 0, len(cats))
				for _, info := range cats {
					rows = append(rows, []string{string(info.Category), severityLabel(info.Severity), yesNo(info.AutoFixable), info.Description})
				}
				fmt.Fprintln(w, renderTable([]string{"Category", "Severity", "Fixable", "Description"}, rows, nil))
			})
		},
	}
}

func newPolicyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the effective thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			p, err := app.Policy.Policy(cmd.Context())
			if err != nil {
				return err
			}
			return ctx.emit(cmd, p, func(w io.Writer) {
				rows := [][]string{
					{"match_threshold", formatFloat(p.MatchThreshold)},
					{"outlier_threshold", formatFloat(p.OutlierThreshold)},
					{"verified_threshold", formatFloat(p.VerifiedThreshold)},
					{"unknown_confidence", formatFloat(p.UnknownConfidence)},
				}
				fmt.Fprintln(w, renderTable([]string{"Threshold", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			})
		},
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
