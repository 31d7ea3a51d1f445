package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/camden-git/mediasysintegrity/consistency"
)

func newConsistencyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consistency",
		Short: "Audit and curate the face descriptors of identities",
	}
	cmd.AddCommand(newConsistencyShowCommand(ctx))
	cmd.AddCommand(newConsistencyExcludeCommand(ctx))
	cmd.AddCommand(newConsistencyMutationCommand(ctx, "restore", "Return excluded face links to the reference set",
		func(a *consistency.Auditor) linkMutation { return a.Restore }))
	cmd.AddCommand(newConsistencyMutationCommand(ctx, "clear", "Unassign face links from the person",
		func(a *consistency.Auditor) linkMutation { return a.Clear }))
	cmd.AddCommand(newConsistencyAuditAllCommand(ctx))
	return cmd
}

type linkMutation = func(ctx context.Context, personID uint, linkIDs []uint) (int64, error)

type mutationOutput struct {
	PersonID uint  `json:"person_id" yaml:"person_id"`
	Affected int64 `json:"affected" yaml:"affected"`
}

func newConsistencyShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <person-id>",
		Short: "Score every descriptor of a person against the centroid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			app, err := ctx.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Auditor.AuditIdentity(cmd.Context(), id)
			if err != nil {
				return err
			}
			return ctx.emit(cmd, res, func(w io.Writer) { renderConsistency(w, res) })
		},
	}
}

func newConsistencyExcludeCommand(ctx *commandContext) *cobra.Command {
	var outliers bool
	cmd := &cobra.Command{
		Use:   "exclude <person-id> [link-id...]",
		Short: "Exclude face links from the reference set",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("a person id is required")
			}
			if !outliers && len(args) < 2 {
				return fmt.Errorf("pass link ids or --outliers")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, linkIDs, err := parseIDs(args)
			if err != nil {
				return err
			}
			app, err := ctx.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			var affected int64
			if outliers {
				_, affected, err = app.Auditor.ExcludeOutliers(cmd.Context(), id)
			} else {
				affected, err = app.Auditor.Exclude(cmd.Context(), id, linkIDs)
			}
			if err != nil {
				return err
			}
			out := mutationOutput{PersonID: id, Affected: affected}
			return ctx.emit(cmd, out, func(w io.Writer) {
				fmt.Fprintf(w, "Excluded %d face links of person %d\n", affected, id)
			})
		},
	}
	cmd.Flags().BoolVar(&outliers, "outliers", false, "Exclude every current outlier")
	return cmd
}

func newConsistencyMutationCommand(ctx *commandContext, use, short string, pick func(*consistency.Auditor) linkMutation) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <person-id> <link-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, linkIDs, err := parseIDs(args)
			if err != nil {
				return err
			}
			app, err := ctx.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			affected, err := pick(app.Auditor)(cmd.Context(), id, linkIDs)
			if err != nil {
				return err
			}
			out := mutationOutput{PersonID: id, Affected: affected}
			return ctx.emit(cmd, out, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %d face links of person %d\n", use, affected, id)
			})
		},
	}
}

func newConsistencyAuditAllCommand(ctx *commandContext) *cobra.Command {
	var opts consistency.MassOptions
	cmd := &cobra.Command{
		Use:   "audit-all",
		Short: "Audit every identity with at least two accepted descriptors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Auditor.AuditAll(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return ctx.emit(cmd, res, func(w io.Writer) { renderMass(w, res) })
		},
	}
	cmd.Flags().BoolVar(&opts.ExcludeOutliers, "exclude-outliers", false, "Exclude every outlier found")
	cmd.Flags().BoolVar(&opts.RebuildIndex, "rebuild-index", false, "Request one index rebuild when anything was excluded")
	return cmd
}

func parseIDs(args []string) (uint, []uint, error) {
	personID, err := parseID(args[0])
	if err != nil {
		return 0, nil, err
	}
	linkIDs := make([]uint, 0, len(args)-1)
	for _, a := range args[1:] {
		id, err := parseID(a)
		if err != nil {
			return 0, nil, err
		}
		linkIDs = append(linkIDs, id)
	}
	return personID, linkIDs, nil
}

func statusLabel(status string) string {
	switch status {
	case consistency.StatusHealthy:
		return color.GreenString(status)
	case consistency.StatusWarning:
		return color.YellowString(status)
	case consistency.StatusCritical:
		return color.RedString(status)
	default:
		return status
	}
}

func renderConsistency(w io.Writer, r *consistency.Result) {
	fmt.Fprintf(w, "%s (%d): %s, consistency %.3f, %d outliers, %d excluded, threshold %.2f\n",
		r.PersonName, r.PersonID, statusLabel(r.Status), r.OverallConsistency,
		r.OutlierCount, r.ExcludedCount, r.OutlierThreshold)

	rows := make([][]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		outlier := yesNo(e.IsOutlier)
		if e.IsOutlier {
			outlier = color.RedString("yes")
		}
		rows = append(rows, []string{
			utoa(e.LinkID), utoa(e.ImageID), fmt.Sprintf("%.3f", e.SimilarityToCentroid),
			outlier, yesNo(e.IsExcluded), yesNo(e.Verified),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Link", "Image", "Similarity", "Outlier", "Excluded", "Verified"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
	))
}

func renderMass(w io.Writer, r *consistency.MassResult) {
	fmt.Fprintf(w, "Audited %d identities, %d with problems, %d outliers, %d excluded\n",
		r.IdentitiesAudited, r.IdentitiesWithProblems, r.TotalOutliers, r.Excluded)
	if r.IndexRebuilt {
		fmt.Fprintln(w, "Index rebuild requested")
	}
	if r.RebuildError != "" {
		fmt.Fprintf(w, "%s index rebuild: %s\n", color.RedString("error"), r.RebuildError)
	}

	if len(r.Problems) > 0 {
		rows := make([][]string, 0, len(r.Problems))
		for _, p := range r.Problems {
			rows = append(rows, []string{utoa(p.PersonID), p.PersonName, statusLabel(p.Status),
				fmt.Sprintf("%.3f", p.OverallConsistency), fmt.Sprint(p.OutlierCount)})
		}
		fmt.Fprintln(w, renderTable(
			[]string{"Person", "Name", "Status", "Consistency", "Outliers"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
		))
	}

	if len(r.Errors) > 0 {
		ids := make([]uint, 0, len(r.Errors))
		for id := range r.Errors {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			fmt.Fprintf(w, "%s person %d: %s\n", color.RedString("error"), id, r.Errors[id])
		}
	}
}
