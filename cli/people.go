package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/camden-git/mediasysintegrity/duplicates"
)

func newDuplicatesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "duplicates",
		Short: "List groups of people sharing a normalized identity field",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			groups, err := app.Resolver.FindGroups(cmd.Context())
			if err != nil {
				return err
			}
			if groups == nil {
				groups = []duplicates.Group{}
			}
			return ctx.emit(cmd, groups, func(w io.Writer) {
				if len(groups) == 0 {
					fmt.Fprintln(w, "No duplicate groups")
					return
				}
				rows := make([][]string, 0, len(groups))
				for _, g := range groups {
					members := make([]string, 0, len(g.Members))
					for _, m := range g.Members {
						members = append(members, fmt.Sprintf("%d %s (%d)", m.ID, m.Name, m.LinkCount))
					}
					rows = append(rows, []string{g.MatchField, g.MatchValue, strings.Join(members, "\n"), utoa(g.SuggestedKeepID)})
				}
				fmt.Fprintln(w, renderTable([]string{"Field", "Value", "Members (links)", "Keep"}, rows, nil))
			})
		},
	}
}

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var keep uint
	var merge []uint
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge people into one surviving identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Resolver.Merge(cmd.Context(), duplicates.MergeRequest{KeepID: keep, MergeIDs: merge})
			if err != nil {
				return err
			}
			return ctx.emit(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "Kept %d: moved %d links, merged fields [%s], added %d aliases, deleted %d people\n",
					res.KeepID, res.MovedLinks, strings.Join(res.MergedFields, ", "), res.AliasesAdded, res.DeletedCount)
			})
		},
	}
	cmd.Flags().UintVar(&keep, "keep", 0, "Id of the surviving person")
	cmd.Flags().UintSliceVar(&merge, "merge", nil, "Ids of the people merged into --keep")
	_ = cmd.MarkFlagRequired("keep")
	_ = cmd.MarkFlagRequired("merge")
	return cmd
}

func newDeletePersonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-person <id>",
		Short: "Unlink every face of a person, then delete the person",
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

			res, err := app.Resolver.DeleteWithUnlink(cmd.Context(), id)
			if err != nil {
				return err
			}
			return ctx.emit(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted person %d, unlinked %d faces\n", res.PersonID, res.UnlinkedLinks)
			})
		},
	}
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(id), nil
}
