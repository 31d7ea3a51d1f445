// Package cli is the command line front end of the integrity service.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/camden-git/mediasysintegrity/config"
	"github.com/camden-git/mediasysintegrity/realtime"
)

type commandContext struct {
	output  string
	verbose bool
}

// open loads configuration and wires an App for one command. Progress events
// are printed to stderr in verbose mode.
func (c *commandContext) open(cmd *cobra.Command) (*App, error) {
	var events realtime.Publisher = realtime.Discard{}
	if c.verbose {
		events = progressPrinter{w: cmd.ErrOrStderr()}
	}
	return c.openWith(events)
}

func (c *commandContext) openWith(events realtime.Publisher) (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return OpenApp(cfg, events)
}

func (c *commandContext) emit(cmd *cobra.Command, v interface{}, render func(io.Writer)) error {
	return emit(cmd.OutOrStdout(), c.output, v, render)
}

// progressPrinter is a Publisher writing one line per event.
type progressPrinter struct {
	w io.Writer
}

func (p progressPrinter) Broadcast(e realtime.Event) {
	switch e.Type {
	case realtime.EventRepairBatch:
		fmt.Fprintf(p.w, "%s: batch %d/%d touched %d rows (%d total)\n", e.Category, e.Batch, e.Batches, e.Affected, e.Total)
	case realtime.EventIndexRebuild:
		if e.Error != "" {
			fmt.Fprintf(p.w, "index rebuild failed: %s\n", e.Error)
		} else {
			fmt.Fprintln(p.w, "index rebuild requested")
		}
	default:
		fmt.Fprintf(p.w, "%s\n", e.Type)
	}
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "mediasys-integrity",
		Short:         "Audit and repair face link integrity",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&ctx.output, "output", "o", outputTable, "Output format: table, json or yaml")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Print progress events to stderr")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newAuditCommand(ctx))
	rootCmd.AddCommand(newCategoriesCommand(ctx))
	rootCmd.AddCommand(newPolicyCommand(ctx))
	rootCmd.AddCommand(newRepairCommand(ctx))
	rootCmd.AddCommand(newDuplicatesCommand(ctx))
	rootCmd.AddCommand(newMergeCommand(ctx))
	rootCmd.AddCommand(newDeletePersonCommand(ctx))
	rootCmd.AddCommand(newConsistencyCommand(ctx))

	return rootCmd
}

// Execute runs the command tree until completion or an interrupt and returns
// the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}
