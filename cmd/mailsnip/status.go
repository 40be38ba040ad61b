package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/matta/mailsnip/internal/persist"
	"github.com/matta/mailsnip/internal/poll"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	var limit int
	var tickID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent polling ticks from the journal",
		Long: `Show recent polling ticks from the journal.  With --tick, show what
happened to each message fetched by that tick instead.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Journal == "" {
				return errors.New("no journal configured; set \"journal\" in the config file")
			}
			db, err := persist.Open(cmd.Context(), a.cfg.Journal, a.log)
			if err != nil {
				return errors.Wrap(err, "unable to open journal")
			}
			defer db.Close()

			if tickID != "" {
				outcomes, err := db.Outcomes(cmd.Context(), tickID)
				if err != nil {
					return err
				}
				return printOutcomes(cmd.OutOrStdout(), outcomes)
			}

			ticks, err := db.RecentTicks(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printTicks(cmd.OutOrStdout(), ticks)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of ticks to show")
	cmd.Flags().StringVar(&tickID, "tick", "", "show the message outcomes of this tick")
	return cmd
}

func printTicks(out io.Writer, ticks []persist.Tick) error {
	if len(ticks) == 0 {
		_, err := fmt.Fprintln(out, "No ticks recorded.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TICK\tSTARTED\tELAPSED\tLISTED\tWRITTEN\tSKIPPED\tFAILED\tERROR")
	for _, t := range ticks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			t.ID, t.Started.Local().Format(time.DateTime),
			t.Finished.Sub(t.Started).Round(time.Millisecond),
			t.Listed, t.Written, t.Skipped, t.Failed, t.Error)
	}
	return w.Flush()
}

func printOutcomes(out io.Writer, outcomes []poll.Outcome) error {
	if len(outcomes) == 0 {
		_, err := fmt.Fprintln(out, "No messages recorded for this tick.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MESSAGE\tRESULT\tDETAIL")
	for _, o := range outcomes {
		result, detail := "written", o.File
		switch {
		case o.Skipped:
			result, detail = "skipped", o.Reason
		case o.File == "":
			result, detail = "failed", o.Reason
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", o.MessageID, result, detail)
	}
	return w.Flush()
}
