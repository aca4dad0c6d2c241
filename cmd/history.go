package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lightscreen/lightscreen/screen/store"
)

var (
	historyDB    string
	historyLimit int
	historyJSON  bool
)

// historyCmd lists stored results, or shows one in full.
var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List stored screening results, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(historyDB)
		if err != nil {
			return err
		}
		defer db.Close()
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			r, err := db.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(out, r)
		}

		results, err := db.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if historyJSON {
			return writeJSON(out, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "No results stored.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(tw, "SESSION\tRECORDED\tSTATE\tSCORE\tCATEGORY\tESCALATE\t")
		for _, r := range results {
			printResultRow(tw, r.SessionID, r.RecordedAt.Local().Format("2006-01-02 15:04"), r.State, r.Assessment)
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", "lightscreen.db", "SQLite results database")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum results to list (0: all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print results as JSON")
	rootCmd.AddCommand(historyCmd)
}
