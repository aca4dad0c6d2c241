package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lightscreen/lightscreen/screen/clock"
	"github.com/lightscreen/lightscreen/screen/source"
)

var runFlags screeningFlags

// runCmd replays a recorded landmark stream through a session.
var runCmd = &cobra.Command{
	Use:   "run <frames.jsonl>",
	Short: "Run a screening session over a recorded landmark stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening recording: %w", err)
		}
		defer f.Close()

		clk := clock.NewManual(time.Time{})
		src, err := source.NewReplay(f, clk)
		if err != nil {
			return err
		}
		_, err = runScreening(cmd.Context(), cmd, cfg, clk, src, &runFlags)
		return err
	},
}

func init() {
	runFlags.register(runCmd)
	rootCmd.AddCommand(runCmd)
}
