package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lightscreen/lightscreen/screen"
	"github.com/lightscreen/lightscreen/screen/clock"
	"github.com/lightscreen/lightscreen/screen/source"
	"github.com/lightscreen/lightscreen/screen/synth"
)

var (
	simulateFlags screeningFlags
	profilePath   string // YAML synthetic profile over the defaults
	recordPath    string // JSONL file to record the generated stream to
	simSeed       int64
	simFPS        float64
	flickerRate   float64
	aversionRate  float64
	dropoutRate   float64
)

// simulateCmd runs a session over a synthetic subject.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a screening session over a deterministic synthetic subject",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		profile, err := buildProfile(cmd)
		if err != nil {
			return err
		}

		clk := clock.NewManual(time.Unix(0, 0).UTC())
		gen, err := synth.NewGenerator(cfg, profile, clk)
		if err != nil {
			return err
		}
		logrus.Infof("Simulating subject: seed=%d fps=%.0f blinks/min=%.0f/%.0f/%.0f dropout=%.2f",
			profile.Seed, profile.FPS, profile.BaselineBlinkRate, profile.FlickerBlinkRate,
			profile.PursuitBlinkRate, profile.DropoutRate)

		var src screen.FrameSource = gen
		if recordPath != "" {
			f, err := os.Create(recordPath)
			if err != nil {
				return fmt.Errorf("creating recording: %w", err)
			}
			defer f.Close()
			w := source.NewWriter(f)
			src = source.Tee(gen, w)
			defer func() { logrus.Infof("Recorded %d frames to %s", w.Count(), recordPath) }()
		}

		_, err = runScreening(cmd.Context(), cmd, cfg, clk, src, &simulateFlags)
		return err
	},
}

// buildProfile loads --profile when given and applies explicitly set flags over it.
func buildProfile(cmd *cobra.Command) (synth.Profile, error) {
	profile := synth.DefaultProfile()
	if profilePath != "" {
		var err error
		if profile, err = synth.LoadProfile(profilePath); err != nil {
			return profile, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("seed") {
		profile.Seed = simSeed
	}
	if flags.Changed("fps") {
		profile.FPS = simFPS
	}
	if flags.Changed("flicker-blink-rate") {
		profile.FlickerBlinkRate = flickerRate
	}
	if flags.Changed("aversion-rate") {
		profile.AversionRate = aversionRate
	}
	if flags.Changed("dropout-rate") {
		profile.DropoutRate = dropoutRate
	}
	return profile, profile.Validate()
}

func init() {
	simulateFlags.register(simulateCmd)
	def := synth.DefaultProfile()
	simulateCmd.Flags().StringVar(&profilePath, "profile", "", "YAML synthetic subject profile")
	simulateCmd.Flags().StringVar(&recordPath, "record", "", "Record the generated stream as JSONL for later replay with run")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", def.Seed, "Seed for the synthetic subject")
	simulateCmd.Flags().Float64Var(&simFPS, "fps", def.FPS, "Camera frame rate")
	simulateCmd.Flags().Float64Var(&flickerRate, "flicker-blink-rate", def.FlickerBlinkRate, "Blinks per minute under flicker")
	simulateCmd.Flags().Float64Var(&aversionRate, "aversion-rate", def.AversionRate, "Per-frame probability of looking away under flicker")
	simulateCmd.Flags().Float64Var(&dropoutRate, "dropout-rate", def.DropoutRate, "Per-frame probability of losing the face")
	rootCmd.AddCommand(simulateCmd)
}
