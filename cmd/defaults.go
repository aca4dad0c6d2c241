package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lightscreen/lightscreen/screen/synth"
)

var defaultsProfile bool

// defaultsCmd prints the effective configuration as YAML, suitable as a
// starting point for --config.
var defaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the effective configuration (or synthetic profile) as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		var v interface{}
		if defaultsProfile {
			v = synth.DefaultProfile()
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			v = cfg
		}
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding defaults: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	defaultsCmd.Flags().BoolVar(&defaultsProfile, "profile", false, "Print the default synthetic profile instead")
	rootCmd.AddCommand(defaultsCmd)
}
