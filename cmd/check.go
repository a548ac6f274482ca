package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/bundlekit/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check [bundle.hcl]",
	Short: "Validate the configuration without building anything",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath := "bundle.hcl"
		if len(args) == 1 {
			cfgPath = args[0]
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		for _, t := range cfg.Targets {
			mode, _ := t.BuildMode()
			fmt.Printf("target %-20s route=%s mode=%s sources=%d\n",
				t.Name, t.Route, mode, len(t.SourceDirs))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
