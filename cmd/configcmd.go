package cmd

import (
	"github.com/spf13/cobra"

	"github.com/illarion/pinvault/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var path string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			written, err := config.WriteConfigFile(a.cfg, path)
			if err != nil {
				return err
			}
			printf(cmd, "Wrote %s\n", written)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&path, "output", "o", "", "file to write (default is the user config path)")

	cmd.AddCommand(initCmd)
	return cmd
}
