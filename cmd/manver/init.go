package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/david1155/manver/pkg/config"
)

func newInitCmd(fsys afero.Fs) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteTemplate(fsys, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("created"), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", config.DefaultFilename, "Path of the config file to create (.toml)")
	return cmd
}
