package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.File != "" {
				fmt.Fprintf(c.out, "# %s\n", c.cfg.File)
			}
			enc := yaml.NewEncoder(c.out)
			if err := enc.Encode(c.cfg.Redacted()); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
