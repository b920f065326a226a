package cmd

import (
	"github.com/spf13/cobra"

	"github.com/scripthost/extmem/internal/debug"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			consoleWriter.Println("extmem " + debug.ReadBuildInfo())
			return nil
		},
	}
}
