package cmd

import (
	"github.com/spechtlabs/strato/internal/utils"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cobra.OnInitialize(initConfig)

	// rootCmd represents the base command when called without any subcommands
	cmdRoot := cobra.Command{
		Use:   "strato",
		Short: "strato is the cluster membership daemon of the strato distributed SQL database",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			utils.InitObservability()
		},
	}

	cmdRoot.AddCommand(newVersionCmd())
	addServerFlags(&cmdRoot)

	return &cmdRoot
}
