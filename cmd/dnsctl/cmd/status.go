package cmd

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status <request-id>",
	Short:   "Show the status and log of a DNS request",
	Args:    cobra.ExactArgs(1),
	Example: `  dnsctl status 3f1c...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		resp, err := client().GetStatus(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
