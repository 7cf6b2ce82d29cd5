package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oriys/dnsflow/internal/domain"
)

var setStatusMessage string

var setStatusCmd = &cobra.Command{
	Use:   "set-status <request-id> <status>",
	Short: "Manually move a pending request to a terminal status",
	Long: `set-status overrides the status of a PENDING request to COMPLETED or FAILED.
Requests already in a terminal status cannot be moved.`,
	Args:    cobra.ExactArgs(2),
	Example: `  dnsctl set-status 3f1c... FAILED --message "Provisioned out of band"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		resp, err := client().UpdateStatus(ctx, args[0], domain.RequestStatus(args[1]), setStatusMessage)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

func init() {
	setStatusCmd.Flags().StringVar(&setStatusMessage, "message", "", "Log message recorded with the override")
	rootCmd.AddCommand(setStatusCmd)
}
