package cmd

import (
	"github.com/spf13/cobra"
)

var (
	recordsDomain string
	recordsLimit  int
)

var recordsCmd = &cobra.Command{
	Use:     "records",
	Short:   "List provisioned DNS records",
	Example: `  dnsctl records --domain app.example.com --limit 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		records, err := client().ListRecords(ctx, recordsDomain, recordsLimit)
		if err != nil {
			return err
		}
		return printJSON(records)
	},
}

func init() {
	recordsCmd.Flags().StringVar(&recordsDomain, "domain", "", "Filter by domain name")
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 50, "Maximum number of records")
	rootCmd.AddCommand(recordsCmd)
}
