package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oriys/dnsflow/internal/domain"
)

var (
	submitAccountID string
	submitType      string
	submitDomain    string
	submitTarget    string
	submitComment   string
	submitTTL       int
	submitPriority  int
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a DNS provisioning request",
	Example: `  dnsctl submit --type A --domain app.example.com --target 10.0.0.5
  dnsctl submit --type MX --domain example.com --target mail.example.com --priority 10 --ttl 600`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		var cfg *domain.RecordConfig
		if submitTTL > 0 || cmd.Flags().Changed("priority") {
			cfg = &domain.RecordConfig{TTL: submitTTL}
			if cmd.Flags().Changed("priority") {
				prio := submitPriority
				cfg.Priority = &prio
			}
		}

		env := &domain.CreateRequestEnvelope{
			Context: domain.RequestContext{
				AccountID: submitAccountID,
				Source:    "cli",
			},
			Resource: domain.ResourcePayload{
				RecordType: domain.RecordType(submitType),
				Domain:     submitDomain,
				Target:     submitTarget,
				Comment:    submitComment,
				Config:     cfg,
			},
		}

		resp, err := client().CreateRequest(ctx, env)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitAccountID, "account", "cli_account", "Account identifier")
	submitCmd.Flags().StringVar(&submitType, "type", "", "Record type (A, AAAA, CNAME, MX, TXT)")
	submitCmd.Flags().StringVar(&submitDomain, "domain", "", "Domain name")
	submitCmd.Flags().StringVar(&submitTarget, "target", "", "Record target (IP, hostname or text)")
	submitCmd.Flags().StringVar(&submitComment, "comment", "", "Optional comment")
	submitCmd.Flags().IntVar(&submitTTL, "ttl", 0, "Record TTL in seconds")
	submitCmd.Flags().IntVar(&submitPriority, "priority", 0, "Record priority (MX)")
	submitCmd.MarkFlagRequired("type")
	submitCmd.MarkFlagRequired("domain")
	submitCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(submitCmd)
}
