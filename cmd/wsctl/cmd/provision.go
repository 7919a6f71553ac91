package cmd

import (
	"github.com/boringdata/boring-ui/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	provisionAppID     string
	provisionReleaseID string
	provisionKey       string
)

var provisionCmd = &cobra.Command{
	Use:   "provision [workspace_id]",
	Short: "Provision a workspace from a release",
	Long: `Queue a provisioning job that resolves the release bundle, creates a
sandbox, uploads the artifact, bootstraps it, and health-checks the result.

The idempotency key makes retries of the same request safe: repeating the
command with the same key returns the original job instead of queuing a new one.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		workspaceID := args[0]

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BORING_UI_TOKEN environment variable")
			return
		}

		client := NewWorkspaceClient(url, token)
		result, err := client.Provision(workspaceID, api.ProvisionRequest{
			AppID:          provisionAppID,
			ReleaseID:      provisionReleaseID,
			IdempotencyKey: provisionKey,
		})
		if err != nil {
			cmd.Printf("Failed to provision: %v\n", err)
			return
		}

		if result.Created {
			cmd.Printf("🚀 Provisioning started!\nJob ID: %d\n", result.JobID)
		} else {
			cmd.Printf("Idempotent replay: job %d already exists (state: %s)\n", result.JobID, result.State)
		}
	},
}

func init() {
	provisionCmd.Flags().StringVar(&provisionAppID, "app", "", "Application ID (required)")
	provisionCmd.Flags().StringVar(&provisionReleaseID, "release", "", "Release ID (required)")
	provisionCmd.Flags().StringVar(&provisionKey, "key", "", "Idempotency key (required)")
	provisionCmd.MarkFlagRequired("app")
	provisionCmd.MarkFlagRequired("release")
	provisionCmd.MarkFlagRequired("key")

	rootCmd.AddCommand(provisionCmd)
}
