package cmd

import (
	"github.com/boringdata/boring-ui/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var retryKey string

var retryCmd = &cobra.Command{
	Use:   "retry [workspace_id]",
	Short: "Retry provisioning after a failed run",
	Long: `Queue a fresh provisioning job for a workspace whose last run ended in
error. The new job re-runs the workspace's last release and starts at attempt 1.`,
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
		result, err := client.Retry(workspaceID, api.RetryRequest{
			IdempotencyKey: retryKey,
		})
		if err != nil {
			cmd.Printf("Failed to retry: %v\n", err)
			return
		}

		if result.Created {
			cmd.Printf("🚀 Retry queued!\nJob ID: %d\n", result.JobID)
		} else {
			cmd.Printf("Idempotent replay: job %d already exists (state: %s)\n", result.JobID, result.State)
		}
	},
}

func init() {
	retryCmd.Flags().StringVar(&retryKey, "key", "", "Idempotency key (required)")
	retryCmd.MarkFlagRequired("key")

	rootCmd.AddCommand(retryCmd)
}
