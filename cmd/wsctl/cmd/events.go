package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var eventsCmd = &cobra.Command{
	Use:   "events [workspace_id]",
	Short: "Show the provisioning transition history of a workspace",
	Long:  `List every recorded state transition for the workspace's provisioning jobs, oldest first. Useful for diagnosing where a run failed or stalled.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		workspaceID := args[0]

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BORING_UI_TOKEN environment variable")
			return
		}

		client := NewWorkspaceClient(url, token)
		events, err := client.GetEvents(workspaceID)
		if err != nil {
			cmd.Printf("Failed to get events: %v\n", err)
			return
		}

		if len(events) == 0 {
			cmd.Println("No provisioning events recorded")
			return
		}

		for _, e := range events {
			from := e.FromState
			if from == "" {
				from = "-"
			}
			if e.ErrorCode != nil {
				detail := ""
				if e.Detail != nil {
					detail = *e.Detail
				}
				cmd.Printf("%s  job=%d  %s → %s  %s[%s]%s %s\n",
					e.OccurredAt.Format("2006-01-02 15:04:05"), e.JobID, from, e.ToState,
					colorRed, *e.ErrorCode, colorReset, detail)
			} else {
				cmd.Printf("%s  job=%d  %s → %s\n",
					e.OccurredAt.Format("2006-01-02 15:04:05"), e.JobID, from, e.ToState)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
