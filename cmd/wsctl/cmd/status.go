package cmd

import (
	"fmt"
	"time"

	"github.com/boringdata/boring-ui/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status [workspace_id]",
	Short: "Get the runtime status of a workspace",
	Long:  `Retrieve the workspace's latest provisioning job and runtime snapshot, including its current state, the step it is in (or failed at), attempt counter, and error details.`,
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
		status, err := client.GetRuntime(workspaceID)
		if err != nil {
			cmd.Printf("Failed to get status: %v\n", err)
			return
		}

		printStatus(cmd, status)
	},
}

func printStatus(cmd *cobra.Command, status *api.RuntimeStatusResponse) {
	// Header with state icon
	icon := stateIcon(status.State)
	cmd.Printf("%s %sWorkspace Runtime%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sWorkspace:%s   %s\n", colorDim, colorReset, status.WorkspaceID)
	cmd.Printf("%sState:%s       %s\n", colorDim, colorReset, colorizeState(status.State))

	if status.Step != nil {
		cmd.Printf("%sStep:%s        %s\n", colorDim, colorReset, *status.Step)
	}

	cmd.Printf("%sAttempt:%s     %d\n", colorDim, colorReset, status.Attempt)

	if status.ReleaseID != "" {
		cmd.Printf("%sRelease:%s     %s\n", colorDim, colorReset, status.ReleaseID)
	}
	if status.SandboxName != "" {
		cmd.Printf("%sSandbox:%s     %s\n", colorDim, colorReset, status.SandboxName)
	}

	// Error (if present)
	if status.LastErrorCode != nil {
		cmd.Printf("%sError Code:%s  %s%s%s\n", colorDim, colorReset, colorRed, *status.LastErrorCode, colorReset)
	}
	if status.LastErrorDetail != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, *status.LastErrorDetail, colorReset)
	}

	// Timestamps with relative time
	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(status.StartedAt))

	// Duration if both times available
	if status.StartedAt != nil && status.FinishedAt != nil {
		duration := status.FinishedAt.Sub(*status.StartedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(status.FinishedAt),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(status.FinishedAt))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func stateIcon(state string) string {
	switch state {
	case "ready":
		return colorGreen + "✓" + colorReset
	case "error":
		return colorRed + "✗" + colorReset
	case "queued":
		return colorCyan + "◯" + colorReset
	default:
		// One of the in-flight pipeline steps
		return colorYellow + "⏳" + colorReset
	}
}

func colorizeState(state string) string {
	icon := stateIcon(state)
	switch state {
	case "ready":
		return icon + " " + colorGreen + state + colorReset
	case "error":
		return icon + " " + colorRed + state + colorReset
	case "queued":
		return icon + " " + colorCyan + state + colorReset
	default:
		return icon + " " + colorYellow + state + colorReset
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
