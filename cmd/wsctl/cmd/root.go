package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "wsctl",
	Short: "Wsctl is a command line tool for interacting with the boring-ui control plane",
	Long: `wsctl is the command-line interface for the boring-ui workspace platform.

boring-ui provisions isolated workspace sandboxes from released application
bundles. Provisioning is driven by a deterministic pipeline:

  release_resolve -> creating_sandbox -> uploading_artifact -> bootstrapping -> health_check

Common workflows:

  Provision a workspace from a release:
    wsctl provision <workspace-id> --app my-app --release rel-42 --key deploy-1

  Check the workspace runtime:
    wsctl status <workspace-id>

  Retry after a failed run:
    wsctl retry <workspace-id> --key deploy-1-retry

  Inspect the transition history:
    wsctl events <workspace-id>

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    BORING_UI_URL      API endpoint (default: http://localhost:6171)
    BORING_UI_TOKEN    Tenant API Token for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".wsctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".wsctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "BORING_UI_VARNAME"
	viper.SetEnvPrefix("BORING_UI")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.wsctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6171", "Control plane URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API Token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
