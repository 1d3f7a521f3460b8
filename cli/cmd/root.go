package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/cloudguard/cli/internal/client"
	"github.com/telhawk-systems/cloudguard/cli/internal/config"
	"github.com/telhawk-systems/cloudguard/cli/pkg/output"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "guardctl",
	Short: "Cloud Guard CLI",
	Long: `guardctl is the command-line interface for Cloud Guard.

Send sign-in audit events to the signin service, generate synthetic
activity and inspect processing counters from your terminal.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.guardctl/config.yaml)")
	rootCmd.PersistentFlags().String("output", "", "output format: table, json, yaml")
	rootCmd.PersistentFlags().String("signin-url", "", "signin service base URL")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// printer builds an output.Printer honouring --output over the config file.
func printer(cmd *cobra.Command) (*output.Printer, error) {
	name := cfg.Output
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		name = v
	}
	format, err := output.ParseFormat(name)
	if err != nil {
		return nil, err
	}
	return output.New(format, cmd.OutOrStdout(), cmd.ErrOrStderr()), nil
}

func signinClient(cmd *cobra.Command) *client.SigninClient {
	url := cfg.SigninURL
	if v, _ := cmd.Flags().GetString("signin-url"); v != "" {
		url = v
	}
	return client.NewSigninClient(url, cfg.Timeout)
}
