package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gencohq/genco/pkg/logutil"
	"github.com/gencohq/genco/pkg/version"
)

var rootLogLevel string

var rootCmd = &cobra.Command{
	Use:   "gencod",
	Short: "AI content-generation backend",
	Long:  "Gencod routes prompt-completion requests to LLM providers with managed API keys, auth, and shared presets.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "loglevel", "", "Log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if rootLogLevel != "" {
			return logutil.Configure(rootLogLevel)
		}
		return nil
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.Detailed("gencod"))
		},
	})
}
