package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"skim/cmd/handlers"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "skim",
	Short: "Skim ingests feeds and writes a daily report of summarized items.",
	Long: `Skim fetches the configured syndication feeds, drops items it has seen
in prior runs, keeps the ones matching your interest tags, summarizes them
with a language model in parallel, and appends the results to a dated
markdown report.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handlers.HandleRun(cmd.Context(), cfgFile)
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./skim.yaml or $HOME/skim.yaml)")
	rootCmd.AddCommand(runCmd)
}
