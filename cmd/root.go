package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/msouli/folio/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "foliod",
	Short: "Personal portfolio site server",
	Long:  "Foliod serves the portfolio pages and the abuse-resistant streaming chat proxy behind them.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print foliod version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Detailed("foliod"))
		},
	})
}
