package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "knowgo",
	Short: "Knowledge retrieval and ingestion engine",
	Long: `knowgo turns registered documents into searchable vector knowledge:
it chunks and embeds document content into per-scope namespaces, and
answers retrieval queries across the namespaces a caller is entitled to.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
