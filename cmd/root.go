// Package cmd implements the solace command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "solace",
	Short: "Solace - AI coaching chat core",
	Long: `Solace is the serving core of a multi-tenant AI coaching platform.
It performs retrieval-augmented generation over a personal knowledge base,
routes queries across LLM providers, and streams responses to clients.

Run "solace serve" to start the HTTP API server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
