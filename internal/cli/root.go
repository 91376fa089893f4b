// Package cli provides the command-line interface for the progress service.
package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "progress",
	Short: "Job progress client for the wolfmed RAG service",
	Long: `Progress streams live job updates from the wolfmed RAG service.

Ask a question and watch the answer pipeline advance stage by stage, or
attach to a job that is already running. The client resumes from the last
seen event after transport drops, so a flaky connection never loses
progress updates.`,
	Version: Version,
}

// streamEndpoint returns the SSE route for the configured server.
func streamEndpoint() string {
	return strings.TrimRight(serverURL, "/") + "/api/rag/progress"
}

// queryEndpoint returns the query route for the configured server.
func queryEndpoint() string {
	return strings.TrimRight(serverURL, "/") + "/api/rag/query"
}

// ingestEndpoint returns the ingest route for the configured server.
func ingestEndpoint() string {
	return strings.TrimRight(serverURL, "/") + "/api/rag/ingest"
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8090", "progress server base URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(watchCmd)
}
