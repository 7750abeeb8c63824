package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// configPath is an optional YAML file layered under the environment
	configPath string
	// logLevel overrides LOG_LEVEL when set
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "twin",
	Short: "Digital twin of a professional profile, answering in the first person",
	Long: `twin answers questions about a professional profile by retrieving the
most relevant profile chunks from an Upstash Vector index and having an LLM
(Groq or Gemini) answer from them in the first person.

Examples:
  # Upload the profile to the vector index
  twin ingest --prune

  # Ask a single question
  twin ask "What are your main technical skills?"

  # Start the HTTP API
  twin serve

  # Serve the MCP tools on stdio
  twin mcp`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (environment variables take precedence)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (defaults to LOG_LEVEL or info)")
}
