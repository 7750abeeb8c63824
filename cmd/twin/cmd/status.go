package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/twinlab/digital-twin/internal/llm"
	"github.com/twinlab/digital-twin/internal/store"
	"github.com/twinlab/digital-twin/internal/vector"
)

var statusCheck bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and, with --check, test the connections",
	Long: `Show which credentials are set (never their values) and the last
ingestion run. With --check, query the vector index info and send a minimal
request to the LLM provider.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusCheck, "check", false, "Test the vector index and LLM connections")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	out := cmd.OutOrStdout()
	cfg.PrintStatus(out)
	printLastRun(out, cfg.ManifestPath)

	if !statusCheck {
		return nil
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, titleStyle.Render("Connection checks:"))

	var failed bool
	vc, err := vector.NewClient(cfg, vector.ReadOnly, vector.WithLogger(logger), vector.WithTimeout(cfg.RequestTimeout))
	if err == nil {
		var info *vector.IndexInfo
		if info, err = vc.Info(cmd.Context()); err == nil {
			fmt.Fprintln(out, statusLine(true, "Vector index", fmt.Sprintf("%d vectors, dimension %d, %s",
				info.VectorCount, info.Dimension, info.SimilarityFunction)))
		}
	}
	if err != nil {
		failed = true
		fmt.Fprintln(out, statusLine(false, "Vector index", err.Error()))
	}

	svc, err := llm.NewFromConfig(cmd.Context(), cfg, logger)
	if err == nil {
		defer svc.Close()
		err = svc.Ping(cmd.Context())
	}
	if err != nil {
		failed = true
		fmt.Fprintln(out, statusLine(false, "LLM ("+cfg.LLMProvider+")", err.Error()))
	} else {
		fmt.Fprintln(out, statusLine(true, "LLM ("+cfg.LLMProvider+")", cfg.LLMModel))
	}

	if failed {
		return errors.New("one or more connection checks failed")
	}
	return nil
}

// printLastRun reports the most recent ingestion without creating a manifest.
func printLastRun(out io.Writer, path string) {
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(out, "  Last ingestion: %s\n", dimStyle.Render("never (no manifest at "+path+")"))
		return
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		fmt.Fprintf(out, "  Last ingestion: %s\n", errorStyle.Render(err.Error()))
		return
	}
	defer s.Close()

	run, err := s.GetLastIngestionRun()
	switch {
	case err != nil:
		fmt.Fprintf(out, "  Last ingestion: %s\n", errorStyle.Render(err.Error()))
	case run == nil:
		fmt.Fprintf(out, "  Last ingestion: %s\n", dimStyle.Render("never"))
	default:
		fmt.Fprintf(out, "  Last ingestion: %s from %s (%d upserted, %d unchanged, %d deleted)\n",
			run.StartedAt.Format("2006-01-02 15:04:05"), run.Source, run.Upserted, run.Unchanged, run.Deleted)
	}
}

