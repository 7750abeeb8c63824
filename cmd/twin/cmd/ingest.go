package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/twinlab/digital-twin/internal/ingest"
	"github.com/twinlab/digital-twin/internal/store"
	"github.com/twinlab/digital-twin/internal/vector"
)

var (
	ingestOpts    ingest.Options
	ingestProfile string
	ingestWatch   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Upload the profile to the vector index",
	Long: `Flatten the profile JSON into chunks and upsert the ones that changed
since the last run. Requires the read-write Upstash token.

Examples:
  twin ingest --dry-run
  twin ingest --prune
  twin ingest --reset
  twin ingest --watch`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestProfile, "profile", "", "Profile JSON file (defaults to PROFILE_PATH or digitaltwin.json)")
	ingestCmd.Flags().BoolVar(&ingestOpts.Reset, "reset", false, "Delete every vector before uploading")
	ingestCmd.Flags().BoolVar(&ingestOpts.Prune, "prune", false, "Delete vectors the profile no longer produces")
	ingestCmd.Flags().BoolVar(&ingestOpts.DryRun, "dry-run", false, "Show what would change without writing")
	ingestCmd.Flags().BoolVar(&ingestOpts.Force, "force", false, "Upload every chunk even if unchanged")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "Re-ingest whenever the profile file changes")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	vc, err := vector.NewClient(cfg, vector.ReadWrite, vector.WithLogger(logger), vector.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return fmt.Errorf("failed to initialize vector client: %w", err)
	}

	manifest, err := store.NewSQLiteStore(cfg.ManifestPath)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer manifest.Close()

	path := cfg.ProfilePath
	if ingestProfile != "" {
		path = ingestProfile
	}

	pipeline := ingest.NewPipeline(vc, manifest, logger)
	out := cmd.OutOrStdout()
	run := func(ctx context.Context, opts ingest.Options) error {
		report, err := pipeline.RunFile(ctx, path, opts)
		if err != nil {
			return err
		}
		printReport(out, report)
		return nil
	}

	if err := run(cmd.Context(), ingestOpts); err != nil {
		return err
	}
	if !ingestWatch {
		return nil
	}

	// Later runs only upload what changed.
	watchOpts := ingestOpts
	watchOpts.Reset = false
	watchOpts.Force = false

	fmt.Fprintln(out, dimStyle.Render("Watching "+path+" for changes. Press Ctrl+C to stop."))
	ctx, stop := signalContext(cmd.Context())
	defer stop()
	return ingest.Watch(ctx, path, ingest.DefaultDebounce, logger, func(ctx context.Context) error {
		if err := run(ctx, watchOpts); err != nil {
			logger.Error("re-ingestion failed", zap.Error(err))
			fmt.Fprintln(out, errorStyle.Render("Ingestion failed: ")+err.Error())
		}
		return nil
	})
}

func printReport(out io.Writer, r *ingest.Report) {
	if r.DryRun {
		fmt.Fprintln(out, titleStyle.Render("Dry run for "+r.Source))
		fmt.Fprintf(out, "  %d chunks, %d would be uploaded, %d unchanged, %d stale\n",
			r.Total, len(r.Pending), r.Unchanged, len(r.Stale))
		for _, id := range r.Pending {
			fmt.Fprintln(out, "  + "+id)
		}
		for _, id := range r.Stale {
			fmt.Fprintln(out, "  - "+id)
		}
		return
	}

	fmt.Fprintln(out, statusLine(true, "Ingested "+r.Source, r.RunID))
	fmt.Fprintf(out, "  %d chunks: %d uploaded, %d unchanged, %d deleted\n", r.Total, r.Upserted, r.Unchanged, r.Deleted)
	if len(r.Stale) > 0 && r.Deleted == 0 {
		fmt.Fprintf(out, "  %d stale vectors kept (use --prune to delete)\n", len(r.Stale))
	}
	fmt.Fprintf(out, "  Index now holds %d vectors\n", r.VectorCount)
}
