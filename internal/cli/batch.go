package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/virasat/internal/pipeline"
)

var (
	concurrency  int
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <dir|file>",
	Short: "Pre-screen many photos in parallel",
	Long: `Batch verifies many photos concurrently without claiming any of them:
- A directory is scanned for .jpg, .jpeg, .png, .webp, .heic and .gif files
- A file is read as a list of locators (one path or URL per line, # comments)
- Requests are paced by ai.requests_per_second when set

Use it to find which photos are worth a full scan.

Example:
  virasat batch ./trip-photos
  virasat batch photos.txt --concurrency 2 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	addAIFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}

	if !jsonOutput {
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
		fmt.Fprintf(os.Stderr, "  Virasat Batch Pre-screen\n")
		fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "  Input:     %s\n", path)
		fmt.Fprintf(os.Stderr, "  Workers:   %d\n", concurrency)
		fmt.Fprintf(os.Stderr, "  Provider:  %s/%s\n", cfg.AI.Provider, cfg.AI.Model)
		fmt.Fprintf(os.Stderr, "  Timeout:   %v\n", batchTimeout)
		fmt.Fprintf(os.Stderr, "\n")
	}

	p, err := pipeline.NewPipeline(ctx, cfg, pipeline.Options{Logger: newLogger(cfg)})
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	start := time.Now()
	results, err := p.Batch(ctx, path, concurrency)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, results)
	}

	accepted, rejected, failed := 0, 0, 0
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PHOTO\tVERDICT\tDETAIL")
	for _, r := range results {
		switch {
		case r.Error != nil:
			failed++
			fmt.Fprintf(tw, "%s\tskipped\t%v\n", r.Locator, r.Error)
		case r.Verdict.Valid:
			accepted++
			fmt.Fprintf(tw, "%s\t✓ heritage\t%s (%s)\n", r.Locator, r.Verdict.Name, r.Verdict.Era)
		default:
			rejected++
			fmt.Fprintf(tw, "%s\t✗ rejected\t%s\n", r.Locator, r.Verdict.RejectionReason)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n✓ %d photos in %v: %d heritage, %d rejected, %d skipped\n",
		len(results), time.Since(start).Round(time.Millisecond), accepted, rejected, failed)
	return nil
}
