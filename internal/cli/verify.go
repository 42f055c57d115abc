package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/virasat/internal/pipeline"
)

var (
	checkOnly     bool
	verifyTimeout time.Duration
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify [photo]",
	Short: "Verify a photo without claiming it",
	Long: `Verify sends one photo to the configured AI provider and prints the verdict.
Nothing is stored.

With --check, only checks the provider (credentials and reachability).

Example:
  virasat verify ruins.jpg
  virasat verify https://example.com/fort.jpg --json
  virasat verify --check --provider ollama --model llava`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().BoolVar(&checkOnly, "check", false, "only check that the provider is reachable")
	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", time.Minute, "overall timeout")
	addAIFlags(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	if !checkOnly && len(args) == 0 {
		return fmt.Errorf("a photo is required (or use --check)")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), verifyTimeout)
	defer cancel()

	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}

	p, err := pipeline.NewPipeline(ctx, cfg, pipeline.Options{Logger: newLogger(cfg)})
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	out := cmd.OutOrStdout()
	if checkOnly {
		if err := p.Verifier().Check(ctx); err != nil {
			return fmt.Errorf("provider %s unavailable: %w", cfg.AI.Provider, err)
		}
		fmt.Fprintf(out, "✓ Provider %s is reachable (model %s)\n", p.Verifier().ProviderName(), cfg.AI.Model)
		return nil
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Verifying: %s\n\n", args[0])
	}

	verdict := p.Verifier().VerifyLocator(ctx, args[0])
	if jsonOutput {
		return writeJSON(out, verdict)
	}
	printVerdict(out, verdict)
	return nil
}
