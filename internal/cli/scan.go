package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/virasat/internal/geo"
	"github.com/ppiankov/virasat/internal/model"
	"github.com/ppiankov/virasat/internal/pipeline"
	"github.com/ppiankov/virasat/internal/workflow"
)

var (
	scanTimeout time.Duration
	autoClaim   bool
	latitude    float64
	longitude   float64
	aiProvider  string
	aiModel     string
	noCache     bool
	jsonOutput  bool
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <photo>",
	Short: "Verify a photo and claim it as a discovery",
	Long: `Scan runs one capture -> verify -> claim pass for a photo:
- The photo is copied into the capture directory
- A multimodal model decides whether it shows a heritage structure
- Accepted sites are claimed at the current location (after confirmation)
- Rejected photos are discarded

Example:
  virasat scan stepwell.jpg
  virasat scan stepwell.jpg --yes --lat 28.5355 --lon 77.3910
  virasat scan fort.jpg --provider openai --model gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 2*time.Minute, "overall scan timeout")
	scanCmd.Flags().BoolVarP(&autoClaim, "yes", "y", false, "claim accepted sites without asking")
	scanCmd.Flags().Float64Var(&latitude, "lat", 0, "claim latitude (overrides the location provider)")
	scanCmd.Flags().Float64Var(&longitude, "lon", 0, "claim longitude (overrides the location provider)")
	addAIFlags(scanCmd)
}

// addAIFlags registers the flags shared by every verifying command
func addAIFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&aiProvider, "provider", "", "AI provider (gemini, openai, anthropic, ollama)")
	cmd.Flags().StringVar(&aiModel, "model", "", "AI model name")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the verdict cache")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")
}

// commandConfig loads the config and applies command flags
func commandConfig(cmd *cobra.Command) (*model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if aiProvider != "" && !strings.EqualFold(aiProvider, cfg.AI.Provider) {
		cfg.AI.Provider = aiProvider
		cfg.AI.APIKey = ""
		cfg.AI.Model = ""
		applyEnvKeys(cfg, os.Getenv)
	}
	if aiModel != "" {
		cfg.AI.Model = aiModel
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	return cfg, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	photo := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
	defer cancel()

	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	opts := pipeline.Options{Logger: logger}
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
		opts.Locator = geo.NewStaticLocator(latitude, longitude)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Scanning: %s\n", photo)
		fmt.Fprintf(os.Stderr, "Provider: %s/%s\n", cfg.AI.Provider, cfg.AI.Model)
		fmt.Fprintf(os.Stderr, "Cache: %v\n\n", cfg.Cache.Enabled)
	}

	p, err := pipeline.NewPipeline(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	var confirm pipeline.ConfirmFunc
	if !autoClaim && !jsonOutput {
		confirm = func(v model.VerificationVerdict) bool {
			printVerdict(cmd.OutOrStdout(), v)
			return askConfirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Claim this site?")
		}
	}

	result, err := p.ScanPhoto(ctx, photo, confirm)
	var ce *workflow.ClaimError
	if errors.As(err, &ce) {
		fmt.Fprintf(os.Stderr, "⚠️  Claim failed (%s): %v\n", ce.Reason, ce.Err)
		fmt.Fprintf(os.Stderr, "   The site is still verified; fix the problem and scan again.\n")
		return err
	}
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), result)
	}

	out := cmd.OutOrStdout()
	if confirm == nil || !result.Verdict.Valid {
		printVerdict(out, result.Verdict)
	}
	switch {
	case result.Claimed():
		fmt.Fprintf(out, "\n✓ Claimed discovery #%d at %.4f, %.4f\n", result.Record.ID, result.Record.Coords.Latitude, result.Record.Coords.Longitude)
		fmt.Fprintf(out, "  Guardian Rank: %d XP\n", result.Score)
	case result.Verdict.Valid:
		fmt.Fprintln(out, "\nNot claimed.")
	default:
		fmt.Fprintln(out, "\nPhoto discarded. Try another angle or another site.")
	}
	return nil
}

func printVerdict(w io.Writer, v model.VerificationVerdict) {
	if v.Valid {
		fmt.Fprintf(w, "✓ Heritage site verified\n")
		fmt.Fprintf(w, "  Name:      %s\n", v.Name)
		fmt.Fprintf(w, "  Era:       %s\n", v.Era)
		fmt.Fprintf(w, "  Narrative: %s\n", v.Narrative)
		return
	}
	fmt.Fprintf(w, "✗ Not verified: %s\n", v.RejectionReason)
}

// askConfirm reads a y/N answer; anything but yes declines
func askConfirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "\n%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
