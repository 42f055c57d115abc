package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/virasat/internal/mapview"
	"github.com/ppiankov/virasat/internal/pipeline"
)

var listJSON bool

// discoveriesCmd lists claimed discoveries
var discoveriesCmd = &cobra.Command{
	Use:     "discoveries",
	Aliases: []string{"list"},
	Short:   "List claimed discoveries",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := pipeline.NewPipeline(cmd.Context(), cfg, pipeline.Options{Logger: newLogger(cfg)})
		if err != nil {
			return err
		}
		defer func() { _ = p.Close() }()

		all, err := p.Store().LoadAll(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if listJSON {
			return writeJSON(out, all)
		}
		if len(all) == 0 {
			fmt.Fprintln(out, "No discoveries yet. Scan a heritage site to claim one.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tERA\tLOCATION")
		for _, rec := range all {
			loc := "-"
			if rec.Coords != nil {
				loc = fmt.Sprintf("%.4f, %.4f", rec.Coords.Latitude, rec.Coords.Longitude)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", rec.ID, rec.Name, rec.Era, loc)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d discoveries, %s\n", len(all), mapview.Header(all).Label)
		return nil
	},
}

// scoreCmd prints the Guardian Rank
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Show your Guardian Rank",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := pipeline.NewPipeline(cmd.Context(), cfg, pipeline.Options{Logger: newLogger(cfg)})
		if err != nil {
			return err
		}
		defer func() { _ = p.Close() }()

		all, err := p.Store().LoadAll(cmd.Context())
		if err != nil {
			return err
		}
		header := mapview.Header(all)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", header.Title, header.Label)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoveriesCmd)
	rootCmd.AddCommand(scoreCmd)

	discoveriesCmd.Flags().BoolVar(&listJSON, "json", false, "print discoveries as JSON")
}
