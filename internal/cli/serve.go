package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/virasat/internal/pipeline"
)

var serveAddr string

// serveCmd runs the map API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the discovery map API",
	Long: `Serve exposes the discovery map over HTTP:

  GET /api/markers           unclaimed (gold) and claimed (green) markers
  GET /api/markers.geojson   the same markers as GeoJSON
  GET /api/discoveries       all claimed discoveries
  GET /api/discoveries/:id   summary card for one discovery
  GET /api/score             Guardian Rank
  GET /healthz               liveness
  GET /metrics               Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		p, err := pipeline.NewPipeline(cmd.Context(), cfg, pipeline.Options{Logger: newLogger(cfg)})
		if err != nil {
			return err
		}
		defer func() { _ = p.Close() }()

		fmt.Fprintf(os.Stderr, "Serving discovery map on %s\n", cfg.Server.Addr)
		return p.Server().Start(cmd.Context(), cfg.Server.Addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
}
