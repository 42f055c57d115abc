package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/virasat/internal/llm"
	"github.com/ppiankov/virasat/internal/logging"
	"github.com/ppiankov/virasat/internal/model"
)

// Version is set at build time
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "virasat",
	Short: "Virasat - heritage site capture, verification and claims",
	Long: `Virasat turns photos of real-world heritage structures into verified
discoveries.

Each photo goes through one capture -> verify -> claim pass: a multimodal
model decides whether the photo shows a heritage structure and narrates it,
and accepted sites can be claimed at the current location. Every claimed
discovery adds 500 XP to your Guardian Rank.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "virasat %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.virasat/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".virasat"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	if err := setDefaults(viper.GetViper(), model.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error applying defaults: %v\n", err)
	}

	// Read in environment variables that match VIRASAT_* (VIRASAT_AI_MODEL -> ai.model)
	viper.SetEnvPrefix("VIRASAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every key of cfg so env vars and Unmarshal see them
func setDefaults(v *viper.Viper, cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	walkDefaults(v, "", tree)

	// omitempty keys are absent from the marshalled tree
	for _, key := range []string{
		"ai.api_key", "ai.base_url", "ai.http_proxy", "ai.https_proxy", "ai.no_proxy",
		"mqtt.username", "mqtt.password",
	} {
		v.SetDefault(key, "")
	}
	return nil
}

func walkDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			walkDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// loadConfig merges defaults, config file, env vars and provider API key
// variables into a Config
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnvKeys(cfg, os.Getenv)
	if home, err := os.UserHomeDir(); err == nil {
		resolvePaths(cfg, filepath.Join(home, ".virasat"))
	}
	return cfg, nil
}

// resolvePaths roots relative data directories under baseDir
func resolvePaths(cfg *model.Config, baseDir string) {
	for _, p := range []*string{&cfg.Storage.Path, &cfg.Capture.Dir, &cfg.Cache.DiskDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
}

// applyEnvKeys fills credentials from the vendors' conventional variables
func applyEnvKeys(cfg *model.Config, getenv func(string) string) {
	if cfg.AI.APIKey == "" {
		if env := llm.APIKeyEnv(cfg.AI.Provider); env != "" {
			cfg.AI.APIKey = getenv(env)
		}
	}
	if strings.EqualFold(cfg.AI.Provider, "ollama") && cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = getenv("OLLAMA_BASE_URL")
	}
}

// newLogger builds the process logger on stderr
func newLogger(cfg *model.Config) *slog.Logger {
	lc := cfg.Logging
	if verbose {
		lc.Level = "debug"
	}
	return logging.New(lc, os.Stderr)
}
