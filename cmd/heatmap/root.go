package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/replay-heatmap/internal/config"
	"github.com/JakeFAU/replay-heatmap/internal/logging"
	"github.com/JakeFAU/replay-heatmap/internal/scraper"
	"github.com/JakeFAU/replay-heatmap/internal/transport"
)

// deps holds the pieces tests replace.
type deps struct {
	stdout    io.Writer
	newLogger func(logging.Config) (*zap.Logger, error)
	// fetcher overrides the colly transport when set.
	fetcher transport.Fetcher
}

func defaultDeps() deps {
	return deps{stdout: os.Stdout, newLogger: logging.New}
}

// runtime is populated by the root command before any subcommand runs.
type runtime struct {
	deps
	v      *viper.Viper
	cfg    config.Config
	logger *zap.Logger
}

func (rt *runtime) scraper() *scraper.Scraper {
	sc := rt.cfg.ScraperConfig()
	sc.Transport = rt.fetcher
	return scraper.New(sc, rt.logger.Named("scraper"))
}

func newRootCmd(d deps) *cobra.Command {
	rt := &runtime{deps: d, v: config.NewViper()}
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Fetch YouTube most-replayed heatmaps.",
		Long: `heatmap downloads a video's watch page, extracts the embedded initial data
document, and reports the normalized replay-intensity markers. It runs as a
one-shot CLI or as an HTTP service.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rt.v, cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := rt.newLogger(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			rt.cfg = cfg
			rt.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}
	cmd.SetOut(d.stdout)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON, or TOML)")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	bindFlag(rt.v, "logging.level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(newFetchCmd(rt))
	cmd.AddCommand(newServeCmd(rt))
	return cmd
}
