package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Sternrassler/listing-harvester/internal/config"
)

type flagValues struct {
	configFile  string
	event       string
	concurrency int
	maxAttempts int
	maxPages    int
	rps         float64
	format      string
	outputDir   string
	prefix      string
	userAgent   string
	insecure    bool
	redisAddr   string
	redisCache  bool
	metricsAddr string
	logLevel    string
	logFile     string
	pretty      bool
}

func newRootCmd() *cobra.Command {
	var fv flagValues

	cmd := &cobra.Command{
		Use:   "harvest [url]",
		Short: "Harvest every page of a paginated listing endpoint",
		Long: `harvest fetches page 1 of a listing URL, derives the page count from its
metadata and fetches the remaining pages in gated batches with retry and
backoff. The listings are written to <prefix>_<event>_<timestamp>.<format>.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(fv.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyFlags(cmd.Flags(), &fv, cfg)
			if len(args) == 1 {
				cfg.URL = args[0]
			}
			if cfg.URL == "" {
				return fmt.Errorf("a listing URL is required (argument, url in the config file or HARVEST_URL)")
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&fv.configFile, "config", "c", "", "YAML config file")
	f.StringVarP(&fv.event, "event", "e", "", "event name used in the output file name")
	f.IntVarP(&fv.concurrency, "concurrency", "n", 0, "maximum concurrent page fetches")
	f.IntVar(&fv.maxAttempts, "max-attempts", 0, "attempts per page before giving up")
	f.IntVar(&fv.maxPages, "max-pages", 0, "refuse listings that advertise more pages than this")
	f.Float64Var(&fv.rps, "rps", 0, "cap on request starts per second (0 = unlimited)")
	f.StringVarP(&fv.format, "format", "f", "", "output format: csv or parquet")
	f.StringVarP(&fv.outputDir, "output-dir", "o", "", "output directory")
	f.StringVar(&fv.prefix, "prefix", "", "output file name prefix")
	f.StringVar(&fv.userAgent, "user-agent", "", "fixed User-Agent instead of the rotating pool")
	f.BoolVar(&fv.insecure, "insecure", false, "skip TLS certificate verification")
	f.StringVar(&fv.redisAddr, "redis-addr", "", "Redis host:port for the shared cooldown and page cache")
	f.BoolVar(&fv.redisCache, "cache", false, "cache fetched pages in Redis")
	f.StringVar(&fv.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	f.StringVar(&fv.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&fv.logFile, "log-file", "", "also write JSON logs to this rotating file")
	f.BoolVar(&fv.pretty, "pretty", false, "human-readable console logs")

	return cmd
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(fs *pflag.FlagSet, fv *flagValues, cfg *config.Config) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}

	set("event", func() { cfg.Event = fv.event })
	set("concurrency", func() { cfg.Run.Concurrency = fv.concurrency })
	set("max-attempts", func() { cfg.Fetch.MaxAttempts = fv.maxAttempts })
	set("max-pages", func() { cfg.Run.MaxPages = fv.maxPages })
	set("rps", func() { cfg.Fetch.RequestsPerSecond = fv.rps })
	set("format", func() { cfg.Export.Format = fv.format })
	set("output-dir", func() { cfg.Export.Dir = fv.outputDir })
	set("prefix", func() { cfg.Export.Prefix = fv.prefix })
	set("user-agent", func() { cfg.Fetch.UserAgent = fv.userAgent })
	set("insecure", func() { cfg.Fetch.InsecureSkipVerify = fv.insecure })
	set("redis-addr", func() { cfg.Redis.Addr = fv.redisAddr })
	set("cache", func() { cfg.Redis.Cache = fv.redisCache })
	set("metrics-addr", func() { cfg.MetricsAddr = fv.metricsAddr })
	set("log-level", func() { cfg.Log.Level = fv.logLevel })
	set("log-file", func() { cfg.Log.File = fv.logFile })
	set("pretty", func() { cfg.Log.Pretty = fv.pretty })
}
