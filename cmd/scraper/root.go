package main

import (
	"fmt"
	"log/slog"

	"github.com/pevans/artscrape/article"
	"github.com/pevans/artscrape/config"
	"github.com/pevans/artscrape/logging"
	"github.com/spf13/cobra"
)

// app holds state shared by every command once configuration is loaded.
type app struct {
	cfgFile string
	debug   bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "scraper",
		Short: "Scrape articles from configured websites and serve them",
		Long: `scraper fetches the pages listed in a site file, extracts each article's
title, body and publication date, and stores them keyed by URL. The stored
articles are served read-only over HTTP.

Example usage:
  scraper sites                      # Validate the site file and list its sites
  scraper scrape                     # Scrape every configured page once
  scraper scrape --skip-existing     # Only scrape pages not stored yet
  scraper serve --addr :8000         # Serve the read API`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./scraper.yaml if present)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging and gin debug mode")

	cmd.AddCommand(
		newScrapeCmd(a),
		newServeCmd(a),
		newSitesCmd(a),
	)

	return cmd
}

// init loads configuration and builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Debug = true
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if cfg.Debug {
		level = slog.LevelDebug
	}

	a.cfg = cfg
	a.logger = logging.New(cmd.ErrOrStderr(), level, cfg.Log.Format)
	slog.SetDefault(a.logger)

	a.logger.Debug("configuration loaded",
		"database_driver", cfg.Database.Driver,
		"sites_file", cfg.Scraper.SitesFile,
		"server_addr", cfg.Server.Addr,
	)

	return nil
}

func (a *app) openStore() (*article.Store, error) {
	store, err := article.NewStore(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open article store: %w", err)
	}
	return store, nil
}

// sitesFile returns the --sites flag when given, else the configured path.
func (a *app) sitesFile(cmd *cobra.Command) string {
	if f := cmd.Flags().Lookup("sites"); f != nil && f.Changed {
		return f.Value.String()
	}
	return a.cfg.Scraper.SitesFile
}
