package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pevans/artscrape/discovery"
	"github.com/pevans/artscrape/scraper"
	"github.com/spf13/cobra"
)

func newScrapeCmd(a *app) *cobra.Command {
	var (
		skipExisting bool
		verbose      bool
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape every configured page once",
		Long: `Scrape fetches each page of the site file in order, extracts the article
and upserts it by URL. A page that fails is reported and skipped; the exit
status is non-zero when any page failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sites, err := scraper.LoadSites(a.sitesFile(cmd))
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			fetchersConfig := a.cfg.Scraper.FetchersConfig()
			fetchersConfig.Logger = a.logger
			fetchers := scraper.NewFetchers(fetchersConfig)

			if cmd.Flags().Changed("skip-existing") {
				a.cfg.Scraper.SkipExisting = skipExisting
			}
			service := discovery.NewService(
				store,
				fetchers,
				scraper.NewFeedReader(fetchers.HTTP()),
				discovery.Config{SkipExisting: a.cfg.Scraper.SkipExisting},
				a.logger,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, runErr := service.Run(ctx, sites)

			out := cmd.OutOrStdout()
			if asJSON {
				if err := printRunJSON(out, result); err != nil {
					return err
				}
			} else {
				printRunSummary(out, result, verbose)
			}

			if runErr != nil {
				return fmt.Errorf("scrape interrupted: %w", runErr)
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d entries failed", result.Failed, result.Total())
			}
			return nil
		},
	}

	cmd.Flags().String("sites", "", "site file (default from scraper.sites_file)")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "skip pages whose URL is already stored")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every failed entry")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run result as JSON")

	return cmd
}
