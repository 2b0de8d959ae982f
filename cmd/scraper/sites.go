package main

import (
	"github.com/pevans/artscrape/scraper"
	"github.com/spf13/cobra"
)

func newSitesCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sites",
		Short: "Validate the site file and list its sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sites, err := scraper.LoadSites(a.sitesFile(cmd))
			if err != nil {
				return err
			}

			if asJSON {
				return printSitesJSON(cmd.OutOrStdout(), sites)
			}
			printSitesTable(cmd.OutOrStdout(), sites)
			return nil
		},
	}

	cmd.Flags().String("sites", "", "site file (default from scraper.sites_file)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the sites as JSON")

	return cmd
}
