package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pevans/artscrape/discovery"
	"github.com/pevans/artscrape/scraper"
)

// printRunSummary prints the counts of a scrape run and, if verbose, each
// failed entry.
func printRunSummary(w io.Writer, result *discovery.RunResult, verbose bool) {
	fmt.Fprintln(w, "Scrape completed:")
	fmt.Fprintf(w, "  Run ID:    %s\n", result.RunID)
	fmt.Fprintf(w, "  Succeeded: %d (%d new, %d updated)\n", result.Succeeded, result.Created, result.Updated)
	fmt.Fprintf(w, "  Failed:    %d\n", result.Failed)
	if result.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped:   %d\n", result.Skipped)
	}
	fmt.Fprintf(w, "  Duration:  %s\n", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))

	if len(result.Errors) > 0 && verbose {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, entryErr := range result.Errors {
			fmt.Fprintf(w, "  - [%s] %s: %v\n", entryErr.Source, entryErr.URL, entryErr.Err)
		}
	}
}

type runJSON struct {
	*discovery.RunResult
	Errors []entryErrorJSON `json:"errors,omitempty"`
}

type entryErrorJSON struct {
	Source string `json:"source"`
	URL    string `json:"url"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

// printRunJSON prints the run result as indented JSON.
func printRunJSON(w io.Writer, result *discovery.RunResult) error {
	out := runJSON{RunResult: result}
	for _, e := range result.Errors {
		out.Errors = append(out.Errors, entryErrorJSON{
			Source: e.Source,
			URL:    e.URL,
			Stage:  e.Stage,
			Error:  e.Err.Error(),
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// printSitesTable prints one row per site.
func printSitesTable(w io.Writer, sites []scraper.Site) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tFETCH\tURLS\tFEED")
	total := 0
	for _, site := range sites {
		feed := "-"
		if site.Feed != "" {
			feed = site.Feed
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", site.Source, site.Fetch, len(site.URLs), feed)
		total += len(site.URLs)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d sites, %d static URLs\n", len(sites), total)
}

// printSitesJSON prints the normalized sites as indented JSON.
func printSitesJSON(w io.Writer, sites []scraper.Site) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(sites)
}
