package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"autostats/config"
	"autostats/services"
)

// newScrapeCmd collects the requested networks and prints the rows that would
// be appended. Nothing is written to the sheet.
func newScrapeCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "scrape [network...]",
		Short:   "Scrape telemetry and chain state without writing to the sheet",
		Example: "  autostats scrape chronos mainnet",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			collector := services.NewCollector(c, services.CollectorDeps{
				Launcher: services.NewChromeLauncher(c.Browser),
				Chain:    services.NewSubstrateClient(c),
			})

			selected, err := collector.ResolveNetworks(args)
			if err != nil {
				return err
			}

			snapshots, err := collector.Scrape(cmd.Context(), selected)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snapshots)
		},
	}
}
