package commands

import (
	"fmt"
	"time"

	"cei-crawler/cmd/cei-cli/globals"
	"cei-crawler/internal/scrapers/cei"
	"cei-crawler/internal/scrapers/cei/model"

	"github.com/spf13/cobra"
)

var (
	assetsStart string
	assetsEnd   string
)

func init() {
	assetsCmd.Flags().StringVar(&assetsStart, "start", "", "First trade date (dd/mm/yyyy), defaults to the portal window.")
	assetsCmd.Flags().StringVar(&assetsEnd, "end", "", "Last trade date (dd/mm/yyyy), defaults to the portal window.")
	rootCmd.AddCommand(assetsCmd)
}

// parseOptionalDate returns the zero time for an empty flag.
func parseOptionalDate(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	date, err := model.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return date, nil
}

var assetsCmd = &cobra.Command{
	Use:   "assets [--start dd/mm/yyyy] [--end dd/mm/yyyy]",
	Short: "Lists the asset trades of every broker.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g := globals.Get(cmd.Context())

		start, err := parseOptionalDate("start", assetsStart)
		if err != nil {
			return err
		}
		end, err := parseOptionalDate("end", assetsEnd)
		if err != nil {
			return err
		}
		window := model.DateRange{Start: start, End: end}
		if !window.Start.IsZero() && !window.End.IsZero() && window.End.Before(window.Start) {
			return fmt.Errorf("--end %s is before --start %s", assetsEnd, assetsStart)
		}

		crawler := cei.NewAssetsCrawler(g.Session, g.Telemetry)
		brokers, err := crawler.BrokersWithAccounts(cmd.Context())
		if err != nil {
			return err
		}
		extracts, err := crawler.AllAccountsExtract(cmd.Context(), brokers, window)
		if err != nil {
			return err
		}

		return renderAssets(cmd.OutOrStdout(), g.Format, extracts)
	},
}
