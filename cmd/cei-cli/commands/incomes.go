package commands

import (
	"cei-crawler/cmd/cei-cli/globals"
	"cei-crawler/internal/scrapers/cei"

	"github.com/spf13/cobra"
)

var incomesDate string

func init() {
	incomesCmd.Flags().StringVar(&incomesDate, "date", "", "Reference date (dd/mm/yyyy), dates outside the portal window use its last day.")
	rootCmd.AddCommand(incomesCmd)
}

var incomesCmd = &cobra.Command{
	Use:   "incomes [--date dd/mm/yyyy]",
	Short: "Lists dividends, interest on capital and fund yields.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g := globals.Get(cmd.Context())

		date, err := parseOptionalDate("date", incomesDate)
		if err != nil {
			return err
		}

		incomes, err := cei.NewPassiveIncomesCrawler(g.Session, g.Telemetry).PassiveIncomes(cmd.Context(), date)
		if err != nil {
			return err
		}

		return renderIncomes(cmd.OutOrStdout(), g.Format, incomes)
	},
}
