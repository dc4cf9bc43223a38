package commands

import (
	"fmt"

	"cei-crawler/cmd/cei-cli/globals"
	"cei-crawler/internal/scrapers/cei"
	"cei-crawler/internal/scrapers/cei/model"

	"github.com/spf13/cobra"
)

var brokersSection string

func init() {
	brokersCmd.Flags().StringVar(&brokersSection, "section", "assets", "The portal section to list brokers from, assets or incomes.")
	rootCmd.AddCommand(brokersCmd)
}

var brokersCmd = &cobra.Command{
	Use:   "brokers [--section assets|incomes]",
	Short: "Lists the brokers and accounts of the user.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g := globals.Get(cmd.Context())

		var (
			brokers []model.Broker
			err     error
		)
		switch brokersSection {
		case "assets":
			brokers, err = cei.NewAssetsCrawler(g.Session, g.Telemetry).BrokersWithAccounts(cmd.Context())
		case "incomes":
			brokers, err = cei.NewPassiveIncomesCrawler(g.Session, g.Telemetry).BrokersWithAccounts(cmd.Context())
		default:
			return fmt.Errorf("unknown section %q", brokersSection)
		}
		if err != nil {
			return err
		}

		return renderBrokers(cmd.OutOrStdout(), g.Format, brokers)
	},
}
