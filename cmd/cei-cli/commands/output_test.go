package commands

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"cei-crawler/internal/scrapers/cei/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var sampleExtract = model.AssetExtract{
	OperationDate:      time.Date(2020, time.June, 5, 0, 0, 0, 0, time.UTC),
	Action:             model.ActionBuy,
	MarketType:         model.MarketFractional,
	RawNegotiationCode: "AZUL4F",
	AssetSpecification: "AZUL PN N2",
	UnitAmount:         2,
	UnitPrice:          decimal.RequireFromString("21.09"),
	TotalPrice:         decimal.RequireFromString("42.18"),
	QuotationFactor:    1,
}

func TestRenderAssetsTable(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, renderAssets(&out, formatTable, []model.AssetExtract{sampleExtract}))
	require.Contains(t, out.String(), "AZUL4F")
	require.Contains(t, out.String(), "05/06/2020")
	require.Contains(t, out.String(), "42.18")
}

func TestRenderAssetsJson(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, renderAssets(&out, formatJson, []model.AssetExtract{sampleExtract}))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, "buy", decoded[0]["action"])
	require.Equal(t, "fractional_share", decoded[0]["market_type"])
	require.Equal(t, "21.09", decoded[0]["unit_price"])
}

func TestRenderBrokersHidesTokens(t *testing.T) {
	var out bytes.Buffer
	brokers := []model.Broker{{
		Value:          "386",
		Name:           "386 - RICO INVESTIMENTOS - GRUPO XP",
		ParseExtraData: model.BrokerParseExtraData{StartDate: "15/03/2019", EndDate: "04/09/2020"},
		Accounts:       []model.Account{{Id: "0"}},
	}}
	brokers[0].Tokens.ViewState = "secret-viewstate"

	require.NoError(t, renderBrokers(&out, formatJson, brokers))
	require.NotContains(t, out.String(), "secret-viewstate")
	require.Contains(t, out.String(), `"start_date": "15/03/2019"`)
}
