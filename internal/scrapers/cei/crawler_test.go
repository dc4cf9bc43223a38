package cei

import (
	"context"
	"testing"
	"time"

	"cei-crawler/internal/components/telemetry"
	"cei-crawler/internal/scrapers/cei/model"
	"cei-crawler/internal/scrapers/cei/webforms"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func accountIds(broker model.Broker) []string {
	ids := []string{}
	for _, a := range broker.Accounts {
		ids = append(ids, a.Id)
	}
	return ids
}

func TestBrokersWithAccounts(t *testing.T) {
	portal := newFakePortal(t, defaultBrokers...)
	tel := &telemetry.Recorder{}
	crawler := NewAssetsCrawler(portal.session(t, tel), tel)

	brokers, err := crawler.BrokersWithAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, brokers, len(defaultBrokers))

	for i, b := range brokers {
		require.Equal(t, defaultBrokers[i].value, b.Value)
		require.Equal(t, defaultBrokers[i].name, b.Name)
		require.Equal(t, model.BrokerParseExtraData{StartDate: "15/03/2019", EndDate: "04/09/2020"}, b.ParseExtraData)
	}
	require.Equal(t, []string{"0", "11111"}, accountIds(brokers[0]))
	require.Empty(t, brokers[1].Accounts)
	require.Equal(t, []string{"0"}, accountIds(brokers[2]))

	// account tokens come from the broker selection response
	require.Equal(t, "accounts-90", brokers[0].Accounts[0].ParseExtraData.ViewState)
	require.Equal(t, "accounts-386", brokers[2].Accounts[0].ParseExtraData.ViewState)

	warnings := tel.Reports("warning", report_crawler_accounts)
	require.Len(t, warnings, 1)
}

func TestBrokersWithAccountsFailFast(t *testing.T) {
	portal := newFakePortal(t, defaultBrokers...)
	portal.failAccountsOf = "386"
	crawler := NewAssetsCrawler(portal.session(t, &telemetry.Recorder{}), &telemetry.Recorder{})

	brokers, err := crawler.BrokersWithAccounts(context.Background())
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	require.Nil(t, brokers)
}

func TestBrokersWithAccountsCancelled(t *testing.T) {
	portal := newFakePortal(t, defaultBrokers...)
	crawler := NewAssetsCrawler(portal.session(t, &telemetry.Recorder{}), &telemetry.Recorder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := crawler.BrokersWithAccounts(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBrokerAccountsStaleTokens(t *testing.T) {
	portal := newFakePortal(t, defaultBrokers...)
	crawler := NewAssetsCrawler(portal.session(t, &telemetry.Recorder{}), &telemetry.Recorder{})

	brokers, err := crawler.Brokers(context.Background())
	require.NoError(t, err)

	broker := brokers[0]
	broker.Tokens.ViewState = "stale"
	withAccounts, err := crawler.BrokerAccounts(context.Background(), broker)
	require.NoError(t, err)
	require.Empty(t, withAccounts.Accounts)

	withAccounts, err = crawler.BrokerAccounts(context.Background(), brokers[0])
	require.NoError(t, err)
	require.Equal(t, []string{"0", "11111"}, accountIds(withAccounts))
	// the input broker is left untouched
	require.Empty(t, brokers[0].Accounts)

	_, err = crawler.BrokerAccounts(context.Background(), model.Broker{Value: brokers[0].Value, Name: brokers[0].Name})
	require.ErrorIs(t, err, ErrMissingTokens)
}

func TestAccountExtractTokenChaining(t *testing.T) {
	portal := newFakePortal(t, defaultBrokers...)
	crawler := NewAssetsCrawler(portal.session(t, &telemetry.Recorder{}), &telemetry.Recorder{})

	brokers, err := crawler.BrokersWithAccounts(context.Background())
	require.NoError(t, err)
	broker := brokers[0]
	account := broker.Accounts[0]

	extracts, err := crawler.AccountExtract(context.Background(), broker, account, model.DateRange{})
	require.NoError(t, err)
	require.Len(t, extracts, 1)

	cases := []struct {
		name   string
		tamper func(*webforms.Tokens)
	}{
		{name: "altered", tamper: func(tokens *webforms.Tokens) { tokens.ViewState += "x" }},
		{name: "from another broker", tamper: func(tokens *webforms.Tokens) {
			*tokens = brokers[2].Accounts[0].ParseExtraData
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			stale := account
			c.tamper(&stale.ParseExtraData)

			extracts, err := crawler.AccountExtract(context.Background(), broker, stale, model.DateRange{})
			require.NoError(t, err)
			require.Empty(t, extracts)
		})
	}

	// an account that never came from the portal is refused before any
	// request is made
	sent := len(portal.statements())
	_, err = crawler.AccountExtract(context.Background(), broker, model.Account{Id: account.Id}, model.DateRange{})
	require.ErrorIs(t, err, ErrMissingTokens)
	require.Len(t, portal.statements(), sent)
}

func TestAccountExtractWindow(t *testing.T) {
	portal := newFakePortal(t, defaultBrokers...)
	crawler := NewAssetsCrawler(portal.session(t, &telemetry.Recorder{}), &telemetry.Recorder{})

	brokers, err := crawler.BrokersWithAccounts(context.Background())
	require.NoError(t, err)
	broker := brokers[0]

	_, err = crawler.AccountExtract(context.Background(), broker, broker.Accounts[1], model.DateRange{})
	require.NoError(t, err)
	_, err = crawler.AccountExtract(context.Background(), broker, broker.Accounts[1], model.DateRange{
		Start: time.Date(2020, time.January, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	forms := portal.statements()
	require.Len(t, forms, 2)

	require.Equal(t, "11111", forms[0].Get(fieldAccount))
	require.Equal(t, "15/03/2019", forms[0].Get(fieldAssetsStart))
	require.Equal(t, "04/09/2020", forms[0].Get(fieldAssetsEnd))

	require.Equal(t, "02/01/2020", forms[1].Get(fieldAssetsStart))
	require.Equal(t, "04/09/2020", forms[1].Get(fieldAssetsEnd))
	require.Equal(t,
		"ctl00$ContentPlaceHolder1$updFiltro|ctl00$ContentPlaceHolder1$btnConsultar",
		forms[1].Get(fieldScriptManager),
	)
}

func TestAllAccountsExtract(t *testing.T) {
	portal := newFakePortal(t, defaultBrokers...)
	crawler := NewAssetsCrawler(portal.session(t, &telemetry.Recorder{}), &telemetry.Recorder{})

	brokers, err := crawler.BrokersWithAccounts(context.Background())
	require.NoError(t, err)

	extracts, err := crawler.AllAccountsExtract(context.Background(), brokers, model.DateRange{})
	require.NoError(t, err)

	expected := []model.AssetExtract{
		{
			OperationDate:      time.Date(2020, time.June, 5, 0, 0, 0, 0, time.UTC),
			Action:             model.ActionBuy,
			MarketType:         model.MarketFractional,
			RawNegotiationCode: "B90F",
			AssetSpecification: "AZUL PN N2",
			UnitAmount:         2,
			UnitPrice:          decimal.RequireFromString("21.09"),
			TotalPrice:         decimal.RequireFromString("42.18"),
			QuotationFactor:    1,
		},
	}
	second := expected[0]
	second.RawNegotiationCode = "B386F"
	expected = append(expected, second)

	if diff := cmp.Diff(expected, extracts); diff != "" {
		t.Fatalf("unexpected extracts (-want +got):\n%s", diff)
	}

	// only the first account of each broker with accounts is queried
	forms := portal.statements()
	require.Len(t, forms, 2)
	for _, form := range forms {
		require.Equal(t, "0", form.Get(fieldAccount))
	}
}

func TestAllAccountsExtractNoAccounts(t *testing.T) {
	portal := newFakePortal(t, fakeBroker{value: "3", name: "3 - XP INVESTIMENTOS CCTVM S/A"})
	crawler := NewAssetsCrawler(portal.session(t, &telemetry.Recorder{}), &telemetry.Recorder{})

	brokers, err := crawler.BrokersWithAccounts(context.Background())
	require.NoError(t, err)

	extracts, err := crawler.AllAccountsExtract(context.Background(), brokers, model.DateRange{})
	require.NoError(t, err)
	require.Empty(t, extracts)
	require.Empty(t, portal.statements())
}

func TestPassiveIncomes(t *testing.T) {
	cases := []struct {
		name     string
		date     time.Time
		expected string
	}{
		{name: "inside window", date: time.Date(2021, time.June, 15, 0, 0, 0, 0, time.UTC), expected: "15/06/2021"},
		{name: "window start", date: time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC), expected: "01/06/2021"},
		{name: "after window", date: time.Date(2021, time.July, 1, 0, 0, 0, 0, time.UTC), expected: "30/06/2021"},
		{name: "before window", date: time.Date(2020, time.June, 15, 0, 0, 0, 0, time.UTC), expected: "30/06/2021"},
		{name: "no date", expected: "30/06/2021"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			portal := newFakePortal(t, defaultBrokers...)
			crawler := NewPassiveIncomesCrawler(portal.session(t, &telemetry.Recorder{}), &telemetry.Recorder{})

			incomes, err := crawler.PassiveIncomes(context.Background(), c.date)
			require.NoError(t, err)

			forms := portal.statements()
			require.Len(t, forms, 1)
			require.Equal(t, "90", forms[0].Get(fieldBroker))
			require.Equal(t, "0", forms[0].Get(fieldAccount))
			require.Equal(t, c.expected, forms[0].Get(fieldIncomesDate))

			operationDate, err := model.ParseDate(c.expected)
			require.NoError(t, err)
			expected := []model.PassiveIncome{{
				Broker:             "90 - EASYNVEST - TITULO CV S.A.",
				RawNegotiationName: "FII MAXI REN",
				AssetSpecification: "CI",
				RawNegotiationCode: "MXRF11",
				OperationDate:      operationDate,
				EventType:          model.EventFundYield,
				UnitAmount:         1165,
				QuotationFactor:    1,
				GrossValue:         decimal.RequireFromString("111.55"),
				NetValue:           decimal.RequireFromString("111.55"),
				IncomeType:         model.IncomeCredited,
			}}
			if diff := cmp.Diff(expected, incomes); diff != "" {
				t.Fatalf("unexpected incomes (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPassiveIncomesWithoutAccounts(t *testing.T) {
	portal := newFakePortal(t)
	tel := &telemetry.Recorder{}
	crawler := NewPassiveIncomesCrawler(portal.session(t, tel), tel)

	incomes, err := crawler.PassiveIncomes(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Empty(t, incomes)
	require.Empty(t, portal.statements())
	require.NotEmpty(t, tel.Reports("warning", report_crawler_statement))
}
