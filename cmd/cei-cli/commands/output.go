package commands

import (
	"encoding/json"
	"io"

	"cei-crawler/internal/scrapers/cei/model"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

func writeJson(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func renderBrokers(out io.Writer, format string, brokers []model.Broker) error {
	if format == formatJson {
		return writeJson(out, brokers)
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"Broker", "Name", "Window", "Accounts"})
	for _, b := range brokers {
		ids := make([]string, 0, len(b.Accounts))
		for _, a := range b.Accounts {
			ids = append(ids, a.Id)
		}
		t.AppendRow(table.Row{
			b.Value,
			b.Name,
			b.ParseExtraData.StartDate + " - " + b.ParseExtraData.EndDate,
			ids,
		})
	}
	t.Render()
	return nil
}

var alignRight = []table.ColumnConfig{
	{Number: 6, Align: text.AlignRight},
	{Number: 7, Align: text.AlignRight},
	{Number: 8, Align: text.AlignRight},
}

func renderAssets(out io.Writer, format string, extracts []model.AssetExtract) error {
	if format == formatJson {
		return writeJson(out, extracts)
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"Date", "Action", "Market", "Code", "Specification", "Amount", "Unit price", "Total", "Factor"})
	t.SetColumnConfigs(alignRight)
	for _, e := range extracts {
		t.AppendRow(table.Row{
			model.FormatDate(e.OperationDate),
			e.Action,
			e.MarketType,
			e.RawNegotiationCode,
			e.AssetSpecification,
			e.UnitAmount,
			e.UnitPrice.StringFixed(2),
			e.TotalPrice.StringFixed(2),
			e.QuotationFactor,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Trades", len(extracts)})
	t.Render()
	return nil
}

func renderIncomes(out io.Writer, format string, incomes []model.PassiveIncome) error {
	if format == formatJson {
		return writeJson(out, incomes)
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"Broker", "Date", "Code", "Name", "Event", "Amount", "Gross", "Net", "Type"})
	t.SetColumnConfigs(alignRight)
	for _, i := range incomes {
		t.AppendRow(table.Row{
			i.Broker,
			model.FormatDate(i.OperationDate),
			i.RawNegotiationCode,
			i.RawNegotiationName,
			i.EventType,
			i.UnitAmount,
			i.GrossValue.StringFixed(2),
			i.NetValue.StringFixed(2),
			i.IncomeType,
		})
	}
	t.Render()
	return nil
}
