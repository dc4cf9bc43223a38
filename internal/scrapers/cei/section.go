package cei

import (
	"net/url"

	"cei-crawler/internal/scrapers/cei/model"
	"cei-crawler/internal/scrapers/cei/parse"
	"cei-crawler/internal/scrapers/cei/webforms"
)

const (
	AssetsPath         = "/negociacao-de-ativos.aspx"
	PassiveIncomesPath = "/ConsultarProventos.aspx"

	fieldScriptManager = "ctl00$ContentPlaceHolder1$ToolkitScriptManager1"
	fieldUpdatePanel   = "ctl00$ContentPlaceHolder1$updFiltro"
	fieldBroker        = "ctl00$ContentPlaceHolder1$ddlAgentes"
	fieldAccount       = "ctl00$ContentPlaceHolder1$ddlContas"
	fieldQuery         = "ctl00$ContentPlaceHolder1$btnConsultar"

	fieldAssetsStart = "ctl00$ContentPlaceHolder1$txtDataDeBolsa"
	fieldAssetsEnd   = "ctl00$ContentPlaceHolder1$txtDataAteBolsa"
	fieldIncomesDate = "ctl00$ContentPlaceHolder1$txtData"

	// allAccountsValue selects no specific account while the account list
	// is being loaded.
	allAccountsValue = "0"
)

// StatementQuery is everything a section needs to build a statement
// request, dates are already in the portal format.
type StatementQuery struct {
	Broker    model.Broker
	Account   model.Account
	StartDate string
	EndDate   string
}

// Section describes one portal page that follows the broker, account and
// statement flow. Both sections share the flow and only differ in the
// fields they post and the rows they parse.
type Section[T any] struct {
	Name           string
	Path           string
	DateLabels     parse.DateLabels
	AccountsForm   func(broker model.Broker) url.Values
	StatementForm  func(query StatementQuery) url.Values
	ParseStatement func(page *webforms.Page) ([]T, error)
}

var brokerChange = webforms.Postback{
	ScriptManager: fieldScriptManager,
	UpdatePanel:   fieldUpdatePanel,
	Trigger:       fieldBroker,
	ByEvent:       true,
}

var queryButton = webforms.Postback{
	ScriptManager: fieldScriptManager,
	UpdatePanel:   fieldUpdatePanel,
	Trigger:       fieldQuery,
	ButtonText:    "Consultar",
}

func accountsForm(broker model.Broker) url.Values {
	form := webforms.NewForm(broker.Tokens, brokerChange)
	form.Set(fieldBroker, broker.Value)
	form.Set(fieldAccount, allAccountsValue)
	return form
}

func statementForm(query StatementQuery) url.Values {
	form := webforms.NewForm(query.Account.ParseExtraData, queryButton)
	form.Set(fieldBroker, query.Broker.Value)
	form.Set(fieldAccount, query.Account.Id)
	return form
}

var AssetsSection = Section[model.AssetExtract]{
	Name: "assets",
	Path: AssetsPath,
	DateLabels: parse.DateLabels{
		Start: "ctl00_ContentPlaceHolder1_txtDataDeBolsa",
		End:   "ctl00_ContentPlaceHolder1_txtDataAteBolsa",
	},
	AccountsForm: func(broker model.Broker) url.Values {
		form := accountsForm(broker)
		form.Set(fieldAssetsStart, broker.ParseExtraData.StartDate)
		form.Set(fieldAssetsEnd, broker.ParseExtraData.EndDate)
		return form
	},
	StatementForm: func(query StatementQuery) url.Values {
		form := statementForm(query)
		form.Set(fieldAssetsStart, query.StartDate)
		form.Set(fieldAssetsEnd, query.EndDate)
		return form
	},
	ParseStatement: parse.AssetExtracts,
}

// PassiveIncomesSection queries a single date, the portal lists every
// income provisioned or credited up to it.
var PassiveIncomesSection = Section[model.PassiveIncome]{
	Name: "passive_incomes",
	Path: PassiveIncomesPath,
	DateLabels: parse.DateLabels{
		Start: "ctl00_ContentPlaceHolder1_lblPeriodoInicial",
		End:   "ctl00_ContentPlaceHolder1_lblPeriodoFinal",
	},
	AccountsForm: func(broker model.Broker) url.Values {
		form := accountsForm(broker)
		form.Set(fieldIncomesDate, broker.ParseExtraData.EndDate)
		return form
	},
	StatementForm: func(query StatementQuery) url.Values {
		form := statementForm(query)
		form.Set(fieldIncomesDate, query.EndDate)
		return form
	},
	ParseStatement: parse.PassiveIncomes,
}
