// Package parse turns portal pages into domain records. Anchors that hold
// lists (accounts, statement rows) may be absent and yield empty results,
// anchors the protocol depends on (tokens, the broker list) must exist.
package parse

import (
	"errors"
	"fmt"

	"cei-crawler/internal/scrapers/cei/model"
	"cei-crawler/internal/scrapers/cei/webforms"
	"cei-crawler/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	BrokerSelectId  = "ctl00_ContentPlaceHolder1_ddlAgentes"
	AccountSelectId = "ctl00_ContentPlaceHolder1_ddlContas"

	// noBrokerValue is the "Selecione" option of the broker list.
	noBrokerValue = "-1"
)

// ErrMalformedRow is returned for statement rows that do not have the
// expected number of cells.
var ErrMalformedRow = errors.New("malformed statement row")

// DateLabels are the ids of the two elements showing the statement window,
// each portal section uses its own pair.
type DateLabels struct {
	Start string
	End   string
}

func requireById(doc *goquery.Document, id string) (*goquery.Selection, error) {
	sel := htmlutil.FindById(doc, id)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: #%s", webforms.ErrMissingElement, id)
	}
	return sel, nil
}

// Brokers reads the broker list in portal order, dropping the "none
// selected" option. The page tokens are attached to every broker since the
// broker selection postback must replay them.
func Brokers(page *webforms.Page, labels DateLabels) ([]model.Broker, error) {
	sel, err := requireById(page.Doc, BrokerSelectId)
	if err != nil {
		return nil, err
	}
	start, err := requireById(page.Doc, labels.Start)
	if err != nil {
		return nil, err
	}
	end, err := requireById(page.Doc, labels.End)
	if err != nil {
		return nil, err
	}
	tokens, err := webforms.ExtractTokens(page)
	if err != nil {
		return nil, err
	}

	extra := model.BrokerParseExtraData{
		StartDate: htmlutil.ValueOrText(start),
		EndDate:   htmlutil.ValueOrText(end),
	}

	brokers := []model.Broker{}
	sel.Find("option").Each(func(_ int, option *goquery.Selection) {
		value := option.AttrOr("value", "")
		if value == noBrokerValue {
			return
		}
		brokers = append(brokers, model.Broker{
			Value:          value,
			Name:           htmlutil.Text(option),
			ParseExtraData: extra,
			Tokens:         tokens,
			Accounts:       []model.Account{},
		})
	})
	return brokers, nil
}

// Accounts reads the account list shown after a broker was selected. A page
// without the list means the broker has no accounts. When the list exists
// the fresh tokens of the page are captured with it.
func Accounts(page *webforms.Page) ([]model.Account, error) {
	sel := htmlutil.FindById(page.Doc, AccountSelectId)
	if sel.Length() == 0 {
		return []model.Account{}, nil
	}

	tokens, err := webforms.ExtractTokens(page)
	if err != nil {
		return nil, err
	}

	accounts := []model.Account{}
	sel.Find("option").Each(func(_ int, option *goquery.Selection) {
		accounts = append(accounts, model.Account{
			Id:             option.AttrOr("value", ""),
			ParseExtraData: tokens,
		})
	})
	return accounts, nil
}
