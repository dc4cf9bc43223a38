// Package model holds the records produced by the CEI crawler and the fixed
// taxonomy the portal labels are mapped into.
package model

import (
	"time"

	"cei-crawler/internal/scrapers/cei/webforms"

	"github.com/shopspring/decimal"
)

// BrokerParseExtraData is the statement window exactly as the portal shows
// it, later requests replay these strings verbatim.
type BrokerParseExtraData struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Window parses the portal dates.
func (d BrokerParseExtraData) Window() (DateRange, error) {
	start, err := ParseDate(d.StartDate)
	if err != nil {
		return DateRange{}, err
	}
	end, err := ParseDate(d.EndDate)
	if err != nil {
		return DateRange{}, err
	}
	return DateRange{Start: start, End: end}, nil
}

type Broker struct {
	Value          string               `json:"value"`
	Name           string               `json:"name"`
	ParseExtraData BrokerParseExtraData `json:"parse_extra_data"`
	// Tokens were captured from the page that listed the broker, the broker
	// selection postback replays them.
	Tokens   webforms.Tokens `json:"-"`
	Accounts []Account       `json:"accounts"`
}

// Account tokens are captured from the page that listed the account and
// must be attached unchanged to every request for it. The portal answers
// stale tokens with empty pages rather than errors.
type Account struct {
	Id             string          `json:"id"`
	ParseExtraData webforms.Tokens `json:"-"`
}

// DateRange is an optional statement window, zero sides fall back to the
// portal default.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether `date` is inside the window, both ends included.
func (r DateRange) Contains(date time.Time) bool {
	return !date.Before(r.Start) && !date.After(r.End)
}

// AssetExtract is one row of the asset trading statement.
type AssetExtract struct {
	OperationDate      time.Time       `json:"operation_date"`
	Action             AssetAction     `json:"action"`
	MarketType         MarketType      `json:"market_type"`
	RawNegotiationCode string          `json:"raw_negotiation_code"`
	AssetSpecification string          `json:"asset_specification"`
	UnitAmount         int64           `json:"unit_amount"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	TotalPrice         decimal.Decimal `json:"total_price"`
	QuotationFactor    int64           `json:"quotation_factor"`
}

// PassiveIncome is one dividend, interest on capital or fund yield entry.
type PassiveIncome struct {
	// Broker is the header of the broker group the income was listed under.
	Broker             string          `json:"broker"`
	RawNegotiationName string          `json:"raw_negotiation_name"`
	AssetSpecification string          `json:"asset_specification"`
	RawNegotiationCode string          `json:"raw_negotiation_code"`
	OperationDate      time.Time       `json:"operation_date"`
	EventType          IncomeEventType `json:"event_type"`
	UnitAmount         int64           `json:"unit_amount"`
	QuotationFactor    int64           `json:"quotation_factor"`
	GrossValue         decimal.Decimal `json:"gross_value"`
	NetValue           decimal.Decimal `json:"net_value"`
	IncomeType         IncomeTiming    `json:"income_type"`
}
