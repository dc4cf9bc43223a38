package model

import "fmt"

// AssetFields are the raw cell texts of an asset statement row.
type AssetFields struct {
	OperationDate      string
	Action             string
	MarketType         string
	RawNegotiationCode string
	AssetSpecification string
	UnitAmount         string
	UnitPrice          string
	TotalPrice         string
	QuotationFactor    string
}

func NewAssetExtract(f AssetFields) (AssetExtract, error) {
	action, err := ParseAssetAction(f.Action)
	if err != nil {
		return AssetExtract{}, err
	}
	market, err := ParseMarketType(f.MarketType)
	if err != nil {
		return AssetExtract{}, err
	}
	date, err := ParseDate(f.OperationDate)
	if err != nil {
		return AssetExtract{}, err
	}
	amount, err := ParseAssetQuantity(f.UnitAmount)
	if err != nil {
		return AssetExtract{}, err
	}
	unitPrice, err := ParseMoney(f.UnitPrice)
	if err != nil {
		return AssetExtract{}, fmt.Errorf("unit price: %w", err)
	}
	totalPrice, err := ParseMoney(f.TotalPrice)
	if err != nil {
		return AssetExtract{}, fmt.Errorf("total price: %w", err)
	}
	factor, err := ParseQuotationFactor(f.QuotationFactor)
	if err != nil {
		return AssetExtract{}, err
	}

	return AssetExtract{
		OperationDate:      date,
		Action:             action,
		MarketType:         market,
		RawNegotiationCode: f.RawNegotiationCode,
		AssetSpecification: NormalizeSpec(f.AssetSpecification),
		UnitAmount:         amount,
		UnitPrice:          unitPrice,
		TotalPrice:         totalPrice,
		QuotationFactor:    factor,
	}, nil
}

// IncomeFields are the raw cell texts of a passive income row.
type IncomeFields struct {
	RawNegotiationName string
	AssetSpecification string
	RawNegotiationCode string
	OperationDate      string
	EventType          string
	UnitAmount         string
	QuotationFactor    string
	GrossValue         string
	NetValue           string
}

// NewPassiveIncome builds an income record, `timing` comes from the section
// the row was listed in.
func NewPassiveIncome(broker string, f IncomeFields, timing IncomeTiming) (PassiveIncome, error) {
	event, err := ParseIncomeEventType(f.EventType)
	if err != nil {
		return PassiveIncome{}, err
	}
	date, err := ParseDate(f.OperationDate)
	if err != nil {
		return PassiveIncome{}, err
	}
	amount, err := ParseIncomeQuantity(f.UnitAmount)
	if err != nil {
		return PassiveIncome{}, err
	}
	factor, err := ParseQuotationFactor(f.QuotationFactor)
	if err != nil {
		return PassiveIncome{}, err
	}
	gross, err := ParseMoney(f.GrossValue)
	if err != nil {
		return PassiveIncome{}, fmt.Errorf("gross value: %w", err)
	}
	net, err := ParseMoney(f.NetValue)
	if err != nil {
		return PassiveIncome{}, fmt.Errorf("net value: %w", err)
	}

	return PassiveIncome{
		Broker:             broker,
		RawNegotiationName: NormalizeSpec(f.RawNegotiationName),
		AssetSpecification: NormalizeSpec(f.AssetSpecification),
		RawNegotiationCode: NormalizeSpec(f.RawNegotiationCode),
		OperationDate:      date,
		EventType:          event,
		UnitAmount:         amount,
		QuotationFactor:    factor,
		GrossValue:         gross,
		NetValue:           net,
		IncomeType:         timing,
	}, nil
}
