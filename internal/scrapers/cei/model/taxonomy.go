package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCategory is returned when a portal label is not part of the
// fixed taxonomy. The whole statement parse fails on it, rows are never
// silently dropped.
var ErrUnknownCategory = errors.New("unknown category")

type AssetAction string

const (
	ActionBuy  AssetAction = "buy"
	ActionSell AssetAction = "sell"
)

type MarketType string

const (
	MarketFractional MarketType = "fractional_share"
	MarketUnit       MarketType = "unit"
	MarketOptions    MarketType = "options"
)

type IncomeEventType string

const (
	EventDividend          IncomeEventType = "dividend"
	EventInterestOnCapital IncomeEventType = "interest_on_capital"
	EventFundYield         IncomeEventType = "fund_yield"
)

// IncomeTiming tells apart incomes that were already paid from the ones
// that are only announced.
type IncomeTiming string

const (
	IncomeProvisioned IncomeTiming = "provisioned"
	IncomeCredited    IncomeTiming = "credited"
)

var assetActions = map[string]AssetAction{
	"C": ActionBuy,
	"V": ActionSell,
}

var marketTypes = map[string]MarketType{
	"Merc. Fracionário":   MarketFractional,
	"Mercado a Vista":     MarketUnit,
	"Opção de Compra":     MarketOptions,
	"Opção de Venda":      MarketOptions,
	"Exercicio de Opções": MarketOptions,
}

var incomeEventTypes = map[string]IncomeEventType{
	"DIVIDENDO":                   EventDividend,
	"JUROS SOBRE CAPITAL PRÓPRIO": EventInterestOnCapital,
	"RENDIMENTO":                  EventFundYield,
}

var incomeTimings = map[string]IncomeTiming{
	"Provisionado": IncomeProvisioned,
	"Creditado":    IncomeCredited,
}

func ParseAssetAction(code string) (AssetAction, error) {
	action, ok := assetActions[code]
	if !ok {
		return "", fmt.Errorf("%w: asset action %q", ErrUnknownCategory, code)
	}
	return action, nil
}

func ParseMarketType(label string) (MarketType, error) {
	market, ok := marketTypes[label]
	if !ok {
		return "", fmt.Errorf("%w: market type %q", ErrUnknownCategory, label)
	}
	return market, nil
}

func ParseIncomeEventType(label string) (IncomeEventType, error) {
	event, ok := incomeEventTypes[label]
	if !ok {
		return "", fmt.Errorf("%w: income event %q", ErrUnknownCategory, label)
	}
	return event, nil
}

// MarketTypeLabels lists every market type label the portal is known to use.
func MarketTypeLabels() []string {
	labels := make([]string, 0, len(marketTypes))
	for label := range marketTypes {
		labels = append(labels, label)
	}
	return labels
}

// IncomeTimingFromLabel finds the timing named inside a section label such
// as "Proventos Provisionados".
func IncomeTimingFromLabel(label string) (IncomeTiming, error) {
	for key, timing := range incomeTimings {
		if strings.Contains(label, key) {
			return timing, nil
		}
	}
	return "", fmt.Errorf("%w: income section %q", ErrUnknownCategory, label)
}
