package parse

import (
	"fmt"

	"cei-crawler/internal/scrapers/cei/model"
	"cei-crawler/internal/scrapers/cei/webforms"
	"cei-crawler/pkg/htmlutil"
)

const AssetsTableId = "ctl00_ContentPlaceHolder1_rptAgenteBolsa_ctl00_rptContaBolsa_ctl00_pnAtivosNegociados"

const assetColumns = 10

// AssetExtracts parses the asset trading table. The page has no table when
// there were no trades in the window. Any bad row fails the whole parse.
func AssetExtracts(page *webforms.Page) ([]model.AssetExtract, error) {
	table := htmlutil.FindById(page.Doc, AssetsTableId)
	if table.Length() == 0 {
		return []model.AssetExtract{}, nil
	}

	rows := htmlutil.TableRows(table)
	extracts := make([]model.AssetExtract, 0, len(rows))
	for i, row := range rows {
		cells := htmlutil.Cells(row)
		if len(cells) != assetColumns {
			return nil, fmt.Errorf(
				"%w: asset row %d has %d cells, expected %d",
				ErrMalformedRow, i, len(cells), assetColumns,
			)
		}

		// cells[3] is the "prazo" column, it is not part of the record.
		extract, err := model.NewAssetExtract(model.AssetFields{
			OperationDate:      cells[0],
			Action:             cells[1],
			MarketType:         cells[2],
			RawNegotiationCode: cells[4],
			AssetSpecification: cells[5],
			UnitAmount:         cells[6],
			UnitPrice:          cells[7],
			TotalPrice:         cells[8],
			QuotationFactor:    cells[9],
		})
		if err != nil {
			return nil, fmt.Errorf("asset row %d: %w", i, err)
		}
		extracts = append(extracts, extract)
	}
	return extracts, nil
}
