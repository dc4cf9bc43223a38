package parse

import (
	"fmt"
	"iter"

	"cei-crawler/internal/scrapers/cei/model"
	"cei-crawler/internal/scrapers/cei/webforms"
	"cei-crawler/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// The income page lists, for every broker, a header followed by one marker
// per income section, each marker followed by its table. Headers, markers
// and tables are siblings.
const (
	IncomeBrokerHeader  = "h4.title"
	IncomeSectionMarker = "p.subtitle"

	// UnsupportedIncomeSection lists asset events (splits, updates) whose
	// table has another shape, it is not an income.
	UnsupportedIncomeSection = "Eventos em Ativos"

	incomeColumns = 9
)

// IncomeSectionTable is one table of incomes of a single timing.
type IncomeSectionTable struct {
	Broker string
	Label  string
	Timing model.IncomeTiming

	table *goquery.Selection
}

// Incomes lazily parses the rows of the section. Iteration stops after the
// first error.
func (s IncomeSectionTable) Incomes() iter.Seq2[model.PassiveIncome, error] {
	return func(yield func(model.PassiveIncome, error) bool) {
		if s.table == nil || s.table.Length() == 0 {
			return
		}
		for i, row := range htmlutil.TableRows(s.table) {
			cells := htmlutil.Cells(row)
			if len(cells) != incomeColumns {
				yield(model.PassiveIncome{}, fmt.Errorf(
					"%w: %s row %d has %d cells, expected %d",
					ErrMalformedRow, s.Label, i, len(cells), incomeColumns,
				))
				return
			}
			income, err := model.NewPassiveIncome(s.Broker, model.IncomeFields{
				RawNegotiationName: cells[0],
				AssetSpecification: cells[1],
				RawNegotiationCode: cells[2],
				OperationDate:      cells[3],
				EventType:          cells[4],
				UnitAmount:         cells[5],
				QuotationFactor:    cells[6],
				GrossValue:         cells[7],
				NetValue:           cells[8],
			}, s.Timing)
			if err != nil {
				yield(model.PassiveIncome{}, fmt.Errorf("%s row %d: %w", s.Label, i, err))
				return
			}
			if !yield(income, nil) {
				return
			}
		}
	}
}

// IncomeGroup holds the income sections listed under one broker header.
type IncomeGroup struct {
	Broker   string
	Sections []IncomeSectionTable
}

// Incomes concatenates the sections of the group in document order.
func (g IncomeGroup) Incomes() iter.Seq2[model.PassiveIncome, error] {
	return func(yield func(model.PassiveIncome, error) bool) {
		for _, section := range g.Sections {
			for income, err := range section.Incomes() {
				if !yield(income, err) || err != nil {
					return
				}
			}
		}
	}
}

func sectionTable(marker *goquery.Selection) *goquery.Selection {
	between := marker.NextUntil(IncomeSectionMarker + ", " + IncomeBrokerHeader)
	table := between.Filter("table").First()
	if table.Length() == 0 {
		table = between.Find("table").First()
	}
	return table
}

// PassiveIncomeGroups splits the income page by broker. The sections of every
// header but the last are found scanning backward from the next header, the
// last header owns every section after it.
func PassiveIncomeGroups(page *webforms.Page) ([]IncomeGroup, error) {
	headers := page.Doc.Find(IncomeBrokerHeader)

	groups := make([]IncomeGroup, 0, headers.Length())
	for i := range headers.Nodes {
		header := headers.Eq(i)

		var markers []*goquery.Selection
		if i+1 < headers.Length() {
			markers = htmlutil.PrecedingUntil(headers.Eq(i+1), IncomeBrokerHeader, IncomeSectionMarker)
		} else {
			markers = htmlutil.Following(header, IncomeSectionMarker)
		}

		group := IncomeGroup{Broker: htmlutil.NormalizeSpace(htmlutil.Text(header))}
		for _, marker := range markers {
			label := htmlutil.NormalizeSpace(htmlutil.Text(marker))
			if label == UnsupportedIncomeSection {
				continue
			}
			timing, err := model.IncomeTimingFromLabel(label)
			if err != nil {
				return nil, err
			}
			group.Sections = append(group.Sections, IncomeSectionTable{
				Broker: group.Broker,
				Label:  label,
				Timing: timing,
				table:  sectionTable(marker),
			})
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// PassiveIncomes parses every supported income on the page.
func PassiveIncomes(page *webforms.Page) ([]model.PassiveIncome, error) {
	groups, err := PassiveIncomeGroups(page)
	if err != nil {
		return nil, err
	}
	incomes := []model.PassiveIncome{}
	for _, group := range groups {
		for income, err := range group.Incomes() {
			if err != nil {
				return nil, err
			}
			incomes = append(incomes, income)
		}
	}
	return incomes, nil
}
