package cei

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cei-crawler/internal/components/assert"
	"cei-crawler/internal/components/telemetry"
	"cei-crawler/internal/scrapers/cei/model"
	"cei-crawler/internal/scrapers/cei/parse"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	report_crawler_brokers   = "crawler.get-brokers"
	report_crawler_accounts  = "crawler.get-accounts"
	report_crawler_statement = "crawler.get-statement"
)

// ErrMissingTokens is returned for brokers and accounts that were not read
// from the portal, the postbacks they drive would be silently ignored.
var ErrMissingTokens = errors.New("no page tokens captured")

var meter = otel.Meter("cei-crawler/internal/scrapers/cei")

// Crawler walks one portal section: list the brokers, list the accounts of
// each broker, then fetch account statements.
type Crawler[T any] struct {
	session *Session
	section Section[T]
	tel     telemetry.API
	rows    metric.Int64Counter
}

func NewCrawler[T any](session *Session, section Section[T], tel telemetry.API) *Crawler[T] {
	assert.NotNil(session)
	assert.NotNil(tel)
	assert.NotEmptyStr(section.Path)

	tel = telemetry.NewScopedAPI("cei_crawler", tel)

	rows, err := meter.Int64Counter(
		"cei.statement.rows",
		metric.WithDescription("Statement rows extracted from the portal."),
	)
	if err != nil {
		tel.ReportBroken("crawler.new", err)
		rows = noop.Int64Counter{}
	}

	return &Crawler[T]{
		session: session,
		section: section,
		tel:     tel,
		rows:    rows,
	}
}

func (c *Crawler[T]) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(
		ctx,
		fmt.Sprintf("crawler:%s", name),
		trace.WithAttributes(attribute.String("cei.section", c.section.Name)),
	)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Brokers lists the brokers of the section in portal order, without their
// accounts.
func (c *Crawler[T]) Brokers(ctx context.Context) ([]model.Broker, error) {
	ctx, span := c.startSpan(ctx, "Brokers")
	defer span.End()

	page, err := c.session.Get(ctx, c.section.Path)
	if err != nil {
		return nil, fail(span, err)
	}

	brokers, err := parse.Brokers(page, c.section.DateLabels)
	if err != nil {
		c.tel.ReportBroken(report_crawler_brokers, err, c.section.Name)
		return nil, fail(span, err)
	}

	c.tel.ReportDebug("brokers", c.section.Name, len(brokers))
	return brokers, nil
}

// BrokerAccounts selects `broker` on the portal and returns a copy of it
// holding the listed accounts. A broker without accounts is not an error.
func (c *Crawler[T]) BrokerAccounts(ctx context.Context, broker model.Broker) (model.Broker, error) {
	ctx, span := c.startSpan(ctx, "BrokerAccounts")
	defer span.End()
	span.SetAttributes(attribute.String("cei.broker", broker.Value))

	if broker.Tokens.IsZero() {
		return model.Broker{}, fail(span, fmt.Errorf("%w: broker %s", ErrMissingTokens, broker.Value))
	}

	page, err := c.session.Postback(ctx, c.section.Path, c.section.AccountsForm(broker))
	if err != nil {
		return model.Broker{}, fail(span, err)
	}

	accounts, err := parse.Accounts(page)
	if err != nil {
		c.tel.ReportBroken(report_crawler_accounts, err, broker.Value)
		return model.Broker{}, fail(span, err)
	}
	if len(accounts) == 0 {
		c.tel.ReportWarning(report_crawler_accounts, "broker has no accounts", broker.Value, broker.Name)
	}

	broker.Accounts = accounts
	return broker, nil
}

// BrokersWithAccounts lists the brokers and loads the accounts of all of
// them concurrently. The first failure cancels the remaining requests.
func (c *Crawler[T]) BrokersWithAccounts(ctx context.Context) ([]model.Broker, error) {
	ctx, span := c.startSpan(ctx, "BrokersWithAccounts")
	defer span.End()

	brokers, err := c.Brokers(ctx)
	if err != nil {
		return nil, fail(span, err)
	}

	out := make([]model.Broker, len(brokers))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, broker := range brokers {
		group.Go(func() error {
			withAccounts, err := c.BrokerAccounts(groupCtx, broker)
			if err != nil {
				return err
			}
			out[i] = withAccounts
			return nil
		})
	}
	err = group.Wait()
	if err != nil {
		return nil, fail(span, err)
	}

	return out, nil
}

// AccountStatement fetches the statement of one account. Zero sides of
// `window` fall back to the broker's default window.
func (c *Crawler[T]) AccountStatement(
	ctx context.Context,
	broker model.Broker,
	account model.Account,
	window model.DateRange,
) ([]T, error) {
	ctx, span := c.startSpan(ctx, "AccountStatement")
	defer span.End()
	span.SetAttributes(
		attribute.String("cei.broker", broker.Value),
		attribute.String("cei.account", account.Id),
	)

	if account.ParseExtraData.IsZero() {
		return nil, fail(span, fmt.Errorf("%w: account %s of broker %s", ErrMissingTokens, account.Id, broker.Value))
	}

	query := StatementQuery{
		Broker:    broker,
		Account:   account,
		StartDate: broker.ParseExtraData.StartDate,
		EndDate:   broker.ParseExtraData.EndDate,
	}
	if !window.Start.IsZero() {
		query.StartDate = model.FormatDate(window.Start)
	}
	if !window.End.IsZero() {
		query.EndDate = model.FormatDate(window.End)
	}

	page, err := c.session.Postback(ctx, c.section.Path, c.section.StatementForm(query))
	if err != nil {
		return nil, fail(span, err)
	}

	rows, err := c.section.ParseStatement(page)
	if err != nil {
		c.tel.ReportBroken(report_crawler_statement, err, broker.Value, account.Id)
		return nil, fail(span, err)
	}

	c.rows.Add(ctx, int64(len(rows)), metric.WithAttributes(attribute.String("cei.section", c.section.Name)))
	c.tel.ReportCount(c.section.Name+".rows", int64(len(rows)))
	return rows, nil
}

// AllAccountsStatement fetches, concurrently, the statement of the first
// account of every broker that has accounts and flattens the rows in broker
// order.
func (c *Crawler[T]) AllAccountsStatement(
	ctx context.Context,
	brokers []model.Broker,
	window model.DateRange,
) ([]T, error) {
	ctx, span := c.startSpan(ctx, "AllAccountsStatement")
	defer span.End()

	results := make([][]T, len(brokers))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, broker := range brokers {
		if len(broker.Accounts) == 0 {
			continue
		}
		group.Go(func() error {
			rows, err := c.AccountStatement(groupCtx, broker, broker.Accounts[0], window)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	err := group.Wait()
	if err != nil {
		return nil, fail(span, err)
	}

	var out []T
	for _, rows := range results {
		out = append(out, rows...)
	}
	return out, nil
}

type AssetsCrawler struct {
	*Crawler[model.AssetExtract]
}

func NewAssetsCrawler(session *Session, tel telemetry.API) AssetsCrawler {
	return AssetsCrawler{NewCrawler(session, AssetsSection, tel)}
}

func (c AssetsCrawler) AccountExtract(
	ctx context.Context,
	broker model.Broker,
	account model.Account,
	window model.DateRange,
) ([]model.AssetExtract, error) {
	return c.AccountStatement(ctx, broker, account, window)
}

func (c AssetsCrawler) AllAccountsExtract(
	ctx context.Context,
	brokers []model.Broker,
	window model.DateRange,
) ([]model.AssetExtract, error) {
	return c.AllAccountsStatement(ctx, brokers, window)
}

type PassiveIncomesCrawler struct {
	*Crawler[model.PassiveIncome]
}

func NewPassiveIncomesCrawler(session *Session, tel telemetry.API) PassiveIncomesCrawler {
	return PassiveIncomesCrawler{NewCrawler(session, PassiveIncomesSection, tel)}
}

// PassiveIncomes lists the incomes of the first account of the first
// broker, which the portal uses as the view over every account. A `date`
// outside the broker window, or the zero date, queries the window end.
func (c PassiveIncomesCrawler) PassiveIncomes(ctx context.Context, date time.Time) ([]model.PassiveIncome, error) {
	brokers, err := c.BrokersWithAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(brokers) == 0 || len(brokers[0].Accounts) == 0 {
		c.tel.ReportWarning(report_crawler_statement, "no account to query passive incomes")
		return []model.PassiveIncome{}, nil
	}
	broker := brokers[0]

	var window model.DateRange
	if !date.IsZero() {
		available, err := broker.ParseExtraData.Window()
		if err != nil {
			c.tel.ReportBroken(report_crawler_statement, err, broker.Value)
			return nil, err
		}
		if available.Contains(date) {
			window.End = date
		} else {
			c.tel.ReportDebug(
				"date outside of the portal window",
				model.FormatDate(date),
				broker.ParseExtraData.EndDate,
			)
		}
	}

	return c.AccountStatement(ctx, broker, broker.Accounts[0], window)
}
