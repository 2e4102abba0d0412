// Package report computes the sales leaderboards and period summaries shown
// on the back-office dashboard.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"vendormall/backend/internal/cache"
	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/store"
)

// Limit caps every leaderboard window.
const Limit = 10

const (
	PeriodToday = "today"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

type Source interface {
	TopVendors(ctx context.Context, window domain.TimeRange, limit int) ([]domain.SalesLeader, error)
	TopItems(ctx context.Context, window domain.TimeRange, limit int) ([]domain.SalesLeader, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	ListVendors(ctx context.Context, filter domain.VendorFilter) ([]domain.Vendor, error)
	VendorActivity(ctx context.Context, window domain.LedgerWindow) (map[int64]domain.VendorActivity, error)
}

type Options struct {
	CacheTTL time.Duration
	Location *time.Location
	Now      func() time.Time
	Logger   logrus.FieldLogger
}

type Aggregator struct {
	src   Source
	cache cache.ReportCache
	ttl   time.Duration
	loc   *time.Location
	now   func() time.Time
	log   logrus.FieldLogger
}

func NewAggregator(src Source, reportCache cache.ReportCache, opts Options) *Aggregator {
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Aggregator{
		src:   src,
		cache: reportCache,
		ttl:   opts.CacheTTL,
		loc:   opts.Location,
		now:   opts.Now,
		log:   opts.Logger.WithField("component", "report"),
	}
}

func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// Windows returns the calendar week (Sunday through Saturday), month and year
// containing now, each as a half-open range in loc.
func Windows(now time.Time, loc *time.Location) (week, month, year domain.TimeRange) {
	today := startOfDay(now, loc)

	weekStart := today.AddDate(0, 0, -int(today.Weekday()))
	week = domain.TimeRange{From: weekStart, To: weekStart.AddDate(0, 0, 7)}

	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
	month = domain.TimeRange{From: monthStart, To: monthStart.AddDate(0, 1, 0)}

	yearStart := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, loc)
	year = domain.TimeRange{From: yearStart, To: yearStart.AddDate(1, 0, 0)}
	return week, month, year
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func (a *Aggregator) TopVendors(ctx context.Context) (domain.SalesLeaders, error) {
	return a.leaders(ctx, "top-vendors", a.src.TopVendors)
}

func (a *Aggregator) TopItems(ctx context.Context) (domain.SalesLeaders, error) {
	return a.leaders(ctx, "top-items", a.src.TopItems)
}

type leaderQuery func(ctx context.Context, window domain.TimeRange, limit int) ([]domain.SalesLeader, error)

func (a *Aggregator) cacheKey(kind string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s", kind, a.loc.String(), startOfDay(now, a.loc).Format("2006-01-02"))
}

// Invalidate drops today's cached leaderboards. Sales writes call it so the
// next read sees what they committed.
func (a *Aggregator) Invalidate(ctx context.Context) {
	if a.ttl <= 0 {
		return
	}
	now := a.now()
	keys := []string{a.cacheKey("top-vendors", now), a.cacheKey("top-items", now)}
	if err := a.cache.Delete(ctx, keys...); err != nil {
		a.log.WithError(err).WithField("keys", keys).Warn("report cache invalidation failed")
	}
}

func (a *Aggregator) leaders(ctx context.Context, kind string, query leaderQuery) (domain.SalesLeaders, error) {
	now := a.now()
	key := a.cacheKey(kind, now)

	if a.ttl > 0 {
		cached, ok, err := a.cache.Get(ctx, key)
		if err != nil {
			a.log.WithError(err).WithField("key", key).Warn("report cache read failed")
		} else if ok {
			return *cached, nil
		}
	}

	week, month, year := Windows(now, a.loc)
	var result domain.SalesLeaders
	for _, w := range []struct {
		window domain.TimeRange
		dest   *[]domain.SalesLeader
	}{
		{week, &result.Week},
		{month, &result.Month},
		{year, &result.Year},
	} {
		rows, err := query(ctx, w.window, Limit)
		if err != nil {
			return domain.SalesLeaders{}, fmt.Errorf("%s: %w", kind, err)
		}
		if rows == nil {
			rows = []domain.SalesLeader{}
		}
		*w.dest = rows
	}

	if a.ttl > 0 {
		if err := a.cache.Set(ctx, key, &result, a.ttl); err != nil {
			a.log.WithError(err).WithField("key", key).Warn("report cache write failed")
		}
	}
	return result, nil
}

// Summary totals the transactions of today, this week or this month.
func (a *Aggregator) Summary(ctx context.Context, period string) (domain.TransactionSummary, error) {
	now := a.now()
	var window domain.TimeRange
	switch period {
	case PeriodToday:
		today := startOfDay(now, a.loc)
		window = domain.TimeRange{From: today, To: today.AddDate(0, 0, 1)}
	case PeriodWeek:
		window, _, _ = Windows(now, a.loc)
	case PeriodMonth:
		_, window, _ = Windows(now, a.loc)
	default:
		return domain.TransactionSummary{}, fmt.Errorf("unknown period %q: %w", period, store.ErrInvalid)
	}
	return a.summarize(ctx, period, window)
}

func monthStart(year, month int, loc *time.Location) (time.Time, error) {
	if month < 1 || month > 12 || year < 1 || year > 9999 {
		return time.Time{}, fmt.Errorf("invalid month %d-%d: %w", year, month, store.ErrInvalid)
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc), nil
}

func (a *Aggregator) MonthSummary(ctx context.Context, year int, month int) (domain.TransactionSummary, error) {
	start, err := monthStart(year, month, a.loc)
	if err != nil {
		return domain.TransactionSummary{}, err
	}
	return a.summarize(ctx, start.Format("2006-01"), domain.TimeRange{From: start, To: start.AddDate(0, 1, 0)})
}

func (a *Aggregator) summarize(ctx context.Context, label string, window domain.TimeRange) (domain.TransactionSummary, error) {
	txs, err := a.src.ListTransactions(ctx, domain.TransactionFilter{Range: &window})
	if err != nil {
		return domain.TransactionSummary{}, fmt.Errorf("list transactions: %w", err)
	}

	summary := domain.TransactionSummary{
		Period:       label,
		PeriodStart:  window.From,
		PeriodEnd:    window.To,
		Count:        len(txs),
		Transactions: txs,
	}
	for _, tx := range txs {
		summary.GrandTotal += tx.GrandTotal
		summary.TotalSalesTax += tx.SalesTax
		for _, item := range tx.Items {
			summary.TotalItems += item.Quantity
		}
	}
	summary.TotalAmount = summary.GrandTotal - summary.TotalSalesTax
	return summary, nil
}

// MonthlyStatement reports, per vendor, the balance carried into the month,
// the month's sales, fees, payouts, booth rent and balance payments, and the
// balance those records leave at month end. A nil vendorID covers every
// vendor.
func (a *Aggregator) MonthlyStatement(ctx context.Context, year, month int, vendorID *int64) (domain.MonthlyStatement, error) {
	start, err := monthStart(year, month, a.loc)
	if err != nil {
		return domain.MonthlyStatement{}, err
	}
	end := start.AddDate(0, 1, 0)
	billed := domain.BillingMonth(year, month)

	before, err := a.src.VendorActivity(ctx, domain.LedgerWindow{
		Range:   domain.TimeRange{To: start},
		ToMonth: billed,
	})
	if err != nil {
		return domain.MonthlyStatement{}, fmt.Errorf("activity before %s: %w", start.Format("2006-01"), err)
	}
	during, err := a.src.VendorActivity(ctx, domain.LedgerWindow{
		Range:     domain.TimeRange{From: start, To: end},
		FromMonth: billed,
		ToMonth:   billed + 1,
	})
	if err != nil {
		return domain.MonthlyStatement{}, fmt.Errorf("activity in %s: %w", start.Format("2006-01"), err)
	}
	vendors, err := a.src.ListVendors(ctx, domain.VendorFilter{})
	if err != nil {
		return domain.MonthlyStatement{}, fmt.Errorf("list vendors: %w", err)
	}

	statement := domain.MonthlyStatement{
		Year:        year,
		Month:       month,
		PeriodStart: start,
		PeriodEnd:   end,
		Vendors:     make([]domain.VendorStatement, 0, len(vendors)),
	}
	for _, v := range vendors {
		if vendorID != nil && v.ID != *vendorID {
			continue
		}
		opening := before[v.ID].Net()
		cur := during[v.ID]
		statement.Vendors = append(statement.Vendors, domain.VendorStatement{
			VendorID:        v.ID,
			Name:            v.DisplayName(),
			Opening:         opening,
			ItemsSold:       cur.ItemsSold,
			CashSales:       cur.CashSales,
			CardSales:       cur.CardSales,
			TotalSales:      cur.CashSales + cur.CardSales,
			VendorFees:      cur.Fees,
			Payouts:         cur.Payouts,
			BoothCharges:    cur.BoothCharges,
			BalancePayments: cur.BalancePayments,
			Closing:         opening + cur.Net(),
			Balance:         v.Balance,
		})
	}
	return statement, nil
}
