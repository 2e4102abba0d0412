package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/lock"
	"vendormall/backend/internal/report"
	"vendormall/backend/internal/settlement"
	"vendormall/backend/internal/store"
	"vendormall/backend/internal/store/memory"
)

// saleDuringUserRead settles a sale the first time the vendor's user is
// loaded, which lands it between UpdateVendor's read and its write.
type saleDuringUserRead struct {
	*memory.Store
	sale func()
}

func (r *saleDuringUserRead) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	if sale := r.sale; sale != nil {
		r.sale = nil
		sale()
	}
	return r.Store.GetUserByID(ctx, id)
}

func withSaleDuringUserRead(t *testing.T, h harness) *Service {
	t.Helper()
	logger, _ := test.NewNullLogger()
	repo := &saleDuringUserRead{Store: h.repo}
	svc := New(repo, h.svc.settler, h.svc.reports, logger)
	repo.sale = func() {
		_, err := svc.CreateTransaction(h.staff, domain.TransactionCreateRequest{
			SubTotal: 4000,
			Items:    []domain.TransactionItemInput{{VendorItemID: &h.mug, Price: 2000, Quantity: 2}},
		})
		require.NoError(t, err)
	}
	return svc
}

func TestUpdateVendorKeepsFeesSettledMidRequest(t *testing.T) {
	h := newHarness(t, settlement.UpdateAdditive)
	svc := withSaleDuringUserRead(t, h)

	v, err := svc.UpdateVendor(h.maple, 101, domain.VendorUpdateRequest{
		User: &domain.VendorUserInput{PhoneNumber: ptr("555-0100")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(200), v.Balance)
	assert.Equal(t, int64(200), h.balance(t, 101))
}

func TestBalanceOverrideKeepsFeesSettledMidRequest(t *testing.T) {
	h := newHarness(t, settlement.UpdateAdditive)
	svc := withSaleDuringUserRead(t, h)

	v, err := svc.UpdateVendor(h.staff, 101, domain.VendorUpdateRequest{
		Balance: ptr(int64(42)),
		User:    &domain.VendorUserInput{PhoneNumber: ptr("555-0100")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(242), v.Balance)
	assert.Equal(t, int64(242), h.balance(t, 101))
}

type refusingBalances struct {
	*memory.Store
}

func (refusingBalances) AdjustVendorBalance(context.Context, int64, int64) (int64, error) {
	return 0, errors.New("balance write refused")
}

func TestUnsettledWritesLeaveNoRecord(t *testing.T) {
	h := newHarness(t, settlement.UpdateAdditive)
	logger, _ := test.NewNullLogger()
	repo := refusingBalances{Store: h.repo}
	svc := New(repo, settlement.New(repo, lock.NewLocal(), settlement.UpdateAdditive, logger), h.svc.reports, logger)

	_, err := svc.CreateTransaction(h.staff, domain.TransactionCreateRequest{
		Items: []domain.TransactionItemInput{{VendorItemID: &h.mug, Price: 2000, Quantity: 1}},
	})
	require.Error(t, err)
	txs, err := h.svc.ListTransactions(h.staff)
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, err = svc.CreateVendorPayment(h.staff, domain.VendorPaymentCreateRequest{VendorID: 101, Amount: 500})
	require.Error(t, err)
	payments, err := h.svc.ListVendorPayments(h.staff)
	require.NoError(t, err)
	assert.Empty(t, payments)

	_, err = svc.CreateBoothCharge(h.staff, domain.BoothChargeCreateRequest{VendorID: 101, Amount: 100, Year: 2026, Month: 1})
	require.Error(t, err)
	charges, err := h.svc.ListBoothCharges(h.staff)
	require.NoError(t, err)
	assert.Empty(t, charges)
}

func TestFailedDebitKeepsTransaction(t *testing.T) {
	h := newHarness(t, settlement.UpdateAdditive)
	tx, err := h.svc.CreateTransaction(h.staff, domain.TransactionCreateRequest{
		Items: []domain.TransactionItemInput{{VendorItemID: &h.mug, Price: 2000, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(100), h.balance(t, 101))

	logger, _ := test.NewNullLogger()
	repo := refusingBalances{Store: h.repo}
	svc := New(repo, settlement.New(repo, lock.NewLocal(), settlement.UpdateAdditive, logger), h.svc.reports, logger)

	require.Error(t, svc.DeleteTransaction(h.staff, tx.ID))
	_, err = h.svc.GetTransaction(h.staff, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), h.balance(t, 101))
}

type mapCache struct {
	entries map[string]domain.SalesLeaders
}

func (c *mapCache) Get(_ context.Context, key string) (*domain.SalesLeaders, bool, error) {
	v, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *mapCache) Set(_ context.Context, key string, value *domain.SalesLeaders, _ time.Duration) error {
	c.entries[key] = *value
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func TestNewSaleShowsInCachedLeaders(t *testing.T) {
	h := newHarness(t, settlement.UpdateAdditive)
	logger, _ := test.NewNullLogger()
	agg := report.NewAggregator(h.repo, &mapCache{entries: map[string]domain.SalesLeaders{}}, report.Options{CacheTTL: time.Hour, Logger: logger})
	svc := New(h.repo, h.svc.settler, agg, logger)

	_, err := svc.CreateTransaction(h.staff, domain.TransactionCreateRequest{
		Items: []domain.TransactionItemInput{{VendorItemID: &h.mug, Price: 2000, Quantity: 1}},
	})
	require.NoError(t, err)
	cached, err := svc.TopItems(h.staff)
	require.NoError(t, err)
	require.Len(t, cached.Week, 1)
	assert.Equal(t, int64(1), cached.Week[0].ItemsSold)

	_, err = svc.CreateTransaction(h.staff, domain.TransactionCreateRequest{
		Items: []domain.TransactionItemInput{{VendorItemID: &h.candle, Price: 1000, Quantity: 3}},
	})
	require.NoError(t, err)

	fresh, err := svc.TopItems(h.staff)
	require.NoError(t, err)
	require.Len(t, fresh.Week, 2)
	assert.Equal(t, "Candle", fresh.Week[0].Name)
	assert.Equal(t, int64(3), fresh.Week[0].ItemsSold)

	_, err = svc.UpdateVendorItem(h.staff, h.candle, domain.VendorItemUpdateRequest{Name: ptr("Taper")})
	require.NoError(t, err)
	renamed, err := svc.TopItems(h.staff)
	require.NoError(t, err)
	assert.Equal(t, "Taper", renamed.Week[0].Name)
}

func TestBoothChargesMoveBalance(t *testing.T) {
	h := newHarness(t, settlement.UpdateAdditive)

	charge, err := h.svc.CreateBoothCharge(h.staff, domain.BoothChargeCreateRequest{VendorID: 101, Amount: 15000, Year: 2026, Month: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(-15000), h.balance(t, 101))

	updated, err := h.svc.UpdateBoothCharge(h.staff, charge.ID, domain.BoothChargeUpdateRequest{Amount: ptr(int64(12000)), Month: ptr(4)})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Month)
	assert.Equal(t, int64(-12000), h.balance(t, 101))

	mine, err := h.svc.ListBoothCharges(h.maple)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	_, err = h.svc.GetBoothCharge(h.oak, charge.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = h.svc.CreateBoothCharge(h.maple, domain.BoothChargeCreateRequest{VendorID: 101, Amount: 1, Year: 2026, Month: 1})
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, h.svc.DeleteBoothCharge(h.staff, charge.ID))
	assert.Equal(t, int64(0), h.balance(t, 101))
	assert.ErrorIs(t, h.svc.DeleteBoothCharge(h.staff, charge.ID), store.ErrNotFound)

	_, err = h.svc.CreateBoothCharge(h.staff, domain.BoothChargeCreateRequest{VendorID: 999, Amount: 1, Year: 2026, Month: 1})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"vendor"}, verr.Path)
}

func TestBalancePaymentsMoveBalance(t *testing.T) {
	h := newHarness(t, settlement.UpdateAdditive)
	paidAt := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)

	payment, err := h.svc.CreateBalancePayment(h.staff, domain.BalancePaymentCreateRequest{
		VendorID: 102, Amount: 4000, Date: &paidAt, Method: domain.BalancePaidCheck, Description: " March rent ",
	})
	require.NoError(t, err)
	assert.Equal(t, "March rent", payment.Description)
	assert.True(t, paidAt.Equal(payment.Date))
	assert.Equal(t, int64(4000), h.balance(t, 102))

	_, err = h.svc.UpdateBalancePayment(h.staff, payment.ID, domain.BalancePaymentUpdateRequest{Amount: ptr(int64(5500))})
	require.NoError(t, err)
	assert.Equal(t, int64(5500), h.balance(t, 102))

	none, err := h.svc.ListBalancePayments(h.maple)
	require.NoError(t, err)
	assert.Empty(t, none)
	got, err := h.svc.GetBalancePayment(h.oak, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5500), got.Amount)

	require.NoError(t, h.svc.DeleteBalancePayment(h.staff, payment.ID))
	assert.Equal(t, int64(0), h.balance(t, 102))
}

func TestMonthlyStatementScopesToCaller(t *testing.T) {
	h := newHarness(t, settlement.UpdateAdditive)
	now := time.Now().UTC()

	_, err := h.svc.CreateTransaction(h.staff, domain.TransactionCreateRequest{
		Items: []domain.TransactionItemInput{{VendorItemID: &h.mug, Price: 2000, Quantity: 2}},
	})
	require.NoError(t, err)
	_, err = h.svc.CreateBoothCharge(h.staff, domain.BoothChargeCreateRequest{VendorID: 101, Amount: 1000, Year: now.Year(), Month: int(now.Month())})
	require.NoError(t, err)
	_, err = h.svc.CreateBalancePayment(h.staff, domain.BalancePaymentCreateRequest{VendorID: 101, Amount: 300, Method: domain.BalancePaidCash})
	require.NoError(t, err)

	all, err := h.svc.MonthlyStatement(h.staff, now.Year(), int(now.Month()))
	require.NoError(t, err)
	assert.Len(t, all.Vendors, 2)

	mine, err := h.svc.MonthlyStatement(h.maple, now.Year(), int(now.Month()))
	require.NoError(t, err)
	require.Len(t, mine.Vendors, 1)
	row := mine.Vendors[0]
	assert.Equal(t, int64(101), row.VendorID)
	assert.Equal(t, int64(2), row.ItemsSold)
	assert.Equal(t, int64(4000), row.CashSales)
	assert.Equal(t, int64(200), row.VendorFees)
	assert.Equal(t, int64(1000), row.BoothCharges)
	assert.Equal(t, int64(300), row.BalancePayments)
	assert.Equal(t, int64(-500), row.Closing)
	assert.Equal(t, int64(-500), row.Balance)

	drifter, err := h.repo.CreateUser(context.Background(), domain.User{Email: "drifter@example.com"})
	require.NoError(t, err)
	nobody, err := h.svc.MonthlyStatement(WithActor(context.Background(), domain.Actor{UserID: drifter.ID}), now.Year(), int(now.Month()))
	require.NoError(t, err)
	assert.Empty(t, nobody.Vendors)
}
