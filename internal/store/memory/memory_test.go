package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/store"
)

func ptr(v int64) *int64 { return &v }

func seedVendor(t *testing.T, s *Store, id int64, name string) domain.VendorItem {
	t.Helper()
	ctx := context.Background()
	_, err := s.CreateVendor(ctx, domain.Vendor{ID: id, StoreName: name})
	require.NoError(t, err)
	item, err := s.CreateVendorItem(ctx, domain.VendorItem{VendorID: id, Name: name + " item", Price: 100})
	require.NoError(t, err)
	return *item
}

func TestTopVendorsGroupsAndRanksByAmount(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seedVendor(t, s, 1, "Alpha")
	b := seedVendor(t, s, 2, "Bravo")

	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	_, err := s.CreateTransaction(ctx, domain.Transaction{Date: now, Items: []domain.TransactionItem{
		{VendorItemID: ptr(a.ID), Price: 100, Quantity: 10, Total: 1000},
		{VendorItemID: ptr(b.ID), Price: 2500, Quantity: 1, Total: 2500},
		{Price: 99999, Quantity: 1, Total: 99999},
	}})
	require.NoError(t, err)

	window := domain.TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}
	vendors, err := s.TopVendors(ctx, window, 10)
	require.NoError(t, err)
	require.Len(t, vendors, 2)
	assert.Equal(t, domain.SalesLeader{ID: 2, Name: "Bravo", ItemsSold: 1, TotalAmount: 2500}, vendors[0])
	assert.Equal(t, domain.SalesLeader{ID: 1, Name: "Alpha", ItemsSold: 10, TotalAmount: 1000}, vendors[1])

	items, err := s.TopItems(ctx, window, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].ID)
	assert.Equal(t, int64(10), items[0].ItemsSold)

	outside := domain.TimeRange{From: now.Add(time.Hour), To: now.Add(2 * time.Hour)}
	vendors, err = s.TopVendors(ctx, outside, 10)
	require.NoError(t, err)
	assert.Empty(t, vendors)
}

func TestTopItemsSumsLinesOfTheSameItem(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seedVendor(t, s, 1, "Alpha")
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	_, err := s.CreateTransaction(ctx, domain.Transaction{Date: now, Items: []domain.TransactionItem{
		{VendorItemID: ptr(a.ID), Price: 100, Quantity: 3, Total: 300},
	}})
	require.NoError(t, err)
	_, err = s.CreateTransaction(ctx, domain.Transaction{Date: now.Add(time.Minute), Items: []domain.TransactionItem{
		{VendorItemID: ptr(a.ID), Price: 100, Quantity: 5, Total: 500},
	}})
	require.NoError(t, err)

	items, err := s.TopItems(ctx, domain.TimeRange{From: now, To: now.Add(time.Hour)}, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.SalesLeader{ID: a.ID, Name: "Alpha item", ItemsSold: 8, TotalAmount: 800}, items[0])
}

func TestUpdateVendorLeavesBalanceAlone(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedVendor(t, s, 1, "Alpha")

	stale, err := s.GetVendor(ctx, 1)
	require.NoError(t, err)
	_, err = s.AdjustVendorBalance(ctx, 1, 250)
	require.NoError(t, err)

	stale.City = "Salem"
	stale.Balance = 0
	updated, err := s.UpdateVendor(ctx, *stale)
	require.NoError(t, err)
	assert.Equal(t, "Salem", updated.City)
	assert.Equal(t, int64(250), updated.Balance)
}

func TestVendorActivitySplitsByWindowAndBillingMonth(t *testing.T) {
	ctx := context.Background()
	s := New().WithClock(func() time.Time { return time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) })
	a := seedVendor(t, s, 1, "Alpha")
	march := domain.TimeRange{From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}

	_, err := s.CreateTransaction(ctx, domain.Transaction{Date: march.From, PaymentMethod: domain.PaymentCard, Items: []domain.TransactionItem{
		{VendorItemID: ptr(a.ID), Price: 100, Quantity: 2, Total: 200, VendorFee: 10},
	}})
	require.NoError(t, err)
	_, err = s.CreateVendorPayment(ctx, domain.VendorPayment{VendorID: 1, Amount: 5})
	require.NoError(t, err)
	_, err = s.CreateBoothCharge(ctx, domain.BoothCharge{VendorID: 1, Amount: 40, Year: 2026, Month: 3})
	require.NoError(t, err)
	_, err = s.CreateBoothCharge(ctx, domain.BoothCharge{VendorID: 1, Amount: 99, Year: 2026, Month: 4})
	require.NoError(t, err)
	_, err = s.CreateBalancePayment(ctx, domain.BalancePayment{VendorID: 1, Amount: 20, Method: domain.BalancePaidCard})
	require.NoError(t, err)

	activity, err := s.VendorActivity(ctx, domain.LedgerWindow{
		Range:     march,
		FromMonth: domain.BillingMonth(2026, 3),
		ToMonth:   domain.BillingMonth(2026, 4),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VendorActivity{
		VendorID: 1, ItemsSold: 2, CardSales: 200, Fees: 10, Payouts: 5, BoothCharges: 40, BalancePayments: 20,
	}, activity[1])
	assert.Equal(t, int64(10-5-40+20), activity[1].Net())
}

func TestDeleteVendorDropsChargesAndBalancePayments(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedVendor(t, s, 1, "Alpha")
	charge, err := s.CreateBoothCharge(ctx, domain.BoothCharge{VendorID: 1, Amount: 40, Year: 2026, Month: 3})
	require.NoError(t, err)
	paid, err := s.CreateBalancePayment(ctx, domain.BalancePayment{VendorID: 1, Amount: 20, Method: domain.BalancePaidCash})
	require.NoError(t, err)

	require.NoError(t, s.DeleteVendor(ctx, 1))
	_, err = s.GetBoothCharge(ctx, charge.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetBalancePayment(ctx, paid.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.CreateBoothCharge(ctx, domain.BoothCharge{VendorID: 1, Amount: 1, Year: 2026, Month: 1})
	assert.ErrorIs(t, err, store.ErrInvalid)
}

func TestTopVendorsHonorsLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	items := make([]domain.TransactionItem, 0, 12)
	for i := int64(1); i <= 12; i++ {
		vi := seedVendor(t, s, i, "V")
		items = append(items, domain.TransactionItem{VendorItemID: ptr(vi.ID), Price: i, Quantity: 1, Total: i})
	}
	_, err := s.CreateTransaction(ctx, domain.Transaction{Date: now, Items: items})
	require.NoError(t, err)

	vendors, err := s.TopVendors(ctx, domain.TimeRange{From: now, To: now.Add(time.Second)}, 10)
	require.NoError(t, err)
	require.Len(t, vendors, 10)
	assert.Equal(t, int64(12), vendors[0].ID)
}

func TestDeleteVendorItemKeepsLineSnapshots(t *testing.T) {
	ctx := context.Background()
	s := New()
	vi := seedVendor(t, s, 5, "Echo")

	tx, err := s.CreateTransaction(ctx, domain.Transaction{Items: []domain.TransactionItem{
		{VendorItemID: ptr(vi.ID), Price: 100, Quantity: 2, Total: 200, VendorFee: 10, SoldBy: "Echo", Name: "Echo item"},
	}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteVendorItem(ctx, vi.ID))

	got, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Nil(t, got.Items[0].VendorItemID)
	assert.Equal(t, "Echo", got.Items[0].SoldBy)
	assert.Equal(t, "Echo item", got.Items[0].Name)
}

func TestUpdateTransactionRejectsForeignItem(t *testing.T) {
	ctx := context.Background()
	s := New()
	first, err := s.CreateTransaction(ctx, domain.Transaction{Items: []domain.TransactionItem{{Price: 1, Quantity: 1}}})
	require.NoError(t, err)
	second, err := s.CreateTransaction(ctx, domain.Transaction{})
	require.NoError(t, err)

	second.Items = []domain.TransactionItem{{ID: first.Items[0].ID, Price: 5, Quantity: 5}}
	_, err = s.UpdateTransaction(ctx, *second)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdjustVendorBalanceAllowsNegative(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.CreateVendor(ctx, domain.Vendor{ID: 9})
	require.NoError(t, err)

	balance, err := s.AdjustVendorBalance(ctx, 9, -250)
	require.NoError(t, err)
	assert.Equal(t, int64(-250), balance)

	_, err = s.AdjustVendorBalance(ctx, 404, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMessagesUnionOrderedNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	s := New()
	alice, err := s.CreateUser(ctx, domain.User{Email: "alice@example.com"})
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, domain.User{Email: "bob@example.com"})
	require.NoError(t, err)

	older, err := s.CreateMessage(ctx, domain.Message{SenderID: alice.ID, Subject: "a", Timestamp: base}, []int64{bob.ID, bob.ID})
	require.NoError(t, err)
	newer, err := s.CreateMessage(ctx, domain.Message{SenderID: bob.ID, Subject: "b", Timestamp: base.Add(time.Minute)}, []int64{alice.ID})
	require.NoError(t, err)
	assert.Len(t, older.Recipients, 1)

	msgs, err := s.ListMessagesForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, newer.ID, msgs[0].ID)
	assert.Equal(t, older.ID, msgs[1].ID)

	unread, err := s.CountUnreadMessages(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.CreateUser(ctx, domain.User{Email: "dup@example.com"})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, domain.User{Email: "DUP@example.com"})
	assert.ErrorIs(t, err, store.ErrConflict)
}
