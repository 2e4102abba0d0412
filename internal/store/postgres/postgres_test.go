package postgres

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/store"
)

// arrayConverter lets slice arguments through the way the pgx driver does.
type arrayConverter struct{}

func (arrayConverter) ConvertValue(v any) (driver.Value, error) {
	if dv, err := driver.DefaultParameterConverter.ConvertValue(v); err == nil {
		return dv, nil
	}
	return v, nil
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(arrayConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewWithDB(db), mock
}

func q(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

func TestAdjustVendorBalanceIsOneStatement(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery(q("UPDATE vendors SET balance = balance + $2 WHERE id = $1 RETURNING balance")).
		WithArgs(int64(101), int64(-250)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(750)))

	balance, err := s.AdjustVendorBalance(ctx, 101, -250)
	require.NoError(t, err)
	assert.Equal(t, int64(750), balance)

	mock.ExpectQuery(q("UPDATE vendors SET balance")).
		WithArgs(int64(999), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	_, err = s.AdjustVendorBalance(ctx, 999, 5)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateUserMapsUniqueViolation(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("INSERT INTO users")).
		WithArgs("maple@example.com", "Ruth", "", false, "").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := s.CreateUser(context.Background(), domain.User{Email: " maple@example.com ", Name: "Ruth"})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestCreateVendorPaymentMapsMissingVendor(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("INSERT INTO vendor_payments")).
		WithArgs(int64(404), int64(1000)).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err := s.CreateVendorPayment(context.Background(), domain.VendorPayment{VendorID: 404, Amount: 1000})
	assert.ErrorIs(t, err, store.ErrInvalid)
}

func TestCreateVendorDefaultsIDAndLoadsOwner(t *testing.T) {
	s, mock := newMock(t)
	userID := int64(2)
	created := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("INSERT INTO vendors")).
		WithArgs(nil, userID, "Maple Crafts", "", "", "", "", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(103)))
	mock.ExpectQuery(q("LEFT JOIN users u ON u.id = v.user_id WHERE v.id = $1")).
		WithArgs(int64(103)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "store_name", "street_address", "city", "state", "postal_code", "balance",
			"email", "name", "phone_number", "is_staff", "created_at",
		}).AddRow(int64(103), userID, "Maple Crafts", "", "", "", "", int64(0),
			"maple@example.com", "Ruth Ames", "", false, created))

	v, err := s.CreateVendor(context.Background(), domain.Vendor{UserID: &userID, StoreName: "Maple Crafts"})
	require.NoError(t, err)
	assert.Equal(t, int64(103), v.ID)
	require.NotNil(t, v.User)
	assert.Equal(t, "Ruth Ames", v.User.Name)
}

func TestTopVendorsQueriesWindow(t *testing.T) {
	s, mock := newMock(t)
	window := domain.TimeRange{
		From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
	}

	mock.ExpectQuery(q("ORDER BY total_amount DESC, v.id ASC LIMIT $3")).
		WithArgs(window.From, window.To, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "items_sold", "total_amount"}).
			AddRow(int64(101), "Maple Crafts", int64(4), int64(8000)).
			AddRow(int64(102), "Dale Porter", int64(9), int64(4500)))

	leaders, err := s.TopVendors(context.Background(), window, 10)
	require.NoError(t, err)
	require.Len(t, leaders, 2)
	assert.Equal(t, domain.SalesLeader{ID: 101, Name: "Maple Crafts", ItemsSold: 4, TotalAmount: 8000}, leaders[0])
}

func TestTopItemsGroupsByVendorItem(t *testing.T) {
	s, mock := newMock(t)
	window := domain.TimeRange{
		From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	mock.ExpectQuery(q("GROUP BY vi.id, vi.name ORDER BY items_sold DESC, vi.id ASC LIMIT $3")).
		WithArgs(window.From, window.To, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "items_sold", "total_amount"}).
			AddRow(int64(7), "Bowl", int64(8), int64(12000)))

	items, err := s.TopItems(context.Background(), window, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.SalesLeader{{ID: 7, Name: "Bowl", ItemsSold: 8, TotalAmount: 12000}}, items)
}

func TestUpdateVendorDoesNotWriteBalance(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(q("SET store_name = $2, street_address = $3, city = $4, state = $5, postal_code = $6 WHERE id = $1")).
		WithArgs(int64(101), "Maple Crafts", "", "Salem", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("LEFT JOIN users u ON u.id = v.user_id WHERE v.id = $1")).
		WithArgs(int64(101)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "store_name", "street_address", "city", "state", "postal_code", "balance",
			"email", "name", "phone_number", "is_staff", "created_at",
		}).AddRow(int64(101), nil, "Maple Crafts", "", "Salem", "", "", int64(250), nil, nil, nil, nil, nil))

	v, err := s.UpdateVendor(context.Background(), domain.Vendor{ID: 101, StoreName: "Maple Crafts", City: "Salem", Balance: 0})
	require.NoError(t, err)
	assert.Equal(t, int64(250), v.Balance)
}

func TestVendorActivityBindsWindowAndBillingMonths(t *testing.T) {
	s, mock := newMock(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	window := domain.LedgerWindow{
		Range:     domain.TimeRange{From: start, To: start.AddDate(0, 1, 0)},
		FromMonth: domain.BillingMonth(2026, 3),
		ToMonth:   domain.BillingMonth(2026, 4),
	}

	mock.ExpectQuery(q("c.year * 12 + c.month - 1 >= $3 AND c.year * 12 + c.month - 1 < $4")).
		WithArgs(window.Range.From, window.Range.To, 24314, 24315).
		WillReturnRows(sqlmock.NewRows([]string{"id", "items_sold", "cash", "card", "fees", "payouts", "charges", "balance_payments"}).
			AddRow(int64(101), int64(4), int64(2000), int64(6000), int64(400), int64(0), int64(60), int64(30)).
			AddRow(int64(102), int64(0), int64(0), int64(0), int64(0), int64(0), int64(0), int64(0)))

	activity, err := s.VendorActivity(context.Background(), window)
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, int64(400-60+30), activity[101].Net())
	assert.Equal(t, int64(6000), activity[101].CardSales)
}

func TestCreateBalancePaymentDefaultsDate(t *testing.T) {
	s, mock := newMock(t)
	paidAt := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("VALUES ($1, $2, COALESCE($3, now()), $4, $5)")).
		WithArgs(int64(101), int64(2500), nil, "CHECK", "March rent").
		WillReturnRows(sqlmock.NewRows([]string{"id", "vendor_id", "amount", "paid_at", "payment_method", "description"}).
			AddRow(int64(1), int64(101), int64(2500), paidAt, "CHECK", "March rent"))

	p, err := s.CreateBalancePayment(context.Background(), domain.BalancePayment{
		VendorID: 101, Amount: 2500, Method: domain.BalancePaidCheck, Description: " March rent ",
	})
	require.NoError(t, err)
	assert.Equal(t, paidAt, p.Date)
}

func TestUpdateBoothChargeMissing(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("UPDATE booth_charges SET amount = $2, year = $3, month = $4 WHERE id = $1")).
		WithArgs(int64(9), int64(100), 2026, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "vendor_id", "amount", "year", "month", "created_at"}))

	_, err := s.UpdateBoothCharge(context.Background(), domain.BoothCharge{ID: 9, Amount: 100, Year: 2026, Month: 5})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateTransactionWritesHeaderAndItems(t *testing.T) {
	s, mock := newMock(t)
	txID := "5b0f5a43-8e3c-4bb4-9a57-1a2f5f2c9e10"
	soldAt := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	vendorItemID := int64(7)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO transactions")).
		WithArgs(txID, soldAt, int64(2000), int64(160), nil, "CASH", int64(2160)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	itemCols := []string{"id", "transaction_id", "vendor_item_id", "price", "quantity", "total", "vendor_fee", "sold_by", "name"}
	mock.ExpectQuery(q("INSERT INTO transaction_items")).
		WithArgs(txID, vendorItemID, int64(2000), int64(1), int64(2000), int64(100), "Maple Crafts", "Mug").
		WillReturnRows(sqlmock.NewRows(itemCols).AddRow(int64(1), txID, vendorItemID, int64(2000), int64(1), int64(2000), int64(100), "Maple Crafts", "Mug"))
	mock.ExpectQuery(q("FROM transactions WHERE id = $1")).
		WithArgs(txID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sold_at", "sub_total", "sales_tax", "card_fee", "payment_method", "grand_total"}).
			AddRow(txID, soldAt, int64(2000), int64(160), nil, "CASH", int64(2160)))
	mock.ExpectQuery(q("FROM transaction_items WHERE transaction_id = ANY($1)")).
		WithArgs([]string{txID}).
		WillReturnRows(sqlmock.NewRows(itemCols).AddRow(int64(1), txID, vendorItemID, int64(2000), int64(1), int64(2000), int64(100), "Maple Crafts", "Mug"))
	mock.ExpectCommit()

	tx, err := s.CreateTransaction(context.Background(), domain.Transaction{
		ID:            txID,
		Date:          soldAt,
		SubTotal:      2000,
		SalesTax:      160,
		PaymentMethod: domain.PaymentCash,
		GrandTotal:    2160,
		Items: []domain.TransactionItem{{
			VendorItemID: &vendorItemID, Price: 2000, Quantity: 1, Total: 2000, VendorFee: 100, SoldBy: "Maple Crafts", Name: "Mug",
		}},
	})
	require.NoError(t, err)
	assert.Nil(t, tx.CardFee)
	require.Len(t, tx.Items, 1)
	assert.Equal(t, int64(100), tx.Items[0].VendorFee)
}

func TestUpdateTransactionRejectsForeignItem(t *testing.T) {
	s, mock := newMock(t)
	txID := "5b0f5a43-8e3c-4bb4-9a57-1a2f5f2c9e10"

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE transactions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE transaction_items")).
		WithArgs(int64(55), txID, nil, int64(100), int64(1), int64(100), int64(5), "Unknown", "Unknown").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.UpdateTransaction(context.Background(), domain.Transaction{
		ID: txID,
		Items: []domain.TransactionItem{{
			ID: 55, Price: 100, Quantity: 1, Total: 100, VendorFee: 5, SoldBy: "Unknown", Name: "Unknown",
		}},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMalformedTransactionIDIsNotFound(t *testing.T) {
	s, _ := newMock(t)

	_, err := s.GetTransaction(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteTransaction(context.Background(), "not-a-uuid"), store.ErrNotFound)
}

func TestVendorIDsForItems(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("SELECT id, vendor_id FROM vendor_items WHERE id = ANY($1)")).
		WithArgs([]int64{1, 2, 3}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "vendor_id"}).AddRow(int64(1), int64(101)).AddRow(int64(3), int64(102)))

	owners, err := s.VendorIDsForItems(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 101, 3: 102}, owners)

	empty, err := s.VendorIDsForItems(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCountUnreadMessages(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("WHERE r.user_id = $1 AND NOT m.is_read")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := s.CountUnreadMessages(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSetReplyReadChecksMessage(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(q("UPDATE replies SET read = true WHERE id = $1 AND message_id = $2")).
		WithArgs(int64(9), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.SetReplyRead(context.Background(), 4, 9), store.ErrNotFound)
}

func TestUpdateMessageKeepsRecipientsWhenNil(t *testing.T) {
	s, mock := newMock(t)
	sentAt := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE messages SET subject = $2, body = $3, is_read = $4 WHERE id = $1")).
		WithArgs(int64(4), "Hi", "edited", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("JOIN users u ON u.id = m.sender_id WHERE m.id = $1")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sender_id", "email", "subject", "body", "sent_at", "is_read"}).
			AddRow(int64(4), int64(1), "staff@example.com", "Hi", "edited", sentAt, true))
	mock.ExpectQuery(q("FROM message_recipients r")).
		WithArgs([]int64{4}).
		WillReturnRows(sqlmock.NewRows([]string{"message_id", "id", "name", "email"}).AddRow(int64(4), int64(3), "Dale Porter", "oak@example.com"))
	mock.ExpectQuery(q("FROM replies")).
		WithArgs([]int64{4}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "message_id", "sender_id", "body", "sent_at", "read"}))
	mock.ExpectCommit()

	msg, err := s.UpdateMessage(context.Background(), domain.Message{ID: 4, Subject: "Hi", Body: "edited", IsRead: true}, nil)
	require.NoError(t, err)
	assert.True(t, msg.IsRead)
	assert.Equal(t, []domain.UserRef{{ID: 3, Name: "Dale Porter", Email: "oak@example.com"}}, msg.Recipients)
	assert.Empty(t, msg.Replies)
}
