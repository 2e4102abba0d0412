package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"vendormall/backend/internal/domain"
)

const chargeColumns = `id, vendor_id, amount, year, month, created_at`

func scanCharge(row interface{ Scan(dest ...any) error }) (*domain.BoothCharge, error) {
	var c domain.BoothCharge
	if err := row.Scan(&c.ID, &c.VendorID, &c.Amount, &c.Year, &c.Month, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListBoothCharges(ctx context.Context, filter domain.BoothChargeFilter) ([]domain.BoothCharge, error) {
	query := `SELECT ` + chargeColumns + ` FROM booth_charges`
	args := []any{}
	if filter.VendorID != nil {
		query += ` WHERE vendor_id = $1`
		args = append(args, *filter.VendorID)
	}
	query += ` ORDER BY year DESC, month DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	charges := make([]domain.BoothCharge, 0, 16)
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		charges = append(charges, *c)
	}
	return charges, rows.Err()
}

func (s *Store) GetBoothCharge(ctx context.Context, id int64) (*domain.BoothCharge, error) {
	c, err := scanCharge(s.db.QueryRowContext(ctx, `SELECT `+chargeColumns+` FROM booth_charges WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *Store) CreateBoothCharge(ctx context.Context, charge domain.BoothCharge) (*domain.BoothCharge, error) {
	created, err := scanCharge(s.db.QueryRowContext(ctx, `
		INSERT INTO booth_charges (vendor_id, amount, year, month) VALUES ($1, $2, $3, $4) RETURNING `+chargeColumns,
		charge.VendorID, charge.Amount, charge.Year, charge.Month))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (s *Store) UpdateBoothCharge(ctx context.Context, charge domain.BoothCharge) (*domain.BoothCharge, error) {
	updated, err := scanCharge(s.db.QueryRowContext(ctx, `
		UPDATE booth_charges SET amount = $2, year = $3, month = $4 WHERE id = $1 RETURNING `+chargeColumns,
		charge.ID, charge.Amount, charge.Year, charge.Month))
	if err != nil {
		return nil, notFound(err)
	}
	return updated, nil
}

func (s *Store) DeleteBoothCharge(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM booth_charges WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

const balancePaymentColumns = `id, vendor_id, amount, paid_at, payment_method, description`

func scanBalancePayment(row interface{ Scan(dest ...any) error }) (*domain.BalancePayment, error) {
	var p domain.BalancePayment
	if err := row.Scan(&p.ID, &p.VendorID, &p.Amount, &p.Date, &p.Method, &p.Description); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListBalancePayments(ctx context.Context, filter domain.BalancePaymentFilter) ([]domain.BalancePayment, error) {
	query := `SELECT ` + balancePaymentColumns + ` FROM balance_payments`
	args := []any{}
	if filter.VendorID != nil {
		query += ` WHERE vendor_id = $1`
		args = append(args, *filter.VendorID)
	}
	query += ` ORDER BY paid_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.BalancePayment, 0, 16)
	for rows.Next() {
		p, err := scanBalancePayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (s *Store) GetBalancePayment(ctx context.Context, id int64) (*domain.BalancePayment, error) {
	p, err := scanBalancePayment(s.db.QueryRowContext(ctx, `SELECT `+balancePaymentColumns+` FROM balance_payments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Store) CreateBalancePayment(ctx context.Context, payment domain.BalancePayment) (*domain.BalancePayment, error) {
	created, err := scanBalancePayment(s.db.QueryRowContext(ctx, `
		INSERT INTO balance_payments (vendor_id, amount, paid_at, payment_method, description)
		VALUES ($1, $2, COALESCE($3, now()), $4, $5)
		RETURNING `+balancePaymentColumns,
		payment.VendorID, payment.Amount, nullTime(payment.Date), payment.Method, strings.TrimSpace(payment.Description)))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (s *Store) UpdateBalancePayment(ctx context.Context, payment domain.BalancePayment) (*domain.BalancePayment, error) {
	updated, err := scanBalancePayment(s.db.QueryRowContext(ctx, `
		UPDATE balance_payments
		SET amount = $2, paid_at = COALESCE($3, paid_at), payment_method = $4, description = $5
		WHERE id = $1
		RETURNING `+balancePaymentColumns,
		payment.ID, payment.Amount, nullTime(payment.Date), payment.Method, strings.TrimSpace(payment.Description)))
	if err != nil {
		return nil, notFound(err)
	}
	return updated, nil
}

func (s *Store) DeleteBalancePayment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM balance_payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// VendorActivity sums every vendor's sales, payouts, charges and balance
// payments inside the window in one round trip.
func (s *Store) VendorActivity(ctx context.Context, window domain.LedgerWindow) (map[int64]domain.VendorActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id,
		       COALESCE(sales.items_sold, 0)::bigint,
		       COALESCE(sales.cash_sales, 0)::bigint,
		       COALESCE(sales.card_sales, 0)::bigint,
		       COALESCE(sales.fees, 0)::bigint,
		       COALESCE((SELECT SUM(p.amount) FROM vendor_payments p
		                 WHERE p.vendor_id = v.id AND p.paid_at >= $1 AND p.paid_at < $2), 0)::bigint,
		       COALESCE((SELECT SUM(c.amount) FROM booth_charges c
		                 WHERE c.vendor_id = v.id AND c.year * 12 + c.month - 1 >= $3 AND c.year * 12 + c.month - 1 < $4), 0)::bigint,
		       COALESCE((SELECT SUM(b.amount) FROM balance_payments b
		                 WHERE b.vendor_id = v.id AND b.paid_at >= $1 AND b.paid_at < $2), 0)::bigint
		FROM vendors v
		LEFT JOIN (
			SELECT vi.vendor_id,
			       SUM(ti.quantity) AS items_sold,
			       SUM(ti.total) FILTER (WHERE t.payment_method <> 'CARD') AS cash_sales,
			       SUM(ti.total) FILTER (WHERE t.payment_method = 'CARD') AS card_sales,
			       SUM(ti.vendor_fee) AS fees
			FROM transaction_items ti
			JOIN transactions t ON t.id = ti.transaction_id
			JOIN vendor_items vi ON vi.id = ti.vendor_item_id
			WHERE t.sold_at >= $1 AND t.sold_at < $2
			GROUP BY vi.vendor_id
		) sales ON sales.vendor_id = v.id
		ORDER BY v.id
	`, window.Range.From, window.Range.To, window.FromMonth, window.ToMonth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activity := make(map[int64]domain.VendorActivity, 32)
	for rows.Next() {
		var a domain.VendorActivity
		if err := rows.Scan(&a.VendorID, &a.ItemsSold, &a.CashSales, &a.CardSales, &a.Fees,
			&a.Payouts, &a.BoothCharges, &a.BalancePayments); err != nil {
			return nil, err
		}
		activity[a.VendorID] = a
	}
	return activity, rows.Err()
}
