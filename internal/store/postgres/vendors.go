package postgres

import (
	"context"
	"database/sql"
	"strings"

	"vendormall/backend/internal/domain"
)

const vendorSelect = `
	SELECT v.id, v.user_id, v.store_name, v.street_address, v.city, v.state, v.postal_code, v.balance,
	       u.email, u.name, u.phone_number, u.is_staff, u.created_at
	FROM vendors v
	LEFT JOIN users u ON u.id = v.user_id`

func scanVendor(row interface{ Scan(dest ...any) error }) (*domain.Vendor, error) {
	var (
		v       domain.Vendor
		userID  sql.NullInt64
		email   sql.NullString
		name    sql.NullString
		phone   sql.NullString
		isStaff sql.NullBool
		created sql.NullTime
	)
	if err := row.Scan(&v.ID, &userID, &v.StoreName, &v.StreetAddress, &v.City, &v.State, &v.PostalCode, &v.Balance,
		&email, &name, &phone, &isStaff, &created); err != nil {
		return nil, err
	}
	v.UserID = int64Ptr(userID)
	if userID.Valid && email.Valid {
		v.User = &domain.User{
			ID:          userID.Int64,
			Email:       email.String,
			Name:        name.String,
			PhoneNumber: phone.String,
			IsStaff:     isStaff.Bool,
			CreatedAt:   created.Time,
		}
	}
	return &v, nil
}

func (s *Store) ListVendors(ctx context.Context, filter domain.VendorFilter) ([]domain.Vendor, error) {
	query := vendorSelect
	args := []any{}
	if filter.UserID != nil {
		query += ` WHERE v.user_id = $1`
		args = append(args, *filter.UserID)
	}
	query += ` ORDER BY v.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vendors := make([]domain.Vendor, 0, 32)
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, *v)
	}
	return vendors, rows.Err()
}

func (s *Store) GetVendor(ctx context.Context, id int64) (*domain.Vendor, error) {
	v, err := scanVendor(s.db.QueryRowContext(ctx, vendorSelect+` WHERE v.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return v, nil
}

func (s *Store) GetVendorByUserID(ctx context.Context, userID int64) (*domain.Vendor, error) {
	v, err := scanVendor(s.db.QueryRowContext(ctx, vendorSelect+` WHERE v.user_id = $1`, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return v, nil
}

// CreateVendor keeps a caller supplied id (the booth number) and otherwise
// takes the next id after the current maximum.
func (s *Store) CreateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	var requested sql.NullInt64
	if vendor.ID != 0 {
		requested = sql.NullInt64{Int64: vendor.ID, Valid: true}
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO vendors (id, user_id, store_name, street_address, city, state, postal_code, balance)
		VALUES (COALESCE($1, (SELECT COALESCE(MAX(id), 0) + 1 FROM vendors)), $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, requested, nullInt64(vendor.UserID), vendor.StoreName, vendor.StreetAddress, vendor.City, vendor.State,
		vendor.PostalCode, vendor.Balance).Scan(&id)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return s.GetVendor(ctx, id)
}

// UpdateVendor writes the profile columns. The balance is only ever moved by
// AdjustVendorBalance.
func (s *Store) UpdateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE vendors
		SET store_name = $2, street_address = $3, city = $4, state = $5, postal_code = $6
		WHERE id = $1
	`, vendor.ID, vendor.StoreName, vendor.StreetAddress, vendor.City, vendor.State, vendor.PostalCode)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return s.GetVendor(ctx, vendor.ID)
}

// DeleteVendor cascades to the vendor's items and payments; line items that
// pointed at those items keep their snapshots with a null reference.
func (s *Store) DeleteVendor(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vendors WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// AdjustVendorBalance applies delta in a single statement so concurrent
// settlements never lose an update.
func (s *Store) AdjustVendorBalance(ctx context.Context, vendorID int64, delta int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE vendors SET balance = balance + $2 WHERE id = $1 RETURNING balance
	`, vendorID, delta).Scan(&balance)
	if err != nil {
		return 0, notFound(err)
	}
	return balance, nil
}

const vendorItemSelect = `
	SELECT vi.id, vi.vendor_id, vi.name, vi.price,
	       (SELECT COALESCE(SUM(ti.quantity), 0)::bigint FROM transaction_items ti WHERE ti.vendor_item_id = vi.id)
	FROM vendor_items vi`

func scanVendorItem(row interface{ Scan(dest ...any) error }) (*domain.VendorItem, error) {
	var item domain.VendorItem
	if err := row.Scan(&item.ID, &item.VendorID, &item.Name, &item.Price, &item.TotalSold); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) queryVendorItems(ctx context.Context, query string, args ...any) ([]domain.VendorItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.VendorItem, 0, 32)
	for rows.Next() {
		item, err := scanVendorItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *Store) ListVendorItems(ctx context.Context, filter domain.VendorItemFilter) ([]domain.VendorItem, error) {
	if filter.VendorID != nil {
		return s.queryVendorItems(ctx, vendorItemSelect+` WHERE vi.vendor_id = $1 ORDER BY vi.name, vi.id`, *filter.VendorID)
	}
	return s.queryVendorItems(ctx, vendorItemSelect+` ORDER BY vi.name, vi.id`)
}

func (s *Store) GetVendorItem(ctx context.Context, id int64) (*domain.VendorItem, error) {
	item, err := scanVendorItem(s.db.QueryRowContext(ctx, vendorItemSelect+` WHERE vi.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return item, nil
}

// GetVendorItemsByIDs silently omits ids that do not exist.
func (s *Store) GetVendorItemsByIDs(ctx context.Context, ids []int64) (map[int64]domain.VendorItem, error) {
	out := make(map[int64]domain.VendorItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	items, err := s.queryVendorItems(ctx, vendorItemSelect+` WHERE vi.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

func (s *Store) VendorIDsForItems(ctx context.Context, vendorItemIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(vendorItemIDs))
	if len(vendorItemIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, vendor_id FROM vendor_items WHERE id = ANY($1)`, vendorItemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var itemID, vendorID int64
		if err := rows.Scan(&itemID, &vendorID); err != nil {
			return nil, err
		}
		out[itemID] = vendorID
	}
	return out, rows.Err()
}

func (s *Store) CreateVendorItem(ctx context.Context, item domain.VendorItem) (*domain.VendorItem, error) {
	item.Name = strings.TrimSpace(item.Name)
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO vendor_items (vendor_id, name, price) VALUES ($1, $2, $3) RETURNING id
	`, item.VendorID, item.Name, item.Price).Scan(&item.ID)
	if err != nil {
		return nil, mapWriteError(err)
	}
	item.TotalSold = 0
	return &item, nil
}

func (s *Store) UpdateVendorItem(ctx context.Context, item domain.VendorItem) (*domain.VendorItem, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE vendor_items SET name = $2, price = $3 WHERE id = $1`,
		item.ID, strings.TrimSpace(item.Name), item.Price)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return s.GetVendorItem(ctx, item.ID)
}

func (s *Store) DeleteVendorItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vendor_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

const paymentColumns = `id, vendor_id, amount, paid_at`

func scanPayment(row interface{ Scan(dest ...any) error }) (*domain.VendorPayment, error) {
	var p domain.VendorPayment
	if err := row.Scan(&p.ID, &p.VendorID, &p.Amount, &p.Date); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListVendorPayments(ctx context.Context, filter domain.VendorPaymentFilter) ([]domain.VendorPayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM vendor_payments`
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

	payments := make([]domain.VendorPayment, 0, 16)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (s *Store) GetVendorPayment(ctx context.Context, id int64) (*domain.VendorPayment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM vendor_payments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Store) CreateVendorPayment(ctx context.Context, payment domain.VendorPayment) (*domain.VendorPayment, error) {
	created, err := scanPayment(s.db.QueryRowContext(ctx, `
		INSERT INTO vendor_payments (vendor_id, amount) VALUES ($1, $2) RETURNING `+paymentColumns,
		payment.VendorID, payment.Amount))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (s *Store) DeleteVendorPayment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vendor_payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
