package postgres

import (
	"context"

	"vendormall/backend/internal/domain"
)

// Line items whose vendor item was deleted have a null reference and drop
// out of every aggregate through the inner joins.

func (s *Store) TopVendors(ctx context.Context, window domain.TimeRange, limit int) ([]domain.SalesLeader, error) {
	return s.queryLeaders(ctx, `
		SELECT v.id,
		       COALESCE(NULLIF(v.store_name, ''), u.name, '') AS name,
		       SUM(ti.quantity)::bigint AS items_sold,
		       SUM(ti.price * ti.quantity)::bigint AS total_amount
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		JOIN vendor_items vi ON vi.id = ti.vendor_item_id
		JOIN vendors v ON v.id = vi.vendor_id
		LEFT JOIN users u ON u.id = v.user_id
		WHERE t.sold_at >= $1 AND t.sold_at < $2
		GROUP BY v.id, v.store_name, u.name
		ORDER BY total_amount DESC, v.id ASC
		LIMIT $3
	`, window, limit)
}

func (s *Store) TopItems(ctx context.Context, window domain.TimeRange, limit int) ([]domain.SalesLeader, error) {
	return s.queryLeaders(ctx, `
		SELECT vi.id,
		       vi.name,
		       SUM(ti.quantity)::bigint AS items_sold,
		       SUM(ti.price * ti.quantity)::bigint AS total_amount
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		JOIN vendor_items vi ON vi.id = ti.vendor_item_id
		WHERE t.sold_at >= $1 AND t.sold_at < $2
		GROUP BY vi.id, vi.name
		ORDER BY items_sold DESC, vi.id ASC
		LIMIT $3
	`, window, limit)
}

func (s *Store) queryLeaders(ctx context.Context, query string, window domain.TimeRange, limit int) ([]domain.SalesLeader, error) {
	rows, err := s.db.QueryContext(ctx, query, window.From, window.To, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leaders := make([]domain.SalesLeader, 0, 16)
	for rows.Next() {
		var l domain.SalesLeader
		if err := rows.Scan(&l.ID, &l.Name, &l.ItemsSold, &l.TotalAmount); err != nil {
			return nil, err
		}
		leaders = append(leaders, l)
	}
	return leaders, rows.Err()
}

func (s *Store) SumVendorSales(ctx context.Context, vendorID int64, window domain.TimeRange) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ti.total), 0)::bigint
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		JOIN vendor_items vi ON vi.id = ti.vendor_item_id
		WHERE vi.vendor_id = $1 AND t.sold_at >= $2 AND t.sold_at < $3
	`, vendorID, window.From, window.To).Scan(&total)
	return total, err
}
