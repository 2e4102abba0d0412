package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/store"
)

const transactionColumns = `id, sold_at, sub_total, sales_tax, card_fee, payment_method, grand_total`

const transactionItemColumns = `id, transaction_id, vendor_item_id, price, quantity, total, vendor_fee, sold_by, name`

func scanTransaction(row interface{ Scan(dest ...any) error }) (*domain.Transaction, error) {
	var (
		tx      domain.Transaction
		cardFee sql.NullInt64
		method  string
	)
	if err := row.Scan(&tx.ID, &tx.Date, &tx.SubTotal, &tx.SalesTax, &cardFee, &method, &tx.GrandTotal); err != nil {
		return nil, err
	}
	tx.CardFee = int64Ptr(cardFee)
	tx.PaymentMethod = domain.PaymentMethod(method)
	return &tx, nil
}

func scanTransactionItem(row interface{ Scan(dest ...any) error }) (*domain.TransactionItem, error) {
	var (
		item         domain.TransactionItem
		vendorItemID sql.NullInt64
	)
	if err := row.Scan(&item.ID, &item.TransactionID, &vendorItemID, &item.Price, &item.Quantity, &item.Total,
		&item.VendorFee, &item.SoldBy, &item.Name); err != nil {
		return nil, err
	}
	item.VendorItemID = int64Ptr(vendorItemID)
	return &item, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	args := []any{}
	if filter.Range != nil {
		query += ` WHERE sold_at >= $1 AND sold_at < $2`
		args = append(args, filter.Range.From, filter.Range.To)
	}
	query += ` ORDER BY sold_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	txs := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(txs) == 0 {
		return txs, nil
	}
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	items, err := s.itemsByTransaction(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		txs[i].Items = items[txs[i].ID]
		if txs[i].Items == nil {
			txs[i].Items = []domain.TransactionItem{}
		}
	}
	return txs, nil
}

func (s *Store) itemsByTransaction(ctx context.Context, q queryer, ids []string) (map[string][]domain.TransactionItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+transactionItemColumns+`
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.TransactionItem, len(ids))
	for rows.Next() {
		item, err := scanTransactionItem(rows)
		if err != nil {
			return nil, err
		}
		out[item.TransactionID] = append(out[item.TransactionID], *item)
	}
	return out, rows.Err()
}

func (s *Store) loadTransaction(ctx context.Context, q queryer, id string) (*domain.Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	tx, err := scanTransaction(q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	items, err := s.itemsByTransaction(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	tx.Items = items[id]
	if tx.Items == nil {
		tx.Items = []domain.TransactionItem{}
	}
	return tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.loadTransaction(ctx, s.db, id)
}

func insertTransactionItem(ctx context.Context, q queryer, txID string, item domain.TransactionItem) (*domain.TransactionItem, error) {
	saved, err := scanTransactionItem(q.QueryRowContext(ctx, `
		INSERT INTO transaction_items (transaction_id, vendor_item_id, price, quantity, total, vendor_fee, sold_by, name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+transactionItemColumns,
		txID, nullInt64(item.VendorItemID), item.Price, item.Quantity, item.Total, item.VendorFee, item.SoldBy, item.Name))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return saved, nil
}

// CreateTransaction writes the header and every line item in one database
// transaction. An empty id gets a fresh UUID.
func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	var created *domain.Transaction
	err := s.withTx(ctx, func(dbTx *sql.Tx) error {
		var soldAt any
		if !tx.Date.IsZero() {
			soldAt = tx.Date
		}
		if _, err := dbTx.ExecContext(ctx, `
			INSERT INTO transactions (id, sold_at, sub_total, sales_tax, card_fee, payment_method, grand_total)
			VALUES ($1, COALESCE($2, now()), $3, $4, $5, $6, $7)
		`, tx.ID, soldAt, tx.SubTotal, tx.SalesTax, nullInt64(tx.CardFee), string(tx.PaymentMethod), tx.GrandTotal); err != nil {
			return mapWriteError(err)
		}
		for _, item := range tx.Items {
			if _, err := insertTransactionItem(ctx, dbTx, tx.ID, item); err != nil {
				return fmt.Errorf("insert item: %w", err)
			}
		}
		var err error
		created, err = s.loadTransaction(ctx, dbTx, tx.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateTransaction rewrites the header and upserts the given items. Items
// with an id must belong to this transaction; items without one are added.
func (s *Store) UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if _, err := uuid.Parse(tx.ID); err != nil {
		return nil, store.ErrNotFound
	}
	var updated *domain.Transaction
	err := s.withTx(ctx, func(dbTx *sql.Tx) error {
		res, err := dbTx.ExecContext(ctx, `
			UPDATE transactions
			SET sub_total = $2, sales_tax = $3, card_fee = $4, payment_method = $5, grand_total = $6
			WHERE id = $1
		`, tx.ID, tx.SubTotal, tx.SalesTax, nullInt64(tx.CardFee), string(tx.PaymentMethod), tx.GrandTotal)
		if err != nil {
			return err
		}
		if err := expectAffected(res); err != nil {
			return err
		}

		for _, item := range tx.Items {
			if item.ID == 0 {
				if _, err := insertTransactionItem(ctx, dbTx, tx.ID, item); err != nil {
					return fmt.Errorf("insert item: %w", err)
				}
				continue
			}
			res, err := dbTx.ExecContext(ctx, `
				UPDATE transaction_items
				SET vendor_item_id = $3, price = $4, quantity = $5, total = $6, vendor_fee = $7, sold_by = $8, name = $9
				WHERE id = $1 AND transaction_id = $2
			`, item.ID, tx.ID, nullInt64(item.VendorItemID), item.Price, item.Quantity, item.Total, item.VendorFee, item.SoldBy, item.Name)
			if err != nil {
				return mapWriteError(err)
			}
			if err := expectAffected(res); err != nil {
				return err
			}
		}

		updated, err = s.loadTransaction(ctx, dbTx, tx.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) ListTransactionItems(ctx context.Context, filter domain.TransactionItemFilter) ([]domain.TransactionItem, error) {
	conds := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.TransactionID != "" {
		if _, err := uuid.Parse(filter.TransactionID); err != nil {
			return []domain.TransactionItem{}, nil
		}
		args = append(args, filter.TransactionID)
		conds = append(conds, fmt.Sprintf("ti.transaction_id = $%d", len(args)))
	}
	if filter.VendorID != nil {
		args = append(args, *filter.VendorID)
		conds = append(conds, fmt.Sprintf("vi.vendor_id = $%d", len(args)))
	}

	query := `
		SELECT ti.id, ti.transaction_id, ti.vendor_item_id, ti.price, ti.quantity, ti.total, ti.vendor_fee, ti.sold_by, ti.name
		FROM transaction_items ti
		LEFT JOIN vendor_items vi ON vi.id = ti.vendor_item_id`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY ti.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.TransactionItem, 0, 32)
	for rows.Next() {
		item, err := scanTransactionItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *Store) GetTransactionItem(ctx context.Context, id int64) (*domain.TransactionItem, error) {
	item, err := scanTransactionItem(s.db.QueryRowContext(ctx,
		`SELECT `+transactionItemColumns+` FROM transaction_items WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return item, nil
}

func (s *Store) CreateTransactionItem(ctx context.Context, item domain.TransactionItem) (*domain.TransactionItem, error) {
	if _, err := uuid.Parse(item.TransactionID); err != nil {
		return nil, store.ErrNotFound
	}
	saved, err := insertTransactionItem(ctx, s.db, item.TransactionID, item)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Store) UpdateTransactionItem(ctx context.Context, item domain.TransactionItem) (*domain.TransactionItem, error) {
	saved, err := scanTransactionItem(s.db.QueryRowContext(ctx, `
		UPDATE transaction_items
		SET vendor_item_id = $2, price = $3, quantity = $4, total = $5, vendor_fee = $6, sold_by = $7, name = $8
		WHERE id = $1
		RETURNING `+transactionItemColumns,
		item.ID, nullInt64(item.VendorItemID), item.Price, item.Quantity, item.Total, item.VendorFee, item.SoldBy, item.Name))
	if err != nil {
		return nil, mapWriteError(notFound(err))
	}
	return saved, nil
}

func (s *Store) DeleteTransactionItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transaction_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
