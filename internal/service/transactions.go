package service

import (
	"context"
	"errors"
	"fmt"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/ledger"
	"vendormall/backend/internal/settlement"
	"vendormall/backend/internal/store"
)

func (s *Service) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	if _, err := requireStaff(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, domain.TransactionFilter{})
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.Transaction{}, err
	}
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// CreateTransaction records a sale and credits every referenced vendor with
// its line-item fees.
func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.Transaction{}, err
	}

	lines := make([]domain.TransactionItem, 0, len(req.Items))
	for _, in := range req.Items {
		lines = append(lines, domain.TransactionItem{VendorItemID: in.VendorItemID, Price: in.Price, Quantity: in.Quantity})
	}
	items, err := s.prepareItems(ctx, lines)
	if err != nil {
		return domain.Transaction{}, err
	}

	method := req.PaymentMethod
	if method == "" {
		method = domain.PaymentCash
	}
	tx := ledger.PrepareTransaction(domain.Transaction{
		Date:          s.now().UTC(),
		SubTotal:      req.SubTotal,
		SalesTax:      req.SalesTax,
		CardFee:       req.CardFee,
		PaymentMethod: method,
		Items:         items,
	})

	created, err := s.repo.CreateTransaction(ctx, tx)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := s.settler.TransactionCreated(ctx, *created); err != nil {
		// settlement is all or nothing, so no fee from this sale was kept
		if delErr := s.repo.DeleteTransaction(context.WithoutCancel(ctx), created.ID); delErr != nil {
			s.log.WithError(delErr).WithField("transaction_id", created.ID).Error("unsettled transaction could not be removed")
		}
		return domain.Transaction{}, fmt.Errorf("settle transaction %s: %w", created.ID, err)
	}
	s.reports.Invalidate(ctx)
	s.logAudit(ctx, "transaction_create", "transaction", created.ID, fmt.Sprintf("grand_total=%d,items=%d", created.GrandTotal, len(created.Items)))
	return *created, nil
}

// UpdateTransaction applies header changes and upserts line items: items
// carrying an id get a new price and/or quantity, items without one are
// added. Settlement then runs in the configured update mode.
func (s *Service) UpdateTransaction(ctx context.Context, id string, req domain.TransactionUpdateRequest) (domain.Transaction, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.Transaction{}, err
	}

	var result domain.Transaction
	err := s.settler.Guard(ctx, []string{settlement.TransactionKey(id)}, func(ctx context.Context) error {
		before, err := s.repo.GetTransaction(ctx, id)
		if err != nil {
			return err
		}

		next := *before
		if req.SubTotal != nil {
			next.SubTotal = *req.SubTotal
		}
		if req.SalesTax != nil {
			next.SalesTax = *req.SalesTax
		}
		if req.CardFee != nil {
			next.CardFee = req.CardFee
		}
		if req.PaymentMethod != nil {
			next.PaymentMethod = *req.PaymentMethod
		}

		existing := make(map[int64]domain.TransactionItem, len(before.Items))
		for _, item := range before.Items {
			existing[item.ID] = item
		}
		lines := make([]domain.TransactionItem, 0, len(req.Items))
		for i, in := range req.Items {
			if in.ID == nil {
				lines = append(lines, domain.TransactionItem{VendorItemID: in.VendorItemID, Price: in.Price, Quantity: in.Quantity})
				continue
			}
			current, ok := existing[*in.ID]
			if !ok {
				return fieldError(fmt.Sprintf("item %d does not belong to this transaction", *in.ID), "items", fmt.Sprint(i))
			}
			current.Price = in.Price
			current.Quantity = in.Quantity
			lines = append(lines, current)
		}
		if next.Items, err = s.prepareItems(ctx, lines); err != nil {
			return err
		}
		next = ledger.PrepareTransaction(next)

		after, err := s.repo.UpdateTransaction(ctx, next)
		if err != nil {
			return err
		}
		if err := s.settler.TransactionUpdated(ctx, *before, *after); err != nil {
			return fmt.Errorf("settle transaction %s: %w", id, err)
		}
		result = *after
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	s.reports.Invalidate(ctx)
	s.logAudit(ctx, "transaction_update", "transaction", id, fmt.Sprintf("mode=%s", s.settler.Mode()))
	return result, nil
}

// DeleteTransaction removes a sale and debits the fees it credited.
func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	if _, err := requireStaff(ctx); err != nil {
		return err
	}
	return s.settler.Guard(ctx, []string{settlement.TransactionKey(id)}, func(ctx context.Context) error {
		tx, err := s.repo.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := s.settler.TransactionDeleted(ctx, *tx); err != nil {
			return fmt.Errorf("settle transaction %s: %w", id, err)
		}
		if err := s.repo.DeleteTransaction(ctx, id); err != nil {
			if undoErr := s.settler.TransactionCreated(ctx, *tx); undoErr != nil {
				s.log.WithError(undoErr).WithField("transaction_id", id).Error("could not restore fees after failed delete")
			}
			return err
		}
		s.reports.Invalidate(ctx)
		s.logAudit(ctx, "transaction_delete", "transaction", id, fmt.Sprintf("grand_total=%d", tx.GrandTotal))
		return nil
	})
}

func (s *Service) ListTransactionItems(ctx context.Context, transactionID string) ([]domain.TransactionItem, error) {
	if _, err := requireStaff(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListTransactionItems(ctx, domain.TransactionItemFilter{TransactionID: transactionID})
}

func (s *Service) GetTransactionItem(ctx context.Context, id int64) (domain.TransactionItem, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.TransactionItem{}, err
	}
	item, err := s.repo.GetTransactionItem(ctx, id)
	if err != nil {
		return domain.TransactionItem{}, err
	}
	return *item, nil
}

// CreateTransactionItem adds a line to an existing sale and credits its fee.
// The parent's sub_total and grand_total are left as recorded.
func (s *Service) CreateTransactionItem(ctx context.Context, req domain.TransactionItemCreateRequest) (domain.TransactionItem, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.TransactionItem{}, err
	}

	var result domain.TransactionItem
	err := s.settler.Guard(ctx, []string{settlement.TransactionKey(req.TransactionID)}, func(ctx context.Context) error {
		if _, err := s.repo.GetTransaction(ctx, req.TransactionID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fieldError(fmt.Sprintf("Invalid pk %q - object does not exist.", req.TransactionID), "transaction")
			}
			return err
		}
		items, err := s.prepareItems(ctx, []domain.TransactionItem{{
			TransactionID: req.TransactionID,
			VendorItemID:  req.VendorItemID,
			Price:         req.Price,
			Quantity:      req.Quantity,
		}})
		if err != nil {
			return err
		}
		created, err := s.repo.CreateTransactionItem(ctx, items[0])
		if err != nil {
			return err
		}
		if err := s.settler.ItemCreated(ctx, *created); err != nil {
			if delErr := s.repo.DeleteTransactionItem(ctx, created.ID); delErr != nil {
				s.log.WithError(delErr).WithField("item_id", created.ID).Error("unsettled line item could not be removed")
			}
			return fmt.Errorf("settle item %d: %w", created.ID, err)
		}
		result = *created
		return nil
	})
	if err != nil {
		return domain.TransactionItem{}, err
	}
	s.reports.Invalidate(ctx)
	return result, nil
}

// UpdateTransactionItem reverses the line's previous fee and credits the new one.
func (s *Service) UpdateTransactionItem(ctx context.Context, id int64, req domain.TransactionItemUpdateRequest) (domain.TransactionItem, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.TransactionItem{}, err
	}
	current, err := s.repo.GetTransactionItem(ctx, id)
	if err != nil {
		return domain.TransactionItem{}, err
	}

	var result domain.TransactionItem
	err = s.settler.Guard(ctx, []string{settlement.TransactionKey(current.TransactionID)}, func(ctx context.Context) error {
		before, err := s.repo.GetTransactionItem(ctx, id)
		if err != nil {
			return err
		}
		next := *before
		if req.VendorItemID != nil {
			next.VendorItemID = req.VendorItemID
		}
		if req.Price != nil {
			next.Price = *req.Price
		}
		if req.Quantity != nil {
			next.Quantity = *req.Quantity
		}
		items, err := s.prepareItems(ctx, []domain.TransactionItem{next})
		if err != nil {
			return err
		}
		after, err := s.repo.UpdateTransactionItem(ctx, items[0])
		if err != nil {
			return err
		}
		if err := s.settler.ItemUpdated(ctx, *before, *after); err != nil {
			return fmt.Errorf("settle item %d: %w", id, err)
		}
		result = *after
		return nil
	})
	if err != nil {
		return domain.TransactionItem{}, err
	}
	s.reports.Invalidate(ctx)
	return result, nil
}

// DeleteTransactionItem removes a line and debits its fee.
func (s *Service) DeleteTransactionItem(ctx context.Context, id int64) error {
	if _, err := requireStaff(ctx); err != nil {
		return err
	}
	current, err := s.repo.GetTransactionItem(ctx, id)
	if err != nil {
		return err
	}
	err = s.settler.Guard(ctx, []string{settlement.TransactionKey(current.TransactionID)}, func(ctx context.Context) error {
		item, err := s.repo.GetTransactionItem(ctx, id)
		if err != nil {
			return err
		}
		if err := s.settler.ItemDeleted(ctx, *item); err != nil {
			return fmt.Errorf("settle item %d: %w", id, err)
		}
		if err := s.repo.DeleteTransactionItem(ctx, id); err != nil {
			if undoErr := s.settler.ItemCreated(ctx, *item); undoErr != nil {
				s.log.WithError(undoErr).WithField("item_id", id).Error("could not restore fee after failed delete")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.reports.Invalidate(ctx)
	return nil
}

// prepareItems resolves vendor items and their vendors, then recomputes the
// derived fields of every line. An unknown vendor item is rejected.
func (s *Service) prepareItems(ctx context.Context, lines []domain.TransactionItem) ([]domain.TransactionItem, error) {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if line.VendorItemID != nil {
			ids = append(ids, *line.VendorItemID)
		}
	}

	vendorItems := map[int64]domain.VendorItem{}
	vendors := map[int64]*domain.Vendor{}
	if len(ids) > 0 {
		var err error
		if vendorItems, err = s.repo.GetVendorItemsByIDs(ctx, ids); err != nil {
			return nil, err
		}
		for _, vi := range vendorItems {
			if _, seen := vendors[vi.VendorID]; seen {
				continue
			}
			vendor, err := s.repo.GetVendor(ctx, vi.VendorID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			vendors[vi.VendorID] = vendor
		}
	}

	prepared := make([]domain.TransactionItem, 0, len(lines))
	for i, line := range lines {
		if line.VendorItemID == nil {
			item := ledger.PrepareItem(line, nil, nil)
			if line.ID != 0 {
				// stored line whose vendor item is gone: keep its snapshots
				item.Name, item.SoldBy = line.Name, line.SoldBy
			}
			prepared = append(prepared, item)
			continue
		}
		vi, ok := vendorItems[*line.VendorItemID]
		if !ok {
			return nil, fieldError(fmt.Sprintf("Invalid pk %q - object does not exist.", fmt.Sprint(*line.VendorItemID)), "items", fmt.Sprint(i), "vendor_item")
		}
		prepared = append(prepared, ledger.PrepareItem(line, &vi, vendors[vi.VendorID]))
	}
	return prepared, nil
}
