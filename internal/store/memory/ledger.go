package memory

import (
	"context"
	"sort"
	"strings"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/store"
)

func (s *Store) ListBoothCharges(_ context.Context, filter domain.BoothChargeFilter) ([]domain.BoothCharge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	charges := make([]domain.BoothCharge, 0, len(s.charges))
	for _, c := range s.charges {
		if filter.VendorID != nil && c.VendorID != *filter.VendorID {
			continue
		}
		charges = append(charges, c)
	}
	sort.Slice(charges, func(i, j int) bool {
		mi := domain.BillingMonth(charges[i].Year, charges[i].Month)
		mj := domain.BillingMonth(charges[j].Year, charges[j].Month)
		if mi == mj {
			return charges[i].ID > charges[j].ID
		}
		return mi > mj
	})
	return charges, nil
}

func (s *Store) GetBoothCharge(_ context.Context, id int64) (*domain.BoothCharge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.charges[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateBoothCharge(_ context.Context, charge domain.BoothCharge) (*domain.BoothCharge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vendors[charge.VendorID]; !ok {
		return nil, store.ErrInvalid
	}
	s.nextChargeID++
	charge.ID = s.nextChargeID
	charge.CreatedAt = s.now()
	s.charges[charge.ID] = charge
	saved := charge
	return &saved, nil
}

// UpdateBoothCharge rewrites amount and billing month; the vendor is fixed.
func (s *Store) UpdateBoothCharge(_ context.Context, charge domain.BoothCharge) (*domain.BoothCharge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.charges[charge.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	existing.Amount = charge.Amount
	existing.Year = charge.Year
	existing.Month = charge.Month
	s.charges[charge.ID] = existing
	return &existing, nil
}

func (s *Store) DeleteBoothCharge(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.charges[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.charges, id)
	return nil
}

func (s *Store) ListBalancePayments(_ context.Context, filter domain.BalancePaymentFilter) ([]domain.BalancePayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.BalancePayment, 0, len(s.balancePays))
	for _, p := range s.balancePays {
		if filter.VendorID != nil && p.VendorID != *filter.VendorID {
			continue
		}
		payments = append(payments, p)
	}
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].Date.Equal(payments[j].Date) {
			return payments[i].ID > payments[j].ID
		}
		return payments[i].Date.After(payments[j].Date)
	})
	return payments, nil
}

func (s *Store) GetBalancePayment(_ context.Context, id int64) (*domain.BalancePayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.balancePays[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateBalancePayment(_ context.Context, payment domain.BalancePayment) (*domain.BalancePayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vendors[payment.VendorID]; !ok {
		return nil, store.ErrInvalid
	}
	s.nextBalPayID++
	payment.ID = s.nextBalPayID
	if payment.Date.IsZero() {
		payment.Date = s.now()
	}
	payment.Description = strings.TrimSpace(payment.Description)
	s.balancePays[payment.ID] = payment
	saved := payment
	return &saved, nil
}

func (s *Store) UpdateBalancePayment(_ context.Context, payment domain.BalancePayment) (*domain.BalancePayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.balancePays[payment.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	existing.Amount = payment.Amount
	if !payment.Date.IsZero() {
		existing.Date = payment.Date
	}
	existing.Method = payment.Method
	existing.Description = strings.TrimSpace(payment.Description)
	s.balancePays[payment.ID] = existing
	return &existing, nil
}

func (s *Store) DeleteBalancePayment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.balancePays[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.balancePays, id)
	return nil
}

// VendorActivity returns one entry per vendor, including vendors with no
// activity in the window.
func (s *Store) VendorActivity(_ context.Context, window domain.LedgerWindow) (map[int64]domain.VendorActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	activity := make(map[int64]domain.VendorActivity, len(s.vendors))
	for id := range s.vendors {
		activity[id] = domain.VendorActivity{VendorID: id}
	}

	for _, ti := range s.itemsInWindowLocked(window.Range) {
		vi, ok := s.vendorItems[*ti.VendorItemID]
		if !ok {
			continue
		}
		a := activity[vi.VendorID]
		a.ItemsSold += ti.Quantity
		a.Fees += ti.VendorFee
		switch s.transactions[ti.TransactionID].PaymentMethod {
		case domain.PaymentCard:
			a.CardSales += ti.Total
		default:
			a.CashSales += ti.Total
		}
		activity[vi.VendorID] = a
	}
	for _, p := range s.payments {
		if a, ok := activity[p.VendorID]; ok && window.Range.Contains(p.Date) {
			a.Payouts += p.Amount
			activity[p.VendorID] = a
		}
	}
	for _, c := range s.charges {
		billed := domain.BillingMonth(c.Year, c.Month)
		if a, ok := activity[c.VendorID]; ok && billed >= window.FromMonth && billed < window.ToMonth {
			a.BoothCharges += c.Amount
			activity[c.VendorID] = a
		}
	}
	for _, p := range s.balancePays {
		if a, ok := activity[p.VendorID]; ok && window.Range.Contains(p.Date) {
			a.BalancePayments += p.Amount
			activity[p.VendorID] = a
		}
	}
	return activity, nil
}
