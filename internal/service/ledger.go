package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/settlement"
	"vendormall/backend/internal/store"
)

func invalidVendor(vendorID int64) error {
	return fieldError(fmt.Sprintf("Invalid pk %q - object does not exist.", fmt.Sprint(vendorID)), "vendor")
}

func (s *Service) ListBoothCharges(ctx context.Context) ([]domain.BoothCharge, error) {
	scope, ok, err := s.vendorScope(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.BoothCharge{}, nil
	}
	return s.repo.ListBoothCharges(ctx, domain.BoothChargeFilter{VendorID: scope})
}

func (s *Service) GetBoothCharge(ctx context.Context, id int64) (domain.BoothCharge, error) {
	scope, ok, err := s.vendorScope(ctx)
	if err != nil {
		return domain.BoothCharge{}, err
	}
	if !ok {
		return domain.BoothCharge{}, store.ErrNotFound
	}
	charge, err := s.repo.GetBoothCharge(ctx, id)
	if err != nil {
		return domain.BoothCharge{}, err
	}
	if scope != nil && charge.VendorID != *scope {
		return domain.BoothCharge{}, store.ErrNotFound
	}
	return *charge, nil
}

// CreateBoothCharge bills a month of booth rent and debits the vendor.
func (s *Service) CreateBoothCharge(ctx context.Context, req domain.BoothChargeCreateRequest) (domain.BoothCharge, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.BoothCharge{}, err
	}
	created, err := s.repo.CreateBoothCharge(ctx, domain.BoothCharge{
		VendorID: req.VendorID,
		Amount:   req.Amount,
		Year:     req.Year,
		Month:    req.Month,
	})
	if errors.Is(err, store.ErrInvalid) {
		return domain.BoothCharge{}, invalidVendor(req.VendorID)
	}
	if err != nil {
		return domain.BoothCharge{}, err
	}
	if err := s.settler.BoothChargeCreated(ctx, *created); err != nil {
		if delErr := s.repo.DeleteBoothCharge(context.WithoutCancel(ctx), created.ID); delErr != nil {
			s.log.WithError(delErr).WithField("booth_charge_id", created.ID).Error("could not remove unsettled booth charge")
		}
		return domain.BoothCharge{}, fmt.Errorf("settle booth charge %d: %w", created.ID, err)
	}
	s.logAudit(ctx, "booth_charge_create", "booth_charge", created.ID,
		fmt.Sprintf("vendor=%d,amount=%d,month=%04d-%02d", created.VendorID, created.Amount, created.Year, created.Month))
	return *created, nil
}

// UpdateBoothCharge moves the vendor balance by the difference between the
// old and new amounts.
func (s *Service) UpdateBoothCharge(ctx context.Context, id int64, req domain.BoothChargeUpdateRequest) (domain.BoothCharge, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.BoothCharge{}, err
	}

	var result domain.BoothCharge
	err := s.settler.Guard(ctx, []string{settlement.BoothChargeKey(id)}, func(ctx context.Context) error {
		before, err := s.repo.GetBoothCharge(ctx, id)
		if err != nil {
			return err
		}
		next := *before
		if req.Amount != nil {
			next.Amount = *req.Amount
		}
		if req.Year != nil {
			next.Year = *req.Year
		}
		if req.Month != nil {
			next.Month = *req.Month
		}
		after, err := s.repo.UpdateBoothCharge(ctx, next)
		if err != nil {
			return err
		}
		if err := s.settler.BoothChargeUpdated(ctx, *before, *after); err != nil {
			if _, undoErr := s.repo.UpdateBoothCharge(context.WithoutCancel(ctx), *before); undoErr != nil {
				s.log.WithError(undoErr).WithField("booth_charge_id", id).Error("could not restore booth charge")
			}
			return fmt.Errorf("settle booth charge %d: %w", id, err)
		}
		result = *after
		return nil
	})
	if err != nil {
		return domain.BoothCharge{}, err
	}
	s.logAudit(ctx, "booth_charge_update", "booth_charge", id, fmt.Sprintf("amount=%d", result.Amount))
	return result, nil
}

// DeleteBoothCharge credits the rent back before the record goes.
func (s *Service) DeleteBoothCharge(ctx context.Context, id int64) error {
	if _, err := requireStaff(ctx); err != nil {
		return err
	}
	return s.settler.Guard(ctx, []string{settlement.BoothChargeKey(id)}, func(ctx context.Context) error {
		charge, err := s.repo.GetBoothCharge(ctx, id)
		if err != nil {
			return err
		}
		if err := s.settler.BoothChargeDeleted(ctx, *charge); err != nil {
			return fmt.Errorf("settle booth charge %d: %w", id, err)
		}
		if err := s.repo.DeleteBoothCharge(ctx, id); err != nil {
			if undoErr := s.settler.BoothChargeCreated(ctx, *charge); undoErr != nil {
				s.log.WithError(undoErr).WithField("booth_charge_id", id).Error("could not restore rent after failed delete")
			}
			return err
		}
		s.logAudit(ctx, "booth_charge_delete", "booth_charge", id, fmt.Sprintf("vendor=%d,amount=%d", charge.VendorID, charge.Amount))
		return nil
	})
}

func (s *Service) ListBalancePayments(ctx context.Context) ([]domain.BalancePayment, error) {
	scope, ok, err := s.vendorScope(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.BalancePayment{}, nil
	}
	return s.repo.ListBalancePayments(ctx, domain.BalancePaymentFilter{VendorID: scope})
}

func (s *Service) GetBalancePayment(ctx context.Context, id int64) (domain.BalancePayment, error) {
	scope, ok, err := s.vendorScope(ctx)
	if err != nil {
		return domain.BalancePayment{}, err
	}
	if !ok {
		return domain.BalancePayment{}, store.ErrNotFound
	}
	payment, err := s.repo.GetBalancePayment(ctx, id)
	if err != nil {
		return domain.BalancePayment{}, err
	}
	if scope != nil && payment.VendorID != *scope {
		return domain.BalancePayment{}, store.ErrNotFound
	}
	return *payment, nil
}

// CreateBalancePayment records money received from a vendor and credits its
// balance.
func (s *Service) CreateBalancePayment(ctx context.Context, req domain.BalancePaymentCreateRequest) (domain.BalancePayment, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.BalancePayment{}, err
	}
	payment := domain.BalancePayment{
		VendorID:    req.VendorID,
		Amount:      req.Amount,
		Method:      req.Method,
		Description: strings.TrimSpace(req.Description),
	}
	if req.Date != nil {
		payment.Date = req.Date.UTC()
	}
	created, err := s.repo.CreateBalancePayment(ctx, payment)
	if errors.Is(err, store.ErrInvalid) {
		return domain.BalancePayment{}, invalidVendor(req.VendorID)
	}
	if err != nil {
		return domain.BalancePayment{}, err
	}
	if err := s.settler.BalancePaymentCreated(ctx, *created); err != nil {
		if delErr := s.repo.DeleteBalancePayment(context.WithoutCancel(ctx), created.ID); delErr != nil {
			s.log.WithError(delErr).WithField("balance_payment_id", created.ID).Error("could not remove unsettled balance payment")
		}
		return domain.BalancePayment{}, fmt.Errorf("settle balance payment %d: %w", created.ID, err)
	}
	s.logAudit(ctx, "balance_payment_create", "balance_payment", created.ID,
		fmt.Sprintf("vendor=%d,amount=%d,method=%s", created.VendorID, created.Amount, created.Method))
	return *created, nil
}

func (s *Service) UpdateBalancePayment(ctx context.Context, id int64, req domain.BalancePaymentUpdateRequest) (domain.BalancePayment, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.BalancePayment{}, err
	}

	var result domain.BalancePayment
	err := s.settler.Guard(ctx, []string{settlement.BalancePaymentKey(id)}, func(ctx context.Context) error {
		before, err := s.repo.GetBalancePayment(ctx, id)
		if err != nil {
			return err
		}
		next := *before
		if req.Amount != nil {
			next.Amount = *req.Amount
		}
		if req.Date != nil {
			next.Date = req.Date.UTC()
		}
		if req.Method != nil {
			next.Method = *req.Method
		}
		applyString(&next.Description, req.Description)
		after, err := s.repo.UpdateBalancePayment(ctx, next)
		if err != nil {
			return err
		}
		if err := s.settler.BalancePaymentUpdated(ctx, *before, *after); err != nil {
			if _, undoErr := s.repo.UpdateBalancePayment(context.WithoutCancel(ctx), *before); undoErr != nil {
				s.log.WithError(undoErr).WithField("balance_payment_id", id).Error("could not restore balance payment")
			}
			return fmt.Errorf("settle balance payment %d: %w", id, err)
		}
		result = *after
		return nil
	})
	if err != nil {
		return domain.BalancePayment{}, err
	}
	s.logAudit(ctx, "balance_payment_update", "balance_payment", id, fmt.Sprintf("amount=%d", result.Amount))
	return result, nil
}

// DeleteBalancePayment reverses the credit the payment gave.
func (s *Service) DeleteBalancePayment(ctx context.Context, id int64) error {
	if _, err := requireStaff(ctx); err != nil {
		return err
	}
	return s.settler.Guard(ctx, []string{settlement.BalancePaymentKey(id)}, func(ctx context.Context) error {
		payment, err := s.repo.GetBalancePayment(ctx, id)
		if err != nil {
			return err
		}
		if err := s.settler.BalancePaymentDeleted(ctx, *payment); err != nil {
			return fmt.Errorf("settle balance payment %d: %w", id, err)
		}
		if err := s.repo.DeleteBalancePayment(ctx, id); err != nil {
			if undoErr := s.settler.BalancePaymentCreated(ctx, *payment); undoErr != nil {
				s.log.WithError(undoErr).WithField("balance_payment_id", id).Error("could not restore credit after failed delete")
			}
			return err
		}
		s.logAudit(ctx, "balance_payment_delete", "balance_payment", id, fmt.Sprintf("vendor=%d,amount=%d", payment.VendorID, payment.Amount))
		return nil
	})
}
