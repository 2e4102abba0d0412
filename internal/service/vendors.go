package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/report"
	"vendormall/backend/internal/settlement"
	"vendormall/backend/internal/store"
)

const duplicateEmailMessage = "A user with that email already exists"

func (s *Service) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	filter := domain.VendorFilter{}
	if !actor.IsStaff {
		filter.UserID = &actor.UserID
	}
	vendors, err := s.repo.ListVendors(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range vendors {
		if err := s.hydrateVendor(ctx, &vendors[i]); err != nil {
			return nil, err
		}
	}
	return vendors, nil
}

func (s *Service) GetVendor(ctx context.Context, id int64) (domain.Vendor, error) {
	vendor, err := s.scopedVendor(ctx, id)
	if err != nil {
		return domain.Vendor{}, err
	}
	if err := s.hydrateVendor(ctx, vendor); err != nil {
		return domain.Vendor{}, err
	}
	return *vendor, nil
}

// MyVendor returns the vendor owned by the caller.
func (s *Service) MyVendor(ctx context.Context) (domain.Vendor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Vendor{}, err
	}
	vendor, err := s.repo.GetVendorByUserID(ctx, actor.UserID)
	if err != nil {
		return domain.Vendor{}, err
	}
	if err := s.hydrateVendor(ctx, vendor); err != nil {
		return domain.Vendor{}, err
	}
	return *vendor, nil
}

// scopedVendor loads a vendor the caller may see. Other vendors look absent
// to non-staff callers.
func (s *Service) scopedVendor(ctx context.Context, id int64) (*domain.Vendor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	vendor, err := s.repo.GetVendor(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff && (vendor.UserID == nil || *vendor.UserID != actor.UserID) {
		return nil, store.ErrNotFound
	}
	return vendor, nil
}

func (s *Service) hydrateVendor(ctx context.Context, vendor *domain.Vendor) error {
	items, err := s.repo.ListVendorItems(ctx, domain.VendorItemFilter{VendorID: &vendor.ID})
	if err != nil {
		return fmt.Errorf("vendor %d items: %w", vendor.ID, err)
	}
	payments, err := s.repo.ListVendorPayments(ctx, domain.VendorPaymentFilter{VendorID: &vendor.ID})
	if err != nil {
		return fmt.Errorf("vendor %d payments: %w", vendor.ID, err)
	}
	_, _, year := report.Windows(s.now(), s.reports.Location())
	ytd, err := s.repo.SumVendorSales(ctx, vendor.ID, year)
	if err != nil {
		return fmt.Errorf("vendor %d sales: %w", vendor.ID, err)
	}
	vendor.Items = items
	vendor.Payments = payments
	vendor.YTDSales = ytd
	return nil
}

// CreateVendor attaches the vendor to the user with the given email, creating
// that user first when none exists.
func (s *Service) CreateVendor(ctx context.Context, req domain.VendorCreateRequest) (domain.Vendor, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.Vendor{}, err
	}

	email := ""
	if req.User.Email != nil {
		email = normalizeEmail(*req.User.Email)
	}
	if email == "" {
		return domain.Vendor{}, fieldError("This field is required.", "user", "email")
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		user, err = s.createVendorUser(ctx, email, req.User)
	}
	if err != nil {
		return domain.Vendor{}, err
	}

	vendor := domain.Vendor{
		StoreName:     strings.TrimSpace(req.StoreName),
		StreetAddress: strings.TrimSpace(req.StreetAddress),
		City:          strings.TrimSpace(req.City),
		State:         strings.TrimSpace(req.State),
		PostalCode:    strings.TrimSpace(req.PostalCode),
		Balance:       req.Balance,
		UserID:        &user.ID,
	}
	if req.ID != nil {
		vendor.ID = *req.ID
	}

	created, err := s.repo.CreateVendor(ctx, vendor)
	if errors.Is(err, store.ErrConflict) {
		if req.ID != nil {
			if _, lookupErr := s.repo.GetVendor(ctx, *req.ID); lookupErr == nil {
				return domain.Vendor{}, fieldError("vendor with this id already exists.", "id")
			}
		}
		return domain.Vendor{}, fieldError("This user already owns a vendor.", "user")
	}
	if err != nil {
		return domain.Vendor{}, err
	}

	s.logAudit(ctx, "vendor_create", "vendor", created.ID, "user="+user.Email)
	if err := s.hydrateVendor(ctx, created); err != nil {
		return domain.Vendor{}, err
	}
	return *created, nil
}

func (s *Service) createVendorUser(ctx context.Context, email string, in domain.VendorUserInput) (*domain.User, error) {
	user := domain.User{Email: email}
	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
	}
	if in.Password != nil && *in.Password != "" {
		hash, err := hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	created, err := s.repo.CreateUser(ctx, user)
	if errors.Is(err, store.ErrConflict) {
		return nil, fieldError(duplicateEmailMessage, "user", "email")
	}
	return created, err
}

func (s *Service) UpdateVendor(ctx context.Context, id int64, req domain.VendorUpdateRequest) (domain.Vendor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Vendor{}, err
	}
	vendor, err := s.scopedVendor(ctx, id)
	if err != nil {
		return domain.Vendor{}, err
	}

	if req.User != nil {
		if err := s.updateVendorUser(ctx, vendor, *req.User); err != nil {
			return domain.Vendor{}, err
		}
	}

	applyString(&vendor.StoreName, req.StoreName)
	applyString(&vendor.StreetAddress, req.StreetAddress)
	applyString(&vendor.City, req.City)
	applyString(&vendor.State, req.State)
	applyString(&vendor.PostalCode, req.PostalCode)

	updated, err := s.repo.UpdateVendor(ctx, *vendor)
	if err != nil {
		return domain.Vendor{}, err
	}
	// The override is the change from the balance this request read, so fees
	// settled while it ran are kept.
	if req.Balance != nil && actor.IsStaff && *req.Balance != vendor.Balance {
		delta := *req.Balance - vendor.Balance
		s.log.WithFields(logrus.Fields{
			"vendor_id": updated.ID,
			"from":      vendor.Balance,
			"to":        *req.Balance,
		}).Warn("vendor balance overridden outside settlement")
		balance, err := s.repo.AdjustVendorBalance(ctx, updated.ID, delta)
		if err != nil {
			return domain.Vendor{}, fmt.Errorf("override vendor %d balance: %w", updated.ID, err)
		}
		updated.Balance = balance
	}
	s.reports.Invalidate(ctx)
	s.logAudit(ctx, "vendor_update", "vendor", updated.ID, "")
	if err := s.hydrateVendor(ctx, updated); err != nil {
		return domain.Vendor{}, err
	}
	return *updated, nil
}

func (s *Service) updateVendorUser(ctx context.Context, vendor *domain.Vendor, in domain.VendorUserInput) error {
	if vendor.UserID == nil {
		return fieldError("This vendor has no user account.", "user")
	}
	user, err := s.repo.GetUserByID(ctx, *vendor.UserID)
	if err != nil {
		return err
	}

	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if email != "" && !strings.EqualFold(email, user.Email) {
			if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
				return fieldError(duplicateEmailMessage, "user", "email")
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			user.Email = email
		}
	}
	applyString(&user.Name, in.Name)
	applyString(&user.PhoneNumber, in.PhoneNumber)

	if _, err := s.repo.UpdateUser(ctx, *user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fieldError(duplicateEmailMessage, "user", "email")
		}
		return err
	}
	if in.Password != nil && *in.Password != "" {
		hash, err := hashPassword(*in.Password)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateUserPassword(ctx, user.ID, hash); err != nil {
			return err
		}
	}
	return nil
}

// DeleteVendor removes the vendor together with its owning user account.
func (s *Service) DeleteVendor(ctx context.Context, id int64) error {
	if _, err := requireStaff(ctx); err != nil {
		return err
	}
	vendor, err := s.repo.GetVendor(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteVendor(ctx, id); err != nil {
		return err
	}
	if vendor.UserID != nil {
		if err := s.repo.DeleteUser(ctx, *vendor.UserID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete vendor user: %w", err)
		}
	}
	s.reports.Invalidate(ctx)
	s.logAudit(ctx, "vendor_delete", "vendor", id, "")
	return nil
}

func (s *Service) ListVendorItems(ctx context.Context) ([]domain.VendorItem, error) {
	filter, ok, err := s.vendorScope(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.VendorItem{}, nil
	}
	return s.repo.ListVendorItems(ctx, domain.VendorItemFilter{VendorID: filter})
}

// vendorScope returns nil for staff, the caller's vendor id otherwise. ok is
// false when a non-staff caller owns no vendor.
func (s *Service) vendorScope(ctx context.Context) (*int64, bool, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, false, err
	}
	if actor.IsStaff {
		return nil, true, nil
	}
	vendor, err := s.repo.GetVendorByUserID(ctx, actor.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &vendor.ID, true, nil
}

func (s *Service) GetVendorItem(ctx context.Context, id int64) (domain.VendorItem, error) {
	item, err := s.scopedVendorItem(ctx, id)
	if err != nil {
		return domain.VendorItem{}, err
	}
	return *item, nil
}

func (s *Service) scopedVendorItem(ctx context.Context, id int64) (*domain.VendorItem, error) {
	scope, ok, err := s.vendorScope(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}
	item, err := s.repo.GetVendorItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if scope != nil && item.VendorID != *scope {
		return nil, store.ErrNotFound
	}
	return item, nil
}

func (s *Service) CreateVendorItem(ctx context.Context, req domain.VendorItemCreateRequest) (domain.VendorItem, error) {
	scope, ok, err := s.vendorScope(ctx)
	if err != nil {
		return domain.VendorItem{}, err
	}
	if !ok {
		return domain.VendorItem{}, ErrForbidden
	}
	vendorID := req.VendorID
	if scope != nil {
		vendorID = *scope
	}
	if vendorID == 0 {
		return domain.VendorItem{}, fieldError("This field is required.", "vendor")
	}

	created, err := s.repo.CreateVendorItem(ctx, domain.VendorItem{
		VendorID: vendorID,
		Name:     strings.TrimSpace(req.Name),
		Price:    req.Price,
	})
	if errors.Is(err, store.ErrInvalid) {
		return domain.VendorItem{}, invalidVendor(vendorID)
	}
	if err != nil {
		return domain.VendorItem{}, err
	}
	s.logAudit(ctx, "vendor_item_create", "vendor_item", created.ID, created.Name)
	return *created, nil
}

func (s *Service) UpdateVendorItem(ctx context.Context, id int64, req domain.VendorItemUpdateRequest) (domain.VendorItem, error) {
	item, err := s.scopedVendorItem(ctx, id)
	if err != nil {
		return domain.VendorItem{}, err
	}
	if req.Name != nil {
		item.Name = strings.TrimSpace(*req.Name)
	}
	if req.Price != nil {
		item.Price = *req.Price
	}
	updated, err := s.repo.UpdateVendorItem(ctx, *item)
	if err != nil {
		return domain.VendorItem{}, err
	}
	s.reports.Invalidate(ctx)
	return *updated, nil
}

// DeleteVendorItem keeps historical line items; they lose the reference but
// retain their name and sold_by snapshots.
func (s *Service) DeleteVendorItem(ctx context.Context, id int64) error {
	if _, err := s.scopedVendorItem(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteVendorItem(ctx, id); err != nil {
		return err
	}
	s.reports.Invalidate(ctx)
	s.logAudit(ctx, "vendor_item_delete", "vendor_item", id, "")
	return nil
}

func (s *Service) ListVendorPayments(ctx context.Context) ([]domain.VendorPayment, error) {
	scope, ok, err := s.vendorScope(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.VendorPayment{}, nil
	}
	return s.repo.ListVendorPayments(ctx, domain.VendorPaymentFilter{VendorID: scope})
}

func (s *Service) GetVendorPayment(ctx context.Context, id int64) (domain.VendorPayment, error) {
	scope, ok, err := s.vendorScope(ctx)
	if err != nil {
		return domain.VendorPayment{}, err
	}
	if !ok {
		return domain.VendorPayment{}, store.ErrNotFound
	}
	payment, err := s.repo.GetVendorPayment(ctx, id)
	if err != nil {
		return domain.VendorPayment{}, err
	}
	if scope != nil && payment.VendorID != *scope {
		return domain.VendorPayment{}, store.ErrNotFound
	}
	return *payment, nil
}

// CreateVendorPayment records a payout and debits the vendor balance.
func (s *Service) CreateVendorPayment(ctx context.Context, req domain.VendorPaymentCreateRequest) (domain.VendorPayment, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.VendorPayment{}, err
	}
	created, err := s.repo.CreateVendorPayment(ctx, domain.VendorPayment{VendorID: req.VendorID, Amount: req.Amount})
	if errors.Is(err, store.ErrInvalid) {
		return domain.VendorPayment{}, invalidVendor(req.VendorID)
	}
	if err != nil {
		return domain.VendorPayment{}, err
	}
	if err := s.settler.PaymentCreated(ctx, *created); err != nil {
		if delErr := s.repo.DeleteVendorPayment(context.WithoutCancel(ctx), created.ID); delErr != nil {
			s.log.WithError(delErr).WithField("vendor_payment_id", created.ID).Error("could not remove unsettled payout")
		}
		return domain.VendorPayment{}, fmt.Errorf("settle payment %d: %w", created.ID, err)
	}
	s.logAudit(ctx, "vendor_payment_create", "vendor_payment", created.ID, fmt.Sprintf("vendor=%d,amount=%d", created.VendorID, created.Amount))
	return *created, nil
}

// DeleteVendorPayment removes a payout and credits the amount back.
func (s *Service) DeleteVendorPayment(ctx context.Context, id int64) error {
	if _, err := requireStaff(ctx); err != nil {
		return err
	}
	return s.settler.Guard(ctx, []string{settlement.PaymentKey(id)}, func(ctx context.Context) error {
		payment, err := s.repo.GetVendorPayment(ctx, id)
		if err != nil {
			return err
		}
		if err := s.settler.PaymentDeleted(ctx, *payment); err != nil {
			return fmt.Errorf("settle payment %d: %w", id, err)
		}
		if err := s.repo.DeleteVendorPayment(ctx, id); err != nil {
			if undoErr := s.settler.PaymentCreated(ctx, *payment); undoErr != nil {
				s.log.WithError(undoErr).WithField("vendor_payment_id", id).Error("could not restore payout after failed delete")
			}
			return err
		}
		s.logAudit(ctx, "vendor_payment_delete", "vendor_payment", id, fmt.Sprintf("vendor=%d,amount=%d", payment.VendorID, payment.Amount))
		return nil
	})
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
