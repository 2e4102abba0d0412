// Package settlement keeps vendor balances in step with sales and payouts.
// A sale credits the vendor fee of every line item that references a vendor
// item; deleting the sale debits it again. Payments and booth charges debit
// the balance, balance payments credit it, and deleting any of them reverses
// that. Balances may go negative.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/lock"
	"vendormall/backend/internal/store"
)

type UpdateMode string

const (
	// UpdateAdditive credits every referenced item's fee again on each
	// transaction update without reversing the earlier credit.
	UpdateAdditive UpdateMode = "additive"
	// UpdateCorrective debits the fees recorded before the update and credits
	// the fees after it, so only the net change reaches the balance.
	UpdateCorrective UpdateMode = "corrective"
)

func ParseUpdateMode(raw string) (UpdateMode, error) {
	switch UpdateMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", UpdateAdditive:
		return UpdateAdditive, nil
	case UpdateCorrective:
		return UpdateCorrective, nil
	default:
		return "", fmt.Errorf("unknown settlement update mode %q", raw)
	}
}

type BalanceStore interface {
	AdjustVendorBalance(ctx context.Context, vendorID int64, delta int64) (int64, error)
	VendorIDsForItems(ctx context.Context, vendorItemIDs []int64) (map[int64]int64, error)
}

type Settler struct {
	balances BalanceStore
	locker   lock.Locker
	mode     UpdateMode
	log      logrus.FieldLogger
}

func New(balances BalanceStore, locker lock.Locker, mode UpdateMode, logger logrus.FieldLogger) *Settler {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if mode == "" {
		mode = UpdateAdditive
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Settler{
		balances: balances,
		locker:   locker,
		mode:     mode,
		log:      logger.WithField("component", "settlement"),
	}
}

func (s *Settler) Mode() UpdateMode {
	return s.mode
}

func TransactionKey(id string) string {
	return "settlement:transaction:" + id
}

func PaymentKey(id int64) string {
	return fmt.Sprintf("settlement:payment:%d", id)
}

func BoothChargeKey(id int64) string {
	return fmt.Sprintf("settlement:booth-charge:%d", id)
}

func BalancePaymentKey(id int64) string {
	return fmt.Sprintf("settlement:balance-payment:%d", id)
}

// Guard runs fn while holding the locks for keys. Callers wrap any
// read-then-settle sequence so two requests cannot settle the same record
// from the same stale snapshot.
func (s *Settler) Guard(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	leases := make([]lock.Lease, 0, len(keys))
	defer func() {
		for i := len(leases) - 1; i >= 0; i-- {
			if err := leases[i].Release(context.WithoutCancel(ctx)); err != nil {
				s.log.WithError(err).Warn("release settlement lock")
			}
		}
	}()

	for _, key := range keys {
		lease, err := s.locker.Acquire(ctx, key)
		if err != nil {
			s.log.WithError(err).WithField("key", key).Warn("settlement lock contention")
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		leases = append(leases, lease)
	}
	return fn(ctx)
}

func (s *Settler) TransactionCreated(ctx context.Context, tx domain.Transaction) error {
	deltas, err := s.feeDeltas(ctx, nil, tx.Items, 1)
	if err != nil {
		return err
	}
	return s.apply(ctx, deltas, "transaction_created", tx.ID)
}

func (s *Settler) TransactionUpdated(ctx context.Context, before, after domain.Transaction) error {
	deltas := make(map[int64]int64)
	var err error
	if s.mode == UpdateCorrective {
		if deltas, err = s.feeDeltas(ctx, deltas, before.Items, -1); err != nil {
			return err
		}
	}
	if deltas, err = s.feeDeltas(ctx, deltas, after.Items, 1); err != nil {
		return err
	}
	return s.apply(ctx, deltas, "transaction_updated", after.ID)
}

func (s *Settler) TransactionDeleted(ctx context.Context, tx domain.Transaction) error {
	deltas, err := s.feeDeltas(ctx, nil, tx.Items, -1)
	if err != nil {
		return err
	}
	return s.apply(ctx, deltas, "transaction_deleted", tx.ID)
}

func (s *Settler) ItemCreated(ctx context.Context, item domain.TransactionItem) error {
	deltas, err := s.feeDeltas(ctx, nil, []domain.TransactionItem{item}, 1)
	if err != nil {
		return err
	}
	return s.apply(ctx, deltas, "item_created", item.TransactionID)
}

func (s *Settler) ItemUpdated(ctx context.Context, before, after domain.TransactionItem) error {
	deltas, err := s.feeDeltas(ctx, nil, []domain.TransactionItem{before}, -1)
	if err != nil {
		return err
	}
	if deltas, err = s.feeDeltas(ctx, deltas, []domain.TransactionItem{after}, 1); err != nil {
		return err
	}
	return s.apply(ctx, deltas, "item_updated", after.TransactionID)
}

func (s *Settler) ItemDeleted(ctx context.Context, item domain.TransactionItem) error {
	deltas, err := s.feeDeltas(ctx, nil, []domain.TransactionItem{item}, -1)
	if err != nil {
		return err
	}
	return s.apply(ctx, deltas, "item_deleted", item.TransactionID)
}

func (s *Settler) PaymentCreated(ctx context.Context, payment domain.VendorPayment) error {
	return s.apply(ctx, map[int64]int64{payment.VendorID: -payment.Amount}, "payment_created", fmt.Sprint(payment.ID))
}

func (s *Settler) PaymentDeleted(ctx context.Context, payment domain.VendorPayment) error {
	return s.apply(ctx, map[int64]int64{payment.VendorID: payment.Amount}, "payment_deleted", fmt.Sprint(payment.ID))
}

func (s *Settler) BoothChargeCreated(ctx context.Context, charge domain.BoothCharge) error {
	return s.apply(ctx, map[int64]int64{charge.VendorID: -charge.Amount}, "booth_charge_created", fmt.Sprint(charge.ID))
}

// BoothChargeUpdated moves the balance by the difference between the old and
// the new amount.
func (s *Settler) BoothChargeUpdated(ctx context.Context, before, after domain.BoothCharge) error {
	deltas := map[int64]int64{before.VendorID: before.Amount}
	deltas[after.VendorID] -= after.Amount
	return s.apply(ctx, deltas, "booth_charge_updated", fmt.Sprint(after.ID))
}

func (s *Settler) BoothChargeDeleted(ctx context.Context, charge domain.BoothCharge) error {
	return s.apply(ctx, map[int64]int64{charge.VendorID: charge.Amount}, "booth_charge_deleted", fmt.Sprint(charge.ID))
}

func (s *Settler) BalancePaymentCreated(ctx context.Context, payment domain.BalancePayment) error {
	return s.apply(ctx, map[int64]int64{payment.VendorID: payment.Amount}, "balance_payment_created", fmt.Sprint(payment.ID))
}

func (s *Settler) BalancePaymentUpdated(ctx context.Context, before, after domain.BalancePayment) error {
	deltas := map[int64]int64{before.VendorID: -before.Amount}
	deltas[after.VendorID] += after.Amount
	return s.apply(ctx, deltas, "balance_payment_updated", fmt.Sprint(after.ID))
}

func (s *Settler) BalancePaymentDeleted(ctx context.Context, payment domain.BalancePayment) error {
	return s.apply(ctx, map[int64]int64{payment.VendorID: -payment.Amount}, "balance_payment_deleted", fmt.Sprint(payment.ID))
}

// feeDeltas adds sign*fee for every item with a vendor item reference into
// deltas, keyed by the owning vendor.
func (s *Settler) feeDeltas(ctx context.Context, deltas map[int64]int64, items []domain.TransactionItem, sign int64) (map[int64]int64, error) {
	if deltas == nil {
		deltas = make(map[int64]int64)
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if item.VendorItemID != nil {
			ids = append(ids, *item.VendorItemID)
		}
	}
	if len(ids) == 0 {
		return deltas, nil
	}

	owners, err := s.balances.VendorIDsForItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve vendors: %w", err)
	}
	for _, item := range items {
		if item.VendorItemID == nil {
			continue
		}
		vendorID, ok := owners[*item.VendorItemID]
		if !ok {
			continue
		}
		deltas[vendorID] += sign * item.VendorFee
	}
	return deltas, nil
}

// apply adjusts every vendor in deltas. When one adjustment fails the ones
// already made are reversed, so an event either settles fully or not at all.
func (s *Settler) apply(ctx context.Context, deltas map[int64]int64, reason string, ref string) error {
	vendorIDs := make([]int64, 0, len(deltas))
	for id, delta := range deltas {
		if delta != 0 {
			vendorIDs = append(vendorIDs, id)
		}
	}
	slices.Sort(vendorIDs)

	applied := make([]int64, 0, len(vendorIDs))
	for _, vendorID := range vendorIDs {
		delta := deltas[vendorID]
		balance, err := s.balances.AdjustVendorBalance(ctx, vendorID, delta)
		if errors.Is(err, store.ErrNotFound) {
			s.log.WithFields(logrus.Fields{"vendor_id": vendorID, "reason": reason, "ref": ref}).Warn("vendor vanished before settlement")
			continue
		}
		if err != nil {
			s.revert(ctx, deltas, applied, reason, ref)
			return fmt.Errorf("adjust vendor %d balance: %w", vendorID, err)
		}
		applied = append(applied, vendorID)
		s.log.WithFields(logrus.Fields{
			"vendor_id": vendorID,
			"delta":     delta,
			"balance":   balance,
			"reason":    reason,
			"ref":       ref,
		}).Debug("balance adjusted")
	}
	return nil
}

func (s *Settler) revert(ctx context.Context, deltas map[int64]int64, applied []int64, reason string, ref string) {
	ctx = context.WithoutCancel(ctx)
	for _, vendorID := range applied {
		if _, err := s.balances.AdjustVendorBalance(ctx, vendorID, -deltas[vendorID]); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"vendor_id": vendorID,
				"delta":     -deltas[vendorID],
				"reason":    reason,
				"ref":       ref,
			}).Error("could not revert partial settlement")
		}
	}
}
