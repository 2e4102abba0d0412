package service

import (
	"context"

	"vendormall/backend/internal/domain"
)

func (s *Service) TopVendors(ctx context.Context) (domain.SalesLeaders, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.SalesLeaders{}, err
	}
	return s.reports.TopVendors(ctx)
}

func (s *Service) TopItems(ctx context.Context) (domain.SalesLeaders, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.SalesLeaders{}, err
	}
	return s.reports.TopItems(ctx)
}

func (s *Service) TransactionSummary(ctx context.Context, period string) (domain.TransactionSummary, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.TransactionSummary{}, err
	}
	return s.reports.Summary(ctx, period)
}

func (s *Service) MonthlyTransactionSummary(ctx context.Context, year, month int) (domain.TransactionSummary, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.TransactionSummary{}, err
	}
	return s.reports.MonthSummary(ctx, year, month)
}

// MonthlyStatement covers every vendor for staff and only the caller's own
// vendor otherwise.
func (s *Service) MonthlyStatement(ctx context.Context, year, month int) (domain.MonthlyStatement, error) {
	scope, ok, err := s.vendorScope(ctx)
	if err != nil {
		return domain.MonthlyStatement{}, err
	}
	if !ok {
		// vendor ids start at 1, so this selects nobody
		scope = new(int64)
	}
	return s.reports.MonthlyStatement(ctx, year, month, scope)
}
