package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"vendormall/backend/internal/domain"
)

func TestVendorItemDeleteKeepsLineSnapshots(t *testing.T) {
	databaseURL := os.Getenv("VENDORMALL_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set VENDORMALL_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stamp := time.Now().UnixNano()
	user, err := s.CreateUser(ctx, domain.User{Email: fmt.Sprintf("it-%d@example.com", stamp), Name: "Integration Owner"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	vendor, err := s.CreateVendor(ctx, domain.Vendor{UserID: &user.ID, StoreName: "IT Booth"})
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	t.Cleanup(func() {
		_ = s.DeleteVendor(ctx, vendor.ID)
		_ = s.DeleteUser(ctx, user.ID)
	})

	item, err := s.CreateVendorItem(ctx, domain.VendorItem{VendorID: vendor.ID, Name: "IT Mug", Price: 2000})
	if err != nil {
		t.Fatalf("create vendor item: %v", err)
	}
	tx, err := s.CreateTransaction(ctx, domain.Transaction{
		SubTotal:      4000,
		PaymentMethod: domain.PaymentCash,
		GrandTotal:    4000,
		Items: []domain.TransactionItem{{
			VendorItemID: &item.ID, Price: 2000, Quantity: 2, Total: 4000, VendorFee: 200, SoldBy: "IT Booth", Name: "IT Mug",
		}},
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	t.Cleanup(func() {
		_ = s.DeleteTransaction(ctx, tx.ID)
	})

	balance, err := s.AdjustVendorBalance(ctx, vendor.ID, 200)
	if err != nil {
		t.Fatalf("adjust balance: %v", err)
	}
	if balance != 200 {
		t.Fatalf("expected balance 200, got %d", balance)
	}

	week := domain.TimeRange{From: tx.Date.Add(-time.Hour), To: tx.Date.Add(time.Hour)}
	leaders, err := s.TopItems(ctx, week, 10)
	if err != nil {
		t.Fatalf("top items: %v", err)
	}
	found := false
	for _, l := range leaders {
		if l.ID == item.ID && l.ItemsSold == 2 && l.TotalAmount == 4000 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %d in top items, got %+v", item.ID, leaders)
	}

	if err := s.DeleteVendorItem(ctx, item.ID); err != nil {
		t.Fatalf("delete vendor item: %v", err)
	}
	reloaded, err := s.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("reload transaction: %v", err)
	}
	if len(reloaded.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(reloaded.Items))
	}
	line := reloaded.Items[0]
	if line.VendorItemID != nil {
		t.Fatalf("expected null vendor item reference, got %d", *line.VendorItemID)
	}
	if line.Name != "IT Mug" || line.SoldBy != "IT Booth" {
		t.Fatalf("expected snapshots to survive, got name=%q sold_by=%q", line.Name, line.SoldBy)
	}
}
