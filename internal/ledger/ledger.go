// Package ledger holds the arithmetic that derives line totals, vendor fees
// and grand totals. Every function is pure; callers run PrepareItem and
// PrepareTransaction before persisting so stored values never drift from
// their inputs.
package ledger

import (
	"github.com/shopspring/decimal"

	"vendormall/backend/internal/domain"
)

// FeeRate is the share of each line total credited to the vendor.
var FeeRate = decimal.RequireFromString("0.05")

func ItemTotal(price, quantity int64) int64 {
	return price * quantity
}

// VendorFee truncates toward zero, so a total of 99 yields 4.
func VendorFee(total int64) int64 {
	return decimal.NewFromInt(total).Mul(FeeRate).IntPart()
}

func GrandTotal(subTotal, salesTax int64, cardFee *int64) int64 {
	grand := subTotal + salesTax
	if cardFee != nil {
		grand += *cardFee
	}
	return grand
}

// PrepareItem recomputes total, fee and the sold_by/name snapshots. vendorItem
// and vendor may be nil; a nil vendorItem produces "Unknown" snapshots.
func PrepareItem(item domain.TransactionItem, vendorItem *domain.VendorItem, vendor *domain.Vendor) domain.TransactionItem {
	item.Total = ItemTotal(item.Price, item.Quantity)
	item.VendorFee = VendorFee(item.Total)

	if vendorItem == nil {
		item.VendorItemID = nil
		item.SoldBy = domain.UnknownLabel
		item.Name = domain.UnknownLabel
		return item
	}

	id := vendorItem.ID
	item.VendorItemID = &id
	item.Name = vendorItem.Name
	item.SoldBy = domain.UnknownLabel
	if vendor != nil {
		if name := vendor.DisplayName(); name != "" {
			item.SoldBy = name
		}
	}
	return item
}

func PrepareTransaction(tx domain.Transaction) domain.Transaction {
	if tx.PaymentMethod == "" {
		tx.PaymentMethod = domain.PaymentCash
	}
	tx.GrandTotal = GrandTotal(tx.SubTotal, tx.SalesTax, tx.CardFee)
	return tx
}
