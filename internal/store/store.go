package store

import (
	"context"
	"errors"

	"vendormall/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")
	ErrConflict = errors.New("conflict")
)

type Repository interface {
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUser(ctx context.Context, user domain.User) (*domain.User, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error
	DeleteUser(ctx context.Context, id int64) error
	ListStaffIDs(ctx context.Context) ([]int64, error)

	ListVendors(ctx context.Context, filter domain.VendorFilter) ([]domain.Vendor, error)
	GetVendor(ctx context.Context, id int64) (*domain.Vendor, error)
	GetVendorByUserID(ctx context.Context, userID int64) (*domain.Vendor, error)
	CreateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error)
	UpdateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error)
	DeleteVendor(ctx context.Context, id int64) error
	AdjustVendorBalance(ctx context.Context, vendorID int64, delta int64) (int64, error)
	SumVendorSales(ctx context.Context, vendorID int64, window domain.TimeRange) (int64, error)

	ListVendorItems(ctx context.Context, filter domain.VendorItemFilter) ([]domain.VendorItem, error)
	GetVendorItem(ctx context.Context, id int64) (*domain.VendorItem, error)
	GetVendorItemsByIDs(ctx context.Context, ids []int64) (map[int64]domain.VendorItem, error)
	VendorIDsForItems(ctx context.Context, vendorItemIDs []int64) (map[int64]int64, error)
	CreateVendorItem(ctx context.Context, item domain.VendorItem) (*domain.VendorItem, error)
	UpdateVendorItem(ctx context.Context, item domain.VendorItem) (*domain.VendorItem, error)
	DeleteVendorItem(ctx context.Context, id int64) error

	ListVendorPayments(ctx context.Context, filter domain.VendorPaymentFilter) ([]domain.VendorPayment, error)
	GetVendorPayment(ctx context.Context, id int64) (*domain.VendorPayment, error)
	CreateVendorPayment(ctx context.Context, payment domain.VendorPayment) (*domain.VendorPayment, error)
	DeleteVendorPayment(ctx context.Context, id int64) error

	ListBoothCharges(ctx context.Context, filter domain.BoothChargeFilter) ([]domain.BoothCharge, error)
	GetBoothCharge(ctx context.Context, id int64) (*domain.BoothCharge, error)
	CreateBoothCharge(ctx context.Context, charge domain.BoothCharge) (*domain.BoothCharge, error)
	UpdateBoothCharge(ctx context.Context, charge domain.BoothCharge) (*domain.BoothCharge, error)
	DeleteBoothCharge(ctx context.Context, id int64) error

	ListBalancePayments(ctx context.Context, filter domain.BalancePaymentFilter) ([]domain.BalancePayment, error)
	GetBalancePayment(ctx context.Context, id int64) (*domain.BalancePayment, error)
	CreateBalancePayment(ctx context.Context, payment domain.BalancePayment) (*domain.BalancePayment, error)
	UpdateBalancePayment(ctx context.Context, payment domain.BalancePayment) (*domain.BalancePayment, error)
	DeleteBalancePayment(ctx context.Context, id int64) error

	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error

	ListTransactionItems(ctx context.Context, filter domain.TransactionItemFilter) ([]domain.TransactionItem, error)
	GetTransactionItem(ctx context.Context, id int64) (*domain.TransactionItem, error)
	CreateTransactionItem(ctx context.Context, item domain.TransactionItem) (*domain.TransactionItem, error)
	UpdateTransactionItem(ctx context.Context, item domain.TransactionItem) (*domain.TransactionItem, error)
	DeleteTransactionItem(ctx context.Context, id int64) error

	TopVendors(ctx context.Context, window domain.TimeRange, limit int) ([]domain.SalesLeader, error)
	TopItems(ctx context.Context, window domain.TimeRange, limit int) ([]domain.SalesLeader, error)
	VendorActivity(ctx context.Context, window domain.LedgerWindow) (map[int64]domain.VendorActivity, error)

	CreateMessage(ctx context.Context, msg domain.Message, recipientIDs []int64) (*domain.Message, error)
	GetMessage(ctx context.Context, id int64) (*domain.Message, error)
	ListMessagesForUser(ctx context.Context, userID int64) ([]domain.Message, error)
	UpdateMessage(ctx context.Context, msg domain.Message, recipientIDs []int64) (*domain.Message, error)
	SetMessageRead(ctx context.Context, id int64) error
	DeleteMessage(ctx context.Context, id int64) error
	CountUnreadMessages(ctx context.Context, userID int64) (int, error)
	CreateReply(ctx context.Context, reply domain.Reply) (*domain.Reply, error)
	SetReplyRead(ctx context.Context, messageID int64, replyID int64) error
}
