package domain

import "time"

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "CASH"
	PaymentCard PaymentMethod = "CARD"
)

// UnknownLabel is stored on line items that do not reference a vendor item.
const UnknownLabel = "Unknown"

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PhoneNumber  string    `json:"phone_number"`
	IsStaff      bool      `json:"is_staff"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Actor struct {
	UserID  int64
	Email   string
	IsStaff bool
}

type Vendor struct {
	ID            int64           `json:"id"`
	UserID        *int64          `json:"-"`
	User          *User           `json:"user"`
	StoreName     string          `json:"store_name"`
	StreetAddress string          `json:"street_address"`
	City          string          `json:"city"`
	State         string          `json:"state"`
	PostalCode    string          `json:"postal_code"`
	Balance       int64           `json:"balance"`
	Items         []VendorItem    `json:"items"`
	Payments      []VendorPayment `json:"payments"`
	YTDSales      int64           `json:"ytd_sales"`
}

// DisplayName is the store name, falling back to the owning user's name.
func (v Vendor) DisplayName() string {
	if v.StoreName != "" {
		return v.StoreName
	}
	if v.User != nil {
		return v.User.Name
	}
	return ""
}

type VendorItem struct {
	ID        int64  `json:"id"`
	VendorID  int64  `json:"vendor"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	TotalSold int64  `json:"total_sold"`
}

type VendorPayment struct {
	ID       int64     `json:"id"`
	VendorID int64     `json:"vendor"`
	Amount   int64     `json:"amount"`
	Date     time.Time `json:"date"`
}

// BoothCharge is the rent billed to a vendor for one calendar month.
type BoothCharge struct {
	ID        int64     `json:"id"`
	VendorID  int64     `json:"vendor"`
	Amount    int64     `json:"amount"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	CreatedAt time.Time `json:"created_at"`
}

// BillingMonth numbers months consecutively so that charges can be compared
// across years.
func BillingMonth(year, month int) int {
	return year*12 + month - 1
}

const (
	BalancePaidCash  = "CASH"
	BalancePaidCheck = "CHECK"
	BalancePaidCard  = "CARD"
)

// BalancePayment is money a vendor hands the mall to pay down what it owes.
type BalancePayment struct {
	ID          int64     `json:"id"`
	VendorID    int64     `json:"vendor"`
	Amount      int64     `json:"amount"`
	Date        time.Time `json:"payment_date"`
	Method      string    `json:"payment_method"`
	Description string    `json:"description"`
}

type Transaction struct {
	ID            string            `json:"id"`
	Date          time.Time         `json:"date"`
	SubTotal      int64             `json:"sub_total"`
	SalesTax      int64             `json:"sales_tax"`
	CardFee       *int64            `json:"card_fee"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	GrandTotal    int64             `json:"grand_total"`
	Items         []TransactionItem `json:"items"`
}

type TransactionItem struct {
	ID            int64  `json:"id"`
	TransactionID string `json:"transaction"`
	VendorItemID  *int64 `json:"vendor_item"`
	Price         int64  `json:"price"`
	Quantity      int64  `json:"quantity"`
	Total         int64  `json:"total"`
	VendorFee     int64  `json:"vendor_fee"`
	SoldBy        string `json:"sold_by"`
	Name          string `json:"name"`
}

type Message struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"sender"`
	SenderEmail string    `json:"sender_email"`
	Recipients  []UserRef `json:"recipients"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Timestamp   time.Time `json:"timestamp"`
	IsRead      bool      `json:"is_read"`
	Replies     []Reply   `json:"replies"`
}

type Reply struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message"`
	SenderID  int64     `json:"sender"`
	Body      string    `json:"body"`
	DateSent  time.Time `json:"date_sent"`
	Read      bool      `json:"read"`
}

// TimeRange is half-open: From is included, To is not.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

type SalesLeader struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ItemsSold   int64  `json:"itemsSold"`
	TotalAmount int64  `json:"totalAmount"`
}

type SalesLeaders struct {
	Week  []SalesLeader `json:"week"`
	Month []SalesLeader `json:"month"`
	Year  []SalesLeader `json:"year"`
}

type TransactionSummary struct {
	Period        string        `json:"period"`
	PeriodStart   time.Time     `json:"period_start"`
	PeriodEnd     time.Time     `json:"period_end"`
	Count         int           `json:"count"`
	TotalItems    int64         `json:"total_items"`
	TotalSalesTax int64         `json:"total_sales_tax"`
	TotalAmount   int64         `json:"total_amount"`
	GrandTotal    int64         `json:"grand_total"`
	Transactions  []Transaction `json:"transactions"`
}

// VendorStatement is one vendor's line on the monthly statement. Closing is
// derived from the recorded activity; Balance is the live running balance.
type VendorStatement struct {
	VendorID        int64  `json:"vendor_id"`
	Name            string `json:"name"`
	Opening         int64  `json:"opening_balance"`
	ItemsSold       int64  `json:"items_sold"`
	CashSales       int64  `json:"cash_sales"`
	CardSales       int64  `json:"card_sales"`
	TotalSales      int64  `json:"total_sales"`
	VendorFees      int64  `json:"vendor_fees"`
	Payouts         int64  `json:"payouts"`
	BoothCharges    int64  `json:"booth_charges"`
	BalancePayments int64  `json:"balance_payments"`
	Closing         int64  `json:"closing_balance"`
	Balance         int64  `json:"balance"`
}

type MonthlyStatement struct {
	Year        int               `json:"year"`
	Month       int               `json:"month"`
	PeriodStart time.Time         `json:"period_start"`
	PeriodEnd   time.Time         `json:"period_end"`
	Vendors     []VendorStatement `json:"vendors"`
}

// VendorActivity sums one vendor's balance-relevant records inside a
// LedgerWindow.
type VendorActivity struct {
	VendorID        int64
	ItemsSold       int64
	CashSales       int64
	CardSales       int64
	Fees            int64
	Payouts         int64
	BoothCharges    int64
	BalancePayments int64
}

// Net is the balance movement the activity accounts for.
func (a VendorActivity) Net() int64 {
	return a.Fees - a.Payouts - a.BoothCharges + a.BalancePayments
}

// LedgerWindow selects dated records by Range and booth charges by billing
// month in [FromMonth, ToMonth).
type LedgerWindow struct {
	Range     TimeRange
	FromMonth int
	ToMonth   int
}

type TransactionFilter struct {
	Range *TimeRange
}

type VendorFilter struct {
	UserID *int64
}

type VendorItemFilter struct {
	VendorID *int64
}

type VendorPaymentFilter struct {
	VendorID *int64
}

type BoothChargeFilter struct {
	VendorID *int64
}

type BalancePaymentFilter struct {
	VendorID *int64
}

type TransactionItemFilter struct {
	TransactionID string
	VendorID      *int64
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
	IsStaff     bool   `json:"is_staff"`
	ExpiresAt   string `json:"expires_at"`
}

type StaffCreateRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Name        string `json:"name" validate:"required,max=255"`
	PhoneNumber string `json:"phone_number" validate:"max=32"`
	Password    string `json:"password" validate:"required,min=5"`
}

type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=5"`
}

// TransactionItemInput carries a line item as sent by the register. Total,
// fee and snapshot fields are accepted for compatibility but always recomputed.
type TransactionItemInput struct {
	ID           *int64  `json:"id,omitempty"`
	VendorItemID *int64  `json:"vendor_item"`
	Price        int64   `json:"price" validate:"gte=0"`
	Quantity     int64   `json:"quantity" validate:"gte=0"`
	Total        *int64  `json:"total,omitempty"`
	VendorFee    *int64  `json:"vendor_fee,omitempty"`
	SoldBy       *string `json:"sold_by,omitempty"`
	Name         *string `json:"name,omitempty"`
}

type TransactionCreateRequest struct {
	SubTotal      int64                  `json:"sub_total" validate:"gte=0"`
	SalesTax      int64                  `json:"sales_tax" validate:"gte=0"`
	CardFee       *int64                 `json:"card_fee" validate:"omitempty,gte=0"`
	PaymentMethod PaymentMethod          `json:"payment_method" validate:"omitempty,oneof=CASH CARD"`
	GrandTotal    *int64                 `json:"grand_total,omitempty"`
	Items         []TransactionItemInput `json:"items" validate:"required,dive"`
}

type TransactionUpdateRequest struct {
	SubTotal      *int64                 `json:"sub_total" validate:"omitempty,gte=0"`
	SalesTax      *int64                 `json:"sales_tax" validate:"omitempty,gte=0"`
	CardFee       *int64                 `json:"card_fee" validate:"omitempty,gte=0"`
	PaymentMethod *PaymentMethod         `json:"payment_method" validate:"omitempty,oneof=CASH CARD"`
	GrandTotal    *int64                 `json:"grand_total,omitempty"`
	Items         []TransactionItemInput `json:"items" validate:"dive"`
}

type TransactionItemCreateRequest struct {
	TransactionID string `json:"transaction" validate:"required"`
	VendorItemID  *int64 `json:"vendor_item"`
	Price         int64  `json:"price" validate:"gte=0"`
	Quantity      int64  `json:"quantity" validate:"gte=0"`
}

type TransactionItemUpdateRequest struct {
	VendorItemID *int64 `json:"vendor_item"`
	Price        *int64 `json:"price" validate:"omitempty,gte=0"`
	Quantity     *int64 `json:"quantity" validate:"omitempty,gte=0"`
}

type VendorUserInput struct {
	ID          *int64  `json:"id,omitempty"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Name        *string `json:"name" validate:"omitempty,max=255"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=32"`
	Password    *string `json:"password,omitempty" validate:"omitempty,min=5"`
}

type VendorCreateRequest struct {
	ID            *int64          `json:"id,omitempty" validate:"omitempty,gt=0"`
	StoreName     string          `json:"store_name" validate:"max=255"`
	StreetAddress string          `json:"street_address" validate:"max=255"`
	City          string          `json:"city" validate:"max=255"`
	State         string          `json:"state" validate:"max=255"`
	PostalCode    string          `json:"postal_code" validate:"max=255"`
	Balance       int64           `json:"balance"`
	User          VendorUserInput `json:"user"`
}

type VendorUpdateRequest struct {
	StoreName     *string          `json:"store_name" validate:"omitempty,max=255"`
	StreetAddress *string          `json:"street_address" validate:"omitempty,max=255"`
	City          *string          `json:"city" validate:"omitempty,max=255"`
	State         *string          `json:"state" validate:"omitempty,max=255"`
	PostalCode    *string          `json:"postal_code" validate:"omitempty,max=255"`
	Balance       *int64           `json:"balance"`
	User          *VendorUserInput `json:"user"`
}

type VendorItemCreateRequest struct {
	VendorID int64  `json:"vendor"`
	Name     string `json:"name" validate:"required,max=255"`
	Price    int64  `json:"price" validate:"gte=0"`
}

type VendorItemUpdateRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=255"`
	Price *int64  `json:"price" validate:"omitempty,gte=0"`
}

type VendorPaymentCreateRequest struct {
	VendorID int64 `json:"vendor" validate:"required,gt=0"`
	Amount   int64 `json:"amount" validate:"gt=0"`
}

type BoothChargeCreateRequest struct {
	VendorID int64 `json:"vendor" validate:"required,gt=0"`
	Amount   int64 `json:"amount" validate:"gt=0"`
	Year     int   `json:"year" validate:"gte=2000,lte=9999"`
	Month    int   `json:"month" validate:"gte=1,lte=12"`
}

type BoothChargeUpdateRequest struct {
	Amount *int64 `json:"amount" validate:"omitempty,gt=0"`
	Year   *int   `json:"year" validate:"omitempty,gte=2000,lte=9999"`
	Month  *int   `json:"month" validate:"omitempty,gte=1,lte=12"`
}

type BalancePaymentCreateRequest struct {
	VendorID    int64      `json:"vendor" validate:"required,gt=0"`
	Amount      int64      `json:"amount" validate:"gt=0"`
	Date        *time.Time `json:"payment_date"`
	Method      string     `json:"payment_method" validate:"required,oneof=CASH CHECK CARD"`
	Description string     `json:"description" validate:"max=255"`
}

type BalancePaymentUpdateRequest struct {
	Amount      *int64     `json:"amount" validate:"omitempty,gt=0"`
	Date        *time.Time `json:"payment_date"`
	Method      *string    `json:"payment_method" validate:"omitempty,oneof=CASH CHECK CARD"`
	Description *string    `json:"description" validate:"omitempty,max=255"`
}

type MessageCreateRequest struct {
	Subject      string  `json:"subject" validate:"required,max=255"`
	Body         string  `json:"body" validate:"required"`
	RecipientIDs []int64 `json:"recipient_ids"`
}

// MessageUpdateRequest leaves recipients untouched when RecipientIDs is nil.
type MessageUpdateRequest struct {
	Subject      *string `json:"subject" validate:"omitempty,min=1,max=255"`
	Body         *string `json:"body" validate:"omitempty,min=1"`
	RecipientIDs []int64 `json:"recipient_ids"`
}

type ReplyCreateRequest struct {
	Body string `json:"body" validate:"required"`
}
