package memory

import (
	"context"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	now          func() time.Time
	users        map[int64]domain.User
	vendors      map[int64]domain.Vendor
	vendorItems  map[int64]domain.VendorItem
	payments     map[int64]domain.VendorPayment
	charges      map[int64]domain.BoothCharge
	balancePays  map[int64]domain.BalancePayment
	transactions map[string]domain.Transaction
	txItems      map[int64]domain.TransactionItem
	messages     map[int64]domain.Message
	recipients   map[int64][]int64
	replies      map[int64]domain.Reply

	nextUserID    int64
	nextItemID    int64
	nextPaymentID int64
	nextChargeID  int64
	nextBalPayID  int64
	nextTxItemID  int64
	nextMessageID int64
	nextReplyID   int64
}

func New() *Store {
	return &Store{
		now:          func() time.Time { return time.Now().UTC() },
		users:        make(map[int64]domain.User),
		vendors:      make(map[int64]domain.Vendor),
		vendorItems:  make(map[int64]domain.VendorItem),
		payments:     make(map[int64]domain.VendorPayment),
		charges:      make(map[int64]domain.BoothCharge),
		balancePays:  make(map[int64]domain.BalancePayment),
		transactions: make(map[string]domain.Transaction),
		txItems:      make(map[int64]domain.TransactionItem),
		messages:     make(map[int64]domain.Message),
		recipients:   make(map[int64][]int64),
		replies:      make(map[int64]domain.Reply),
	}
}

// WithClock replaces the clock used for generated timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// NewSeeded returns a store with one staff account and two demo vendors for
// dev/demo mode. Passwords come from SEED_STAFF_PASSWORD and
// SEED_VENDOR_PASSWORD; dev defaults are used with a warning when unset.
func NewSeeded() *Store {
	s := New()

	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	vendorPwd := envOr("SEED_VENDOR_PASSWORD", "vendor123")
	if os.Getenv("SEED_STAFF_PASSWORD") == "" || os.Getenv("SEED_VENDOR_PASSWORD") == "" {
		logrus.WithField("component", "memory-store").Warn("using default dev credentials; set SEED_STAFF_PASSWORD and SEED_VENDOR_PASSWORD to override")
	}

	ctx := context.Background()
	for _, u := range []struct {
		email    string
		name     string
		password string
		staff    bool
	}{
		{"staff@vendormall.local", "Front Desk", staffPwd, true},
		{"maple@vendormall.local", "Ruth Ames", vendorPwd, false},
		{"oak@vendormall.local", "Dale Porter", vendorPwd, false},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithError(err).Fatalf("memory-store: failed to hash seed password for %s", u.email)
		}
		_, _ = s.CreateUser(ctx, domain.User{Email: u.email, Name: u.name, PasswordHash: string(hash), IsStaff: u.staff})
	}

	maple, oak := int64(2), int64(3)
	_, _ = s.CreateVendor(ctx, domain.Vendor{ID: 101, UserID: &maple, StoreName: "Maple Crafts", City: "Asheville", State: "NC"})
	_, _ = s.CreateVendor(ctx, domain.Vendor{ID: 102, UserID: &oak, City: "Asheville", State: "NC"})

	for _, item := range []domain.VendorItem{
		{VendorID: 101, Name: "Beeswax Candle", Price: 1200},
		{VendorID: 101, Name: "Hand-thrown Mug", Price: 2800},
		{VendorID: 102, Name: "Oak Cutting Board", Price: 4500},
		{VendorID: 102, Name: "Walnut Spoon", Price: 1600},
	} {
		_, _ = s.CreateVendorItem(ctx, item)
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	user.Email = strings.TrimSpace(user.Email)
	if user.Email == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userByEmailLocked(user.Email) != nil {
		return nil, store.ErrConflict
	}
	s.nextUserID++
	user.ID = s.nextUserID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.users[user.ID] = user
	saved := user
	return &saved, nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user := s.userByEmailLocked(strings.TrimSpace(email))
	if user == nil {
		return nil, store.ErrNotFound
	}
	found := *user
	return &found, nil
}

func (s *Store) userByEmailLocked(email string) *domain.User {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u
		}
	}
	return nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if other := s.userByEmailLocked(user.Email); other != nil && other.ID != user.ID {
		return nil, store.ErrConflict
	}
	existing.Email = user.Email
	existing.Name = user.Name
	existing.PhoneNumber = user.PhoneNumber
	existing.IsStaff = user.IsStaff
	s.users[user.ID] = existing
	saved := existing
	return &saved, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	s.users[id] = user
	return nil
}

// DeleteUser detaches the user's vendor, removes messages the user sent and
// drops the user from every recipient list.
func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)

	for vid, v := range s.vendors {
		if v.UserID != nil && *v.UserID == id {
			v.UserID = nil
			s.vendors[vid] = v
		}
	}
	for mid, m := range s.messages {
		if m.SenderID == id {
			s.deleteMessageLocked(mid)
			continue
		}
		s.recipients[mid] = slices.DeleteFunc(s.recipients[mid], func(rid int64) bool { return rid == id })
	}
	return nil
}

func (s *Store) ListStaffIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, 4)
	for _, u := range s.users {
		if u.IsStaff {
			ids = append(ids, u.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) ListVendors(_ context.Context, filter domain.VendorFilter) ([]domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendors := make([]domain.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		if filter.UserID != nil && (v.UserID == nil || *v.UserID != *filter.UserID) {
			continue
		}
		vendors = append(vendors, s.vendorViewLocked(v))
	}
	sort.Slice(vendors, func(i, j int) bool { return vendors[i].ID < vendors[j].ID })
	return vendors, nil
}

func (s *Store) GetVendor(_ context.Context, id int64) (*domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vendors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	view := s.vendorViewLocked(v)
	return &view, nil
}

func (s *Store) GetVendorByUserID(_ context.Context, userID int64) (*domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.vendors {
		if v.UserID != nil && *v.UserID == userID {
			view := s.vendorViewLocked(v)
			return &view, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) vendorViewLocked(v domain.Vendor) domain.Vendor {
	v.User = nil
	if v.UserID != nil {
		if u, ok := s.users[*v.UserID]; ok {
			v.User = &u
		}
	}
	return v
}

func (s *Store) CreateVendor(_ context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if vendor.ID == 0 {
		for id := range s.vendors {
			if id > vendor.ID {
				vendor.ID = id
			}
		}
		vendor.ID++
	}
	if _, exists := s.vendors[vendor.ID]; exists {
		return nil, store.ErrConflict
	}
	if vendor.UserID != nil {
		if _, ok := s.users[*vendor.UserID]; !ok {
			return nil, store.ErrInvalid
		}
		for _, v := range s.vendors {
			if v.UserID != nil && *v.UserID == *vendor.UserID {
				return nil, store.ErrConflict
			}
		}
	}

	vendor.User, vendor.Items, vendor.Payments = nil, nil, nil
	s.vendors[vendor.ID] = vendor
	view := s.vendorViewLocked(vendor)
	return &view, nil
}

func (s *Store) UpdateVendor(_ context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.vendors[vendor.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	existing.StoreName = vendor.StoreName
	existing.StreetAddress = vendor.StreetAddress
	existing.City = vendor.City
	existing.State = vendor.State
	existing.PostalCode = vendor.PostalCode
	s.vendors[vendor.ID] = existing
	view := s.vendorViewLocked(existing)
	return &view, nil
}

// DeleteVendor removes the vendor with its items, payments and charges. Line items that
// referenced the vendor's items keep their snapshots and lose the reference.
func (s *Store) DeleteVendor(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vendors[id]; !ok {
		return store.ErrNotFound
	}
	for itemID, item := range s.vendorItems {
		if item.VendorID == id {
			s.deleteVendorItemLocked(itemID)
		}
	}
	for pid, p := range s.payments {
		if p.VendorID == id {
			delete(s.payments, pid)
		}
	}
	for cid, c := range s.charges {
		if c.VendorID == id {
			delete(s.charges, cid)
		}
	}
	for bid, b := range s.balancePays {
		if b.VendorID == id {
			delete(s.balancePays, bid)
		}
	}
	delete(s.vendors, id)
	return nil
}

func (s *Store) AdjustVendorBalance(_ context.Context, vendorID int64, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vendors[vendorID]
	if !ok {
		return 0, store.ErrNotFound
	}
	v.Balance += delta
	s.vendors[vendorID] = v
	return v.Balance, nil
}

func (s *Store) SumVendorSales(_ context.Context, vendorID int64, window domain.TimeRange) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, item := range s.txItems {
		if item.VendorItemID == nil {
			continue
		}
		vi, ok := s.vendorItems[*item.VendorItemID]
		if !ok || vi.VendorID != vendorID {
			continue
		}
		tx, ok := s.transactions[item.TransactionID]
		if !ok || !window.Contains(tx.Date) {
			continue
		}
		total += item.Total
	}
	return total, nil
}

func (s *Store) ListVendorItems(_ context.Context, filter domain.VendorItemFilter) ([]domain.VendorItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.VendorItem, 0, len(s.vendorItems))
	for _, item := range s.vendorItems {
		if filter.VendorID != nil && item.VendorID != *filter.VendorID {
			continue
		}
		item.TotalSold = s.totalSoldLocked(item.ID)
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name == items[j].Name {
			return items[i].ID < items[j].ID
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func (s *Store) totalSoldLocked(vendorItemID int64) int64 {
	var sold int64
	for _, ti := range s.txItems {
		if ti.VendorItemID != nil && *ti.VendorItemID == vendorItemID {
			sold += ti.Quantity
		}
	}
	return sold
}

func (s *Store) GetVendorItem(_ context.Context, id int64) (*domain.VendorItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.vendorItems[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	item.TotalSold = s.totalSoldLocked(id)
	return &item, nil
}

func (s *Store) GetVendorItemsByIDs(_ context.Context, ids []int64) (map[int64]domain.VendorItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]domain.VendorItem, len(ids))
	for _, id := range ids {
		if item, ok := s.vendorItems[id]; ok {
			result[id] = item
		}
	}
	return result, nil
}

func (s *Store) VendorIDsForItems(_ context.Context, vendorItemIDs []int64) (map[int64]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]int64, len(vendorItemIDs))
	for _, id := range vendorItemIDs {
		if item, ok := s.vendorItems[id]; ok {
			result[id] = item.VendorID
		}
	}
	return result, nil
}

func (s *Store) CreateVendorItem(_ context.Context, item domain.VendorItem) (*domain.VendorItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vendors[item.VendorID]; !ok {
		return nil, store.ErrInvalid
	}
	s.nextItemID++
	item.ID = s.nextItemID
	item.TotalSold = 0
	s.vendorItems[item.ID] = item
	saved := item
	return &saved, nil
}

func (s *Store) UpdateVendorItem(_ context.Context, item domain.VendorItem) (*domain.VendorItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.vendorItems[item.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	existing.Name = item.Name
	existing.Price = item.Price
	s.vendorItems[item.ID] = existing
	existing.TotalSold = s.totalSoldLocked(item.ID)
	return &existing, nil
}

func (s *Store) DeleteVendorItem(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vendorItems[id]; !ok {
		return store.ErrNotFound
	}
	s.deleteVendorItemLocked(id)
	return nil
}

func (s *Store) deleteVendorItemLocked(id int64) {
	for tid, ti := range s.txItems {
		if ti.VendorItemID != nil && *ti.VendorItemID == id {
			ti.VendorItemID = nil
			s.txItems[tid] = ti
		}
	}
	delete(s.vendorItems, id)
}

func (s *Store) ListVendorPayments(_ context.Context, filter domain.VendorPaymentFilter) ([]domain.VendorPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.VendorPayment, 0, len(s.payments))
	for _, p := range s.payments {
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

func (s *Store) GetVendorPayment(_ context.Context, id int64) (*domain.VendorPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateVendorPayment(_ context.Context, payment domain.VendorPayment) (*domain.VendorPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vendors[payment.VendorID]; !ok {
		return nil, store.ErrInvalid
	}
	s.nextPaymentID++
	payment.ID = s.nextPaymentID
	payment.Date = s.now()
	s.payments[payment.ID] = payment
	saved := payment
	return &saved, nil
}

func (s *Store) DeleteVendorPayment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.payments, id)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if filter.Range != nil && !filter.Range.Contains(tx.Date) {
			continue
		}
		txs = append(txs, s.transactionViewLocked(tx))
	}
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].Date.Equal(txs[j].Date) {
			return txs[i].ID > txs[j].ID
		}
		return txs[i].Date.After(txs[j].Date)
	})
	return txs, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	view := s.transactionViewLocked(tx)
	return &view, nil
}

func (s *Store) transactionViewLocked(tx domain.Transaction) domain.Transaction {
	items := make([]domain.TransactionItem, 0, 4)
	for _, ti := range s.txItems {
		if ti.TransactionID == tx.ID {
			items = append(items, ti)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	tx.Items = items
	tx.CardFee = cloneInt64(tx.CardFee)
	return tx
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if _, exists := s.transactions[tx.ID]; exists {
		return nil, store.ErrConflict
	}
	if tx.Date.IsZero() {
		tx.Date = s.now()
	}

	items := tx.Items
	tx.Items = nil
	tx.CardFee = cloneInt64(tx.CardFee)
	s.transactions[tx.ID] = tx
	for _, item := range items {
		s.insertTxItemLocked(tx.ID, item)
	}
	view := s.transactionViewLocked(tx)
	return &view, nil
}

func (s *Store) insertTxItemLocked(txID string, item domain.TransactionItem) domain.TransactionItem {
	s.nextTxItemID++
	item.ID = s.nextTxItemID
	item.TransactionID = txID
	item.VendorItemID = cloneInt64(item.VendorItemID)
	s.txItems[item.ID] = item
	return item
}

// UpdateTransaction rewrites the header and upserts the given items: items with
// an ID must already belong to the transaction, items without one are added.
// Items not mentioned are left as they are.
func (s *Store) UpdateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.transactions[tx.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, item := range tx.Items {
		if item.ID == 0 {
			continue
		}
		current, ok := s.txItems[item.ID]
		if !ok || current.TransactionID != tx.ID {
			return nil, store.ErrNotFound
		}
	}

	existing.SubTotal = tx.SubTotal
	existing.SalesTax = tx.SalesTax
	existing.CardFee = cloneInt64(tx.CardFee)
	existing.PaymentMethod = tx.PaymentMethod
	existing.GrandTotal = tx.GrandTotal
	s.transactions[tx.ID] = existing

	for _, item := range tx.Items {
		if item.ID == 0 {
			s.insertTxItemLocked(tx.ID, item)
			continue
		}
		item.TransactionID = tx.ID
		item.VendorItemID = cloneInt64(item.VendorItemID)
		s.txItems[item.ID] = item
	}
	view := s.transactionViewLocked(existing)
	return &view, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[id]; !ok {
		return store.ErrNotFound
	}
	for tid, ti := range s.txItems {
		if ti.TransactionID == id {
			delete(s.txItems, tid)
		}
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) ListTransactionItems(_ context.Context, filter domain.TransactionItemFilter) ([]domain.TransactionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.TransactionItem, 0, len(s.txItems))
	for _, ti := range s.txItems {
		if filter.TransactionID != "" && ti.TransactionID != filter.TransactionID {
			continue
		}
		if filter.VendorID != nil {
			if ti.VendorItemID == nil {
				continue
			}
			vi, ok := s.vendorItems[*ti.VendorItemID]
			if !ok || vi.VendorID != *filter.VendorID {
				continue
			}
		}
		items = append(items, ti)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *Store) GetTransactionItem(_ context.Context, id int64) (*domain.TransactionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ti, ok := s.txItems[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ti, nil
}

func (s *Store) CreateTransactionItem(_ context.Context, item domain.TransactionItem) (*domain.TransactionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[item.TransactionID]; !ok {
		return nil, store.ErrNotFound
	}
	saved := s.insertTxItemLocked(item.TransactionID, item)
	return &saved, nil
}

func (s *Store) UpdateTransactionItem(_ context.Context, item domain.TransactionItem) (*domain.TransactionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.txItems[item.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	item.TransactionID = existing.TransactionID
	item.VendorItemID = cloneInt64(item.VendorItemID)
	s.txItems[item.ID] = item
	saved := item
	return &saved, nil
}

func (s *Store) DeleteTransactionItem(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txItems[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.txItems, id)
	return nil
}

func (s *Store) TopVendors(_ context.Context, window domain.TimeRange, limit int) ([]domain.SalesLeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byVendor := make(map[int64]*domain.SalesLeader)
	for _, ti := range s.itemsInWindowLocked(window) {
		vi, ok := s.vendorItems[*ti.VendorItemID]
		if !ok {
			continue
		}
		leader, ok := byVendor[vi.VendorID]
		if !ok {
			leader = &domain.SalesLeader{ID: vi.VendorID}
			if v, found := s.vendors[vi.VendorID]; found {
				leader.Name = s.vendorViewLocked(v).DisplayName()
			}
			byVendor[vi.VendorID] = leader
		}
		leader.ItemsSold += ti.Quantity
		leader.TotalAmount += ti.Price * ti.Quantity
	}

	return rankLeaders(byVendor, limit, func(a, b domain.SalesLeader) bool {
		return a.TotalAmount > b.TotalAmount
	}), nil
}

func (s *Store) TopItems(_ context.Context, window domain.TimeRange, limit int) ([]domain.SalesLeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byItem := make(map[int64]*domain.SalesLeader)
	for _, ti := range s.itemsInWindowLocked(window) {
		vi, ok := s.vendorItems[*ti.VendorItemID]
		if !ok {
			continue
		}
		leader, ok := byItem[vi.ID]
		if !ok {
			leader = &domain.SalesLeader{ID: vi.ID, Name: vi.Name}
			byItem[vi.ID] = leader
		}
		leader.ItemsSold += ti.Quantity
		leader.TotalAmount += ti.Price * ti.Quantity
	}

	return rankLeaders(byItem, limit, func(a, b domain.SalesLeader) bool {
		return a.ItemsSold > b.ItemsSold
	}), nil
}

// itemsInWindowLocked returns line items that reference a vendor item and
// belong to a transaction dated inside window.
func (s *Store) itemsInWindowLocked(window domain.TimeRange) []domain.TransactionItem {
	items := make([]domain.TransactionItem, 0, 32)
	for _, ti := range s.txItems {
		if ti.VendorItemID == nil {
			continue
		}
		tx, ok := s.transactions[ti.TransactionID]
		if !ok || !window.Contains(tx.Date) {
			continue
		}
		items = append(items, ti)
	}
	return items
}

func rankLeaders(groups map[int64]*domain.SalesLeader, limit int, better func(a, b domain.SalesLeader) bool) []domain.SalesLeader {
	leaders := make([]domain.SalesLeader, 0, len(groups))
	for _, l := range groups {
		leaders = append(leaders, *l)
	}
	sort.Slice(leaders, func(i, j int) bool {
		if better(leaders[i], leaders[j]) {
			return true
		}
		if better(leaders[j], leaders[i]) {
			return false
		}
		return leaders[i].ID < leaders[j].ID
	})
	if limit > 0 && len(leaders) > limit {
		leaders = leaders[:limit]
	}
	return leaders
}

func (s *Store) CreateMessage(_ context.Context, msg domain.Message, recipientIDs []int64) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[msg.SenderID]; !ok {
		return nil, store.ErrInvalid
	}
	for _, id := range recipientIDs {
		if _, ok := s.users[id]; !ok {
			return nil, store.ErrInvalid
		}
	}

	s.nextMessageID++
	msg.ID = s.nextMessageID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	msg.IsRead = false
	msg.Recipients, msg.Replies = nil, nil
	s.messages[msg.ID] = msg
	s.recipients[msg.ID] = dedupe(recipientIDs)

	view := s.messageViewLocked(msg)
	return &view, nil
}

func (s *Store) GetMessage(_ context.Context, id int64) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	view := s.messageViewLocked(msg)
	return &view, nil
}

func (s *Store) ListMessagesForUser(_ context.Context, userID int64) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]domain.Message, 0, 16)
	for id, msg := range s.messages {
		if msg.SenderID == userID || slices.Contains(s.recipients[id], userID) {
			msgs = append(msgs, s.messageViewLocked(msg))
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID > msgs[j].ID
		}
		return msgs[i].Timestamp.After(msgs[j].Timestamp)
	})
	return msgs, nil
}

func (s *Store) UpdateMessage(_ context.Context, msg domain.Message, recipientIDs []int64) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.messages[msg.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, id := range recipientIDs {
		if _, ok := s.users[id]; !ok {
			return nil, store.ErrInvalid
		}
	}
	existing.Subject = msg.Subject
	existing.Body = msg.Body
	existing.IsRead = msg.IsRead
	s.messages[msg.ID] = existing
	if recipientIDs != nil {
		s.recipients[msg.ID] = dedupe(recipientIDs)
	}
	view := s.messageViewLocked(existing)
	return &view, nil
}

func (s *Store) SetMessageRead(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	msg.IsRead = true
	s.messages[id] = msg
	return nil
}

func (s *Store) DeleteMessage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return store.ErrNotFound
	}
	s.deleteMessageLocked(id)
	return nil
}

func (s *Store) deleteMessageLocked(id int64) {
	for rid, r := range s.replies {
		if r.MessageID == id {
			delete(s.replies, rid)
		}
	}
	delete(s.recipients, id)
	delete(s.messages, id)
}

func (s *Store) CountUnreadMessages(_ context.Context, userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for id, msg := range s.messages {
		if !msg.IsRead && slices.Contains(s.recipients[id], userID) {
			count++
		}
	}
	return count, nil
}

func (s *Store) CreateReply(_ context.Context, reply domain.Reply) (*domain.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[reply.MessageID]; !ok {
		return nil, store.ErrNotFound
	}
	s.nextReplyID++
	reply.ID = s.nextReplyID
	if reply.DateSent.IsZero() {
		reply.DateSent = s.now()
	}
	reply.Read = false
	s.replies[reply.ID] = reply
	saved := reply
	return &saved, nil
}

func (s *Store) SetReplyRead(_ context.Context, messageID int64, replyID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply, ok := s.replies[replyID]
	if !ok || reply.MessageID != messageID {
		return store.ErrNotFound
	}
	reply.Read = true
	s.replies[replyID] = reply
	return nil
}

func (s *Store) messageViewLocked(msg domain.Message) domain.Message {
	if sender, ok := s.users[msg.SenderID]; ok {
		msg.SenderEmail = sender.Email
	}
	ids := s.recipients[msg.ID]
	msg.Recipients = make([]domain.UserRef, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			msg.Recipients = append(msg.Recipients, domain.UserRef{ID: u.ID, Name: u.Name, Email: u.Email})
		}
	}
	msg.Replies = make([]domain.Reply, 0, 2)
	for _, r := range s.replies {
		if r.MessageID == msg.ID {
			msg.Replies = append(msg.Replies, r)
		}
	}
	sort.Slice(msg.Replies, func(i, j int) bool { return msg.Replies[i].ID < msg.Replies[j].ID })
	return msg
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
