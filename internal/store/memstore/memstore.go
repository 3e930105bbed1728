// Package memstore is an in-memory store.Store used for local runs and tests.
// Transactions are serialised behind one mutex and work on a copy of the
// state that replaces the live state only on commit.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/01moynul/netriver-marketplace/internal/models"
	"github.com/01moynul/netriver-marketplace/internal/store"
)

type cartKey struct {
	session   string
	productID int64
}

type state struct {
	products map[int64]models.Product
	cart     map[int64]models.CartItem
	cartKeys map[cartKey]int64
	orders   map[int64]models.Order
	numbers  map[string]int64
	lines    map[int64][]models.OrderItem
	attempts map[string]models.PaymentAttempt

	nextProductID int64
	nextCartID    int64
	nextOrderID   int64
	nextLineID    int64
	nextAttemptID int64
}

func newState() *state {
	return &state{
		products: make(map[int64]models.Product),
		cart:     make(map[int64]models.CartItem),
		cartKeys: make(map[cartKey]int64),
		orders:   make(map[int64]models.Order),
		numbers:  make(map[string]int64),
		lines:    make(map[int64][]models.OrderItem),
		attempts: make(map[string]models.PaymentAttempt),
	}
}

func (s *state) clone() *state {
	c := *s
	c.products = cloneMap(s.products)
	c.cart = cloneMap(s.cart)
	c.cartKeys = cloneMap(s.cartKeys)
	c.orders = cloneMap(s.orders)
	c.numbers = cloneMap(s.numbers)
	c.attempts = cloneMap(s.attempts)
	// Line slices are shared; InsertOrderLines never appends in place.
	c.lines = cloneMap(s.lines)
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MemoryStore implements store.Store with in-memory storage.
type MemoryStore struct {
	mu sync.RWMutex
	st *state
}

var _ store.Store = (*MemoryStore)(nil)

// New creates an empty store.
func New() *MemoryStore {
	return &MemoryStore{st: newState()}
}

// PutProduct inserts or replaces a product. A zero ID is assigned the next free one.
func (s *MemoryStore) PutProduct(p models.Product) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		s.st.nextProductID++
		p.ID = s.st.nextProductID
	} else if p.ID > s.st.nextProductID {
		s.st.nextProductID = p.ID
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = models.ProductActive
	}
	s.st.products[p.ID] = p
	return p
}

// ProductByID returns the committed state of a product.
func (s *MemoryStore) ProductByID(id int64) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.products[id]
	return p, ok
}

// OrderCount returns the number of committed orders.
func (s *MemoryStore) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.orders)
}

// WithinTx runs fn against a private copy of the state and publishes it on success.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *MemoryStore) CartLines(ctx context.Context, session string) ([]models.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.cartLines(session), nil
}

func (s *MemoryStore) OrderByNumber(ctx context.Context, orderNumber string) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.st.numbers[orderNumber]
	if !ok {
		return models.Order{}, store.ErrNotFound
	}
	return s.st.orders[id], nil
}

func (s *MemoryStore) OrderByID(ctx context.Context, id int64) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.st.orders[id]
	if !ok {
		return models.Order{}, store.ErrNotFound
	}
	return o, nil
}

func (s *MemoryStore) OrderLines(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.st.lines[orderID]), nil
}

func (s *MemoryStore) SellerOrders(ctx context.Context, sellerID int64, f models.OrderFilter) ([]models.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.Order
	for id, o := range s.st.orders {
		if f.FulfillmentStatus != "" && o.FulfillmentStatus != f.FulfillmentStatus {
			continue
		}
		if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
			continue
		}
		var mine []models.OrderItem
		for _, l := range s.st.lines[id] {
			if l.SellerID == sellerID {
				mine = append(mine, l)
			}
		}
		if len(mine) == 0 {
			continue
		}
		o.Lines = mine
		matched = append(matched, o)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	_, limit, offset := store.PageBounds(f.Page, f.Limit)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

func (s *MemoryStore) SellerOwnsOrder(ctx context.Context, sellerID, orderID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.st.lines[orderID] {
		if l.SellerID == sellerID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) TransitionPayment(ctx context.Context, t store.PaymentTransition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.st.orders[t.OrderID]
	if !ok || !slices.Contains(t.From, o.PaymentStatus) {
		return false, nil
	}
	if t.MatchReference && (o.PaymentReference == nil || *o.PaymentReference != t.Reference) {
		return false, nil
	}
	o.PaymentStatus = t.To
	if t.Reference != "" {
		ref := t.Reference
		o.PaymentReference = &ref
	}
	o.UpdatedAt = time.Now().UTC()
	s.st.orders[o.ID] = o
	return true, nil
}

func (s *MemoryStore) TransitionFulfillment(ctx context.Context, orderID int64, to string, from []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.st.orders[orderID]
	if !ok || !slices.Contains(from, o.FulfillmentStatus) {
		return false, nil
	}
	o.FulfillmentStatus = to
	o.UpdatedAt = time.Now().UTC()
	s.st.orders[o.ID] = o
	return true, nil
}

func (s *MemoryStore) SetPaymentReference(ctx context.Context, orderID int64, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.st.orders[orderID]
	if !ok || (o.PaymentStatus != models.PaymentPending && o.PaymentStatus != models.PaymentFailed) {
		return false, nil
	}
	o.PaymentReference = &reference
	o.UpdatedAt = time.Now().UTC()
	s.st.orders[o.ID] = o
	return true, nil
}

func (s *MemoryStore) CreatePaymentAttempt(ctx context.Context, a *models.PaymentAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.st.attempts[a.Reference]; exists {
		return store.ErrDuplicateReference
	}
	s.st.nextAttemptID++
	a.ID = s.st.nextAttemptID
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	s.st.attempts[a.Reference] = *a
	return nil
}

func (s *MemoryStore) PaymentAttempt(ctx context.Context, reference string) (models.PaymentAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.st.attempts[reference]
	if !ok {
		return models.PaymentAttempt{}, store.ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) MarkPaymentAttempt(ctx context.Context, reference, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.st.attempts[reference]
	if !ok {
		return store.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	s.st.attempts[reference] = a
	return nil
}

func (s *MemoryStore) StalePaymentAttempts(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.PaymentAttempt
	for _, a := range s.st.attempts {
		if a.Status != models.AttemptInitialized || !a.CreatedAt.Before(olderThan) {
			continue
		}
		if o, ok := s.st.orders[a.OrderID]; !ok || o.PaymentStatus != models.PaymentPending {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].CheckedAt, out[j].CheckedAt
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil || b == nil:
			return a == nil
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) TouchPaymentAttempt(ctx context.Context, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.st.attempts[reference]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	a.CheckedAt = &now
	s.st.attempts[reference] = a
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

func (st *state) cartLines(session string) []models.CartLine {
	var out []models.CartLine
	for _, item := range st.cart {
		if item.SessionToken != session {
			continue
		}
		out = append(out, st.joinLine(item))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *state) joinLine(item models.CartItem) models.CartLine {
	p := st.products[item.ProductID]
	return models.CartLine{
		ID:            item.ID,
		ProductID:     item.ProductID,
		SellerID:      p.SellerID,
		Name:          p.Name,
		Price:         p.Price,
		StockQuantity: p.StockQuantity,
		Status:        p.Status,
		Quantity:      item.Quantity,
		LineTotal:     p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
	}
}

// memTx mutates a private copy of the state. Row locks are implicit: the
// store mutex is held for the whole transaction.
type memTx struct {
	st *state
}

func (tx *memTx) Product(ctx context.Context, id int64) (models.Product, error) {
	p, ok := tx.st.products[id]
	if !ok {
		return models.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (tx *memTx) LockProduct(ctx context.Context, id int64) (models.Product, error) {
	return tx.Product(ctx, id)
}

func (tx *memTx) DecrementStock(ctx context.Context, id int64, qty int) (bool, error) {
	p, ok := tx.st.products[id]
	if !ok || p.Status != models.ProductActive || p.StockQuantity < qty {
		return false, nil
	}
	p.StockQuantity -= qty
	if p.StockQuantity == 0 {
		p.Status = models.ProductSoldOut
	}
	p.UpdatedAt = time.Now().UTC()
	tx.st.products[id] = p
	return true, nil
}

func (tx *memTx) LockCartLines(ctx context.Context, session string) ([]models.CartLine, error) {
	return tx.st.cartLines(session), nil
}

func (tx *memTx) CartLine(ctx context.Context, session string, lineID int64) (models.CartLine, error) {
	item, ok := tx.st.cart[lineID]
	if !ok || item.SessionToken != session {
		return models.CartLine{}, store.ErrNotFound
	}
	return tx.st.joinLine(item), nil
}

func (tx *memTx) UpsertCartLine(ctx context.Context, session string, productID int64, qty int) (int64, error) {
	now := time.Now().UTC()
	key := cartKey{session: session, productID: productID}
	if id, ok := tx.st.cartKeys[key]; ok {
		item := tx.st.cart[id]
		if item.Quantity+qty > models.MaxLineQuantity {
			return 0, store.ErrQuantityOutOfRange
		}
		item.Quantity += qty
		item.UpdatedAt = now
		tx.st.cart[id] = item
		return id, nil
	}
	tx.st.nextCartID++
	id := tx.st.nextCartID
	tx.st.cart[id] = models.CartItem{
		ID:           id,
		SessionToken: session,
		ProductID:    productID,
		Quantity:     qty,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx.st.cartKeys[key] = id
	return id, nil
}

func (tx *memTx) SetCartLineQuantity(ctx context.Context, session string, lineID int64, qty int) (bool, error) {
	item, ok := tx.st.cart[lineID]
	if !ok || item.SessionToken != session {
		return false, nil
	}
	item.Quantity = qty
	item.UpdatedAt = time.Now().UTC()
	tx.st.cart[lineID] = item
	return true, nil
}

func (tx *memTx) DeleteCartLine(ctx context.Context, session string, lineID int64) (bool, error) {
	item, ok := tx.st.cart[lineID]
	if !ok || item.SessionToken != session {
		return false, nil
	}
	delete(tx.st.cart, lineID)
	delete(tx.st.cartKeys, cartKey{session: session, productID: item.ProductID})
	return true, nil
}

func (tx *memTx) ClearCart(ctx context.Context, session string) (int64, error) {
	var n int64
	for id, item := range tx.st.cart {
		if item.SessionToken == session {
			delete(tx.st.cart, id)
			delete(tx.st.cartKeys, cartKey{session: session, productID: item.ProductID})
			n++
		}
	}
	return n, nil
}

func (tx *memTx) InsertOrder(ctx context.Context, o *models.Order) error {
	if _, exists := tx.st.numbers[o.OrderNumber]; exists {
		return store.ErrDuplicateOrderNumber
	}
	tx.st.nextOrderID++
	o.ID = tx.st.nextOrderID
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	saved := *o
	saved.Lines = nil
	tx.st.orders[o.ID] = saved
	tx.st.numbers[o.OrderNumber] = o.ID
	return nil
}

func (tx *memTx) InsertOrderLines(ctx context.Context, orderID int64, lines []models.OrderItem) error {
	if _, ok := tx.st.orders[orderID]; !ok {
		return store.ErrNotFound
	}
	existing := tx.st.lines[orderID]
	out := make([]models.OrderItem, len(existing), len(existing)+len(lines))
	copy(out, existing)
	now := time.Now().UTC()
	for i := range lines {
		tx.st.nextLineID++
		lines[i].ID = tx.st.nextLineID
		lines[i].OrderID = orderID
		lines[i].CreatedAt = now
		out = append(out, lines[i])
	}
	tx.st.lines[orderID] = out
	return nil
}
