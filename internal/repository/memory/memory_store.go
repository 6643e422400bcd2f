package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/fjod/fresh_grocery/internal/repository"
)

var errReadOnly = errors.New("write inside read-only transaction")

type sequences struct {
	product, user, cartItem, order, orderItem, subOrder, outbox int64
}

type state struct {
	seq        sequences
	products   map[int64]domain.Product
	users      map[int64]domain.User
	cart       map[int64]domain.CartItem
	orders     map[int64]domain.Order
	subOrderOf map[int64]int64 // sub-order id -> order id
	outbox     []domain.OutboxEvent
}

func newState() *state {
	return &state{
		products:   make(map[int64]domain.Product),
		users:      make(map[int64]domain.User),
		cart:       make(map[int64]domain.CartItem),
		orders:     make(map[int64]domain.Order),
		subOrderOf: make(map[int64]int64),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.seq = s.seq
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.cart {
		c.cart[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	for k, v := range s.subOrderOf {
		c.subOrderOf[k] = v
	}
	c.outbox = make([]domain.OutboxEvent, len(s.outbox))
	copy(c.outbox, s.outbox)
	return c
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	subs := make([]domain.VendorSubOrder, len(o.SubOrders))
	for i, so := range o.SubOrders {
		so.Items = append([]domain.OrderItem(nil), so.Items...)
		subs[i] = so
	}
	o.SubOrders = subs
	return o
}

// MemoryStore keeps all marketplace data in process memory.
// Update serializes writers and restores a snapshot when the unit of work fails.
type MemoryStore struct {
	mu    sync.RWMutex
	state *state
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newState()}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&memTx{st: s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{st: s.state, readOnly: true})
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

type memTx struct {
	st       *state
	readOnly bool
}

func (t *memTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

// products

func (t *memTx) CreateProduct(_ context.Context, p *domain.Product) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.seq.product++
	p.ID = t.st.seq.product
	t.st.products[p.ID] = *p
	return nil
}

func (t *memTx) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) ListProducts(_ context.Context, f repository.ProductFilter) ([]domain.Product, error) {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	result := make([]domain.Product, 0)
	for _, p := range t.st.products {
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
			continue
		}
		if f.VendorID != 0 && p.VendorID != f.VendorID {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (t *memTx) UpdateProduct(_ context.Context, p *domain.Product) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.products[p.ID]; !ok {
		return domain.ErrNotFound
	}
	t.st.products[p.ID] = *p
	return nil
}

func (t *memTx) DeleteProduct(_ context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.products[id]; !ok {
		return domain.ErrNotFound
	}
	delete(t.st.products, id)
	return nil
}

func (t *memTx) ListCategories(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	result := make([]string, 0)
	for _, p := range t.st.products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		result = append(result, p.Category)
	}
	sort.Strings(result)
	return result, nil
}

func (t *memTx) ProductInOrders(_ context.Context, productID int64) (bool, error) {
	for _, o := range t.st.orders {
		for _, it := range o.Items {
			if it.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t *memTx) ReserveStock(_ context.Context, productID int64, qty int) error {
	if err := t.writable(); err != nil {
		return err
	}
	p, ok := t.st.products[productID]
	if !ok {
		return domain.ErrNotFound
	}
	if qty < 1 {
		return domain.ErrInvalidQuantity
	}
	if p.Stock < qty {
		return &domain.InsufficientStockError{ProductID: productID, Requested: qty}
	}
	p.Stock -= qty
	t.st.products[productID] = p
	return nil
}

// users

func (t *memTx) CreateUser(_ context.Context, u *domain.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	u.Email = domain.NormalizeEmail(u.Email)
	for _, existing := range t.st.users {
		if existing.Email == u.Email {
			return domain.ErrConflict
		}
	}
	t.st.seq.user++
	u.ID = t.st.seq.user
	t.st.users[u.ID] = *u
	return nil
}

func (t *memTx) GetUser(_ context.Context, id int64) (*domain.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (t *memTx) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	for _, u := range t.st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (t *memTx) ListUsers(_ context.Context, f repository.UserFilter) ([]domain.User, error) {
	query := strings.ToLower(strings.TrimSpace(f.ProductQuery))
	result := make([]domain.User, 0)
	for _, u := range t.st.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if u.Deleted && !f.IncludeDeleted {
			continue
		}
		if query != "" && !t.sellsMatching(u.ID, query) {
			continue
		}
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (t *memTx) sellsMatching(vendorID int64, query string) bool {
	for _, p := range t.st.products {
		if p.VendorID == vendorID && strings.Contains(strings.ToLower(p.Name), query) {
			return true
		}
	}
	return false
}

func (t *memTx) UpdateUser(_ context.Context, u *domain.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.users[u.ID]; !ok {
		return domain.ErrNotFound
	}
	u.Email = domain.NormalizeEmail(u.Email)
	for id, existing := range t.st.users {
		if id != u.ID && existing.Email == u.Email {
			return domain.ErrConflict
		}
	}
	t.st.users[u.ID] = *u
	return nil
}

// cart

// LockCart only checks the customer; writers are already serialized by the store mutex.
func (t *memTx) LockCart(_ context.Context, customerID int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.users[customerID]; !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (t *memTx) GetCartItems(_ context.Context, customerID int64) ([]domain.CartItem, error) {
	result := make([]domain.CartItem, 0)
	for _, it := range t.st.cart {
		if it.CustomerID == customerID {
			result = append(result, it)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (t *memTx) GetCartItem(_ context.Context, itemID int64) (*domain.CartItem, error) {
	it, ok := t.st.cart[itemID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &it, nil
}

func (t *memTx) FindCartItem(_ context.Context, customerID, productID int64) (*domain.CartItem, error) {
	for _, it := range t.st.cart {
		if it.CustomerID == customerID && it.ProductID == productID {
			return &it, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (t *memTx) InsertCartItem(_ context.Context, item *domain.CartItem) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.products[item.ProductID]; !ok {
		return domain.ErrNotFound
	}
	for _, it := range t.st.cart {
		if it.CustomerID == item.CustomerID && it.ProductID == item.ProductID {
			return domain.ErrConflict
		}
	}
	t.st.seq.cartItem++
	item.ID = t.st.seq.cartItem
	t.st.cart[item.ID] = *item
	return nil
}

func (t *memTx) UpdateCartItemQuantity(_ context.Context, itemID int64, qty int) error {
	if err := t.writable(); err != nil {
		return err
	}
	it, ok := t.st.cart[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	it.Quantity = qty
	t.st.cart[itemID] = it
	return nil
}

func (t *memTx) IncrementCartItemQuantity(_ context.Context, itemID int64, delta int) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	it, ok := t.st.cart[itemID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	it.Quantity += delta
	t.st.cart[itemID] = it
	return it.Quantity, nil
}

func (t *memTx) DeleteCartItem(_ context.Context, itemID int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.cart[itemID]; !ok {
		return domain.ErrNotFound
	}
	delete(t.st.cart, itemID)
	return nil
}

func (t *memTx) ClearCart(_ context.Context, customerID int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	for id, it := range t.st.cart {
		if it.CustomerID == customerID {
			delete(t.st.cart, id)
		}
	}
	return nil
}

func (t *memTx) DeleteCartItemsByProduct(_ context.Context, productID int64) ([]int64, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	var customers []int64
	for id, it := range t.st.cart {
		if it.ProductID == productID {
			customers = append(customers, it.CustomerID)
			delete(t.st.cart, id)
		}
	}
	return customers, nil
}

// orders

func (t *memTx) CreateOrder(_ context.Context, o *domain.Order) error {
	if err := t.writable(); err != nil {
		return err
	}
	if o.IdempotencyKey != "" {
		for _, existing := range t.st.orders {
			if existing.CustomerID == o.CustomerID && existing.IdempotencyKey == o.IdempotencyKey {
				return domain.ErrConflict
			}
		}
	}

	t.st.seq.order++
	o.ID = t.st.seq.order

	subIDs := make(map[int64]int64, len(o.SubOrders))
	for i := range o.SubOrders {
		t.st.seq.subOrder++
		so := &o.SubOrders[i]
		so.ID = t.st.seq.subOrder
		so.OrderID = o.ID
		subIDs[so.VendorID] = so.ID
		t.st.subOrderOf[so.ID] = o.ID
	}
	for i := range o.Items {
		t.st.seq.orderItem++
		it := &o.Items[i]
		it.ID = t.st.seq.orderItem
		it.OrderID = o.ID
		it.SubOrderID = subIDs[it.VendorID]
	}
	for i := range o.SubOrders {
		so := &o.SubOrders[i]
		so.Items = nil
		for _, it := range o.Items {
			if it.SubOrderID == so.ID {
				so.Items = append(so.Items, it)
			}
		}
	}

	t.st.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (t *memTx) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	o = cloneOrder(o)
	o.Project()
	return &o, nil
}

func (t *memTx) GetOrderByIdempotencyKey(_ context.Context, customerID int64, key string) (*domain.Order, error) {
	for _, o := range t.st.orders {
		if o.CustomerID == customerID && o.IdempotencyKey == key {
			o = cloneOrder(o)
			o.Project()
			return &o, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (t *memTx) ListOrders(_ context.Context, f repository.OrderFilter, page repository.Page) ([]domain.Order, int, error) {
	matched := make([]domain.Order, 0)
	for _, o := range t.st.orders {
		if f.CustomerID != 0 && o.CustomerID != f.CustomerID {
			continue
		}
		o = cloneOrder(o)
		o.Project()
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if page.Size <= 0 {
		return matched, total, nil
	}
	start := page.Offset()
	if start >= total {
		return []domain.Order{}, total, nil
	}
	end := start + page.Size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (t *memTx) subOrder(id int64) (*domain.VendorSubOrder, error) {
	orderID, ok := t.st.subOrderOf[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	o := t.st.orders[orderID]
	for i := range o.SubOrders {
		if o.SubOrders[i].ID == id {
			return &o.SubOrders[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (t *memTx) GetSubOrder(_ context.Context, id int64) (*domain.VendorSubOrder, error) {
	so, err := t.subOrder(id)
	if err != nil {
		return nil, err
	}
	c := *so
	c.Items = append([]domain.OrderItem(nil), so.Items...)
	return &c, nil
}

func (t *memTx) ListSubOrdersByVendor(_ context.Context, vendorID int64) ([]domain.VendorSubOrder, error) {
	result := make([]domain.VendorSubOrder, 0)
	for _, o := range t.st.orders {
		for _, so := range o.SubOrders {
			if so.VendorID == vendorID {
				so.Items = append([]domain.OrderItem(nil), so.Items...)
				result = append(result, so)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (t *memTx) UpdateSubOrderStatus(_ context.Context, id int64, status domain.SubOrderStatus, expectedVersion int, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	so, err := t.subOrder(id)
	if err != nil {
		return err
	}
	if so.Version != expectedVersion {
		return domain.ErrConflict
	}
	so.Status = status
	so.Version++
	so.UpdatedAt = at
	return nil
}

// outbox

func (t *memTx) InsertOutboxEvent(_ context.Context, e *domain.OutboxEvent) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.seq.outbox++
	e.ID = t.st.seq.outbox
	t.st.outbox = append(t.st.outbox, *e)
	return nil
}

func (t *memTx) GetUnprocessedEvents(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	var result []*domain.OutboxEvent
	for _, e := range t.st.outbox {
		if e.ProcessedAt != nil {
			continue
		}
		ev := e
		result = append(result, &ev)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (t *memTx) MarkEventAsProcessed(_ context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	for i := range t.st.outbox {
		if t.st.outbox[i].ID == id {
			now := time.Now().UTC()
			t.st.outbox[i].ProcessedAt = &now
			return nil
		}
	}
	return domain.ErrNotFound
}
