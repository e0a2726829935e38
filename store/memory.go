package store

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront-api/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore holds every collection in maps behind one RWMutex. It honours
// the same unique constraints as the Mongo indexes.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[primitive.ObjectID]models.User
	products   map[primitive.ObjectID]models.Product
	categories map[primitive.ObjectID]models.Category
	orders     map[primitive.ObjectID]models.Order
	reviews    map[primitive.ObjectID]models.Review
	wishlists  map[primitive.ObjectID]models.Wishlist // keyed by user
	carts      map[primitive.ObjectID]models.Cart     // keyed by user
	otps       map[primitive.ObjectID]models.Otp
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[primitive.ObjectID]models.User),
		products:   make(map[primitive.ObjectID]models.Product),
		categories: make(map[primitive.ObjectID]models.Category),
		orders:     make(map[primitive.ObjectID]models.Order),
		reviews:    make(map[primitive.ObjectID]models.Review),
		wishlists:  make(map[primitive.ObjectID]models.Wishlist),
		carts:      make(map[primitive.ObjectID]models.Cart),
		otps:       make(map[primitive.ObjectID]models.Otp),
	}
}

func (s *MemoryStore) Users() UserStore                { return memUsers{s} }
func (s *MemoryStore) Products() ProductStore          { return memProducts{s} }
func (s *MemoryStore) Categories() CategoryStore       { return memCategories{s} }
func (s *MemoryStore) Orders() OrderStore              { return memOrders{s} }
func (s *MemoryStore) Reviews() ReviewStore            { return memReviews{s} }
func (s *MemoryStore) Wishlists() WishlistStore        { return memWishlists{s} }
func (s *MemoryStore) Carts() CartStore                { return memCarts{s} }
func (s *MemoryStore) Otps() OtpStore                  { return memOtps{s} }
func (s *MemoryStore) Reports() Reports                { return memReports{s} }
func (s *MemoryStore) Kind() string                    { return "memory" }
func (s *MemoryStore) Ping(ctx context.Context) error  { return nil }
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func paginate[T any](items []T, p Page) []T {
	start := int(p.Skip())
	if start >= len(items) {
		return []T{}
	}
	end := len(items)
	if p.Limit > 0 && start+p.Limit < end {
		end = start + p.Limit
	}
	return items[start:end]
}

func idLess(a, b primitive.ObjectID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// users

type memUsers struct{ s *MemoryStore }

func cloneUser(u models.User) models.User {
	if u.Address != nil {
		a := *u.Address
		u.Address = &a
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		u.LastLogin = &t
	}
	return u
}

func (m memUsers) conflicts(u *models.User) bool {
	for id, existing := range m.s.users {
		if id == u.ID {
			continue
		}
		if existing.Email == u.Email {
			return true
		}
		if u.GoogleID != "" && existing.GoogleID == u.GoogleID {
			return true
		}
	}
	return false
}

func (m memUsers) Create(ctx context.Context, u *models.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	now := time.Now().UTC()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.Email = models.NormalizeEmail(u.Email)
	if m.conflicts(u) {
		return ErrDuplicate
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	m.s.users[u.ID] = cloneUser(*u)
	return nil
}

func (m memUsers) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneUser(u)
	return &out, nil
}

func (m memUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.FindByEmailOrGoogleID(ctx, email, "")
}

func (m memUsers) FindByEmailOrGoogleID(ctx context.Context, email, googleID string) (*models.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	email = models.NormalizeEmail(email)
	for _, u := range m.s.users {
		if u.Email == email || (googleID != "" && u.GoogleID == googleID) {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m memUsers) Update(ctx context.Context, u *models.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[u.ID]; !ok {
		return ErrNotFound
	}
	u.Email = models.NormalizeEmail(u.Email)
	if m.conflicts(u) {
		return ErrDuplicate
	}
	u.UpdatedAt = time.Now().UTC()
	m.s.users[u.ID] = cloneUser(*u)
	return nil
}

func (m memUsers) Delete(ctx context.Context, id primitive.ObjectID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.users, id)
	return nil
}

func (m memUsers) List(ctx context.Context, f UserFilter, p Page) ([]models.User, int64, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var matched []models.User
	for _, u := range m.s.users {
		if f.Search != "" && !containsFold(u.Name, f.Search) && !containsFold(u.Email, f.Search) {
			continue
		}
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Blocked != nil && u.IsBlocked != *f.Blocked {
			continue
		}
		matched = append(matched, cloneUser(u))
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if f.SortDesc {
			a, b = b, a
		}
		switch f.SortBy {
		case "name":
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		case "email":
			if a.Email != b.Email {
				return a.Email < b.Email
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return idLess(a.ID, b.ID)
	})
	return paginate(matched, p), int64(len(matched)), nil
}

// products

type memProducts struct{ s *MemoryStore }

func cloneProduct(p models.Product) models.Product {
	p.Images = append([]string{}, p.Images...)
	if p.Categories != nil {
		p.Categories = append([]primitive.ObjectID{}, p.Categories...)
	}
	return p
}

func (m memProducts) Create(ctx context.Context, p *models.Product) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	now := time.Now().UTC()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if _, ok := m.s.products[p.ID]; ok {
		return ErrDuplicate
	}
	p.CreatedAt, p.UpdatedAt = now, now
	m.s.products[p.ID] = cloneProduct(*p)
	return nil
}

func (m memProducts) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	p, ok := m.s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneProduct(p)
	return &out, nil
}

func (m memProducts) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Product, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := m.s.products[id]; ok {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func (m memProducts) Update(ctx context.Context, p *models.Product) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.products[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	m.s.products[p.ID] = cloneProduct(*p)
	return nil
}

func (m memProducts) SetRating(ctx context.Context, id primitive.ObjectID, rating float64, numReviews int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.products[id]
	if !ok {
		return ErrNotFound
	}
	p.Rating, p.NumReviews = rating, numReviews
	p.UpdatedAt = time.Now().UTC()
	m.s.products[id] = p
	return nil
}

func (m memProducts) Delete(ctx context.Context, id primitive.ObjectID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.products[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.products, id)
	return nil
}

func productMatches(p models.Product, f ProductFilter) bool {
	if f.ActiveOnly && !p.IsActive {
		return false
	}
	if f.Search != "" && !containsFold(p.Name, f.Search) && !containsFold(p.Description, f.Search) && !containsFold(p.Brand, f.Search) {
		return false
	}
	if len(f.CategoryIDs) > 0 {
		found := false
		for _, id := range f.CategoryIDs {
			if p.InCategory(id) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	if f.MinRating != nil && p.Rating < *f.MinRating {
		return false
	}
	if f.Featured != nil && p.IsFeatured != *f.Featured {
		return false
	}
	return true
}

func sortProducts(products []models.Product, order string) {
	sort.Slice(products, func(i, j int) bool {
		a, b := products[i], products[j]
		switch order {
		case SortOldest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return idLess(a.ID, b.ID)
		case SortPriceAsc:
			if a.Price != b.Price {
				return a.Price < b.Price
			}
			return idLess(a.ID, b.ID)
		case SortPriceDesc:
			if a.Price != b.Price {
				return a.Price > b.Price
			}
			return idLess(b.ID, a.ID)
		case SortRating:
			if a.Rating != b.Rating {
				return a.Rating > b.Rating
			}
			if a.NumReviews != b.NumReviews {
				return a.NumReviews > b.NumReviews
			}
			return idLess(b.ID, a.ID)
		case SortName:
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return idLess(a.ID, b.ID)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return idLess(b.ID, a.ID)
	})
}

func (m memProducts) List(ctx context.Context, f ProductFilter, p Page) ([]models.Product, int64, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var matched []models.Product
	for _, prod := range m.s.products {
		if productMatches(prod, f) {
			matched = append(matched, cloneProduct(prod))
		}
	}
	sortProducts(matched, f.Sort)
	return paginate(matched, p), int64(len(matched)), nil
}

func (m memProducts) All(ctx context.Context) ([]models.Product, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]models.Product, 0, len(m.s.products))
	for _, p := range m.s.products {
		out = append(out, cloneProduct(p))
	}
	sortProducts(out, SortOldest)
	return out, nil
}

func (m memProducts) CountInCategory(ctx context.Context, categoryID primitive.ObjectID) (int64, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var n int64
	for _, p := range m.s.products {
		if p.InCategory(categoryID) {
			n++
		}
	}
	return n, nil
}

// categories

type memCategories struct{ s *MemoryStore }

func cloneCategory(c models.Category) models.Category {
	if c.Parent != nil {
		p := *c.Parent
		c.Parent = &p
	}
	return c
}

func (m memCategories) conflicts(c *models.Category) bool {
	for id, existing := range m.s.categories {
		if id != c.ID && (existing.Name == c.Name || existing.Slug == c.Slug) {
			return true
		}
	}
	return false
}

func (m memCategories) Create(ctx context.Context, c *models.Category) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	now := time.Now().UTC()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if m.conflicts(c) {
		return ErrDuplicate
	}
	c.CreatedAt, c.UpdatedAt = now, now
	m.s.categories[c.ID] = cloneCategory(*c)
	return nil
}

func (m memCategories) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Category, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	c, ok := m.s.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneCategory(c)
	return &out, nil
}

func (m memCategories) FindBySlug(ctx context.Context, slug string) (*models.Category, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, c := range m.s.categories {
		if c.Slug == slug {
			out := cloneCategory(c)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m memCategories) Update(ctx context.Context, c *models.Category) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.categories[c.ID]; !ok {
		return ErrNotFound
	}
	if m.conflicts(c) {
		return ErrDuplicate
	}
	c.UpdatedAt = time.Now().UTC()
	m.s.categories[c.ID] = cloneCategory(*c)
	return nil
}

func (m memCategories) Delete(ctx context.Context, id primitive.ObjectID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.categories[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.categories, id)
	return nil
}

func (m memCategories) filter(keep func(models.Category) bool) []models.Category {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []models.Category{}
	for _, c := range m.s.categories {
		if keep(c) {
			out = append(out, cloneCategory(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m memCategories) List(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	return m.filter(func(c models.Category) bool { return !activeOnly || c.IsActive }), nil
}

func (m memCategories) Children(ctx context.Context, parent primitive.ObjectID) ([]models.Category, error) {
	return m.filter(func(c models.Category) bool { return c.Parent != nil && *c.Parent == parent }), nil
}

// orders

type memOrders struct{ s *MemoryStore }

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem{}, o.Items...)
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		o.DeliveredAt = &t
	}
	return o
}

func (m memOrders) Create(ctx context.Context, o *models.Order) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	now := time.Now().UTC()
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if _, ok := m.s.orders[o.ID]; ok {
		return ErrDuplicate
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	m.s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (m memOrders) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	o, ok := m.s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneOrder(o)
	return &out, nil
}

func (m memOrders) Update(ctx context.Context, o *models.Order) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.orders[o.ID]; !ok {
		return ErrNotFound
	}
	o.UpdatedAt = time.Now().UTC()
	m.s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func orderMatches(o models.Order, f OrderFilter) bool {
	if f.UserID != nil && o.User != *f.UserID {
		return false
	}
	if f.OrderStatus != "" && o.OrderStatus != f.OrderStatus {
		return false
	}
	if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
		return false
	}
	if f.From != nil && o.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !o.CreatedAt.Before(*f.To) {
		return false
	}
	if f.MinAmount != nil && o.TotalAmount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && o.TotalAmount > *f.MaxAmount {
		return false
	}
	return true
}

func (m memOrders) List(ctx context.Context, f OrderFilter, p Page) ([]models.Order, int64, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var matched []models.Order
	for _, o := range m.s.orders {
		if orderMatches(o, f) {
			matched = append(matched, cloneOrder(o))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return idLess(b.ID, a.ID)
	})
	return paginate(matched, p), int64(len(matched)), nil
}

func (m memOrders) CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var n int64
	for _, o := range m.s.orders {
		if o.User == userID {
			n++
		}
	}
	return n, nil
}

// reviews

type memReviews struct{ s *MemoryStore }

func (m memReviews) Create(ctx context.Context, r *models.Review) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.reviews {
		if existing.User == r.User && existing.Product == r.Product && existing.Order == r.Order {
			return ErrDuplicate
		}
	}
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	r.CreatedAt = time.Now().UTC()
	m.s.reviews[r.ID] = *r
	return nil
}

func (m memReviews) ListByProduct(ctx context.Context, productID primitive.ObjectID, p Page) ([]models.Review, int64, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var matched []models.Review
	for _, r := range m.s.reviews {
		if r.Product == productID {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return idLess(matched[j].ID, matched[i].ID)
	})
	return paginate(matched, p), int64(len(matched)), nil
}

func (m memReviews) Summary(ctx context.Context, productID primitive.ObjectID) (float64, int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	sum, n := 0, 0
	for _, r := range m.s.reviews {
		if r.Product == productID {
			sum += r.Rating
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(n), n, nil
}

// wishlists and carts are keyed by their owner

type memWishlists struct{ s *MemoryStore }

func (m memWishlists) Get(ctx context.Context, userID primitive.ObjectID) (*models.Wishlist, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	w, ok := m.s.wishlists[userID]
	if !ok {
		return nil, ErrNotFound
	}
	w.Items = append([]models.WishlistItem{}, w.Items...)
	return &w, nil
}

func (m memWishlists) Save(ctx context.Context, w *models.Wishlist) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if existing, ok := m.s.wishlists[w.User]; ok {
		w.ID = existing.ID
	} else if w.ID.IsZero() {
		w.ID = primitive.NewObjectID()
	}
	stored := *w
	stored.Items = append([]models.WishlistItem{}, w.Items...)
	m.s.wishlists[w.User] = stored
	return nil
}

type memCarts struct{ s *MemoryStore }

func cloneCart(c models.Cart) models.Cart {
	items := make([]models.CartItem, len(c.Items))
	for i, it := range c.Items {
		if it.Variations != nil {
			v := make(map[string]string, len(it.Variations))
			for k, val := range it.Variations {
				v[k] = val
			}
			it.Variations = v
		}
		items[i] = it
	}
	c.Items = items
	return c
}

func (m memCarts) Get(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	c, ok := m.s.carts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneCart(c)
	return &out, nil
}

func (m memCarts) Save(ctx context.Context, c *models.Cart) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if existing, ok := m.s.carts[c.User]; ok {
		c.ID = existing.ID
	} else if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	c.UpdatedAt = time.Now().UTC()
	m.s.carts[c.User] = cloneCart(*c)
	return nil
}

func (m memCarts) Delete(ctx context.Context, userID primitive.ObjectID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.carts, userID)
	return nil
}

// otps

type memOtps struct{ s *MemoryStore }

func (m memOtps) Replace(ctx context.Context, o *models.Otp) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	o.Email = models.NormalizeEmail(o.Email)
	for id, existing := range m.s.otps {
		if existing.Email == o.Email && existing.Purpose == o.Purpose {
			delete(m.s.otps, id)
		}
	}
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	m.s.otps[o.ID] = *o
	return nil
}

func (m memOtps) Find(ctx context.Context, email, purpose string) (*models.Otp, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	email = models.NormalizeEmail(email)
	for _, o := range m.s.otps {
		if o.Email == email && o.Purpose == purpose {
			out := o
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m memOtps) RecordFailure(ctx context.Context, id primitive.ObjectID) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	o, ok := m.s.otps[id]
	if !ok {
		return 0, ErrNotFound
	}
	o.Attempts++
	m.s.otps[id] = o
	return o.Attempts, nil
}

func (m memOtps) Delete(ctx context.Context, id primitive.ObjectID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.otps[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.otps, id)
	return nil
}
