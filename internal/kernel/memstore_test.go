package kernel_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/internal/kernel"
	"github.com/ourstore/storefront/pkg/paging"
)

// memProducts, memOrders, memReviews and memUsers keep the kernel tests off
// a database. They honour the conditional semantics the services rely on.

type memProducts struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]*models.Product
}

func (m *memProducts) get(id primitive.ObjectID) (*models.Product, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProducts) stock(id primitive.ObjectID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Stock
}

func (m *memProducts) FindByID(_ context.Context, id primitive.ObjectID) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *memProducts) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[primitive.ObjectID]*models.Product{}
	for _, id := range ids {
		if p, err := m.get(id); err == nil {
			out[id] = p
		}
	}
	return out, nil
}

func (m *memProducts) List(_ context.Context, f repositories.ProductFilter, _ paging.Params) ([]models.Product, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Product{}
	for _, p := range m.items {
		if !f.IncludeInactive && !p.IsActive() {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(f.Search)) {
			continue
		}
		if f.StockBelow != nil && p.Stock >= *f.StockBelow {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, int64(len(out)), nil
}

func (m *memProducts) Count(ctx context.Context, f repositories.ProductFilter) (int64, error) {
	_, n, err := m.List(ctx, f, paging.Params{})
	return n, err
}

func (m *memProducts) Create(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = primitive.NewObjectID()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *memProducts) Update(_ context.Context, id primitive.ObjectID, patch repositories.ProductPatch) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	return m.get(id)
}

func (m *memProducts) AddImage(_ context.Context, id primitive.ObjectID, url string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	p.Images = append(p.Images, url)
	return m.get(id)
}

func (m *memProducts) DecrementStock(_ context.Context, id primitive.ObjectID, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok || !p.IsActive() || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	p.SalesCount += qty
	return true, nil
}

func (m *memProducts) RestoreStock(_ context.Context, id primitive.ObjectID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return repositories.ErrNotFound
	}
	p.Stock += qty
	p.SalesCount -= qty
	return nil
}

func (m *memProducts) ApplyRating(_ context.Context, id primitive.ObjectID, rating int) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	p.Ratings.Sum += rating
	p.Ratings.Count++
	p.Ratings.Average = float64(p.Ratings.Sum) / float64(p.Ratings.Count)
	return m.get(id)
}

type memOrders struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]*models.Order
}

func (m *memOrders) Insert(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.items {
		if x.OrderNumber == o.OrderNumber {
			return repositories.ErrDuplicate
		}
	}
	o.ID = primitive.NewObjectID()
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	m.items[o.ID] = &cp
	return nil
}

func (m *memOrders) FindByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) List(_ context.Context, f repositories.OrderFilter, _ paging.Params) ([]models.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for _, o := range m.items {
		if f.UserID != nil && !o.OwnedBy(*f.UserID) {
			continue
		}
		if f.Status != "" && o.OrderStatus != f.Status {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (m *memOrders) UpdateIf(_ context.Context, id primitive.ObjectID, from []models.OrderStatus, patch repositories.OrderPatch) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if len(from) > 0 {
		match := false
		for _, s := range from {
			match = match || o.OrderStatus == s
		}
		if !match {
			return nil, repositories.ErrNotFound
		}
	}
	if patch.OrderStatus != nil {
		o.OrderStatus = *patch.OrderStatus
	}
	if patch.PaymentStatus != nil {
		o.PaymentStatus = *patch.PaymentStatus
	}
	if patch.TrackingNumber != nil {
		o.TrackingNumber = *patch.TrackingNumber
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) StatusBreakdown(_ context.Context) ([]repositories.StatusBucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc := map[models.OrderStatus]*repositories.StatusBucket{}
	for _, o := range m.items {
		b, ok := acc[o.OrderStatus]
		if !ok {
			b = &repositories.StatusBucket{Status: o.OrderStatus}
			acc[o.OrderStatus] = b
		}
		b.Count++
		b.Revenue += o.Total
	}
	out := []repositories.StatusBucket{}
	for _, b := range acc {
		out = append(out, *b)
	}
	return out, nil
}

func (m *memOrders) DailyRevenueSince(context.Context, time.Time) ([]repositories.DailyRevenue, error) {
	return []repositories.DailyRevenue{}, nil
}

func (m *memOrders) Recent(ctx context.Context, n int) ([]models.Order, error) {
	list, _, err := m.List(ctx, repositories.OrderFilter{}, paging.Params{})
	if len(list) > n {
		list = list[:n]
	}
	return list, err
}

type memReviews struct {
	mu    sync.Mutex
	items []models.Review
}

func (m *memReviews) Insert(_ context.Context, r *models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.items {
		if x.UserID == r.UserID && x.OrderID == r.OrderID && x.ProductID == r.ProductID {
			return repositories.ErrDuplicate
		}
	}
	r.ID = primitive.NewObjectID()
	m.items = append(m.items, *r)
	return nil
}

func (m *memReviews) Delete(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.items {
		if x.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (m *memReviews) Exists(_ context.Context, userID, orderID, productID primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.items {
		if x.UserID == userID && x.OrderID == orderID && x.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memReviews) ListByProduct(_ context.Context, productID primitive.ObjectID, _ paging.Params) ([]models.Review, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Review{}
	for _, x := range m.items {
		if x.ProductID == productID {
			out = append(out, x)
		}
	}
	return out, int64(len(out)), nil
}

type memUsers struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]*models.User
}

func (m *memUsers) edit(id primitive.ObjectID, fn func(u *models.User)) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	fn(u)
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	return m.edit(id, func(*models.User) {})
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.items {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.items {
		if x.Email == u.Email {
			return repositories.ErrDuplicate
		}
	}
	u.ID = primitive.NewObjectID()
	cp := *u
	m.items[u.ID] = &cp
	return nil
}

func (m *memUsers) CountActive(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.items {
		if u.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *memUsers) AddAddress(_ context.Context, userID primitive.ObjectID, a models.Address) (*models.User, error) {
	return m.edit(userID, func(u *models.User) {
		if a.IsDefault {
			for i := range u.Addresses {
				u.Addresses[i].IsDefault = false
			}
		}
		u.Addresses = append(u.Addresses, a)
	})
}

func (m *memUsers) UpdateAddress(_ context.Context, userID, addressID primitive.ObjectID, patch repositories.AddressPatch) (*models.User, error) {
	return m.edit(userID, func(u *models.User) {
		for i := range u.Addresses {
			if u.Addresses[i].ID == addressID && patch.City != nil {
				u.Addresses[i].City = *patch.City
			}
		}
	})
}

func (m *memUsers) RemoveAddress(_ context.Context, userID, addressID primitive.ObjectID) (*models.User, error) {
	return m.edit(userID, func(u *models.User) {
		kept := u.Addresses[:0]
		for _, a := range u.Addresses {
			if a.ID != addressID {
				kept = append(kept, a)
			}
		}
		u.Addresses = kept
	})
}

func (m *memUsers) AddToWishlist(_ context.Context, userID, productID primitive.ObjectID) (*models.User, error) {
	return m.edit(userID, func(u *models.User) {
		for _, id := range u.Wishlist {
			if id == productID {
				return
			}
		}
		u.Wishlist = append(u.Wishlist, productID)
	})
}

func (m *memUsers) RemoveFromWishlist(_ context.Context, userID, productID primitive.ObjectID) (*models.User, error) {
	return m.edit(userID, func(u *models.User) {
		kept := u.Wishlist[:0]
		for _, id := range u.Wishlist {
			if id != productID {
				kept = append(kept, id)
			}
		}
		u.Wishlist = kept
	})
}

type memStores struct {
	products *memProducts
	orders   *memOrders
	reviews  *memReviews
	users    *memUsers
}

func newMemStores() *memStores {
	return &memStores{
		products: &memProducts{items: map[primitive.ObjectID]*models.Product{}},
		orders:   &memOrders{items: map[primitive.ObjectID]*models.Order{}},
		reviews:  &memReviews{},
		users:    &memUsers{items: map[primitive.ObjectID]*models.User{}},
	}
}

func (s *memStores) stores() kernel.Stores {
	return kernel.Stores{Products: s.products, Orders: s.orders, Reviews: s.reviews, Users: s.users}
}

func (s *memStores) addProduct(title string, price float64, stock int) *models.Product {
	p := &models.Product{
		Title:       title,
		Description: title,
		Price:       price,
		Category:    "Gifts",
		Stock:       stock,
		Status:      models.ProductActive,
	}
	_ = s.products.Create(context.Background(), p)
	return p
}
