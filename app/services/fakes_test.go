package services_test

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/pkg/paging"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeProducts struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]*models.Product
	// lose makes DecrementStock report a lost race for that product.
	lose     map[primitive.ObjectID]bool
	restored map[primitive.ObjectID]int
	failRate bool
}

func newFakeProducts(ps ...*models.Product) *fakeProducts {
	f := &fakeProducts{
		items:    map[primitive.ObjectID]*models.Product{},
		lose:     map[primitive.ObjectID]bool{},
		restored: map[primitive.ObjectID]int{},
	}
	for _, p := range ps {
		if p.ID.IsZero() {
			p.ID = primitive.NewObjectID()
		}
		if p.Status == "" {
			p.Status = models.ProductActive
		}
		f.items[p.ID] = p
	}
	return f
}

func (f *fakeProducts) stock(id primitive.ObjectID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id].Stock
}

func (f *fakeProducts) sales(id primitive.ObjectID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id].SalesCount
}

func (f *fakeProducts) FindByID(_ context.Context, id primitive.ObjectID) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[primitive.ObjectID]*models.Product{}
	for _, id := range ids {
		if p, ok := f.items[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (f *fakeProducts) List(_ context.Context, flt repositories.ProductFilter, p paging.Params) ([]models.Product, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Product
	for _, it := range f.items {
		if !flt.IncludeInactive && !it.IsActive() {
			continue
		}
		if flt.Category != "" && it.Category != flt.Category {
			continue
		}
		if flt.StockBelow != nil && it.Stock >= *flt.StockBelow {
			continue
		}
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stock < out[j].Stock })
	return out, int64(len(out)), nil
}

func (f *fakeProducts) Count(ctx context.Context, flt repositories.ProductFilter) (int64, error) {
	_, n, err := f.List(ctx, flt, paging.New(1, paging.MaxLimit))
	return n, err
}

func (f *fakeProducts) Create(_ context.Context, p *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = primitive.NewObjectID()
	cp := *p
	f.items[p.ID] = &cp
	return nil
}

func (f *fakeProducts) Update(_ context.Context, id primitive.ObjectID, patch repositories.ProductPatch) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.DiscountPrice != nil {
		p.DiscountPrice = patch.DiscountPrice
	}
	if patch.ClearDiscount {
		p.DiscountPrice = nil
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) AddImage(_ context.Context, id primitive.ObjectID, url string) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	p.Images = append(p.Images, url)
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) DecrementStock(_ context.Context, id primitive.ObjectID, qty int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok || f.lose[id] || !p.IsActive() || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	p.SalesCount += qty
	return true, nil
}

func (f *fakeProducts) RestoreStock(_ context.Context, id primitive.ObjectID, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return repositories.ErrNotFound
	}
	p.Stock += qty
	p.SalesCount -= qty
	f.restored[id] += qty
	return nil
}

func (f *fakeProducts) ApplyRating(_ context.Context, id primitive.ObjectID, rating int) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRate {
		return nil, context.DeadlineExceeded
	}
	p, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if p.Ratings.Sum == 0 && p.Ratings.Count > 0 {
		p.Ratings.Sum = int(math.Round(p.Ratings.Average * float64(p.Ratings.Count)))
	}
	p.Ratings.Sum += rating
	p.Ratings.Count++
	p.Ratings.Average = float64(p.Ratings.Sum) / float64(p.Ratings.Count)
	cp := *p
	return &cp, nil
}

type fakeOrders struct {
	mu      sync.Mutex
	items   map[primitive.ObjectID]*models.Order
	numbers map[string]bool
	// dupes makes the next n inserts collide on the order number.
	dupes int
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{items: map[primitive.ObjectID]*models.Order{}, numbers: map[string]bool{}}
}

func (f *fakeOrders) put(o *models.Order) *models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	f.items[o.ID] = o
	return o
}

func (f *fakeOrders) Insert(_ context.Context, o *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dupes > 0 {
		f.dupes--
		return repositories.ErrDuplicate
	}
	if f.numbers[o.OrderNumber] {
		return repositories.ErrDuplicate
	}
	o.ID = primitive.NewObjectID()
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	f.numbers[o.OrderNumber] = true
	cp := *o
	f.items[o.ID] = &cp
	return nil
}

func (f *fakeOrders) FindByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) List(_ context.Context, flt repositories.OrderFilter, p paging.Params) ([]models.Order, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Order{}
	for _, o := range f.items {
		if flt.UserID != nil && !o.OwnedBy(*flt.UserID) {
			continue
		}
		if flt.Status != "" && o.OrderStatus != flt.Status {
			continue
		}
		if flt.PaymentStatus != "" && o.PaymentStatus != flt.PaymentStatus {
			continue
		}
		out = append(out, *o)
	}
	return out, int64(len(out)), nil
}

func (f *fakeOrders) UpdateIf(_ context.Context, id primitive.ObjectID, from []models.OrderStatus, patch repositories.OrderPatch) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if len(from) > 0 {
		match := false
		for _, s := range from {
			if o.OrderStatus == s {
				match = true
			}
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

func (f *fakeOrders) StatusBreakdown(_ context.Context) ([]repositories.StatusBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc := map[models.OrderStatus]*repositories.StatusBucket{}
	for _, o := range f.items {
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

func (f *fakeOrders) DailyRevenueSince(_ context.Context, _ time.Time) ([]repositories.DailyRevenue, error) {
	return []repositories.DailyRevenue{}, nil
}

func (f *fakeOrders) Recent(_ context.Context, n int) ([]models.Order, error) {
	list, _, _ := f.List(context.Background(), repositories.OrderFilter{}, paging.New(1, n))
	if len(list) > n {
		list = list[:n]
	}
	return list, nil
}

type fakeReviews struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]*models.Review
}

func newFakeReviews() *fakeReviews {
	return &fakeReviews{items: map[primitive.ObjectID]*models.Review{}}
}

func (f *fakeReviews) Insert(_ context.Context, r *models.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.items {
		if x.UserID == r.UserID && x.OrderID == r.OrderID && x.ProductID == r.ProductID {
			return repositories.ErrDuplicate
		}
	}
	r.ID = primitive.NewObjectID()
	cp := *r
	f.items[r.ID] = &cp
	return nil
}

func (f *fakeReviews) Delete(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeReviews) Exists(_ context.Context, userID, orderID, productID primitive.ObjectID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.items {
		if x.UserID == userID && x.OrderID == orderID && x.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReviews) ListByProduct(_ context.Context, productID primitive.ObjectID, _ paging.Params) ([]models.Review, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Review{}
	for _, x := range f.items {
		if x.ProductID == productID {
			out = append(out, *x)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeReviews) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

type fakeUsers struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]*models.User
}

func newFakeUsers(us ...*models.User) *fakeUsers {
	f := &fakeUsers{items: map[primitive.ObjectID]*models.User{}}
	for _, u := range us {
		if u.ID.IsZero() {
			u.ID = primitive.NewObjectID()
		}
		f.items[u.ID] = u
	}
	return f
}

func (f *fakeUsers) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.items {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeUsers) Create(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.items {
		if x.Email == u.Email {
			return repositories.ErrDuplicate
		}
	}
	u.ID = primitive.NewObjectID()
	cp := *u
	f.items[u.ID] = &cp
	return nil
}

func (f *fakeUsers) CountActive(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, u := range f.items {
		if u.IsActive {
			n++
		}
	}
	return n, nil
}

func (f *fakeUsers) with(id primitive.ObjectID, fn func(u *models.User) error) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	cp := *u
	cp.Addresses = append([]models.Address(nil), u.Addresses...)
	return &cp, nil
}

func (f *fakeUsers) AddAddress(_ context.Context, userID primitive.ObjectID, a models.Address) (*models.User, error) {
	return f.with(userID, func(u *models.User) error {
		if a.IsDefault {
			for i := range u.Addresses {
				u.Addresses[i].IsDefault = false
			}
		}
		u.Addresses = append(u.Addresses, a)
		return nil
	})
}

func (f *fakeUsers) UpdateAddress(_ context.Context, userID, addressID primitive.ObjectID, patch repositories.AddressPatch) (*models.User, error) {
	return f.with(userID, func(u *models.User) error {
		idx := -1
		for i := range u.Addresses {
			if u.Addresses[i].ID == addressID {
				idx = i
			}
		}
		if idx < 0 {
			return repositories.ErrNotFound
		}
		if patch.City != nil {
			u.Addresses[idx].City = *patch.City
		}
		if patch.IsDefault != nil {
			if *patch.IsDefault {
				for i := range u.Addresses {
					u.Addresses[i].IsDefault = false
				}
			}
			u.Addresses[idx].IsDefault = *patch.IsDefault
		}
		return nil
	})
}

func (f *fakeUsers) RemoveAddress(_ context.Context, userID, addressID primitive.ObjectID) (*models.User, error) {
	return f.with(userID, func(u *models.User) error {
		for i := range u.Addresses {
			if u.Addresses[i].ID == addressID {
				u.Addresses = append(u.Addresses[:i], u.Addresses[i+1:]...)
				return nil
			}
		}
		return repositories.ErrNotFound
	})
}

func (f *fakeUsers) AddToWishlist(_ context.Context, userID, productID primitive.ObjectID) (*models.User, error) {
	return f.with(userID, func(u *models.User) error {
		for _, id := range u.Wishlist {
			if id == productID {
				return nil
			}
		}
		u.Wishlist = append(u.Wishlist, productID)
		return nil
	})
}

func (f *fakeUsers) RemoveFromWishlist(_ context.Context, userID, productID primitive.ObjectID) (*models.User, error) {
	return f.with(userID, func(u *models.User) error {
		out := u.Wishlist[:0]
		for _, id := range u.Wishlist {
			if id != productID {
				out = append(out, id)
			}
		}
		u.Wishlist = out
		return nil
	})
}

type sentNotification struct {
	kind  string
	email string
	order string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *fakeNotifier) record(kind, email string, o *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNotification{kind: kind, email: email, order: o.OrderNumber})
	return nil
}

func (n *fakeNotifier) OrderPlaced(_ context.Context, email string, o *models.Order) error {
	return n.record("placed", email, o)
}

func (n *fakeNotifier) OrderStatusChanged(_ context.Context, email string, o *models.Order) error {
	return n.record("status", email, o)
}

func (n *fakeNotifier) all() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

type fakeEvents struct {
	mu    sync.Mutex
	names []string
}

func (e *fakeEvents) FireAsync(name string, _ interface{}) {
	e.mu.Lock()
	e.names = append(e.names, name)
	e.mu.Unlock()
}

func (e *fakeEvents) fired() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.names...)
}
