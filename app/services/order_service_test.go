package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/app/services"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/auth"
	"github.com/ourstore/storefront/pkg/paging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type harness struct {
	products *fakeProducts
	orders   *fakeOrders
	reviews  *fakeReviews
	users    *fakeUsers
	notifier *fakeNotifier
	events   *fakeEvents
	deps     *services.Deps
	svc      *services.OrderService

	mug   *models.Product
	shirt *models.Product
	buyer *models.User
	admin *models.User
}

func newHarness() *harness {
	h := &harness{
		mug:   &models.Product{Title: "Mug", Price: 1000, Stock: 5},
		shirt: &models.Product{Title: "Shirt", Price: 3500, DiscountPrice: ptr(3000.0), Stock: 10},
		buyer: &models.User{FullName: "Karma", Email: "karma@example.com", Role: models.RoleUser, IsActive: true},
		admin: &models.User{FullName: "Admin", Email: "admin@example.com", Role: models.RoleAdmin, IsActive: true},
	}
	h.products = newFakeProducts(h.mug, h.shirt)
	h.orders = newFakeOrders()
	h.reviews = newFakeReviews()
	h.users = newFakeUsers(h.buyer, h.admin)
	h.notifier = &fakeNotifier{}
	h.events = &fakeEvents{}
	h.deps = &services.Deps{
		Products: h.products,
		Orders:   h.orders,
		Reviews:  h.reviews,
		Users:    h.users,
		Notifier: h.notifier,
		Events:   h.events,
		Pricing:  services.Pricing{FreeShippingAbove: 5000, FlatShippingFee: 150, TaxRate: 0.05},
	}
	h.svc = services.NewOrderService(h.deps)
	return h
}

func ptr[T any](v T) *T { return &v }

func pageOne() paging.Params { return paging.New(1, 10) }

func repositoriesPatchStatus(st models.ProductStatus) repositories.ProductPatch {
	return repositories.ProductPatch{Status: &st}
}

func (h *harness) customer() auth.Principal {
	return auth.Principal{UserID: h.buyer.ID.Hex(), Email: h.buyer.Email, Role: models.RoleUser}
}

func (h *harness) adminPrincipal() auth.Principal {
	return auth.Principal{UserID: h.admin.ID.Hex(), Email: h.admin.Email, Role: models.RoleAdmin}
}

func address() models.ShippingAddress {
	return models.ShippingAddress{
		FullName:     "Karma Wangmo",
		Phone:        "+975 17 123 456",
		AddressLine1: "Norzin Lam",
		City:         "Thimphu",
		Dzongkhag:    "Thimphu",
	}
}

func checkout(lines ...services.OrderLine) services.PlaceOrderInput {
	return services.PlaceOrderInput{Items: lines, ShippingAddress: address(), PaymentMethod: models.PaymentCOD}
}

func line(p *models.Product, qty int) services.OrderLine {
	return services.OrderLine{ProductID: p.ID.Hex(), Quantity: qty}
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func TestPlaceComputesTotalsAndTakesStock(t *testing.T) {
	h := newHarness()
	caller := h.customer()

	o, err := h.svc.Place(context.Background(), &caller, checkout(line(h.mug, 2)))
	require.NoError(t, err)

	assert.Equal(t, 2000.0, o.Subtotal)
	assert.Equal(t, 150.0, o.ShippingFee)
	assert.Equal(t, 100.0, o.Tax)
	assert.Equal(t, 2250.0, o.Total)
	assert.Equal(t, models.OrderPending, o.OrderStatus)
	assert.Equal(t, models.PaymentPending, o.PaymentStatus)
	assert.Regexp(t, `^ORD-[0-9A-Z]{26}$`, o.OrderNumber)
	require.NotNil(t, o.UserID)
	assert.Equal(t, h.buyer.ID, *o.UserID)
	assert.False(t, o.IsGuest)
	assert.Equal(t, 3, h.products.stock(h.mug.ID))

	assert.Equal(t, []sentNotification{{kind: "placed", email: "karma@example.com", order: o.OrderNumber}}, h.notifier.all())
	assert.Equal(t, []string{services.EventOrderPlaced}, h.events.fired())
}

func TestPlaceFreeShippingAboveThreshold(t *testing.T) {
	h := newHarness()
	caller := h.customer()

	// 2 shirts at the 3000 discount price.
	o, err := h.svc.Place(context.Background(), &caller, checkout(line(h.shirt, 2)))
	require.NoError(t, err)

	assert.Equal(t, 6000.0, o.Subtotal)
	assert.Equal(t, 0.0, o.ShippingFee)
	assert.Equal(t, 300.0, o.Tax)
	assert.Equal(t, 6300.0, o.Total)
	assert.Equal(t, 3000.0, o.Items[0].Price, "discount price is snapshotted")
}

func TestPlaceRejectsOverselling(t *testing.T) {
	h := newHarness()
	caller := h.customer()

	// Two lines of the same product are summed against stock.
	_, err := h.svc.Place(context.Background(), &caller, checkout(line(h.mug, 3), line(h.mug, 3)))
	assertKind(t, err, apperr.KindInsufficientStock)
	assert.Equal(t, 5, h.products.stock(h.mug.ID))
	assert.Empty(t, h.orders.items)
}

func TestPlaceUnknownOrInactiveProduct(t *testing.T) {
	h := newHarness()
	caller := h.customer()
	_, err := h.products.Update(context.Background(), h.shirt.ID, repositoriesPatchStatus(models.ProductInactive))
	require.NoError(t, err)

	_, err = h.svc.Place(context.Background(), &caller, checkout(services.OrderLine{ProductID: primitive.NewObjectID().Hex(), Quantity: 1}))
	assertKind(t, err, apperr.KindNotFound)

	_, err = h.svc.Place(context.Background(), &caller, checkout(services.OrderLine{ProductID: "not-an-id", Quantity: 1}))
	assertKind(t, err, apperr.KindNotFound)

	_, err = h.svc.Place(context.Background(), &caller, checkout(line(h.mug, 1), line(h.shirt, 1)))
	assertKind(t, err, apperr.KindNotFound)
	assert.Equal(t, 5, h.products.stock(h.mug.ID), "nothing reserved when the read pass fails")
}

func TestPlaceRollsBackWhenALaterLineLosesItsStock(t *testing.T) {
	h := newHarness()
	caller := h.customer()
	h.products.lose[h.shirt.ID] = true

	_, err := h.svc.Place(context.Background(), &caller, checkout(line(h.mug, 2), line(h.shirt, 1)))
	assertKind(t, err, apperr.KindInsufficientStock)

	assert.Equal(t, 5, h.products.stock(h.mug.ID))
	assert.Equal(t, 2, h.products.restored[h.mug.ID])
	assert.Empty(t, h.orders.items)
	assert.Empty(t, h.notifier.all())
}

func TestPlaceRetriesOrderNumberCollisions(t *testing.T) {
	h := newHarness()
	caller := h.customer()
	h.orders.dupes = 2

	o, err := h.svc.Place(context.Background(), &caller, checkout(line(h.mug, 1)))
	require.NoError(t, err)
	assert.NotEmpty(t, o.OrderNumber)
	assert.Equal(t, 4, h.products.stock(h.mug.ID))
}

func TestPlaceGivesUpAfterRepeatedCollisions(t *testing.T) {
	h := newHarness()
	caller := h.customer()
	h.orders.dupes = 3

	_, err := h.svc.Place(context.Background(), &caller, checkout(line(h.mug, 1)))
	assertKind(t, err, apperr.KindConflict)
	assert.Equal(t, 5, h.products.stock(h.mug.ID), "stock is released")
}

func TestPlaceGuestOrder(t *testing.T) {
	h := newHarness()
	in := checkout(line(h.mug, 1))
	in.IsGuest = true
	in.GuestInfo = &models.GuestInfo{FullName: "Guest", Email: " Guest@Example.com "}

	o, err := h.svc.Place(context.Background(), nil, in)
	require.NoError(t, err)
	assert.True(t, o.IsGuest)
	assert.Nil(t, o.UserID)
	assert.Equal(t, "guest@example.com", o.GuestInfo.Email)
	assert.Equal(t, "guest@example.com", h.notifier.all()[0].email)
}

func TestPlaceGuestCheckoutBySignedInCaller(t *testing.T) {
	h := newHarness()
	caller := h.customer()
	in := checkout(line(h.mug, 1))
	in.IsGuest = true
	in.GuestInfo = &models.GuestInfo{FullName: "Pema", Email: "gift@example.com"}

	o, err := h.svc.Place(context.Background(), &caller, in)
	require.NoError(t, err)
	assert.True(t, o.IsGuest)
	assert.Nil(t, o.UserID)
	require.NotNil(t, o.GuestInfo)
	assert.Equal(t, "gift@example.com", o.GuestInfo.Email)
	assert.Equal(t, []sentNotification{{kind: "placed", email: "gift@example.com", order: o.OrderNumber}}, h.notifier.all())

	in.GuestInfo = nil
	_, err = h.svc.Place(context.Background(), &caller, in)
	assertKind(t, err, apperr.KindValidation)
	assert.Equal(t, 4, h.products.stock(h.mug.ID))
}

func TestPlaceCountsSales(t *testing.T) {
	h := newHarness()
	caller := h.customer()

	_, err := h.svc.Place(context.Background(), &caller, checkout(line(h.mug, 2), line(h.shirt, 1)))
	require.NoError(t, err)
	assert.Equal(t, 2, h.products.sales(h.mug.ID))
	assert.Equal(t, 1, h.products.sales(h.shirt.ID))

	h.products.lose[h.shirt.ID] = true
	_, err = h.svc.Place(context.Background(), &caller, checkout(line(h.mug, 1), line(h.shirt, 1)))
	assertKind(t, err, apperr.KindInsufficientStock)
	assert.Equal(t, 2, h.products.sales(h.mug.ID), "rolled back line is not counted")
}

func TestOrderItemsKeepPriceAtPurchase(t *testing.T) {
	h := newHarness()
	caller := h.customer()

	o, err := h.svc.Place(context.Background(), &caller, checkout(line(h.mug, 1), line(h.shirt, 1)))
	require.NoError(t, err)

	_, err = h.products.Update(context.Background(), h.mug.ID, repositories.ProductPatch{Price: ptr(1800.0), Title: ptr("Big Mug")})
	require.NoError(t, err)
	_, err = h.products.Update(context.Background(), h.shirt.ID, repositories.ProductPatch{ClearDiscount: true})
	require.NoError(t, err)

	stored, err := h.svc.Get(context.Background(), caller, o.ID.Hex())
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, 1000.0, stored.Items[0].Price)
	assert.Equal(t, "Mug", stored.Items[0].Title)
	assert.Equal(t, 3000.0, stored.Items[1].Price)
	assert.Equal(t, o.Total, stored.Total)
}

func TestPlaceRequiresIdentity(t *testing.T) {
	h := newHarness()

	_, err := h.svc.Place(context.Background(), nil, checkout(line(h.mug, 1)))
	assertKind(t, err, apperr.KindUnauthorized)

	in := checkout(line(h.mug, 1))
	in.IsGuest = true
	_, err = h.svc.Place(context.Background(), nil, in)
	assertKind(t, err, apperr.KindValidation)
	e, _ := apperr.As(err)
	assert.Contains(t, e.Fields, "guestInfo.email")
}

func TestPlaceValidatesInput(t *testing.T) {
	h := newHarness()
	caller := h.customer()

	in := checkout()
	in.PaymentMethod = "Barter"
	in.ShippingAddress.City = ""
	_, err := h.svc.Place(context.Background(), &caller, in)
	assertKind(t, err, apperr.KindValidation)
	e, _ := apperr.As(err)
	assert.Contains(t, e.Fields, "items")
	assert.Contains(t, e.Fields, "paymentMethod")
	assert.Contains(t, e.Fields, "shippingAddress.city")

	_, err = h.svc.Place(context.Background(), &caller, checkout(line(h.mug, 0)))
	assertKind(t, err, apperr.KindValidation)
}

func TestPlaceSurvivesNotifierFailure(t *testing.T) {
	h := newHarness()
	caller := h.customer()
	h.notifier.err = errors.New("smtp down")

	o, err := h.svc.Place(context.Background(), &caller, checkout(line(h.mug, 1)))
	require.NoError(t, err)
	assert.NotEmpty(t, o.OrderNumber)
}

func TestConcurrentPlacementsNeverOversell(t *testing.T) {
	h := newHarness()
	caller := h.customer()

	var ok, short atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Place(context.Background(), &caller, checkout(line(h.mug, 1)))
			switch {
			case err == nil:
				ok.Add(1)
			case apperr.KindOf(err) == apperr.KindInsufficientStock:
				short.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	assert.Equal(t, int32(15), short.Load())
	assert.Equal(t, 0, h.products.stock(h.mug.ID))
}

func TestListScopesToCaller(t *testing.T) {
	h := newHarness()
	caller := h.customer()
	_, err := h.svc.Place(context.Background(), &caller, checkout(line(h.mug, 1)))
	require.NoError(t, err)
	other := primitive.NewObjectID()
	h.orders.put(&models.Order{UserID: &other, OrderStatus: models.OrderPending})

	mine, page, err := h.svc.List(context.Background(), caller, services.OrderListQuery{Page: pageOne()})
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	assert.Equal(t, int64(1), page.Total)

	all, _, err := h.svc.List(context.Background(), h.adminPrincipal(), services.OrderListQuery{Page: pageOne()})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, _, err = h.svc.List(context.Background(), caller, services.OrderListQuery{Status: "Lost", Page: pageOne()})
	assertKind(t, err, apperr.KindValidation)
}

func TestGetHidesOtherUsersOrders(t *testing.T) {
	h := newHarness()
	other := primitive.NewObjectID()
	o := h.orders.put(&models.Order{UserID: &other, OrderStatus: models.OrderPending})

	_, err := h.svc.Get(context.Background(), h.customer(), o.ID.Hex())
	assertKind(t, err, apperr.KindNotFound)

	got, err := h.svc.Get(context.Background(), h.adminPrincipal(), o.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = h.svc.Get(context.Background(), h.customer(), "zzz")
	assertKind(t, err, apperr.KindNotFound)
}

func TestOrderNumbersAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		n := services.NewOrderNumber()
		require.False(t, seen[n], fmt.Sprintf("duplicate %s", n))
		seen[n] = true
	}
}
