package validate_test

import (
	"testing"

	"github.com/ourstore/storefront/pkg/validate"
)

type addressInput struct {
	FullName   string `json:"fullName"   validate:"required,max=100"`
	Phone      string `json:"phone"      validate:"required,phone"`
	City       string `json:"city"       validate:"required"`
	PostalCode string `json:"postalCode" validate:"nullable,regex=^[0-9]{5}$"`
}

type lineInput struct {
	ProductID string `json:"productId" validate:"required,objectid"`
	Quantity  int    `json:"quantity"  validate:"required,gte=1,lte=100"`
}

type checkoutInput struct {
	Items         []lineInput  `json:"items"           validate:"required,min=1,dive"`
	Address       addressInput `json:"shippingAddress"`
	PaymentMethod string       `json:"paymentMethod"   validate:"required,in=COD,Online"`
	Email         string       `json:"email"           validate:"nullable,email"`
	Notes         *string      `json:"notes"           validate:"nullable,max=10"`
	Rating        *int         `json:"rating"          validate:"between=1,5"`
}

func validCheckout() checkoutInput {
	return checkoutInput{
		Items: []lineInput{{ProductID: "65f1c0a2b3d4e5f601234567", Quantity: 2}},
		Address: addressInput{
			FullName: "Karma Wangmo",
			Phone:    "+975 17 123 456",
			City:     "Thimphu",
		},
		PaymentMethod: "COD",
	}
}

func TestValidInput(t *testing.T) {
	if errs := validate.Struct(validCheckout()); validate.HasErrors(errs) {
		t.Errorf("expected no errors, got: %v", errs)
	}
}

func TestRequiredFails(t *testing.T) {
	errs := validate.Struct(checkoutInput{})
	if _, ok := errs["items"]; !ok {
		t.Error("expected items to be required")
	}
	if _, ok := errs["paymentMethod"]; !ok {
		t.Error("expected paymentMethod to be required")
	}
	if _, ok := errs["shippingAddress.fullName"]; !ok {
		t.Errorf("expected nested address errors, got %v", errs)
	}
}

func TestDiveReportsElementPath(t *testing.T) {
	in := validCheckout()
	in.Items = append(in.Items, lineInput{ProductID: "nope", Quantity: 0})

	errs := validate.Struct(in)
	if _, ok := errs["items.1.productId"]; !ok {
		t.Errorf("expected items.1.productId error, got %v", errs)
	}
	if _, ok := errs["items.1.quantity"]; !ok {
		t.Errorf("expected items.1.quantity error, got %v", errs)
	}
	if _, ok := errs["items.0.quantity"]; ok {
		t.Error("first line is valid and must not be reported")
	}
}

func TestEmptySliceFailsMin(t *testing.T) {
	type in struct {
		Items []lineInput `json:"items" validate:"min=1,dive"`
	}
	if errs := validate.Struct(in{Items: []lineInput{}}); !validate.HasErrors(errs) {
		t.Error("expected empty items to fail min=1")
	}
}

func TestInRule(t *testing.T) {
	in := validCheckout()
	in.PaymentMethod = "Barter"
	if errs := validate.Struct(in); errs["paymentMethod"] == "" {
		t.Error("expected invalid payment method to fail")
	}
	in.PaymentMethod = "Online"
	if errs := validate.Struct(in); validate.HasErrors(errs) {
		t.Errorf("expected Online to pass: %v", errs)
	}
}

func TestNullableSkipsRules(t *testing.T) {
	in := validCheckout()
	in.Email = ""
	if errs := validate.Struct(in); validate.HasErrors(errs) {
		t.Errorf("expected empty nullable to pass: %v", errs)
	}
	in.Email = "not-an-email"
	if errs := validate.Struct(in); errs["email"] == "" {
		t.Error("expected invalid email to fail")
	}
}

func TestPointerFields(t *testing.T) {
	in := validCheckout()
	long := "a note that is far too long"
	in.Notes = &long
	if errs := validate.Struct(in); errs["notes"] == "" {
		t.Error("expected long notes to fail max")
	}

	six := 6
	in = validCheckout()
	in.Rating = &six
	if errs := validate.Struct(in); errs["rating"] == "" {
		t.Error("expected rating 6 to fail between=1,5")
	}

	in.Rating = nil
	if errs := validate.Struct(in); validate.HasErrors(errs) {
		t.Errorf("nil optional pointer must pass: %v", errs)
	}
}

func TestRegexRule(t *testing.T) {
	in := validCheckout()
	in.Address.PostalCode = "11001"
	if errs := validate.Struct(in); validate.HasErrors(errs) {
		t.Errorf("expected postal code to pass: %v", errs)
	}
	in.Address.PostalCode = "ABC"
	if errs := validate.Struct(in); errs["shippingAddress.postalCode"] == "" {
		t.Error("expected malformed postal code to fail")
	}
}

func TestFirstFailingRuleWins(t *testing.T) {
	type in struct {
		Quantity int `json:"quantity" validate:"required,gte=1"`
	}
	errs := validate.Struct(in{})
	if errs["quantity"] != "The quantity field is required." {
		t.Errorf("unexpected message: %q", errs["quantity"])
	}
}
