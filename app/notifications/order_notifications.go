// Package notifications turns order events into queued customer e-mails
// and team alerts.
package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/config"
	"github.com/ourstore/storefront/pkg/notification"
)

// OrderSummary is the slice of an order that e-mails show.
type OrderSummary struct {
	Number         string        `json:"number"`
	CustomerName   string        `json:"customerName"`
	Status         string        `json:"status"`
	PaymentMethod  string        `json:"paymentMethod"`
	PaymentStatus  string        `json:"paymentStatus"`
	TrackingNumber string        `json:"trackingNumber,omitempty"`
	Items          []SummaryLine `json:"items"`
	Subtotal       float64       `json:"subtotal"`
	ShippingFee    float64       `json:"shippingFee"`
	Tax            float64       `json:"tax"`
	Total          float64       `json:"total"`
	Guest          bool          `json:"guest"`
}

type SummaryLine struct {
	Title    string  `json:"title"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

func Summarize(o *models.Order) OrderSummary {
	s := OrderSummary{
		Number:         o.OrderNumber,
		CustomerName:   o.ShippingAddress.FullName,
		Status:         string(o.OrderStatus),
		PaymentMethod:  string(o.PaymentMethod),
		PaymentStatus:  string(o.PaymentStatus),
		TrackingNumber: o.TrackingNumber,
		Subtotal:       o.Subtotal,
		ShippingFee:    o.ShippingFee,
		Tax:            o.Tax,
		Total:          o.Total,
		Guest:          o.IsGuest,
	}
	if o.GuestInfo != nil && o.GuestInfo.FullName != "" {
		s.CustomerName = o.GuestInfo.FullName
	}
	for _, it := range o.Items {
		s.Items = append(s.Items, SummaryLine{Title: it.Title, Quantity: it.Quantity, Price: it.Price})
	}
	return s
}

var funcs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("Nu. %.2f", v) },
	"mul":   func(p float64, q int) float64 { return p * float64(q) },
}

var placedHTML = template.Must(template.New("placed").Funcs(funcs).Parse(`<h2>Thank you for your order, {{.Summary.CustomerName}}!</h2>
<p>Your order <strong>{{.Summary.Number}}</strong> has been received and is being prepared.</p>
<table>
{{range .Summary.Items}}<tr><td>{{.Title}} &times; {{.Quantity}}</td><td>{{money (mul .Price .Quantity)}}</td></tr>
{{end}}<tr><td>Subtotal</td><td>{{money .Summary.Subtotal}}</td></tr>
<tr><td>Shipping</td><td>{{money .Summary.ShippingFee}}</td></tr>
<tr><td>Tax</td><td>{{money .Summary.Tax}}</td></tr>
<tr><td><strong>Total</strong></td><td><strong>{{money .Summary.Total}}</strong></td></tr>
</table>
<p>Payment: {{.Summary.PaymentMethod}}</p>
{{if not .Summary.Guest}}<p><a href="{{.StoreURL}}/account/orders">Track your order</a></p>{{end}}`))

var statusHTML = template.Must(template.New("status").Funcs(funcs).Parse(`<h2>Order {{.Summary.Number}} is now {{.Summary.Status}}</h2>
{{if .Summary.TrackingNumber}}<p>Tracking number: <strong>{{.Summary.TrackingNumber}}</strong></p>{{end}}
<p>Total: {{money .Summary.Total}}</p>
{{if not .Summary.Guest}}<p><a href="{{.StoreURL}}/account/orders">View your orders</a></p>{{end}}`))

func render(t *template.Template, s OrderSummary) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, struct {
		Summary  OrderSummary
		StoreURL string
	}{s, strings.TrimRight(config.StoreURL(), "/")}); err != nil {
		return fmt.Sprintf("<p>Order %s: %s</p>", template.HTMLEscapeString(s.Number), template.HTMLEscapeString(s.Status))
	}
	return buf.String()
}

// OrderPlaced mails the customer and alerts the team.
type OrderPlaced struct{ Summary OrderSummary }

func (OrderPlaced) Via() []string {
	return []string{notification.ChannelMail, notification.ChannelSlack}
}

func (n OrderPlaced) ToMail() notification.MailData {
	return notification.MailData{
		Subject: "Order confirmation " + n.Summary.Number,
		HTML:    render(placedHTML, n.Summary),
		Text:    fmt.Sprintf("Thank you for your order %s. Total: Nu. %.2f", n.Summary.Number, n.Summary.Total),
	}
}

func (n OrderPlaced) ToSlack() notification.SlackData {
	kind := "customer"
	if n.Summary.Guest {
		kind = "guest"
	}
	return notification.SlackData{
		Text: fmt.Sprintf("New order %s", n.Summary.Number),
		Attachments: []notification.SlackAttachment{{
			Color: "good",
			Title: fmt.Sprintf("Nu. %.2f via %s", n.Summary.Total, n.Summary.PaymentMethod),
			Text:  fmt.Sprintf("%d line(s), %s order", len(n.Summary.Items), kind),
		}},
	}
}

// StatusChanged tells the customer where the order stands.
type StatusChanged struct{ Summary OrderSummary }

func (StatusChanged) Via() []string { return []string{notification.ChannelMail} }

func (n StatusChanged) ToMail() notification.MailData {
	text := fmt.Sprintf("Your order %s is now %s.", n.Summary.Number, n.Summary.Status)
	if n.Summary.TrackingNumber != "" {
		text += " Tracking number: " + n.Summary.TrackingNumber
	}
	return notification.MailData{
		Subject: fmt.Sprintf("Order %s: %s", n.Summary.Number, n.Summary.Status),
		HTML:    render(statusHTML, n.Summary),
		Text:    text,
	}
}
