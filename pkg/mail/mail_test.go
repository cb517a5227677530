package mail_test

import (
	"context"
	"strings"
	"testing"

	"github.com/ourstore/storefront/pkg/mail"
	"github.com/stretchr/testify/assert"
)

var cfg = mail.SMTP{From: "orders@ourstore.example", FromName: "Our Store"}

func TestRenderHTMLOnly(t *testing.T) {
	raw := string(mail.Render(cfg, mail.Message{To: []string{"a@example.com"}, Subject: "Order ORD-1", HTML: "<p>Thanks</p>"}))

	assert.Contains(t, raw, "From: Our Store <orders@ourstore.example>\r\n")
	assert.Contains(t, raw, "To: a@example.com\r\n")
	assert.Contains(t, raw, "Subject: Order ORD-1\r\n")
	assert.Contains(t, raw, `Content-Type: text/html; charset="UTF-8"`)
	assert.NotContains(t, raw, "multipart")
}

func TestRenderAlternative(t *testing.T) {
	raw := string(mail.Render(cfg, mail.Message{To: []string{"a@example.com"}, HTML: "<p>x</p>", Text: "x"}))

	assert.Contains(t, raw, "multipart/alternative")
	assert.Less(t, strings.Index(raw, "text/plain"), strings.Index(raw, "text/html"), "plain part comes first")
}

func TestLogMailerNeedsRecipient(t *testing.T) {
	assert.ErrorIs(t, mail.LogMailer{}.Send(context.Background(), mail.Message{}), mail.ErrNoRecipients)
	assert.NoError(t, mail.LogMailer{}.Send(context.Background(), mail.Message{To: []string{"a@example.com"}}))
}
