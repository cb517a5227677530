// Package notification delivers a notification over each channel it asks
// for: "mail" to the customer and "slack" to the shop's team channel.
package notification

import (
	"context"
	"fmt"
	"time"

	httpc "github.com/ourstore/storefront/pkg/http"
	"github.com/ourstore/storefront/pkg/mail"
	"github.com/ourstore/storefront/pkg/metrics"
)

const (
	ChannelMail  = "mail"
	ChannelSlack = "slack"
)

type MailData struct {
	Subject string
	HTML    string
	Text    string
}

type SlackData struct {
	Text        string
	Attachments []SlackAttachment
}

type SlackAttachment struct {
	Color  string `json:"color,omitempty"`
	Title  string `json:"title,omitempty"`
	Text   string `json:"text,omitempty"`
	Footer string `json:"footer,omitempty"`
}

// Notification names its channels.
type Notification interface {
	Via() []string
}

type Mailable interface {
	ToMail() MailData
}

type Slackable interface {
	ToSlack() SlackData
}

// Sender routes notifications to channels. A channel without
// configuration (no Slack webhook) is skipped.
type Sender struct {
	mailer   mail.Mailer
	slackURL string
}

func NewSender(mailer mail.Mailer, slackWebhook string) *Sender {
	return &Sender{mailer: mailer, slackURL: slackWebhook}
}

// SendVia delivers n on one channel. Callers queue one delivery per
// channel in n.Via() so a retry repeats only the channel that failed.
func (s *Sender) SendVia(ctx context.Context, channel, address string, n Notification) error {
	if err := s.dispatch(ctx, address, channel, n); err != nil {
		metrics.NotificationFailures.WithLabelValues(channel).Inc()
		return fmt.Errorf("%s: %w", channel, err)
	}
	return nil
}

func (s *Sender) dispatch(ctx context.Context, address, channel string, n Notification) error {
	switch channel {
	case ChannelMail:
		m, ok := n.(Mailable)
		if !ok {
			return fmt.Errorf("notification: %T is not mailable", n)
		}
		d := m.ToMail()
		return s.mailer.Send(ctx, mail.Message{To: []string{address}, Subject: d.Subject, HTML: d.HTML, Text: d.Text})
	case ChannelSlack:
		sl, ok := n.(Slackable)
		if !ok {
			return fmt.Errorf("notification: %T is not slackable", n)
		}
		if s.slackURL == "" {
			return nil
		}
		return s.postSlack(ctx, sl.ToSlack())
	default:
		return fmt.Errorf("notification: unknown channel %q", channel)
	}
}

func (s *Sender) postSlack(ctx context.Context, d SlackData) error {
	resp, err := httpc.Post(s.slackURL).
		Body(struct {
			Text        string            `json:"text,omitempty"`
			Attachments []SlackAttachment `json:"attachments,omitempty"`
		}{d.Text, d.Attachments}).
		Timeout(5*time.Second).
		Retry(2, 200*time.Millisecond).
		Send(ctx)
	if err != nil {
		return fmt.Errorf("notification: slack post: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("notification: slack returned HTTP %d", resp.StatusCode)
	}
	return nil
}
