package notifications

import (
	"context"
	"errors"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/pkg/notification"
	"github.com/ourstore/storefront/pkg/queue"
)

const (
	JobOrderConfirmation = "orders.send_confirmation"
	JobOrderStatus       = "orders.send_status_update"
)

// Sender is what the jobs deliver through.
type Sender interface {
	SendVia(ctx context.Context, channel, address string, n notification.Notification) error
}

// SendOrderConfirmation delivers the confirmation on one channel, so a
// failing Slack webhook is retried on its own and never resends the mail.
type SendOrderConfirmation struct {
	Channel string       `json:"channel"`
	Email   string       `json:"email"`
	Summary OrderSummary `json:"summary"`
	sender  Sender
}

func (SendOrderConfirmation) Name() string { return JobOrderConfirmation }

func (j *SendOrderConfirmation) Handle(ctx context.Context) error {
	return j.sender.SendVia(ctx, channelOrMail(j.Channel), j.Email, OrderPlaced{Summary: j.Summary})
}

type SendOrderStatusUpdate struct {
	Channel string       `json:"channel"`
	Email   string       `json:"email"`
	Summary OrderSummary `json:"summary"`
	sender  Sender
}

func (SendOrderStatusUpdate) Name() string { return JobOrderStatus }

func (j *SendOrderStatusUpdate) Handle(ctx context.Context) error {
	return j.sender.SendVia(ctx, channelOrMail(j.Channel), j.Email, StatusChanged{Summary: j.Summary})
}

// channelOrMail reads jobs queued before they carried a channel as mail.
func channelOrMail(ch string) string {
	if ch == "" {
		return notification.ChannelMail
	}
	return ch
}

// Register makes the jobs runnable by m's workers.
func Register(m *queue.Manager, s Sender) {
	m.Register(JobOrderConfirmation, func() queue.Job { return &SendOrderConfirmation{sender: s} })
	m.Register(JobOrderStatus, func() queue.Job { return &SendOrderStatusUpdate{sender: s} })
	registerLowStock(m, s)
}

// Dispatcher is the part of the queue the notifier needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, job queue.Job) error
}

// QueueNotifier queues order e-mails so checkout never waits on SMTP.
type QueueNotifier struct {
	queue Dispatcher
}

func NewQueueNotifier(q Dispatcher) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

func (n *QueueNotifier) OrderPlaced(ctx context.Context, email string, o *models.Order) error {
	summary := Summarize(o)
	var errs []error
	for _, ch := range (OrderPlaced{}).Via() {
		errs = append(errs, n.queue.Dispatch(ctx, &SendOrderConfirmation{Channel: ch, Email: email, Summary: summary}))
	}
	return errors.Join(errs...)
}

func (n *QueueNotifier) OrderStatusChanged(ctx context.Context, email string, o *models.Order) error {
	summary := Summarize(o)
	var errs []error
	for _, ch := range (StatusChanged{}).Via() {
		errs = append(errs, n.queue.Dispatch(ctx, &SendOrderStatusUpdate{Channel: ch, Email: email, Summary: summary}))
	}
	return errors.Join(errs...)
}
