package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/pkg/notification"
	"github.com/ourstore/storefront/pkg/queue"
)

const JobLowStockDigest = "catalog.send_low_stock_digest"

type StockLine struct {
	Title string `json:"title"`
	SKU   string `json:"sku,omitempty"`
	Stock int    `json:"stock"`
}

// LowStockDigest tells the team which products are about to sell out.
type LowStockDigest struct{ Lines []StockLine }

func (LowStockDigest) Via() []string { return []string{notification.ChannelSlack} }

func (n LowStockDigest) ToSlack() notification.SlackData {
	var b strings.Builder
	for _, l := range n.Lines {
		fmt.Fprintf(&b, "• %s: %d left", l.Title, l.Stock)
		if l.SKU != "" {
			fmt.Fprintf(&b, " (%s)", l.SKU)
		}
		b.WriteByte('\n')
	}
	return notification.SlackData{
		Text: fmt.Sprintf("%d product(s) running low on stock", len(n.Lines)),
		Attachments: []notification.SlackAttachment{{
			Color: "warning",
			Text:  strings.TrimRight(b.String(), "\n"),
		}},
	}
}

type SendLowStockDigest struct {
	Lines  []StockLine `json:"lines"`
	sender Sender
}

func (SendLowStockDigest) Name() string { return JobLowStockDigest }

func (j *SendLowStockDigest) Handle(ctx context.Context) error {
	return j.sender.SendVia(ctx, notification.ChannelSlack, "", LowStockDigest{Lines: j.Lines})
}

// QueueLowStockDigest returns a scheduled task that queues the digest
// when anything is low. Nothing is sent on a good day.
func QueueLowStockDigest(q Dispatcher, list func(ctx context.Context) ([]models.Product, error)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		products, err := list(ctx)
		if err != nil {
			return err
		}
		if len(products) == 0 {
			return nil
		}
		job := &SendLowStockDigest{}
		for _, p := range products {
			job.Lines = append(job.Lines, StockLine{Title: p.Title, SKU: p.SKU, Stock: p.Stock})
		}
		return q.Dispatch(ctx, job)
	}
}

func registerLowStock(m *queue.Manager, s Sender) {
	m.Register(JobLowStockDigest, func() queue.Job { return &SendLowStockDigest{sender: s} })
}
