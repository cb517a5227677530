// Package sse streams Server-Sent Events to HTTP clients.
//
// A Broker fans published messages out to subscribers of a topic; a
// Stream writes them to one connection:
//
//	sub, cancel := broker.Subscribe(order.ID.Hex())
//	defer cancel()
//	stream, err := sse.New(c.W, c.R)
//	...
//	for msg := range sub { stream.Send(msg.Event, msg.Data) }
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrUnsupported is returned when the writer cannot flush.
var ErrUnsupported = errors.New("sse: streaming not supported")

// Stream is an open event stream to one client.
type Stream struct {
	w       http.ResponseWriter
	r       *http.Request
	flusher http.Flusher
}

// New sets the event-stream headers and lifts the server write deadline
// for the lifetime of the request.
func New(w http.ResponseWriter, r *http.Request) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrUnsupported
	}
	// Best effort: writers that cannot report deadlines keep the server's.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Stream{w: w, r: r, flusher: flusher}, nil
}

// Send writes a named event with a JSON payload.
func (s *Stream) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sse: marshal: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Comment writes a comment line; clients ignore it, proxies see traffic.
func (s *Stream) Comment(msg string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", msg); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Done is closed when the client goes away.
func (s *Stream) Done() <-chan struct{} { return s.r.Context().Done() }

// Message is one published event.
type Message struct {
	Event string
	Data  any
}

// Broker delivers messages to the subscribers of a topic. A subscriber
// that falls behind loses messages rather than blocking publishers.
type Broker struct {
	mu     sync.Mutex
	topics map[string]map[chan Message]struct{}
	buffer int
}

func NewBroker(buffer int) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker{topics: map[string]map[chan Message]struct{}{}, buffer: buffer}
}

// Subscribe returns a channel of messages for topic and a cancel func
// that unsubscribes and closes the channel.
func (b *Broker) Subscribe(topic string) (<-chan Message, func()) {
	ch := make(chan Message, b.buffer)
	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = map[chan Message]struct{}{}
		b.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(subs, ch)
			if len(b.topics[topic]) == 0 {
				delete(b.topics, topic)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers msg to every current subscriber of topic and reports
// how many received it.
func (b *Broker) Publish(topic string, msg Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for ch := range b.topics[topic] {
		select {
		case ch <- msg:
			n++
		default:
		}
	}
	return n
}

// Subscribers counts the open subscriptions on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}
