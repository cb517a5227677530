// Package event is an in-process publish/subscribe bus. Order services
// publish lifecycle events on it; the admin live feed listens.
package event

import (
	"context"
	"errors"
	"sync"

	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/workerpool"
)

// Handler receives an event payload.
type Handler func(payload interface{})

// Dispatcher fans events out to listeners. Async delivery runs on a
// bounded pool and drops events when the pool is saturated.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	pool     *workerpool.Pool
}

func NewDispatcher(workers int) *Dispatcher {
	return &Dispatcher{
		handlers: map[string][]Handler{},
		pool:     workerpool.New("events", workers),
	}
}

// Listen registers h for event. "*" receives every event.
func (d *Dispatcher) Listen(event string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[event] = append(d.handlers[event], h)
}

func (d *Dispatcher) listeners(event string) []Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	hs := make([]Handler, 0, len(d.handlers[event])+len(d.handlers["*"]))
	hs = append(hs, d.handlers[event]...)
	return append(hs, d.handlers["*"]...)
}

// FireAsync hands every listener to the pool and returns at once.
func (d *Dispatcher) FireAsync(event string, payload interface{}) {
	for _, h := range d.listeners(event) {
		h := h
		if err := d.pool.Submit(func() { h(payload) }); err != nil {
			if errors.Is(err, workerpool.ErrPoolFull) {
				logger.Warn("event: dropped, listeners saturated", "event", event)
				continue
			}
			logger.Debug("event: dropped", "event", event, "error", err)
		}
	}
}

// Close waits for in-flight async deliveries.
func (d *Dispatcher) Close(ctx context.Context) error {
	return d.pool.Shutdown(ctx)
}
