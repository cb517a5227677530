// Package schedule runs recurring background tasks.
//
//	s := schedule.New()
//	s.Every(time.Hour).Name("dashboard.warm").Run(warmDashboard)
//	s.Cron("0 8 * * *").Name("low-stock.digest").WithoutOverlapping().Run(sendDigest)
//	s.Start(ctx)
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ourstore/storefront/pkg/logger"
)

// Task is a scheduled unit of work. An error is logged; the task still
// runs at its next slot.
type Task func(ctx context.Context) error

type entry struct {
	id        string
	interval  time.Duration
	cronExpr  string
	task      Task
	noOverlap bool

	mu      sync.Mutex
	lastRun time.Time
	running bool
}

// Scheduler owns a set of entries and the loop that fires them.
type Scheduler struct {
	mu      sync.Mutex
	entries []*entry
	tick    time.Duration
	wg      sync.WaitGroup
}

type Option func(*Scheduler)

// WithTick sets how often due tasks are checked. Default one second.
func WithTick(d time.Duration) Option { return func(s *Scheduler) { s.tick = d } }

func New(opts ...Option) *Scheduler {
	s := &Scheduler{tick: time.Second}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Builder configures one entry before Run registers it.
type Builder struct {
	s *Scheduler
	e *entry
}

// Every runs the task every d, starting at the first tick.
func (s *Scheduler) Every(d time.Duration) *Builder {
	return &Builder{s: s, e: &entry{interval: d}}
}

// Cron runs the task at most once in every minute matching the 5-field
// expression (minute hour day-of-month month day-of-week). Fields accept
// "*", "n", "*/step", "a-b" and comma lists of those.
func (s *Scheduler) Cron(expr string) (*Builder, error) {
	if err := validCron(expr); err != nil {
		return nil, err
	}
	return &Builder{s: s, e: &entry{cronExpr: expr}}, nil
}

func (b *Builder) Name(id string) *Builder {
	b.e.id = id
	return b
}

// WithoutOverlapping skips a slot while the previous run is still going.
func (b *Builder) WithoutOverlapping() *Builder {
	b.e.noOverlap = true
	return b
}

func (b *Builder) Run(task Task) {
	b.e.task = task
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if b.e.id == "" {
		b.e.id = fmt.Sprintf("task-%d", len(b.s.entries)+1)
	}
	b.s.entries = append(b.s.entries, b.e)
}

// Start runs the loop until ctx is done. Wait blocks until in-flight
// tasks have returned after that.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
	logger.Info("schedule: started", "tasks", len(s.List()))
}

func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("schedule: stopped")
			return
		case now := <-ticker.C:
			s.mu.Lock()
			current := append([]*entry(nil), s.entries...)
			s.mu.Unlock()
			for _, e := range current {
				if e.due(now) {
					s.dispatch(ctx, e, now)
				}
			}
		}
	}
}

func (e *entry) due(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cronExpr != "" {
		slot := now.Truncate(time.Minute)
		return !e.lastRun.Equal(slot) && matchCron(e.cronExpr, now)
	}
	return e.lastRun.IsZero() || now.Sub(e.lastRun) >= e.interval
}

func (s *Scheduler) dispatch(ctx context.Context, e *entry, now time.Time) {
	e.mu.Lock()
	if e.noOverlap && e.running {
		e.mu.Unlock()
		logger.Warn("schedule: previous run still going, skipping", "task", e.id)
		return
	}
	e.running = true
	if e.cronExpr != "" {
		e.lastRun = now.Truncate(time.Minute)
	} else {
		e.lastRun = now
	}
	e.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("schedule: task panicked", "task", e.id, "panic", r)
			}
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
		}()
		start := time.Now()
		if err := e.task(ctx); err != nil {
			logger.Error("schedule: task failed", "task", e.id, "error", err)
			return
		}
		logger.Debug("schedule: task done", "task", e.id, "duration", time.Since(start))
	}()
}

// List describes the registered entries for the CLI.
func (s *Scheduler) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		freq := e.cronExpr
		if freq == "" {
			freq = "every " + e.interval.String()
		}
		out = append(out, fmt.Sprintf("%s  [%s]", e.id, freq))
	}
	return out
}

func validCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fmt.Errorf("schedule: cron %q: want 5 fields, got %d", expr, len(fields))
	}
	for _, f := range fields {
		for _, part := range strings.Split(f, ",") {
			if _, ok := parsePart(part); !ok {
				return fmt.Errorf("schedule: cron %q: bad field %q", expr, f)
			}
		}
	}
	return nil
}

func matchCron(expr string, t time.Time) bool {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return false
	}
	vals := []int{t.Minute(), t.Hour(), t.Day(), int(t.Month()), int(t.Weekday())}
	for i, f := range fields {
		if !matchField(f, vals[i]) {
			return false
		}
	}
	return true
}

type cronPart struct {
	lo, hi, step int
	any          bool
}

func parsePart(p string) (cronPart, bool) {
	switch {
	case p == "*":
		return cronPart{any: true, step: 1}, true
	case strings.HasPrefix(p, "*/"):
		n, err := strconv.Atoi(p[2:])
		return cronPart{any: true, step: n}, err == nil && n > 0
	case strings.Contains(p, "-"):
		a, b, _ := strings.Cut(p, "-")
		lo, err1 := strconv.Atoi(a)
		hi, err2 := strconv.Atoi(b)
		return cronPart{lo: lo, hi: hi, step: 1}, err1 == nil && err2 == nil && lo <= hi
	default:
		n, err := strconv.Atoi(p)
		return cronPart{lo: n, hi: n, step: 1}, err == nil
	}
}

func matchField(field string, val int) bool {
	for _, p := range strings.Split(field, ",") {
		cp, ok := parsePart(p)
		if !ok {
			continue
		}
		if cp.any && val%cp.step == 0 {
			return true
		}
		if !cp.any && val >= cp.lo && val <= cp.hi {
			return true
		}
	}
	return false
}
