// Package migration runs and tracks schema changes (indexes, validators,
// backfills) against the MongoDB database.
//
// Each migration registers itself from an init() in database/migrations:
//
//	func init() {
//	    migration.Register("20260101000000_orders_indexes", &OrdersIndexes{})
//	}
//
// and is applied with `storefront migrate`.
package migration

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ourstore/storefront/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection holds one document per applied migration.
const Collection = "schema_migrations"

// Migration is the interface every migration must implement.
type Migration interface {
	Up(ctx context.Context, db *mongo.Database) error
	Down(ctx context.Context, db *mongo.Database) error
}

type record struct {
	Name  string    `bson:"_id"`
	Batch int       `bson:"batch"`
	RunAt time.Time `bson:"runAt"`
}

// Entry is one line of Status output.
type Entry struct {
	Name  string
	Ran   bool
	Batch int
}

type registered struct {
	name string
	m    Migration
}

var registry []registered

// Register adds a migration. Names are timestamp-prefixed and applied in
// lexical order.
func Register(name string, m Migration) {
	registry = append(registry, registered{name: name, m: m})
}

// Runner executes and tracks migrations.
type Runner struct {
	db  *mongo.Database
	col *mongo.Collection
	out io.Writer
}

// New creates a Runner that reports progress to out.
func New(db *mongo.Database, out io.Writer) *Runner {
	return &Runner{db: db, col: db.Collection(Collection), out: out}
}

func sorted() []registered {
	out := append([]registered(nil), registry...)
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (r *Runner) applied(ctx context.Context) (map[string]record, error) {
	cur, err := r.col.Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	var recs []record
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}
	out := make(map[string]record, len(recs))
	for _, rec := range recs {
		out[rec.Name] = rec
	}
	return out, nil
}

// Run applies every pending migration as one batch.
func (r *Runner) Run(ctx context.Context) error {
	ran, err := r.applied(ctx)
	if err != nil {
		return fmt.Errorf("migration: fetch applied: %w", err)
	}

	var pending []registered
	for _, reg := range sorted() {
		if _, ok := ran[reg.name]; !ok {
			pending = append(pending, reg)
		}
	}
	if len(pending) == 0 {
		fmt.Fprintln(r.out, "Nothing to migrate.")
		return nil
	}

	batch := 1
	for _, rec := range ran {
		if rec.Batch >= batch {
			batch = rec.Batch + 1
		}
	}

	for _, reg := range pending {
		fmt.Fprintf(r.out, "  ▶ Migrating: %s\n", reg.name)
		if err := reg.m.Up(ctx, r.db); err != nil {
			return fmt.Errorf("migration: %s up: %w", reg.name, err)
		}
		if _, err := r.col.InsertOne(ctx, record{Name: reg.name, Batch: batch, RunAt: time.Now().UTC()}); err != nil {
			return fmt.Errorf("migration: record %s: %w", reg.name, err)
		}
		fmt.Fprintf(r.out, "  ✅ Migrated:  %s\n", reg.name)
	}

	logger.Info("migration: done", "ran", len(pending), "batch", batch)
	return nil
}

// Rollback reverses the most recent batch, newest first.
func (r *Runner) Rollback(ctx context.Context) error {
	var last record
	err := r.col.FindOne(ctx, bson.D{}, options.FindOne().SetSort(bson.D{{Key: "batch", Value: -1}})).Decode(&last)
	if err == mongo.ErrNoDocuments {
		fmt.Fprintln(r.out, "Nothing to roll back.")
		return nil
	}
	if err != nil {
		return err
	}

	cur, err := r.col.Find(ctx, bson.D{{Key: "batch", Value: last.Batch}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}))
	if err != nil {
		return err
	}
	var recs []record
	if err := cur.All(ctx, &recs); err != nil {
		return err
	}

	byName := make(map[string]Migration, len(registry))
	for _, reg := range registry {
		byName[reg.name] = reg.m
	}

	for _, rec := range recs {
		m, ok := byName[rec.Name]
		if !ok {
			return fmt.Errorf("migration: cannot roll back %s: not registered", rec.Name)
		}
		fmt.Fprintf(r.out, "  ◀ Rolling back: %s\n", rec.Name)
		if err := m.Down(ctx, r.db); err != nil {
			return fmt.Errorf("migration: %s down: %w", rec.Name, err)
		}
		if _, err := r.col.DeleteOne(ctx, bson.D{{Key: "_id", Value: rec.Name}}); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "  ✅ Rolled back:  %s\n", rec.Name)
	}
	return nil
}

// Status lists every registered migration and whether it has run.
func (r *Runner) Status(ctx context.Context) ([]Entry, error) {
	ran, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, reg := range sorted() {
		rec, ok := ran[reg.name]
		out = append(out, Entry{Name: reg.name, Ran: ok, Batch: rec.Batch})
	}
	return out, nil
}
