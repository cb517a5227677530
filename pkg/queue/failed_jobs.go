package queue

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FailedJobsCollection holds jobs that exhausted their retries.
const FailedJobsCollection = "failed_jobs"

// FailedJob is a job that could not be processed. Payload is the raw
// envelope, so it can be re-queued as is.
type FailedJob struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	JobType  string             `bson:"jobType"       json:"jobType"`
	Payload  string             `bson:"payload"       json:"payload"`
	Error    string             `bson:"error"         json:"error"`
	Attempts int                `bson:"attempts"      json:"attempts"`
	FailedAt time.Time          `bson:"failedAt"      json:"failedAt"`
}

// MongoFailedStore persists failures to the failed_jobs collection.
type MongoFailedStore struct {
	col *mongo.Collection
}

func NewMongoFailedStore(db *mongo.Database) *MongoFailedStore {
	return &MongoFailedStore{col: db.Collection(FailedJobsCollection)}
}

func (s *MongoFailedStore) Save(ctx context.Context, f FailedJob) error {
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	if _, err := s.col.InsertOne(ctx, f); err != nil {
		return fmt.Errorf("queue: save failed job: %w", err)
	}
	return nil
}

// List returns up to limit failures, newest first.
func (s *MongoFailedStore) List(ctx context.Context, limit int64) ([]FailedJob, error) {
	cur, err := s.col.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "failedAt", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("queue: list failed jobs: %w", err)
	}
	out := []FailedJob{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("queue: list failed jobs: %w", err)
	}
	return out, nil
}

func (s *MongoFailedStore) Find(ctx context.Context, id primitive.ObjectID) (FailedJob, error) {
	var f FailedJob
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&f); err != nil {
		return f, fmt.Errorf("queue: find failed job %s: %w", id.Hex(), err)
	}
	return f, nil
}

func (s *MongoFailedStore) Forget(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("queue: forget failed job %s: %w", id.Hex(), err)
	}
	return nil
}
