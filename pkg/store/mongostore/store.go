// Package mongostore keeps reports in a MongoDB collection, one document per report with the
// history embedded.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campus-issue-reporting/pkg/report"
)

const collectionName = "reports"

type Store struct {
	coll *mongo.Collection
}

var _ report.Store = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{coll: db.Collection(collectionName)}
}

// EnsureIndexes creates the unique tracking code index and the list filters' indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tracking_code", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_tracking_code"),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "assigned_department", Value: 1}}},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create report indexes: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, r report.Report) error {
	if _, err := s.coll.InsertOne(ctx, toDoc(r)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", report.ErrDuplicateTrackingCode, r.TrackingCode)
		}
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

func (s *Store) FetchAll(ctx context.Context, f report.Filter) ([]report.Report, error) {
	cursor, err := s.coll.Find(ctx, buildFilter(f), options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reports: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []reportDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode reports: %w", err)
	}

	out := make([]report.Report, 0, len(docs))
	for _, d := range docs {
		r := d.toDomain()
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("stored report %s is corrupt: %w", d.ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func buildFilter(f report.Filter) bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status.String()
	}
	if f.Category != "" {
		filter["category"] = f.Category.String()
	}
	if dept := strings.TrimSpace(f.Department); dept != "" {
		filter["assigned_department"] = bson.M{
			"$regex":   "^" + regexp.QuoteMeta(dept) + "$",
			"$options": "i",
		}
	}
	return filter
}

func (s *Store) FetchByID(ctx context.Context, id string) (report.Report, error) {
	return s.findOne(ctx, bson.M{"_id": id}, id)
}

func (s *Store) FetchByTrackingCode(ctx context.Context, code string) (report.Report, error) {
	return s.findOne(ctx, bson.M{"tracking_code": code}, code)
}

func (s *Store) findOne(ctx context.Context, filter bson.M, key string) (report.Report, error) {
	var d reportDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return report.Report{}, fmt.Errorf("%w: %s", report.ErrNotFound, key)
		}
		return report.Report{}, fmt.Errorf("failed to fetch report: %w", err)
	}

	r := d.toDomain()
	if err := r.Validate(); err != nil {
		return report.Report{}, fmt.Errorf("stored report %s is corrupt: %w", d.ID, err)
	}
	return r, nil
}

// Save replaces the mutable fields only while the stored version is still expectedVersion.
func (s *Store) Save(ctx context.Context, r report.Report, expectedVersion int64) error {
	d := toDoc(r)
	update := bson.M{
		"$set": bson.M{
			"title":               d.Title,
			"description":         d.Description,
			"location":            d.Location,
			"status":              d.Status,
			"attachments":         d.Attachments,
			"assigned_department": d.AssignedDepartment,
			"history":             d.History,
			"version":             d.Version,
			"updated_at":          d.UpdatedAt,
			"resolved_at":         d.ResolvedAt,
		},
	}

	result, err := s.coll.UpdateOne(ctx, bson.M{"_id": d.ID, "version": expectedVersion}, update)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": d.ID})
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", report.ErrNotFound, d.ID)
	}
	return fmt.Errorf("%w: expected version %d", report.ErrStaleWrite, expectedVersion)
}
