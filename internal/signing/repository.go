package signing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RecordUpdate carries the mutable fields of an upsert. SignedAt is
// only written when non-nil.
type RecordUpdate struct {
	SignerName string
	Status     CanonicalStatus
	RawStatus  string
	Signed     bool
	SignedAt   *time.Time
	SigningURL string
	BlobID     string
	Archived   bool
}

// Repository persists SignatureRecords. Records are unique on their
// RecordKey and are never removed physically.
type Repository interface {
	// Upsert merges the update into the record identified by key,
	// creating it if absent. A record already in a terminal state keeps
	// its status; only the freshness fields are touched.
	Upsert(ctx context.Context, key RecordKey, update RecordUpdate) (*SignatureRecord, error)
	FindByID(ctx context.Context, id string) (*SignatureRecord, error)
	FindByDocument(ctx context.Context, documentID, service string) ([]SignatureRecord, error)
	Search(ctx context.Context, filter SearchFilter) ([]SignatureRecord, error)
	SoftDelete(ctx context.Context, id, deletedBy string) error
	// ListStale returns non-terminal, non-deleted records whose last
	// status check predates the cutoff.
	ListStale(ctx context.Context, cutoff time.Time, limit int64) ([]SignatureRecord, error)
}

type mongoRepository struct {
	collection *mongo.Collection
}

// NewMongoRepository creates a Repository over the given collection.
func NewMongoRepository(collection *mongo.Collection) Repository {
	return &mongoRepository{collection: collection}
}

// EnsureIndexes creates the unique key index and the staleness index.
// Call once at startup.
func EnsureIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "document_id", Value: 1},
				{Key: "signer_email", Value: 1},
				{Key: "user_id", Value: 1},
				{Key: "service", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "last_status_check", Value: 1},
			},
		},
	})
	return err
}

func keyFilter(key RecordKey) bson.M {
	return bson.M{
		"document_id":  key.DocumentID,
		"signer_email": key.SignerEmail,
		"user_id":      key.UserID,
		"service":      key.Service,
	}
}

func (r *mongoRepository) Upsert(ctx context.Context, key RecordKey, update RecordUpdate) (*SignatureRecord, error) {
	now := time.Now().UTC()

	// Single conditional update so the terminal guard holds under
	// concurrent writers: a record already in completed or failed keeps
	// its lifecycle fields and only the freshness fields move.
	isTerminal := bson.M{"$in": bson.A{"$status", bson.A{string(StatusCompleted), string(StatusFailed)}}}
	keep := func(field string, value interface{}) bson.M {
		return bson.M{"$cond": bson.A{isTerminal, "$" + field, value}}
	}

	set := bson.M{
		"_id":               bson.M{"$ifNull": bson.A{"$_id", uuid.NewString()}},
		"created_at":        bson.M{"$ifNull": bson.A{"$created_at", now}},
		"signer_name":       keep("signer_name", update.SignerName),
		"status":            keep("status", string(update.Status)),
		"signed":            keep("signed", update.Signed),
		"archived":          keep("archived", update.Archived),
		"raw_status":        update.RawStatus,
		"updated_at":        now,
		"last_status_check": now,
	}
	if update.BlobID != "" {
		set["blob_id"] = keep("blob_id", update.BlobID)
	}
	if update.SignedAt != nil {
		set["signed_at"] = keep("signed_at", update.SignedAt)
	}
	if update.SigningURL != "" {
		set["signing_url"] = keep("signing_url", update.SigningURL)
	}

	_, err := r.collection.UpdateOne(ctx, keyFilter(key),
		mongo.Pipeline{{{Key: "$set", Value: set}}},
		options.Update().SetUpsert(true))
	if err != nil {
		return nil, err
	}

	var record SignatureRecord
	if err := r.collection.FindOne(ctx, keyFilter(key)).Decode(&record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*SignatureRecord, error) {
	var record SignatureRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *mongoRepository) FindByDocument(ctx context.Context, documentID, service string) ([]SignatureRecord, error) {
	filter := bson.M{
		"document_id": documentID,
		"deleted_at":  bson.M{"$exists": false},
	}
	if service != "" {
		filter["service"] = service
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []SignatureRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *mongoRepository) Search(ctx context.Context, filter SearchFilter) ([]SignatureRecord, error) {
	query := bson.M{"deleted_at": bson.M{"$exists": false}}
	if filter.DocumentID != "" {
		query["document_id"] = filter.DocumentID
	}
	if filter.SignerEmail != "" {
		query["signer_email"] = bson.M{"$regex": filter.SignerEmail, "$options": "i"}
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Service != "" {
		query["service"] = filter.Service
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}

	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []SignatureRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *mongoRepository) SoftDelete(ctx context.Context, id, deletedBy string) error {
	now := time.Now().UTC()
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "deleted_at": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{
			"deleted_at": now,
			"deleted_by": deletedBy,
			"updated_at": now,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyDeleted
	}
	return nil
}

func (r *mongoRepository) ListStale(ctx context.Context, cutoff time.Time, limit int64) ([]SignatureRecord, error) {
	query := bson.M{
		"status":            bson.M{"$nin": bson.A{string(StatusCompleted), string(StatusFailed)}},
		"last_status_check": bson.M{"$lt": cutoff},
		"deleted_at":        bson.M{"$exists": false},
	}

	opts := options.Find().SetSort(bson.D{{Key: "last_status_check", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []SignatureRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}
