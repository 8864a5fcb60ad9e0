package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
)

// Collection names.
const (
	NotificationsCollection = "notifications"
	CountersCollection      = "counters"
	UsersCollection         = "users"
)

type document struct {
	ID             int64          `bson:"_id"`
	RecipientID    int64          `bson:"recipient_id"`
	Title          string         `bson:"title"`
	Body           string         `bson:"body"`
	Category       string         `bson:"category"`
	Priority       string         `bson:"priority"`
	ReferenceType  string         `bson:"reference_type,omitempty"`
	ReferenceID    *int64         `bson:"reference_id,omitempty"`
	Read           bool           `bson:"read"`
	ReadAt         *time.Time     `bson:"read_at,omitempty"`
	Sent           bool           `bson:"sent"`
	DeliveryStatus string         `bson:"delivery_status"`
	Metadata       map[string]any `bson:"metadata,omitempty"`
	CreatedAt      time.Time      `bson:"created_at"`
	SentAt         *time.Time     `bson:"sent_at,omitempty"`
}

func toDocument(n *notifications.Notification) document {
	return document{
		ID:             n.ID,
		RecipientID:    n.RecipientID,
		Title:          n.Title,
		Body:           n.Body,
		Category:       string(n.Category),
		Priority:       string(n.Priority),
		ReferenceType:  n.ReferenceType,
		ReferenceID:    n.ReferenceID,
		Read:           n.Read,
		ReadAt:         n.ReadAt,
		Sent:           n.Sent,
		DeliveryStatus: string(n.DeliveryStatus),
		Metadata:       n.Metadata,
		CreatedAt:      n.CreatedAt,
		SentAt:         n.SentAt,
	}
}

func (d document) notification() notifications.Notification {
	return notifications.Notification{
		ID:             d.ID,
		RecipientID:    d.RecipientID,
		Title:          d.Title,
		Body:           d.Body,
		Category:       notifications.Category(d.Category),
		Priority:       notifications.Priority(d.Priority),
		ReferenceType:  d.ReferenceType,
		ReferenceID:    d.ReferenceID,
		Read:           d.Read,
		ReadAt:         d.ReadAt,
		Sent:           d.Sent,
		DeliveryStatus: notifications.DeliveryStatus(d.DeliveryStatus),
		Metadata:       d.Metadata,
		CreatedAt:      d.CreatedAt,
		SentAt:         d.SentAt,
	}
}

// Store implements notifications.Storage on MongoDB. Ids are int64 values
// drawn from a counter document so they match the Postgres backend.
type Store struct {
	coll     *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
}

var _ notifications.Storage = (*Store)(nil)

// New creates a Store in db.
func New(db *mongo.Database) *Store {
	return &Store{
		coll:     db.Collection(NotificationsCollection),
		counters: db.Collection(CountersCollection),
		now:      time.Now,
	}
}

// EnsureIndexes creates the indexes the list and count queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "read", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	return nil
}

func (s *Store) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": NotificationsCollection},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	return counter.Seq, err
}

func (s *Store) Create(ctx context.Context, n *notifications.Notification) (int64, error) {
	if err := n.Validate(); err != nil {
		return 0, err
	}

	id, err := s.nextID(ctx)
	if err != nil {
		return 0, errors.Join(notifications.ErrPersistence, err)
	}

	doc := toDocument(n)
	doc.ID = id
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now().UTC()
	}
	if doc.DeliveryStatus == "" {
		doc.DeliveryStatus = string(notifications.DeliveryPending)
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return 0, errors.Join(notifications.ErrPersistence, err)
	}

	n.ID = id
	n.CreatedAt = doc.CreatedAt
	n.DeliveryStatus = notifications.DeliveryStatus(doc.DeliveryStatus)
	return id, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*notifications.Notification, error) {
	var doc document
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notifications.ErrNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	n := doc.notification()
	return &n, nil
}

func (s *Store) ListByRecipient(ctx context.Context, recipientID int64, opts notifications.ListOptions) ([]notifications.Notification, error) {
	return s.list(ctx, listFilter(&recipientID, opts), opts)
}

func (s *Store) ListAll(ctx context.Context, opts notifications.ListOptions) ([]notifications.Notification, error) {
	return s.list(ctx, listFilter(nil, opts), opts)
}

func (s *Store) MarkRead(ctx context.Context, id, recipientID int64) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "recipient_id": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true, "read_at": s.now().UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id, "recipient_id": recipientID})
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	if n == 0 {
		return false, notifications.ErrNotFound
	}
	return false, nil
}

func (s *Store) MarkAllRead(ctx context.Context, recipientID int64) (int, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"recipient_id": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true, "read_at": s.now().UTC()}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return int(res.ModifiedCount), nil
}

func (s *Store) Delete(ctx context.Context, id, recipientID int64) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "recipient_id": recipientID})
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if res.DeletedCount == 0 {
		return notifications.ErrNotFound
	}
	return nil
}

func (s *Store) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"recipient_id": recipientID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return int(n), nil
}

func (s *Store) UpdateDelivery(ctx context.Context, id int64, status notifications.DeliveryStatus, sentAt time.Time) error {
	set := bson.M{"delivery_status": string(status)}
	if status == notifications.DeliveryDelivered {
		set["sent"] = true
		set["sent_at"] = sentAt.UTC()
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if res.MatchedCount == 0 {
		return notifications.ErrNotFound
	}
	return nil
}

func (s *Store) list(ctx context.Context, filter bson.M, opts notifications.ListOptions) ([]notifications.Notification, error) {
	find := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Offset > 0 {
		find.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		find.SetLimit(int64(opts.Limit))
	}

	cur, err := s.coll.Find(ctx, filter, find)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	out := make([]notifications.Notification, len(docs))
	for i, d := range docs {
		out[i] = d.notification()
	}
	return out, nil
}

func listFilter(recipientID *int64, opts notifications.ListOptions) bson.M {
	filter := bson.M{}
	if recipientID != nil {
		filter["recipient_id"] = *recipientID
	}
	if opts.OnlyUnread {
		filter["read"] = false
	}
	if len(opts.Categories) > 0 {
		cats := make([]string, len(opts.Categories))
		for i, c := range opts.Categories {
			cats[i] = string(c)
		}
		filter["category"] = bson.M{"$in": cats}
	}
	if opts.Since != nil {
		filter["created_at"] = bson.M{"$gte": opts.Since.UTC()}
	}
	return filter
}
