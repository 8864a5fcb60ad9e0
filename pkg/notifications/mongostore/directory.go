package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
)

type userDocument struct {
	ID        int64  `bson:"_id"`
	FirstName string `bson:"first_name"`
	LastName  string `bson:"last_name"`
	Role      string `bson:"role"`
}

func (u userDocument) recipient() notifications.Recipient {
	return notifications.Recipient{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      notifications.Role(u.Role),
	}
}

// Directory resolves recipients from the users collection.
type Directory struct {
	coll *mongo.Collection
}

var _ notifications.RecipientDirectory = (*Directory)(nil)

// NewDirectory creates a Directory in db.
func NewDirectory(db *mongo.Database) *Directory {
	return &Directory{coll: db.Collection(UsersCollection)}
}

func (d *Directory) FindRecipient(ctx context.Context, id int64) (notifications.Recipient, error) {
	var u userDocument
	if err := d.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return notifications.Recipient{}, notifications.ErrRecipientNotFound
		}
		return notifications.Recipient{}, fmt.Errorf("find recipient: %w", err)
	}
	return u.recipient(), nil
}

func (d *Directory) ListRecipients(ctx context.Context) ([]notifications.Recipient, error) {
	cur, err := d.coll.Find(ctx,
		bson.M{"role": string(notifications.RolePatient)},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	var users []userDocument
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	out := make([]notifications.Recipient, len(users))
	for i, u := range users {
		out[i] = u.recipient()
	}
	return out, nil
}
