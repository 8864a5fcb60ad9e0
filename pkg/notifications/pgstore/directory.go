package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
	"github.com/dmitrymomot/clinicnotify/pkg/pg"
)

// Directory resolves recipients from the users table.
type Directory struct {
	db DBTX
}

var _ notifications.RecipientDirectory = (*Directory)(nil)

// NewDirectory creates a Directory over db.
func NewDirectory(db DBTX) *Directory {
	return &Directory{db: db}
}

func (d *Directory) FindRecipient(ctx context.Context, id int64) (notifications.Recipient, error) {
	rows, err := d.db.Query(ctx, `SELECT id, first_name, last_name, role FROM users WHERE id = $1`, id)
	if err != nil {
		return notifications.Recipient{}, fmt.Errorf("find recipient: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRecipient)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return notifications.Recipient{}, notifications.ErrRecipientNotFound
		}
		return notifications.Recipient{}, fmt.Errorf("find recipient: %w", err)
	}
	return r, nil
}

func (d *Directory) ListRecipients(ctx context.Context) ([]notifications.Recipient, error) {
	rows, err := d.db.Query(ctx,
		`SELECT id, first_name, last_name, role FROM users WHERE role = $1 ORDER BY id`,
		string(notifications.RolePatient),
	)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanRecipient)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	return list, nil
}

func scanRecipient(row pgx.CollectableRow) (notifications.Recipient, error) {
	var (
		r    notifications.Recipient
		role string
	)
	if err := row.Scan(&r.ID, &r.FirstName, &r.LastName, &role); err != nil {
		return r, err
	}
	r.Role = notifications.Role(role)
	return r, nil
}
