package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
	"github.com/dmitrymomot/clinicnotify/pkg/pg"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx, so a Store can
// run inside the caller's transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements notifications.Storage on Postgres.
type Store struct {
	db DBTX
}

var _ notifications.Storage = (*Store)(nil)

// New creates a Store over db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

const columns = `id, recipient_id, title, body, category, priority, reference_type, reference_id,
	read, read_at, sent, delivery_status, metadata, created_at, sent_at`

func (s *Store) Create(ctx context.Context, n *notifications.Notification) (int64, error) {
	if err := n.Validate(); err != nil {
		return 0, err
	}

	var createdAt *time.Time
	if !n.CreatedAt.IsZero() {
		createdAt = &n.CreatedAt
	}
	status := n.DeliveryStatus
	if status == "" {
		status = notifications.DeliveryPending
	}
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	var refType *string
	if n.ReferenceType != "" {
		refType = &n.ReferenceType
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO notifications (recipient_id, title, body, category, priority, reference_type, reference_id,
			sent, delivery_status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()))
		RETURNING id, created_at`,
		n.RecipientID, n.Title, n.Body, string(n.Category), string(n.Priority), refType, n.ReferenceID,
		n.Sent, string(status), metadata, createdAt,
	)
	if err := row.Scan(&n.ID, &n.CreatedAt); err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return 0, errors.Join(notifications.ErrPersistence, notifications.ErrRecipientNotFound, err)
		}
		return 0, errors.Join(notifications.ErrPersistence, err)
	}
	n.DeliveryStatus = status
	return n.ID, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*notifications.Notification, error) {
	rows, err := s.db.Query(ctx, `SELECT `+columns+` FROM notifications WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	n, err := pgx.CollectExactlyOneRow(rows, scanNotification)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, notifications.ErrNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

func (s *Store) ListByRecipient(ctx context.Context, recipientID int64, opts notifications.ListOptions) ([]notifications.Notification, error) {
	q := newQuery()
	q.where("recipient_id = ", recipientID)
	return s.list(ctx, q, opts)
}

func (s *Store) ListAll(ctx context.Context, opts notifications.ListOptions) ([]notifications.Notification, error) {
	return s.list(ctx, newQuery(), opts)
}

func (s *Store) MarkRead(ctx context.Context, id, recipientID int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications SET read = TRUE, read_at = now()
		WHERE id = $1 AND recipient_id = $2 AND NOT read`, id, recipientID)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND recipient_id = $2)`,
		id, recipientID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	if !exists {
		return false, notifications.ErrNotFound
	}
	return false, nil
}

func (s *Store) MarkAllRead(ctx context.Context, recipientID int64) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications SET read = TRUE, read_at = now()
		WHERE recipient_id = $1 AND NOT read`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Delete(ctx context.Context, id, recipientID int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrNotFound
	}
	return nil
}

func (s *Store) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	var count int
	if err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE recipient_id = $1 AND NOT read`, recipientID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, id int64, status notifications.DeliveryStatus, sentAt time.Time) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if status == notifications.DeliveryDelivered {
		tag, err = s.db.Exec(ctx, `
			UPDATE notifications SET delivery_status = $2, sent = TRUE, sent_at = $3
			WHERE id = $1`, id, string(status), sentAt)
	} else {
		tag, err = s.db.Exec(ctx, `UPDATE notifications SET delivery_status = $2 WHERE id = $1`, id, string(status))
	}
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrNotFound
	}
	return nil
}

func (s *Store) list(ctx context.Context, q *query, opts notifications.ListOptions) ([]notifications.Notification, error) {
	if opts.OnlyUnread {
		q.clause("NOT read")
	}
	if len(opts.Categories) > 0 {
		cats := make([]string, len(opts.Categories))
		for i, c := range opts.Categories {
			cats[i] = string(c)
		}
		q.where("category = ANY(", cats, ")")
	}
	if opts.Since != nil {
		q.where("created_at >= ", *opts.Since)
	}

	sql := `SELECT ` + columns + ` FROM notifications` + q.String() + ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		sql += " LIMIT " + q.arg(opts.Limit)
	}
	if opts.Offset > 0 {
		sql += " OFFSET " + q.arg(opts.Offset)
	}

	rows, err := s.db.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanNotification)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

func scanNotification(row pgx.CollectableRow) (notifications.Notification, error) {
	var (
		n        notifications.Notification
		category string
		priority string
		status   string
		refType  *string
	)
	err := row.Scan(
		&n.ID, &n.RecipientID, &n.Title, &n.Body, &category, &priority, &refType, &n.ReferenceID,
		&n.Read, &n.ReadAt, &n.Sent, &status, &n.Metadata, &n.CreatedAt, &n.SentAt,
	)
	if err != nil {
		return n, err
	}
	n.Category = notifications.Category(category)
	n.Priority = notifications.Priority(priority)
	n.DeliveryStatus = notifications.DeliveryStatus(status)
	if refType != nil {
		n.ReferenceType = *refType
	}
	return n, nil
}

// query accumulates WHERE clauses with positional arguments.
type query struct {
	clauses []string
	args    []any
}

func newQuery() *query {
	return &query{}
}

func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

// where appends prefix, a placeholder for v, and an optional suffix.
func (q *query) where(prefix string, v any, suffix ...string) {
	q.clauses = append(q.clauses, prefix+q.arg(v)+strings.Join(suffix, ""))
}

func (q *query) clause(c string) {
	q.clauses = append(q.clauses, c)
}

func (q *query) String() string {
	if len(q.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.clauses, " AND ")
}
