package pgstore_test

import (
	"context"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clinicnotify/pkg/logger"
	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
	"github.com/dmitrymomot/clinicnotify/pkg/notifications/pgstore"
	"github.com/dmitrymomot/clinicnotify/pkg/pg"
)

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(pgstore.Migrations, "migrations/*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"migrations/00001_create_users.sql",
		"migrations/00002_create_notifications.sql",
	}, files)
}

// setupPool connects to TEST_PG_CONN_URL, migrates and empties the tables.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_PG_CONN_URL")
	if url == "" {
		t.Skip("TEST_PG_CONN_URL not set")
	}

	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString:  url,
		MaxOpenConns:      4,
		MaxIdleConns:      1,
		HealthCheckPeriod: time.Minute,
		MaxConnIdleTime:   time.Minute,
		MaxConnLifetime:   time.Hour,
		RetryAttempts:     1,
		RetryInterval:     time.Second,
		MigrationsPath:    "migrations",
		MigrationsTable:   "notify_schema_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, pgstore.Migrations, cfg, logger.Discard()))

	_, err = pool.Exec(ctx, `TRUNCATE notifications, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO users (first_name, last_name, role) VALUES
		('Alice', 'Moreau', 'PATIENT'), ('Bruno', 'Silva', 'PATIENT'), ('Root', 'Admin', 'ADMIN')`)
	require.NoError(t, err)
	return pool
}

func TestStore(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	store := pgstore.New(pool)

	n := &notifications.Notification{
		RecipientID:   1,
		Title:         "Your Test Results Are Ready!",
		Body:          "Hi Alice",
		Category:      notifications.CategoryResult,
		Priority:      notifications.PriorityHigh,
		ReferenceType: notifications.ReferenceTestResult,
		ReferenceID:   notifications.Ref(99),
		Metadata:      map[string]any{"testName": "CBC"},
	}
	id, err := store.Create(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, id, n.ID)
	assert.Equal(t, notifications.DeliveryPending, n.DeliveryStatus)

	_, err = store.Create(ctx, &notifications.Notification{RecipientID: 2, Title: "b", Body: "b", Category: notifications.CategoryGeneral, Priority: notifications.PriorityNormal})
	require.NoError(t, err)

	t.Run("get round trip", func(t *testing.T) {
		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, notifications.CategoryResult, got.Category)
		assert.Equal(t, int64(99), *got.ReferenceID)
		assert.Equal(t, "CBC", got.Metadata["testName"])

		_, err = store.Get(ctx, 12345)
		assert.ErrorIs(t, err, notifications.ErrNotFound)
	})

	t.Run("scoped listing", func(t *testing.T) {
		list, err := store.ListByRecipient(ctx, 1, notifications.ListOptions{Categories: []notifications.Category{notifications.CategoryResult}})
		require.NoError(t, err)
		require.Len(t, list, 1)

		all, err := store.ListAll(ctx, notifications.ListOptions{Limit: 10})
		require.NoError(t, err)
		assert.Len(t, all, 2)
		assert.Greater(t, all[0].ID, all[1].ID)
	})

	t.Run("mark read is idempotent and scoped", func(t *testing.T) {
		_, err := store.MarkRead(ctx, id, 2)
		assert.ErrorIs(t, err, notifications.ErrNotFound)

		changed, err := store.MarkRead(ctx, id, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		changed, err = store.MarkRead(ctx, id, 1)
		require.NoError(t, err)
		assert.False(t, changed)

		count, err := store.CountUnread(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("delivery status", func(t *testing.T) {
		require.NoError(t, store.UpdateDelivery(ctx, id, notifications.DeliveryDelivered, time.Now()))
		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Sent)
		assert.NotNil(t, got.SentAt)
	})

	t.Run("unknown recipient", func(t *testing.T) {
		_, err := store.Create(ctx, &notifications.Notification{RecipientID: 999, Title: "x", Body: "y", Category: notifications.CategoryGeneral, Priority: notifications.PriorityNormal})
		assert.ErrorIs(t, err, notifications.ErrPersistence)
	})

	t.Run("delete", func(t *testing.T) {
		assert.ErrorIs(t, store.Delete(ctx, id, 2), notifications.ErrNotFound)
		require.NoError(t, store.Delete(ctx, id, 1))
	})
}

func TestDirectory(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	dir := pgstore.NewDirectory(pool)

	r, err := dir.FindRecipient(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Alice", r.FirstName)
	assert.Equal(t, notifications.RolePatient, r.Role)

	_, err = dir.FindRecipient(ctx, 404)
	assert.ErrorIs(t, err, notifications.ErrRecipientNotFound)

	patients, err := dir.ListRecipients(ctx)
	require.NoError(t, err)
	require.Len(t, patients, 2)
	assert.Equal(t, int64(1), patients[0].ID)
}

func TestStoreInTransaction(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	_, err = pgstore.New(tx).Create(ctx, &notifications.Notification{RecipientID: 1, Title: "x", Body: "y", Category: notifications.CategoryGeneral, Priority: notifications.PriorityNormal})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	count, err := pgstore.New(pool).CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)
}
