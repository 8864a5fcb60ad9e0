// Package notifications turns clinic domain events into durable notification
// records and pushes them to connected clients.
//
// The flow is store-then-dispatch. A Notifier resolves the recipient through a
// RecipientDirectory, renders title and body with the Mapper, writes the row
// through a Storage, and only then schedules the real-time push on a
// background task. Push failures are logged and never returned; the stored row
// stays in the recipient's history either way.
//
// # Channels
//
// A per-user push goes to two channels with the same payload:
//
//	user/{id}/notifications  primary
//	user/{id}/messages       backup
//
// Announcements additionally go once to broadcast/notifications. Clients are
// expected to de-duplicate by data.notificationId.
//
// # Usage
//
//	store := notifications.NewMemoryStorage()
//	directory := notifications.NewMemoryDirectory(patients...)
//	dispatcher := notifications.NewDispatcher(hub, notifications.WithSendTimeout(3*time.Second))
//	notifier := notifications.NewNotifier(store, directory, dispatcher)
//	defer notifier.Close(context.Background())
//
//	n, err := notifier.NotifyResultReady(ctx, notifications.ResultReady{
//	    PatientID: 7, ResultID: 99, TestName: "CBC", Status: "NORMAL",
//	})
//
// Inside a database transaction, use Tx with a transaction-bound Storage and
// call Flush once the transaction has committed:
//
//	txn := notifier.Tx(pgstore.New(tx))
//	if _, err := txn.NotifyAppointmentBooked(ctx, appt); err != nil {
//	    return err
//	}
//	if err := tx.Commit(ctx); err != nil {
//	    txn.Discard()
//	    return err
//	}
//	txn.Flush(ctx)
//
// # Storage backends
//
// MemoryStorage lives here; Postgres and MongoDB implementations are in the
// pgstore and mongostore subpackages.
package notifications
