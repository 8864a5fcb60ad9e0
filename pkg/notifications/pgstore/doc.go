// Package pgstore stores notifications in PostgreSQL.
//
// Store implements notifications.Storage and Directory implements
// notifications.RecipientDirectory over the users table. Both accept a DBTX,
// so passing a pgx.Tx makes notification writes part of the caller's
// transaction. The schema ships as embedded goose migrations in Migrations.
package pgstore
