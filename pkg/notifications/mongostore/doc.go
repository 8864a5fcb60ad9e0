// Package mongostore stores notifications in MongoDB.
//
// It mirrors the Postgres backend: int64 ids from a counters document, newest
// first ordering on (created_at, _id), and recipient-scoped mutations.
package mongostore
