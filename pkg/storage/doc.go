// Package storage defines the persisted domain types of potkeeper and the
// blob store abstraction.
//
// # Relational data
//
// Users own pots; care records, timelines and care schedules belong to a pot.
// Ownership of every child row is resolved through its pot. Postgres
// repositories live in pkg/storage/postgres and operate on a DBTX so the same
// code runs inside or outside a transaction.
//
// # Blobs
//
// Uploaded images are addressed by object keys derived from their public URL
// (see pkg/media). BlobStore is implemented by postgres.S3BlobStore; when no
// bucket is configured NopBlobStore accepts writes without persisting them.
package storage
