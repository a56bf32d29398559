// Package storage is the persistence layer the notification service reads from.
//
// It covers:
//   - the notification settings singleton row
//   - read queries over CRM tasks, deals and clients (plus inserts used for seeding and tests)
//   - an optional reminder dedup table (see reminder.StoreLedger)
//
// Two drivers are available: "sqlite" (modernc.org/sqlite, pure Go) and "postgres" (pgx).
package storage
