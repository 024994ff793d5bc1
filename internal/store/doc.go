// Package store provides SQLite-backed persistence for stevedore.
//
// It holds the servers the gateway manages, the tools discovered from their
// containers, users, per-user permission overrides, and secret-file
// descriptors. Relationships are enforced in schema: deleting a server
// cascades to its tools and secret files, deleting a tool or a user cascades
// to the permission overrides referencing it, and the (user, tool) override
// pair is unique.
//
// The driver is modernc.org/sqlite (pure Go). WAL mode, foreign-key
// enforcement, and a busy timeout are applied per pooled connection through
// DSN pragmas. Queries are built with squirrel and scanned with sqlx.
//
// Two sentinel errors cover the cases callers branch on: ErrNotFound for
// missing rows and ErrConflict for uniqueness violations. Everything else is
// wrapped with context.
package store
