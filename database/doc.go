// Package database opens Bun connections for MySQL, PostgreSQL and SQLite and
// provides the persistence session that stages, tracks and flushes entity
// changes inside one transaction.
package database
