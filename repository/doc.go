// Package repository provides a generic per-entity repository built on Bun.
// Reads compose filters, ordering and relations into one select query and
// writes only stage changes in the persistence session; nothing is durable
// until the owning unit of work saves.
package repository
