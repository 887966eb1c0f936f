// Package uow implements the unit of work: one persistence session, the
// repositories memoized over it and the commit of its staged changes, alone
// or atomically together with peer units sharing the same database.
package uow
