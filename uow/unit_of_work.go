/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package uow

import (
	"context"
	"reflect"

	"github.com/tomoncle/shop/database"
	"github.com/tomoncle/shop/repository"
	"github.com/uptrace/bun"
)

// UnitOfWork is the transactional boundary of one business operation.
//
// A UnitOfWork and the repositories it hands out belong to a single flow of
// control at a time; none of them is safe for concurrent use.
type UnitOfWork interface {
	repository.Factory

	// Session returns the persistence session owned by the unit.
	Session() *database.Session

	// SaveChanges writes every staged change atomically and returns the
	// number of affected rows. With recordHistory a change history row is
	// written per change in the same transaction.
	SaveChanges(ctx context.Context, recordHistory bool) (int, error)

	// SaveChangesWith commits the staged changes of the unit and of every
	// peer in one shared transaction. On failure the transaction is rolled
	// back, the original error is returned and every staged change is kept.
	SaveChangesWith(ctx context.Context, recordHistory bool, peers ...UnitOfWork) (int, error)

	// ExecuteSQL runs a statement and returns the number of affected rows.
	ExecuteSQL(ctx context.Context, query string, args ...interface{}) (int64, error)

	// ChangeDatabase points the session at another database of the same
	// MySQL server.
	ChangeDatabase(ctx context.Context, name string) error

	// Close releases the repositories and disposes the session. It is safe
	// to call more than once.
	Close() error
}

type unitOfWork struct {
	session      *database.Session
	repositories map[reflect.Type]any
	logger       database.Logger
}

// New returns a unit of work owning session.
func New(session *database.Session) UnitOfWork {
	return &unitOfWork{
		session:      session,
		repositories: make(map[reflect.Type]any),
		logger:       database.GetLogger(),
	}
}

// Factory creates units of work over one connection pool.
type Factory struct {
	source func() *bun.DB
	opts   []database.SessionOption
}

// NewFactory returns a Factory whose units open sessions over db.
func NewFactory(db *bun.DB, opts ...database.SessionOption) *Factory {
	return NewFactoryFrom(func() *bun.DB { return db }, opts...)
}

// NewFactoryFrom returns a Factory reading the pool from source for every
// unit, so new units follow a pool reopened by a reconnect.
func NewFactoryFrom(source func() *bun.DB, opts ...database.SessionOption) *Factory {
	return &Factory{source: source, opts: opts}
}

// New starts a unit of work with a fresh session.
func (f *Factory) New() UnitOfWork {
	return New(database.NewSession(f.source(), f.opts...))
}

func (u *unitOfWork) Session() *database.Session { return u.session }

// Repository panics with database.ErrDisposed once the unit is closed.
func (u *unitOfWork) Repository(key reflect.Type, create func(*database.Session) any) any {
	if err := u.session.CheckOpen(); err != nil {
		panic(err)
	}
	if repo, ok := u.repositories[key]; ok {
		return repo
	}
	repo := create(u.session)
	u.repositories[key] = repo
	return repo
}

func (u *unitOfWork) SaveChanges(ctx context.Context, recordHistory bool) (int, error) {
	return u.session.SaveChanges(ctx, recordHistory)
}

func (u *unitOfWork) SaveChangesWith(ctx context.Context, recordHistory bool, peers ...UnitOfWork) (total int, err error) {
	if err := u.checkPeers(peers); err != nil {
		return 0, err
	}

	// Once begun, the shared commit runs to completion.
	ctx = context.WithoutCancel(ctx)
	tx, err := u.session.BeginTransaction(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err == nil {
			return
		}
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			u.logger.Error("Failed to rollback transaction", "error", rollbackErr)
		}
	}()

	for _, peer := range peers {
		if err = peer.Session().UseTransaction(tx); err != nil {
			return 0, err
		}
		n, err := peer.SaveChanges(ctx, recordHistory)
		if err != nil {
			return 0, err
		}
		total += n
	}
	n, err := u.SaveChanges(ctx, recordHistory)
	if err != nil {
		return 0, err
	}
	total += n
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	u.logger.Debug("Shared transaction committed", "peers", len(peers), "rows", total)
	return total, nil
}

// checkPeers rejects the whole batch before any transaction starts.
func (u *unitOfWork) checkPeers(peers []UnitOfWork) error {
	if err := u.session.CheckOpen(); err != nil {
		return err
	}
	if u.session.Transaction() != nil {
		return database.ErrTransactionInProgress
	}
	for _, peer := range peers {
		ps := peer.Session()
		if err := ps.CheckOpen(); err != nil {
			return err
		}
		if !u.session.CompatibleWith(ps) {
			return database.ErrIncompatibleTransaction
		}
		if ps.Transaction() != nil {
			return database.ErrTransactionInProgress
		}
	}
	return nil
}

func (u *unitOfWork) ExecuteSQL(ctx context.Context, query string, args ...interface{}) (int64, error) {
	return u.session.ExecuteSQL(ctx, query, args...)
}

func (u *unitOfWork) ChangeDatabase(ctx context.Context, name string) error {
	return u.session.ChangeDatabase(ctx, name)
}

func (u *unitOfWork) Close() error {
	if u.session.IsDisposed() {
		return nil
	}
	u.repositories = nil
	return u.session.Close()
}

// FromSQL runs a native query on the session of unit and scans the rows as T.
func FromSQL[T any](ctx context.Context, unit UnitOfWork, query string, args ...interface{}) ([]*T, error) {
	entities := make([]*T, 0)
	if err := unit.Session().FromSQL(ctx, &entities, query, args...); err != nil {
		return nil, err
	}
	return entities, nil
}
