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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"regexp"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/schema"
)

type changeKind int

const (
	changeAdded changeKind = iota + 1
	changeModified
	changeDeleted
)

func (k changeKind) String() string {
	switch k {
	case changeAdded:
		return "Added"
	case changeModified:
		return "Modified"
	case changeDeleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

type change struct {
	kind    changeKind
	model   interface{}
	before  map[string]interface{}
	flushed bool
}

func (c *change) exec(ctx context.Context, db bun.IDB) (sql.Result, error) {
	switch c.kind {
	case changeAdded:
		return db.NewInsert().Model(c.model).Exec(ctx)
	case changeModified:
		return db.NewUpdate().Model(c.model).WherePK().Exec(ctx)
	default:
		return db.NewDelete().Model(c.model).WherePK().Exec(ctx)
	}
}

type trackedEntry struct {
	model    interface{}
	snapshot map[string]interface{}
	detached bool
}

var databaseNamePattern = regexp.MustCompile(`^[A-Za-z0-9_$]+$`)

// Session is the persistence context of one unit of work. It stages
// inserts, updates and deletes, tracks entities read for update and flushes
// everything in one transaction on SaveChanges.
//
// A Session is not safe for concurrent use.
type Session struct {
	db         *bun.DB
	ownsDB     bool
	dsn        string
	conn       *bun.Conn
	tx         *Transaction
	pending    []*change
	tracked    map[interface{}]*trackedEntry
	trackOrder []*trackedEntry
	logger     Logger
	disposed   bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDSN stores the connection string ChangeDatabase rewrites when the
// session holds no open connection.
func WithDSN(dsn string) SessionOption {
	return func(s *Session) { s.dsn = dsn }
}

// WithSessionLogger overrides the process-wide database logger.
func WithSessionLogger(logger Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// NewSession opens a persistence session over db.
func NewSession(db *bun.DB, opts ...SessionOption) *Session {
	s := &Session{
		db:      db,
		tracked: make(map[interface{}]*trackedEntry),
		logger:  GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the pool the session runs on.
func (s *Session) DB() *bun.DB { return s.db }

// Dialect returns the dialect of the underlying pool.
func (s *Session) Dialect() schema.Dialect { return s.db.Dialect() }

// IDB returns the current query target: the enlisted transaction, the
// pinned connection, or the pool.
func (s *Session) IDB() bun.IDB {
	if s.tx != nil {
		return s.tx.tx
	}
	if s.conn != nil {
		return *s.conn
	}
	return s.db
}

// IsDisposed reports whether Close was called.
func (s *Session) IsDisposed() bool { return s.disposed }

// CheckOpen returns ErrDisposed after Close.
func (s *Session) CheckOpen() error {
	if s.disposed {
		return ErrDisposed
	}
	return nil
}

// CompatibleWith reports whether both sessions can share one transaction.
func (s *Session) CompatibleWith(other *Session) bool {
	return s.db == other.db
}

// Connect pins one pooled connection to the session. Every statement runs
// on it afterwards, which lets ChangeDatabase switch schemas live.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.CheckOpen(); err != nil {
		return err
	}
	if s.conn != nil {
		return nil
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	s.conn = &conn
	return nil
}

// Add stages models for insertion.
func (s *Session) Add(models ...interface{}) error {
	return s.stage(changeAdded, models)
}

// Modify stages models for a full-row update.
func (s *Session) Modify(models ...interface{}) error {
	return s.stage(changeModified, models)
}

// Remove stages models for deletion by primary key. Only the key fields of
// a model need to be set.
func (s *Session) Remove(models ...interface{}) error {
	return s.stage(changeDeleted, models)
}

func (s *Session) stage(kind changeKind, models []interface{}) error {
	if err := s.CheckOpen(); err != nil {
		return err
	}
	for _, model := range models {
		if err := checkModel(model); err != nil {
			return err
		}
	}
	for _, model := range models {
		existing := s.pendingFor(model)
		switch {
		case existing == nil:
			c := &change{kind: kind, model: model}
			if entry, ok := s.tracked[model]; ok && kind == changeModified {
				c.before = entry.snapshot
			}
			s.pending = append(s.pending, c)
		case kind == changeDeleted && existing.kind == changeAdded:
			s.dropPending(existing)
		case kind == changeDeleted:
			existing.kind = changeDeleted
		}
	}
	return nil
}

func checkModel(model interface{}) error {
	v := reflect.ValueOf(model)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("model must be a non-nil struct pointer, got %T", model)
	}
	return nil
}

func (s *Session) pendingFor(model interface{}) *change {
	for _, c := range s.pending {
		if c.model == model && !c.flushed {
			return c
		}
	}
	return nil
}

func (s *Session) dropPending(target *change) {
	for i, c := range s.pending {
		if c == target {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// PendingCount returns the number of staged changes not yet committed.
func (s *Session) PendingCount() int {
	return len(s.pending)
}

// Track attaches models so that later field changes are detected and
// written by SaveChanges. It does nothing on a closed session.
func (s *Session) Track(models ...interface{}) {
	if s.disposed {
		return
	}
	for _, model := range models {
		if checkModel(model) != nil {
			continue
		}
		if entry, ok := s.tracked[model]; ok {
			entry.snapshot = s.columns(model)
			continue
		}
		entry := &trackedEntry{model: model, snapshot: s.columns(model)}
		s.tracked[model] = entry
		s.trackOrder = append(s.trackOrder, entry)
	}
}

// IsTracked reports whether model is attached to the session.
func (s *Session) IsTracked(model interface{}) bool {
	_, ok := s.tracked[model]
	return ok
}

func (s *Session) untrack(model interface{}) {
	if entry, ok := s.tracked[model]; ok {
		entry.detached = true
		delete(s.tracked, model)
	}
}

func (s *Session) detectChanges() {
	live := s.trackOrder[:0]
	for _, entry := range s.trackOrder {
		if entry.detached {
			continue
		}
		live = append(live, entry)
		if s.pendingFor(entry.model) != nil {
			continue
		}
		if len(diffColumns(entry.snapshot, s.columns(entry.model))) > 0 {
			s.pending = append(s.pending, &change{kind: changeModified, model: entry.model, before: entry.snapshot})
		}
	}
	s.trackOrder = live
}

// columns snapshots the column values of model. Pointer fields are
// dereferenced so in-place edits are seen as changes.
func (s *Session) columns(model interface{}) map[string]interface{} {
	v := reflect.ValueOf(model).Elem()
	table := s.db.Table(v.Type())
	out := make(map[string]interface{}, len(table.Fields))
	for _, f := range table.Fields {
		fv := f.Value(v)
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				out[f.Name] = nil
				continue
			}
			fv = fv.Elem()
		}
		out[f.Name] = fv.Interface()
	}
	return out
}

func diffColumns(before, after map[string]interface{}) []string {
	var changed []string
	for col, v := range after {
		if !reflect.DeepEqual(before[col], v) {
			changed = append(changed, col)
		}
	}
	return changed
}

// SaveChanges writes every staged and detected change and returns the number
// of affected rows, history rows included. Outside a transaction the batch
// runs in a transaction of its own. Inside one, the batch is accepted when
// that transaction commits and staged again if it rolls back.
// Engine errors are returned as is.
func (s *Session) SaveChanges(ctx context.Context, recordHistory bool) (int, error) {
	if err := s.CheckOpen(); err != nil {
		return 0, err
	}
	s.detectChanges()
	batch := s.unflushed()
	if len(batch) == 0 {
		return 0, nil
	}

	if t := s.tx; t != nil {
		n, err := s.flush(ctx, t.tx, batch, recordHistory)
		if err != nil {
			return 0, err
		}
		for _, c := range batch {
			c.flushed = true
		}
		t.onFinish(func(committed bool) {
			if committed {
				s.accept(batch)
			} else {
				s.unflush(batch)
			}
		})
		return n, nil
	}

	var n int
	var target bun.IDB = s.db
	if s.conn != nil {
		target = *s.conn
	}
	err := target.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		n, err = s.flush(ctx, tx, batch, recordHistory)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.accept(batch)
	s.logger.Debug("Changes saved", "changes", len(batch), "rows", n, "history", recordHistory)
	return n, nil
}

func (s *Session) unflushed() []*change {
	batch := make([]*change, 0, len(s.pending))
	for _, c := range s.pending {
		if !c.flushed {
			batch = append(batch, c)
		}
	}
	return batch
}

func (s *Session) flush(ctx context.Context, db bun.IDB, batch []*change, recordHistory bool) (int, error) {
	var affected int64
	for _, c := range batch {
		res, err := c.exec(ctx, db)
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += n
		}
		if !recordHistory {
			continue
		}
		h, err := s.historyFor(c)
		if err != nil {
			return 0, err
		}
		if _, err := db.NewInsert().Model(h).Exec(ctx); err != nil {
			return 0, err
		}
		affected++
	}
	return int(affected), nil
}

func (s *Session) accept(batch []*change) {
	if s.disposed {
		return
	}
	done := make(map[*change]struct{}, len(batch))
	for _, c := range batch {
		done[c] = struct{}{}
		if c.kind == changeDeleted {
			s.untrack(c.model)
		} else {
			s.Track(c.model)
		}
	}
	remaining := s.pending[:0]
	for _, c := range s.pending {
		if _, ok := done[c]; !ok {
			remaining = append(remaining, c)
		}
	}
	s.pending = remaining
}

func (s *Session) unflush(batch []*change) {
	for _, c := range batch {
		c.flushed = false
	}
}

// Transaction returns the transaction the session is enlisted in, if any.
func (s *Session) Transaction() *Transaction { return s.tx }

// BeginTransaction starts a transaction owned by this session.
func (s *Session) BeginTransaction(ctx context.Context) (*Transaction, error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}
	if s.tx != nil {
		return nil, ErrTransactionInProgress
	}
	var (
		tx  bun.Tx
		err error
	)
	if s.conn != nil {
		tx, err = s.conn.BeginTx(ctx, nil)
	} else {
		tx, err = s.db.BeginTx(ctx, nil)
	}
	if err != nil {
		return nil, err
	}
	t := &Transaction{tx: tx, db: s.db, owner: s}
	t.enlist(s)
	return t, nil
}

// UseTransaction enlists the session in t, or releases it when t is nil.
func (s *Session) UseTransaction(t *Transaction) error {
	if err := s.CheckOpen(); err != nil {
		return err
	}
	if t == nil {
		if s.tx != nil {
			s.tx.detach(s)
		}
		return nil
	}
	if t.done {
		return ErrTransactionDone
	}
	if t.db != s.db {
		return ErrIncompatibleTransaction
	}
	if s.tx == t {
		return nil
	}
	if s.tx != nil {
		return ErrTransactionInProgress
	}
	t.enlist(s)
	return nil
}

// ExecuteSQL runs a statement that returns no rows and reports the affected
// row count.
func (s *Session) ExecuteSQL(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if err := s.CheckOpen(); err != nil {
		return 0, err
	}
	res, err := s.IDB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FromSQL scans the rows of a native query into dest.
func (s *Session) FromSQL(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := s.CheckOpen(); err != nil {
		return err
	}
	return s.IDB().NewRaw(query, args...).Scan(ctx, dest)
}

// ChangeDatabase points the session at another database of the same MySQL
// server. With a pinned connection or an open transaction it switches live
// through USE. Otherwise it rewrites the stored DSN and reopens the pool.
func (s *Session) ChangeDatabase(ctx context.Context, name string) error {
	if err := s.CheckOpen(); err != nil {
		return err
	}
	if s.db.Dialect().Name() != dialect.MySQL {
		return fmt.Errorf("%w: dialect %s", ErrChangeDatabaseUnsupported, s.db.Dialect().Name())
	}
	if !databaseNamePattern.MatchString(name) {
		return fmt.Errorf("invalid database name %q", name)
	}
	if s.tx != nil || s.conn != nil {
		_, err := s.IDB().ExecContext(ctx, "USE ?", bun.Ident(name))
		return err
	}
	if s.dsn == "" {
		return fmt.Errorf("change database to %s: session has no connection string", name)
	}
	dsn, err := ReplaceDatabaseInDSN(s.dsn, name)
	if err != nil {
		return err
	}
	db, err := Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to reopen connection for %s: %w", name, err)
	}
	if s.ownsDB {
		_ = s.db.Close()
	}
	s.db, s.ownsDB, s.dsn = db, true, dsn
	s.logger.Info("Session database changed", "dbname", name)
	return nil
}

// Close disposes the session once: it rolls back a transaction it owns,
// releases its pinned connection and forgets all staged changes.
func (s *Session) Close() error {
	if s.disposed {
		return nil
	}
	var errs []error
	if t := s.tx; t != nil {
		if t.owner == s {
			errs = append(errs, t.Rollback())
		} else {
			t.detach(s)
		}
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
		s.conn = nil
	}
	if s.ownsDB {
		errs = append(errs, s.db.Close())
	}
	s.disposed = true
	s.pending = nil
	s.tracked = nil
	s.trackOrder = nil
	return errors.Join(errs...)
}
