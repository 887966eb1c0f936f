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
	"github.com/uptrace/bun"
)

// Transaction is one physical transaction shared by every session enlisted
// in it. Staged changes flushed inside it are accepted by their sessions
// only after Commit succeeds.
type Transaction struct {
	tx       bun.Tx
	db       *bun.DB
	owner    *Session
	sessions []*Session
	hooks    []func(committed bool)
	done     bool
}

// IDB returns the transaction as a Bun query target.
func (t *Transaction) IDB() bun.IDB { return t.tx }

// Done reports whether the transaction was committed or rolled back.
func (t *Transaction) Done() bool { return t.done }

// Commit commits the transaction and releases every enlisted session.
// A failed commit is treated as a rollback.
func (t *Transaction) Commit() error {
	if t.done {
		return ErrTransactionDone
	}
	err := t.tx.Commit()
	t.finish(err == nil)
	return err
}

// Rollback rolls the transaction back. It is a no-op once the transaction
// is done, so it can be deferred unconditionally.
func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}
	err := t.tx.Rollback()
	t.finish(false)
	return err
}

func (t *Transaction) enlist(s *Session) {
	t.sessions = append(t.sessions, s)
	s.tx = t
}

func (t *Transaction) detach(s *Session) {
	for i, enlisted := range t.sessions {
		if enlisted == s {
			t.sessions = append(t.sessions[:i], t.sessions[i+1:]...)
			break
		}
	}
	if s.tx == t {
		s.tx = nil
	}
}

func (t *Transaction) onFinish(fn func(committed bool)) {
	t.hooks = append(t.hooks, fn)
}

func (t *Transaction) finish(committed bool) {
	t.done = true
	for _, s := range t.sessions {
		if s.tx == t {
			s.tx = nil
		}
	}
	t.sessions = nil
	hooks := t.hooks
	t.hooks = nil
	for _, fn := range hooks {
		fn(committed)
	}
}
