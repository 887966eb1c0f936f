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

package database_test

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/shop/database"
	"github.com/tomoncle/shop/database/dbtest"
	"github.com/uptrace/bun"
)

type Widget struct {
	bun.BaseModel `bun:"table:widgets,alias:w"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull,unique"`
	Qty  int    `bun:"qty"`
}

func (*Widget) Indexes() []database.TableIndex {
	return []database.TableIndex{{Name: "idx_widgets_qty", Columns: []string{"qty"}}}
}

func init() {
	database.RegisteredModel(database.NewModelAdapter(&Widget{}, 1))
	database.RegisterKey[Widget](
		func(w *Widget) interface{} { return w.ID },
		func(w *Widget, key interface{}) error {
			id, err := database.Int64Key(key)
			w.ID = id
			return err
		},
	)
}

func TestSessionSaveChanges(t *testing.T) {
	ctx := context.Background()

	t.Run("Should persist staged inserts only on SaveChanges", func(t *testing.T) {
		db := dbtest.Open(t, (*Widget)(nil))
		s := database.NewSession(db)
		defer s.Close()

		w := &Widget{Name: "bolt", Qty: 3}
		require.NoError(t, s.Add(w))
		assert.Equal(t, 0, dbtest.Count(t, db, (*Widget)(nil)))
		assert.Equal(t, 1, s.PendingCount())

		n, err := s.SaveChanges(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.NotZero(t, w.ID)
		assert.Equal(t, 0, s.PendingCount())
		assert.Equal(t, 1, dbtest.Count(t, db, (*Widget)(nil)))
	})

	t.Run("Should detect changes on tracked entities", func(t *testing.T) {
		db := dbtest.Open(t, (*Widget)(nil))
		s := database.NewSession(db)
		defer s.Close()

		w := &Widget{Name: "nut", Qty: 1}
		require.NoError(t, s.Add(w))
		_, err := s.SaveChanges(ctx, false)
		require.NoError(t, err)
		assert.True(t, s.IsTracked(w))

		w.Qty = 42
		n, err := s.SaveChanges(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		stored := new(Widget)
		require.NoError(t, db.NewSelect().Model(stored).Where("id = ?", w.ID).Scan(ctx))
		assert.Equal(t, 42, stored.Qty)

		n, err = s.SaveChanges(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("Should delete through a key-only stand-in", func(t *testing.T) {
		db := dbtest.Open(t, (*Widget)(nil))
		_, err := db.NewInsert().Model(&[]Widget{{Name: "a"}, {Name: "b"}}).Exec(ctx)
		require.NoError(t, err)

		s := database.NewSession(db)
		defer s.Close()
		require.NoError(t, s.Remove(&Widget{ID: 1}))
		n, err := s.SaveChanges(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 1, dbtest.Count(t, db, (*Widget)(nil)))
	})

	t.Run("Should cancel an insert removed before saving", func(t *testing.T) {
		db := dbtest.Open(t, (*Widget)(nil))
		s := database.NewSession(db)
		defer s.Close()

		w := &Widget{Name: "washer"}
		require.NoError(t, s.Add(w))
		require.NoError(t, s.Remove(w))
		n, err := s.SaveChanges(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("Should reject values that are not struct pointers", func(t *testing.T) {
		s := database.NewSession(dbtest.Open(t))
		defer s.Close()
		assert.Error(t, s.Add(Widget{}))
		assert.Error(t, s.Add((*Widget)(nil)))
	})

	t.Run("Should keep staged changes after an engine failure", func(t *testing.T) {
		db := dbtest.Open(t, (*Widget)(nil))
		s := database.NewSession(db)
		defer s.Close()

		require.NoError(t, s.Add(&Widget{Name: "dup"}, &Widget{Name: "dup"}))
		_, err := s.SaveChanges(ctx, false)
		require.Error(t, err)
		is, kind := database.IsSqlError(err)
		assert.True(t, is)
		assert.Equal(t, database.DuplicateKeyErr, kind)
		assert.Equal(t, 2, s.PendingCount())
		assert.Equal(t, 0, dbtest.Count(t, db, (*Widget)(nil)))
	})
}

func TestSessionHistory(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t, (*Widget)(nil))
	s := database.NewSession(db)
	defer s.Close()

	w := &Widget{Name: "gear", Qty: 5}
	require.NoError(t, s.Add(w))
	n, err := s.SaveChanges(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	w.Qty = 6
	_, err = s.SaveChanges(ctx, true)
	require.NoError(t, err)

	var rows []database.ChangeHistory
	require.NoError(t, db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx))
	require.Len(t, rows, 2)
	assert.Equal(t, "Added", rows[0].Kind)
	assert.Equal(t, "widgets", rows[0].TableName)
	assert.Equal(t, "Modified", rows[1].Kind)

	var diff map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(rows[1].Changed), &diff))
	require.Contains(t, diff, "qty")
	assert.EqualValues(t, 5, diff["qty"]["before"])
	assert.EqualValues(t, 6, diff["qty"]["after"])
}

func TestSessionTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("Should roll back every enlisted session", func(t *testing.T) {
		db := dbtest.Open(t, (*Widget)(nil))
		owner := database.NewSession(db)
		peer := database.NewSession(db)
		defer owner.Close()
		defer peer.Close()

		tx, err := owner.BeginTransaction(ctx)
		require.NoError(t, err)
		require.NoError(t, peer.UseTransaction(tx))

		require.NoError(t, peer.Add(&Widget{Name: "spring"}))
		n, err := peer.SaveChanges(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, tx.Rollback())
		assert.Nil(t, peer.Transaction())
		assert.Nil(t, owner.Transaction())
		assert.Equal(t, 1, peer.PendingCount())
		assert.Equal(t, 0, dbtest.Count(t, db, (*Widget)(nil)))
	})

	t.Run("Should accept flushed changes on commit", func(t *testing.T) {
		db := dbtest.Open(t, (*Widget)(nil))
		owner := database.NewSession(db)
		defer owner.Close()

		tx, err := owner.BeginTransaction(ctx)
		require.NoError(t, err)
		require.NoError(t, owner.Add(&Widget{Name: "pin"}))
		_, err = owner.SaveChanges(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 1, owner.PendingCount())

		require.NoError(t, tx.Commit())
		assert.Equal(t, 0, owner.PendingCount())
		assert.ErrorIs(t, tx.Commit(), database.ErrTransactionDone)
		assert.Equal(t, 1, dbtest.Count(t, db, (*Widget)(nil)))
	})

	t.Run("Should refuse sessions over another pool", func(t *testing.T) {
		owner := database.NewSession(dbtest.Open(t, (*Widget)(nil)))
		other := database.NewSession(dbtest.Open(t, (*Widget)(nil)))
		defer owner.Close()
		defer other.Close()

		tx, err := owner.BeginTransaction(ctx)
		require.NoError(t, err)
		defer tx.Rollback()
		assert.ErrorIs(t, other.UseTransaction(tx), database.ErrIncompatibleTransaction)
		_, err = owner.BeginTransaction(ctx)
		assert.ErrorIs(t, err, database.ErrTransactionInProgress)
	})

	t.Run("Should roll back an owned transaction on Close", func(t *testing.T) {
		db := dbtest.Open(t, (*Widget)(nil))
		owner := database.NewSession(db)
		tx, err := owner.BeginTransaction(ctx)
		require.NoError(t, err)
		_, err = owner.ExecuteSQL(ctx, "INSERT INTO widgets (name, qty) VALUES (?, ?)", "cog", 1)
		require.NoError(t, err)

		require.NoError(t, owner.Close())
		assert.True(t, tx.Done())
		assert.Equal(t, 0, dbtest.Count(t, db, (*Widget)(nil)))
	})
}

func TestSessionRawSQL(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t, (*Widget)(nil))
	s := database.NewSession(db)
	defer s.Close()

	n, err := s.ExecuteSQL(ctx, "INSERT INTO widgets (name, qty) VALUES (?, ?), (?, ?)", "x", 1, "y", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var rows []*Widget
	require.NoError(t, s.FromSQL(ctx, &rows, "SELECT * FROM widgets WHERE qty > ?", 1))
	require.Len(t, rows, 1)
	assert.Equal(t, "y", rows[0].Name)
}

func TestSessionDisposal(t *testing.T) {
	ctx := context.Background()
	s := database.NewSession(dbtest.Open(t, (*Widget)(nil)))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, s.IsDisposed())

	assert.ErrorIs(t, s.Add(&Widget{Name: "late"}), database.ErrDisposed)
	_, err := s.SaveChanges(ctx, false)
	assert.ErrorIs(t, err, database.ErrDisposed)
	_, err = s.ExecuteSQL(ctx, "SELECT 1")
	assert.ErrorIs(t, err, database.ErrDisposed)
	_, err = s.BeginTransaction(ctx)
	assert.ErrorIs(t, err, database.ErrDisposed)

	w := &Widget{Name: "late"}
	assert.NotPanics(t, func() { s.Track(w) })
	assert.False(t, s.IsTracked(w))
}

func TestInt64Key(t *testing.T) {
	for _, key := range []interface{}{7, int32(7), int64(7), uint(7), uint32(7), uint64(7), "7"} {
		id, err := database.Int64Key(key)
		require.NoError(t, err, "%T", key)
		assert.Equal(t, int64(7), id)
	}

	id, err := database.Int64Key(uint64(math.MaxInt64))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), id)

	_, err = database.Int64Key(uint64(math.MaxInt64) + 1)
	assert.Error(t, err)
	_, err = database.Int64Key(1.5)
	assert.Error(t, err)
}

func TestSessionChangeDatabase(t *testing.T) {
	s := database.NewSession(dbtest.Open(t))
	defer s.Close()
	err := s.ChangeDatabase(context.Background(), "other")
	assert.ErrorIs(t, err, database.ErrChangeDatabaseUnsupported)
}
