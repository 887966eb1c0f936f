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

package uow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/shop/database"
	"github.com/tomoncle/shop/database/dbtest"
	"github.com/tomoncle/shop/repository"
	"github.com/tomoncle/shop/uow"
	"github.com/uptrace/bun"
)

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID     int64  `bun:"id,pk,autoincrement"`
	Number string `bun:"number,notnull,unique"`
}

type Line struct {
	bun.BaseModel `bun:"table:lines,alias:l"`

	ID      int64  `bun:"id,pk,autoincrement"`
	OrderID int64  `bun:"order_id"`
	SKU     string `bun:"sku,notnull,unique"`
}

func open(t *testing.T) *bun.DB {
	return dbtest.Open(t, (*Order)(nil), (*Line)(nil))
}

func TestGetRepository(t *testing.T) {
	unit := uow.NewFactory(open(t)).New()
	defer unit.Close()

	orders := repository.GetRepository[Order](unit)
	assert.Same(t, orders, repository.GetRepository[Order](unit))
	assert.NotSame(t, orders, repository.GetRepository[Line](unit))
	assert.Same(t, unit.Session(), orders.Session())
}

func TestFactoryFollowsSource(t *testing.T) {
	first, second := open(t), open(t)
	current := first
	units := uow.NewFactoryFrom(func() *bun.DB { return current })

	unit := units.New()
	defer unit.Close()
	assert.Same(t, first, unit.Session().DB())

	current = second
	next := units.New()
	defer next.Close()
	assert.Same(t, second, next.Session().DB())
	assert.Same(t, first, unit.Session().DB())
}

func TestSaveChanges(t *testing.T) {
	ctx := context.Background()
	db := open(t)
	unit := uow.NewFactory(db).New()
	defer unit.Close()

	orders := repository.GetRepository[Order](unit)
	require.NoError(t, orders.Insert(&Order{Number: "A-1"}, &Order{Number: "A-2"}))
	n, err := unit.SaveChanges(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 2, dbtest.Count(t, db, (*Order)(nil)))
	assert.Equal(t, 2, dbtest.Count(t, db, (*database.ChangeHistory)(nil)))

	require.NoError(t, orders.DeleteByKey(ctx, int64(1)))
	n, err = unit.SaveChanges(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, dbtest.Count(t, db, (*Order)(nil)))
}

func TestSaveChangesWith(t *testing.T) {
	ctx := context.Background()

	t.Run("Should commit every unit together", func(t *testing.T) {
		db := open(t)
		factory := uow.NewFactory(db)
		primary, peer := factory.New(), factory.New()
		defer primary.Close()
		defer peer.Close()

		require.NoError(t, repository.GetRepository[Order](primary).Insert(&Order{Number: "B-1"}))
		require.NoError(t, repository.GetRepository[Line](peer).Insert(&Line{OrderID: 1, SKU: "s-1"}, &Line{OrderID: 1, SKU: "s-2"}))

		n, err := primary.SaveChangesWith(ctx, false, peer)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, 0, primary.Session().PendingCount())
		assert.Equal(t, 0, peer.Session().PendingCount())
		assert.Nil(t, peer.Session().Transaction())
		assert.Equal(t, 1, dbtest.Count(t, db, (*Order)(nil)))
		assert.Equal(t, 2, dbtest.Count(t, db, (*Line)(nil)))
	})

	t.Run("Should roll back every unit when a peer fails", func(t *testing.T) {
		db := open(t)
		factory := uow.NewFactory(db)
		primary, peer := factory.New(), factory.New()
		defer primary.Close()
		defer peer.Close()

		require.NoError(t, repository.GetRepository[Order](primary).Insert(&Order{Number: "C-1"}))
		require.NoError(t, repository.GetRepository[Line](peer).Insert(&Line{SKU: "dup"}, &Line{SKU: "dup"}))

		_, err := primary.SaveChangesWith(ctx, false, peer)
		require.Error(t, err)
		is, kind := database.IsSqlError(err)
		assert.True(t, is)
		assert.Equal(t, database.DuplicateKeyErr, kind)

		assert.Equal(t, 0, dbtest.Count(t, db, (*Order)(nil)))
		assert.Equal(t, 0, dbtest.Count(t, db, (*Line)(nil)))
		assert.Nil(t, primary.Session().Transaction())
		assert.Nil(t, peer.Session().Transaction())
		assert.Equal(t, 1, primary.Session().PendingCount())
		assert.Equal(t, 2, peer.Session().PendingCount())
	})

	t.Run("Should roll back flushed peers when the primary fails", func(t *testing.T) {
		db := open(t)
		factory := uow.NewFactory(db)
		primary, peer := factory.New(), factory.New()
		defer primary.Close()
		defer peer.Close()

		require.NoError(t, repository.GetRepository[Line](peer).Insert(&Line{SKU: "ok"}))
		require.NoError(t, repository.GetRepository[Order](primary).Insert(&Order{Number: "D-1"}, &Order{Number: "D-1"}))

		_, err := primary.SaveChangesWith(ctx, false, peer)
		require.Error(t, err)
		assert.Equal(t, 0, dbtest.Count(t, db, (*Line)(nil)))
		assert.Equal(t, 1, peer.Session().PendingCount())

		// The peer can retry on its own once the conflict is gone.
		n, err := peer.SaveChanges(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Should reject peers over another database before starting", func(t *testing.T) {
		primary := uow.NewFactory(open(t)).New()
		other := uow.NewFactory(open(t)).New()
		defer primary.Close()
		defer other.Close()

		require.NoError(t, repository.GetRepository[Order](primary).Insert(&Order{Number: "E-1"}))
		_, err := primary.SaveChangesWith(ctx, false, other)
		assert.ErrorIs(t, err, database.ErrIncompatibleTransaction)
		assert.Nil(t, primary.Session().Transaction())
		assert.Equal(t, 1, primary.Session().PendingCount())
	})

	t.Run("Should ignore cancellation once the commit began", func(t *testing.T) {
		db := open(t)
		factory := uow.NewFactory(db)
		primary, peer := factory.New(), factory.New()
		defer primary.Close()
		defer peer.Close()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		require.NoError(t, repository.GetRepository[Order](primary).Insert(&Order{Number: "F-1"}))
		n, err := primary.SaveChangesWith(cancelled, false, peer)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestRawSQL(t *testing.T) {
	ctx := context.Background()
	unit := uow.NewFactory(open(t)).New()
	defer unit.Close()

	n, err := unit.ExecuteSQL(ctx, "INSERT INTO orders (number) VALUES (?), (?)", "G-1", "G-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	orders, err := uow.FromSQL[Order](ctx, unit, "SELECT * FROM orders ORDER BY id DESC")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "G-2", orders[0].Number)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	unit := uow.NewFactory(open(t)).New()

	require.NoError(t, unit.Close())
	require.NoError(t, unit.Close())

	_, err := unit.SaveChanges(ctx, false)
	assert.ErrorIs(t, err, database.ErrDisposed)
	_, err = unit.SaveChangesWith(ctx, false)
	assert.ErrorIs(t, err, database.ErrDisposed)
	_, err = unit.ExecuteSQL(ctx, "SELECT 1")
	assert.ErrorIs(t, err, database.ErrDisposed)
	_, err = uow.FromSQL[Order](ctx, unit, "SELECT * FROM orders")
	assert.ErrorIs(t, err, database.ErrDisposed)
	assert.ErrorIs(t, unit.ChangeDatabase(ctx, "other"), database.ErrDisposed)
	assert.PanicsWithError(t, database.ErrDisposed.Error(), func() {
		repository.GetRepository[Order](unit)
	})
}

func TestChangeDatabaseUnsupported(t *testing.T) {
	unit := uow.NewFactory(open(t)).New()
	defer unit.Close()
	assert.ErrorIs(t, unit.ChangeDatabase(context.Background(), "tenant"), database.ErrChangeDatabaseUnsupported)
}
