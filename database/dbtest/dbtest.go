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

// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomoncle/shop/database"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Open returns a Bun database over a fresh SQLite file with the tables of
// models and the change history table created. The pool holds a single
// connection, so a test must not read outside a transaction it keeps open.
func Open(t testing.TB, models ...interface{}) *bun.DB {
	t.Helper()
	sqlDB, err := sql.Open(sqliteshim.ShimName, filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range append(models, (*database.ChangeHistory)(nil)) {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

// Count returns the number of rows in the table of model.
func Count(t testing.TB, db bun.IDB, model interface{}) int {
	t.Helper()
	n, err := db.NewSelect().Model(model).Count(context.Background())
	require.NoError(t, err)
	return n
}

// QueryCounter is a query hook counting the statements a database runs.
type QueryCounter struct {
	n atomic.Int64
}

func (c *QueryCounter) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (c *QueryCounter) AfterQuery(context.Context, *bun.QueryEvent) {
	c.n.Add(1)
}

// Count returns the number of statements run since the counter was installed.
func (c *QueryCounter) Count() int {
	return int(c.n.Load())
}

// CountQueries installs a QueryCounter on db.
func CountQueries(db *bun.DB) *QueryCounter {
	c := &QueryCounter{}
	db.AddQueryHook(c)
	return c
}
