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

package catalog_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/shop/catalog"
	"github.com/tomoncle/shop/database"
	"github.com/tomoncle/shop/database/dbtest"
	"github.com/tomoncle/shop/repository"
	"github.com/tomoncle/shop/types"
	"github.com/tomoncle/shop/uow"
	"github.com/uptrace/bun"
)

func seedCatalog(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()
	db := dbtest.Open(t)
	require.NoError(t, database.NewMigrationManager(db, nil).RunMigrations(ctx))

	root := int64(1)
	categories := []*catalog.Category{
		catalog.NewCategory("Office", nil, 2),
		catalog.NewCategory("Paper", &root, 1),
		catalog.NewCategory("Pens", &root, 0),
		{Name: "Archive", IsActive: false},
	}
	_, err := db.NewInsert().Model(&categories).Exec(ctx)
	require.NoError(t, err)

	paper := int64(2)
	assortments := []*catalog.Assortment{
		{SKU: 100, Name: "A4 paper", CategoryID: &paper, Weight: decimal.RequireFromString("2.5"),
			Photos: types.StringArray{"a4.jpg"}, Prices: types.JsonObject{"contract": "310.50"}},
		{SKU: 101, Name: "A3 paper", CategoryID: &paper},
		{SKU: 200, Name: "Blue pen"},
	}
	_, err = db.NewInsert().Model(&assortments).Exec(ctx)
	require.NoError(t, err)
	return db
}

func TestCategoryManager(t *testing.T) {
	ctx := context.Background()
	db := seedCatalog(t)
	units := uow.NewFactory(db)

	t.Run("Should return a category with its children", func(t *testing.T) {
		unit := units.New()
		defer unit.Close()
		c, err := catalog.NewCategoryManager(unit).GetCategory(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, "Office", c.Name)
		assert.Len(t, c.ChildCategories, 2)

		c, err = catalog.NewCategoryManager(unit).GetCategory(ctx, 404)
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("Should list active categories by sort order", func(t *testing.T) {
		unit := units.New()
		defer unit.Close()
		list, err := catalog.NewCategoryManager(unit).GetCategories(ctx)
		require.NoError(t, err)
		names := make([]string, len(list))
		for i, c := range list {
			names[i] = c.Name
		}
		assert.Equal(t, []string{"Pens", "Paper", "Office"}, names)
	})

	t.Run("Should page active categories", func(t *testing.T) {
		unit := units.New()
		defer unit.Close()
		page, err := catalog.NewCategoryManager(unit).GetCategoryPage(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, page.TotalCount)
		assert.Equal(t, 2, page.TotalPages)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "Office", page.Items[0].Name)
		assert.False(t, page.HasNextPage())
	})

	t.Run("Should page the assortment of a category", func(t *testing.T) {
		unit := units.New()
		defer unit.Close()
		page, err := catalog.NewCategoryManager(unit).GetAssortments(ctx, 2, 0, 10)
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		a4 := page.Items[0]
		assert.Equal(t, int64(100), a4.SKU)
		assert.True(t, decimal.RequireFromString("2.5").Equal(a4.Weight))
		assert.Equal(t, types.StringArray{"a4.jpg"}, a4.Photos)
		assert.True(t, decimal.RequireFromString("310.50").Equal(a4.Price("contract")))
		assert.True(t, a4.Price("retail").IsZero())
	})

	t.Run("Should delete a category by id", func(t *testing.T) {
		unit := units.New()
		defer unit.Close()
		m := catalog.NewCategoryManager(unit)
		deleted, err := m.DeleteCategory(ctx, 4)
		require.NoError(t, err)
		assert.True(t, deleted)
		deleted, err = m.DeleteCategory(ctx, 4)
		require.NoError(t, err)
		assert.False(t, deleted)
		assert.Equal(t, 3, dbtest.Count(t, db, (*catalog.Category)(nil)))
	})
}

func TestAssortmentKeyDelete(t *testing.T) {
	ctx := context.Background()
	db := seedCatalog(t)
	unit := uow.NewFactory(db).New()
	defer unit.Close()

	require.NoError(t, repository.GetRepository[catalog.Assortment](unit).DeleteByKey(ctx, "200"))
	n, err := unit.SaveChanges(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, dbtest.Count(t, db, (*catalog.Assortment)(nil)))

	var history []database.ChangeHistory
	require.NoError(t, db.NewSelect().Model(&history).Scan(ctx))
	require.Len(t, history, 1)
	assert.Equal(t, "assortments", history[0].TableName)
	assert.Equal(t, "200", history[0].RowID)
	assert.Equal(t, "Deleted", history[0].Kind)
}
