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

package shop_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/shop"
	"github.com/tomoncle/shop/database"
	"github.com/tomoncle/shop/database/dbtest"
	"github.com/tomoncle/shop/repository"
	"github.com/tomoncle/shop/types"
	"github.com/tomoncle/shop/uow"
	"github.com/uptrace/bun"
)

type SystemConfig struct {
	bun.BaseModel `bun:"table:system_config,alias:sc"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	ConfigKey   string    `bun:"config_key,notnull,unique" json:"config_key"`
	ConfigValue string    `bun:"config_value" json:"config_value"`
	ConfigType  string    `bun:"config_type,notnull" json:"config_type"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

func newConfig(key, value string) *SystemConfig {
	return &SystemConfig{ConfigKey: key, ConfigValue: value, ConfigType: "string"}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t, (*SystemConfig)(nil))
	svc := shop.NewService[SystemConfig](uow.NewFactory(db), shop.WithHistory())

	n, err := svc.Save(ctx, newConfig("site.name", "shop"), newConfig("site.lang", "ru"), newConfig("sync.enabled", "true"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	t.Run("Should read what was saved", func(t *testing.T) {
		all, err := svc.All(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		sites, err := svc.List(ctx, types.NewQueryFilter("config_key LIKE ?", "site.%"), "config_key ASC")
		require.NoError(t, err)
		require.Len(t, sites, 2)
		assert.Equal(t, "site.lang", sites[0].ConfigKey)

		cfg, err := svc.Get(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, "site.name", cfg.ConfigKey)
		assert.False(t, cfg.CreatedAt.IsZero())

		rows, err := svc.Query(ctx, "SELECT * FROM system_config WHERE config_value = ?", "ru")
		require.NoError(t, err)
		require.Len(t, rows, 1)
	})

	t.Run("Should page with options", func(t *testing.T) {
		page, err := svc.Page(ctx, 1, 2, repository.OrderBy("id ASC"), repository.IndexFrom(1))
		require.NoError(t, err)
		assert.Equal(t, 3, page.TotalCount)
		assert.Len(t, page.Items, 2)
		assert.True(t, page.HasNextPage())
	})

	t.Run("Should update and delete", func(t *testing.T) {
		cfg, err := svc.Get(ctx, 2)
		require.NoError(t, err)
		cfg.ConfigValue = "en"
		_, err = svc.Update(ctx, cfg)
		require.NoError(t, err)

		cfg, err = svc.Get(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "en", cfg.ConfigValue)

		n, err := svc.Delete(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		missing, err := svc.Get(ctx, 3)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("Should surface engine errors unchanged", func(t *testing.T) {
		_, err := svc.Save(ctx, newConfig("site.name", "again"))
		is, kind := database.IsSqlError(err)
		assert.True(t, is)
		assert.Equal(t, database.DuplicateKeyErr, kind)
	})
}
