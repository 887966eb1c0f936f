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

package repository

import (
	"context"

	"github.com/tomoncle/shop/database"
	"github.com/tomoncle/shop/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// ReadRepository defines the query operations of a generic entity type.
// Tracking is off unless AsTracking is passed.
type ReadRepository[T any] interface {
	// List returns every entity matching the options.
	List(ctx context.Context, opts ...QueryOption) ([]*T, error)

	// PagedList counts the matching rows, then fetches one page of them.
	PagedList(ctx context.Context, pageIndex, pageSize int, opts ...QueryOption) (*types.PagedList[*T], error)

	// FirstOrDefault returns the first match, or nil when there is none.
	FirstOrDefault(ctx context.Context, opts ...QueryOption) (*T, error)

	// FindByKey looks an entity up by its primary key values, or returns nil.
	FindByKey(ctx context.Context, keyValues ...interface{}) (*T, error)

	Count(ctx context.Context, opts ...QueryOption) (int, error)

	// FromSQL runs a native query and scans its rows as entities.
	FromSQL(ctx context.Context, query string, args ...interface{}) ([]*T, error)
}

// WriteRepository defines the staging operations of a generic entity type.
type WriteRepository[T any] interface {
	Insert(entities ...*T) error

	// InsertContext stages entities unless ctx is already done.
	InsertContext(ctx context.Context, entities ...*T) error

	Update(entities ...*T) error

	Delete(entities ...*T) error

	// DeleteByKey stages the deletion of the entity with the given key
	// without reading it when the type has registered key accessors.
	DeleteByKey(ctx context.Context, key interface{}) error
}

// Repository combines reads and staged writes and exposes the Bun select
// builder for advanced use cases.
type Repository[T any] interface {
	ReadRepository[T]
	WriteRepository[T]
	Session() *database.Session
	Dialect() schema.Dialect
	Query(opts ...QueryOption) *bun.SelectQuery
}
