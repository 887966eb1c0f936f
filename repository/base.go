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
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/tomoncle/shop/database"
	"github.com/tomoncle/shop/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T any] struct {
	session *database.Session
}

// NewRepository returns a generic repository bound to session.
func NewRepository[T any](session *database.Session) Repository[T] {
	return &baseRepositoryImpl[T]{session: session}
}

func (r *baseRepositoryImpl[T]) Session() *database.Session { return r.session }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.session.Dialect() }

func (r *baseRepositoryImpl[T]) Query(opts ...QueryOption) *bun.SelectQuery {
	return newQuerySpec(opts).apply(r.session.IDB().NewSelect().Model((*T)(nil)))
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, opts ...QueryOption) ([]*T, error) {
	if err := r.session.CheckOpen(); err != nil {
		return nil, err
	}
	spec := newQuerySpec(opts)
	entities := make([]*T, 0)
	if err := spec.apply(r.session.IDB().NewSelect().Model(&entities)).Scan(ctx); err != nil {
		return nil, err
	}
	r.track(spec, entities)
	return entities, nil
}

func (r *baseRepositoryImpl[T]) PagedList(ctx context.Context, pageIndex, pageSize int, opts ...QueryOption) (*types.PagedList[*T], error) {
	spec := newQuerySpec(opts)
	if err := types.CheckPage(pageIndex, pageSize, spec.indexFrom); err != nil {
		return nil, err
	}
	if err := r.session.CheckOpen(); err != nil {
		return nil, err
	}
	total, err := spec.applyFilters(r.session.IDB().NewSelect().Model((*T)(nil))).Count(ctx)
	if err != nil {
		return nil, err
	}
	entities := make([]*T, 0, min(pageSize, total))
	err = spec.apply(r.session.IDB().NewSelect().Model(&entities)).
		Offset(types.Skip(pageIndex, pageSize, spec.indexFrom)).
		Limit(pageSize).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	r.track(spec, entities)
	return types.NewPagedList(entities, total, pageIndex, pageSize, spec.indexFrom), nil
}

func (r *baseRepositoryImpl[T]) FirstOrDefault(ctx context.Context, opts ...QueryOption) (*T, error) {
	if err := r.session.CheckOpen(); err != nil {
		return nil, err
	}
	spec := newQuerySpec(opts)
	entity := new(T)
	err := spec.apply(r.session.IDB().NewSelect().Model(entity)).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.track(spec, []*T{entity})
	return entity, nil
}

func (r *baseRepositoryImpl[T]) FindByKey(ctx context.Context, keyValues ...interface{}) (*T, error) {
	if err := r.session.CheckOpen(); err != nil {
		return nil, err
	}
	table := r.session.DB().Table(reflect.TypeFor[T]())
	if len(table.PKs) == 0 {
		return nil, fmt.Errorf("%s has no primary key", table.Name)
	}
	if len(keyValues) != len(table.PKs) {
		return nil, &types.ArgumentError{
			Param:  "keyValues",
			Reason: fmt.Sprintf("%s has %d key columns, got %d values", table.Name, len(table.PKs), len(keyValues)),
		}
	}
	entity := new(T)
	q := r.session.IDB().NewSelect().Model(entity)
	for i, pk := range table.PKs {
		q = q.Where("?TableAlias.? = ?", bun.Ident(pk.Name), keyValues[i])
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, opts ...QueryOption) (int, error) {
	if err := r.session.CheckOpen(); err != nil {
		return 0, err
	}
	return newQuerySpec(opts).applyFilters(r.session.IDB().NewSelect().Model((*T)(nil))).Count(ctx)
}

func (r *baseRepositoryImpl[T]) FromSQL(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	entities := make([]*T, 0)
	if err := r.session.FromSQL(ctx, &entities, query, args...); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Insert(entities ...*T) error {
	return r.session.Add(toModels(entities)...)
}

func (r *baseRepositoryImpl[T]) InsertContext(ctx context.Context, entities ...*T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.Insert(entities...)
}

func (r *baseRepositoryImpl[T]) Update(entities ...*T) error {
	return r.session.Modify(toModels(entities)...)
}

func (r *baseRepositoryImpl[T]) Delete(entities ...*T) error {
	return r.session.Remove(toModels(entities)...)
}

func (r *baseRepositoryImpl[T]) DeleteByKey(ctx context.Context, key interface{}) error {
	if err := r.session.CheckOpen(); err != nil {
		return err
	}
	if acc, ok := database.LookupKey[T](); ok && acc.Set != nil {
		stub := new(T)
		if err := acc.Set(stub, key); err == nil {
			return r.session.Remove(stub)
		}
	}
	entity, err := r.FindByKey(ctx, key)
	if err != nil || entity == nil {
		return err
	}
	return r.session.Remove(entity)
}

func (r *baseRepositoryImpl[T]) track(spec *querySpec, entities []*T) {
	if spec.tracking && len(entities) > 0 {
		r.session.Track(toModels(entities)...)
	}
}

func toModels[T any](entities []*T) []interface{} {
	models := make([]interface{}, len(entities))
	for i, e := range entities {
		models[i] = e
	}
	return models
}

// PagedListAs fetches one page like Repository.PagedList and projects its
// items through selector. The selector sees only the fetched page.
func PagedListAs[T any, R any](ctx context.Context, repo Repository[T], selector func(*T) R, pageIndex, pageSize int, opts ...QueryOption) (*types.PagedList[R], error) {
	page, err := repo.PagedList(ctx, pageIndex, pageSize, opts...)
	if err != nil {
		return nil, err
	}
	return types.MapPagedList(page, func(items []*T) []R {
		out := make([]R, len(items))
		for i, item := range items {
			out[i] = selector(item)
		}
		return out
	}), nil
}

// FirstOrDefaultAs returns the projection of the first match. The boolean
// is false when nothing matched.
func FirstOrDefaultAs[T any, R any](ctx context.Context, repo Repository[T], selector func(*T) R, opts ...QueryOption) (R, bool, error) {
	var zero R
	entity, err := repo.FirstOrDefault(ctx, opts...)
	if err != nil || entity == nil {
		return zero, false, err
	}
	return selector(entity), true, nil
}
