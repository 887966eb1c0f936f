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

package shop

import (
	"context"

	"github.com/tomoncle/shop/repository"
	"github.com/tomoncle/shop/types"
	"github.com/tomoncle/shop/uow"
)

// Service is a per-call facade over the repository of T. Every method runs
// in a unit of work of its own, committed before it returns.
type Service[T any] interface {
	// Get returns a single entity by its key, or nil.
	Get(ctx context.Context, key ...interface{}) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter, orders ...string) ([]*T, error)

	// Query executes a raw query and maps the results to entities.
	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, pageIndex, pageSize int, opts ...repository.QueryOption) (*types.PagedList[*T], error)

	// Save inserts one or more new entities.
	Save(ctx context.Context, model ...*T) (int, error)

	// Update modifies existing entities.
	Update(ctx context.Context, model ...*T) (int, error)

	// Delete removes the entity with the given key.
	Delete(ctx context.Context, key interface{}) (int, error)
}

type baseServiceImpl[T any] struct {
	units         *uow.Factory
	recordHistory bool
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	recordHistory bool
}

// WithHistory makes every write of the service record change history.
func WithHistory() ServiceOption {
	return func(o *serviceOptions) { o.recordHistory = true }
}

// NewService returns a default Service whose units of work come from units.
func NewService[T any](units *uow.Factory, opts ...ServiceOption) Service[T] {
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &baseServiceImpl[T]{units: units, recordHistory: o.recordHistory}
}

func (s *baseServiceImpl[T]) read(fn func(repo repository.Repository[T]) error) error {
	unit := s.units.New()
	defer unit.Close()
	return fn(repository.GetRepository[T](unit))
}

func (s *baseServiceImpl[T]) write(ctx context.Context, fn func(repo repository.Repository[T]) error) (int, error) {
	unit := s.units.New()
	defer unit.Close()
	if err := fn(repository.GetRepository[T](unit)); err != nil {
		return 0, err
	}
	return unit.SaveChanges(ctx, s.recordHistory)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, key ...interface{}) (entity *T, err error) {
	err = s.read(func(repo repository.Repository[T]) error {
		entity, err = repo.FindByKey(ctx, key...)
		return err
	})
	return entity, err
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.List(ctx, nil)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filter *types.QueryFilter, orders ...string) (entities []*T, err error) {
	err = s.read(func(repo repository.Repository[T]) error {
		entities, err = repo.List(ctx, repository.Filter(filter), repository.OrderBy(orders...))
		return err
	})
	return entities, err
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, query string, args ...interface{}) (entities []*T, err error) {
	err = s.read(func(repo repository.Repository[T]) error {
		entities, err = repo.FromSQL(ctx, query, args...)
		return err
	})
	return entities, err
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, pageIndex, pageSize int, opts ...repository.QueryOption) (page *types.PagedList[*T], err error) {
	err = s.read(func(repo repository.Repository[T]) error {
		page, err = repo.PagedList(ctx, pageIndex, pageSize, opts...)
		return err
	})
	return page, err
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) (int, error) {
	return s.write(ctx, func(repo repository.Repository[T]) error {
		return repo.InsertContext(ctx, model...)
	})
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model ...*T) (int, error) {
	return s.write(ctx, func(repo repository.Repository[T]) error {
		return repo.Update(model...)
	})
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, key interface{}) (int, error) {
	return s.write(ctx, func(repo repository.Repository[T]) error {
		return repo.DeleteByKey(ctx, key)
	})
}
