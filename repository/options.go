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
	"github.com/tomoncle/shop/types"
	"github.com/uptrace/bun"
)

type querySpec struct {
	filters   []func(*bun.SelectQuery) *bun.SelectQuery
	orders    []string
	relations []string
	tracking  bool
	indexFrom int
}

// QueryOption customizes one read call.
type QueryOption func(*querySpec)

func newQuerySpec(opts []QueryOption) *querySpec {
	spec := &querySpec{}
	for _, opt := range opts {
		if opt != nil {
			opt(spec)
		}
	}
	return spec
}

// Where adds a WHERE condition. Several conditions are joined with AND.
func Where(query string, args ...interface{}) QueryOption {
	return Apply(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where(query, args...)
	})
}

// Filter adds the condition described by filter; a nil filter is ignored.
func Filter(filter *types.QueryFilter) QueryOption {
	if filter == nil || filter.Schema == "" {
		return nil
	}
	return Where(filter.Schema, filter.Args...)
}

// Apply adds an arbitrary modification of the select query.
func Apply(fn func(*bun.SelectQuery) *bun.SelectQuery) QueryOption {
	return func(s *querySpec) {
		s.filters = append(s.filters, fn)
	}
}

// OrderBy sets the ordering, e.g. OrderBy("sort_order ASC", "id").
func OrderBy(orders ...string) QueryOption {
	return func(s *querySpec) {
		s.orders = append(s.orders, orders...)
	}
}

// Include eager-loads the named relations.
func Include(relations ...string) QueryOption {
	return func(s *querySpec) {
		s.relations = append(s.relations, relations...)
	}
}

// AsTracking attaches loaded entities to the session so that later field
// changes are written by SaveChanges.
func AsTracking() QueryOption {
	return func(s *querySpec) {
		s.tracking = true
	}
}

// IndexFrom sets the number of the first page. It defaults to 0.
func IndexFrom(n int) QueryOption {
	return func(s *querySpec) {
		s.indexFrom = n
	}
}

func (s *querySpec) applyFilters(q *bun.SelectQuery) *bun.SelectQuery {
	for _, fn := range s.filters {
		q = fn(q)
	}
	return q
}

func (s *querySpec) apply(q *bun.SelectQuery) *bun.SelectQuery {
	q = s.applyFilters(q)
	for _, rel := range s.relations {
		q = q.Relation(rel)
	}
	if len(s.orders) > 0 {
		q = q.Order(s.orders...)
	}
	return q
}
