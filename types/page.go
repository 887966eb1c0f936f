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

package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPage is matched by every ArgumentError raised by paging calls.
var ErrInvalidPage = errors.New("invalid page arguments")

// ArgumentError reports paging parameters rejected before any query runs.
type ArgumentError struct {
	Param  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidPage) true for any ArgumentError.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidPage
}

// QueryFilter describes a WHERE clause schema and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// PagedList is one page of a larger result set plus its position metadata.
type PagedList[T any] struct {
	PageIndex  int `json:"page_index"`
	PageSize   int `json:"page_size"`
	IndexFrom  int `json:"index_from"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
	Items      []T `json:"items"`
}

// HasPreviousPage reports whether a page exists before this one.
func (p *PagedList[T]) HasPreviousPage() bool {
	return p.PageIndex-p.IndexFrom > 0
}

// HasNextPage reports whether a page exists after this one.
func (p *PagedList[T]) HasNextPage() bool {
	return p.PageIndex-p.IndexFrom < p.TotalPages-1
}

type pagedListJSON[T any] struct {
	PageIndex       int  `json:"page_index"`
	PageSize        int  `json:"page_size"`
	IndexFrom       int  `json:"index_from"`
	TotalCount      int  `json:"total_count"`
	TotalPages      int  `json:"total_pages"`
	HasPreviousPage bool `json:"has_previous_page"`
	HasNextPage     bool `json:"has_next_page"`
	Items           []T  `json:"items"`
}

// MarshalJSON adds has_previous_page and has_next_page to the fields.
func (p *PagedList[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(pagedListJSON[T]{
		PageIndex:       p.PageIndex,
		PageSize:        p.PageSize,
		IndexFrom:       p.IndexFrom,
		TotalCount:      p.TotalCount,
		TotalPages:      p.TotalPages,
		HasPreviousPage: p.HasPreviousPage(),
		HasNextPage:     p.HasNextPage(),
		Items:           p.Items,
	})
}

// CheckPage validates paging parameters. It is called before any I/O.
func CheckPage(pageIndex, pageSize, indexFrom int) error {
	if indexFrom > pageIndex {
		return &ArgumentError{
			Param:  "indexFrom",
			Reason: fmt.Sprintf("indexFrom: %d > pageIndex: %d, must indexFrom <= pageIndex", indexFrom, pageIndex),
		}
	}
	if pageSize <= 0 {
		return &ArgumentError{Param: "pageSize", Reason: fmt.Sprintf("pageSize: %d, must be greater than 0", pageSize)}
	}
	// offset < 0 means pageIndex - indexFrom wrapped around.
	if offset := pageIndex - indexFrom; offset < 0 || offset > math.MaxInt/pageSize {
		return &ArgumentError{
			Param:  "pageIndex",
			Reason: fmt.Sprintf("pageIndex: %d with pageSize: %d skips more rows than an int holds", pageIndex, pageSize),
		}
	}
	return nil
}

// Skip returns the number of rows preceding the requested page.
func Skip(pageIndex, pageSize, indexFrom int) int {
	return (pageIndex - indexFrom) * pageSize
}

// NewPagedList assembles a page from already sliced items and a total count.
func NewPagedList[T any](items []T, totalCount, pageIndex, pageSize, indexFrom int) *PagedList[T] {
	if items == nil {
		items = make([]T, 0)
	}
	return &PagedList[T]{
		PageIndex:  pageIndex,
		PageSize:   pageSize,
		IndexFrom:  indexFrom,
		TotalCount: totalCount,
		TotalPages: totalPages(totalCount, pageSize),
		Items:      items,
	}
}

// Paginate counts source once and slices the requested page out of it.
func Paginate[T any](source []T, pageIndex, pageSize, indexFrom int) (*PagedList[T], error) {
	if err := CheckPage(pageIndex, pageSize, indexFrom); err != nil {
		return nil, err
	}
	total := len(source)
	skip := Skip(pageIndex, pageSize, indexFrom)
	items := make([]T, 0)
	if skip < total {
		end := total
		if pageSize < total-skip {
			end = skip + pageSize
		}
		items = append(items, source[skip:end]...)
	}
	return NewPagedList(items, total, pageIndex, pageSize, indexFrom), nil
}

// MapPagedList re-maps the items of src through converter and keeps every
// other field as is.
func MapPagedList[S any, R any](src *PagedList[S], converter func([]S) []R) *PagedList[R] {
	items := converter(src.Items)
	if items == nil {
		items = make([]R, 0)
	}
	return &PagedList[R]{
		PageIndex:  src.PageIndex,
		PageSize:   src.PageSize,
		IndexFrom:  src.IndexFrom,
		TotalCount: src.TotalCount,
		TotalPages: src.TotalPages,
		Items:      items,
	}
}

// EmptyPagedList returns a page with no items and a zero total count.
func EmptyPagedList[T any](pageIndex, pageSize int) *PagedList[T] {
	return &PagedList[T]{
		PageIndex: pageIndex,
		PageSize:  pageSize,
		Items:     make([]T, 0),
	}
}

func totalPages(totalCount, pageSize int) int {
	if pageSize <= 0 || totalCount <= 0 {
		return 0
	}
	pages := totalCount / pageSize
	if totalCount%pageSize != 0 {
		pages++
	}
	return pages
}
