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

package catalog

import (
	"context"

	"github.com/tomoncle/shop/repository"
	"github.com/tomoncle/shop/types"
	"github.com/tomoncle/shop/uow"
)

// CategoryManager manages the categories of the catalog within one unit of work.
type CategoryManager interface {
	// GetCategory returns the category with its direct children, or nil.
	GetCategory(ctx context.Context, id int64) (*Category, error)

	// GetCategories returns the active categories ordered by sort order.
	GetCategories(ctx context.Context) ([]*Category, error)

	// GetCategoryPage returns one page of active categories.
	GetCategoryPage(ctx context.Context, pageIndex, pageSize int) (*types.PagedList[*Category], error)

	// DeleteCategory deletes the category and reports whether it existed.
	DeleteCategory(ctx context.Context, id int64) (bool, error)

	// GetAssortments returns one page of the assortment of a category.
	GetAssortments(ctx context.Context, categoryID int64, pageIndex, pageSize int) (*types.PagedList[*Assortment], error)
}

type categoryManager struct {
	unit        uow.UnitOfWork
	categories  repository.Repository[Category]
	assortments repository.Repository[Assortment]
}

// NewCategoryManager returns a CategoryManager working in unit.
func NewCategoryManager(unit uow.UnitOfWork) CategoryManager {
	return &categoryManager{
		unit:        unit,
		categories:  repository.GetRepository[Category](unit),
		assortments: repository.GetRepository[Assortment](unit),
	}
}

func (m *categoryManager) GetCategory(ctx context.Context, id int64) (*Category, error) {
	return m.categories.FirstOrDefault(ctx,
		repository.Where("c.id = ?", id),
		repository.Include("ChildCategories"),
	)
}

func (m *categoryManager) GetCategories(ctx context.Context) ([]*Category, error) {
	return m.categories.List(ctx, activeOnly(), byOrder())
}

func (m *categoryManager) GetCategoryPage(ctx context.Context, pageIndex, pageSize int) (*types.PagedList[*Category], error) {
	return m.categories.PagedList(ctx, pageIndex, pageSize, activeOnly(), byOrder())
}

func (m *categoryManager) DeleteCategory(ctx context.Context, id int64) (bool, error) {
	if err := m.categories.DeleteByKey(ctx, id); err != nil {
		return false, err
	}
	n, err := m.unit.SaveChanges(ctx, false)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *categoryManager) GetAssortments(ctx context.Context, categoryID int64, pageIndex, pageSize int) (*types.PagedList[*Assortment], error) {
	return m.assortments.PagedList(ctx, pageIndex, pageSize,
		repository.Where("a.category_id = ?", categoryID),
		repository.OrderBy("a.sku ASC"),
	)
}

func activeOnly() repository.QueryOption {
	return repository.Where("c.is_active = ?", true)
}

func byOrder() repository.QueryOption {
	return repository.OrderBy("c.sort_order ASC", "c.id ASC")
}
