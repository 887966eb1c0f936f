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
	"github.com/shopspring/decimal"
	"github.com/tomoncle/shop/database"
	"github.com/tomoncle/shop/types"
	"github.com/uptrace/bun"
)

// Category is a node of the catalog tree.
type Category struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	ID       int64  `bun:"id,pk,autoincrement" json:"id"`
	ParentID *int64 `bun:"parent_id" json:"parent_id,omitempty"`
	Name     string `bun:"name,notnull" json:"name"`
	IsActive bool   `bun:"is_active,notnull" json:"is_active"`
	Order    int    `bun:"sort_order,notnull" json:"order"`

	ParentCategory  *Category   `bun:"rel:belongs-to,join:parent_id=id" json:"parent_category,omitempty"`
	ChildCategories []*Category `bun:"rel:has-many,join:id=parent_id" json:"child_categories,omitempty"`
}

// NewCategory returns an active category.
func NewCategory(name string, parentID *int64, order int) *Category {
	return &Category{Name: name, ParentID: parentID, IsActive: true, Order: order}
}

func (*Category) Indexes() []database.TableIndex {
	return []database.TableIndex{
		{Name: "idx_categories_parent_id", Columns: []string{"parent_id"}},
		{Name: "idx_categories_name", Columns: []string{"name"}},
	}
}

// Assortment is a product of the catalog, keyed by the supplier SKU.
type Assortment struct {
	bun.BaseModel `bun:"table:assortments,alias:a"`

	SKU            int64             `bun:"sku,pk" json:"sku"`
	Name           string            `bun:"name,notnull" json:"name"`
	Manufacturer   string            `bun:"manufacturer" json:"manufacturer"`
	VendorCode     string            `bun:"vendor_code" json:"vendor_code"`
	Barcode        string            `bun:"barcode" json:"barcode"`
	Brand          string            `bun:"brand" json:"brand"`
	Description    string            `bun:"description,type:text" json:"description"`
	DescriptionExt string            `bun:"description_ext,type:text" json:"description_ext"`
	Weight         decimal.Decimal   `bun:"weight,type:decimal(12,3)" json:"weight"`
	Volume         decimal.Decimal   `bun:"volume,type:decimal(12,5)" json:"volume"`
	SaleDate       string            `bun:"sale_date" json:"sale_date"`
	CategoryID     *int64            `bun:"category_id" json:"category_id,omitempty"`
	Facets         types.JsonArray   `bun:"facets,type:text" json:"facets"`
	Photos         types.StringArray `bun:"photos,type:text" json:"photos"`
	Prices         types.JsonObject  `bun:"prices,type:text" json:"prices"`

	Category *Category `bun:"rel:belongs-to,join:category_id=id" json:"category,omitempty"`
}

func (*Assortment) Indexes() []database.TableIndex {
	return []database.TableIndex{
		{Name: "idx_assortments_category_id", Columns: []string{"category_id"}},
		{Name: "idx_assortments_barcode", Columns: []string{"barcode"}},
	}
}

// Price returns the price of the given type, e.g. "contract", or zero.
func (a *Assortment) Price(kind string) decimal.Decimal {
	switch v := a.Prices[kind].(type) {
	case string:
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(v)
	}
	return decimal.Zero
}

func init() {
	database.RegisteredModel(database.NewModelAdapter(&Category{}, 1))
	database.RegisteredModel(database.NewModelAdapter(&Assortment{}, 2))

	database.RegisterKey[Category](
		func(c *Category) interface{} { return c.ID },
		func(c *Category, key interface{}) error {
			id, err := database.Int64Key(key)
			if err != nil {
				return err
			}
			c.ID = id
			return nil
		},
	)
	database.RegisterKey[Assortment](
		func(a *Assortment) interface{} { return a.SKU },
		func(a *Assortment, key interface{}) error {
			sku, err := database.Int64Key(key)
			if err != nil {
				return err
			}
			a.SKU = sku
			return nil
		},
	)
}
