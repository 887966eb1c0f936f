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

package supplier

import (
	"github.com/shopspring/decimal"
)

// Response is the envelope of every supplier listing.
type Response[T any] struct {
	Data []T  `json:"data"`
	Meta Meta `json:"meta"`
}

type Meta struct {
	Pagination []Pagination `json:"pagination"`
}

// Pagination links to the neighbouring pages; empty when there is none.
type Pagination struct {
	Previous string `json:"previous"`
	Next     string `json:"next"`
}

// NextURL returns the link to the following page, if any.
func (m Meta) NextURL() string {
	for _, p := range m.Pagination {
		if p.Next != "" {
			return p.Next
		}
	}
	return ""
}

type Category struct {
	ID         int64  `json:"id"`
	ParentID   int64  `json:"parent_id"`
	Name       string `json:"name"`
	DepthLevel int    `json:"depth_level"`
}

type Assortment struct {
	SKU                int64           `json:"sku"`
	Name               string          `json:"name"`
	Manufacturer       string          `json:"manufacturer"`
	VendorCode         string          `json:"vendor_code"`
	Barcode            string          `json:"barcode"`
	Brand              string          `json:"brand"`
	Description        string          `json:"description"`
	DescriptionExt     string          `json:"description_ext"`
	Weight             decimal.Decimal `json:"weight"`
	Volume             decimal.Decimal `json:"volume"`
	SaleDate           string          `json:"sale_date"`
	CategoryList       []int64         `json:"category_list"`
	CharacteristicList []string        `json:"characteristic_list"`
	FacetList          []Facet         `json:"facet_list"`
	PhotoList          []string        `json:"photo_list"`
	PackageList        []Quantity      `json:"package_list"`
	PriceList          []Price         `json:"price_list"`
	StockList          []Quantity      `json:"stock_list"`
	AttributeList      []Attribute     `json:"attribute_list"`
}

type Facet struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Quantity is a typed count, used for both packages and stock.
type Quantity struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

type Price struct {
	Type  string          `json:"type"`
	Value decimal.Decimal `json:"value"`
}

type Attribute struct {
	Type  string `json:"type"`
	Value bool   `json:"value"`
}
