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

package worker

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/shop/supplier"
	"github.com/tomoncle/shop/utils"
)

// Updater pulls the supplier catalog. What to do with the fetched data is
// left to the caller through OnFetched.
type Updater struct {
	client    supplier.Client
	logger    *utils.Logger
	OnFetched func(ctx context.Context, categories []supplier.Category, assortment []supplier.Assortment) error
}

// NewUpdater returns an Updater reading from client.
func NewUpdater(client supplier.Client) *Updater {
	return &Updater{client: client, logger: utils.NewLogger("UPDATER")}
}

// Run fetches categories, then assortment.
func (u *Updater) Run(ctx context.Context) error {
	categories, err := u.client.GetCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch categories: %w", err)
	}
	assortment, err := u.client.GetAssortment(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch assortment: %w", err)
	}
	u.logger.WithFields(logrus.Fields{
		"categories": len(categories),
		"assortment": len(assortment),
	}).Info("Supplier catalog fetched")
	if u.OnFetched != nil {
		return u.OnFetched(ctx, categories, assortment)
	}
	return nil
}
