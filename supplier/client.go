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
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/tomoncle/shop/utils"
)

var logger = utils.NewLogger("SUPPLIER")

// Gate holds the location and credentials of the supplier API.
type Gate struct {
	ApiURL     string        `json:"api_url" yaml:"api_url"`
	ApiKey     string        `json:"api_key" yaml:"api_key"`
	UserAgent  string        `json:"user_agent" yaml:"user_agent"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	RetryCount int           `json:"retry_count" yaml:"retry_count"`
	// MaxPages bounds how many pages one listing follows; 0 means one page.
	MaxPages int `json:"max_pages" yaml:"max_pages"`
}

// DefaultGate returns a Gate with client defaults and no endpoint.
func DefaultGate() Gate {
	return Gate{
		UserAgent:  "shop-sync",
		Timeout:    30 * time.Second,
		RetryCount: 3,
		MaxPages:   1,
	}
}

// Client reads the supplier catalog.
type Client interface {
	GetCategories(ctx context.Context) ([]Category, error)
	GetAssortment(ctx context.Context) ([]Assortment, error)
}

type apiClient struct {
	client *resty.Client
	gate   Gate
}

// NewClient validates gate and returns a Client for it.
func NewClient(gate Gate) (Client, error) {
	parsed, err := url.Parse(gate.ApiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid supplier api url: %w", err)
	}
	if !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("supplier api url must be absolute http(s), got: %q", gate.ApiURL)
	}
	if gate.ApiKey == "" {
		return nil, fmt.Errorf("supplier api key is required")
	}
	if gate.UserAgent == "" {
		gate.UserAgent = DefaultGate().UserAgent
	}
	if gate.MaxPages <= 0 {
		gate.MaxPages = 1
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(gate.ApiURL, "/")).
		SetHeader("User-Agent", gate.UserAgent).
		SetHeader("Accept", "application/json").
		SetRetryCount(gate.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(retryCondition)
	if gate.Timeout > 0 {
		client.SetTimeout(gate.Timeout)
	}
	return &apiClient{client: client, gate: gate}, nil
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == 429 || code == 408
}

func (c *apiClient) GetCategories(ctx context.Context) ([]Category, error) {
	return fetchAll[Category](ctx, c, "category")
}

func (c *apiClient) GetAssortment(ctx context.Context) ([]Assortment, error) {
	return fetchAll[Assortment](ctx, c, "assortment")
}

// fetchAll reads route and follows the next links up to MaxPages pages.
func fetchAll[T any](ctx context.Context, c *apiClient, route string) ([]T, error) {
	items := make([]T, 0)
	target := "/" + route + "/"
	for page := 0; page < c.gate.MaxPages && target != ""; page++ {
		var body Response[T]
		req := c.client.R().
			SetContext(ctx).
			ForceContentType("application/json").
			SetResult(&body)
		if !strings.Contains(target, "api_key=") {
			req.SetQueryParam("api_key", c.gate.ApiKey)
		}
		resp, err := req.Get(target)
		if err != nil {
			return nil, fmt.Errorf("supplier %s request failed: %w", route, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("supplier %s: unexpected status %d", route, resp.StatusCode())
		}
		items = append(items, body.Data...)
		target = body.Meta.NextURL()
		logger.WithFields(logrus.Fields{"route": route, "page": page, "items": len(body.Data)}).Debug("Supplier page fetched")
	}
	return items, nil
}
