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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/tomoncle/shop"
	"github.com/tomoncle/shop/catalog"
	"github.com/tomoncle/shop/database"
	"github.com/tomoncle/shop/types"
	"github.com/tomoncle/shop/uow"
	"github.com/tomoncle/shop/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 1000
)

// HealthFunc reports whether the backing database is reachable.
type HealthFunc func(ctx context.Context) error

// Handler serves the catalog routes.
type Handler struct {
	units       *uow.Factory
	assortments shop.Service[catalog.Assortment]
	health      HealthFunc
	logger      *logrus.Logger
}

// NewHandler returns a Handler opening one unit of work per request from
// units. A nil health always reports healthy.
func NewHandler(units *uow.Factory, health HealthFunc) *Handler {
	if health == nil {
		health = func(context.Context) error { return nil }
	}
	return &Handler{
		units:       units,
		assortments: shop.NewService[catalog.Assortment](units),
		health:      health,
		logger:      utils.NewLogger("API"),
	}
}

// Routes returns the router of the catalog API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID, middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", h.listCategories)
		r.Get("/page", h.pageCategories)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getCategory)
			r.Delete("/", h.deleteCategory)
			r.Get("/assortments", h.listAssortments)
		})
	})
	r.Get("/api/assortments/{sku}", h.getAssortment)
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.health(r.Context()); err != nil {
		h.logger.WithError(err).Warn("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	h.withCatalog(w, r, func(m catalog.CategoryManager) error {
		categories, err := m.GetCategories(r.Context())
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, categories)
		return nil
	})
}

func (h *Handler) pageCategories(w http.ResponseWriter, r *http.Request) {
	pageIndex, pageSize, err := pageParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.withCatalog(w, r, func(m catalog.CategoryManager) error {
		page, err := m.GetCategoryPage(r.Context(), pageIndex, pageSize)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, page)
		return nil
	})
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.withCatalog(w, r, func(m catalog.CategoryManager) error {
		category, err := m.GetCategory(r.Context(), id)
		if err != nil {
			return err
		}
		if category == nil {
			writeError(w, http.StatusNotFound, "category not found")
			return nil
		}
		writeJSON(w, http.StatusOK, category)
		return nil
	})
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.withCatalog(w, r, func(m catalog.CategoryManager) error {
		deleted, err := m.DeleteCategory(r.Context(), id)
		if err != nil {
			return err
		}
		if !deleted {
			writeError(w, http.StatusNotFound, "category not found")
			return nil
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

func (h *Handler) listAssortments(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pageIndex, pageSize, err := pageParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.withCatalog(w, r, func(m catalog.CategoryManager) error {
		page, err := m.GetAssortments(r.Context(), id, pageIndex, pageSize)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, page)
		return nil
	})
}

func (h *Handler) getAssortment(w http.ResponseWriter, r *http.Request) {
	sku, err := strconv.ParseInt(chi.URLParam(r, "sku"), 10, 64)
	if err != nil {
		h.fail(w, r, &types.ArgumentError{Param: "sku", Reason: "must be an integer"})
		return
	}
	assortment, err := h.assortments.Get(r.Context(), sku)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if assortment == nil {
		writeError(w, http.StatusNotFound, "assortment not found")
		return
	}
	writeJSON(w, http.StatusOK, assortment)
}

func (h *Handler) withCatalog(w http.ResponseWriter, r *http.Request, fn func(catalog.CategoryManager) error) {
	unit := h.units.New()
	defer func() {
		if err := unit.Close(); err != nil {
			h.logger.WithError(err).Warn("failed to close unit of work")
		}
	}()
	if err := fn(catalog.NewCategoryManager(unit)); err != nil {
		h.fail(w, r, err)
	}
}

// fail maps err to a status code: paging arguments to 400, constraint
// violations to 409 and everything else to 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var argErr *types.ArgumentError
	if errors.As(err, &argErr) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if is, kind := database.IsSqlError(err); is && kind.IsConstraintViolation() {
		writeError(w, http.StatusConflict, kind.String())
		return
	}
	h.logger.WithFields(logrus.Fields{
		"request_id": GetRequestID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	}).WithError(err).Error("request failed")
	writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

func idParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &types.ArgumentError{Param: "id", Reason: "must be an integer"}
	}
	return id, nil
}

func pageParams(r *http.Request) (pageIndex, pageSize int, err error) {
	q := r.URL.Query()
	pageIndex, err = intQuery(q.Get("pageIndex"), "pageIndex", 0)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err = intQuery(q.Get("pageSize"), "pageSize", defaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	if pageSize > maxPageSize {
		return 0, 0, &types.ArgumentError{Param: "pageSize", Reason: fmt.Sprintf("pageSize: %d, must not exceed %d", pageSize, maxPageSize)}
	}
	return pageIndex, pageSize, nil
}

func intQuery(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &types.ArgumentError{Param: name, Reason: "must be an integer"}
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
