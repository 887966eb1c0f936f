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

package database

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"sync"
)

var defaultRegistry = newModelRegistry()

var keyRegistry = &entityKeyRegistry{
	typed:   make(map[reflect.Type]interface{}),
	getters: make(map[reflect.Type]func(interface{}) interface{}),
}

// SQLModel represents a database model used for automatic migration/initialization.
// Instance should return a struct pointer compatible with Bun, and Priority controls
// ordering when initializing models (lower values first).
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

// ModelRegistry stores SQL models and exposes them in a deterministic order.
type ModelRegistry interface {
	Register(model SQLModel)
	Models() []SQLModel
}

type modelRegistry struct {
	models []SQLModel
	mutex  sync.RWMutex
}

func newModelRegistry() ModelRegistry {
	return &modelRegistry{
		models: make([]SQLModel, 0),
	}
}

func (r *modelRegistry) Register(model SQLModel) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.models = append(r.models, model)
}

func (r *modelRegistry) Models() []SQLModel {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]SQLModel, len(r.models))
	copy(result, r.models)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

type ModelAdapter struct {
	instance interface{}
	priority int
}

// NewModelAdapter wraps a struct instance and priority into an SQLModel.
func NewModelAdapter(instance interface{}, priority int) SQLModel {
	return &ModelAdapter{
		instance: instance,
		priority: priority,
	}
}

// Instance returns the underlying struct used for migrations/initialization.
func (a *ModelAdapter) Instance() interface{} {
	return a.instance
}

// Priority returns the model's ordering value; lower values run earlier.
func (a *ModelAdapter) Priority() int {
	return a.priority
}

// GetRegisteredModels returns all models registered in the default registry
// sorted by ascending priority.
func GetRegisteredModels() []SQLModel {
	return defaultRegistry.Models()
}

// RegisteredModel adds a model to the default registry.
func RegisteredModel(model SQLModel) {
	defaultRegistry.Register(model)
}

func RegisteredModelInstances() []interface{} {
	models := GetRegisteredModels()
	modelInstances := make([]interface{}, len(models))
	for i, model := range models {
		modelInstances[i] = model.Instance()
	}
	return modelInstances
}

// KeyAccessor reads and writes the primary key of T without reflection.
type KeyAccessor[T any] struct {
	Get func(*T) interface{}
	Set func(*T, interface{}) error
}

type entityKeyRegistry struct {
	mu      sync.RWMutex
	typed   map[reflect.Type]interface{}
	getters map[reflect.Type]func(interface{}) interface{}
}

// RegisterKey records the key accessors of entity type T. It panics when T
// is registered twice.
func RegisterKey[T any](get func(*T) interface{}, set func(*T, interface{}) error) {
	typ := reflect.TypeFor[T]()
	keyRegistry.mu.Lock()
	defer keyRegistry.mu.Unlock()
	if _, exists := keyRegistry.typed[typ]; exists {
		panic(fmt.Sprintf("key accessor for %s already registered", typ))
	}
	keyRegistry.typed[typ] = KeyAccessor[T]{Get: get, Set: set}
	keyRegistry.getters[typ] = func(model interface{}) interface{} {
		return get(model.(*T))
	}
}

// LookupKey returns the accessors registered for T.
func LookupKey[T any]() (KeyAccessor[T], bool) {
	keyRegistry.mu.RLock()
	defer keyRegistry.mu.RUnlock()
	acc, ok := keyRegistry.typed[reflect.TypeFor[T]()]
	if !ok {
		return KeyAccessor[T]{}, false
	}
	return acc.(KeyAccessor[T]), true
}

// registeredKeyOf returns the key of model, a struct pointer, when its type
// has registered accessors.
func registeredKeyOf(model interface{}) (interface{}, bool) {
	typ := reflect.TypeOf(model)
	if typ.Kind() != reflect.Ptr {
		return nil, false
	}
	keyRegistry.mu.RLock()
	get, ok := keyRegistry.getters[typ.Elem()]
	keyRegistry.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return get(model), true
}

// Int64Key converts the usual key representations to int64.
func Int64Key(v interface{}) (int64, error) {
	switch k := v.(type) {
	case int:
		return int64(k), nil
	case int32:
		return int64(k), nil
	case int64:
		return k, nil
	case uint:
		return uint64Key(uint64(k))
	case uint32:
		return int64(k), nil
	case uint64:
		return uint64Key(k)
	case string:
		return strconv.ParseInt(k, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported key type %T", v)
	}
}

func uint64Key(k uint64) (int64, error) {
	if k > math.MaxInt64 {
		return 0, fmt.Errorf("key %d overflows int64", k)
	}
	return int64(k), nil
}
