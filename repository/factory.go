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
	"reflect"

	"github.com/tomoncle/shop/database"
)

// Factory hands out repositories bound to one persistence session. A
// Factory memoizes one repository per entity type and is not safe for
// concurrent use.
type Factory interface {
	// Repository returns the repository cached under key, building it with
	// create on first use.
	Repository(key reflect.Type, create func(*database.Session) any) any
}

// GetRepository returns the repository of T from f. Repeated calls on the
// same factory return the same instance.
func GetRepository[T any](f Factory) Repository[T] {
	repo := f.Repository(reflect.TypeFor[T](), func(s *database.Session) any {
		return NewRepository[T](s)
	})
	return repo.(Repository[T])
}

type sessionFactory struct {
	session      *database.Session
	repositories map[reflect.Type]any
}

// NewSessionFactory returns a standalone Factory over session for callers
// that commit through the session directly.
func NewSessionFactory(session *database.Session) Factory {
	return &sessionFactory{
		session:      session,
		repositories: make(map[reflect.Type]any),
	}
}

func (f *sessionFactory) Repository(key reflect.Type, create func(*database.Session) any) any {
	if err := f.session.CheckOpen(); err != nil {
		panic(err)
	}
	if repo, ok := f.repositories[key]; ok {
		return repo
	}
	repo := create(f.session)
	f.repositories[key] = repo
	return repo
}
