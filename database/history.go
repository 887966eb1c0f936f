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
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// ChangeHistory is one audit row written by SaveChanges when history
// recording is requested.
type ChangeHistory struct {
	bun.BaseModel `bun:"table:auto_history,alias:ah"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	RowID     string    `bun:"row_id,notnull" json:"row_id"`
	TableName string    `bun:"table_name,notnull" json:"table_name"`
	Changed   string    `bun:"changed,type:text" json:"changed"`
	Kind      string    `bun:"kind,notnull" json:"kind"`
	Created   time.Time `bun:"created,notnull" json:"created"`
}

type columnChange struct {
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
}

func (s *Session) historyFor(c *change) (*ChangeHistory, error) {
	table := s.db.Table(reflect.TypeOf(c.model).Elem())
	now := s.columns(c.model)

	var payload interface{} = now
	if c.kind == changeModified && c.before != nil {
		diff := make(map[string]columnChange)
		for _, col := range diffColumns(c.before, now) {
			diff[col] = columnChange{Before: c.before[col], After: now[col]}
		}
		payload = diff
	}
	changed, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode history of %s: %w", table.Name, err)
	}
	return &ChangeHistory{
		RowID:     s.keyString(c.model),
		TableName: table.Name,
		Changed:   string(changed),
		Kind:      c.kind.String(),
		Created:   time.Now().UTC(),
	}, nil
}

// keyString renders the primary key of model, preferring registered
// accessors over bun's table metadata.
func (s *Session) keyString(model interface{}) string {
	if key, ok := registeredKeyOf(model); ok {
		return fmt.Sprint(key)
	}
	v := reflect.ValueOf(model).Elem()
	table := s.db.Table(v.Type())
	parts := make([]string, 0, len(table.PKs))
	for _, pk := range table.PKs {
		parts = append(parts, fmt.Sprint(pk.Value(v).Interface()))
	}
	return strings.Join(parts, ",")
}
