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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONColumns(t *testing.T) {
	t.Run("Should scan text and bytes alike", func(t *testing.T) {
		var a StringArray
		require.NoError(t, a.Scan(`["x.jpg","y.jpg"]`))
		assert.Equal(t, StringArray{"x.jpg", "y.jpg"}, a)

		var o JsonObject
		require.NoError(t, o.Scan([]byte(`{"name":"color"}`)))
		assert.Equal(t, "color", o["name"])
	})

	t.Run("Should store nil as NULL", func(t *testing.T) {
		v, err := JsonArray(nil).Value()
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("Should reject unsupported driver values", func(t *testing.T) {
		var o JsonObject
		assert.Error(t, o.Scan(42))
	})
}
