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

package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestConfigureFileLog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ConfigureFileLog(dir, 0))
	t.Cleanup(func() {
		_ = ConfigureFileLog("", 0)
		ConfigureFileLogLevel("trace")
	})

	l := NewLogger("TEST-FILE")
	l.SetOutput(os.Stderr)
	l.Info("catalog loaded")
	l.Warn("supplier slow")

	day := filepath.Join(dir, time.Now().Format(dayLayout))
	info := readLog(t, filepath.Join(day, "info.log"))
	assert.Contains(t, info, "catalog loaded")
	assert.Contains(t, info, "TEST-FILE")
	assert.NotContains(t, info, "\x1b[")
	assert.Contains(t, readLog(t, filepath.Join(day, "warn.log")), "supplier slow")

	ConfigureFileLogLevel("warn")
	l.Info("not written")
	assert.NotContains(t, readLog(t, filepath.Join(day, "info.log")), "not written")

	require.NoError(t, ConfigureFileLog("", 0))
	l.Warn("console only")
	assert.NotContains(t, readLog(t, filepath.Join(day, "warn.log")), "console only")
}

func TestDailyLevelWriter(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"2025-03-07", "2025-03-08", "archive"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
	}

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	w := newDailyLevelWriter(dir, "info", 2)
	w.now = func() time.Time { return now }
	defer w.Close()

	_, err := w.Write([]byte("first\n"))
	require.NoError(t, err)
	assert.Equal(t, "first\n", readLog(t, filepath.Join(dir, "2025-03-10", "info.log")))
	assert.NoDirExists(t, filepath.Join(dir, "2025-03-07"))
	assert.DirExists(t, filepath.Join(dir, "2025-03-08"))
	assert.DirExists(t, filepath.Join(dir, "archive"))

	now = now.Add(24 * time.Hour)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)
	assert.Equal(t, "second\n", readLog(t, filepath.Join(dir, "2025-03-11", "info.log")))
	assert.Equal(t, "first\n", readLog(t, filepath.Join(dir, "2025-03-10", "info.log")))
	assert.NoDirExists(t, filepath.Join(dir, "2025-03-08"))
}
