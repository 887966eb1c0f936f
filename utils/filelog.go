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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const dayLayout = "2006-01-02"

// files is shared by the file hooks of every named logger.
var files = &fileSink{
	level:  ParseLogLevel(EnvDefaultString("FILE_LOG_LEVEL", "trace")),
	format: EnvDefaultString("FILE_LOG_FORMAT", "text"),
}

type fileSink struct {
	mu      sync.RWMutex
	level   logrus.Level
	format  string
	writers map[logrus.Level]*dailyLevelWriter
}

// ConfigureFileLog mirrors every logger into dir/<yyyy-mm-dd>/<level>.log.
// On each day change, day folders older than maxAgeDays are removed; zero
// or less keeps them all. An empty dir turns file logging off.
func ConfigureFileLog(dir string, maxAgeDays int) error {
	var writers map[logrus.Level]*dailyLevelWriter
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log dir: %w", err)
		}
		errorW := newDailyLevelWriter(dir, "error", maxAgeDays)
		writers = map[logrus.Level]*dailyLevelWriter{
			logrus.TraceLevel: newDailyLevelWriter(dir, "trace", maxAgeDays),
			logrus.DebugLevel: newDailyLevelWriter(dir, "debug", maxAgeDays),
			logrus.InfoLevel:  newDailyLevelWriter(dir, "info", maxAgeDays),
			logrus.WarnLevel:  newDailyLevelWriter(dir, "warn", maxAgeDays),
			logrus.ErrorLevel: errorW,
			logrus.FatalLevel: errorW,
			logrus.PanicLevel: errorW,
		}
	}

	files.mu.Lock()
	old := files.writers
	files.writers = writers
	files.mu.Unlock()

	closed := make(map[*dailyLevelWriter]bool)
	for _, w := range old {
		if !closed[w] {
			closed[w] = true
			_ = w.Close()
		}
	}
	return nil
}

// ConfigureFileLogLevel sets the most verbose level written to files.
func ConfigureFileLogLevel(level string) {
	files.mu.Lock()
	files.level = ParseLogLevel(level)
	files.mu.Unlock()
}

// ConfigureFileLogFormat switches log files between "text" and "json".
func ConfigureFileLogFormat(format string) {
	files.mu.Lock()
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		files.format = "json"
	} else {
		files.format = "text"
	}
	files.mu.Unlock()
}

// fileHook writes the entries of one named logger to the shared sink.
type fileHook struct {
	text logrus.Formatter
	json logrus.Formatter
}

func newFileHook(name string) *fileHook {
	return &fileHook{
		text: &Log4jColorFormatter{LoggerName: name, NameWidth: 10, NoColor: true},
		json: &JSONLogFormatter{LoggerName: name},
	}
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(e *logrus.Entry) error {
	files.mu.RLock()
	defer files.mu.RUnlock()
	if files.writers == nil || e.Level > files.level {
		return nil
	}
	w, ok := files.writers[e.Level]
	if !ok {
		return nil
	}
	formatter := h.text
	if files.format == "json" {
		formatter = h.json
	}
	b, err := formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// dailyLevelWriter appends to baseDir/<date>/<level>.log and reopens the
// file when the date changes.
type dailyLevelWriter struct {
	baseDir    string
	level      string
	maxAgeDays int
	now        func() time.Time

	mu      sync.Mutex
	curDate string
	file    *os.File
}

var _ io.WriteCloser = (*dailyLevelWriter)(nil)

func newDailyLevelWriter(baseDir, level string, maxAgeDays int) *dailyLevelWriter {
	return &dailyLevelWriter{baseDir: baseDir, level: level, maxAgeDays: maxAgeDays, now: time.Now}
}

func (w *dailyLevelWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	today := w.now().Format(dayLayout)
	if w.file == nil || w.curDate != today {
		if err := w.open(today); err != nil {
			return 0, err
		}
		w.cleanup()
	}
	return w.file.Write(p)
}

func (w *dailyLevelWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *dailyLevelWriter) open(date string) error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	dir := filepath.Join(w.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, w.level+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.curDate = date
	return nil
}

func (w *dailyLevelWriter) cleanup() {
	if w.maxAgeDays <= 0 {
		return
	}
	now := w.now()
	cutoff := time.Date(now.Year(), now.Month(), now.Day()-w.maxAgeDays, 0, 0, 0, 0, time.UTC)
	entries, err := os.ReadDir(w.baseDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		day, err := time.Parse(dayLayout, e.Name())
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			_ = os.RemoveAll(filepath.Join(w.baseDir, e.Name()))
		}
	}
}
