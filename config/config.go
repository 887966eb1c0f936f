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

// Package config loads the application configuration from a YAML file, a
// .env file and environment overrides, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/tomoncle/shop/database"
	"github.com/tomoncle/shop/supplier"
	"github.com/tomoncle/shop/utils"
	"github.com/tomoncle/shop/worker"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of both shop commands.
type Config struct {
	Database database.ConnectionConfig `json:"database" yaml:"database"`
	Supplier supplier.Gate             `json:"supplier" yaml:"supplier"`
	Sync     worker.Schedule           `json:"sync" yaml:"sync"`
	HTTP     HTTPConfig                `json:"http" yaml:"http"`
	Log      LogConfig                 `json:"log" yaml:"log"`
}

type HTTPConfig struct {
	Addr            string        `json:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LogConfig configures console logging and the optional daily log files.
// An empty Dir keeps logging on the console only.
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"`
	Dir        string `json:"dir" yaml:"dir"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	FileLevel  string `json:"file_level" yaml:"file_level"`
	FileFormat string `json:"file_format" yaml:"file_format"`
}

// Default returns the configuration used for every key a file leaves out.
func Default() *Config {
	return &Config{
		Database: *database.DefaultConnectionConfig(),
		Supplier: supplier.DefaultGate(),
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text", MaxAgeDays: 7, FileLevel: "trace", FileFormat: "text"},
	}
}

// Load reads path (optional) over the defaults after loading envFiles into
// the process environment, then applies environment overrides. Missing env
// files are skipped. Variables already set are never replaced by a file.
func Load(path string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := overrideFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideFromEnv(cfg *Config) error {
	database.OverrideFromEnv(&cfg.Database)

	if v := os.Getenv("SUPPLIER_API_URL"); v != "" {
		cfg.Supplier.ApiURL = v
	}
	if v := os.Getenv("SUPPLIER_API_KEY"); v != "" {
		cfg.Supplier.ApiKey = v
	}
	if v := os.Getenv("SUPPLIER_USER_AGENT"); v != "" {
		cfg.Supplier.UserAgent = v
	}
	if v := os.Getenv("SUPPLIER_MAX_PAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SUPPLIER_MAX_PAGES: %w", err)
		}
		cfg.Supplier.MaxPages = n
	}
	if v := os.Getenv("SYNC_UPDATE_TIME_TYPE"); v != "" {
		if err := cfg.Sync.UpdateTimeType.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("SYNC_UPDATE_TIME_TYPE: %w", err)
		}
	}
	if v := os.Getenv("SYNC_CHECK_UPDATE_TIME"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SYNC_CHECK_UPDATE_TIME: %w", err)
		}
		cfg.Sync.CheckUpdateTime = n
	}
	if v := os.Getenv("SYNC_CRON"); v != "" {
		cfg.Sync.Cron = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	cfg.Log.Level = utils.EnvDefaultString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = utils.EnvDefaultString("CONSOLE_LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Dir = utils.EnvDefaultString("LOG_DIR", cfg.Log.Dir)
	cfg.Log.FileLevel = utils.EnvDefaultString("FILE_LOG_LEVEL", cfg.Log.FileLevel)
	cfg.Log.FileFormat = utils.EnvDefaultString("FILE_LOG_FORMAT", cfg.Log.FileFormat)
	if v := os.Getenv("LOG_MAX_AGE_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOG_MAX_AGE_DAYS: %w", err)
		}
		cfg.Log.MaxAgeDays = n
	}
	return nil
}

// ApplyLogging configures the process-wide loggers from c.Log.
func (c *Config) ApplyLogging() error {
	utils.ConfigureConsoleLogFormat(c.Log.Format)
	utils.ConfigureLogLevel(c.Log.Level)
	utils.ConfigureFileLogFormat(c.Log.FileFormat)
	utils.ConfigureFileLogLevel(c.Log.FileLevel)
	return utils.ConfigureFileLog(c.Log.Dir, c.Log.MaxAgeDays)
}
