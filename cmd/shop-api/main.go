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

// Command shop-api serves the catalog over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomoncle/shop/api"
	"github.com/tomoncle/shop/config"
	"github.com/tomoncle/shop/database"
	"github.com/tomoncle/shop/uow"
	"github.com/tomoncle/shop/utils"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	logger := utils.NewLogger("SHOP-API")
	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ApplyLogging(); err != nil {
		logger.Fatalf("failed to configure logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory := database.NewDatabaseFactory()
	manager, err := factory.CreateFromConfig(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to create database manager: %v", err)
	}
	if err := factory.InitializeDatabase(ctx, cfg.Database.MigrateOnStart); err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	defer func() {
		if err := factory.Close(); err != nil {
			logger.Errorf("failed to close database: %v", err)
		}
	}()

	units := uow.NewFactoryFrom(manager.GetDB, database.WithDSN(manager.DSN()))
	handler := api.NewHandler(units, manager.Ping)
	if err := api.NewServer(cfg.HTTP, handler.Routes()).Run(ctx); err != nil {
		logger.Errorf("http server failed: %v", err)
	}
}
