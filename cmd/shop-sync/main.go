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

// Command shop-sync periodically pulls the supplier catalog.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomoncle/shop/config"
	"github.com/tomoncle/shop/supplier"
	"github.com/tomoncle/shop/utils"
	"github.com/tomoncle/shop/worker"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	logger := utils.NewLogger("SHOP-SYNC")
	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ApplyLogging(); err != nil {
		logger.Fatalf("failed to configure logging: %v", err)
	}

	client, err := supplier.NewClient(cfg.Supplier)
	if err != nil {
		logger.Fatalf("failed to create supplier client: %v", err)
	}
	w, err := worker.New(cfg.Sync, worker.NewUpdater(client))
	if err != nil {
		logger.Fatalf("invalid sync schedule: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := w.Start(ctx); err != nil {
		logger.Fatalf("failed to start worker: %v", err)
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		logger.Errorf("worker did not stop in time: %v", err)
	}
	logger.Info("sync stopped")
}
