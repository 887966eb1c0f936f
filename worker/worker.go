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

package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/tomoncle/shop/utils"
)

// ErrAlreadyStarted is returned by Start on a running worker.
var ErrAlreadyStarted = errors.New("worker already started")

// Job is one synchronization run.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

// Worker runs a Job on a Schedule until it is stopped.
type Worker struct {
	schedule Schedule
	cron     cron.Schedule
	job      Job
	logger   *utils.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New validates schedule and returns a stopped Worker.
func New(schedule Schedule, job Job) (*Worker, error) {
	sched, err := schedule.Validate()
	if err != nil {
		return nil, err
	}
	return &Worker{
		schedule: schedule,
		cron:     sched,
		job:      job,
		logger:   utils.NewLogger("WORKER"),
		now:      time.Now,
		after:    time.After,
	}, nil
}

// Start launches the loop in its own goroutine. With a disabled schedule it
// returns at once and nothing runs.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return ErrAlreadyStarted
	}
	if !w.schedule.Enabled() {
		w.logger.Info("Synchronization is not scheduled, worker idle")
		return nil
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		w.loop(ctx)
	}(w.done)
	return nil
}

// Stop cancels the loop and waits until it exits or ctx is done.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(ctx context.Context) {
	for ctx.Err() == nil {
		w.runOnce(ctx)
		delay := w.nextDelay()
		w.logger.WithField("delay", delay.String()).Debug("Next synchronization scheduled")
		select {
		case <-ctx.Done():
		case <-w.after(delay):
		}
	}
	w.logger.Info("Worker stopped")
}

func (w *Worker) runOnce(ctx context.Context) {
	log := w.logger.WithField("run_id", uuid.NewString())
	start := w.now()
	if err := w.job.Run(ctx); err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Error("Synchronization failed")
		}
		return
	}
	log.WithFields(logrus.Fields{"elapsed": w.now().Sub(start).String()}).Info("Synchronization completed")
}

func (w *Worker) nextDelay() time.Duration {
	if w.cron != nil {
		now := w.now()
		return w.cron.Next(now).Sub(now)
	}
	return w.schedule.Period()
}
