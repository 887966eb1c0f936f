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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/shop/supplier"
	"gopkg.in/yaml.v3"
)

func TestUpdateTimeType(t *testing.T) {
	assert.Equal(t, 90*time.Minute, Schedule{UpdateTimeType: Minute, CheckUpdateTime: 90}.Period())
	assert.Equal(t, 48*time.Hour, Schedule{UpdateTimeType: Day, CheckUpdateTime: 2}.Period())
	assert.Equal(t, time.Duration(0), Schedule{UpdateTimeType: None, CheckUpdateTime: 5}.Period())
	assert.Equal(t, -1, UpdateTimeType(9).Number())
	assert.Equal(t, "unknown", UpdateTimeType(9).Name())

	var cfg struct {
		ByName   Schedule `yaml:"by_name"`
		ByNumber Schedule `yaml:"by_number"`
	}
	doc := "by_name:\n  update_time_type: Hour\n  check_update_time: 6\nby_number:\n  update_time_type: 1\n"
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	assert.Equal(t, Hour, cfg.ByName.UpdateTimeType)
	assert.Equal(t, Second, cfg.ByNumber.UpdateTimeType)

	var bad UpdateTimeType
	assert.Error(t, bad.UnmarshalText([]byte("weekly")))
	assert.Error(t, bad.UnmarshalText([]byte("7")))
}

func TestScheduleValidate(t *testing.T) {
	_, err := Schedule{UpdateTimeType: Minute}.Validate()
	assert.Error(t, err)
	_, err = Schedule{Cron: "not cron"}.Validate()
	assert.Error(t, err)

	sched, err := Schedule{Cron: "30 2 * * *"}.Validate()
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 1, 2, 30, 0, 0, time.UTC), sched.Next(now))

	sched, err = Schedule{}.Validate()
	require.NoError(t, err)
	assert.Nil(t, sched)
}

func immediate(time.Duration) <-chan time.Time {
	c := make(chan time.Time, 1)
	c <- time.Now()
	return c
}

func TestWorkerLoop(t *testing.T) {
	t.Run("Should stay idle without a schedule", func(t *testing.T) {
		var runs int32
		w, err := New(Schedule{}, JobFunc(func(context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		}))
		require.NoError(t, err)
		require.NoError(t, w.Start(context.Background()))
		require.NoError(t, w.Stop(context.Background()))
		assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
	})

	t.Run("Should keep running after a failed run until stopped", func(t *testing.T) {
		var runs int32
		third := make(chan struct{})
		w, err := New(Schedule{UpdateTimeType: Second, CheckUpdateTime: 1}, JobFunc(func(context.Context) error {
			if atomic.AddInt32(&runs, 1) == 3 {
				close(third)
			}
			return errors.New("supplier down")
		}))
		require.NoError(t, err)
		var delays []time.Duration
		w.after = func(d time.Duration) <-chan time.Time {
			delays = append(delays, d)
			return immediate(d)
		}

		require.NoError(t, w.Start(context.Background()))
		assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)
		select {
		case <-third:
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not run three times")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, w.Stop(ctx))
		assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(3))
		assert.Equal(t, time.Second, delays[0])
	})

	t.Run("Should wait until the next cron time", func(t *testing.T) {
		w, err := New(Schedule{Cron: "0 * * * *"}, JobFunc(func(context.Context) error { return nil }))
		require.NoError(t, err)
		w.now = func() time.Time { return time.Date(2025, 3, 1, 10, 45, 0, 0, time.UTC) }
		assert.Equal(t, 15*time.Minute, w.nextDelay())
	})
}

type fakeClient struct {
	categories []supplier.Category
	err        error
}

func (f *fakeClient) GetCategories(context.Context) ([]supplier.Category, error) {
	return f.categories, f.err
}

func (f *fakeClient) GetAssortment(context.Context) ([]supplier.Assortment, error) {
	return []supplier.Assortment{{SKU: 1}, {SKU: 2}}, nil
}

func TestUpdater(t *testing.T) {
	ctx := context.Background()
	u := NewUpdater(&fakeClient{categories: []supplier.Category{{ID: 1}}})
	var got int
	u.OnFetched = func(_ context.Context, c []supplier.Category, a []supplier.Assortment) error {
		got = len(c) + len(a)
		return nil
	}
	require.NoError(t, u.Run(ctx))
	assert.Equal(t, 3, got)

	failing := NewUpdater(&fakeClient{err: errors.New("timeout")})
	err := failing.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "categories")
}
