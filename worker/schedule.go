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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tomoncle/shop/types"
)

// UpdateTimeType is the unit of the check period. None disables the worker.
type UpdateTimeType int

const (
	None UpdateTimeType = iota
	Second
	Minute
	Hour
	Day
)

var updateTimeTypes = []UpdateTimeType{None, Second, Minute, Hour, Day}

func (t UpdateTimeType) IsValid() bool {
	return t >= None && t <= Day
}

func (t UpdateTimeType) Number() int {
	if !t.IsValid() {
		return types.IllegalValue
	}
	return int(t)
}

func (t UpdateTimeType) Name() string {
	switch t {
	case None:
		return "none"
	case Second:
		return "second"
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	default:
		return types.IllegalName
	}
}

func (t UpdateTimeType) String() string { return t.Name() }

func (t UpdateTimeType) Desc() string {
	switch t {
	case None:
		return "not scheduled"
	case Second:
		return "in seconds"
	case Minute:
		return "in minutes"
	case Hour:
		return "in hours"
	case Day:
		return "in days"
	default:
		return types.IllegalDesc
	}
}

// Unit returns the duration of one period step.
func (t UpdateTimeType) Unit() time.Duration {
	switch t {
	case Second:
		return time.Second
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	default:
		return 0
	}
}

// UnmarshalText accepts a name ("minute") or a number ("2").
func (t *UpdateTimeType) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if n, err := strconv.Atoi(s); err == nil {
		v := UpdateTimeType(n)
		if !v.IsValid() {
			return fmt.Errorf("invalid update time type: %d", n)
		}
		*t = v
		return nil
	}
	v, ok := types.EnumByName(updateTimeTypes, s)
	if !ok {
		return fmt.Errorf("invalid update time type: %q", s)
	}
	*t = v
	return nil
}

func (t UpdateTimeType) MarshalText() ([]byte, error) {
	return []byte(t.Name()), nil
}

// Schedule decides when the next synchronization runs. A cron expression,
// when set, takes precedence over the fixed period.
type Schedule struct {
	UpdateTimeType  UpdateTimeType `json:"update_time_type" yaml:"update_time_type"`
	CheckUpdateTime int            `json:"check_update_time" yaml:"check_update_time"`
	Cron            string         `json:"cron" yaml:"cron"`
}

// Enabled reports whether the worker loop should run at all.
func (s Schedule) Enabled() bool {
	return s.Cron != "" || s.UpdateTimeType != None
}

// Validate checks the schedule and returns the parsed cron schedule, if any.
func (s Schedule) Validate() (cron.Schedule, error) {
	if s.Cron != "" {
		sched, err := cron.ParseStandard(s.Cron)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", s.Cron, err)
		}
		return sched, nil
	}
	if !s.UpdateTimeType.IsValid() {
		return nil, fmt.Errorf("invalid update time type: %d", int(s.UpdateTimeType))
	}
	if s.UpdateTimeType != None && s.CheckUpdateTime <= 0 {
		return nil, fmt.Errorf("check update time must be positive, got %d", s.CheckUpdateTime)
	}
	return nil, nil
}

// Period returns the fixed wait between two runs.
func (s Schedule) Period() time.Duration {
	return time.Duration(s.CheckUpdateTime) * s.UpdateTimeType.Unit()
}
