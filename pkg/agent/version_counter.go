// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"sync/atomic"
	"time"
)

// ReportVersion is a process-wide monotone counter stamped on outgoing
// state messages so the master can order snapshots. It is
// seeded from wall-clock seconds at process start, which only guarantees
// monotonicity across restarts if the system clock itself is monotone
// across restarts; this is inherited as a pragmatic, not a load-bearing,
// property.
type ReportVersion struct {
	v int64
}

// NewReportVersion seeds the counter from the current wall clock.
func NewReportVersion() *ReportVersion {
	return &ReportVersion{v: time.Now().Unix() * 10000}
}

// Bump increments the counter and returns the new value. Called exactly
// once per successful CREATE_TABLET, ALTER_TABLET, or PUSH completion, and
// once per tablet-state report send.
func (rv *ReportVersion) Bump() int64 {
	return atomic.AddInt64(&rv.v, 1)
}

// Load returns the current value without mutating it.
func (rv *ReportVersion) Load() int64 {
	return atomic.LoadInt64(&rv.v)
}
