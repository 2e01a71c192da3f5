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
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/agentd/taskdispatcher/pkg/agent/enginefacade/fake"
)

func TestTabletReportLoopBumpsVersionOnlyOnSuccess(t *testing.T) {
	engine := fake.NewEngine()
	client := &fakeMasterClient{failReportN: 2}
	d, _, _ := newTestDispatcher(t, smallConfig(KindClone, 1, 0))
	d.engine = engine
	d.master = client
	d.cfg.ReportTabletIntervalSeconds = 3600
	d.MarkMasterKnown()

	start := d.version.Load()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { d.runTabletReportLoop(ctx); close(done) }()

	// First report is sent immediately and fails transport-side.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&client.reportCalls) >= 1 }, time.Second, time.Millisecond)
	require.Equal(t, start, d.version.Load())

	// Drive the second (also failing) and third (succeeding) cycles.
	engine.NotifyTabletReport()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&client.reportCalls) >= 2 }, time.Second, time.Millisecond)
	require.Equal(t, start, d.version.Load())

	engine.NotifyTabletReport()
	require.Eventually(t, func() bool { return d.version.Load() == start+1 }, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestTaskReportLoopSendsLiveSignatures(t *testing.T) {
	mock := clock.NewMock()
	d, _, client := newTestDispatcherWithClock(t, smallConfig(KindPush, 1, 0), mock)
	d.cfg.ReportTaskIntervalSeconds = 10
	d.MarkMasterKnown()
	d.reg.Admit(KindPush, 42, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { d.runTaskReportLoop(ctx); close(done) }()

	// Advance the mock clock on every poll until the loop's ticker fires;
	// avoids sleeping on real wall-clock time for a deterministic test.
	require.Eventually(t, func() bool {
		mock.Add(10 * time.Second)
		return atomic.LoadInt32(&client.reportCalls) >= 1
	}, time.Second, time.Millisecond)
	cancel()
	<-done

	require.EqualValues(t, 1, client.reportCalls)
	require.Equal(t, []int64{42}, client.getLastReportReq().Tasks[KindPush])
}
