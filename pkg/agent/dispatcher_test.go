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
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/agentd/taskdispatcher/pkg/agent/enginefacade/fake"
)

func newTestDispatcher(t *testing.T, cfg Config) (*Dispatcher, *fake.Engine, *fakeMasterClient) {
	t.Helper()
	engine := fake.NewEngine()
	client := &fakeMasterClient{}
	d := NewDispatcher(cfg, Deps{
		Backend: Backend{Host: "127.0.0.1"},
		Master:  client,
		Engine:  engine,
		Loader:  fake.Loader{},
		SnapMgr: fake.Manager{},
	})
	return d, engine, client
}

func newTestDispatcherWithClock(t *testing.T, cfg Config, clk clock.Clock) (*Dispatcher, *fake.Engine, *fakeMasterClient) {
	t.Helper()
	engine := fake.NewEngine()
	client := &fakeMasterClient{}
	d := NewDispatcher(cfg, Deps{
		Backend: Backend{Host: "127.0.0.1"},
		Master:  client,
		Engine:  engine,
		Loader:  fake.Loader{},
		SnapMgr: fake.Manager{},
		Clock:   clk,
	})
	return d, engine, client
}

func smallConfig(kind TaskKind, workers, highPriority int) Config {
	return Config{
		Pools: map[TaskKind]PoolConfig{
			kind: {WorkerCount: workers, HighPriority: highPriority},
		},
		ReportTaskIntervalSeconds:   3600,
		ReportDiskIntervalSeconds:   3600,
		ReportTabletIntervalSeconds: 3600,
	}
}

func runDispatcher(t *testing.T, d *Dispatcher) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = d.Run(ctx); close(done) }()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("dispatcher did not stop")
		}
	}
}

func TestDispatcherDropsDuplicateSubmission(t *testing.T) {
	d, engine, _ := newTestDispatcher(t, smallConfig(KindCreateTablet, 1, 0))
	defer runDispatcher(t, d)()

	d.Submit(&TaskRequest{Kind: KindCreateTablet, Signature: 1, CreateTablet: &CreateTabletRequest{TabletID: 1}})
	d.Submit(&TaskRequest{Kind: KindCreateTablet, Signature: 1, CreateTablet: &CreateTabletRequest{TabletID: 1}})

	require.Eventually(t, func() bool {
		tablets, _ := engine.ReportAllTabletsInfo(context.Background())
		return len(tablets) == 1
	}, time.Second, time.Millisecond)
}

func TestDispatcherPushAlreadyLoadedSkipsFinishRPC(t *testing.T) {
	d, _, client := newTestDispatcher(t, smallConfig(KindPush, 1, 0))
	defer runDispatcher(t, d)()

	push := func(sig int64) {
		d.Submit(&TaskRequest{
			Kind: KindPush, Signature: sig,
			ResourceInfo: ResourceInfo{User: "alice"},
			Push:         &PushRequest{TabletID: 42, SchemaHash: 1, Version: 2},
		})
	}
	push(1)
	require.Eventually(t, func() bool { return client.finishCalls == 1 }, time.Second, time.Millisecond)

	push(2)
	// The second push on the same tablet is already loaded: no additional
	// finish RPC is sent even though the task is admitted and run.
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, client.finishCalls)
}

func TestDispatcherHighPriorityWorkerServesHighQueueFirst(t *testing.T) {
	d, engine, client := newTestDispatcher(t, smallConfig(KindPush, 1, 1))
	defer runDispatcher(t, d)()
	_ = engine

	// Block the single HIGH worker with a normal-priority backlog it must
	// ignore, then confirm a HIGH task still completes.
	for i := int64(1); i <= 5; i++ {
		d.Submit(&TaskRequest{
			Kind: KindPush, Signature: i, Priority: Normal,
			ResourceInfo: ResourceInfo{User: "bulk"},
			Push:         &PushRequest{TabletID: i, SchemaHash: 1, Version: 1},
		})
	}
	d.Submit(&TaskRequest{
		Kind: KindPush, Signature: 100, Priority: High,
		ResourceInfo: ResourceInfo{User: "urgent"},
		Push:         &PushRequest{TabletID: 100, SchemaHash: 1, Version: 1},
	})

	require.Eventually(t, func() bool {
		return client.getLastFinishReq() != nil && client.getLastFinishReq().Signature == 100
	}, time.Second, time.Millisecond, "the lone HIGH worker must drain the HIGH task rather than the normal backlog")
}
