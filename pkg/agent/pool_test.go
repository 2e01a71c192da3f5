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
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPoolFIFODispatchOrder(t *testing.T) {
	reg := NewRegistry()
	var mu sync.Mutex
	var order []int64

	cb := func(_ context.Context, _ *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
		mu.Lock()
		order = append(order, t.Signature)
		mu.Unlock()
	}
	p := NewPool(KindClone, 1, 0, reg, cb, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx, nil); close(done) }()

	for i := int64(1); i <= 3; i++ {
		reg.Admit(KindClone, i, "alice")
		p.Submit(&TaskRequest{Kind: KindClone, Signature: i, ResourceInfo: ResourceInfo{User: "alice"}})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, time.Second, time.Millisecond)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int64{1, 2, 3}, order)
}

func TestPoolStopsWorkersOnContextCancel(t *testing.T) {
	reg := NewRegistry()
	p := NewPool(KindClone, 4, 0, reg, func(context.Context, *Dispatcher, *Pool, Priority, *TaskRequest) {}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx, nil); close(done) }()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after context cancellation")
	}
}

func TestPoolSubmitAndDequeueUpdateQueueDepthGauge(t *testing.T) {
	reg := NewRegistry()
	metrics := NewMetrics()
	release := make(chan struct{})
	cb := func(_ context.Context, _ *Dispatcher, _ *Pool, _ Priority, _ *TaskRequest) {
		<-release
	}
	p := NewPool(KindClone, 1, 0, reg, cb, metrics)
	gauge := metrics.queueDepth.WithLabelValues(KindClone.String())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx, nil); close(done) }()

	reg.Admit(KindClone, 1, "alice")
	p.Submit(&TaskRequest{Kind: KindClone, Signature: 1})
	reg.Admit(KindClone, 2, "alice")
	p.Submit(&TaskRequest{Kind: KindClone, Signature: 2})

	// The single worker dequeues one task and blocks in cb, leaving one
	// behind in the queue.
	require.Eventually(t, func() bool { return testutil.ToFloat64(gauge) == 1 }, time.Second, time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return testutil.ToFloat64(gauge) == 0 }, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestPoolRunCallbackRecoversFromPanic(t *testing.T) {
	reg := NewRegistry()
	p := NewPool(KindClone, 1, 0, reg, func(context.Context, *Dispatcher, *Pool, Priority, *TaskRequest) {
		panic("boom")
	}, nil)
	require.NotPanics(t, func() {
		p.runCallback(context.Background(), nil, Normal, &TaskRequest{Kind: KindClone, Signature: 1})
	})
}
