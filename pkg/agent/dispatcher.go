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
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentd/taskdispatcher/pkg/agent/enginefacade"
)

// PoolConfig fixes one pool's worker count, and for PUSH, how many of
// those workers elect themselves HIGH priority.
type PoolConfig struct {
	WorkerCount  int
	HighPriority int
}

// Config is everything the dispatcher needs that would otherwise be
// global mutable state: per-kind pool sizing and the report loop
// intervals. Built from pkg/config.Config at bootstrap.
type Config struct {
	Pools map[TaskKind]PoolConfig

	ReportTaskIntervalSeconds   int
	ReportDiskIntervalSeconds   int
	ReportTabletIntervalSeconds int
}

// DefaultConfig returns the pool sizing used when no configuration
// overrides are supplied, modeled on a small single-node deployment.
func DefaultConfig() Config {
	return Config{
		Pools: map[TaskKind]PoolConfig{
			KindCreateTablet:         {WorkerCount: 3},
			KindDropTablet:           {WorkerCount: 3},
			KindAlterTablet:          {WorkerCount: 3},
			KindPush:                 {WorkerCount: 3, HighPriority: 1},
			KindRealtimePush:         {WorkerCount: 3, HighPriority: 1},
			KindDelete:               {WorkerCount: 3},
			KindPublishVersion:       {WorkerCount: 8},
			KindClearAlterTask:       {WorkerCount: 1},
			KindClearTransactionTask: {WorkerCount: 1},
			KindClone:                {WorkerCount: 3},
			KindStorageMediumMigrate: {WorkerCount: 1},
			KindCheckConsistency:     {WorkerCount: 1},
			KindUpload:               {WorkerCount: 1},
			KindDownload:             {WorkerCount: 1},
			KindMakeSnapshot:         {WorkerCount: 1},
			KindReleaseSnapshot:      {WorkerCount: 1},
			KindMove:                 {WorkerCount: 1},
			KindRecoverTablet:        {WorkerCount: 1},
		},
		ReportTaskIntervalSeconds:   10,
		ReportDiskIntervalSeconds:   60,
		ReportTabletIntervalSeconds: 60,
	}
}

// Dispatcher is the façade the RPC front-end submits tasks to. It owns
// the registry, one pool per kind, the finisher, the report-version
// counter and the three report loops.
type Dispatcher struct {
	backend Backend
	cfg     Config

	reg      *Registry
	pools    map[TaskKind]*Pool
	finisher *Finisher
	version  *ReportVersion
	master   MasterClient

	engine  enginefacade.StorageEngine
	loader  enginefacade.SnapshotLoader
	snapMgr enginefacade.SnapshotManager

	metrics *Metrics

	// clock paces the report loops' tickers. Defaults to the real wall
	// clock; tests inject clock.NewMock() for deterministic interval
	// control instead of sleeping on real time.
	clock clock.Clock

	// masterKnown gates the report loops: they block until the master's
	// address is known (non-zero), matching the original's first-
	// heartbeat gate.
	masterKnown atomic.Bool
}

// Deps bundles the dispatcher's external collaborators.
type Deps struct {
	Backend Backend
	Master  MasterClient
	Engine  enginefacade.StorageEngine
	Loader  enginefacade.SnapshotLoader
	SnapMgr enginefacade.SnapshotManager
	Metrics *Metrics
	// Clock overrides the dispatcher's report-loop ticker source. Nil
	// means the real wall clock.
	Clock clock.Clock
}

// NewDispatcher builds a dispatcher with one pool per configured kind.
func NewDispatcher(cfg Config, deps Deps) *Dispatcher {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	d := &Dispatcher{
		backend:  deps.Backend,
		cfg:      cfg,
		reg:      NewRegistry(),
		pools:    make(map[TaskKind]*Pool),
		finisher: NewFinisher(deps.Master),
		version:  NewReportVersion(),
		master:   deps.Master,
		engine:   deps.Engine,
		loader:   deps.Loader,
		snapMgr:  deps.SnapMgr,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
	}
	for kind, pc := range cfg.Pools {
		d.pools[kind] = NewPool(kind, pc.WorkerCount, pc.HighPriority, d.reg, callbackFor(kind), d.metrics)
	}
	return d
}

// MarkMasterKnown is called once the agent receives its first heartbeat
// carrying a non-zero master address; it releases the report loops.
func (d *Dispatcher) MarkMasterKnown() {
	d.masterKnown.Store(true)
}

// Submit classifies req by kind, admits it into the registry, and if
// admitted, enqueues it into the matching pool. A duplicate (kind,
// signature) is dropped silently: the master will observe it still live
// via the next task-list report.
func (d *Dispatcher) Submit(req *TaskRequest) {
	pool, ok := d.pools[req.Kind]
	if !ok {
		log.Error("submit for unconfigured task kind", zap.Stringer("kind", req.Kind))
		return
	}
	if !d.reg.Admit(req.Kind, req.Signature, req.User()) {
		log.Debug("duplicate task submission dropped",
			zap.Stringer("kind", req.Kind), zap.Int64("signature", req.Signature))
		return
	}
	d.metrics.tasksAdmitted.WithLabelValues(req.Kind.String()).Inc()
	pool.Submit(req)
}

// Run starts every pool and every report loop, blocking until ctx is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for kind, pool := range d.pools {
		pool := pool
		kind := kind
		g.Go(func() error {
			pool.Run(ctx, d)
			log.Info("pool stopped", zap.Stringer("kind", kind))
			return nil
		})
	}

	g.Go(func() error { d.runTaskReportLoop(ctx); return nil })
	g.Go(func() error { d.runDiskReportLoop(ctx); return nil })
	g.Go(func() error { d.runTabletReportLoop(ctx); return nil })

	return g.Wait()
}

// waitForMaster blocks until the master address is known or ctx is done.
func (d *Dispatcher) waitForMaster(ctx context.Context) bool {
	for !d.masterKnown.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return true
}

// release finishes and removes a task from the registry. wasRunning is
// true only for KindPush: that is the one pool whose selector counts a
// task as running when it is dequeued. When report is false (the PUSH
// already-loaded case), req may be nil: the registry is released without
// any finish RPC.
func (d *Dispatcher) release(ctx context.Context, req *FinishTaskRequest, kind TaskKind, sig int64, user string, report bool) {
	if report {
		d.finisher.Finish(ctx, req)
	}
	d.reg.Release(kind, sig, user, kind == KindPush)
}
