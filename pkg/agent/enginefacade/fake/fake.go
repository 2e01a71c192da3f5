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

// Package fake provides an in-memory StorageEngine, SnapshotLoader and
// SnapshotManager for dispatcher tests.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentd/taskdispatcher/pkg/agent/enginefacade"
)

// Engine is a minimal in-memory storage engine. Every hook is exported as
// a function field so tests can override behavior per call; an Engine
// from NewEngine with no hooks set behaves as an always-succeeding engine.
// The zero value is not usable: its maps and channels are nil.
type Engine struct {
	mu      sync.Mutex
	tablets map[int64]enginefacade.TabletInfo
	loaded  map[int64]bool

	// PushFunc, when set, overrides Push's default behavior.
	PushFunc func(tabletID, schemaHash, version, versionHash int64, isDelete bool) enginefacade.PushResult
	// PublishVersionFunc, when set, overrides PublishVersion's default
	// behavior. Used to simulate the retry-then-succeed scenario.
	PublishVersionFunc func(transactionID int64) (enginefacade.EngineStatus, []int64)
	// CloneFunc, when set, overrides Clone's default behavior.
	CloneFunc func(tabletID, schemaHash int64) (enginefacade.EngineStatus, []enginefacade.TabletInfo)
	// ChecksumFunc, when set, overrides Checksum's default behavior.
	ChecksumFunc func(tabletID, schemaHash, version, versionHash int64) (enginefacade.EngineStatus, uint32)

	notify   chan struct{}
	tabletCh chan struct{}
}

// NewEngine returns an empty fake engine.
func NewEngine() *Engine {
	return &Engine{
		tablets:  make(map[int64]enginefacade.TabletInfo),
		loaded:   make(map[int64]bool),
		notify:   make(chan struct{}, 1),
		tabletCh: make(chan struct{}, 1),
	}
}

// CreateTablet implements enginefacade.StorageEngine.
func (e *Engine) CreateTablet(_ context.Context, tabletID, schemaHash int64) enginefacade.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tablets[tabletID] = enginefacade.TabletInfo{TabletID: tabletID, SchemaHash: schemaHash, Version: 1}
	return enginefacade.StatusSuccess
}

// DropTablet implements enginefacade.StorageEngine.
func (e *Engine) DropTablet(_ context.Context, tabletID, _ int64) enginefacade.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tablets[tabletID]; !ok {
		return enginefacade.StatusNotFound
	}
	delete(e.tablets, tabletID)
	return enginefacade.StatusSuccess
}

// SchemaChange implements enginefacade.StorageEngine.
func (e *Engine) SchemaChange(_ context.Context, _, newTabletID, newSchemaHash int64) enginefacade.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tablets[newTabletID] = enginefacade.TabletInfo{TabletID: newTabletID, SchemaHash: newSchemaHash, Version: 1}
	return enginefacade.StatusSuccess
}

// Rollup implements enginefacade.StorageEngine.
func (e *Engine) Rollup(ctx context.Context, baseTabletID, newTabletID, newSchemaHash int64) enginefacade.EngineStatus {
	return e.SchemaChange(ctx, baseTabletID, newTabletID, newSchemaHash)
}

// Push implements enginefacade.StorageEngine.
func (e *Engine) Push(_ context.Context, tabletID, schemaHash, version, versionHash int64, isDelete bool) enginefacade.PushResult {
	if e.PushFunc != nil {
		return e.PushFunc(tabletID, schemaHash, version, versionHash, isDelete)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded[tabletID] {
		return enginefacade.PushResult{Status: enginefacade.StatusAlreadyLoaded, AlreadyLoaded: true}
	}
	e.loaded[tabletID] = true
	return enginefacade.PushResult{
		Status:  enginefacade.StatusSuccess,
		Tablets: []enginefacade.TabletInfo{{TabletID: tabletID, SchemaHash: schemaHash, Version: version}},
	}
}

// PublishVersion implements enginefacade.StorageEngine.
func (e *Engine) PublishVersion(_ context.Context, transactionID int64, _ map[int64]int64) (enginefacade.EngineStatus, []int64) {
	if e.PublishVersionFunc != nil {
		return e.PublishVersionFunc(transactionID)
	}
	return enginefacade.StatusSuccess, nil
}

// ClearAlterTask implements enginefacade.StorageEngine.
func (e *Engine) ClearAlterTask(_ context.Context, _, _ int64) enginefacade.EngineStatus {
	return enginefacade.StatusSuccess
}

// ClearTransactionTask implements enginefacade.StorageEngine. The real
// engine call returns void, so the fake mirrors that and never fails.
func (e *Engine) ClearTransactionTask(_ context.Context, _, _ int64) {}

// Clone implements enginefacade.StorageEngine.
func (e *Engine) Clone(_ context.Context, tabletID, schemaHash int64, _ string, _ int32) (enginefacade.EngineStatus, []enginefacade.TabletInfo) {
	if e.CloneFunc != nil {
		return e.CloneFunc(tabletID, schemaHash)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	info := enginefacade.TabletInfo{TabletID: tabletID, SchemaHash: schemaHash, Version: 1}
	e.tablets[tabletID] = info
	return enginefacade.StatusSuccess, []enginefacade.TabletInfo{info}
}

// StorageMigrate implements enginefacade.StorageEngine.
func (e *Engine) StorageMigrate(_ context.Context, _, _ int64, _ string) enginefacade.EngineStatus {
	return enginefacade.StatusSuccess
}

// Checksum implements enginefacade.StorageEngine.
func (e *Engine) Checksum(_ context.Context, tabletID, schemaHash, version, versionHash int64) (enginefacade.EngineStatus, uint32) {
	if e.ChecksumFunc != nil {
		return e.ChecksumFunc(tabletID, schemaHash, version, versionHash)
	}
	return enginefacade.StatusSuccess, uint32(tabletID)
}

// ReportAllTabletsInfo implements enginefacade.StorageEngine.
func (e *Engine) ReportAllTabletsInfo(_ context.Context) ([]enginefacade.TabletInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]enginefacade.TabletInfo, 0, len(e.tablets))
	for _, t := range e.tablets {
		out = append(out, t)
	}
	return out, nil
}

// GetAllDataDirInfo implements enginefacade.StorageEngine.
func (e *Engine) GetAllDataDirInfo(_ context.Context) (map[string]enginefacade.DiskInfo, error) {
	return map[string]enginefacade.DiskInfo{
		"/data0": {RootPath: "/data0", TotalCapacity: 1 << 30, AvailableCapacity: 1 << 29, Usable: true},
	}, nil
}

// RecoverTabletUntilSpecificVersion implements enginefacade.StorageEngine.
func (e *Engine) RecoverTabletUntilSpecificVersion(_ context.Context, tabletID, schemaHash, version, _ int64) enginefacade.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tablets[tabletID] = enginefacade.TabletInfo{TabletID: tabletID, SchemaHash: schemaHash, Version: version}
	return enginefacade.StatusSuccess
}

// WaitForReportNotify implements enginefacade.StorageEngine. The fake
// never notifies on its own timer; tests drive the next report cycle by
// calling NotifyDiskReport/NotifyTabletReport.
func (e *Engine) WaitForReportNotify(ctx context.Context, seconds int, isTabletReport bool) {
	ch := e.notify
	if isTabletReport {
		ch = e.tabletCh
	}
	select {
	case <-ctx.Done():
	case <-ch:
	}
}

// NotifyDiskReport wakes a disk report loop blocked in WaitForReportNotify.
func (e *Engine) NotifyDiskReport() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// NotifyTabletReport wakes a tablet report loop blocked in
// WaitForReportNotify.
func (e *Engine) NotifyTabletReport() {
	select {
	case e.tabletCh <- struct{}{}:
	default:
	}
}

// Loader is a no-op in-memory SnapshotLoader.
type Loader struct{}

// Upload implements enginefacade.SnapshotLoader.
func (Loader) Upload(_ context.Context, srcDestMap map[string]string, _ string, _ map[string]string, _ int64) (enginefacade.EngineStatus, map[int64][]string) {
	return enginefacade.StatusSuccess, map[int64][]string{}
}

// Download implements enginefacade.SnapshotLoader.
func (Loader) Download(_ context.Context, _ map[string]string, _ string, _ map[string]string, _ int64) (enginefacade.EngineStatus, []int64) {
	return enginefacade.StatusSuccess, nil
}

// Move implements enginefacade.SnapshotLoader.
func (Loader) Move(_ context.Context, _, _ int64, _ string, _ int64, _ bool) enginefacade.EngineStatus {
	return enginefacade.StatusSuccess
}

// Manager is a no-op in-memory SnapshotManager.
type Manager struct{}

// MakeSnapshot implements enginefacade.SnapshotManager.
func (Manager) MakeSnapshot(_ context.Context, tabletID, schemaHash, version, _ int64) (enginefacade.EngineStatus, string) {
	return enginefacade.StatusSuccess, fmt.Sprintf("/snapshot/%d/%d/%d", tabletID, schemaHash, version)
}

// ListSnapshotFiles implements enginefacade.SnapshotManager.
func (Manager) ListSnapshotFiles(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

// ReleaseSnapshot implements enginefacade.SnapshotManager.
func (Manager) ReleaseSnapshot(_ context.Context, _ string) enginefacade.EngineStatus {
	return enginefacade.StatusSuccess
}
