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

// Package enginefacade defines the storage engine and snapshot loader
// collaborators the dispatcher consumes as opaque façades. Production wiring is left
// to the embedding backend; pkg/agent/enginefacade/fake provides an
// in-memory implementation used by the dispatcher's own tests.
package enginefacade

import "context"

// EngineStatus is the coarse outcome of a storage engine call.
type EngineStatus int

// Engine statuses. "Already exists" on clone and "not found" on drop are
// mapped to an OK task status by the caller.
const (
	StatusSuccess EngineStatus = iota
	StatusAlreadyExists
	StatusNotFound
	StatusAlreadyLoaded
	StatusError
)

// TabletInfo is the engine-side view of a tablet's reportable state.
type TabletInfo struct {
	TabletID   int64
	SchemaHash int64
	Version    int64
	RowCount   int64
	DataSize   int64
}

// DiskInfo is the engine-side view of one data directory.
type DiskInfo struct {
	RootPath          string
	PathHash          int64
	TotalCapacity     uint64
	DataUsedCapacity  uint64
	AvailableCapacity uint64
	Usable            bool
}

// PushResult carries a PUSH/DELETE call's outcome, including the
// already-loaded idempotency signal.
type PushResult struct {
	Status        EngineStatus
	AlreadyLoaded bool
	Tablets       []TabletInfo
	RequestVer    int64
	RequestVerHash int64
}

// StorageEngine is the local domain-operation façade: create/drop/alter
// tablet, publish version, checksum, migrate, clone, etc. Every method
// returns a coarse status; implementations must be safe for concurrent
// use from multiple worker goroutines.
type StorageEngine interface {
	CreateTablet(ctx context.Context, tabletID, schemaHash int64) EngineStatus
	DropTablet(ctx context.Context, tabletID, schemaHash int64) EngineStatus
	SchemaChange(ctx context.Context, baseTabletID, newTabletID, newSchemaHash int64) EngineStatus
	Rollup(ctx context.Context, baseTabletID, newTabletID, newSchemaHash int64) EngineStatus

	Push(ctx context.Context, tabletID, schemaHash, version, versionHash int64, isDelete bool) PushResult

	PublishVersion(ctx context.Context, transactionID int64, partitionVersion map[int64]int64) (EngineStatus, []int64)
	ClearAlterTask(ctx context.Context, tabletID, schemaHash int64) EngineStatus
	ClearTransactionTask(ctx context.Context, transactionID, partitionID int64)

	Clone(ctx context.Context, tabletID, schemaHash int64, srcHost string, srcPort int32) (EngineStatus, []TabletInfo)
	StorageMigrate(ctx context.Context, tabletID, schemaHash int64, medium string) EngineStatus
	Checksum(ctx context.Context, tabletID, schemaHash, version, versionHash int64) (EngineStatus, uint32)

	ReportAllTabletsInfo(ctx context.Context) ([]TabletInfo, error)
	GetAllDataDirInfo(ctx context.Context) (map[string]DiskInfo, error)
	RecoverTabletUntilSpecificVersion(ctx context.Context, tabletID, schemaHash, version, versionHash int64) EngineStatus

	// WaitForReportNotify blocks until the next report should be sent,
	// either because the deadline elapsed or the engine signalled a
	// relevant state change. isTabletReport selects which internal
	// notifier the caller subscribes to.
	WaitForReportNotify(ctx context.Context, seconds int, isTabletReport bool)
}

// SnapshotLoader is the opaque upload/download/move I/O collaborator.
type SnapshotLoader interface {
	Upload(ctx context.Context, srcDestMap map[string]string, broker string, brokerProps map[string]string, jobID int64) (EngineStatus, map[int64][]string)
	Download(ctx context.Context, srcDestMap map[string]string, broker string, brokerProps map[string]string, jobID int64) (EngineStatus, []int64)
	// Move relocates src into the tablet's storage directory. overwrite is
	// always true: the original hard-codes this with a TODO, preserved
	// here rather than silently changed.
	Move(ctx context.Context, tabletID, schemaHash int64, src string, jobID int64, overwrite bool) EngineStatus
}

// SnapshotManager makes and releases point-in-time tablet snapshots.
type SnapshotManager interface {
	MakeSnapshot(ctx context.Context, tabletID, schemaHash, version, versionHash int64) (EngineStatus, string)
	ListSnapshotFiles(ctx context.Context, path string) ([]string, error)
	ReleaseSnapshot(ctx context.Context, path string) EngineStatus
}
