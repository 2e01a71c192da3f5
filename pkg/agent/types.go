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

// Package agent implements the per-node agent task dispatcher: a set of
// bounded worker pools that pull maintenance commands off a master control
// plane, run them against a local storage engine, and report outcomes
// back.
package agent

import "fmt"

// TaskKind identifies the kind of maintenance command a TaskRequest
// carries. Kinds are the dispatcher's unit of pool isolation: each kind
// gets its own bounded worker pool (see Pool).
type TaskKind int

// Task kinds, one per worker pool type in the original design.
const (
	KindCreateTablet TaskKind = iota
	KindDropTablet
	KindAlterTablet
	KindPush
	KindRealtimePush
	KindDelete
	KindPublishVersion
	KindClearAlterTask
	KindClearTransactionTask
	KindClone
	KindStorageMediumMigrate
	KindCheckConsistency
	KindUpload
	KindDownload
	KindMakeSnapshot
	KindReleaseSnapshot
	KindMove
	KindRecoverTablet
)

var taskKindNames = map[TaskKind]string{
	KindCreateTablet:         "CREATE_TABLET",
	KindDropTablet:           "DROP_TABLET",
	KindAlterTablet:          "ALTER_TABLET",
	KindPush:                 "PUSH",
	KindRealtimePush:         "REALTIME_PUSH",
	KindDelete:               "DELETE",
	KindPublishVersion:       "PUBLISH_VERSION",
	KindClearAlterTask:       "CLEAR_ALTER_TASK",
	KindClearTransactionTask: "CLEAR_TRANSACTION_TASK",
	KindClone:                "CLONE",
	KindStorageMediumMigrate: "STORAGE_MEDIUM_MIGRATE",
	KindCheckConsistency:     "CHECK_CONSISTENCY",
	KindUpload:               "UPLOAD",
	KindDownload:             "DOWNLOAD",
	KindMakeSnapshot:         "MAKE_SNAPSHOT",
	KindReleaseSnapshot:      "RELEASE_SNAPSHOT",
	KindMove:                 "MOVE",
	KindRecoverTablet:        "RECOVER_TABLET",
}

// String implements fmt.Stringer so task kinds log legibly.
func (k TaskKind) String() string {
	if name, ok := taskKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TaskKind(%d)", int(k))
}

// fairShareKind maps a task kind to the kind used as the key into the
// registry's fair-share accounting. PUSH, REALTIME_PUSH and DELETE each
// have their own pool but share one fairness domain in the registry,
// matching the original's use of a single TTaskType::PUSH bucket for all
// three.
func fairShareKind(k TaskKind) TaskKind {
	switch k {
	case KindRealtimePush, KindDelete:
		return KindPush
	default:
		return k
	}
}

// Priority is the admission-class tag on PUSH-family tasks.
type Priority int

// Priority values. The zero value is Normal so a TaskRequest that never
// sets Priority behaves like a normal-priority task.
const (
	Normal Priority = iota
	High
)

func (p Priority) String() string {
	if p == High {
		return "HIGH"
	}
	return "NORMAL"
}

// AlterSubType distinguishes the two ALTER_TABLE task subtypes.
type AlterSubType int

// Alter subtypes.
const (
	SchemaChange AlterSubType = iota
	Rollup
)

func (t AlterSubType) String() string {
	if t == Rollup {
		return "rollup"
	}
	return "schema change"
}

// PushType distinguishes a bulk-load PUSH from a DELETE-by-predicate push.
type PushType int

// Push types.
const (
	PushNormal PushType = iota
	PushDelete
)

// Backend is this node's identity as stamped on every outgoing request.
type Backend struct {
	Host     string
	BePort   int32
	HTTPPort int32
}

// TabletInfo mirrors the subset of tablet metadata the master cares about
// in finish/report payloads.
type TabletInfo struct {
	TabletID   int64
	SchemaHash int64
	Version    int64
	RowCount   int64
	DataSize   int64
}

// CreateTabletRequest is the CREATE_TABLET payload.
type CreateTabletRequest struct {
	TabletID   int64
	SchemaHash int64
}

// DropTabletRequest is the DROP_TABLE payload.
type DropTabletRequest struct {
	TabletID   int64
	SchemaHash int64
}

// AlterTabletRequest is the ALTER_TABLE (SCHEMA_CHANGE/ROLLUP) payload.
type AlterTabletRequest struct {
	SubType       AlterSubType
	BaseTabletID  int64
	NewTabletID   int64
	NewSchemaHash int64
}

// PushRequest is the PUSH/REALTIME_PUSH/DELETE payload.
type PushRequest struct {
	PushType    PushType
	TabletID    int64
	SchemaHash  int64
	Version     int64
	VersionHash int64
}

// PublishVersionRequest is the PUBLISH_VERSION payload.
type PublishVersionRequest struct {
	TransactionID    int64
	PartitionVersion map[int64]int64
}

// ClearAlterTaskRequest is the CLEAR_ALTER_TASK payload.
type ClearAlterTaskRequest struct {
	TabletID   int64
	SchemaHash int64
}

// ClearTransactionTaskRequest is the CLEAR_TRANSACTION_TASK payload.
type ClearTransactionTaskRequest struct {
	TransactionID int64
	PartitionID   int64
}

// CloneRequest is the CLONE payload.
type CloneRequest struct {
	TabletID   int64
	SchemaHash int64
	SrcHost    string
	SrcPort    int32
}

// StorageMediumMigrateRequest is the STORAGE_MEDIUM_MIGRATE payload.
type StorageMediumMigrateRequest struct {
	TabletID       int64
	SchemaHash     int64
	StorageMedium  string
}

// CheckConsistencyRequest is the CHECK_CONSISTENCY payload.
type CheckConsistencyRequest struct {
	TabletID    int64
	SchemaHash  int64
	Version     int64
	VersionHash int64
}

// UploadRequest is the UPLOAD payload.
type UploadRequest struct {
	JobID       int64
	SrcDestMap  map[string]string
	Broker      string
	BrokerProps map[string]string
}

// DownloadRequest is the DOWNLOAD payload.
type DownloadRequest struct {
	JobID       int64
	SrcDestMap  map[string]string
	Broker      string
	BrokerProps map[string]string
}

// SnapshotRequest is the MAKE_SNAPSHOT payload.
type SnapshotRequest struct {
	TabletID    int64
	SchemaHash  int64
	Version     int64
	VersionHash int64
	ListFiles   bool
}

// ReleaseSnapshotRequest is the RELEASE_SNAPSHOT payload.
type ReleaseSnapshotRequest struct {
	SnapshotPath string
}

// MoveDirRequest is the MOVE payload.
type MoveDirRequest struct {
	TabletID   int64
	SchemaHash int64
	Src        string
	JobID      int64
}

// RecoverTabletRequest is the RECOVER_TABLET payload.
type RecoverTabletRequest struct {
	TabletID    int64
	SchemaHash  int64
	Version     int64
	VersionHash int64
}

// ResourceInfo carries the submitting tenant identity, used for PUSH fair
// sharing. An empty User means "anonymous".
type ResourceInfo struct {
	User string
}

// TaskRequest is the immutable value delivered by the master. It is a
// tagged union: exactly one of the kind-specific payload pointers below is
// populated, selected by Kind. A task is identified by (Kind, Signature).
type TaskRequest struct {
	Kind         TaskKind
	Signature    int64
	Priority     Priority
	ResourceInfo ResourceInfo

	CreateTablet         *CreateTabletRequest
	DropTablet           *DropTabletRequest
	AlterTablet          *AlterTabletRequest
	Push                 *PushRequest
	PublishVersion       *PublishVersionRequest
	ClearAlterTask       *ClearAlterTaskRequest
	ClearTransactionTask *ClearTransactionTaskRequest
	Clone                *CloneRequest
	StorageMediumMigrate *StorageMediumMigrateRequest
	CheckConsistency     *CheckConsistencyRequest
	Upload               *UploadRequest
	Download             *DownloadRequest
	MakeSnapshot         *SnapshotRequest
	ReleaseSnapshot      *ReleaseSnapshotRequest
	Move                 *MoveDirRequest
	RecoverTablet        *RecoverTabletRequest
}

// User returns the submitting tenant, or "" for anonymous submissions.
func (r *TaskRequest) User() string {
	return r.ResourceInfo.User
}

// StatusCode is the coarse outcome of a task.
type StatusCode int

// Status codes.
const (
	StatusOK StatusCode = iota
	StatusAnalysisError
	StatusRuntimeError
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusAnalysisError:
		return "ANALYSIS_ERROR"
	default:
		return "RUNTIME_ERROR"
	}
}

// TaskStatus is the status sub-object of a finish envelope.
type TaskStatus struct {
	Code      StatusCode
	ErrorMsgs []string
}

// FinishTaskRequest is the envelope sent to the master on task completion.
type FinishTaskRequest struct {
	Backend   Backend
	Kind      TaskKind
	Signature int64
	Status    TaskStatus

	ReportVersion       *int64
	FinishTabletInfos   []TabletInfo
	ErrorTabletIDs      []int64
	RequestVersion      *int64
	RequestVersionHash  *int64
	TabletChecksum      *uint32
	SnapshotPath        *string
	SnapshotFiles       []string
	TabletFiles         map[int64][]string
	DownloadedTabletIDs []int64
}

// DiskInfo is one data directory's reported capacity state.
type DiskInfo struct {
	RootPath          string
	PathHash          int64
	TotalCapacity     uint64
	DataUsedCapacity  uint64
	AvailableCapacity uint64
	Used              bool
}

// ReportRequest is the envelope for the three report loops. Exactly one of
// Tasks, Disks, Tablets is populated per call, matching the "tasks-only /
// disks-only / tablets-only" variants in.
type ReportRequest struct {
	Backend       Backend
	ForceRecovery bool

	Tasks         map[TaskKind][]int64
	Disks         map[string]DiskInfo
	Tablets       []TabletInfo
	ReportVersion *int64
}
