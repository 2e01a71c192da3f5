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
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/agentd/taskdispatcher/pkg/agent/enginefacade"
	agenterrors "github.com/agentd/taskdispatcher/pkg/errors"
)

// publishVersionMaxRetry bounds the publish_version engine call to 3
// attempts before the task is reported as failed.
const publishVersionMaxRetry = 3

// publishVersionRetryPause is the fixed pause between publish_version
// attempts.
const publishVersionRetryPause = time.Second

// callbackFor returns the execution callback for kind. PUSH, REALTIME_PUSH
// and DELETE all route through pushCallback, matching the original's
// shared TTaskType::PUSH worker callback.
func callbackFor(kind TaskKind) Callback {
	switch kind {
	case KindCreateTablet:
		return createTabletCallback
	case KindDropTablet:
		return dropTabletCallback
	case KindAlterTablet:
		return alterTabletCallback
	case KindPush, KindRealtimePush, KindDelete:
		return pushCallback
	case KindPublishVersion:
		return publishVersionCallback
	case KindClearAlterTask:
		return clearAlterTaskCallback
	case KindClearTransactionTask:
		return clearTransactionTaskCallback
	case KindClone:
		return cloneCallback
	case KindStorageMediumMigrate:
		return storageMediumMigrateCallback
	case KindCheckConsistency:
		return checkConsistencyCallback
	case KindUpload:
		return uploadCallback
	case KindDownload:
		return downloadCallback
	case KindMakeSnapshot:
		return makeSnapshotCallback
	case KindReleaseSnapshot:
		return releaseSnapshotCallback
	case KindMove:
		return moveCallback
	case KindRecoverTablet:
		return recoverTabletCallback
	default:
		return unknownKindCallback
	}
}

func finishAndRelease(ctx context.Context, d *Dispatcher, kind TaskKind, sig int64, user string, finish *FinishTaskRequest) {
	d.metrics.tasksFinished.WithLabelValues(kind.String(), finish.Status.Code.String()).Inc()
	d.release(ctx, finish, kind, sig, user, true)
}

func unknownKindCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	log.Error("no callback registered for task kind", zap.Stringer("kind", t.Kind))
	finish := newFinish(t.Kind, t.Signature, d.backend, analysisError(agenterrors.ErrUnknownTaskKind.GenWithStackByArgs(t.Kind.String()).Error()))
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

func createTabletCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.CreateTablet
	status := d.engine.CreateTablet(ctx, req.TabletID, req.SchemaHash)
	taskStatus := statusFor(status, false, "create_tablet")
	finish := newFinish(t.Kind, t.Signature, d.backend, taskStatus)
	if taskStatus.Code == StatusOK {
		v := d.version.Bump()
		finish.ReportVersion = &v
	}
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

func dropTabletCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.DropTablet
	status := d.engine.DropTablet(ctx, req.TabletID, req.SchemaHash)
	taskStatus := statusFor(status, true, "drop_tablet")
	finish := newFinish(t.Kind, t.Signature, d.backend, taskStatus)
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

func alterTabletCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.AlterTablet
	var status enginefacade.EngineStatus
	switch req.SubType {
	case SchemaChange:
		status = d.engine.SchemaChange(ctx, req.BaseTabletID, req.NewTabletID, req.NewSchemaHash)
	case Rollup:
		status = d.engine.Rollup(ctx, req.BaseTabletID, req.NewTabletID, req.NewSchemaHash)
	default:
		finish := newFinish(t.Kind, t.Signature, d.backend,
			analysisError(agenterrors.ErrInvalidAlterTaskType.GenWithStackByArgs(t.Signature).Error()))
		finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
		return
	}
	taskStatus := statusFor(status, false, "alter_tablet")
	finish := newFinish(t.Kind, t.Signature, d.backend, taskStatus)
	if taskStatus.Code == StatusOK {
		v := d.version.Bump()
		finish.ReportVersion = &v
		finish.FinishTabletInfos = []TabletInfo{{TabletID: req.NewTabletID, SchemaHash: req.NewSchemaHash}}
	}
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

// pushCallback handles PUSH, REALTIME_PUSH and DELETE. If the engine
// reports the load already happened, the task is released without any
// finish RPC: the master infers completion from an earlier report.
func pushCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.Push
	isDelete := req.PushType == PushDelete
	result := d.engine.Push(ctx, req.TabletID, req.SchemaHash, req.Version, req.VersionHash, isDelete)

	if result.AlreadyLoaded {
		d.metrics.tasksFinished.WithLabelValues(t.Kind.String(), "already_loaded").Inc()
		d.release(ctx, nil, t.Kind, t.Signature, t.User(), false)
		return
	}

	taskStatus := statusFor(result.Status, false, "push")
	finish := newFinish(t.Kind, t.Signature, d.backend, taskStatus)
	if taskStatus.Code == StatusOK {
		v := d.version.Bump()
		finish.ReportVersion = &v
		finish.FinishTabletInfos = toTabletInfoSlice(result.Tablets)
		if isDelete {
			rv := result.RequestVer
			rvh := result.RequestVerHash
			finish.RequestVersion = &rv
			finish.RequestVersionHash = &rvh
		}
	}
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

func publishVersionCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.PublishVersion
	status := enginefacade.StatusError
	var errTablets []int64
	for attempt := 1; attempt <= publishVersionMaxRetry; attempt++ {
		status, errTablets = d.engine.PublishVersion(ctx, req.TransactionID, req.PartitionVersion)
		if status == enginefacade.StatusSuccess {
			break
		}
		if attempt < publishVersionMaxRetry {
			d.metrics.finishRetries.WithLabelValues(t.Kind.String()).Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(publishVersionRetryPause):
			}
		}
	}

	finish := newFinish(t.Kind, t.Signature, d.backend, okStatus())
	if status != enginefacade.StatusSuccess {
		finish.Status = runtimeError(agenterrors.ErrPublishVersionFailed.GenWithStackByArgs(publishVersionMaxRetry, req.TransactionID).Error())
		finish.ErrorTabletIDs = errTablets
	} else {
		// publish_version success attaches the current report version
		// without bumping it; only CREATE/ALTER/PUSH successes bump.
		v := d.version.Load()
		finish.ReportVersion = &v
	}
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

func clearAlterTaskCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.ClearAlterTask
	status := d.engine.ClearAlterTask(ctx, req.TabletID, req.SchemaHash)
	finish := newFinish(t.Kind, t.Signature, d.backend, statusFor(status, false, "clear_alter_task"))
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

// clearTransactionTaskCallback always reports OK: the engine call returns
// no error status, so whether it can fail silently is unclear.
func clearTransactionTaskCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.ClearTransactionTask
	d.engine.ClearTransactionTask(ctx, req.TransactionID, req.PartitionID)
	finish := newFinish(t.Kind, t.Signature, d.backend, okStatus())
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

// cloneCallback treats "already exists" as success, still populating
// finish_tablet_infos.
func cloneCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.Clone
	status, tablets := d.engine.Clone(ctx, req.TabletID, req.SchemaHash, req.SrcHost, req.SrcPort)
	taskStatus := statusFor(status, false, "clone")
	finish := newFinish(t.Kind, t.Signature, d.backend, taskStatus)
	if taskStatus.Code == StatusOK {
		finish.FinishTabletInfos = toTabletInfoSlice(tablets)
	}
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

func storageMediumMigrateCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.StorageMediumMigrate
	status := d.engine.StorageMigrate(ctx, req.TabletID, req.SchemaHash, req.StorageMedium)
	finish := newFinish(t.Kind, t.Signature, d.backend, statusFor(status, false, "storage_migrate"))
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

// checkConsistencyCallback sets tablet_checksum/request_version/
// request_version_hash unconditionally, matching the original's
// TFinishTaskRequest construction: checksum defaults to 0 and the
// request's version/version_hash are echoed back whether or not the
// engine call succeeded.
func checkConsistencyCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.CheckConsistency
	status, checksum := d.engine.Checksum(ctx, req.TabletID, req.SchemaHash, req.Version, req.VersionHash)
	taskStatus := statusFor(status, false, "check_consistency")
	finish := newFinish(t.Kind, t.Signature, d.backend, taskStatus)
	finish.TabletChecksum = &checksum
	rv, rvh := req.Version, req.VersionHash
	finish.RequestVersion = &rv
	finish.RequestVersionHash = &rvh
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

func uploadCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.Upload
	status, tabletFiles := d.loader.Upload(ctx, req.SrcDestMap, req.Broker, req.BrokerProps, req.JobID)
	taskStatus := statusFor(status, false, "upload")
	finish := newFinish(t.Kind, t.Signature, d.backend, taskStatus)
	if taskStatus.Code == StatusOK {
		finish.TabletFiles = tabletFiles
	}
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

func downloadCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.Download
	status, tabletIDs := d.loader.Download(ctx, req.SrcDestMap, req.Broker, req.BrokerProps, req.JobID)
	taskStatus := statusFor(status, false, "download")
	finish := newFinish(t.Kind, t.Signature, d.backend, taskStatus)
	if taskStatus.Code == StatusOK {
		finish.DownloadedTabletIDs = tabletIDs
	}
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

func makeSnapshotCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.MakeSnapshot
	status, path := d.snapMgr.MakeSnapshot(ctx, req.TabletID, req.SchemaHash, req.Version, req.VersionHash)
	taskStatus := statusFor(status, false, "make_snapshot")
	finish := newFinish(t.Kind, t.Signature, d.backend, taskStatus)
	if taskStatus.Code == StatusOK {
		finish.SnapshotPath = &path
		if req.ListFiles {
			if files, err := d.snapMgr.ListSnapshotFiles(ctx, path); err == nil {
				finish.SnapshotFiles = files
			} else {
				log.Warn("list snapshot files failed", zap.Error(err), zap.String("path", path))
			}
		}
	}
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

func releaseSnapshotCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.ReleaseSnapshot
	status := d.snapMgr.ReleaseSnapshot(ctx, req.SnapshotPath)
	finish := newFinish(t.Kind, t.Signature, d.backend, statusFor(status, false, "release_snapshot"))
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

// moveCallback hard-codes overwrite=true, preserving a TODO from the
// original rather than silently resolving it.
func moveCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.Move
	// TODO: overwrite is always true; the original never exposes a way to
	// set it false and it is unclear whether that was intentional.
	status := d.loader.Move(ctx, req.TabletID, req.SchemaHash, req.Src, req.JobID, true)
	finish := newFinish(t.Kind, t.Signature, d.backend, statusFor(status, false, "move"))
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}

func recoverTabletCallback(ctx context.Context, d *Dispatcher, _ *Pool, _ Priority, t *TaskRequest) {
	req := t.RecoverTablet
	status := d.engine.RecoverTabletUntilSpecificVersion(ctx, req.TabletID, req.SchemaHash, req.Version, req.VersionHash)
	finish := newFinish(t.Kind, t.Signature, d.backend, statusFor(status, false, "recover_tablet"))
	finishAndRelease(ctx, d, t.Kind, t.Signature, t.User(), finish)
}
