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

	"github.com/dustin/go-humanize"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/agentd/taskdispatcher/pkg/agent/enginefacade"
)

// runTaskReportLoop sends a snapshot of live signatures every
// report_task_interval_seconds. It does not touch the storage engine.
func (d *Dispatcher) runTaskReportLoop(ctx context.Context) {
	if !d.waitForMaster(ctx) {
		return
	}
	interval := time.Duration(d.cfg.ReportTaskIntervalSeconds) * time.Second
	ticker := d.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		live := d.reg.SnapshotLive()
		req := &ReportRequest{Backend: d.backend, Tasks: live}
		if err := d.master.Report(ctx, req); err != nil {
			d.metrics.reportFailures.WithLabelValues("task").Inc()
			log.Warn("task report rpc failed", zap.Error(err))
		}
	}
}

// runDiskReportLoop reports the local data directories' capacity state,
// waking either on the configured interval or an early storage-engine
// notification.
func (d *Dispatcher) runDiskReportLoop(ctx context.Context) {
	if !d.waitForMaster(ctx) {
		return
	}
	for {
		if ctx.Err() != nil {
			return
		}

		disks, err := d.engine.GetAllDataDirInfo(ctx)
		if err != nil {
			log.Warn("disk state collection failed, skipping this round", zap.Error(err))
		} else {
			req := &ReportRequest{Backend: d.backend, Disks: toDiskInfoMap(disks)}
			if err := d.master.Report(ctx, req); err != nil {
				d.metrics.reportFailures.WithLabelValues("disk").Inc()
				log.Warn("disk report rpc failed", zap.Error(err))
			} else {
				log.Debug("disk report sent", zap.Int("dirs", len(disks)), zap.String("capacity", humanizeDiskCapacity(disks)))
			}
		}

		d.engine.WaitForReportNotify(ctx, d.cfg.ReportDiskIntervalSeconds, false)
	}
}

// runTabletReportLoop reports all tablet infos plus the current
// report-version snapshot, waking either on the configured interval or an
// early storage-engine notification.
func (d *Dispatcher) runTabletReportLoop(ctx context.Context) {
	if !d.waitForMaster(ctx) {
		return
	}
	for {
		if ctx.Err() != nil {
			return
		}

		tablets, err := d.engine.ReportAllTabletsInfo(ctx)
		if err != nil {
			log.Warn("tablet state collection failed, skipping this round", zap.Error(err))
		} else {
			version := d.version.Load()
			req := &ReportRequest{
				Backend:       d.backend,
				Tablets:       toTabletInfoSlice(tablets),
				ReportVersion: &version,
			}
			if err := d.master.Report(ctx, req); err != nil {
				d.metrics.reportFailures.WithLabelValues("tablet").Inc()
				log.Warn("tablet report rpc failed", zap.Error(err))
			} else {
				d.version.Bump()
				d.metrics.reportVersion.Set(float64(d.version.Load()))
			}
		}

		d.engine.WaitForReportNotify(ctx, d.cfg.ReportTabletIntervalSeconds, true)
	}
}

// humanizeDiskCapacity renders the total available capacity across all
// reported data directories for a log line, e.g. "12 GB".
func humanizeDiskCapacity(disks map[string]enginefacade.DiskInfo) string {
	var total uint64
	for _, d := range disks {
		if d.AvailableCapacity > 0 {
			total += uint64(d.AvailableCapacity)
		}
	}
	return humanize.Bytes(total)
}

func toDiskInfoMap(in map[string]enginefacade.DiskInfo) map[string]DiskInfo {
	out := make(map[string]DiskInfo, len(in))
	for path, d := range in {
		out[path] = DiskInfo{
			RootPath:          d.RootPath,
			PathHash:          d.PathHash,
			TotalCapacity:     d.TotalCapacity,
			DataUsedCapacity:  d.DataUsedCapacity,
			AvailableCapacity: d.AvailableCapacity,
			Used:              d.Usable,
		}
	}
	return out
}

func toTabletInfoSlice(in []enginefacade.TabletInfo) []TabletInfo {
	out := make([]TabletInfo, len(in))
	for i, t := range in {
		out[i] = TabletInfo{
			TabletID:   t.TabletID,
			SchemaHash: t.SchemaHash,
			Version:    t.Version,
			RowCount:   t.RowCount,
			DataSize:   t.DataSize,
		}
	}
	return out
}
