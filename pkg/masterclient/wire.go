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

package masterclient

import (
	"context"
	"strconv"

	"google.golang.org/grpc"

	"github.com/agentd/taskdispatcher/pkg/agent"
)

// Ack is the empty acknowledgement every AgentService RPC returns; failure
// is carried as a transport/grpc-status error, not a payload field.
type Ack struct{}

// BackendWire mirrors agent.Backend on the wire.
type BackendWire struct {
	Host     string `json:"host"`
	BePort   int32  `json:"be_port"`
	HTTPPort int32  `json:"http_port"`
}

// TabletInfoWire mirrors agent.TabletInfo on the wire.
type TabletInfoWire struct {
	TabletID   int64 `json:"tablet_id"`
	SchemaHash int64 `json:"schema_hash"`
	Version    int64 `json:"version"`
	RowCount   int64 `json:"row_count"`
	DataSize   int64 `json:"data_size"`
}

// FinishTaskWire mirrors agent.FinishTaskRequest on the wire.
type FinishTaskWire struct {
	Backend   BackendWire `json:"backend"`
	TaskType  string      `json:"task_type"`
	Signature int64       `json:"signature"`

	StatusCode string   `json:"status_code"`
	ErrorMsgs  []string `json:"error_msgs,omitempty"`

	ReportVersion       *int64                    `json:"report_version,omitempty"`
	FinishTabletInfos   []TabletInfoWire          `json:"finish_tablet_infos,omitempty"`
	ErrorTabletIDs      []int64                   `json:"error_tablet_ids,omitempty"`
	RequestVersion      *int64                    `json:"request_version,omitempty"`
	RequestVersionHash  *int64                    `json:"request_version_hash,omitempty"`
	TabletChecksum      *uint32                   `json:"tablet_checksum,omitempty"`
	SnapshotPath        *string                   `json:"snapshot_path,omitempty"`
	SnapshotFiles       []string                  `json:"snapshot_files,omitempty"`
	TabletFiles         map[string][]string       `json:"tablet_files,omitempty"`
	DownloadedTabletIDs []int64                   `json:"downloaded_tablet_ids,omitempty"`
}

// DiskInfoWire mirrors agent.DiskInfo on the wire.
type DiskInfoWire struct {
	RootPath          string `json:"root_path"`
	PathHash          int64  `json:"path_hash"`
	TotalCapacity     uint64 `json:"total_capacity"`
	DataUsedCapacity  uint64 `json:"data_used_capacity"`
	AvailableCapacity uint64 `json:"available_capacity"`
	Used              bool   `json:"used"`
}

// ReportWire mirrors agent.ReportRequest on the wire.
type ReportWire struct {
	Backend       BackendWire             `json:"backend"`
	ForceRecovery bool                    `json:"force_recovery"`
	Tasks         map[string][]int64      `json:"tasks,omitempty"`
	Disks         map[string]DiskInfoWire `json:"disks,omitempty"`
	Tablets       []TabletInfoWire        `json:"tablets,omitempty"`
	ReportVersion *int64                  `json:"report_version,omitempty"`
}

// AgentServiceClient is the RPC surface the control plane exposes for
// agent reporting. The real schema lives on the master side; this client
// stub only needs to agree on method names and wire shapes.
type AgentServiceClient interface {
	FinishTask(ctx context.Context, in *FinishTaskWire, opts ...grpc.CallOption) (*Ack, error)
	Report(ctx context.Context, in *ReportWire, opts ...grpc.CallOption) (*Ack, error)
}

type agentServiceClient struct {
	cc *grpc.ClientConn
}

// NewAgentServiceClient wraps an established connection.
func NewAgentServiceClient(cc *grpc.ClientConn) AgentServiceClient {
	return &agentServiceClient{cc: cc}
}

func (c *agentServiceClient) FinishTask(ctx context.Context, in *FinishTaskWire, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/agentd.AgentService/FinishTask", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentServiceClient) Report(ctx context.Context, in *ReportWire, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/agentd.AgentService/Report", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func toWireFinishTask(req *agent.FinishTaskRequest) *FinishTaskWire {
	w := &FinishTaskWire{
		Backend: BackendWire{
			Host:     req.Backend.Host,
			BePort:   req.Backend.BePort,
			HTTPPort: req.Backend.HTTPPort,
		},
		TaskType:       req.Kind.String(),
		Signature:      req.Signature,
		StatusCode:     req.Status.Code.String(),
		ErrorMsgs:      req.Status.ErrorMsgs,
		ReportVersion:  req.ReportVersion,
		ErrorTabletIDs: req.ErrorTabletIDs,
		RequestVersion: req.RequestVersion,
		RequestVersionHash: req.RequestVersionHash,
		TabletChecksum: req.TabletChecksum,
		SnapshotPath:   req.SnapshotPath,
		SnapshotFiles:  req.SnapshotFiles,
		DownloadedTabletIDs: req.DownloadedTabletIDs,
	}
	for _, t := range req.FinishTabletInfos {
		w.FinishTabletInfos = append(w.FinishTabletInfos, TabletInfoWire{
			TabletID: t.TabletID, SchemaHash: t.SchemaHash, Version: t.Version,
			RowCount: t.RowCount, DataSize: t.DataSize,
		})
	}
	if len(req.TabletFiles) > 0 {
		w.TabletFiles = make(map[string][]string, len(req.TabletFiles))
		for id, files := range req.TabletFiles {
			w.TabletFiles[strconv.FormatInt(id, 10)] = files
		}
	}
	return w
}

func toWireReport(req *agent.ReportRequest) *ReportWire {
	w := &ReportWire{
		Backend: BackendWire{
			Host:     req.Backend.Host,
			BePort:   req.Backend.BePort,
			HTTPPort: req.Backend.HTTPPort,
		},
		ForceRecovery: req.ForceRecovery,
		ReportVersion: req.ReportVersion,
	}
	if len(req.Tasks) > 0 {
		w.Tasks = make(map[string][]int64, len(req.Tasks))
		for kind, sigs := range req.Tasks {
			w.Tasks[kind.String()] = sigs
		}
	}
	if len(req.Disks) > 0 {
		w.Disks = make(map[string]DiskInfoWire, len(req.Disks))
		for path, d := range req.Disks {
			w.Disks[path] = DiskInfoWire{
				RootPath: d.RootPath, PathHash: d.PathHash,
				TotalCapacity: d.TotalCapacity, DataUsedCapacity: d.DataUsedCapacity,
				AvailableCapacity: d.AvailableCapacity, Used: d.Used,
			}
		}
	}
	for _, t := range req.Tablets {
		w.Tablets = append(w.Tablets, TabletInfoWire{
			TabletID: t.TabletID, SchemaHash: t.SchemaHash, Version: t.Version,
			RowCount: t.RowCount, DataSize: t.DataSize,
		})
	}
	return w
}
