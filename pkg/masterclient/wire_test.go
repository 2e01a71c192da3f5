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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentd/taskdispatcher/pkg/agent"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	in := &FinishTaskWire{TaskType: "PUSH", Signature: 42, StatusCode: "OK"}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	out := &FinishTaskWire{}
	require.NoError(t, c.Unmarshal(data, out))
	require.Equal(t, in.Signature, out.Signature)
	require.Equal(t, in.StatusCode, out.StatusCode)
	require.Equal(t, jsonCodecName, c.Name())
}

func TestToWireFinishTask(t *testing.T) {
	version := int64(100)
	req := &agent.FinishTaskRequest{
		Backend:       agent.Backend{Host: "10.0.0.1", BePort: 9060},
		Kind:          agent.KindCreateTablet,
		Signature:     7,
		Status:        agent.TaskStatus{Code: agent.StatusOK},
		ReportVersion: &version,
		FinishTabletInfos: []agent.TabletInfo{
			{TabletID: 1, SchemaHash: 2, Version: 3},
		},
		TabletFiles: map[int64][]string{1: {"a.dat", "b.dat"}},
	}

	w := toWireFinishTask(req)
	require.Equal(t, "CREATE_TABLET", w.TaskType)
	require.Equal(t, int64(7), w.Signature)
	require.Equal(t, "OK", w.StatusCode)
	require.Equal(t, &version, w.ReportVersion)
	require.Len(t, w.FinishTabletInfos, 1)
	require.Equal(t, []string{"a.dat", "b.dat"}, w.TabletFiles["1"])
}

func TestToWireReport(t *testing.T) {
	req := &agent.ReportRequest{
		Backend: agent.Backend{Host: "10.0.0.1"},
		Tasks:   map[agent.TaskKind][]int64{agent.KindPush: {1, 2, 3}},
	}
	w := toWireReport(req)
	require.Equal(t, []int64{1, 2, 3}, w.Tasks["PUSH"])
}
