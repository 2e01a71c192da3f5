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

	"github.com/stretchr/testify/require"

	"github.com/agentd/taskdispatcher/pkg/agent/enginefacade"
	"github.com/agentd/taskdispatcher/pkg/agent/enginefacade/fake"
)

func TestStatusForMapsAlreadyExistsToOK(t *testing.T) {
	require.Equal(t, StatusOK, statusFor(enginefacade.StatusAlreadyExists, false, "clone").Code)
}

func TestStatusForNotFoundHonorsCallerPolicy(t *testing.T) {
	require.Equal(t, StatusOK, statusFor(enginefacade.StatusNotFound, true, "drop_tablet").Code)
	require.Equal(t, StatusRuntimeError, statusFor(enginefacade.StatusNotFound, false, "drop_tablet").Code)
}

func TestCloneCallbackIsIdempotentOnAlreadyExists(t *testing.T) {
	engine := fake.NewEngine()
	calls := 0
	engine.CloneFunc = func(tabletID, schemaHash int64) (enginefacade.EngineStatus, []enginefacade.TabletInfo) {
		calls++
		return enginefacade.StatusAlreadyExists, []enginefacade.TabletInfo{{TabletID: tabletID, SchemaHash: schemaHash}}
	}
	client := &fakeMasterClient{}
	d, _, _ := newTestDispatcher(t, smallConfig(KindClone, 1, 0))
	d.engine = engine
	d.master = client
	d.finisher = NewFinisher(client)
	defer runDispatcher(t, d)()

	for _, sig := range []int64{1, 2} {
		d.Submit(&TaskRequest{Kind: KindClone, Signature: sig, Clone: &CloneRequest{TabletID: 7, SchemaHash: 1}})
	}

	require.Eventually(t, func() bool { return client.finishCalls == 2 }, time.Second, time.Millisecond)
	require.Equal(t, 2, calls)
	require.Equal(t, "OK", client.getLastFinishReq().Status.Code.String())
	require.Len(t, client.getLastFinishReq().FinishTabletInfos, 1)
}

func TestPublishVersionCallbackRetriesThenSucceeds(t *testing.T) {
	engine := fake.NewEngine()
	attempt := 0
	engine.PublishVersionFunc = func(int64) (enginefacade.EngineStatus, []int64) {
		attempt++
		if attempt < 3 {
			return enginefacade.StatusError, nil
		}
		return enginefacade.StatusSuccess, nil
	}
	client := &fakeMasterClient{}
	d, _, _ := newTestDispatcher(t, smallConfig(KindPublishVersion, 1, 0))
	d.engine = engine
	d.master = client
	d.finisher = NewFinisher(client)
	defer runDispatcher(t, d)()

	d.Submit(&TaskRequest{
		Kind: KindPublishVersion, Signature: 9,
		PublishVersion: &PublishVersionRequest{TransactionID: 1000},
	})

	require.Eventually(t, func() bool { return client.finishCalls == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 3, attempt)
	require.Equal(t, "OK", client.getLastFinishReq().Status.Code.String())
	require.NotNil(t, client.getLastFinishReq().ReportVersion)
}

func TestPublishVersionCallbackExhaustsRetriesAndReportsError(t *testing.T) {
	engine := fake.NewEngine()
	engine.PublishVersionFunc = func(int64) (enginefacade.EngineStatus, []int64) {
		return enginefacade.StatusError, []int64{5, 6}
	}
	client := &fakeMasterClient{}
	d, _, _ := newTestDispatcher(t, smallConfig(KindPublishVersion, 1, 0))
	d.engine = engine
	d.master = client
	d.finisher = NewFinisher(client)
	defer runDispatcher(t, d)()

	d.Submit(&TaskRequest{
		Kind: KindPublishVersion, Signature: 9,
		PublishVersion: &PublishVersionRequest{TransactionID: 1000},
	})

	require.Eventually(t, func() bool { return client.finishCalls == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, "RUNTIME_ERROR", client.getLastFinishReq().Status.Code.String())
	require.ElementsMatch(t, []int64{5, 6}, client.getLastFinishReq().ErrorTabletIDs)
}

func TestCheckConsistencyCallbackSetsRequestVersionOnSuccess(t *testing.T) {
	engine := fake.NewEngine()
	client := &fakeMasterClient{}
	d, _, _ := newTestDispatcher(t, smallConfig(KindCheckConsistency, 1, 0))
	d.engine = engine
	d.master = client
	d.finisher = NewFinisher(client)
	defer runDispatcher(t, d)()

	d.Submit(&TaskRequest{
		Kind: KindCheckConsistency, Signature: 1,
		CheckConsistency: &CheckConsistencyRequest{TabletID: 7, SchemaHash: 1, Version: 5, VersionHash: 9},
	})

	require.Eventually(t, func() bool { return client.finishCalls == 1 }, time.Second, time.Millisecond)
	finish := client.getLastFinishReq()
	require.Equal(t, "OK", finish.Status.Code.String())
	require.NotNil(t, finish.RequestVersion)
	require.Equal(t, int64(5), *finish.RequestVersion)
	require.NotNil(t, finish.RequestVersionHash)
	require.Equal(t, int64(9), *finish.RequestVersionHash)
	require.NotNil(t, finish.TabletChecksum)
}

func TestCheckConsistencyCallbackSetsRequestVersionOnFailure(t *testing.T) {
	engine := fake.NewEngine()
	engine.ChecksumFunc = func(int64, int64, int64, int64) (enginefacade.EngineStatus, uint32) {
		return enginefacade.StatusError, 0
	}
	client := &fakeMasterClient{}
	d, _, _ := newTestDispatcher(t, smallConfig(KindCheckConsistency, 1, 0))
	d.engine = engine
	d.master = client
	d.finisher = NewFinisher(client)
	defer runDispatcher(t, d)()

	d.Submit(&TaskRequest{
		Kind: KindCheckConsistency, Signature: 1,
		CheckConsistency: &CheckConsistencyRequest{TabletID: 7, SchemaHash: 1, Version: 5, VersionHash: 9},
	})

	require.Eventually(t, func() bool { return client.finishCalls == 1 }, time.Second, time.Millisecond)
	finish := client.getLastFinishReq()
	require.Equal(t, "RUNTIME_ERROR", finish.Status.Code.String())
	// request_version/request_version_hash/tablet_checksum are echoed back
	// even when the engine call fails, matching the original's unconditional
	// TFinishTaskRequest field assignment.
	require.NotNil(t, finish.RequestVersion)
	require.Equal(t, int64(5), *finish.RequestVersion)
	require.NotNil(t, finish.RequestVersionHash)
	require.Equal(t, int64(9), *finish.RequestVersionHash)
	require.NotNil(t, finish.TabletChecksum)
	require.Equal(t, uint32(0), *finish.TabletChecksum)
}

func TestDispatcherReleaseSkipsFinishWhenReportFalse(t *testing.T) {
	client := &fakeMasterClient{}
	d, _, _ := newTestDispatcher(t, smallConfig(KindPush, 1, 0))
	d.master = client
	d.finisher = NewFinisher(client)

	d.reg.Admit(KindPush, 1, "alice")
	d.release(context.Background(), nil, KindPush, 1, "alice", false)

	require.EqualValues(t, 0, client.finishCalls)
	snap := d.reg.SnapshotLive()
	require.Empty(t, snap[KindPush])
}
