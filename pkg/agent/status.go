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

import "github.com/agentd/taskdispatcher/pkg/agent/enginefacade"

func okStatus() TaskStatus {
	return TaskStatus{Code: StatusOK}
}

func analysisError(msg string) TaskStatus {
	return TaskStatus{Code: StatusAnalysisError, ErrorMsgs: []string{msg}}
}

func runtimeError(msg string) TaskStatus {
	return TaskStatus{Code: StatusRuntimeError, ErrorMsgs: []string{msg}}
}

// statusFor maps a coarse engine status to a task status. success and
// notFoundOK both map to StatusOK: "already exists" on clone and "not
// found" on drop are benign idempotent outcomes.
func statusFor(s enginefacade.EngineStatus, notFoundOK bool, op string) TaskStatus {
	switch s {
	case enginefacade.StatusSuccess, enginefacade.StatusAlreadyExists:
		return okStatus()
	case enginefacade.StatusNotFound:
		if notFoundOK {
			return okStatus()
		}
		return runtimeError(op + ": tablet not found")
	default:
		return runtimeError(op + ": engine call failed")
	}
}

func newFinish(kind TaskKind, sig int64, backend Backend, status TaskStatus) *FinishTaskRequest {
	return &FinishTaskRequest{
		Backend:   backend,
		Kind:      kind,
		Signature: sig,
		Status:    status,
	}
}
