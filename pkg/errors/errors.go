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

// Package errors holds the normalized error catalog for the agent task
// dispatcher, following the RFC-coded error convention used throughout the
// rest of the stack.
package errors

import "github.com/pingcap/errors"

// Errors surfaced by the dispatcher. Note that none of these cross the
// wire directly: a task failure is reported to the master as a
// TStatusCode-equivalent in the finish envelope (see pkg/agent/status.go);
// these values exist for internal logging, tracing and tests.
var (
	ErrTaskAlreadyRunning = errors.Normalize(
		"task %s/%d is already queued or running",
		errors.RFCCodeText("AGENTD:ErrTaskAlreadyRunning"),
	)
	ErrUnknownTaskKind = errors.Normalize(
		"unknown task kind: %s",
		errors.RFCCodeText("AGENTD:ErrUnknownTaskKind"),
	)
	ErrInvalidAlterTaskType = errors.Normalize(
		"alter task type invalid, signature: %d",
		errors.RFCCodeText("AGENTD:ErrInvalidAlterTaskType"),
	)
	ErrInvalidPushType = errors.Normalize(
		"push request push_type invalid, signature: %d",
		errors.RFCCodeText("AGENTD:ErrInvalidPushType"),
	)
	ErrEngineCallFailed = errors.Normalize(
		"storage engine call failed: %s",
		errors.RFCCodeText("AGENTD:ErrEngineCallFailed"),
	)
	ErrPublishVersionFailed = errors.Normalize(
		"publish version failed after %d retries, transaction_id: %d",
		errors.RFCCodeText("AGENTD:ErrPublishVersionFailed"),
	)
	ErrFinishTaskFailed = errors.Normalize(
		"finish task rpc failed after %d retries, signature: %d",
		errors.RFCCodeText("AGENTD:ErrFinishTaskFailed"),
	)
	ErrReportFailed = errors.Normalize(
		"report rpc failed: %s",
		errors.RFCCodeText("AGENTD:ErrReportFailed"),
	)
	ErrMasterClientDial = errors.Normalize(
		"failed to dial master at %s: %s",
		errors.RFCCodeText("AGENTD:ErrMasterClientDial"),
	)
	ErrMoveDirFailed = errors.Normalize(
		"move dir failed, tablet: %d, job: %d",
		errors.RFCCodeText("AGENTD:ErrMoveDirFailed"),
	)
	ErrTabletNotFound = errors.Normalize(
		"tablet not found, tablet_id: %d, schema_hash: %d",
		errors.RFCCodeText("AGENTD:ErrTabletNotFound"),
	)
	ErrInvalidConfig = errors.Normalize(
		"invalid dispatcher config: %s",
		errors.RFCCodeText("AGENTD:ErrInvalidConfig"),
	)
)
