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

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/agentd/taskdispatcher/pkg/retry"
)

// taskFinishMaxRetry bounds the finish RPC.
const taskFinishMaxRetry = 3

// finishBackoffMillis is the fixed brief pause between finish RPC
// attempts. The original sleeps a constant short interval rather than
// backing off exponentially; backoffBase == backoffCap keeps the shared
// retry.Do helper from growing the pause, though its backoff still
// applies its default random jitter around 200ms.
const finishBackoffMillis = 200

// Finisher reports task outcomes to the master with bounded retry. Success
// is defined purely by transport success: the master's own status code is
// logged but never treated as retryable.
type Finisher struct {
	client MasterClient
}

// NewFinisher wraps client with the dispatcher's bounded-retry policy.
func NewFinisher(client MasterClient) *Finisher {
	return &Finisher{client: client}
}

// Finish attempts the finish RPC up to taskFinishMaxRetry times. After
// exhausting retries the failure is logged and swallowed: the task still
// proceeds to registry removal under at-least-once semantics, and the
// task-report loop will keep re-advertising the signature until the master
// observes it.
func (f *Finisher) Finish(ctx context.Context, req *FinishTaskRequest) {
	err := retry.Do(ctx, func() error {
		return f.client.FinishTask(ctx, req)
	}, retry.WithMaxTries(taskFinishMaxRetry), retry.WithBackoffBaseDelay(finishBackoffMillis), retry.WithBackoffMaxDelay(finishBackoffMillis))
	if err != nil {
		log.Warn("finish task rpc failed after max retries",
			zap.Stringer("kind", req.Kind),
			zap.Int64("signature", req.Signature),
			zap.Error(err))
		return
	}
	if req.Status.Code != StatusOK {
		log.Info("task finished with non-OK status",
			zap.Stringer("kind", req.Kind),
			zap.Int64("signature", req.Signature),
			zap.Stringer("status", req.Status.Code))
	}
}
