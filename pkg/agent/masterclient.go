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

import "context"

// MasterClient is the RPC transport the dispatcher uses to report task
// outcomes and periodic state: it transports finish and report requests,
// retried at this layer. The only implementation shipped is the gRPC
// client in pkg/masterclient; tests use an in-memory fake.
type MasterClient interface {
	FinishTask(ctx context.Context, req *FinishTaskRequest) error
	Report(ctx context.Context, req *ReportRequest) error
}
