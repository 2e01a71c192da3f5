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

// selectIndex implements the fair-share selector. It is invoked only for
// the PUSH pool; every other pool dequeues strict FIFO.
// queue must be non-empty. workerCount is the PUSH pool's total worker
// count (both HIGH and NORMAL workers share the same denominator). Returns
// -1 when nothing is eligible for this worker right now.
func selectIndex(reg *Registry, queue []*TaskRequest, workerPriority Priority, workerCount int) int {
	if workerPriority == High {
		for i, t := range queue {
			if t.Priority == High {
				return i
			}
		}
		return -1
	}

	improper := make(map[string]struct{})
	for i, t := range queue {
		u := t.User()
		if _, skip := improper[u]; skip {
			continue
		}

		running := reg.runningCount(u)
		if running == 0 {
			reg.incrementRunning(u)
			return i
		}

		totalRate := reg.totalRate(u)
		runningRate := float64(running+1) / float64(workerCount)
		if runningRate <= totalRate {
			reg.incrementRunning(u)
			return i
		}
		improper[u] = struct{}{}
	}

	// Fallback: guarantee forward progress when every user is over quota.
	reg.incrementRunning(queue[0].User())
	return 0
}
