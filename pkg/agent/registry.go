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

import "sync"

// Registry is the process-wide signature deduplication table plus the
// per-user fair-share counters for the PUSH kind. It is guarded by two
// independent locks that are never held simultaneously: mu guards live and
// the total counters, runningMu guards running_by_user. release acquires
// them sequentially, never nested.
type Registry struct {
	mu           sync.Mutex
	live         map[TaskKind]map[int64]struct{}
	totalByUser  map[string]uint64
	totalByKind  uint64

	runningMu   sync.Mutex
	runningByUser map[string]uint64
}

// NewRegistry returns an empty registry ready for use.
func NewRegistry() *Registry {
	return &Registry{
		live:          make(map[TaskKind]map[int64]struct{}),
		totalByUser:   make(map[string]uint64),
		runningByUser: make(map[string]uint64),
	}
}

// Admit tries to add (kind, sig) to the live set. It returns false without
// side effects if the pair is already live (I2). For PUSH-family kinds it
// additionally bumps the submission totals used by the fair-share
// selector.
func (r *Registry) Admit(kind TaskKind, sig int64, user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.live[kind]
	if !ok {
		set = make(map[int64]struct{})
		r.live[kind] = set
	}
	if _, dup := set[sig]; dup {
		return false
	}
	set[sig] = struct{}{}

	if fairShareKind(kind) == KindPush {
		r.totalByUser[user]++
		r.totalByKind++
	}
	return true
}

// Release erases (kind, sig) from the live set. For PUSH-family kinds it
// also decrements the submission totals and, if the task had actually been
// selected to run, the running count. Release must only be called once per
// successful Admit.
func (r *Registry) Release(kind TaskKind, sig int64, user string, wasRunning bool) {
	r.mu.Lock()
	if set, ok := r.live[kind]; ok {
		delete(set, sig)
	}
	isPush := fairShareKind(kind) == KindPush
	if isPush {
		if r.totalByUser[user] > 0 {
			r.totalByUser[user]--
		}
		if r.totalByKind > 0 {
			r.totalByKind--
		}
	}
	r.mu.Unlock()

	if isPush && wasRunning {
		r.runningMu.Lock()
		if r.runningByUser[user] > 0 {
			r.runningByUser[user]--
		}
		r.runningMu.Unlock()
	}
}

// SnapshotLive returns a deep copy of the live signature sets, one entry
// per kind, for use by the task-list report loop.
func (r *Registry) SnapshotLive() map[TaskKind][]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[TaskKind][]int64, len(r.live))
	for kind, set := range r.live {
		sigs := make([]int64, 0, len(set))
		for sig := range set {
			sigs = append(sigs, sig)
		}
		out[kind] = sigs
	}
	return out
}

// totalRate returns total_by_user[u] / total_by_kind for PUSH, with a
// division guard.
func (r *Registry) totalRate(user string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.totalByKind == 0 {
		return 0
	}
	return float64(r.totalByUser[user]) / float64(r.totalByKind)
}

// runningCount returns running_by_user[PUSH][user].
func (r *Registry) runningCount(user string) uint64 {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()
	return r.runningByUser[user]
}

// incrementRunning bumps running_by_user[PUSH][user] by one, called by the
// selector at the moment a PUSH task is chosen to run.
func (r *Registry) incrementRunning(user string) {
	r.runningMu.Lock()
	r.runningByUser[user]++
	r.runningMu.Unlock()
}
