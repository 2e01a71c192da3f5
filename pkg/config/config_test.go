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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAndAdjustRejectsMissingMasterAddr(t *testing.T) {
	c := GetDefaultConfig()
	err := c.ValidateAndAdjust()
	require.Error(t, err)
}

func TestValidateAndAdjustFillsDefaults(t *testing.T) {
	c := GetDefaultConfig()
	c.Master.Addr = "127.0.0.1:9020"
	require.NoError(t, c.ValidateAndAdjust())
	require.Equal(t, defaultMasterDialTimeout, c.Master.DialTimeout)
	require.Greater(t, c.ReportTaskIntervalSeconds, 0)
}

func TestValidateAndAdjustRejectsZeroWorkerCount(t *testing.T) {
	c := GetDefaultConfig()
	c.Master.Addr = "127.0.0.1:9020"
	c.Pools["push"] = PoolConfig{WorkerCount: 0}
	require.Error(t, c.ValidateAndAdjust())
}

func TestFromFileRoundTrip(t *testing.T) {
	c := GetDefaultConfig()
	c.Master.Addr = "127.0.0.1:9020"
	toml, err := c.Toml()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "agentd.toml")
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o600))

	loaded := &Config{}
	require.NoError(t, loaded.FromFile(path))
	require.Equal(t, "127.0.0.1:9020", loaded.Master.Addr)
}

func TestFromFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not-a-real-key = 1\n"), 0o600))

	loaded := &Config{}
	require.Error(t, loaded.FromFile(path))
}
