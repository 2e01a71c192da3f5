// Copyright 2021 PingCAP, Inc.
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

package util

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindProxyFields(t *testing.T) {
	keys := []string{"http_proxy", "https_proxy", "no_proxy"}
	saved := make(map[string]string, len(keys))
	for _, k := range keys {
		saved[k] = os.Getenv(k)
		require.NoError(t, os.Unsetenv(k))
	}
	defer func() {
		for _, k := range keys {
			if saved[k] != "" {
				_ = os.Setenv(k, saved[k])
			}
		}
	}()

	require.Empty(t, findProxyFields())

	require.NoError(t, os.Setenv("http_proxy", "http://127.0.0.1:8080"))
	fields := findProxyFields()
	require.Len(t, fields, 1)
	require.Equal(t, "http_proxy", fields[0].Key)
}

func TestStrictDecodeFileRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.toml"
	require.NoError(t, os.WriteFile(path, []byte("known = \"x\"\nunknown-item = 1\n"), 0o600))

	var cfg struct {
		Known string `toml:"known"`
	}
	err := StrictDecodeFile(path, "agentd", &cfg)
	require.Error(t, err)
}

func TestStrictDecodeFileIgnoresListedItems(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ok.toml"
	require.NoError(t, os.WriteFile(path, []byte("known = \"x\"\nlegacy = 1\n"), 0o600))

	var cfg struct {
		Known string `toml:"known"`
	}
	require.NoError(t, StrictDecodeFile(path, "agentd", &cfg, "legacy"))
	require.Equal(t, "x", cfg.Known)
}
