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

package logutil

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pingcap/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLoggerAndSetLevel(t *testing.T) {
	cfg := &Config{
		Level: "warn",
		File:  filepath.Join(t.TempDir(), "agentd.log"),
	}
	cfg.Adjust()
	require.NoError(t, InitLogger(cfg))
	require.Equal(t, zapcore.WarnLevel, log.GetLevel())

	require.NoError(t, SetLogLevel("info"))
	require.Equal(t, zapcore.InfoLevel, log.GetLevel())

	require.Error(t, SetLogLevel("not-a-level"))
}

func TestZapErrorFilter(t *testing.T) {
	err := errors.New("boom")
	require.Equal(t, zap.Error(err), ZapErrorFilter(err))
	require.Equal(t, zap.Error(nil), ZapErrorFilter(err, err))
	require.Equal(t, zap.Error(nil), ZapErrorFilter(context.Canceled, context.Canceled))
	require.Equal(t, zap.Error(err), ZapErrorFilter(err, context.Canceled))
}

func TestWithFieldsRoundTrip(t *testing.T) {
	ctx := WithFields(context.Background(), zap.Int64("signature", 7))
	fields := FieldsFromContext(ctx)
	require.Len(t, fields, 1)
	require.Equal(t, int64(7), fields[0].Integer)
}
