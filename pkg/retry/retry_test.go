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

package retry

import (
	"context"
	"errors"
	"testing"

	pingcaperrors "github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithMaxTries(3), WithBackoffBaseDelay(1), WithBackoffMaxDelay(2))
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestDoExhaustsRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		return errors.New("permanent")
	}, WithMaxTries(3), WithBackoffBaseDelay(1), WithBackoffMaxDelay(2))
	require.Error(t, err)
	require.Equal(t, 3, attempts)
}

func TestDoRespectsIsRetryableErr(t *testing.T) {
	sentinel := errors.New("do not retry me")
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		return sentinel
	}, WithMaxTries(5), WithIsRetryableErr(func(err error) bool { return err != sentinel }))
	require.Error(t, err)
	require.Equal(t, sentinel, pingcaperrors.Cause(err))
	require.Equal(t, 1, attempts)
}

func TestDoCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, func() error {
		return errors.New("should not run")
	})
	require.Error(t, err)
}
