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

// Package logutil bootstraps the process-wide zap logger used by every
// package in the dispatcher.
package logutil

import (
	"context"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the logging configuration accepted by InitLogger. It mirrors
// the shape the `agentd` command line and TOML config file fill in.
type Config struct {
	// File is the log file path; empty means stderr only.
	File string
	// Level is one of debug/info/warn/error.
	Level string
	// FileMaxSize is the maximum size in megabytes of a log file before
	// it gets rotated.
	FileMaxSize int
	// FileMaxDays is the maximum number of days to retain rotated files.
	FileMaxDays int
	// FileMaxBackups is the maximum number of rotated files to retain.
	FileMaxBackups int
	// SamplingInitial and SamplingThereafter configure zap's sampling
	// core: the first N identical messages per second are logged, then
	// every Mth thereafter.
	SamplingInitial    int
	SamplingThereafter int
}

// Adjust fills in defaults for zero-valued fields.
func (c *Config) Adjust() {
	if len(c.Level) == 0 {
		c.Level = "info"
	}
	if c.FileMaxSize == 0 {
		c.FileMaxSize = 300
	}
	if c.FileMaxDays == 0 {
		c.FileMaxDays = 0
	}
	if c.FileMaxBackups == 0 {
		c.FileMaxBackups = 0
	}
}

// InitLogger initializes the global `github.com/pingcap/log` logger that
// every dispatcher package writes through.
func InitLogger(cfg *Config) error {
	logCfg := &log.Config{
		Level: cfg.Level,
		File: log.FileLogConfig{
			Filename:   cfg.File,
			MaxSize:    cfg.FileMaxSize,
			MaxDays:    cfg.FileMaxDays,
			MaxBackups: cfg.FileMaxBackups,
		},
	}

	var opts []zap.Option
	if cfg.SamplingInitial > 0 || cfg.SamplingThereafter > 0 {
		initial := cfg.SamplingInitial
		thereafter := cfg.SamplingThereafter
		if initial == 0 {
			initial = 100
		}
		if thereafter == 0 {
			thereafter = 100
		}
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewSamplerWithOptions(core, time.Second, initial, thereafter)
		}))
	}

	logger, props, err := log.InitLogger(logCfg, opts...)
	if err != nil {
		return err
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// SetLogLevel dynamically adjusts the global logger's level.
func SetLogLevel(level string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	log.SetLevel(l)
	return nil
}

// ZapErrorFilter strips `zap.Error` fields for errors that match (or wrap)
// any of the given sentinel errors, so routine cancellations don't spam
// logs at error level.
func ZapErrorFilter(err error, filters ...error) zap.Field {
	cause := err
	for _, filter := range filters {
		if cause == filter || errorIs(cause, filter) {
			return zap.Error(nil)
		}
	}
	return zap.Error(err)
}

func errorIs(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// loggerFieldsKey is the context key under which WithFields stores logger
// fields for FieldsFromContext to read back.
type loggerFieldsKey struct{}

// WithFields attaches structured fields to the context for components that
// thread a request-scoped logger (e.g. per-task log lines).
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, loggerFieldsKey{}, fields)
}

// FieldsFromContext returns the fields previously attached with WithFields.
func FieldsFromContext(ctx context.Context) []zap.Field {
	fields, _ := ctx.Value(loggerFieldsKey{}).([]zap.Field)
	return fields
}
