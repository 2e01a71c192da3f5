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

// Package config holds the agent task dispatcher's on-disk TOML
// configuration: pool sizing, report intervals, master connectivity and
// logging.
package config

import (
	"bytes"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	agenterrors "github.com/agentd/taskdispatcher/pkg/errors"
	"github.com/agentd/taskdispatcher/pkg/logutil"
)

const (
	defaultReportTaskIntervalSeconds   = 10
	defaultReportDiskIntervalSeconds   = 60
	defaultReportTabletIntervalSeconds = 60
	defaultMasterDialTimeout           = 5 * time.Second
	defaultFinishMaxRetry              = 3
)

// PoolConfig fixes one task kind's worker count and, for PUSH, how many of
// those workers elect themselves HIGH priority.
type PoolConfig struct {
	WorkerCount  int `toml:"worker-count" json:"worker-count"`
	HighPriority int `toml:"high-priority-workers" json:"high-priority-workers"`
}

// Config is the agent task dispatcher's full process configuration.
type Config struct {
	LogConf logutil.Config `toml:"log" json:"log"`

	Backend BackendConfig `toml:"backend" json:"backend"`
	Master  MasterConfig  `toml:"master" json:"master"`

	Pools map[string]PoolConfig `toml:"pools" json:"pools"`

	ReportTaskIntervalSeconds   int `toml:"report-task-interval-seconds" json:"report-task-interval-seconds"`
	ReportDiskIntervalSeconds   int `toml:"report-disk-interval-seconds" json:"report-disk-interval-seconds"`
	ReportTabletIntervalSeconds int `toml:"report-tablet-interval-seconds" json:"report-tablet-interval-seconds"`

	FinishMaxRetry int `toml:"finish-max-retry" json:"finish-max-retry"`
}

// BackendConfig is this node's externally-advertised identity.
type BackendConfig struct {
	Host     string `toml:"host" json:"host"`
	BePort   int32  `toml:"be-port" json:"be-port"`
	HTTPPort int32  `toml:"http-port" json:"http-port"`
}

// MasterConfig is how to reach the control plane.
type MasterConfig struct {
	Addr          string        `toml:"addr" json:"addr"`
	DialTimeout   time.Duration `toml:"-" json:"-"`
	DialTimeoutStr string       `toml:"dial-timeout" json:"dial-timeout"`
}

// GetDefaultConfig returns a config with every field defaulted, matching a
// single-node development deployment.
func GetDefaultConfig() *Config {
	return &Config{
		LogConf: logutil.Config{
			Level: "info",
		},
		Pools: map[string]PoolConfig{
			"create-tablet":          {WorkerCount: 3},
			"drop-tablet":            {WorkerCount: 3},
			"alter-tablet":           {WorkerCount: 3},
			"push":                   {WorkerCount: 3, HighPriority: 1},
			"realtime-push":          {WorkerCount: 3, HighPriority: 1},
			"delete":                 {WorkerCount: 3},
			"publish-version":        {WorkerCount: 8},
			"clear-alter-task":       {WorkerCount: 1},
			"clear-transaction-task": {WorkerCount: 1},
			"clone":                  {WorkerCount: 3},
			"storage-medium-migrate": {WorkerCount: 1},
			"check-consistency":      {WorkerCount: 1},
			"upload":                 {WorkerCount: 1},
			"download":               {WorkerCount: 1},
			"make-snapshot":          {WorkerCount: 1},
			"release-snapshot":       {WorkerCount: 1},
			"move":                   {WorkerCount: 1},
			"recover-tablet":         {WorkerCount: 1},
		},
		ReportTaskIntervalSeconds:   defaultReportTaskIntervalSeconds,
		ReportDiskIntervalSeconds:   defaultReportDiskIntervalSeconds,
		ReportTabletIntervalSeconds: defaultReportTabletIntervalSeconds,
		FinishMaxRetry:              defaultFinishMaxRetry,
		Master: MasterConfig{
			DialTimeoutStr: defaultMasterDialTimeout.String(),
		},
	}
}

// ValidateAndAdjust fills computed fields and rejects an unusable config.
func (c *Config) ValidateAndAdjust() error {
	if c.ReportTaskIntervalSeconds <= 0 {
		c.ReportTaskIntervalSeconds = defaultReportTaskIntervalSeconds
	}
	if c.ReportDiskIntervalSeconds <= 0 {
		c.ReportDiskIntervalSeconds = defaultReportDiskIntervalSeconds
	}
	if c.ReportTabletIntervalSeconds <= 0 {
		c.ReportTabletIntervalSeconds = defaultReportTabletIntervalSeconds
	}
	if c.FinishMaxRetry <= 0 {
		c.FinishMaxRetry = defaultFinishMaxRetry
	}
	if c.Master.Addr == "" {
		return agenterrors.ErrInvalidConfig.GenWithStackByArgs("master.addr must be set")
	}

	timeoutStr := c.Master.DialTimeoutStr
	if timeoutStr == "" {
		timeoutStr = defaultMasterDialTimeout.String()
	}
	d, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return agenterrors.ErrInvalidConfig.GenWithStackByArgs("master.dial-timeout: " + err.Error())
	}
	c.Master.DialTimeout = d

	for name, pc := range c.Pools {
		if pc.WorkerCount <= 0 {
			return agenterrors.ErrInvalidConfig.GenWithStackByArgs("pool " + name + " must have worker-count > 0")
		}
	}
	return nil
}

// Toml renders the config in TOML form.
func (c *Config) Toml() (string, error) {
	var b bytes.Buffer
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return "", err
	}
	return b.String(), nil
}

// FromFile loads and merges a TOML config file into c, rejecting unknown
// keys.
func (c *Config) FromFile(path string) error {
	metaData, err := toml.DecodeFile(path, c)
	if err != nil {
		return agenterrors.ErrInvalidConfig.GenWithStackByArgs(err.Error())
	}
	return checkUndecodedItems(metaData)
}

func checkUndecodedItems(metaData toml.MetaData) error {
	undecoded := metaData.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	items := make([]string, 0, len(undecoded))
	for _, item := range undecoded {
		items = append(items, item.String())
	}
	return agenterrors.ErrInvalidConfig.GenWithStackByArgs("unknown config items: " + strings.Join(items, ","))
}
