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

package main

import (
	"time"

	"github.com/pingcap/failpoint"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/agentd/taskdispatcher/pkg/agent"
	"github.com/agentd/taskdispatcher/pkg/agent/enginefacade/fake"
	agentdconfig "github.com/agentd/taskdispatcher/pkg/config"
	"github.com/agentd/taskdispatcher/pkg/cmd/util"
	"github.com/agentd/taskdispatcher/pkg/masterclient"
	"github.com/agentd/taskdispatcher/pkg/version"
)

// poolNameToKind maps the kebab-case pool names used in the TOML config
// file to their agent.TaskKind, mirroring agent.DefaultConfig's own set of
// kinds.
var poolNameToKind = map[string]agent.TaskKind{
	"create-tablet":          agent.KindCreateTablet,
	"drop-tablet":            agent.KindDropTablet,
	"alter-tablet":           agent.KindAlterTablet,
	"push":                   agent.KindPush,
	"realtime-push":          agent.KindRealtimePush,
	"delete":                 agent.KindDelete,
	"publish-version":        agent.KindPublishVersion,
	"clear-alter-task":       agent.KindClearAlterTask,
	"clear-transaction-task": agent.KindClearTransactionTask,
	"clone":                  agent.KindClone,
	"storage-medium-migrate": agent.KindStorageMediumMigrate,
	"check-consistency":      agent.KindCheckConsistency,
	"upload":                 agent.KindUpload,
	"download":               agent.KindDownload,
	"make-snapshot":          agent.KindMakeSnapshot,
	"release-snapshot":       agent.KindReleaseSnapshot,
	"move":                   agent.KindMove,
	"recover-tablet":         agent.KindRecoverTablet,
}

// toDispatcherConfig translates the on-disk config into the shape
// agent.NewDispatcher expects. Unknown pool names are rejected up front
// rather than silently ignored, since a typo'd pool name would otherwise
// leave that task kind's queue never drained.
func toDispatcherConfig(c *agentdconfig.Config) (agent.Config, error) {
	cfg := agent.Config{
		Pools:                       make(map[agent.TaskKind]agent.PoolConfig, len(c.Pools)),
		ReportTaskIntervalSeconds:   c.ReportTaskIntervalSeconds,
		ReportDiskIntervalSeconds:   c.ReportDiskIntervalSeconds,
		ReportTabletIntervalSeconds: c.ReportTabletIntervalSeconds,
	}
	for name, pc := range c.Pools {
		kind, ok := poolNameToKind[name]
		if !ok {
			return agent.Config{}, poolNameError(name)
		}
		cfg.Pools[kind] = agent.PoolConfig{WorkerCount: pc.WorkerCount, HighPriority: pc.HighPriority}
	}
	return cfg, nil
}

type poolNameError string

func (e poolNameError) Error() string { return "unknown pool name in config: " + string(e) }

type serverOptions struct {
	configFile string
	config     *agentdconfig.Config
}

func newServerCommand() *cobra.Command {
	o := &serverOptions{config: agentdconfig.GetDefaultConfig()}

	cmd := &cobra.Command{
		Use:   "server",
		Short: "run the agent task dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}
	cmd.Flags().StringVar(&o.configFile, "config", "", "path to the agentd TOML config file")
	cmd.Flags().StringVar(&o.config.Master.Addr, "master-addr", "", "master gRPC address, e.g. 127.0.0.1:9020")
	cmd.Flags().StringVar(&o.config.Backend.Host, "backend-host", "", "this node's advertised host")

	return cmd
}

func (o *serverOptions) loadConfig(cmd *cobra.Command) error {
	if o.configFile != "" {
		if err := util.StrictDecodeFile(o.configFile, "agentd", o.config); err != nil {
			return err
		}
	}
	// Flags override file values only when explicitly set, matching the
	// precedence file < flags used by the rest of the config-loading
	// commands in this tree.
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "master-addr":
			o.config.Master.Addr = f.Value.String()
		case "backend-host":
			o.config.Backend.Host = f.Value.String()
		}
	})
	return o.config.ValidateAndAdjust()
}

func (o *serverOptions) run(cmd *cobra.Command) error {
	if err := o.loadConfig(cmd); err != nil {
		return err
	}

	ctx, cancel := util.InitCmd(cmd, &o.config.LogConf)
	defer cancel()

	version.LogVersionInfo()
	util.LogHTTPProxies()
	for _, path := range failpoint.List() {
		status, err := failpoint.Status(path)
		if err != nil {
			log.Error("fail to get failpoint status", zap.Error(err))
			continue
		}
		log.Info("failpoint enabled", zap.String("path", path), zap.String("status", status))
	}

	dispatcherCfg, err := toDispatcherConfig(o.config)
	if err != nil {
		return err
	}

	client, err := masterclient.NewClient(o.config.Master.Addr, o.config.Master.DialTimeout)
	if err != nil {
		return err
	}
	defer client.Close()

	// The storage engine and snapshot loader/manager are external
	// collaborators owned by the embedding backend process. Absent that
	// integration, agentd runs against the in-memory fake so the
	// dispatcher, its pools and its report loops are still fully
	// exercised end to end.
	engine := fake.NewEngine()

	metrics := agent.NewMetrics()
	d := agent.NewDispatcher(dispatcherCfg, agent.Deps{
		Backend: agent.Backend{
			Host:     o.config.Backend.Host,
			BePort:   o.config.Backend.BePort,
			HTTPPort: o.config.Backend.HTTPPort,
		},
		Master:  client,
		Engine:  engine,
		Loader:  fake.Loader{},
		SnapMgr: fake.Manager{},
		Metrics: metrics,
	})
	// The dispatcher's report loops wait for a first master heartbeat
	// before reporting; agentd has no separate heartbeat RPC of its own,
	// so it marks the master known once dialing configuration is valid.
	d.MarkMasterKnown()

	shutdown := make(chan struct{})
	util.InitSignalHandling(func() <-chan struct{} {
		cancel()
		return shutdown
	}, cancel)

	go func() {
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond)
		close(shutdown)
	}()

	return d.Run(ctx)
}
