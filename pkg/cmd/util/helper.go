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

// Package util holds small helpers shared by the agentd cobra commands:
// logger bootstrap, signal handling and proxy-env diagnostics.
package util

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/http/httpproxy"

	"github.com/agentd/taskdispatcher/pkg/logutil"
)

// InitCmd initializes the logger and returns a background context plus its
// cancel function.
func InitCmd(cmd *cobra.Command, logCfg *logutil.Config) (context.Context, context.CancelFunc) {
	if err := logutil.InitLogger(logCfg); err != nil {
		cmd.PrintErrf("init logger error %v\n", err)
		os.Exit(1)
	}
	log.Info("init log", zap.String("file", logCfg.File), zap.String("level", logCfg.Level))
	return context.WithCancel(context.Background())
}

// shutdownNotify is a callback to notify the caller that the process is
// about to shut down. It returns a done channel closed when shutdown
// completes, and must be non-blocking.
type shutdownNotify func() <-chan struct{}

// InitSignalHandling wires SIGINT/SIGTERM/SIGHUP/SIGQUIT to a graceful
// shutdown, force-exiting on a second signal. Must be called after
// InitCmd.
func InitSignalHandling(shutdown shutdownNotify, cancel context.CancelFunc) {
	sc := make(chan os.Signal, 2)
	signal.Notify(sc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		sig := <-sc
		log.Info("got signal, prepare to shut down", zap.String("signal", sig.String()))
		done := shutdown()
		select {
		case <-done:
			log.Info("shutdown complete")
		case sig = <-sc:
			log.Info("got signal, force shutdown", zap.String("signal", sig.String()))
		}
		cancel()
	}()
}

// LogHTTPProxies logs HTTP proxy relative environment variables, useful
// when diagnosing a master connection that silently routes through a
// proxy.
func LogHTTPProxies() {
	fields := findProxyFields()
	if len(fields) > 0 {
		log.Info("using proxy config", fields...)
	}
}

func findProxyFields() []zap.Field {
	proxyCfg := httpproxy.FromEnvironment()
	fields := make([]zap.Field, 0, 3)
	if proxyCfg.HTTPProxy != "" {
		fields = append(fields, zap.String("http_proxy", proxyCfg.HTTPProxy))
	}
	if proxyCfg.HTTPSProxy != "" {
		fields = append(fields, zap.String("https_proxy", proxyCfg.HTTPSProxy))
	}
	if proxyCfg.NoProxy != "" {
		fields = append(fields, zap.String("no_proxy", proxyCfg.NoProxy))
	}
	return fields
}

// StrictDecodeFile decodes the toml file strictly: any item not mapped
// into cfg's fields aborts with an error rather than silently ignoring
// it, unless its top-level key is in ignoreCheckItems.
func StrictDecodeFile(path, component string, cfg interface{}, ignoreCheckItems ...string) error {
	metaData, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return errors.Trace(err)
	}

	hasIgnoreItem := func(item []string) bool {
		for _, ignore := range ignoreCheckItems {
			if item[0] == ignore {
				return true
			}
		}
		return false
	}

	if undecoded := metaData.Undecoded(); len(undecoded) > 0 {
		var b strings.Builder
		count := 0
		for _, item := range undecoded {
			if hasIgnoreItem(item) {
				continue
			}
			if count > 0 {
				b.WriteString(", ")
			}
			b.WriteString(item.String())
			count++
		}
		if count > 0 {
			return errors.Errorf("component %s's config file %s contained unknown configuration options: %s",
				component, path, b.String())
		}
	}
	return nil
}

// JSONPrint outputs v as indented JSON on cmd's output stream.
func JSONPrint(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	cmd.Printf("%s\n", data)
	return nil
}

// CheckErr aborts the command on a non-nil error.
func CheckErr(err error) {
	cobra.CheckErr(err)
}
