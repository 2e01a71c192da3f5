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

// Package masterclient implements agent.MasterClient over gRPC: the only
// real transport the finish reporter and the report loops drive.
package masterclient

import (
	"context"
	"sync"
	"time"

	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/agentd/taskdispatcher/pkg/agent"
	agenterrors "github.com/agentd/taskdispatcher/pkg/errors"
)

// connCacheSize bounds the number of live connections kept to distinct
// master addresses, replacing the original's unbounded connection cache.
const connCacheSize = 8

// Client is a gRPC-backed agent.MasterClient. It keeps an LRU-bounded
// cache of dialed connections keyed by address. A Client only ever dials
// the one address it was constructed with, so the cache holds at most one
// connection; a changed master address needs a new Client.
type Client struct {
	addr        string
	dialTimeout time.Duration

	mu    sync.Mutex
	conns *lru.Cache
}

// NewClient returns a Client that dials addr lazily on first use.
func NewClient(addr string, dialTimeout time.Duration) (*Client, error) {
	conns, err := lru.NewWithEvict(connCacheSize, func(key interface{}, value interface{}) {
		if cc, ok := value.(*grpc.ClientConn); ok {
			_ = cc.Close()
		}
	})
	if err != nil {
		return nil, err
	}
	return &Client{addr: addr, dialTimeout: dialTimeout, conns: conns}, nil
}

func (c *Client) conn(ctx context.Context) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.conns.Get(c.addr); ok {
		return v.(*grpc.ClientConn), nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	cc, err := grpc.DialContext(dialCtx, c.addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
		grpc.WithChainUnaryInterceptor(
			grpcmiddleware.ChainUnaryClient(grpcprometheus.UnaryClientInterceptor),
		),
	)
	if err != nil {
		return nil, agenterrors.ErrMasterClientDial.GenWithStackByArgs(c.addr, err.Error())
	}
	c.conns.Add(c.addr, cc)
	return cc, nil
}

// FinishTask implements agent.MasterClient.
func (c *Client) FinishTask(ctx context.Context, req *agent.FinishTaskRequest) error {
	cc, err := c.conn(ctx)
	if err != nil {
		return err
	}
	wire := toWireFinishTask(req)
	_, err = NewAgentServiceClient(cc).FinishTask(ctx, wire)
	if err != nil {
		log.Warn("finish task rpc transport error", zap.String("addr", c.addr), zap.Error(err))
	}
	return err
}

// Report implements agent.MasterClient.
func (c *Client) Report(ctx context.Context, req *agent.ReportRequest) error {
	cc, err := c.conn(ctx)
	if err != nil {
		return err
	}
	wire := toWireReport(req)
	_, err = NewAgentServiceClient(cc).Report(ctx, wire)
	if err != nil {
		log.Warn("report rpc transport error", zap.String("addr", c.addr), zap.Error(err))
	}
	return err
}

// Close releases every cached connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns.Purge()
}
