// Package cluster provides distributed coordination for multiple gateway
// instances sharing one configuration store, using the alan UDP peer
// discovery library. A Cluster's only job here is to serialize
// configuration-store writes across instances so two admins editing the
// same file from different processes can't race each other's rewrite.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/rakunlabs/alan"
)

// lockConfigWrite is the distributed lock name guarding configuration-store
// rewrites.
const lockConfigWrite = "configstore-write"

// Cluster wraps an alan instance and implements configstore.Locker.
type Cluster struct {
	alan *alan.Alan
}

// New creates a Cluster from the gateway's alan configuration. Returns
// nil, nil if cfg is nil (clustering disabled; the store then serializes
// writes locally only).
func New(cfg *alan.Config) (*Cluster, error) {
	if cfg == nil {
		return nil, nil
	}

	a, err := alan.New(*cfg)
	if err != nil {
		return nil, fmt.Errorf("create alan instance: %w", err)
	}

	return &Cluster{alan: a}, nil
}

// Start begins the alan peer discovery system in the background. It blocks
// until the context is cancelled and should be run in a goroutine.
func (c *Cluster) Start(ctx context.Context) error {
	c.alan.OnPeerJoin(func(addr *net.UDPAddr) {
		slog.Info("cluster peer joined", "addr", addr.String())
	})

	c.alan.OnPeerLeave(func(addr *net.UDPAddr) {
		slog.Info("cluster peer left", "addr", addr.String())
	})

	return c.alan.Start(ctx, func(_ context.Context, msg alan.Message) {
		slog.Debug("cluster: unexpected message", "from", msg.Addr)
	})
}

// Stop gracefully leaves the cluster.
func (c *Cluster) Stop() error {
	return c.alan.Stop()
}

// Lock acquires the distributed configuration-store write lock. Blocks
// until acquired or ctx is cancelled. Satisfies configstore.Locker.
func (c *Cluster) Lock(ctx context.Context) error {
	return c.alan.Lock(ctx, lockConfigWrite)
}

// Unlock releases the distributed configuration-store write lock.
// Satisfies configstore.Locker.
func (c *Cluster) Unlock() error {
	return c.alan.Unlock(lockConfigWrite)
}

// Ready returns a channel that is closed when the cluster is ready.
func (c *Cluster) Ready() <-chan struct{} {
	return c.alan.Ready()
}
