package chat

import "log/slog"

const (
	DefaultAddr         = ":8088"
	DefaultSinkCapacity = 128
	DefaultMaxLineLen   = 8 << 10
)

// FabricKind selects the broadcast realization.
type FabricKind string

const (
	// FabricMailbox gives each peer a private bounded mailbox and evicts
	// peers that cannot keep up.
	FabricMailbox FabricKind = "mailbox"
	// FabricBus fans every message out to every subscriber and drops
	// copies for slow subscribers instead of evicting them.
	FabricBus FabricKind = "bus"
)

// Config is the whole tuning surface of the server.
type Config struct {
	// Addr is the TCP listen address.
	Addr string
	// SinkCapacity is the number of pending messages buffered per peer.
	SinkCapacity int
	// MaxLineLen caps inbound lines in bytes; an oversize line is a read
	// error that ends the session.
	MaxLineLen int
	// RetryBudget is how many extra enqueue attempts the mailbox fabric
	// makes before a peer counts as slow. Zero means fail fast.
	RetryBudget int
	// Fabric picks the broadcast realization.
	Fabric FabricKind
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.SinkCapacity <= 0 {
		c.SinkCapacity = DefaultSinkCapacity
	}
	if c.MaxLineLen <= 0 {
		c.MaxLineLen = DefaultMaxLineLen
	}
	if c.RetryBudget < 0 {
		c.RetryBudget = 0
	}
	if c.Fabric == "" {
		c.Fabric = FabricMailbox
	}
	return c
}

func newFabric(cfg Config, logger *slog.Logger) Fabric {
	if cfg.Fabric == FabricBus {
		return NewBusFabric(cfg, logger)
	}
	return NewMailboxFabric(cfg, logger)
}
