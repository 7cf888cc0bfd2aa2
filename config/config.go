// Package config loads the cluster topology and timer base durations a
// raftnode process needs at startup from a TOML file, the way the
// teacher's lineage configures tidb/tinykv components.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"

	"github.com/raftlab/raftkit/raft"
)

// Config is the on-disk shape of a single node's cluster configuration.
type Config struct {
	NodeID             uint64   `toml:"node-id"`
	Peers              []uint64 `toml:"peers"`
	ElectionTimeoutMS  int64    `toml:"election-timeout-ms"`
	HeartbeatTimeoutMS int64    `toml:"heartbeat-timeout-ms"`
	StorageDir         string   `toml:"storage-dir"`
}

// Default values used when a TOML file omits a field, matching the
// 150ms/50ms base the original implementation's tests assume.
const (
	DefaultElectionTimeoutMS  = 150
	DefaultHeartbeatTimeoutMS = 50
)

// Load reads and validates a Config from path.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, errors.Annotatef(err, "config: decode %s", path)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ElectionTimeoutMS == 0 {
		c.ElectionTimeoutMS = DefaultElectionTimeoutMS
	}
	if c.HeartbeatTimeoutMS == 0 {
		c.HeartbeatTimeoutMS = DefaultHeartbeatTimeoutMS
	}
}

func (c *Config) validate() error {
	if c.NodeID == 0 {
		return errors.New("config: node-id is required and must be nonzero")
	}
	for _, p := range c.Peers {
		if p == c.NodeID {
			return errors.Errorf("config: node-id %d must not appear in its own peers list", c.NodeID)
		}
	}
	if c.ElectionTimeoutMS <= c.HeartbeatTimeoutMS {
		return errors.Errorf("config: election-timeout-ms (%d) must exceed heartbeat-timeout-ms (%d)",
			c.ElectionTimeoutMS, c.HeartbeatTimeoutMS)
	}
	if c.StorageDir == "" {
		return errors.New("config: storage-dir is required")
	}
	return nil
}

// SelfID returns NodeID as a raft.NodeId.
func (c *Config) SelfID() raft.NodeId { return raft.NodeId(c.NodeID) }

// PeerIDs returns Peers as raft.NodeId.
func (c *Config) PeerIDs() []raft.NodeId {
	out := make([]raft.NodeId, len(c.Peers))
	for i, p := range c.Peers {
		out[i] = raft.NodeId(p)
	}
	return out
}

// ElectionTimeout returns the configured election timeout base as a
// time.Duration.
func (c *Config) ElectionTimeout() time.Duration {
	return time.Duration(c.ElectionTimeoutMS) * time.Millisecond
}

// HeartbeatTimeout returns the configured heartbeat interval as a
// time.Duration.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutMS) * time.Millisecond
}
