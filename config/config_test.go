package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raftlab/raftkit/config"
	"github.com/raftlab/raftkit/raft"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cluster.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaultsAndParsesPeers(t *testing.T) {
	path := writeTOML(t, `
node-id = 1
peers = [2, 3]
storage-dir = "/tmp/raft-1"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, raft.NodeId(1), cfg.SelfID())
	require.Equal(t, []raft.NodeId{2, 3}, cfg.PeerIDs())
	require.Equal(t, config.DefaultElectionTimeoutMS, int(cfg.ElectionTimeoutMS))
	require.Equal(t, config.DefaultHeartbeatTimeoutMS, int(cfg.HeartbeatTimeoutMS))
}

func TestLoad_RejectsSelfInPeerList(t *testing.T) {
	path := writeTOML(t, `
node-id = 1
peers = [1, 2]
storage-dir = "/tmp/raft-1"
`)

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsHeartbeatNotShorterThanElection(t *testing.T) {
	path := writeTOML(t, `
node-id = 1
peers = [2]
storage-dir = "/tmp/raft-1"
election-timeout-ms = 50
heartbeat-timeout-ms = 50
`)

	_, err := config.Load(path)
	require.Error(t, err)
}
