package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pingcap/log"
	"github.com/spf13/cobra"

	"github.com/raftlab/raftkit/config"
	"github.com/raftlab/raftkit/logging"
	"github.com/raftlab/raftkit/raft"
	"github.com/raftlab/raftkit/sim"
	"github.com/raftlab/raftkit/storage/badgerstore"
)

func newRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start one node of a cluster described by a TOML config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the cluster TOML config (required)")
	cmd.MarkFlagRequired("config")
	return cmd
}

// runNode starts a single node against persistent badgerstore storage.
// The node's peers are accounted for in quorum math but, absent a real
// network transport in this module's scope, messages addressed to them
// are simply queued and never delivered cross-process: this command
// demonstrates a node's storage durability and local lifecycle, not a
// multi-process cluster (see the `sim` subcommand for that).
func runNode(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logging.Init(logLevel, logging.FileConfig{
		Filename: filepath.Join(cfg.StorageDir, "raftnode.log"),
	}); err != nil {
		return err
	}

	store, err := badgerstore.Open[string](cfg.StorageDir)
	if err != nil {
		return err
	}
	defer store.Close()

	peers := sim.NewNodeCollection()
	for _, p := range cfg.PeerIDs() {
		peers.Push(p)
	}

	broker := sim.NewBroker()
	stateMachine := sim.NewStateMachine[string]()
	timer := sim.NewClockTimer(cfg.ElectionTimeout(), cfg.HeartbeatTimeout(), int64(cfg.NodeID))
	cancel := raft.NewCancellationToken()

	node := raft.NewNode[string](raft.Config[string]{
		SelfID:           cfg.SelfID(),
		Peers:            peers,
		Storage:          store,
		Transport:        sim.NewTransport[string](cfg.SelfID(), broker),
		StateMachine:     stateMachine,
		Timer:            timer,
		ElectionTimeoutT: int(cfg.ElectionTimeoutMS),
		NewMapCollection: sim.NewMapCollection,
		NewEntryBatch:    sim.NewEntryBatch[string],
		Cancel:           cancel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("raftnode shutting down")
			cancel.Cancel()
			node.Tick() // observes the token: stops its own timers
			drainInbox(node, broker, cfg.SelfID())
			return nil
		case <-ticker.C:
			node.Tick()
			for {
				from, msg, ok := broker.Dequeue(cfg.SelfID())
				if !ok {
					break
				}
				node.HandleMessage(from, msg)
			}
		}
	}
}

// maxDrainMessages bounds the inbound-queue drain on shutdown: spec.md §5
// calls for draining "until empty or for a bounded grace period" rather
// than blocking shutdown indefinitely on a misbehaving or flooded peer.
const maxDrainMessages = 1024

// drainInbox delivers whatever is already queued for self before the
// process exits, bounded at maxDrainMessages. node.Tick has already
// stopped the node's timers; HandleMessage still answers normally so
// this in-flight traffic is processed rather than silently dropped.
func drainInbox(node *raft.Node[string], broker *sim.Broker, self raft.NodeId) {
	for i := 0; i < maxDrainMessages; i++ {
		from, msg, ok := broker.Dequeue(self)
		if !ok {
			return
		}
		node.HandleMessage(from, msg)
	}
}
