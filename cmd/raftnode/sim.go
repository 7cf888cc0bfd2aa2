package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raftlab/raftkit/logging"
	"github.com/raftlab/raftkit/sim"
)

func newSimCmd() *cobra.Command {
	var nodes int
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run an in-memory N-node cluster end to end and print the converged log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(nodes, duration)
		},
	}
	cmd.Flags().IntVar(&nodes, "nodes", 5, "cluster size")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "how long to run the simulation")
	return cmd
}

func runSim(nodes int, duration time.Duration) error {
	if err := logging.Init(logLevel, logging.FileConfig{}); err != nil {
		return err
	}

	c := sim.NewCluster[string](nodes, 150*time.Millisecond, 50*time.Millisecond, time.Now().UnixNano())

	deadline := time.Now().Add(duration)
	submitted := 0
	for time.Now().Before(deadline) {
		c.Step()
		if leaderID, ok := c.Leader(); ok {
			if _, err := c.Submit(leaderID, fmt.Sprintf("cmd-%d", submitted)); err == nil {
				submitted++
			}
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Stop every node's timers and drain in-flight traffic so the printed
	// log reflects quiescence.
	c.Shutdown()

	for _, id := range c.Nodes() {
		fmt.Printf("node %d applied: %v\n", id, c.Applied(id))
	}
	return nil
}
