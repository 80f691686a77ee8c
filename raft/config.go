package raft

import (
	"errors"
	"fmt"
	"time"

	"github.com/cy99/floyd/raftlog"
)

// Config carries the parameters needed to start a Raft core (C4),
// following the field-by-field validated style of etcd's
// raft.Config.
//
// (floyd Options, as consumed by RaftConsensus)
type Config struct {
	// LocalID identifies this node to its peers, "ip:port".
	LocalID string

	// PeerIDs lists every other member of the cluster, excluding
	// LocalID. Empty means a single-node cluster.
	PeerIDs []string

	// Log is the persistent replicated log (C1) this core drives.
	Log raftlog.Log

	// Transport issues the peer RPCs (RequestVote, AppendEntries).
	Transport Transport

	// ElectionTimeoutBase is T from spec.md §4.4: the actual timeout on
	// any reset is randomized in [T, 4T].
	ElectionTimeoutBase time.Duration

	// HeartbeatInterval is how often a Leader's peer workers send an
	// idle AppendEntries when there is nothing new to replicate, and
	// the per-call RPC timeout used by peer workers. spec.md §4.3
	// recommends 1/3 of the election timeout base.
	HeartbeatInterval time.Duration

	// MaxEntriesPerAppend bounds how many log entries one AppendEntries
	// RPC carries.
	MaxEntriesPerAppend int

	// VoteTargetTerm and VoteTargetIndex implement the "voteable" gate
	// from spec.md §4.4 rule 4. Per spec.md's Open Questions, the
	// defaults (0, 0) make the gate vacuously true; a freshly restarted
	// node only needs to raise these if it wants to withhold votes
	// until it has caught up to some known point.
	VoteTargetTerm  uint64
	VoteTargetIndex uint64
}

func (c *Config) validate() error {
	if c.Log == nil {
		return errors.New("raft: Config.Log cannot be nil")
	}
	if c.Transport == nil {
		return errors.New("raft: Config.Transport cannot be nil")
	}
	if c.LocalID == "" {
		return errors.New("raft: Config.LocalID cannot be empty")
	}
	if c.ElectionTimeoutBase <= 0 {
		return fmt.Errorf("raft: ElectionTimeoutBase (%s) must be greater than 0", c.ElectionTimeoutBase)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("raft: HeartbeatInterval (%s) must be greater than 0", c.HeartbeatInterval)
	}
	if c.HeartbeatInterval >= c.ElectionTimeoutBase {
		return fmt.Errorf("raft: HeartbeatInterval (%s) must be less than ElectionTimeoutBase (%s)", c.HeartbeatInterval, c.ElectionTimeoutBase)
	}
	if c.MaxEntriesPerAppend <= 0 {
		c.MaxEntriesPerAppend = 64
	}
	for _, id := range c.PeerIDs {
		if id == c.LocalID {
			return fmt.Errorf("raft: PeerIDs must not contain LocalID (%s)", id)
		}
	}
	return nil
}
