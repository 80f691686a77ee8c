package raft

import (
	"time"

	"github.com/cy99/floyd/raftlog"
)

// Entry, EntryKind and their constructors are the raftlog wire types
// re-exported under package raft so callers driving the consensus core
// never need to import raftlog directly for these.
type Entry = raftlog.Entry
type EntryKind = raftlog.EntryKind

const (
	EntryData = raftlog.EntryData
	EntryNoop = raftlog.EntryNoop
)

// Role is one of Follower, Candidate, Leader (spec.md §3).
type Role uint8

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	default:
		return "Follower"
	}
}

// PeerState is the in-memory-only bookkeeping C4 keeps per remote peer
// (spec.md §3 "Peer State").
type PeerState struct {
	NextIndex   uint64
	MatchIndex  uint64
	HaveVote    bool
	LastContact time.Time
}
