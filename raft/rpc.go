package raft

import "context"

// RequestVoteRequest is the RequestVote peer RPC (spec.md §6).
type RequestVoteRequest struct {
	Term         uint64
	CandidateID  string
	LastLogIndex uint64
	LastLogTerm  uint64
}

// RequestVoteResponse is the RequestVote reply.
type RequestVoteResponse struct {
	Term    uint64
	Granted bool
}

// AppendEntriesRequest is the AppendEntries peer RPC (spec.md §6).
type AppendEntriesRequest struct {
	Term         uint64
	LeaderID     string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []Entry
	CommitIndex  uint64
}

// AppendEntriesResponse is the AppendEntries reply. ConflictIndex is
// the optimized log-mismatch hint mentioned in spec.md §4.3 ("or via
// an optimized conflict hint"); it is 0 when unused, in which case the
// caller falls back to decrementing next_index by one.
type AppendEntriesResponse struct {
	Term          uint64
	Success       bool
	ConflictIndex uint64
}

// Transport is what a Peer Replicator (C3) needs from the RPC layer:
// blocking, context-bound calls to one remote peer identified by its
// "ip:port" address. package transport's Peer type implements this.
type Transport interface {
	RequestVote(ctx context.Context, target string, req *RequestVoteRequest) (*RequestVoteResponse, error)
	AppendEntries(ctx context.Context, target string, req *AppendEntriesRequest) (*AppendEntriesResponse, error)
}
