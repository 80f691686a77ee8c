package raft

import "errors"

var (
	// ErrNotLeader is returned when a client operation is submitted to a
	// node that is not the current Leader.
	//
	// (floyd Status::NotFound("no leader!"))
	ErrNotLeader = errors.New("raft: not leader")

	// ErrTimeout is returned when a Replicate did not commit before its
	// deadline. The entry may still commit and apply later.
	//
	// (floyd Status::NotFound("*** commit timeout"))
	ErrTimeout = errors.New("raft: commit wait timed out")

	// ErrCorruption is returned when a committed entry could not be
	// applied deterministically against the backing store.
	//
	// (floyd Status::Corruption("exec command error!"))
	ErrCorruption = errors.New("raft: apply corruption")

	// ErrIO is returned when a disk failure occurs on the append path.
	// The node steps down and halts writes; see ErrHalted.
	ErrIO = errors.New("raft: log io failure")

	// ErrHalted is returned by Node.Replicate once an unrecoverable I/O
	// error (ErrIO, or a failed metadata persist) has put the node into
	// the read-only halted state described in spec.md §7; the peer RPC
	// handlers then reply with Success/Granted false instead. The node
	// stays halted until the process restarts.
	ErrHalted = errors.New("raft: node halted after an unrecoverable I/O error")

	// ErrStopped is returned by Node.WaitCommitAtLeast once Node.Close
	// has been called.
	ErrStopped = errors.New("raft: stopped")
)
