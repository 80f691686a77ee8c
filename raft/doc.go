// Package raft implements the consensus core: leader election, log
// replication, commit-index advancement, and the Follower/Candidate/Leader
// state machine.
//
// (floyd RaftConsensus)
package raft
