package raft

import "time"

// electionTimer is the Election Timer worker (C5): it sleeps until
// start_election_at, then, if still Follower or Candidate, starts a
// new election.
//
// (floyd RaftConsensus::ElectLeaderThread)
type electionTimer struct {
	node *Node
}

func (t *electionTimer) run() {
	n := t.node
	defer n.wg.Done()

	n.mu.Lock()
	defer n.mu.Unlock()

	for !n.exiting {
		now := time.Now()
		if !n.startElectionAt.After(now) {
			t.fireLocked()
			continue
		}

		// farFuture stands in for "no timer armed" (Leader state); its
		// literal Sub(now) would overflow a time.Duration, so wait on a
		// capped duration instead and re-check on wake.
		wait := 24 * time.Hour
		if d := n.startElectionAt.Sub(now); n.startElectionAt.Before(farFuture) && d < wait {
			wait = d
		}
		timer := time.NewTimer(wait)
		n.waitLocked(timer.C)
		timer.Stop()
	}
}

// fireLocked starts a new election, or immediately becomes Leader if
// this is a single-node cluster (spec.md §4.5).
func (t *electionTimer) fireLocked() {
	n := t.node
	if n.role == Leader {
		return
	}
	n.startNewElectionLocked()
}
