package raft

import (
	"context"
	"time"
)

// peerMode is which loop a Peer Replicator worker (C3) currently
// drives: replication (this node is Leader) or election (this node is
// Candidate in the current term). It is read under Node.mu, alongside
// every other per-peer field (spec.md §5 lock discipline).
type peerMode uint8

const (
	peerIdle peerMode = iota
	peerReplicating
	peerElecting
)

// peer is one Peer Replicator worker (C3). Its next_index, match_index
// and have_vote fields are owned by this worker but, per spec.md §5,
// protected by the Node's single mutex rather than one of their own.
//
// (floyd RaftConsensus::PeerThread)
type peer struct {
	id   string
	node *Node

	mode       peerMode
	term       uint64 // term this peer is electing for, when mode == peerElecting
	nextIndex  uint64
	matchIndex uint64
	haveVote   bool

	// lastContact is when this peer last answered an AppendEntries or
	// RequestVote, surfaced read-only via Node.PeerStates for callers
	// deciding whether a peer looks partitioned (spec.md §3 "Peer
	// State").
	lastContact time.Time

	backoff time.Duration
}

func newPeer(id string, n *Node) *peer {
	return &peer{id: id, node: n, mode: peerIdle}
}

// beginLeadershipLocked switches the peer into replication mode with a
// freshly reset next_index, called once when this node becomes Leader.
//
// (floyd PeerThread::BeginLeaderShip)
func (p *peer) beginLeadershipLocked(nextIndex uint64) {
	p.mode = peerReplicating
	p.nextIndex = nextIndex
	p.matchIndex = 0
	p.haveVote = false
	p.backoff = 0
}

// beginElectionLocked switches the peer into election mode for the
// node's current term, called once per StartNewElection.
//
// (floyd PeerThread::BeginRequestVote)
func (p *peer) beginElectionLocked() {
	p.mode = peerElecting
	p.term = p.node.currentTerm
	p.haveVote = false
	p.backoff = 0
}

func (p *peer) getMatchIndexLocked() uint64 { return p.matchIndex }
func (p *peer) getHaveVoteLocked() bool     { return p.haveVote }

// stateLocked snapshots the fields Node.PeerStates exposes externally.
func (p *peer) stateLocked() PeerState {
	return PeerState{
		NextIndex:   p.nextIndex,
		MatchIndex:  p.matchIndex,
		HaveVote:    p.haveVote,
		LastContact: p.lastContact,
	}
}

// run is the peer worker's main loop: on every wake (broadcast or
// heartbeat tick) it re-reads its mode under the lock and drives one
// round of whichever RPC that mode calls for.
func (p *peer) run() {
	n := p.node
	defer n.wg.Done()

	for {
		n.mu.Lock()
		if n.exiting {
			n.mu.Unlock()
			return
		}
		mode := p.mode
		wait := n.cfg.HeartbeatInterval
		if p.backoff > wait {
			wait = p.backoff
		}
		n.mu.Unlock()

		switch mode {
		case peerReplicating:
			p.replicateOnce()
		case peerElecting:
			p.requestVoteOnce()
		}

		timer := time.NewTimer(wait)
		n.mu.Lock()
		ch := n.wakeCh
		n.mu.Unlock()
		select {
		case <-ch:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// replicateOnce runs one round of the replication-mode loop (spec.md
// §4.3): build and send an AppendEntries covering [next_index,
// last_log_index], then reconcile next_index/match_index from the
// reply.
func (p *peer) replicateOnce() {
	n := p.node

	n.mu.Lock()
	if n.exiting || n.role != Leader || p.mode != peerReplicating {
		n.mu.Unlock()
		return
	}
	term := n.currentTerm
	lastLogIndex := n.cfg.Log.GetLastLogIndex()
	prevLogIndex := p.nextIndex - 1
	var prevLogTerm uint64
	if prevLogIndex > 0 {
		if e, err := n.cfg.Log.GetEntry(prevLogIndex); err == nil {
			prevLogTerm = e.Term
		}
	}

	var entries []Entry
	if lastLogIndex >= p.nextIndex {
		last := lastLogIndex
		if batchEnd := prevLogIndex + uint64(n.cfg.MaxEntriesPerAppend); last > batchEnd {
			last = batchEnd
		}
		for i := p.nextIndex; i <= last; i++ {
			e, err := n.cfg.Log.GetEntry(i)
			if err != nil {
				break
			}
			entries = append(entries, e)
		}
	}

	req := &AppendEntriesRequest{
		Term:         term,
		LeaderID:     n.cfg.LocalID,
		PrevLogIndex: prevLogIndex,
		PrevLogTerm:  prevLogTerm,
		Entries:      entries,
		CommitIndex:  n.commitIndex,
	}
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.HeartbeatInterval)
	resp, err := n.cfg.Transport.AppendEntries(ctx, p.id, req)
	cancel()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.exiting || p.mode != peerReplicating || n.currentTerm != term {
		return
	}

	if err != nil {
		p.backoff = nextBackoff(p.backoff, n.cfg.HeartbeatInterval)
		return
	}
	p.backoff = 0
	p.lastContact = time.Now()

	if resp.Term > n.currentTerm {
		n.stepDownLocked(resp.Term)
		n.resetElectionTimerLocked()
		return
	}

	if resp.Success {
		p.matchIndex = prevLogIndex + uint64(len(entries))
		p.nextIndex = p.matchIndex + 1
		n.advanceCommitIndexLocked()
		return
	}

	if resp.ConflictIndex > 0 && resp.ConflictIndex < p.nextIndex {
		p.nextIndex = resp.ConflictIndex
	} else if p.nextIndex > 1 {
		p.nextIndex--
	}
}

// requestVoteOnce runs one round of the election-mode loop (spec.md
// §4.3): send one RequestVote for the peer's remembered term and set
// have_vote on a granted reply.
func (p *peer) requestVoteOnce() {
	n := p.node

	n.mu.Lock()
	if n.exiting || n.role != Candidate || p.mode != peerElecting || n.currentTerm != p.term {
		n.mu.Unlock()
		return
	}
	term := p.term
	lastLogTerm, lastLogIndex := n.cfg.Log.GetLastLogTermAndIndex()
	req := &RequestVoteRequest{
		Term:         term,
		CandidateID:  n.cfg.LocalID,
		LastLogIndex: lastLogIndex,
		LastLogTerm:  lastLogTerm,
	}
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.HeartbeatInterval)
	resp, err := n.cfg.Transport.RequestVote(ctx, p.id, req)
	cancel()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.exiting || p.mode != peerElecting || p.term != term {
		return
	}

	if err != nil {
		p.backoff = nextBackoff(p.backoff, n.cfg.HeartbeatInterval)
		return
	}
	p.backoff = 0
	p.lastContact = time.Now()

	if resp.Term > n.currentTerm {
		n.stepDownLocked(resp.Term)
		n.resetElectionTimerLocked()
		return
	}

	if resp.Granted && n.currentTerm == term && n.role == Candidate {
		p.haveVote = true
		if n.quorumAllLocked((*peer).getHaveVoteLocked) {
			n.becomeLeaderLocked()
		}
	}
}

// nextBackoff doubles the retry delay up to maxDelay, per spec.md §4.3
// ("retried with exponential backoff up to the heartbeat interval").
func nextBackoff(cur, maxDelay time.Duration) time.Duration {
	if cur <= 0 {
		cur = 10 * time.Millisecond
	} else {
		cur *= 2
	}
	if cur > maxDelay {
		cur = maxDelay
	}
	return cur
}
