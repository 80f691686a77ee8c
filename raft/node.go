package raft

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cy99/floyd/internal/xlog"
	"github.com/cy99/floyd/raftlog"
)

var logger = xlog.NewLogger("raft", xlog.INFO)

// farFuture stands in for the C++ source's
// std::numeric_limits<time_t>::max() sentinel meaning "no election
// timer armed" (Leader state).
var farFuture = time.Unix(1<<62, 0)

// Node is the Raft core (C4): shared state protected by a single
// mutex, exactly mirroring floyd's RaftConsensus. Where the source
// uses a condition variable with WaitUntil(deadline), Node uses a
// "wake channel" that every state change closes and replaces — the
// idiomatic Go stand-in for a broadcast condvar that also supports
// timed waits (sync.Cond alone cannot select against a timeout).
//
// (floyd RaftConsensus)
type Node struct {
	cfg Config

	mu     sync.Mutex
	wakeCh chan struct{}

	role        Role
	currentTerm uint64
	votedFor    string
	commitIndex uint64
	leaderID    string

	startElectionAt time.Time
	logSyncQueued   bool
	lastSyncedIndex uint64

	peers     map[string]*peer
	peerOrder []string

	halted  bool
	exiting bool
	wg      sync.WaitGroup
}

// NewNode constructs a Node from cfg but does not start any worker
// goroutines; call Start for that.
func NewNode(cfg Config) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	n := &Node{
		cfg:    cfg,
		wakeCh: make(chan struct{}),
		role:   Follower,
	}

	md := cfg.Log.Metadata()
	n.currentTerm = md.CurrentTerm
	n.votedFor = md.VotedFor
	n.startElectionAt = farFuture

	n.peers = make(map[string]*peer, len(cfg.PeerIDs))
	for _, id := range cfg.PeerIDs {
		n.peers[id] = newPeer(id, n)
		n.peerOrder = append(n.peerOrder, id)
	}

	return n, nil
}

// Start launches the election timer, the disk sync worker, and one
// worker per peer, then steps down into Follower to arm the initial
// election timer (floyd RaftConsensus::Init).
func (n *Node) Start() {
	n.mu.Lock()
	n.stepDownLocked(n.currentTerm)
	n.mu.Unlock()

	n.wg.Add(2 + len(n.peers))
	go (&electionTimer{node: n}).run()
	go (&diskSyncWorker{node: n}).run()
	for _, p := range n.peers {
		go p.run()
	}
}

// Close signals every worker to exit, waits on one WaitGroup for all of
// them (peers, timer and disk-sync) to return, then closes the log. The
// workers exit in no fixed order.
func (n *Node) Close() error {
	n.mu.Lock()
	n.exiting = true
	n.broadcastLocked()
	n.mu.Unlock()

	n.wg.Wait()
	return n.cfg.Log.Close()
}

func (n *Node) broadcastLocked() {
	close(n.wakeCh)
	n.wakeCh = make(chan struct{})
}

// waitLocked releases the lock, blocks until either the next
// broadcast or timeoutC fires, then reacquires the lock. Callers must
// re-check their predicate on return, per condition-variable
// discipline (spec.md §9).
func (n *Node) waitLocked(timeoutC <-chan time.Time) {
	ch := n.wakeCh
	n.mu.Unlock()
	select {
	case <-ch:
	case <-timeoutC:
	}
	n.mu.Lock()
}

// Role reports the current role.
func (n *Node) Role() Role {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

// CurrentTerm reports the current term.
func (n *Node) CurrentTerm() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentTerm
}

// CommitIndex reports the current commit index.
func (n *Node) CommitIndex() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.commitIndex
}

// LeaderID reports the current known Leader, or "" if none.
func (n *Node) LeaderID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leaderID
}

// Halted reports whether an unrecoverable I/O error has put the node
// into the read-only halted state (spec.md §7).
func (n *Node) Halted() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.halted
}

// PeerStates snapshots each remote peer's replication bookkeeping,
// including LastContact, the monotonic time of its most recent
// successful reply (spec.md §3 "Peer State"). A zero LastContact means
// this node has not yet heard back from that peer since it took on its
// current mode.
func (n *Node) PeerStates() map[string]PeerState {
	n.mu.Lock()
	defer n.mu.Unlock()
	states := make(map[string]PeerState, len(n.peers))
	for id, p := range n.peers {
		states[id] = p.stateLocked()
	}
	return states
}

// appendLocked appends entries to the log and applies floyd's sync
// policy: a Leader defers the fsync to the Disk Sync Worker (C6);
// anyone else (a Follower applying AppendEntries) fsyncs synchronously
// before returning, satisfying "persistence-before-reply" (spec.md
// §5).
//
// (floyd RaftConsensus::Append)
func (n *Node) appendLocked(entries []raftlog.Entry) error {
	if _, _, err := n.cfg.Log.Append(entries); err != nil {
		n.haltLocked(err)
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	if n.role == Leader {
		n.logSyncQueued = true
	} else {
		sync := n.cfg.Log.TakeSync()
		n.mu.Unlock()
		err := sync.Wait()
		n.mu.Lock()
		if err != nil {
			n.haltLocked(err)
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	n.broadcastLocked()
	return nil
}

// haltLocked steps the node down and marks it halted after an
// unrecoverable I/O error on the log's critical path — a failed
// append, metadata persist, or disk sync (spec.md §7: "Unrecoverable
// errors ... cause the node to step down and enter a read-only halted
// state"). From then until the process restarts, Replicate returns
// ErrHalted and the peer RPC handlers reply with Success/Granted false;
// there is no in-process recovery, since the log's durability guarantee
// is already broken.
func (n *Node) haltLocked(cause error) {
	if n.halted {
		return
	}
	n.halted = true
	logger.Errorf("raft: halting after unrecoverable error: %v", cause)
	n.stepDownLocked(n.currentTerm)
	n.broadcastLocked()
}

func (n *Node) persistMetadataLocked() {
	if err := n.cfg.Log.UpdateMetadata(n.currentTerm, n.votedFor, n.cfg.Log.Metadata().ApplyIndex); err != nil {
		logger.Errorf("raft: persisting metadata: %v", err)
		n.haltLocked(err)
	}
}

// Replicate appends cmd as a DATA entry at the current term and
// returns its assigned index. Only valid when Leader.
//
// (floyd RaftConsensus::Replicate)
func (n *Node) Replicate(cmd []byte) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.halted {
		return 0, ErrHalted
	}
	if n.role != Leader {
		return 0, ErrNotLeader
	}

	entry := raftlog.Entry{Term: n.currentTerm, Kind: raftlog.EntryData, Payload: cmd}
	if err := n.appendLocked([]raftlog.Entry{entry}); err != nil {
		return 0, err
	}
	return n.cfg.Log.GetLastLogIndex(), nil
}

// WaitForCommitIndex blocks until commit_index >= index or ctx is
// done, whichever comes first.
//
// (floyd RaftConsensus::WaitForCommitIndex)
func (n *Node) WaitForCommitIndex(ctx context.Context, index uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.peerOrder) == 0 {
		// Single-node cluster: no peer needs to acknowledge, but per
		// spec.md's Open Questions we still require the entry's append
		// to be durable — not just visible in memory — before
		// reporting success, unlike the source which sets commit_index
		// directly with no such check.
		if n.logSyncQueued || n.lastSyncedIndex < index {
			sync := n.cfg.Log.TakeSync()
			n.logSyncQueued = false
			n.mu.Unlock()
			err := sync.Wait()
			n.mu.Lock()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}
			if sync.LastIndex > n.lastSyncedIndex {
				n.lastSyncedIndex = sync.LastIndex
			}
		}
		if index > n.commitIndex {
			n.commitIndex = index
			n.broadcastLocked()
		}
		return nil
	}

	for n.commitIndex < index {
		ch := n.wakeCh
		n.mu.Unlock()
		select {
		case <-ch:
			n.mu.Lock()
		case <-ctx.Done():
			n.mu.Lock()
			return ErrTimeout
		}
	}
	return nil
}

// WaitCommitAtLeast blocks until commit_index > after, returning the
// commit index observed, ctx.Err() if ctx ends first, or ErrStopped
// once Close has been called. It is
// the primitive the Apply Engine (C2) uses to discover newly committed
// entries, mirroring RaftConsensus::GetNextCommitEntry's wait loop.
func (n *Node) WaitCommitAtLeast(ctx context.Context, after uint64) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for n.commitIndex <= after {
		if n.exiting {
			return 0, ErrStopped
		}
		ch := n.wakeCh
		n.mu.Unlock()
		select {
		case <-ch:
			n.mu.Lock()
		case <-ctx.Done():
			n.mu.Lock()
			return 0, ctx.Err()
		}
	}
	return n.commitIndex, nil
}

// stepDownLocked adopts the given term if it is newer, clears leader
// and vote state, resets the election timer if none is armed, and
// drains any queued disk sync — matching floyd's StepDown exactly,
// including the case (newTerm == currentTerm) where only the role
// changes.
//
// (floyd RaftConsensus::StepDown)
func (n *Node) stepDownLocked(newTerm uint64) {
	if n.currentTerm < newTerm {
		n.currentTerm = newTerm
		n.leaderID = ""
		n.votedFor = ""
		n.persistMetadataLocked()
	}
	n.role = Follower

	if n.startElectionAt.Equal(farFuture) || n.startElectionAt.IsZero() {
		n.resetElectionTimerLocked()
	}

	if n.logSyncQueued {
		sync := n.cfg.Log.TakeSync()
		n.logSyncQueued = false
		n.mu.Unlock()
		sync.Wait()
		n.mu.Lock()
	}
}

func (n *Node) resetElectionTimerLocked() {
	base := n.cfg.ElectionTimeoutBase
	jitter := time.Duration(globalRand.Int63n(int64(3 * base)))
	n.startElectionAt = time.Now().Add(base + jitter)
	n.broadcastLocked()
}

// becomeLeaderLocked transitions Candidate -> Leader: it arms every
// peer for replication mode, appends the term's NOOP entry (so commit
// can advance without depending on a prior term's entries, I2), and
// disarms the election timer.
//
// (floyd RaftConsensus::BecomeLeader)
func (n *Node) becomeLeaderLocked() {
	n.role = Leader
	n.leaderID = n.cfg.LocalID
	n.startElectionAt = farFuture

	nextIndex := n.cfg.Log.GetLastLogIndex() + 1
	for _, id := range n.peerOrder {
		n.peers[id].beginLeadershipLocked(nextIndex)
	}

	if err := n.appendLocked([]raftlog.Entry{{Term: n.currentTerm, Kind: raftlog.EntryNoop}}); err != nil {
		logger.Errorf("raft: appending NOOP entry on BecomeLeader: %v", err)
	}
	n.broadcastLocked()
}

// startNewElectionLocked bumps the term, votes for self, arms every
// peer's election mode, and immediately becomes Leader if that alone
// forms a quorum (the single-node cluster case).
//
// (floyd ElectLeaderThread::StartNewElection)
func (n *Node) startNewElectionLocked() {
	n.currentTerm++
	n.role = Candidate
	n.leaderID = ""
	n.votedFor = n.cfg.LocalID
	n.resetElectionTimerLocked()

	for _, id := range n.peerOrder {
		n.peers[id].beginElectionLocked()
	}
	n.persistMetadataLocked()
	n.broadcastLocked()

	if n.quorumAllLocked((*peer).getHaveVoteLocked) {
		n.becomeLeaderLocked()
	}
}

// advanceCommitIndexLocked is C4's commit-advancement routine, called
// whenever a peer's match_index moves or a disk sync completes.
//
// (floyd RaftConsensus::AdvanceCommitIndex)
func (n *Node) advanceCommitIndexLocked() {
	if n.role != Leader {
		return
	}
	newCommit := n.quorumMinLocked((*peer).getMatchIndexLocked)
	if n.commitIndex >= newCommit {
		return
	}
	entry, err := n.cfg.Log.GetEntry(newCommit)
	if err != nil || entry.Term != n.currentTerm {
		return
	}
	n.commitIndex = newCommit
	logger.Debugf("raft: commit_index advanced to %d", newCommit)
	n.broadcastLocked()
}

// HandleAppendEntries implements the AppendEntries RPC handler
// (spec.md §4.4).
//
// (floyd RaftConsensus::HandleAppendEntries)
func (n *Node) HandleAppendEntries(req *AppendEntriesRequest) *AppendEntriesResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	resp := &AppendEntriesResponse{Term: n.currentTerm, Success: false}

	if n.halted {
		return resp
	}
	if req.Term < n.currentTerm {
		return resp
	}
	if req.Term > n.currentTerm {
		resp.Term = req.Term
	}
	n.stepDownLocked(req.Term)
	n.resetElectionTimerLocked()

	if n.leaderID == "" {
		n.leaderID = req.LeaderID
	}

	if req.PrevLogIndex != 0 {
		if req.PrevLogIndex > n.cfg.Log.GetLastLogIndex() {
			return resp
		}
		prev, err := n.cfg.Log.GetEntry(req.PrevLogIndex)
		if err != nil || prev.Term != req.PrevLogTerm {
			if err == nil {
				resp.ConflictIndex = req.PrevLogIndex
			}
			return resp
		}
	}

	resp.Success = true
	resp.Term = n.currentTerm

	index := req.PrevLogIndex
	for i, entry := range req.Entries {
		index++
		if n.cfg.Log.GetLastLogIndex() >= index {
			existing, err := n.cfg.Log.GetEntry(index)
			if err == nil && existing.Term == entry.Term {
				continue
			}
			// I7: only a Follower truncates, and only a suffix.
			if err := n.cfg.Log.TruncateSuffix(index - 1); err != nil {
				logger.Errorf("raft: TruncateSuffix(%d): %v", index-1, err)
				resp.Success = false
				return resp
			}
		}
		if err := n.appendLocked(req.Entries[i:]); err != nil {
			logger.Errorf("raft: appending replicated entries: %v", err)
			resp.Success = false
			return resp
		}
		break
	}

	if req.CommitIndex > n.commitIndex {
		last := n.cfg.Log.GetLastLogIndex()
		newCommit := req.CommitIndex
		if newCommit > last {
			newCommit = last
		}
		n.commitIndex = newCommit
		n.broadcastLocked()
	}

	return resp
}

// voteableLocked implements the "voteable" gate from spec.md §4.4 rule
// 4: this node may only grant votes once it has caught up to whatever
// point Config.VoteTargetTerm/VoteTargetIndex designate. Both default
// to 0, making the gate vacuously true (spec.md's Open Questions).
func (n *Node) voteableLocked() bool {
	return n.commitIndex >= n.cfg.VoteTargetIndex && n.currentTerm >= n.cfg.VoteTargetTerm
}

// HandleRequestVote implements the RequestVote RPC handler (spec.md
// §4.4).
//
// (floyd RaftConsensus::HandleRequestVote)
func (n *Node) HandleRequestVote(req *RequestVoteRequest) *RequestVoteResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.halted {
		return &RequestVoteResponse{Term: n.currentTerm, Granted: false}
	}

	lastLogIndex := n.cfg.Log.GetLastLogIndex()
	lastLogTerm, _ := n.cfg.Log.GetLastLogTermAndIndex()

	canGrant := req.LastLogTerm > lastLogTerm ||
		(req.LastLogTerm == lastLogTerm && req.LastLogIndex >= lastLogIndex)

	if req.Term > n.currentTerm && canGrant {
		n.stepDownLocked(req.Term)
	}

	granted := false
	if req.Term == n.currentTerm {
		if canGrant && n.votedFor == "" {
			if n.voteableLocked() {
				n.stepDownLocked(n.currentTerm)
				n.resetElectionTimerLocked()
				n.votedFor = req.CandidateID
				n.persistMetadataLocked()
				granted = !n.halted // a failed persist halts the node
			} else {
				n.stepDownLocked(n.currentTerm)
				n.resetElectionTimerLocked()
			}
		}
	}

	return &RequestVoteResponse{Term: n.currentTerm, Granted: granted}
}
