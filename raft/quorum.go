package raft

import "sort"

// quorumMinLocked returns the value v such that a strict majority of
// the cluster (this Leader plus enough peers) is known to have
// replicated at least v, given a per-peer accessor. Only peer values
// are considered — as in floyd, the Leader's own progress is implicit.
//
// (floyd RaftConsensus::QuorumMin)
func (n *Node) quorumMinLocked(get func(*peer) uint64) uint64 {
	if len(n.peerOrder) == 0 {
		return n.lastSyncedIndex
	}
	values := make([]uint64, 0, len(n.peerOrder))
	for _, id := range n.peerOrder {
		values = append(values, get(n.peers[id]))
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values[len(values)/2]
}

// quorumAllLocked reports whether predicate holds for enough peers
// that, together with this node, a strict majority of the cluster is
// satisfied.
//
// (floyd RaftConsensus::QuorumAll)
func (n *Node) quorumAllLocked(pred func(*peer) bool) bool {
	if len(n.peerOrder) == 0 {
		return true
	}
	count := 1
	for _, id := range n.peerOrder {
		if pred(n.peers[id]) {
			count++
		}
	}
	return count >= (len(n.peerOrder)+1)/2+1
}
