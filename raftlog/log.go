package raftlog

import (
	"github.com/cy99/floyd/internal/xlog"
)

var logger = xlog.NewLogger("raftlog", xlog.INFO)

// Metadata is the persistent triple from spec.md §3: current_term,
// voted_for, and apply_index. It is flushed atomically via the
// manifest before any action that depends on it.
type Metadata struct {
	CurrentTerm uint64
	VotedFor    string
	ApplyIndex  uint64
}

// Log is the persistent replicated log contract (spec.md §4.1).
// FileLog and MemoryLog both satisfy it; the memory variant exists only
// for tests.
//
// (floyd Log)
type Log interface {
	Append(entries []Entry) (firstIndex, lastIndex uint64, err error)
	TruncateSuffix(lastKept uint64) error
	GetEntry(index uint64) (Entry, error)
	GetLastLogIndex() uint64
	GetLastLogTermAndIndex() (term, index uint64)
	UpdateMetadata(term uint64, votedFor string, applyIndex uint64) error
	Metadata() Metadata
	Sync() error
	TakeSync() *Sync
	Close() error
}

// DefaultSegmentSize is the rollover threshold (spec.md §6: "default 64 MiB").
const DefaultSegmentSize = 64 * 1024 * 1024
