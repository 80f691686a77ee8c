package raftlog

import "sync"

// MemoryLog is an in-memory Log used only in tests (spec.md §9:
// "the memory variant is a testing aid").
//
// (floyd MemoryLog)
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry // entries[0] corresponds to index 1
	meta    Metadata
}

// NewMemoryLog returns an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(entries []Entry) (uint64, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	first := uint64(len(l.entries)) + 1
	for i := range entries {
		entries[i].Index = first + uint64(i)
		l.entries = append(l.entries, entries[i])
	}
	if len(entries) == 0 {
		return 0, 0, nil
	}
	return first, entries[len(entries)-1].Index, nil
}

func (l *MemoryLog) TruncateSuffix(lastKept uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if uint64(len(l.entries)) <= lastKept {
		return nil
	}
	l.entries = l.entries[:lastKept]
	return nil
}

func (l *MemoryLog) GetEntry(index uint64) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index == 0 || index > uint64(len(l.entries)) {
		return Entry{}, errIndexOutOfRange(index)
	}
	return l.entries[index-1], nil
}

func (l *MemoryLog) GetLastLogIndex() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.entries))
}

func (l *MemoryLog) GetLastLogTermAndIndex() (uint64, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return 0, 0
	}
	last := l.entries[len(l.entries)-1]
	return last.Term, last.Index
}

func (l *MemoryLog) UpdateMetadata(term uint64, votedFor string, applyIndex uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.meta = Metadata{CurrentTerm: term, VotedFor: votedFor, ApplyIndex: applyIndex}
	return nil
}

func (l *MemoryLog) Metadata() Metadata {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.meta
}

func (l *MemoryLog) Sync() error { return nil }

func (l *MemoryLog) TakeSync() *Sync {
	l.mu.Lock()
	last := uint64(len(l.entries))
	l.mu.Unlock()
	return completedSync(last)
}

func (l *MemoryLog) Close() error { return nil }

var _ Log = (*MemoryLog)(nil)
