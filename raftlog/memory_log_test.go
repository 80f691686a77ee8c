package raftlog

import "testing"

func Test_MemoryLog_AppendGetEntry(t *testing.T) {
	l := NewMemoryLog()

	tests := []struct {
		entries []Entry
		wFirst  uint64
		wLast   uint64
	}{
		{entries: []Entry{{Term: 1, Kind: EntryData, Payload: []byte("a")}}, wFirst: 1, wLast: 1},
		{entries: []Entry{{Term: 1, Kind: EntryData, Payload: []byte("b")}, {Term: 2, Kind: EntryData, Payload: []byte("c")}}, wFirst: 2, wLast: 3},
	}
	for i, tt := range tests {
		first, last, err := l.Append(tt.entries)
		if err != nil {
			t.Fatalf("#%d: Append: %v", i, err)
		}
		if first != tt.wFirst || last != tt.wLast {
			t.Fatalf("#%d: Append() = (%d,%d), want (%d,%d)", i, first, last, tt.wFirst, tt.wLast)
		}
	}

	if got := l.GetLastLogIndex(); got != 3 {
		t.Fatalf("GetLastLogIndex() = %d, want 3", got)
	}
	e, err := l.GetEntry(3)
	if err != nil {
		t.Fatal(err)
	}
	if string(e.Payload) != "c" || e.Term != 2 {
		t.Fatalf("GetEntry(3) = %+v", e)
	}
}

func Test_MemoryLog_GetEntryOutOfRange(t *testing.T) {
	l := NewMemoryLog()
	l.Append([]Entry{{Term: 1, Kind: EntryData, Payload: []byte("a")}})

	if _, err := l.GetEntry(0); err == nil {
		t.Fatal("GetEntry(0) should error")
	}
	if _, err := l.GetEntry(2); err == nil {
		t.Fatal("GetEntry(2) should error, only 1 entry present")
	}
}

func Test_MemoryLog_TruncateSuffix(t *testing.T) {
	l := NewMemoryLog()
	l.Append([]Entry{
		{Term: 1, Kind: EntryData, Payload: []byte("a")},
		{Term: 1, Kind: EntryData, Payload: []byte("b")},
		{Term: 1, Kind: EntryData, Payload: []byte("c")},
	})

	if err := l.TruncateSuffix(1); err != nil {
		t.Fatal(err)
	}
	if got := l.GetLastLogIndex(); got != 1 {
		t.Fatalf("GetLastLogIndex() = %d, want 1", got)
	}

	// No-op: truncating to an index at or beyond the current tail changes nothing.
	if err := l.TruncateSuffix(5); err != nil {
		t.Fatal(err)
	}
	if got := l.GetLastLogIndex(); got != 1 {
		t.Fatalf("GetLastLogIndex() after no-op truncate = %d, want 1", got)
	}
}

func Test_MemoryLog_Metadata(t *testing.T) {
	l := NewMemoryLog()
	if err := l.UpdateMetadata(4, "127.0.0.1:8900", 2); err != nil {
		t.Fatal(err)
	}
	md := l.Metadata()
	if md.CurrentTerm != 4 || md.VotedFor != "127.0.0.1:8900" || md.ApplyIndex != 2 {
		t.Fatalf("Metadata() = %+v", md)
	}
}

func Test_MemoryLog_TakeSyncCompletesImmediately(t *testing.T) {
	l := NewMemoryLog()
	l.Append([]Entry{{Term: 1, Kind: EntryData, Payload: []byte("a")}})

	s := l.TakeSync()
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait() = %v, want nil", err)
	}
	if s.LastIndex != 1 {
		t.Fatalf("LastIndex = %d, want 1", s.LastIndex)
	}
}
