package raftlog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func tempLogDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "raftlog")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func Test_FileLog_AppendAndGetEntry(t *testing.T) {
	dir := tempLogDir(t)
	l, err := Open(dir, DefaultSegmentSize)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	entries := []Entry{
		{Term: 1, Kind: EntryData, Payload: []byte("one")},
		{Term: 1, Kind: EntryData, Payload: []byte("two")},
		{Term: 2, Kind: EntryNoop},
	}
	first, last, err := l.Append(entries)
	if err != nil {
		t.Fatal(err)
	}
	if first != 1 || last != 3 {
		t.Fatalf("got first=%d last=%d, want 1,3", first, last)
	}

	for i, want := range entries {
		got, err := l.GetEntry(uint64(i + 1))
		if err != nil {
			t.Fatalf("GetEntry(%d): %v", i+1, err)
		}
		if got.Term != want.Term || got.Kind != want.Kind || !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("entry %d = %+v, want %+v", i+1, got, want)
		}
	}

	if got := l.GetLastLogIndex(); got != 3 {
		t.Fatalf("GetLastLogIndex() = %d, want 3", got)
	}
	term, index := l.GetLastLogTermAndIndex()
	if term != 2 || index != 3 {
		t.Fatalf("GetLastLogTermAndIndex() = (%d,%d), want (2,3)", term, index)
	}
}

func Test_FileLog_EmptyLogBoundary(t *testing.T) {
	dir := tempLogDir(t)
	l, err := Open(dir, DefaultSegmentSize)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if got := l.GetLastLogIndex(); got != 0 {
		t.Fatalf("GetLastLogIndex() = %d, want 0", got)
	}
	term, index := l.GetLastLogTermAndIndex()
	if term != 0 || index != 0 {
		t.Fatalf("GetLastLogTermAndIndex() = (%d,%d), want (0,0)", term, index)
	}
}

func Test_FileLog_TruncateSuffixIdempotent(t *testing.T) {
	dir := tempLogDir(t)
	l, err := Open(dir, DefaultSegmentSize)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.Append([]Entry{
		{Term: 1, Kind: EntryData, Payload: []byte("a")},
		{Term: 1, Kind: EntryData, Payload: []byte("b")},
		{Term: 1, Kind: EntryData, Payload: []byte("c")},
	})

	if err := l.TruncateSuffix(1); err != nil {
		t.Fatal(err)
	}
	if got := l.GetLastLogIndex(); got != 1 {
		t.Fatalf("after truncate, GetLastLogIndex() = %d, want 1", got)
	}

	// Idempotent: truncating again to the same or a higher point is a no-op.
	if err := l.TruncateSuffix(1); err != nil {
		t.Fatal(err)
	}
	if got := l.GetLastLogIndex(); got != 1 {
		t.Fatalf("after second truncate, GetLastLogIndex() = %d, want 1", got)
	}

	// The entry at index 1 must still be readable and unmodified.
	e, err := l.GetEntry(1)
	if err != nil {
		t.Fatal(err)
	}
	if string(e.Payload) != "a" {
		t.Fatalf("GetEntry(1).Payload = %q, want %q", e.Payload, "a")
	}
}

func Test_FileLog_RecoverRoundTrip(t *testing.T) {
	dir := tempLogDir(t)
	l, err := Open(dir, DefaultSegmentSize)
	if err != nil {
		t.Fatal(err)
	}

	want := []Entry{
		{Term: 1, Kind: EntryData, Payload: []byte("x")},
		{Term: 1, Kind: EntryData, Payload: []byte("y")},
		{Term: 2, Kind: EntryData, Payload: []byte("z")},
	}
	l.Append(want)
	if err := l.UpdateMetadata(2, "10.0.0.1:9000", 1); err != nil {
		t.Fatal(err)
	}
	if err := l.Sync(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	// P5: Append(entries); Recover(); GetEntry(i) yields byte-identical entries.
	l2, err := Open(dir, DefaultSegmentSize)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()

	if got := l2.GetLastLogIndex(); got != 3 {
		t.Fatalf("after reopen, GetLastLogIndex() = %d, want 3", got)
	}
	for i, w := range want {
		got, err := l2.GetEntry(uint64(i + 1))
		if err != nil {
			t.Fatalf("GetEntry(%d): %v", i+1, err)
		}
		if got.Term != w.Term || !bytes.Equal(got.Payload, w.Payload) {
			t.Fatalf("entry %d = %+v, want %+v", i+1, got, w)
		}
	}

	md := l2.Metadata()
	if md.CurrentTerm != 2 || md.VotedFor != "10.0.0.1:9000" || md.ApplyIndex != 1 {
		t.Fatalf("Metadata() = %+v, want {2 10.0.0.1:9000 1}", md)
	}
}

func Test_FileLog_RecoverTruncatesTornWrite(t *testing.T) {
	dir := tempLogDir(t)
	l, err := Open(dir, DefaultSegmentSize)
	if err != nil {
		t.Fatal(err)
	}
	l.Append([]Entry{
		{Term: 1, Kind: EntryData, Payload: []byte("good")},
	})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash mid-append: a second frame was partially written
	// and the header was updated to claim it exists, but its bytes are
	// incomplete/garbage. Recovery must detect and truncate this back
	// to the last well-formed frame.
	segPath := filepath.Join(dir, "log.000001")
	seg, err := openSegment(segPath)
	if err != nil {
		t.Fatal(err)
	}
	goodEnd := int64(seg.header.filesize)
	if _, err := seg.f.WriteAt([]byte{9, 9, 9, 9, 9, 9, 9}, goodEnd); err != nil {
		t.Fatal(err)
	}
	seg.header.entryEnd = 2
	seg.header.filesize = uint64(goodEnd) + 7
	if err := seg.writeHeader(); err != nil {
		t.Fatal(err)
	}
	if err := seg.close(); err != nil {
		t.Fatal(err)
	}

	l2, err := Open(dir, DefaultSegmentSize)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()

	if got := l2.GetLastLogIndex(); got != 1 {
		t.Fatalf("after recovering torn write, GetLastLogIndex() = %d, want 1", got)
	}
	e, err := l2.GetEntry(1)
	if err != nil {
		t.Fatal(err)
	}
	if string(e.Payload) != "good" {
		t.Fatalf("GetEntry(1).Payload = %q, want %q", e.Payload, "good")
	}
	if _, err := l2.GetEntry(2); err == nil {
		t.Fatal("GetEntry(2) should error, the torn frame was truncated away")
	}
}

func Test_FileLog_SegmentRollover(t *testing.T) {
	dir := tempLogDir(t)
	// A tiny segment size (82 bytes) holds only one 32-byte frame of a
	// 7-byte payload, so every append after the first rolls a segment.
	l, err := Open(dir, segmentHeaderLen+2*frameFixedLen+2*entryHeaderLen+8)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	for i := 0; i < 5; i++ {
		if _, _, err := l.Append([]Entry{{Term: 1, Kind: EntryData, Payload: []byte("payload")}}); err != nil {
			t.Fatal(err)
		}
	}

	if len(l.segments) < 2 {
		t.Fatalf("expected segment rollover, got %d segments", len(l.segments))
	}
	for i := 1; i <= 5; i++ {
		e, err := l.GetEntry(uint64(i))
		if err != nil {
			t.Fatalf("GetEntry(%d): %v", i, err)
		}
		if string(e.Payload) != "payload" {
			t.Fatalf("entry %d payload = %q", i, e.Payload)
		}
	}
}
