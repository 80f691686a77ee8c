package raftlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cy99/floyd/internal/fileutil"
)

// FileLog is the segmented, on-disk Log (spec.md §4.1).
//
// (floyd Log / FileLog: floyd/src/file_log.h, floyd/src/file_log.cc)
type FileLog struct {
	mu sync.Mutex

	dir         string
	segmentSize uint64

	man      *manifest
	segments []*segment // ordered by entryStart ascending; last is active
}

func segmentPath(dir string, fileNum uint64) string {
	return filepath.Join(dir, fmt.Sprintf("log.%06d", fileNum))
}

// Open opens (or creates) a segmented file log rooted at dir, running
// crash recovery (spec.md §4.1 "Recovery") before returning.
func Open(dir string, segmentSize uint64) (*FileLog, error) {
	if segmentSize == 0 {
		segmentSize = DefaultSegmentSize
	}
	if err := fileutil.MkdirAll(dir); err != nil {
		return nil, err
	}

	man, err := openManifest(filepath.Join(dir, "manifest"))
	if err != nil {
		return nil, err
	}

	l := &FileLog{dir: dir, segmentSize: segmentSize, man: man}
	if err := l.recover(); err != nil {
		man.close()
		return nil, err
	}
	return l, nil
}

// recover reconstructs in-memory segment state from the manifest and
// on-disk segment files, repairing a torn tail write on the active
// segment.
//
// (floyd Log::Recover)
func (l *FileLog) recover() error {
	m := l.man.cur

	if m.fileNum == 0 {
		// Cold start: no segments yet, or an incomplete initial state.
		if fileutil.ExistFileOrDir(segmentPath(l.dir, 1)) {
			// A segment exists without a matching manifest entry:
			// only acceptable if it holds no entries (spec.md §4.1
			// "Missing manifest with segments present").
			seg, err := openSegment(segmentPath(l.dir, 1))
			if err != nil {
				return err
			}
			if !seg.isEmpty() {
				seg.close()
				return fmt.Errorf("raftlog: segment 1 has entries but manifest is empty; refusing to open")
			}
			l.segments = append(l.segments, seg)
			return nil
		}
		seg, err := createSegment(segmentPath(l.dir, 1), 1, l.segmentSize)
		if err != nil {
			return err
		}
		l.segments = []*segment{seg}
		return l.man.save(meta{
			fileNum:     1,
			entryStart:  1,
			entryEnd:    0,
			currentTerm: m.currentTerm,
			votedFor:    m.votedFor,
			applyIndex:  m.applyIndex,
		})
	}

	for fn := uint64(1); fn <= m.fileNum; fn++ {
		seg, err := openSegment(segmentPath(l.dir, fn))
		if err != nil {
			return fmt.Errorf("raftlog: opening segment %d: %w", fn, err)
		}
		l.segments = append(l.segments, seg)
	}

	// The active (last) segment may have a torn tail write from a
	// crash mid-append: rescan it and truncate at the last good frame.
	active := l.segments[len(l.segments)-1]
	lastGoodOffset, lastGoodIndex, err := active.scanForward(nil)
	if err != nil {
		return err
	}
	if lastGoodIndex != active.header.entryEnd || uint64(lastGoodOffset) != active.header.filesize {
		logger.Warningf("raftlog: recovering torn segment %d, rebuilding entry_end from %d to %d", m.fileNum, active.header.entryEnd, lastGoodIndex)
		if err := active.truncateAt(lastGoodIndex+1, lastGoodOffset); err != nil {
			return err
		}
	}

	return l.man.save(meta{
		fileNum:     m.fileNum,
		entryStart:  l.segments[0].header.entryStart,
		entryEnd:    active.header.entryEnd,
		currentTerm: m.currentTerm,
		votedFor:    m.votedFor,
		applyIndex:  m.applyIndex,
	})
}

func (l *FileLog) active() *segment {
	return l.segments[len(l.segments)-1]
}

func (l *FileLog) lastIndexLocked() uint64 {
	if len(l.segments) == 0 {
		return 0
	}
	active := l.active()
	if active.isEmpty() {
		if active.header.entryStart == 1 {
			return 0
		}
		return active.header.entryStart - 1
	}
	return active.header.entryEnd
}

// Append implements Log.Append. It fsyncs only a segment it seals on
// rollover; callers that need the new entries durable call Sync or
// TakeSync.
//
// (floyd Log::Append)
func (l *FileLog) Append(entries []Entry) (uint64, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(entries) == 0 {
		return 0, 0, nil
	}

	first := l.lastIndexLocked() + 1
	for i := range entries {
		entries[i].Index = first + uint64(i)

		active := l.active()
		if !active.isEmpty() && active.header.filesize+uint64(frameLen(len(entries[i].marshal()))) > l.segmentSize {
			if err := l.rollSegment(); err != nil {
				return 0, 0, err
			}
			active = l.active()
		}
		if err := active.appendEntry(entries[i]); err != nil {
			return 0, 0, fmt.Errorf("raftlog: append: %w", err)
		}
	}

	last := entries[len(entries)-1].Index
	return first, last, nil
}

// rollSegment seals the current active segment (fsyncing it so its
// content is durable before it stops being written to) and opens a
// fresh one.
func (l *FileLog) rollSegment() error {
	old := l.active()
	if err := old.sync(); err != nil {
		return err
	}

	nextFileNum := l.man.cur.fileNum + 1
	nextEntryStart := old.header.entryEnd + 1
	seg, err := createSegment(segmentPath(l.dir, nextFileNum), nextEntryStart, l.segmentSize)
	if err != nil {
		return err
	}
	l.segments = append(l.segments, seg)

	return l.man.save(meta{
		fileNum:     nextFileNum,
		entryStart:  l.segments[0].header.entryStart,
		entryEnd:    old.header.entryEnd,
		currentTerm: l.man.cur.currentTerm,
		votedFor:    l.man.cur.votedFor,
		applyIndex:  l.man.cur.applyIndex,
	})
}

// segmentFor returns the segment covering index, or nil.
func (l *FileLog) segmentFor(index uint64) *segment {
	for i := len(l.segments) - 1; i >= 0; i-- {
		s := l.segments[i]
		if !s.isEmpty() && index >= s.header.entryStart && index <= s.header.entryEnd {
			return s
		}
	}
	return nil
}

// GetEntry implements Log.GetEntry.
func (l *FileLog) GetEntry(index uint64) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seg := l.segmentFor(index)
	if seg == nil {
		return Entry{}, fmt.Errorf("raftlog: no entry at index %d", index)
	}
	return seg.getEntry(index)
}

// GetLastLogIndex implements Log.GetLastLogIndex.
func (l *FileLog) GetLastLogIndex() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastIndexLocked()
}

// GetLastLogTermAndIndex implements Log.GetLastLogTermAndIndex.
//
// (floyd RaftConsensus::GetLastLogTerm combined with GetLastLogIndex)
func (l *FileLog) GetLastLogTermAndIndex() (uint64, uint64) {
	l.mu.Lock()
	index := l.lastIndexLocked()
	l.mu.Unlock()

	if index == 0 {
		return 0, 0
	}
	e, err := l.GetEntry(index)
	if err != nil {
		return 0, index
	}
	return e.Term, index
}

// TruncateSuffix implements Log.TruncateSuffix (spec.md §4.1).
func (l *FileLog) TruncateSuffix(lastKept uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastIndexLocked() <= lastKept {
		return nil // idempotent: already at or below lastKept
	}

	// Drop whole segments that start beyond lastKept, always keeping
	// the first one. Segment i is file i+1, so removing the dropped
	// files and saving fileNum = len(kept) keeps recover from reopening
	// them.
	kept := l.segments[:0:0]
	for i, s := range l.segments {
		if s.header.entryStart > lastKept && len(kept) > 0 {
			s.close()
			os.Remove(segmentPath(l.dir, uint64(i+1)))
			continue
		}
		kept = append(kept, s)
	}
	l.segments = kept

	target := l.active()
	if target.header.entryEnd > lastKept {
		if lastKept < target.header.entryStart {
			// Truncating to before this segment's start: empty it.
			if err := target.truncateAt(target.header.entryStart, segmentHeaderLen); err != nil {
				return err
			}
		} else {
			next, err := target.endOffsetOf(lastKept)
			if err != nil {
				return err
			}
			if err := target.truncateAt(lastKept+1, next); err != nil {
				return err
			}
		}
	}

	return l.man.save(meta{
		fileNum:     uint64(len(l.segments)),
		entryStart:  l.segments[0].header.entryStart,
		entryEnd:    l.active().header.entryEnd,
		currentTerm: l.man.cur.currentTerm,
		votedFor:    l.man.cur.votedFor,
		applyIndex:  l.man.cur.applyIndex,
	})
}

// UpdateMetadata implements Log.UpdateMetadata (spec.md §3, I6).
func (l *FileLog) UpdateMetadata(term uint64, votedFor string, applyIndex uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.man.save(meta{
		fileNum:     l.man.cur.fileNum,
		entryStart:  l.man.cur.entryStart,
		entryEnd:    l.man.cur.entryEnd,
		currentTerm: term,
		votedFor:    votedFor,
		applyIndex:  applyIndex,
	})
}

// Metadata implements Log.Metadata.
func (l *FileLog) Metadata() Metadata {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Metadata{
		CurrentTerm: l.man.cur.currentTerm,
		VotedFor:    l.man.cur.votedFor,
		ApplyIndex:  l.man.cur.applyIndex,
	}
}

// Sync blocks until all entries appended so far are durable.
func (l *FileLog) Sync() error {
	return l.TakeSync().Wait()
}

// TakeSync implements Log.TakeSync: it snapshots the current last
// index and fsyncs the active segment asynchronously.
//
// (floyd Log::TakeSync)
func (l *FileLog) TakeSync() *Sync {
	l.mu.Lock()
	lastIndex := l.lastIndexLocked()
	active := l.active()
	l.mu.Unlock()

	s := newSync(lastIndex)
	go func() {
		s.complete(active.sync())
	}()
	return s
}

// Close closes all open segment and manifest file handles.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, s := range l.segments {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := l.man.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

var _ Log = (*FileLog)(nil)
