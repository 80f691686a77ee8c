package raftlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cy99/floyd/internal/fileutil"
)

// preallocateExtend mirrors etcd raftwal's own choice when creating a
// fresh segment file: grow the file to its target size immediately
// rather than reserving space without changing the reported length.
const preallocateExtend = true

// segmentHeaderLen is entry_start(u64) + entry_end(u64) + filesize(u64).
//
// (floyd LogFile::Header)
const segmentHeaderLen = 8 * 3

// frameFixedLen is the entry_id(u64) + length(int32) prefix plus the
// trailing begin_offset(int32) suffix around a variable-length payload.
//
// (floyd LogFile entry layout comment:
//
//	"entry_id(uint64) | length(int32) | pb format msg | begin_offset(int32)")
const frameFixedLen = 8 + 4 + 4

var errShortFrame = errors.New("raftlog: short entry frame")

type segmentHeader struct {
	entryStart uint64
	entryEnd   uint64
	filesize   uint64
}

func (h segmentHeader) encode() []byte {
	buf := make([]byte, segmentHeaderLen)
	binary.BigEndian.PutUint64(buf[0:8], h.entryStart)
	binary.BigEndian.PutUint64(buf[8:16], h.entryEnd)
	binary.BigEndian.PutUint64(buf[16:24], h.filesize)
	return buf
}

func decodeSegmentHeader(buf []byte) (segmentHeader, error) {
	if len(buf) < segmentHeaderLen {
		return segmentHeader{}, errors.New("raftlog: truncated segment header")
	}
	return segmentHeader{
		entryStart: binary.BigEndian.Uint64(buf[0:8]),
		entryEnd:   binary.BigEndian.Uint64(buf[8:16]),
		filesize:   binary.BigEndian.Uint64(buf[16:24]),
	}, nil
}

// segment is one on-disk log file: a header describing the index range
// it covers, followed by a sequence of framed entries.
//
// (floyd LogFile)
type segment struct {
	f      *os.File
	header segmentHeader
}

// createSegment creates a fresh segment file, preallocating sizeHint
// bytes of disk space up front so later appends don't fragment the
// file as they grow it (etcd raftwal.WAL.saveWAL: "fileutil.Preallocate
// ... before writing"). sizeHint of 0 skips preallocation.
func createSegment(path string, entryStart uint64, sizeHint uint64) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, fileutil.PrivateFileMode)
	if err != nil {
		return nil, err
	}
	if sizeHint > segmentHeaderLen {
		if err := fileutil.Preallocate(f, int64(sizeHint), preallocateExtend); err != nil {
			f.Close()
			return nil, fmt.Errorf("raftlog: preallocate segment: %w", err)
		}
	}
	s := &segment{
		f: f,
		header: segmentHeader{
			entryStart: entryStart,
			entryEnd:   entryStart - 1, // empty: no entries yet
			filesize:   segmentHeaderLen,
		},
	}
	if err := s.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func openSegment(path string) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, fileutil.PrivateFileMode)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, segmentHeaderLen)
	if _, err := io.ReadFull(f, buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("raftlog: reading segment header: %w", err)
	}
	h, err := decodeSegmentHeader(buf)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &segment{f: f, header: h}, nil
}

func (s *segment) writeHeader() error {
	if _, err := s.f.WriteAt(s.header.encode(), 0); err != nil {
		return err
	}
	return nil
}

// isEmpty reports whether the segment holds no entries yet.
func (s *segment) isEmpty() bool {
	return s.header.entryEnd < s.header.entryStart
}

func frameLen(payloadLen int) int64 {
	return int64(frameFixedLen + payloadLen)
}

// appendEntry writes one framed entry at the end of the file and
// updates (but does not fsync) the header.
func (s *segment) appendEntry(e Entry) error {
	body := e.marshal()
	offset := int64(s.header.filesize)

	frame := make([]byte, frameFixedLen+len(body))
	binary.BigEndian.PutUint64(frame[0:8], e.Index)
	binary.BigEndian.PutUint32(frame[8:12], uint32(len(body)))
	copy(frame[12:12+len(body)], body)
	binary.BigEndian.PutUint32(frame[12+len(body):], uint32(offset))

	if _, err := s.f.WriteAt(frame, offset); err != nil {
		return err
	}

	s.header.entryEnd = e.Index
	s.header.filesize = uint64(offset) + uint64(len(frame))
	return s.writeHeader()
}

// readEntryAt reads the framed entry starting at byte offset, returning
// the decoded entry and the offset of the next frame.
func (s *segment) readEntryAt(offset int64) (Entry, int64, error) {
	fixed := make([]byte, 12)
	if _, err := s.f.ReadAt(fixed, offset); err != nil {
		return Entry{}, 0, errShortFrame
	}
	index := binary.BigEndian.Uint64(fixed[0:8])
	length := binary.BigEndian.Uint32(fixed[8:12])
	if int64(offset)+int64(frameLen(int(length))) > int64(s.header.filesize) {
		return Entry{}, 0, errShortFrame
	}

	body := make([]byte, length)
	if _, err := s.f.ReadAt(body, offset+12); err != nil {
		return Entry{}, 0, errShortFrame
	}

	e, err := unmarshalEntry(index, body)
	if err != nil {
		return Entry{}, 0, err
	}
	return e, offset + frameLen(int(length)), nil
}

// scanForward walks every frame from the header offset, calling fn for
// each. It stops and returns the last well-formed offset on the first
// malformed frame — used both for GetEntry-by-scan and for crash
// recovery of the active segment.
func (s *segment) scanForward(fn func(Entry) error) (lastGoodOffset int64, lastGoodIndex uint64, err error) {
	offset := int64(segmentHeaderLen)
	lastGoodOffset = offset
	lastGoodIndex = s.header.entryStart - 1
	for offset < int64(s.header.filesize) {
		e, next, ferr := s.readEntryAt(offset)
		if ferr != nil {
			break
		}
		if fn != nil {
			if err := fn(e); err != nil {
				return lastGoodOffset, lastGoodIndex, err
			}
		}
		lastGoodOffset = next
		lastGoodIndex = e.Index
		offset = next
	}
	return lastGoodOffset, lastGoodIndex, nil
}

// getEntry finds an entry by index using the trailing begin_offset to
// jump backward from the tail rather than scanning from the head.
func (s *segment) getEntry(index uint64) (Entry, error) {
	if index < s.header.entryStart || index > s.header.entryEnd {
		return Entry{}, fmt.Errorf("raftlog: index %d out of segment range [%d,%d]", index, s.header.entryStart, s.header.entryEnd)
	}

	offset := int64(s.header.filesize)
	for offset > segmentHeaderLen {
		boBuf := make([]byte, 4)
		if _, err := s.f.ReadAt(boBuf, offset-4); err != nil {
			return Entry{}, err
		}
		beginOffset := int64(binary.BigEndian.Uint32(boBuf))

		e, _, err := s.readEntryAt(beginOffset)
		if err != nil {
			return Entry{}, err
		}
		if e.Index == index {
			return e, nil
		}
		offset = beginOffset
	}
	return Entry{}, fmt.Errorf("raftlog: index %d not found in segment", index)
}

// endOffsetOf returns the byte offset immediately following the frame
// for index, by walking forward from the header. Used by
// TruncateSuffix to find the truncation point.
func (s *segment) endOffsetOf(index uint64) (int64, error) {
	offset := int64(segmentHeaderLen)
	for offset < int64(s.header.filesize) {
		e, next, err := s.readEntryAt(offset)
		if err != nil {
			return 0, err
		}
		if e.Index == index {
			return next, nil
		}
		offset = next
	}
	return 0, fmt.Errorf("raftlog: index %d not found while truncating", index)
}

// truncateAt rewrites the header so entryEnd == index-1 and truncates
// the file to the byte offset where that entry's frame ends.
func (s *segment) truncateAt(index uint64, offset int64) error {
	s.header.entryEnd = index - 1
	s.header.filesize = uint64(offset)
	if err := s.f.Truncate(offset); err != nil {
		return err
	}
	if err := s.writeHeader(); err != nil {
		return err
	}
	return fileutil.Fdatasync(s.f)
}

// sync fsyncs the segment's data blocks. Fdatasync (rather than Fsync)
// skips the inode-metadata write since appendEntry always advances
// filesize via the header record, not the file's own length.
func (s *segment) sync() error {
	return fileutil.Fdatasync(s.f)
}

func (s *segment) close() error {
	return s.f.Close()
}
