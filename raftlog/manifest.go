package raftlog

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"

	"github.com/cy99/floyd/internal/fileutil"
)

// votedForMaxLen bounds the size of the persisted "ip:port" vote
// identity so the manifest record stays fixed-size.
const votedForMaxLen = 128

// manifestSlotLen is the size in bytes of one manifest record:
// seq(8) + fileNum(8) + entryStart(8) + entryEnd(8) + currentTerm(8) +
// votedForLen(2) + votedFor(votedForMaxLen) + applyIndex(8) + crc32(4).
const manifestSlotLen = 8*6 + 2 + votedForMaxLen + 4

// manifestFileLen is the whole manifest file: two alternating slots.
//
// (floyd Manifest: "Written via copy-on-write ... keeping two
// alternating slots (current + previous)")
const manifestFileLen = manifestSlotLen * 2

// meta is the persistent metadata triple from spec.md §3, plus the
// segment bookkeeping the manifest also tracks.
//
// (floyd Manifest::Meta)
type meta struct {
	seq         uint64
	fileNum     uint64
	entryStart  uint64
	entryEnd    uint64
	currentTerm uint64
	votedFor    string
	applyIndex  uint64
}

func (m meta) encode() []byte {
	buf := make([]byte, manifestSlotLen)
	off := 0
	putU64 := func(v uint64) {
		binary.BigEndian.PutUint64(buf[off:off+8], v)
		off += 8
	}
	putU64(m.seq)
	putU64(m.fileNum)
	putU64(m.entryStart)
	putU64(m.entryEnd)
	putU64(m.currentTerm)

	vf := []byte(m.votedFor)
	if len(vf) > votedForMaxLen {
		vf = vf[:votedForMaxLen]
	}
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(vf)))
	off += 2
	copy(buf[off:off+votedForMaxLen], vf)
	off += votedForMaxLen
	putU64(m.applyIndex)

	crc := crc32.ChecksumIEEE(buf[:off])
	binary.BigEndian.PutUint32(buf[off:off+4], crc)
	return buf
}

func decodeMeta(buf []byte) (meta, bool) {
	if len(buf) != manifestSlotLen {
		return meta{}, false
	}
	crcAt := manifestSlotLen - 4
	wantCRC := binary.BigEndian.Uint32(buf[crcAt:])
	gotCRC := crc32.ChecksumIEEE(buf[:crcAt])
	if wantCRC != gotCRC {
		return meta{}, false
	}

	off := 0
	getU64 := func() uint64 {
		v := binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
		return v
	}
	var m meta
	m.seq = getU64()
	m.fileNum = getU64()
	m.entryStart = getU64()
	m.entryEnd = getU64()
	m.currentTerm = getU64()

	vfLen := binary.BigEndian.Uint16(buf[off : off+2])
	off += 2
	if int(vfLen) > votedForMaxLen {
		return meta{}, false
	}
	m.votedFor = string(buf[off : off+int(vfLen)])
	off += votedForMaxLen
	m.applyIndex = getU64()
	return m, true
}

// manifest is the double-buffered, CRC-checked metadata file.
//
// (floyd Manifest)
type manifest struct {
	f    *os.File
	cur  meta
	slot int // which slot (0 or 1) holds cur
}

func openManifest(path string) (*manifest, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, fileutil.PrivateFileMode)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	man := &manifest{f: f}
	if fi.Size() < manifestSlotLen {
		man.cur = meta{entryStart: 1}
		man.slot = 1 // next Save() writes slot 0 first
		return man, nil
	}

	slotBufs := make([][]byte, 2)
	for i := range slotBufs {
		buf := make([]byte, manifestSlotLen)
		// Slot 1 is absent until the second save; a short read leaves
		// the missing bytes zeroed, which decodeMeta rejects.
		if _, err := f.ReadAt(buf, int64(i*manifestSlotLen)); err != nil && !errors.Is(err, io.EOF) {
			f.Close()
			return nil, err
		}
		slotBufs[i] = buf
	}

	m0, ok0 := decodeMeta(slotBufs[0])
	m1, ok1 := decodeMeta(slotBufs[1])
	switch {
	case ok0 && ok1:
		if m1.seq > m0.seq {
			man.cur, man.slot = m1, 1
		} else {
			man.cur, man.slot = m0, 0
		}
	case ok0:
		man.cur, man.slot = m0, 0
	case ok1:
		man.cur, man.slot = m1, 1
	default:
		f.Close()
		return nil, errors.New("raftlog: manifest corrupt, no valid slot")
	}
	return man, nil
}

// save composes the new record in a scratch buffer, writes it to the
// non-active slot, and fsyncs before making it current — a torn write
// during this call leaves the previous slot intact.
func (m *manifest) save(next meta) error {
	next.seq = m.cur.seq + 1
	buf := next.encode()

	writeSlot := 1 - m.slot
	if _, err := m.f.WriteAt(buf, int64(writeSlot*manifestSlotLen)); err != nil {
		return err
	}
	if err := fileutil.Fsync(m.f); err != nil {
		return err
	}
	m.cur = next
	m.slot = writeSlot
	return nil
}

func (m *manifest) close() error {
	return m.f.Close()
}
