package raftlog

import (
	"os"
	"path/filepath"
	"testing"
)

func Test_Manifest_OpenCreatesDefault(t *testing.T) {
	dir := tempLogDir(t)
	man, err := openManifest(filepath.Join(dir, "manifest"))
	if err != nil {
		t.Fatal(err)
	}
	defer man.close()

	if man.cur.entryStart != 1 {
		t.Fatalf("cur.entryStart = %d, want 1", man.cur.entryStart)
	}
	if man.cur.fileNum != 0 {
		t.Fatalf("cur.fileNum = %d, want 0 (uninitialized)", man.cur.fileNum)
	}
}

func Test_Manifest_SaveAndReopen(t *testing.T) {
	dir := tempLogDir(t)
	path := filepath.Join(dir, "manifest")

	man, err := openManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := man.save(meta{
		fileNum:     1,
		entryStart:  1,
		entryEnd:    3,
		currentTerm: 2,
		votedFor:    "10.0.0.1:8900",
		applyIndex:  1,
	}); err != nil {
		t.Fatal(err)
	}
	if err := man.close(); err != nil {
		t.Fatal(err)
	}

	man2, err := openManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	defer man2.close()

	if man2.cur.entryEnd != 3 || man2.cur.currentTerm != 2 || man2.cur.votedFor != "10.0.0.1:8900" {
		t.Fatalf("reopened manifest = %+v, want entryEnd=3 currentTerm=2 votedFor=10.0.0.1:8900", man2.cur)
	}
}

func Test_Manifest_SaveAlternatesSlots(t *testing.T) {
	dir := tempLogDir(t)
	man, err := openManifest(filepath.Join(dir, "manifest"))
	if err != nil {
		t.Fatal(err)
	}
	defer man.close()

	firstSlot := man.slot
	if err := man.save(meta{fileNum: 1, entryStart: 1, entryEnd: 1}); err != nil {
		t.Fatal(err)
	}
	if man.slot == firstSlot {
		t.Fatalf("save() did not alternate slots: still %d", man.slot)
	}
	if err := man.save(meta{fileNum: 1, entryStart: 1, entryEnd: 2}); err != nil {
		t.Fatal(err)
	}
	if man.slot != firstSlot {
		t.Fatalf("second save() did not alternate back to slot %d, got %d", firstSlot, man.slot)
	}
}

func Test_Manifest_PicksHigherSeqOnCorruption(t *testing.T) {
	dir := tempLogDir(t)
	path := filepath.Join(dir, "manifest")

	man, err := openManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	man.save(meta{fileNum: 1, entryStart: 1, entryEnd: 1, currentTerm: 1})
	man.save(meta{fileNum: 1, entryStart: 1, entryEnd: 2, currentTerm: 2})
	if err := man.close(); err != nil {
		t.Fatal(err)
	}

	// Corrupt the slot holding the newest record (man.slot after two
	// saves starting from slot=1 is back to slot 1). Reopening must
	// fall back to the other, still-valid slot rather than fail.
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt(make([]byte, manifestSlotLen), int64(man.slot*manifestSlotLen)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	man2, err := openManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	defer man2.close()

	if man2.cur.currentTerm != 1 || man2.cur.entryEnd != 1 {
		t.Fatalf("after corrupting newest slot, cur = %+v, want the older valid record (currentTerm=1, entryEnd=1)", man2.cur)
	}
}

func Test_Meta_EncodeDecodeRoundTrip(t *testing.T) {
	m := meta{
		seq:         7,
		fileNum:     3,
		entryStart:  10,
		entryEnd:    42,
		currentTerm: 5,
		votedFor:    "192.168.1.1:9000",
		applyIndex:  40,
	}
	got, ok := decodeMeta(m.encode())
	if !ok {
		t.Fatal("decodeMeta() reported invalid, want valid")
	}
	if got != m {
		t.Fatalf("decodeMeta() = %+v, want %+v", got, m)
	}
}

func Test_Meta_DecodeRejectsBadCRC(t *testing.T) {
	m := meta{seq: 1, fileNum: 1, entryStart: 1, entryEnd: 1}
	buf := m.encode()
	buf[0] ^= 0xff // corrupt a byte covered by the checksum
	if _, ok := decodeMeta(buf); ok {
		t.Fatal("decodeMeta() accepted a corrupted buffer")
	}
}
