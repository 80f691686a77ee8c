package kvstore

import (
	"os"
	"path/filepath"
	"testing"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "kvstore")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := Open(filepath.Join(dir, "kv.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func Test_Store_PutGetDelete(t *testing.T) {
	s := tempStore(t)

	if err := s.Put("k1", "v1"); err != nil {
		t.Fatal(err)
	}
	v, err := s.Get("k1")
	if err != nil || v != "v1" {
		t.Fatalf("Get(k1) = (%q, %v), want (v1, nil)", v, err)
	}

	if err := s.Delete("k1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("k1"); err != ErrKeyNotFound {
		t.Fatalf("Get(deleted) = %v, want ErrKeyNotFound", err)
	}
}

func Test_Store_ReadAllIsOrdered(t *testing.T) {
	s := tempStore(t)
	for _, kv := range []KV{{Key: "z", Value: "26"}, {Key: "a", Value: "1"}, {Key: "m", Value: "13"}} {
		if err := s.Put(kv.Key, kv.Value); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := []KV{{Key: "a", Value: "1"}, {Key: "m", Value: "13"}, {Key: "z", Value: "26"}}
	if len(all) != len(want) {
		t.Fatalf("ReadAll() = %+v, want %+v", all, want)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Fatalf("ReadAll()[%d] = %+v, want %+v", i, all[i], want[i])
		}
	}
}

func Test_Store_TryLockRejectsOtherSession(t *testing.T) {
	// Locks are in-memory only, unlike the KV bucket: they do not
	// survive a restart. This test checks only that a held lock
	// refuses a different session.
	s := tempStore(t)
	if err := s.TryLock("lock1", "10.0.0.1", 100); err != nil {
		t.Fatal(err)
	}
	if err := s.TryLock("lock1", "10.0.0.2", 200); err != ErrLocked {
		t.Fatalf("TryLock by other session = %v, want ErrLocked", err)
	}
}
