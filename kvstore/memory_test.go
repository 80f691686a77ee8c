package kvstore

import "testing"

func Test_MemoryBackend_PutGetDelete(t *testing.T) {
	b := NewMemoryBackend()

	if _, err := b.Get("k1"); err != ErrKeyNotFound {
		t.Fatalf("Get(missing) = %v, want ErrKeyNotFound", err)
	}
	if err := b.Put("k1", "v1"); err != nil {
		t.Fatal(err)
	}
	v, err := b.Get("k1")
	if err != nil || v != "v1" {
		t.Fatalf("Get(k1) = (%q, %v), want (v1, nil)", v, err)
	}

	if err := b.Delete("k1"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Get("k1"); err != ErrKeyNotFound {
		t.Fatalf("Get(deleted) = %v, want ErrKeyNotFound", err)
	}
}

func Test_MemoryBackend_ReadAllIsOrdered(t *testing.T) {
	b := NewMemoryBackend()
	for _, kv := range []KV{{Key: "c", Value: "3"}, {Key: "a", Value: "1"}, {Key: "b", Value: "2"}} {
		if err := b.Put(kv.Key, kv.Value); err != nil {
			t.Fatal(err)
		}
	}

	all, err := b.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := []KV{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "c", Value: "3"}}
	if len(all) != len(want) {
		t.Fatalf("ReadAll() = %+v, want %+v", all, want)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Fatalf("ReadAll()[%d] = %+v, want %+v", i, all[i], want[i])
		}
	}
}

func Test_MemoryBackend_TryLockUnLock(t *testing.T) {
	b := NewMemoryBackend()

	if err := b.TryLock("lock1", "10.0.0.1", 100); err != nil {
		t.Fatal(err)
	}
	// Same session re-locking is idempotent.
	if err := b.TryLock("lock1", "10.0.0.1", 100); err != nil {
		t.Fatalf("re-lock by same session should succeed: %v", err)
	}
	// Different session is refused.
	if err := b.TryLock("lock1", "10.0.0.2", 200); err != ErrLocked {
		t.Fatalf("TryLock by other session = %v, want ErrLocked", err)
	}

	// Unlock by the wrong session is a no-op.
	if err := b.UnLock("lock1", "10.0.0.2", 200); err != nil {
		t.Fatal(err)
	}
	if err := b.TryLock("lock1", "10.0.0.2", 200); err != ErrLocked {
		t.Fatal("lock should still be held after a no-op unlock by a different session")
	}

	if err := b.UnLock("lock1", "10.0.0.1", 100); err != nil {
		t.Fatal(err)
	}
	if err := b.TryLock("lock1", "10.0.0.2", 200); err != nil {
		t.Fatalf("lock should be free after owner unlocks: %v", err)
	}
}

func Test_MemoryBackend_DeleteUser(t *testing.T) {
	b := NewMemoryBackend()
	b.TryLock("lock1", "10.0.0.1", 100)
	b.TryLock("lock2", "10.0.0.1", 100)
	b.TryLock("lock3", "10.0.0.2", 200)

	if err := b.DeleteUser("10.0.0.1", 100); err != nil {
		t.Fatal(err)
	}

	if err := b.TryLock("lock1", "10.0.0.3", 300); err != nil {
		t.Fatalf("lock1 should be free after DeleteUser: %v", err)
	}
	if err := b.TryLock("lock2", "10.0.0.3", 300); err != nil {
		t.Fatalf("lock2 should be free after DeleteUser: %v", err)
	}
	if err := b.TryLock("lock3", "10.0.0.3", 300); err != ErrLocked {
		t.Fatalf("lock3 held by an untouched session should remain locked: %v", err)
	}
}
