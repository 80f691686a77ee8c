package server

import (
	"errors"
	"net"
	"testing"
	"time"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := Config{
		LocalIP:             "127.0.0.1",
		LocalPort:           freePort(t),
		LogType:             LogMemory,
		ElectionTimeoutMS:   40,
		HeartbeatIntervalMS: 5,
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv
}

// waitForLeader polls Write, which requires the local node to be Leader,
// until the single-node cluster completes its election.
func waitForLeader(t *testing.T, srv *Server) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := srv.Write("__probe__", "1")
		if err == nil {
			return
		}
		if !errors.Is(err, ErrNoLeader) {
			t.Fatalf("Write during election: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("server never became leader")
		}
		time.Sleep(time.Millisecond)
	}
}

func Test_Server_WriteThenRead(t *testing.T) {
	srv := newTestServer(t)
	waitForLeader(t, srv)

	if err := srv.Write("k1", "v1"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := srv.Read("k1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "v1" {
		t.Fatalf("Read(k1) = %q, want v1", got)
	}
}

func Test_Server_DeleteRemovesKey(t *testing.T) {
	srv := newTestServer(t)
	waitForLeader(t, srv)

	if err := srv.Write("k1", "v1"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := srv.Delete("k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := srv.Read("k1"); err == nil {
		t.Fatal("Read after Delete should error")
	}
}

func Test_Server_DirtyReadBypassesConsensus(t *testing.T) {
	srv := newTestServer(t)
	waitForLeader(t, srv)

	if err := srv.Write("k1", "v1"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := srv.DirtyRead("k1")
	if err != nil {
		t.Fatalf("DirtyRead: %v", err)
	}
	if got != "v1" {
		t.Fatalf("DirtyRead(k1) = %q, want v1", got)
	}
}

func Test_Server_TryLockThenUnLock(t *testing.T) {
	srv := newTestServer(t)
	waitForLeader(t, srv)

	if err := srv.TryLock("lock1", "10.0.0.1", 9000); err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if err := srv.TryLock("lock1", "10.0.0.2", 9001); err == nil {
		t.Fatal("TryLock by a different session should fail while held")
	}
	if err := srv.UnLock("lock1", "10.0.0.1", 9000); err != nil {
		t.Fatalf("UnLock: %v", err)
	}
	if err := srv.TryLock("lock1", "10.0.0.2", 9001); err != nil {
		t.Fatalf("TryLock after UnLock: %v", err)
	}
}

func Test_Server_ReadAllOrdersKeys(t *testing.T) {
	srv := newTestServer(t)
	waitForLeader(t, srv)

	for _, k := range []string{"b", "a", "c"} {
		if err := srv.Write(k, k+"-value"); err != nil {
			t.Fatalf("Write(%s): %v", k, err)
		}
	}
	all, err := srv.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	var keys []string
	for _, kv := range all {
		if kv.Key == "__probe__" {
			continue
		}
		keys = append(keys, kv.Key)
	}
	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}

func Test_Server_StatusReportsRoleAndTerm(t *testing.T) {
	srv := newTestServer(t)
	waitForLeader(t, srv)

	st := srv.status()
	if st.Role != "Leader" {
		t.Fatalf("status().Role = %q, want Leader", st.Role)
	}
	if st.Halted {
		t.Fatal("status().Halted should be false on a healthy node")
	}
	if st.LeaderID == "" {
		t.Fatal("status().LeaderID should be set once elected")
	}
}

func Test_Server_GetLeader(t *testing.T) {
	srv := newTestServer(t)
	waitForLeader(t, srv)

	id, err := srv.GetLeader()
	if err != nil {
		t.Fatalf("GetLeader: %v", err)
	}
	if id == "" {
		t.Fatal("GetLeader() returned an empty ID for the elected leader")
	}
}
