// Package server bootstraps a floyd node: it owns the raftlog.Log, the
// raft.Node, the kvstore.Backend, the apply.Engine and the transport
// listener, and implements the Client API (spec.md §6) by calling into
// them exactly the way floyd's RaftConsensus::HandleWriteCommand and
// friends do in the original source.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cy99/floyd/apply"
	"github.com/cy99/floyd/command"
	"github.com/cy99/floyd/internal/xlog"
	"github.com/cy99/floyd/kvstore"
	"github.com/cy99/floyd/raft"
	"github.com/cy99/floyd/raftlog"
	"github.com/cy99/floyd/transport"
)

var logger = xlog.NewLogger("server", xlog.INFO)

// writeReadTimeout is the client write/read deadline against commit
// advancement (spec.md §4.6 "Timeouts").
const writeReadTimeout = 10 * time.Second

// ErrNoLeader is the sentinel a non-leader server returns for a
// leader-only operation (spec.md §6: "NotFound(\"no leader\")").
var ErrNoLeader = errors.New("server: no leader")

// ErrHalted is returned once the local raft.Node has entered its
// read-only halted state after an unrecoverable I/O error (spec.md
// §7); it never recovers within the process's lifetime.
var ErrHalted = errors.New("server: node halted, restart required")

// Server wires together the Raft core, apply pipeline, KV backend and
// RPC transport for one node.
//
// (floyd RaftConsensus, the outward-facing half)
type Server struct {
	cfg Config

	log     raftlog.Log
	node    *raft.Node
	backend kvstore.Backend
	engine  *apply.Engine
	peer    *transport.Peer

	httpServer *http.Server
}

// New constructs a Server from cfg but does not start it.
func New(cfg Config) (*Server, error) {
	log, err := openLog(cfg)
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(cfg)
	if err != nil {
		log.Close()
		return nil, err
	}

	peerIDs, addresses := peerTable(cfg)
	peerTransport := transport.NewPeer(addresses)

	node, err := raft.NewNode(raft.Config{
		LocalID:             cfg.localID(),
		PeerIDs:             peerIDs,
		Log:                 log,
		Transport:           peerTransport,
		ElectionTimeoutBase: cfg.electionTimeout(),
		HeartbeatInterval:   cfg.heartbeatInterval(),
	})
	if err != nil {
		backend.Close()
		log.Close()
		return nil, err
	}

	engine := apply.New(node, log, backend)

	return &Server{
		cfg:     cfg,
		log:     log,
		node:    node,
		backend: backend,
		engine:  engine,
		peer:    peerTransport,
	}, nil
}

func openLog(cfg Config) (raftlog.Log, error) {
	switch cfg.LogType {
	case LogMemory:
		return raftlog.NewMemoryLog(), nil
	case LogSimpleFile, LogSegmentedFile:
		return raftlog.Open(cfg.LogPath, uint64(cfg.SegmentSize))
	default:
		return nil, fmt.Errorf("server: unknown log_type %q", cfg.LogType)
	}
}

func openBackend(cfg Config) (kvstore.Backend, error) {
	if cfg.LogType == LogMemory {
		return kvstore.NewMemoryBackend(), nil
	}
	return kvstore.Open(cfg.DataPath)
}

func peerTable(cfg Config) (ids []string, addresses map[string]string) {
	addresses = make(map[string]string, len(cfg.PeerAddresses))
	for _, addr := range cfg.PeerAddresses {
		ids = append(ids, addr)
		addresses[addr] = addr
	}
	return ids, addresses
}

// Start brings up the Raft core and the HTTP listener for peer RPCs
// and the client API.
func (s *Server) Start() error {
	s.node.Start()
	s.engine.Start()

	mux := http.NewServeMux()
	transport.NewServer(s.node).Register(mux)
	s.registerClientRoutes(mux)

	addr := fmt.Sprintf("%s:%d", s.cfg.LocalIP, s.cfg.LocalPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.httpServer = &http.Server{Handler: mux}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Errorf("server: http serve: %v", err)
		}
	}()
	logger.Infof("server: listening on %s", addr)
	return nil
}

// Stop shuts down the HTTP listener, the apply engine and the Raft
// core, in that order.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
	s.engine.Close()
	err := s.node.Close()
	s.backend.Close()
	return err
}

// Write replicates a Write command and blocks until applied.
//
// (floyd RaftConsensus::HandleWriteCommand)
func (s *Server) Write(key, value string) error {
	result, err := s.replicateAndWait(command.Command{Kind: command.Write, Key: key, Value: value})
	if err != nil {
		return err
	}
	return result.Err
}

// Delete replicates a Delete command and blocks until applied.
func (s *Server) Delete(key string) error {
	result, err := s.replicateAndWait(command.Command{Kind: command.Delete, Key: key})
	if err != nil {
		return err
	}
	return result.Err
}

// Read replicates a Read command through the log for linearizability
// and returns its value once applied.
//
// (floyd RaftConsensus::HandleReadCommand)
func (s *Server) Read(key string) (string, error) {
	result, err := s.replicateAndWait(command.Command{Kind: command.Read, Key: key})
	if err != nil {
		return "", err
	}
	return result.Value, result.Err
}

// ReadAll replicates a ReadAll command and returns every key/value pair.
func (s *Server) ReadAll() ([]kvstore.KV, error) {
	result, err := s.replicateAndWait(command.Command{Kind: command.ReadAll})
	if err != nil {
		return nil, err
	}
	return result.All, result.Err
}

// TryLock replicates a TryLock command for the given session.
func (s *Server) TryLock(key, ip string, port int) error {
	result, err := s.replicateAndWait(command.Command{Kind: command.TryLock, Key: key, IP: ip, Port: port})
	if err != nil {
		return err
	}
	return result.Err
}

// UnLock replicates an UnLock command for the given session.
func (s *Server) UnLock(key, ip string, port int) error {
	result, err := s.replicateAndWait(command.Command{Kind: command.UnLock, Key: key, IP: ip, Port: port})
	if err != nil {
		return err
	}
	return result.Err
}

// DeleteUser replicates cleanup of every lock held by (ip, port).
func (s *Server) DeleteUser(ip string, port int) error {
	result, err := s.replicateAndWait(command.Command{Kind: command.DeleteUser, IP: ip, Port: port})
	if err != nil {
		return err
	}
	return result.Err
}

// DirtyRead answers from the local KV backend without going through
// consensus: no leader requirement, no linearizability.
func (s *Server) DirtyRead(key string) (string, error) {
	return s.backend.Get(key)
}

// GetLeader returns the current known leader's ID, or ErrNoLeader.
func (s *Server) GetLeader() (string, error) {
	id := s.node.LeaderID()
	if id == "" {
		return "", ErrNoLeader
	}
	return id, nil
}

// status snapshots the local node's role and its raft.PeerState view of
// every remote peer, including LastContact, for the /client/status
// route.
func (s *Server) status() statusResponse {
	resp := statusResponse{
		Role:        s.node.Role().String(),
		LeaderID:    s.node.LeaderID(),
		Term:        s.node.CurrentTerm(),
		CommitIndex: s.node.CommitIndex(),
		Halted:      s.node.Halted(),
	}
	for id, st := range s.node.PeerStates() {
		resp.Peers = append(resp.Peers, peerStatus{
			ID:          id,
			NextIndex:   st.NextIndex,
			MatchIndex:  st.MatchIndex,
			HaveVote:    st.HaveVote,
			LastContact: st.LastContact,
		})
	}
	return resp
}

// replicateAndWait is the shared Write/Delete/Read/... path: replicate
// through raft.Node, then block on the Apply Engine for that index's
// result, both under writeReadTimeout.
func (s *Server) replicateAndWait(cmd command.Command) (apply.Result, error) {
	if s.node.Halted() {
		return apply.Result{}, ErrHalted
	}
	if s.node.Role() != raft.Leader {
		return apply.Result{}, ErrNoLeader
	}

	payload, err := command.Encode(cmd)
	if err != nil {
		return apply.Result{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeReadTimeout)
	defer cancel()

	index, err := s.node.Replicate(payload)
	if err != nil {
		return apply.Result{}, err
	}
	if err := s.node.WaitForCommitIndex(ctx, index); err != nil {
		return apply.Result{}, err
	}
	return s.engine.WaitApplied(ctx, index)
}
