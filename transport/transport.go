// Package transport is the RPC transport (external collaborator):
// RequestVote/AppendEntries ride net/http with gob-encoded bodies,
// mirroring the shape of etcd's rafthttp package with protobuf
// swapped for gob to match the rest of this module's wire format.
package transport

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"net/http"

	"github.com/cy99/floyd/internal/xlog"
	"github.com/cy99/floyd/raft"
)

var logger = xlog.NewLogger("transport", xlog.INFO)

const (
	pathRequestVote   = "/raft/request-vote"
	pathAppendEntries = "/raft/append-entries"

	headerContentType = "Content-Type"
	gobContentType    = "application/x-gob"
)

// Peer is a client-side handle for one remote node's Raft RPCs. It
// implements raft.Transport by dialing an HTTP address per target ID.
//
// (etcd rafthttp.peer, minus the streaming pipeline: this module's RPCs
// are all small, synchronous request/response pairs)
type Peer struct {
	client    *http.Client
	addresses map[string]string // node ID -> "host:port"
}

// NewPeer builds a Peer client keyed by node ID -> HTTP address.
func NewPeer(addresses map[string]string) *Peer {
	return &Peer{client: &http.Client{}, addresses: addresses}
}

var _ raft.Transport = (*Peer)(nil)

func (p *Peer) RequestVote(ctx context.Context, target string, req *raft.RequestVoteRequest) (*raft.RequestVoteResponse, error) {
	resp := &raft.RequestVoteResponse{}
	if err := p.call(ctx, target, pathRequestVote, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *Peer) AppendEntries(ctx context.Context, target string, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error) {
	resp := &raft.AppendEntriesResponse{}
	if err := p.call(ctx, target, pathAppendEntries, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *Peer) call(ctx context.Context, target, path string, in, out interface{}) error {
	addr, ok := p.addresses[target]
	if !ok {
		return fmt.Errorf("transport: unknown peer %q", target)
	}

	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(in); err != nil {
		return fmt.Errorf("transport: encode request: %w", err)
	}

	url := "http://" + addr + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	httpReq.Header.Set(headerContentType, gobContentType)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("transport: %s: %w", target, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("transport: %s: status %d: %s", target, httpResp.StatusCode, b)
	}
	if err := gob.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("transport: decode response: %w", err)
	}
	return nil
}

// Server dispatches inbound peer RPCs into a raft.Node's handler
// methods.
//
// (etcd rafthttp.pipelineHandler, generalized: no streaming, since this
// module has no snapshot transfer)
type Server struct {
	node *raft.Node
}

func NewServer(node *raft.Node) *Server {
	return &Server{node: node}
}

// Register mounts the peer RPC routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc(pathRequestVote, s.handleRequestVote)
	mux.HandleFunc(pathAppendEntries, s.handleAppendEntries)
}

func (s *Server) handleRequestVote(w http.ResponseWriter, r *http.Request) {
	var req raft.RequestVoteRequest
	if err := gob.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := s.node.HandleRequestVote(&req)
	writeGob(w, resp)
}

func (s *Server) handleAppendEntries(w http.ResponseWriter, r *http.Request) {
	var req raft.AppendEntriesRequest
	if err := gob.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := s.node.HandleAppendEntries(&req)
	writeGob(w, resp)
}

func writeGob(w http.ResponseWriter, v interface{}) {
	w.Header().Set(headerContentType, gobContentType)
	if err := gob.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("transport: encode response: %v", err)
	}
}
