package server

import (
	"encoding/gob"
	"net/http"
	"time"

	"github.com/cy99/floyd/kvstore"
)

const (
	pathWrite     = "/client/write"
	pathDelete    = "/client/delete"
	pathRead      = "/client/read"
	pathReadAll   = "/client/read-all"
	pathDirtyRead = "/client/dirty-read"
	pathTryLock   = "/client/try-lock"
	pathUnLock    = "/client/unlock"
	pathGetLeader = "/client/leader"
	pathStatus    = "/client/status"
)

// keyValueRequest carries every client request that needs a key,
// value and/or session identity; unused fields are simply left zero.
type keyValueRequest struct {
	Key   string
	Value string
	IP    string
	Port  int
}

type stringResponse struct {
	Value string
	Err   string
}

type readAllResponse struct {
	All []kvstore.KV
	Err string
}

type leaderResponse struct {
	LeaderID string
	Err      string
}

// peerStatus is one entry of raft.PeerState flattened for gob transfer,
// keyed separately since PeerState itself carries no peer ID.
type peerStatus struct {
	ID          string
	NextIndex   uint64
	MatchIndex  uint64
	HaveVote    bool
	LastContact time.Time
}

type statusResponse struct {
	Role        string
	LeaderID    string
	Term        uint64
	CommitIndex uint64
	Halted      bool
	Peers       []peerStatus
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// registerClientRoutes mounts the Client API (spec.md §6) on mux,
// riding the same gob envelope as the peer RPCs (SPEC_FULL.md §4.8).
func (s *Server) registerClientRoutes(mux *http.ServeMux) {
	mux.HandleFunc(pathWrite, s.handleWrite)
	mux.HandleFunc(pathDelete, s.handleDelete)
	mux.HandleFunc(pathRead, s.handleRead)
	mux.HandleFunc(pathReadAll, s.handleReadAll)
	mux.HandleFunc(pathDirtyRead, s.handleDirtyRead)
	mux.HandleFunc(pathTryLock, s.handleTryLock)
	mux.HandleFunc(pathUnLock, s.handleUnLock)
	mux.HandleFunc(pathGetLeader, s.handleGetLeader)
	mux.HandleFunc(pathStatus, s.handleStatus)
}

func decodeKeyValueRequest(r *http.Request) (keyValueRequest, error) {
	var req keyValueRequest
	err := gob.NewDecoder(r.Body).Decode(&req)
	return req, err
}

func writeGobResponse(w http.ResponseWriter, v interface{}) {
	if err := gob.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("server: encode client response: %v", err)
	}
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	req, err := decodeKeyValueRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeGobResponse(w, stringResponse{Err: errString(s.Write(req.Key, req.Value))})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	req, err := decodeKeyValueRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeGobResponse(w, stringResponse{Err: errString(s.Delete(req.Key))})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	req, err := decodeKeyValueRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	value, err := s.Read(req.Key)
	writeGobResponse(w, stringResponse{Value: value, Err: errString(err)})
}

func (s *Server) handleReadAll(w http.ResponseWriter, r *http.Request) {
	all, err := s.ReadAll()
	writeGobResponse(w, readAllResponse{All: all, Err: errString(err)})
}

func (s *Server) handleDirtyRead(w http.ResponseWriter, r *http.Request) {
	req, err := decodeKeyValueRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	value, err := s.DirtyRead(req.Key)
	writeGobResponse(w, stringResponse{Value: value, Err: errString(err)})
}

func (s *Server) handleTryLock(w http.ResponseWriter, r *http.Request) {
	req, err := decodeKeyValueRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeGobResponse(w, stringResponse{Err: errString(s.TryLock(req.Key, req.IP, req.Port))})
}

func (s *Server) handleUnLock(w http.ResponseWriter, r *http.Request) {
	req, err := decodeKeyValueRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeGobResponse(w, stringResponse{Err: errString(s.UnLock(req.Key, req.IP, req.Port))})
}

func (s *Server) handleGetLeader(w http.ResponseWriter, r *http.Request) {
	id, err := s.GetLeader()
	writeGobResponse(w, leaderResponse{LeaderID: id, Err: errString(err)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeGobResponse(w, s.status())
}
