// Package client is a thin Client API client for floyd servers,
// speaking the same gob-over-HTTP envelope as package server's
// routes.
package client

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
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

// PeerStatus is one remote peer's replication bookkeeping as reported
// by a server's /client/status route (spec.md §3 "Peer State").
type PeerStatus struct {
	ID          string
	NextIndex   uint64
	MatchIndex  uint64
	HaveVote    bool
	LastContact time.Time
}

// Status is a server's self-reported role and per-peer view.
type Status struct {
	Role        string
	LeaderID    string
	Term        uint64
	CommitIndex uint64
	Halted      bool
	Peers       []PeerStatus
}

// Client is a floyd Client API client bound to a single server
// address; callers retry against a different address after a
// "no leader" or connection error, per spec.md §6.
type Client struct {
	http *http.Client
	addr string
}

func New(addr string) *Client {
	return &Client{http: &http.Client{}, addr: addr}
}

func (c *Client) Write(key, value string) error {
	resp, err := c.callString(pathWrite, keyValueRequest{Key: key, Value: value})
	if err != nil {
		return err
	}
	return asError(resp.Err)
}

func (c *Client) Delete(key string) error {
	resp, err := c.callString(pathDelete, keyValueRequest{Key: key})
	if err != nil {
		return err
	}
	return asError(resp.Err)
}

func (c *Client) Read(key string) (string, error) {
	resp, err := c.callString(pathRead, keyValueRequest{Key: key})
	if err != nil {
		return "", err
	}
	return resp.Value, asError(resp.Err)
}

func (c *Client) DirtyRead(key string) (string, error) {
	resp, err := c.callString(pathDirtyRead, keyValueRequest{Key: key})
	if err != nil {
		return "", err
	}
	return resp.Value, asError(resp.Err)
}

func (c *Client) ReadAll() ([]kvstore.KV, error) {
	var resp readAllResponse
	if err := c.do(pathReadAll, keyValueRequest{}, &resp); err != nil {
		return nil, err
	}
	return resp.All, asError(resp.Err)
}

func (c *Client) TryLock(key, ip string, port int) error {
	resp, err := c.callString(pathTryLock, keyValueRequest{Key: key, IP: ip, Port: port})
	if err != nil {
		return err
	}
	return asError(resp.Err)
}

func (c *Client) UnLock(key, ip string, port int) error {
	resp, err := c.callString(pathUnLock, keyValueRequest{Key: key, IP: ip, Port: port})
	if err != nil {
		return err
	}
	return asError(resp.Err)
}

// GetLeader returns the responding server's view of the current leader
// ID, formatted "ip:port".
func (c *Client) GetLeader() (string, error) {
	var resp leaderResponse
	if err := c.do(pathGetLeader, keyValueRequest{}, &resp); err != nil {
		return "", err
	}
	return resp.LeaderID, asError(resp.Err)
}

// Status fetches the responding server's role, term and per-peer
// PeerState view.
func (c *Client) Status() (Status, error) {
	var resp Status
	if err := c.do(pathStatus, keyValueRequest{}, &resp); err != nil {
		return Status{}, err
	}
	return resp, nil
}

func (c *Client) callString(path string, req keyValueRequest) (stringResponse, error) {
	var resp stringResponse
	err := c.do(path, req, &resp)
	return resp, err
}

func (c *Client) do(path string, req interface{}, out interface{}) error {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(req); err != nil {
		return fmt.Errorf("client: encode request: %w", err)
	}

	httpResp, err := c.http.Post("http://"+c.addr+path, "application/x-gob", &body)
	if err != nil {
		return fmt.Errorf("client: %s: %w", c.addr, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("client: %s: status %d: %s", c.addr, httpResp.StatusCode, b)
	}
	return gob.NewDecoder(httpResp.Body).Decode(out)
}

func asError(msg string) error {
	if msg == "" {
		return nil
	}
	return fmt.Errorf("%s", msg)
}
