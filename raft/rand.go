package raft

import (
	"math/rand"
	"sync"
	"time"
)

// lockedRand wraps rand.Rand for safe concurrent use by every peer
// worker and the election timer computing a randomized timeout.
//
// (etcd raft.lockedRand)
type lockedRand struct {
	mu   sync.Mutex
	rand *rand.Rand
}

func (r *lockedRand) Int63n(n int64) int64 {
	r.mu.Lock()
	v := r.rand.Int63n(n)
	r.mu.Unlock()
	return v
}

var globalRand = &lockedRand{
	rand: rand.New(rand.NewSource(time.Now().UnixNano())),
}
