// Package apply is the Apply Engine (C2): a single worker that
// monotonically advances apply_index from the Raft log's commit_index,
// dispatching each entry's decoded command into a kvstore.Backend and
// waking any client blocked on that index's result.
package apply

import (
	"context"
	"fmt"
	"sync"

	"github.com/cy99/floyd/command"
	"github.com/cy99/floyd/internal/xlog"
	"github.com/cy99/floyd/kvstore"
	"github.com/cy99/floyd/raft"
	"github.com/cy99/floyd/raftlog"
)

var logger = xlog.NewLogger("apply", xlog.INFO)

// Result is what a Write/Delete/Read/... command produced once applied.
type Result struct {
	// Value holds a Read/ReadAll response payload; empty for Write,
	// Delete, TryLock, UnLock, DeleteUser.
	Value string
	All   []kvstore.KV

	// Err is the KV-layer error (e.g. kvstore.ErrKeyNotFound,
	// kvstore.ErrLocked), nil on success.
	Err error
}

// node is the subset of *raft.Node the engine depends on, so tests can
// substitute a fake without standing up a full cluster.
type node interface {
	WaitCommitAtLeast(ctx context.Context, after uint64) (uint64, error)
}

// Engine is the Apply Engine (C2).
//
// (floyd RaftConsensus's apply thread, generalized out of the
// consensus core into its own collaborator per SPEC_FULL.md §4.2)
type Engine struct {
	node    node
	log     raftlog.Log
	backend kvstore.Backend

	mu       sync.Mutex
	results  map[uint64]Result
	waiters  map[uint64][]chan struct{}
	applied  uint64
	exiting  bool
	exitOnce sync.Once
	exitc    chan struct{}
	donec    chan struct{}
}

// New builds an Engine seeded from the log's persisted apply_index.
func New(n node, log raftlog.Log, backend kvstore.Backend) *Engine {
	return &Engine{
		node:    n,
		log:     log,
		backend: backend,
		results: make(map[uint64]Result),
		waiters: make(map[uint64][]chan struct{}),
		applied: log.Metadata().ApplyIndex,
		exitc:   make(chan struct{}),
		donec:   make(chan struct{}),
	}
}

// Start runs the worker loop in its own goroutine.
func (e *Engine) Start() {
	go e.run()
}

// Close stops the worker and waits for it to exit.
func (e *Engine) Close() error {
	e.exitOnce.Do(func() { close(e.exitc) })
	<-e.donec
	return nil
}

func (e *Engine) run() {
	defer close(e.donec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-e.exitc
		cancel()
	}()

	for {
		e.mu.Lock()
		after := e.applied
		e.mu.Unlock()

		commit, err := e.node.WaitCommitAtLeast(ctx, after)
		if err != nil {
			return
		}

		for next := after + 1; next <= commit; next++ {
			select {
			case <-e.exitc:
				return
			default:
			}
			e.applyOne(next)
		}
	}
}

// applyOne fetches, dispatches, records and signals for a single index
// (spec.md §4.2 steps 1-5).
func (e *Engine) applyOne(index uint64) {
	entry, err := e.log.GetEntry(index)
	if err != nil {
		logger.Errorf("apply: get entry %d: %v", index, err)
		return
	}

	var result Result
	if entry.Kind == raftlog.EntryData {
		result = e.dispatch(entry.Payload)
	}

	e.mu.Lock()
	e.results[index] = result
	e.applied = index
	waiters := e.waiters[index]
	delete(e.waiters, index)
	e.mu.Unlock()

	if err := e.log.UpdateMetadata(e.log.Metadata().CurrentTerm, e.log.Metadata().VotedFor, index); err != nil {
		logger.Errorf("apply: persist apply_index %d: %v", index, err)
	}

	for _, ch := range waiters {
		close(ch)
	}
}

// dispatch decodes and executes one committed entry's payload against
// the backend. A malformed payload or an unrecognized command.Kind is
// not a KV-layer error like ErrKeyNotFound — it means this entry could
// not be applied deterministically at all, which spec.md §7 calls
// Corruption (floyd Status::Corruption("exec command error!")).
func (e *Engine) dispatch(payload []byte) Result {
	cmd, err := command.Decode(payload)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: decode command: %v", raft.ErrCorruption, err)}
	}

	switch cmd.Kind {
	case command.Write:
		return Result{Err: e.backend.Put(cmd.Key, cmd.Value)}
	case command.Delete:
		return Result{Err: e.backend.Delete(cmd.Key)}
	case command.Read:
		v, err := e.backend.Get(cmd.Key)
		return Result{Value: v, Err: err}
	case command.ReadAll:
		all, err := e.backend.ReadAll()
		return Result{All: all, Err: err}
	case command.TryLock:
		return Result{Err: e.backend.TryLock(cmd.Key, cmd.IP, cmd.Port)}
	case command.UnLock:
		return Result{Err: e.backend.UnLock(cmd.Key, cmd.IP, cmd.Port)}
	case command.DeleteUser:
		return Result{Err: e.backend.DeleteUser(cmd.IP, cmd.Port)}
	default:
		return Result{Err: fmt.Errorf("%w: unknown command kind %v", raft.ErrCorruption, cmd.Kind)}
	}
}

// WaitApplied blocks until index has been applied, then returns its
// Result. Ctx cancellation returns ctx.Err().
func (e *Engine) WaitApplied(ctx context.Context, index uint64) (Result, error) {
	e.mu.Lock()
	if index <= e.applied {
		result := e.results[index]
		e.mu.Unlock()
		return result, nil
	}
	ch := make(chan struct{})
	e.waiters[index] = append(e.waiters[index], ch)
	e.mu.Unlock()

	select {
	case <-ch:
		e.mu.Lock()
		result := e.results[index]
		e.mu.Unlock()
		return result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// AppliedIndex returns the highest index applied so far.
func (e *Engine) AppliedIndex() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applied
}
