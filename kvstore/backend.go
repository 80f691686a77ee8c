// Package kvstore is the KV backing store the Apply Engine drives: an
// ordered key/value map plus a distributed lock table, both dispatched
// from decoded command.Command values.
//
// (floyd FloydWorker's storage / lock_mgr collaborators)
package kvstore

import (
	"errors"
	"sync"

	"github.com/boltdb/bolt"

	"github.com/cy99/floyd/internal/xlog"
)

var logger = xlog.NewLogger("kvstore", xlog.INFO)

var bucketName = []byte("floyd")

// ErrKeyNotFound is returned by Get for a missing key.
var ErrKeyNotFound = errors.New("kvstore: key not found")

// ErrLocked is returned by TryLock when the key is already held by a
// different session.
var ErrLocked = errors.New("kvstore: key already locked")

// KV is one ordered key/value pair, as returned by ReadAll.
//
// (floyd command::KV)
type KV struct {
	Key   string
	Value string
}

// Backend is the contract the Apply Engine dispatches decoded commands
// against. It is satisfied by *Store (bolt-backed, durable) and
// *MemoryBackend (in-memory, for tests that don't need durability).
type Backend interface {
	Put(key, value string) error
	Delete(key string) error
	Get(key string) (string, error)
	ReadAll() ([]KV, error)

	TryLock(key, holderIP string, holderPort int) error
	UnLock(key, holderIP string, holderPort int) error
	DeleteUser(ip string, port int) error

	Close() error
}

// Store is the durable Backend, grounded on etcd's
// mvcc/backend.backend: one bolt bucket holds committed key/value
// pairs, and every mutation runs inside a single write transaction.
//
// (floyd RaftConsensus's LevelDB/RocksDB storage engine, generalized to
// spec.md's "opaque ordered map with atomic put/delete/get")
type Store struct {
	db *bolt.DB

	lockMu sync.Mutex
	locks  map[string]lockHolder
}

type lockHolder struct {
	ip   string
	port int
}

// Open opens or creates the bolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, locks: make(map[string]lockHolder)}, nil
}

func (s *Store) Put(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
}

func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return ErrKeyNotFound
		}
		value = string(v)
		return nil
	})
	return value, err
}

// ReadAll returns every key/value pair, ordered by key (bolt buckets
// iterate in sorted byte order, satisfying spec.md's "ordered map").
func (s *Store) ReadAll() ([]KV, error) {
	var out []KV
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			out = append(out, KV{Key: string(k), Value: string(v)})
		}
		return nil
	})
	return out, err
}

// TryLock grants key to (holderIP, holderPort) if unheld or already
// held by that same session; otherwise reports ErrLocked.
//
// (floyd command::kTryLock — a distributed lock, disjoint from the KV
// bucket: it never touches Put/Get/Delete state)
func (s *Store) TryLock(key, holderIP string, holderPort int) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if h, ok := s.locks[key]; ok && (h.ip != holderIP || h.port != holderPort) {
		return ErrLocked
	}
	s.locks[key] = lockHolder{ip: holderIP, port: holderPort}
	return nil
}

// UnLock releases key if held by (holderIP, holderPort); releasing an
// unheld or differently-held key is a no-op.
func (s *Store) UnLock(key, holderIP string, holderPort int) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if h, ok := s.locks[key]; ok && h.ip == holderIP && h.port == holderPort {
		delete(s.locks, key)
	}
	return nil
}

// DeleteUser releases every lock held by (ip, port) — floyd's cleanup
// when a client session disconnects.
func (s *Store) DeleteUser(ip string, port int) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	for key, h := range s.locks {
		if h.ip == ip && h.port == port {
			delete(s.locks, key)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
