package kvstore

import (
	"sync"

	"github.com/google/btree"
)

// kvItem is one ordered key/value pair stored in MemoryBackend's tree,
// grounded on etcd's mvcc.treeIndex (sync.RWMutex + *btree.BTree).
type kvItem struct {
	key   string
	value string
}

func (a kvItem) Less(than btree.Item) bool {
	return a.key < than.(kvItem).key
}

// MemoryBackend is an in-memory Backend, for tests that exercise the
// Apply Engine without needing bolt's on-disk durability. Its ordered
// map is a real btree.BTree rather than a sorted slice, so ReadAll's
// "ordered map" contract is backed by the same kind of index the
// durable Store gets for free from bolt's sorted buckets.
type MemoryBackend struct {
	mu    sync.RWMutex
	tree  *btree.BTree
	locks map[string]lockHolder
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		tree:  btree.New(32),
		locks: make(map[string]lockHolder),
	}
}

func (m *MemoryBackend) Put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.ReplaceOrInsert(kvItem{key: key, value: value})
	return nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Delete(kvItem{key: key})
	return nil
}

func (m *MemoryBackend) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found := m.tree.Get(kvItem{key: key})
	if found == nil {
		return "", ErrKeyNotFound
	}
	return found.(kvItem).value, nil
}

func (m *MemoryBackend) ReadAll() ([]KV, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]KV, 0, m.tree.Len())
	m.tree.Ascend(func(it btree.Item) bool {
		kv := it.(kvItem)
		out = append(out, KV{Key: kv.key, Value: kv.value})
		return true
	})
	return out, nil
}

func (m *MemoryBackend) TryLock(key, holderIP string, holderPort int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.locks[key]; ok && (h.ip != holderIP || h.port != holderPort) {
		return ErrLocked
	}
	m.locks[key] = lockHolder{ip: holderIP, port: holderPort}
	return nil
}

func (m *MemoryBackend) UnLock(key, holderIP string, holderPort int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.locks[key]; ok && h.ip == holderIP && h.port == holderPort {
		delete(m.locks, key)
	}
	return nil
}

func (m *MemoryBackend) DeleteUser(ip string, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, h := range m.locks {
		if h.ip == ip && h.port == port {
			delete(m.locks, key)
		}
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
