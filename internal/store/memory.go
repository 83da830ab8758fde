package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
)

const defaultShardCount = 16

type memoryShard struct {
	mu   sync.RWMutex
	data map[string]string
}

// MemoryStore keeps values in process memory, spread over murmur3-selected
// shards so unrelated keys do not contend on one lock.
type MemoryStore struct {
	shards []*memoryShard
}

func NewMemoryStore(shardCount int) *MemoryStore {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	shards := make([]*memoryShard, shardCount)
	for i := range shards {
		shards[i] = &memoryShard{data: make(map[string]string)}
	}
	return &MemoryStore{shards: shards}
}

func (m *MemoryStore) shard(key string) *memoryShard {
	return m.shards[murmur3.Sum32([]byte(key))%uint32(len(m.shards))]
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s := m.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

func (m *MemoryStore) Put(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := m.shard(key)
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	for _, s := range m.shards {
		s.mu.RLock()
		for k := range s.data {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys, nil
}
