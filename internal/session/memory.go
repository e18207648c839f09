package session

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore はプロセス内メモリを使用するStore実装。
// 単一インスタンス構成や開発環境で使用する。
type MemoryStore struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{c: gocache.New(defaultTTL, time.Minute)}
}

// Set はキーに値を保存する。
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.c.Set(key, value, ttl)
	return nil
}

// Take はキーの値を取り出して削除する。
func (m *MemoryStore) Take(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	m.c.Delete(key)
	b, _ := v.([]byte)
	return b, true, nil
}

// Append はキーのリスト末尾に値を追加する。
func (m *MemoryStore) Append(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var list [][]byte
	if v, ok := m.c.Get(key); ok {
		existing, _ := v.([][]byte)
		list = make([][]byte, len(existing), len(existing)+1)
		copy(list, existing)
	}
	m.c.Set(key, append(list, value), ttl)
	return nil
}

// TakeAll はキーのリストを取り出して削除する。
func (m *MemoryStore) TakeAll(_ context.Context, key string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.c.Get(key)
	if !ok {
		return nil, nil
	}
	m.c.Delete(key)
	list, _ := v.([][]byte)
	return list, nil
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
