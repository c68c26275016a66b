package kvstore

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by the logic package tests so those
// tests exercise real TTL/expiry/atomicity semantics without a live Redis.
type MemStore struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	strings map[string]string
	sets    map[string]map[string]struct{}
	expires map[string]time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		hashes:  map[string]map[string]string{},
		strings: map[string]string{},
		sets:    map[string]map[string]struct{}{},
		expires: map[string]time.Time{},
	}
}

func (m *MemStore) expired(key string) bool {
	if at, ok := m.expires[key]; ok && time.Now().After(at) {
		delete(m.hashes, key)
		delete(m.strings, key)
		delete(m.sets, key)
		delete(m.expires, key)
		return true
	}
	return false
}

func (m *MemStore) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *MemStore) HGetAll(_ context.Context, key string) (map[string]string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return nil, false, nil
	}
	h, ok := m.hashes[key]
	if !ok || len(h) == 0 {
		return nil, false, nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, true, nil
}

func (m *MemStore) HIncrBy(_ context.Context, key, field string, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	var cur int64
	if v, ok := h[field]; ok {
		cur, _ = strconv.ParseInt(v, 10, 64)
	}
	cur += n
	h[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (m *MemStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = time.Now().Add(ttl)
	return nil
}

func (m *MemStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.hashes, key)
		delete(m.strings, key)
		delete(m.sets, key)
		delete(m.expires, key)
	}
	return nil
}

func (m *MemStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	if _, ok := m.strings[key]; ok {
		return false, nil
	}
	m.strings[key] = value
	if ttl > 0 {
		m.expires[key] = time.Now().Add(ttl)
	}
	return true, nil
}

func (m *MemStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	if ttl > 0 {
		m.expires[key] = time.Now().Add(ttl)
	} else {
		delete(m.expires, key)
	}
	return nil
}

func (m *MemStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return "", false, nil
	}
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *MemStore) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	s, ok := m.sets[key]
	if !ok {
		s = map[string]struct{}{}
		m.sets[key] = s
	}
	for _, mem := range members {
		s[mem] = struct{}{}
	}
	return nil
}

func (m *MemStore) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		return nil
	}
	for _, mem := range members {
		delete(s, mem)
	}
	return nil
}

func (m *MemStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return nil, nil
	}
	s := m.sets[key]
	out := make([]string, 0, len(s))
	for mem := range s {
		out = append(out, mem)
	}
	return out, nil
}

func (m *MemStore) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	seen := map[string]struct{}{}
	collect := func(key string) {
		if m.expired(key) {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		if ok, _ := filepath.Match(pattern, key); ok {
			out = append(out, key)
			seen[key] = struct{}{}
		}
	}
	for key := range m.hashes {
		collect(key)
	}
	for key := range m.strings {
		collect(key)
	}
	for key := range m.sets {
		collect(key)
	}
	return out, nil
}
