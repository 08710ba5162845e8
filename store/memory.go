package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gamesense/recsys/core"
)

// MemoryStore 是内存实现的 Store，用于测试/开发/原型。
// 支持 TTL（过期时间），但进程重启后数据丢失。
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]*entry
	zsets  map[string]map[string]float64 // zset key -> member -> score
	sets   map[string]map[string]bool    // set key -> member
	lists  map[string][]string           // list key -> values（头部为最新）
	expiry map[string]time.Time          // 结构类型 key 的过期时间
	clean  *time.Ticker
}

type entry struct {
	value []byte
	ttl   *time.Time
}

func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		data:   make(map[string]*entry),
		zsets:  make(map[string]map[string]float64),
		sets:   make(map[string]map[string]bool),
		lists:  make(map[string][]string),
		expiry: make(map[string]time.Time),
		clean:  time.NewTicker(10 * time.Second),
	}
	go ms.cleanup()
	return ms
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[key]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	if e.ttl != nil && time.Now().After(*e.ttl) {
		return nil, core.ErrStoreNotFound
	}
	return e.value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &entry{value: value}
	if len(ttl) > 0 && ttl[0] > 0 {
		expire := time.Now().Add(time.Duration(ttl[0]) * time.Second)
		e.ttl = &expire
	}
	m.data[key] = e
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	delete(m.zsets, key)
	delete(m.sets, key)
	delete(m.lists, key)
	delete(m.expiry, key)
	return nil
}

func (m *MemoryStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]byte, len(keys))
	now := time.Now()
	for _, k := range keys {
		e, ok := m.data[k]
		if !ok {
			continue
		}
		if e.ttl != nil && now.After(*e.ttl) {
			continue
		}
		result[k] = e.value
	}
	return result, nil
}

func (m *MemoryStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expire *time.Time
	if len(ttl) > 0 && ttl[0] > 0 {
		t := time.Now().Add(time.Duration(ttl[0]) * time.Second)
		expire = &t
	}

	for k, v := range kvs {
		m.data[k] = &entry{value: v, ttl: expire}
	}
	return nil
}

func (m *MemoryStore) Close() error {
	if m.clean != nil {
		m.clean.Stop()
	}
	return nil
}

func (m *MemoryStore) cleanup() {
	for range m.clean.C {
		m.mu.Lock()
		now := time.Now()
		for k, e := range m.data {
			if e.ttl != nil && now.After(*e.ttl) {
				delete(m.data, k)
			}
		}
		for k, expire := range m.expiry {
			if now.After(expire) {
				delete(m.zsets, k)
				delete(m.sets, k)
				delete(m.lists, k)
				delete(m.expiry, k)
			}
		}
		m.mu.Unlock()
	}
}

// expired 检查结构类型 key 是否已过期（调用方需持有读锁）。
func (m *MemoryStore) expired(key string) bool {
	expire, ok := m.expiry[key]
	return ok && time.Now().After(expire)
}

// KeyValueStore 扩展方法（MemoryStore 也实现 KeyValueStore 接口）

var _ core.KeyValueStore = (*MemoryStore)(nil)

func (m *MemoryStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.zsets[key] == nil {
		m.zsets[key] = make(map[string]float64)
	}
	m.zsets[key][member] = score
	return nil
}

// sortedMembers 按 score 降序返回 zset 成员（调用方需持有读锁）。
func (m *MemoryStore) sortedMembers(key string) []core.ScoredMember {
	zset, ok := m.zsets[key]
	if !ok || len(zset) == 0 || m.expired(key) {
		return nil
	}
	pairs := make([]core.ScoredMember, 0, len(zset))
	for member, s := range zset {
		pairs = append(pairs, core.ScoredMember{Member: member, Score: s})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Score != pairs[j].Score {
			return pairs[i].Score > pairs[j].Score
		}
		return pairs[i].Member < pairs[j].Member
	})
	return pairs
}

func clampRange(start, stop, n int64) (int64, int64, bool) {
	if start < 0 {
		start = 0
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return 0, 0, false
	}
	return start, stop, true
}

func (m *MemoryStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	pairs, err := m.ZRangeWithScores(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(pairs))
	for _, p := range pairs {
		result = append(result, p.Member)
	}
	return result, nil
}

func (m *MemoryStore) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]core.ScoredMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pairs := m.sortedMembers(key)
	start, stop, ok := clampRange(start, stop, int64(len(pairs)))
	if !ok {
		return nil, nil
	}
	return pairs[start : stop+1], nil
}

func (m *MemoryStore) ZScore(ctx context.Context, key string, member string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	zset, ok := m.zsets[key]
	if !ok || m.expired(key) {
		return 0, core.ErrStoreNotFound
	}
	score, ok := zset[member]
	if !ok {
		return 0, core.ErrStoreNotFound
	}
	return score, nil
}

func (m *MemoryStore) ZReplace(ctx context.Context, key string, members map[string]float64, ttl ...int) error {
	next := make(map[string]float64, len(members))
	for member, score := range members {
		next[member] = score
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// 整表替换：持锁换 map 指针，读方看到的要么是旧榜、要么是新榜
	m.zsets[key] = next
	m.setExpiry(key, ttl...)
	return nil
}

func (m *MemoryStore) SAdd(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sets[key] == nil {
		m.sets[key] = make(map[string]bool)
	}
	for _, member := range members {
		m.sets[key][member] = true
	}
	return nil
}

func (m *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.sets[key]
	if !ok || m.expired(key) {
		return nil, nil
	}
	result := make([]string, 0, len(set))
	for member := range set {
		result = append(result, member)
	}
	sort.Strings(result)
	return result, nil
}

func (m *MemoryStore) SReplace(ctx context.Context, key string, members []string, ttl ...int) error {
	next := make(map[string]bool, len(members))
	for _, member := range members {
		next[member] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sets[key] = next
	m.setExpiry(key, ttl...)
	return nil
}

func (m *MemoryStore) LPush(ctx context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// LPush 语义：依次头插，最后一个 value 在最前
	list := m.lists[key]
	for _, v := range values {
		list = append([]string{v}, list...)
	}
	m.lists[key] = list
	return nil
}

func (m *MemoryStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.lists[key]
	if !ok {
		return nil
	}
	start, stop, valid := clampRange(start, stop, int64(len(list)))
	if !valid {
		m.lists[key] = nil
		return nil
	}
	m.lists[key] = list[start : stop+1]
	return nil
}

func (m *MemoryStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list, ok := m.lists[key]
	if !ok || m.expired(key) {
		return nil, nil
	}
	start, stop, valid := clampRange(start, stop, int64(len(list)))
	if !valid {
		return nil, nil
	}
	result := make([]string, stop-start+1)
	copy(result, list[start:stop+1])
	return result, nil
}

func (m *MemoryStore) HGet(ctx context.Context, key, field string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hkey := "hash:" + key + ":" + field
	e, ok := m.data[hkey]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	if e.ttl != nil && time.Now().After(*e.ttl) {
		return nil, core.ErrStoreNotFound
	}
	return e.value, nil
}

func (m *MemoryStore) HSet(ctx context.Context, key, field string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hkey := "hash:" + key + ":" + field
	m.data[hkey] = &entry{value: value}
	return nil
}

func (m *MemoryStore) HMGet(ctx context.Context, key string, fields []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]byte, len(fields))
	now := time.Now()
	for _, field := range fields {
		e, ok := m.data["hash:"+key+":"+field]
		if !ok {
			continue
		}
		if e.ttl != nil && now.After(*e.ttl) {
			continue
		}
		result[field] = e.value
	}
	return result, nil
}

func (m *MemoryStore) HMSet(ctx context.Context, key string, kvs map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for field, v := range kvs {
		m.data["hash:"+key+":"+field] = &entry{value: v}
	}
	return nil
}

func (m *MemoryStore) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := "hash:" + key + ":"
	result := make(map[string][]byte)
	now := time.Now()
	for k, e := range m.data {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			if e.ttl != nil && now.After(*e.ttl) {
				continue
			}
			field := k[len(prefix):]
			result[field] = e.value
		}
	}
	return result, nil
}

func (m *MemoryStore) Expire(ctx context.Context, key string, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttlSeconds <= 0 {
		delete(m.expiry, key)
		if e, ok := m.data[key]; ok {
			e.ttl = nil
		}
		return nil
	}
	expire := time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	if e, ok := m.data[key]; ok {
		e.ttl = &expire
	}
	m.expiry[key] = expire
	return nil
}

// setExpiry 为结构类型 key 设置过期时间（调用方需持有写锁）。
func (m *MemoryStore) setExpiry(key string, ttl ...int) {
	if len(ttl) > 0 && ttl[0] > 0 {
		m.expiry[key] = time.Now().Add(time.Duration(ttl[0]) * time.Second)
	} else {
		delete(m.expiry, key)
	}
}
