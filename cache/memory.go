package cache

import (
	"bytes"
	"compress/gzip"
	"container/list"
	"context"
	"io"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EvictionPolicy selects which item is evicted first when the memory
// store is over budget, per spec §4.9.
type EvictionPolicy int

const (
	EvictLRU EvictionPolicy = iota
	EvictFIFO
)

// MemoryOptions configures a MemoryStorage.
type MemoryOptions struct {
	MaxItems   int
	MaxBytes   int64 // 0 means "derive from the Go runtime memory limit", see ResolveMemoryBudget
	Policy     EvictionPolicy

	// CompressThreshold enables gzip compression for entries whose
	// serialized size is >= this many bytes; 0 disables compression.
	CompressThreshold int

	// HeapRatioThreshold triggers an evict-to-50% pass when
	// runtime.MemStats.HeapAlloc/HeapSys exceeds it; 0 disables the check.
	HeapRatioThreshold float64
	HealthCheckEvery   time.Duration
}

type memItem struct {
	key         string
	value       []byte
	compressed  bool
	origSize    int
	storedSize  int
	createdAt   time.Time
	expiresAt   time.Time
	lastAccess  time.Time
	fifoElement *list.Element
}

// MemoryStorage is the in-memory Storage backend from spec §4.9: LRU or
// FIFO eviction, byte-budget accounting, optional gzip compression, and
// a periodic health check that also reacts to host memory pressure.
type MemoryStorage struct {
	mu       sync.Mutex
	opt      MemoryOptions
	maxBytes int64
	curBytes int64

	lruCache *lru.Cache[string, *memItem]
	fifoList *list.List
	fifoMap  map[string]*memItem

	stopHealth chan struct{}
}

// NewMemoryStorage builds a MemoryStorage. A zero MaxItems defaults to
// 100000 items (byte budget and TTL still apply).
func NewMemoryStorage(opt MemoryOptions) *MemoryStorage {
	if opt.MaxItems <= 0 {
		opt.MaxItems = 100000
	}
	maxBytes := opt.MaxBytes
	if maxBytes <= 0 {
		maxBytes = ResolveMemoryBudget()
	}
	m := &MemoryStorage{opt: opt, maxBytes: maxBytes, stopHealth: make(chan struct{})}

	switch opt.Policy {
	case EvictFIFO:
		m.fifoList = list.New()
		m.fifoMap = make(map[string]*memItem)
	default:
		c, _ := lru.NewWithEvict[string, *memItem](opt.MaxItems, func(key string, item *memItem) {
			m.curBytes -= int64(item.storedSize)
		})
		m.lruCache = c
	}

	if opt.HealthCheckEvery > 0 {
		go m.healthLoop(opt.HealthCheckEvery)
	}
	return m
}

// ResolveMemoryBudget derives a default byte budget: 25% of reported Go
// runtime memory limit when available, else a conservative 64MiB
// fallback. A container/cgroup-aware resolver would read
// /sys/fs/cgroup; this keeps the dependency surface to the standard
// library since no pack example wires a cgroup reader for this.
func ResolveMemoryBudget() int64 {
	// SetMemoryLimit(-1) reads the current GOMEMLIMIT without changing it.
	limit := debug.SetMemoryLimit(-1)
	if limit > 0 && limit < 1<<62 {
		return limit / 4
	}
	return 64 << 20
}

func (m *MemoryStorage) healthLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.checkPressure()
		case <-m.stopHealth:
			return
		}
	}
}

func (m *MemoryStorage) checkPressure() {
	m.mu.Lock()
	overBudget := m.curBytes > m.maxBytes
	m.mu.Unlock()

	var heapTrip bool
	if m.opt.HeapRatioThreshold > 0 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapSys > 0 && float64(ms.HeapAlloc)/float64(ms.HeapSys) > m.opt.HeapRatioThreshold {
			heapTrip = true
		}
	}

	if heapTrip {
		m.evictToFraction(0.5)
		slog.Warn("cache: evicted to 50% of budget under heap pressure")
		return
	}
	if overBudget {
		m.evictToFraction(1.0) // evict until back under maxBytes
	}
}

func (m *MemoryStorage) evictToFraction(fraction float64) {
	m.mu.Lock()
	target := int64(float64(m.maxBytes) * fraction)
	m.mu.Unlock()
	for {
		m.mu.Lock()
		if m.curBytes <= target {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		if !m.evictOne() {
			return
		}
	}
}

// evictOne evicts the single oldest item under the configured policy.
func (m *MemoryStorage) evictOne() bool {
	if m.lruCache != nil {
		_, _, ok := m.lruCache.RemoveOldest()
		return ok
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	back := m.fifoList.Back()
	if back == nil {
		return false
	}
	item := back.Value.(*memItem)
	m.fifoList.Remove(back)
	delete(m.fifoMap, item.key)
	m.curBytes -= int64(item.storedSize)
	return true
}

func (m *MemoryStorage) Get(ctx context.Context, key string) ([]byte, error) {
	item, ok := m.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		_ = m.Delete(ctx, key)
		return nil, ErrNotFound
	}
	item.lastAccess = time.Now()
	if item.compressed {
		return decompress(item.value)
	}
	return item.value, nil
}

func (m *MemoryStorage) lookup(key string) (*memItem, bool) {
	if m.lruCache != nil {
		return m.lruCache.Get(key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.fifoMap[key]
	return item, ok
}

func (m *MemoryStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	storedValue := value
	compressed := false
	if m.opt.CompressThreshold > 0 && len(value) >= m.opt.CompressThreshold {
		if c, err := compress(value); err == nil {
			storedValue = c
			compressed = true
		} else {
			slog.Warn("cache: compression failed, storing uncompressed", "error", err)
		}
	}

	storedSize := len(storedValue)
	if int64(storedSize) > m.maxBytes {
		// Reject rather than evict the whole cache to make room, per
		// spec §4.9's rejection rule.
		return errItemTooLarge
	}

	now := time.Now()
	item := &memItem{
		key: key, value: storedValue, compressed: compressed,
		origSize: len(value), storedSize: storedSize,
		createdAt: now, lastAccess: now,
	}
	if ttl > 0 {
		item.expiresAt = now.Add(ttl)
	}

	_ = m.Delete(ctx, key) // replace: drop old accounting first

	m.mu.Lock()
	for m.curBytes+int64(storedSize) > m.maxBytes {
		m.mu.Unlock()
		if !m.evictOne() {
			break
		}
		m.mu.Lock()
	}
	m.curBytes += int64(storedSize)
	m.mu.Unlock()

	if m.lruCache != nil {
		m.lruCache.Add(key, item)
		return nil
	}
	m.mu.Lock()
	el := m.fifoList.PushFront(item)
	item.fifoElement = el
	m.fifoMap[key] = item
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	if m.lruCache != nil {
		m.lruCache.Remove(key)
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.fifoMap[key]; ok {
		m.fifoList.Remove(item.fifoElement)
		delete(m.fifoMap, key)
		m.curBytes -= int64(item.storedSize)
	}
	return nil
}

func (m *MemoryStorage) Keys(ctx context.Context) ([]string, error) {
	if m.lruCache != nil {
		return m.lruCache.Keys(), nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.fifoMap))
	for k := range m.fifoMap {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *MemoryStorage) Clear(ctx context.Context) error {
	if m.lruCache != nil {
		m.lruCache.Purge()
	} else {
		m.mu.Lock()
		m.fifoList.Init()
		m.fifoMap = make(map[string]*memItem)
		m.mu.Unlock()
	}
	m.mu.Lock()
	m.curBytes = 0
	m.mu.Unlock()
	return nil
}

// Close stops the background health-check loop.
func (m *MemoryStorage) Close() {
	if m.opt.HealthCheckEvery > 0 {
		close(m.stopHealth)
	}
}

var errItemTooLarge = itemTooLargeError{}

type itemTooLargeError struct{}

func (itemTooLargeError) Error() string { return "cache: item exceeds memory budget" }

func compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
