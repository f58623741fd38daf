package cache

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/diskv"
)

// FileOptions configures a FileStorage.
type FileOptions struct {
	BaseDir    string
	CacheBytes uint64 // in-process diskv read cache, 0 disables it
	DefaultTTL time.Duration
}

// FileStorage is a filesystem-backed Storage implementation (spec §9's
// pluggable-backend note) built on diskv, which also gives it a small
// in-memory read-through cache for free.
type FileStorage struct {
	d   *diskv.Diskv
	ttl map[string]time.Time
}

// NewFileStorage builds a FileStorage rooted at opt.BaseDir. Keys are
// transformed into a two-level directory layout so no directory holds
// an unbounded number of entries.
func NewFileStorage(opt FileOptions) *FileStorage {
	d := diskv.New(diskv.Options{
		BasePath:     opt.BaseDir,
		Transform:    fanOutTransform,
		CacheSizeMax: opt.CacheBytes,
	})
	return &FileStorage{d: d, ttl: make(map[string]time.Time)}
}

func fanOutTransform(key string) []string {
	safe := sanitizeKey(key)
	if len(safe) < 4 {
		return []string{"short"}
	}
	return []string{safe[0:2], safe[2:4]}
}

func sanitizeKey(key string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(key)
}

func (f *FileStorage) expiryPath(key string) string {
	return sanitizeKey(key) + ".expires"
}

func (f *FileStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if exp, ok := f.readExpiry(key); ok && time.Now().After(exp) {
		_ = f.Delete(ctx, key)
		return nil, ErrNotFound
	}
	b, err := f.d.Read(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (f *FileStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := f.d.Write(key, value); err != nil {
		return err
	}
	if ttl > 0 {
		f.writeExpiry(key, time.Now().Add(ttl))
	}
	return nil
}

func (f *FileStorage) Delete(ctx context.Context, key string) error {
	if err := f.d.Erase(key); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = f.d.Erase(f.expiryPath(key))
	return nil
}

func (f *FileStorage) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	for key := range f.d.Keys(ctx.Done()) {
		if strings.HasSuffix(key, ".expires") {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (f *FileStorage) Clear(ctx context.Context) error {
	return f.d.EraseAll()
}

// readExpiry and writeExpiry sidecar the TTL as a small file next to
// the entry, since diskv itself is TTL-agnostic.
func (f *FileStorage) writeExpiry(key string, at time.Time) {
	_ = f.d.Write(f.expiryPath(key), []byte(at.Format(time.RFC3339Nano)))
}

func (f *FileStorage) readExpiry(key string) (time.Time, bool) {
	b, err := f.d.Read(f.expiryPath(key))
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, string(b))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
