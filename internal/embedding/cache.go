// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedding

import (
	"container/list"
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// VectorCache stores vectors by key.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, v []float32, ttl time.Duration)
}

// MakeKey derives the cache key for a model and input text.
func MakeKey(model, text string) string {
	h := md5.Sum([]byte(model + "|" + text))
	return "emb:" + hex.EncodeToString(h[:])
}

// LocalLRU is an in-process LRU with per-entry TTL.
type LocalLRU struct {
	mu   sync.Mutex
	cap  int
	list *list.List // front = most recent
	m    map[string]*list.Element
}

type lruEntry struct {
	key string
	vec []float32
	exp time.Time
}

// NewLocalLRU returns an LRU holding at most capacity vectors.
func NewLocalLRU(capacity int) *LocalLRU {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LocalLRU{cap: capacity, list: list.New(), m: make(map[string]*list.Element, capacity)}
}

func (l *LocalLRU) Get(_ context.Context, key string) ([]float32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.m[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(lruEntry)
	if time.Now().After(ent.exp) {
		l.list.Remove(el)
		delete(l.m, key)
		return nil, false
	}
	l.list.MoveToFront(el)
	return ent.vec, true
}

func (l *LocalLRU) Set(_ context.Context, key string, v []float32, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ent := lruEntry{key: key, vec: v, exp: time.Now().Add(ttl)}
	if el, ok := l.m[key]; ok {
		el.Value = ent
		l.list.MoveToFront(el)
		return
	}
	l.m[key] = l.list.PushFront(ent)
	if l.list.Len() > l.cap {
		if back := l.list.Back(); back != nil {
			delete(l.m, back.Value.(lruEntry).key)
			l.list.Remove(back)
		}
	}
}

// Len returns the number of cached entries, expired ones included.
func (l *LocalLRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.Len()
}

// RedisCache stores vectors in Redis as little-endian float32 bytes. Redis
// errors after connecting are logged at debug level and treated as misses.
type RedisCache struct {
	cli    *redis.Client
	logger *zap.Logger
}

// NewRedisCache connects to addr and pings it once. A nil logger discards
// log output.
func NewRedisCache(ctx context.Context, addr string, logger *zap.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rc := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}
	return &RedisCache{cli: rc, logger: logger}, nil
}

// Close releases the Redis connection pool.
func (r *RedisCache) Close() error {
	return r.cli.Close()
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	b, err := r.cli.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Debug("redis cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(b)%4 != 0 {
		return nil, false
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, true
}

func (r *RedisCache) Set(ctx context.Context, key string, v []float32, ttl time.Duration) {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	if err := r.cli.Set(ctx, key, b, ttl).Err(); err != nil {
		r.logger.Debug("redis cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Cached wraps an Embedder with the LRU and an optional shared cache.
// Only texts missing from both caches reach the backend.
type Cached struct {
	Backend Embedder
	Model   string
	LRU     *LocalLRU
	Shared  VectorCache
	TTL     time.Duration
	Logger  *zap.Logger
}

// NewCached builds a Cached embedder. shared may be nil.
func NewCached(backend Embedder, model string, lruSize int, shared VectorCache, ttl time.Duration, logger *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{
		Backend: backend,
		Model:   model,
		LRU:     NewLocalLRU(lruSize),
		Shared:  shared,
		TTL:     ttl,
		Logger:  logger,
	}
}

// Dimensions delegates to the backend.
func (c *Cached) Dimensions() int { return c.Backend.Dimensions() }

// Embed serves cached vectors and fetches the rest in one backend call.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		key := MakeKey(c.Model, text)
		if v, ok := c.LRU.Get(ctx, key); ok {
			out[i] = v
			continue
		}
		if c.Shared != nil {
			if v, ok := c.Shared.Get(ctx, key); ok {
				out[i] = v
				c.LRU.Set(ctx, key, v, c.TTL)
				continue
			}
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		c.Logger.Debug("embedding cache hit", zap.Int("texts", len(texts)))
		return out, nil
	}

	vecs, err := c.Backend.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%w: backend returned %d vectors for %d texts", ErrEmbedding, len(vecs), len(missTexts))
	}

	for j, v := range vecs {
		out[missIdx[j]] = v
		key := MakeKey(c.Model, missTexts[j])
		c.LRU.Set(ctx, key, v, c.TTL)
		if c.Shared != nil {
			c.Shared.Set(ctx, key, v, c.TTL)
		}
	}
	c.Logger.Debug("embedded texts",
		zap.Int("texts", len(texts)),
		zap.Int("cached", len(texts)-len(missTexts)))
	return out, nil
}
