// Package catalog 在 api.Backend 之上提供去重缓存：
// 同一 key 的并发请求只打一次后端（singleflight），成功结果进内存并落盘。
package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/filmfinder/internal/api"
	"github.com/John-Robertt/filmfinder/internal/domain"
	"github.com/John-Robertt/filmfinder/internal/infra/cache"
	"github.com/John-Robertt/filmfinder/internal/logging"
	"github.com/John-Robertt/filmfinder/internal/metrics"
)

// DefaultMaxEntries 是每类内存缓存的条目上限。
const DefaultMaxEntries = 2048

var _ api.Backend = (*Catalog)(nil)

// Catalog 装饰一个 Backend：MovieData/TMDBData 走缓存，其余操作直接透传。
//
// 约束：
// - 只缓存成功结果；失败（含 not found）下次仍会重新请求
// - 内存条目与磁盘条目使用同一个 MaxAge；过期视为 miss
// - 每类内存条目不超过 MaxEntries，超出时先清过期条目，再淘汰最旧的
// - 磁盘缓存读写失败只记日志，不影响返回值
type Catalog struct {
	next  api.Backend
	store cache.Store

	// MaxEntries<=0 时使用 DefaultMaxEntries。
	MaxEntries int

	mu        sync.Mutex
	summaries map[string]entry[domain.MovieSummary]
	details   map[string]entry[domain.MovieDetails]
	now       func() time.Time

	group singleflight.Group
}

type entry[T any] struct {
	v  T
	at time.Time
}

func New(next api.Backend, store cache.Store) *Catalog {
	return &Catalog{
		next:      next,
		store:     store,
		summaries: map[string]entry[domain.MovieSummary]{},
		details:   map[string]entry[domain.MovieDetails]{},
		now:       time.Now,
	}
}

func (c *Catalog) SearchTitles(ctx context.Context, query string) ([]string, error) {
	return c.next.SearchTitles(ctx, query)
}

func (c *Catalog) PopularTitles(ctx context.Context) ([]string, error) {
	return c.next.PopularTitles(ctx)
}

func (c *Catalog) Recommendations(ctx context.Context, title string) ([]string, error) {
	return c.next.Recommendations(ctx, title)
}

func (c *Catalog) MovieData(ctx context.Context, title string) (domain.MovieSummary, error) {
	key := strings.TrimSpace(title)
	return lookup(ctx, c, cache.KindSummary, key, c.summaries, func(ctx context.Context) (domain.MovieSummary, error) {
		return c.next.MovieData(ctx, title)
	})
}

func (c *Catalog) TMDBData(ctx context.Context, imdbID string) (domain.MovieDetails, error) {
	key := strings.TrimSpace(imdbID)
	return lookup(ctx, c, cache.KindDetails, key, c.details, func(ctx context.Context) (domain.MovieDetails, error) {
		return c.next.TMDBData(ctx, imdbID)
	})
}

// Prefetch 并发预热一组 imdb id 的详情；返回成功预热的数量。
// 空 id 与重复 id 会被跳过。
func (c *Catalog) Prefetch(ctx context.Context, ids []string) int {
	seen := map[string]bool{}
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := c.TMDBData(ctx, id); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return ok
}

// Len 返回内存中的 summary 与 details 条目数（含尚未清理的过期条目）。
func (c *Catalog) Len() (summaries, details int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.summaries), len(c.details)
}

func lookup[T any](ctx context.Context, c *Catalog, kind cache.Kind, key string, mem map[string]entry[T], fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := recall(c, mem, key); ok {
		metrics.CacheOperations.WithLabelValues(string(kind), "hit").Inc()
		return v, nil
	}

	if v, ok := readDisk[T](c.store, kind, key); ok {
		remember(c, mem, key, v)
		metrics.CacheOperations.WithLabelValues(string(kind), "disk_hit").Inc()
		return v, nil
	}

	res, err, shared := c.group.Do(string(kind)+"\x00"+key, func() (any, error) {
		// singleflight 内的请求不能被单个调用方的取消拖垮：其它等待者共享结果。
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		remember(c, mem, key, v)
		writeDisk(c.store, kind, key, v)
		return v, nil
	})
	switch {
	case err != nil:
		metrics.CacheOperations.WithLabelValues(string(kind), "error").Inc()
	case shared:
		metrics.CacheOperations.WithLabelValues(string(kind), "shared").Inc()
	default:
		metrics.CacheOperations.WithLabelValues(string(kind), "miss").Inc()
	}
	if err != nil {
		var zero T
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// recall 返回未过期的内存条目；过期条目顺手删除。
func recall[T any](c *Catalog, mem map[string]entry[T], key string) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := mem[key]
	if !ok {
		return zero, false
	}
	if c.expired(e.at, c.clock()) {
		delete(mem, key)
		return zero, false
	}
	return e.v, true
}

// remember 写入内存条目；超过上限时先清过期条目，仍超出则淘汰最旧的。
func remember[T any](c *Catalog, mem map[string]entry[T], key string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	mem[key] = entry[T]{v: v, at: now}
	if len(mem) <= c.limit() {
		return
	}
	for k, e := range mem {
		if c.expired(e.at, now) {
			delete(mem, k)
		}
	}
	for len(mem) > c.limit() {
		oldest, first := "", true
		var oldestAt time.Time
		for k, e := range mem {
			if first || e.at.Before(oldestAt) {
				oldest, oldestAt, first = k, e.at, false
			}
		}
		delete(mem, oldest)
	}
}

func (c *Catalog) expired(at, now time.Time) bool {
	return c.store.MaxAge > 0 && now.Sub(at) > c.store.MaxAge
}

func (c *Catalog) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func (c *Catalog) limit() int {
	if c.MaxEntries > 0 {
		return c.MaxEntries
	}
	return DefaultMaxEntries
}

func readDisk[T any](s cache.Store, kind cache.Kind, key string) (T, bool) {
	var v T
	b, ok, err := s.Read(kind, key)
	if err != nil {
		logging.Debug().Err(err).Str("kind", string(kind)).Str("key", key).Msg("cache read failed")
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(b, &v); err != nil {
		logging.Warn().Err(err).Str("kind", string(kind)).Str("key", key).Msg("cache entry corrupt")
		return v, false
	}
	return v, true
}

func writeDisk[T any](s cache.Store, kind cache.Kind, key string, v T) {
	if !s.Enabled() || s.ReadOnly {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.Write(kind, key, b); err != nil {
		logging.Debug().Err(err).Str("kind", string(kind)).Str("key", key).Msg("cache write failed")
	}
}
