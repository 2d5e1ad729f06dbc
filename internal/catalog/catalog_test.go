package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/filmfinder/internal/domain"
	"github.com/John-Robertt/filmfinder/internal/infra/cache"
)

type countingBackend struct {
	summaryCalls atomic.Int32
	detailCalls  atomic.Int32
	gate         chan struct{}
	fail         bool
}

func (b *countingBackend) SearchTitles(ctx context.Context, query string) ([]string, error) {
	return []string{query}, nil
}

func (b *countingBackend) PopularTitles(ctx context.Context) ([]string, error) {
	return []string{"A"}, nil
}

func (b *countingBackend) Recommendations(ctx context.Context, title string) ([]string, error) {
	return []string{title}, nil
}

func (b *countingBackend) MovieData(ctx context.Context, title string) (domain.MovieSummary, error) {
	b.summaryCalls.Add(1)
	if b.gate != nil {
		<-b.gate
	}
	if b.fail {
		return domain.MovieSummary{}, errors.New("boom")
	}
	return domain.MovieSummary{Title: title, IMDbID: "tt0000001", Rating: 7}, nil
}

func (b *countingBackend) TMDBData(ctx context.Context, imdbID string) (domain.MovieDetails, error) {
	b.detailCalls.Add(1)
	if b.gate != nil {
		<-b.gate
	}
	if b.fail {
		return domain.MovieDetails{}, errors.New("boom")
	}
	return domain.MovieDetails{ID: 1, Overview: "o:" + imdbID}, nil
}

func TestCatalog_MemoryHit(t *testing.T) {
	b := &countingBackend{}
	c := New(b, cache.New("", false, 0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.MovieData(ctx, "Heat")
		require.NoError(t, err)
		assert.Equal(t, "Heat", got.Title)
	}
	assert.EqualValues(t, 1, b.summaryCalls.Load())
}

func TestCatalog_ConcurrentCallersShareOneRequest(t *testing.T) {
	b := &countingBackend{gate: make(chan struct{})}
	c := New(b, cache.New("", false, 0))

	const n = 8
	var wg sync.WaitGroup
	results := make([]domain.MovieDetails, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := c.TMDBData(context.Background(), "tt0113277")
			assert.NoError(t, err)
			results[i] = d
		}(i)
	}
	// 等第一个请求进入后端后再放行，其余调用方应在 singleflight 上等待。
	require.Eventually(t, func() bool { return b.detailCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(b.gate)
	wg.Wait()

	assert.EqualValues(t, 1, b.detailCalls.Load())
	for _, d := range results {
		assert.Equal(t, "o:tt0113277", d.Overview)
	}
}

func TestCatalog_FailuresAreNotCached(t *testing.T) {
	b := &countingBackend{fail: true}
	c := New(b, cache.New("", false, 0))
	ctx := context.Background()

	_, err := c.MovieData(ctx, "Heat")
	require.Error(t, err)
	_, err = c.MovieData(ctx, "Heat")
	require.Error(t, err)
	assert.EqualValues(t, 2, b.summaryCalls.Load())

	s, d := c.Len()
	assert.Zero(t, s)
	assert.Zero(t, d)
}

func TestCatalog_DiskCacheSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := &countingBackend{}
	_, err := New(first, cache.New(dir, false, time.Hour)).TMDBData(ctx, "tt0113277")
	require.NoError(t, err)

	second := &countingBackend{fail: true}
	got, err := New(second, cache.New(dir, true, time.Hour)).TMDBData(ctx, "tt0113277")
	require.NoError(t, err)
	assert.Equal(t, "o:tt0113277", got.Overview)
	assert.Zero(t, second.detailCalls.Load())
}

func TestCatalog_Prefetch(t *testing.T) {
	b := &countingBackend{}
	c := New(b, cache.New("", false, 0))

	n := c.Prefetch(context.Background(), []string{"tt0000001", "", "tt0000002", "tt0000001"})
	assert.Equal(t, 2, n)
	assert.EqualValues(t, 2, b.detailCalls.Load())

	_, err := c.TMDBData(context.Background(), "tt0000002")
	require.NoError(t, err)
	assert.EqualValues(t, 2, b.detailCalls.Load())
}

func TestCatalog_PassThrough(t *testing.T) {
	c := New(&countingBackend{}, cache.New("", false, 0))
	got, err := c.Recommendations(context.Background(), "Heat")
	require.NoError(t, err)
	assert.Equal(t, []string{"Heat"}, got)
}

func TestCatalog_MemoryEntryExpiresWithMaxAge(t *testing.T) {
	b := &countingBackend{}
	c := New(b, cache.New("", false, time.Minute))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.TMDBData(ctx, "tt0113277")
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, err = c.TMDBData(ctx, "tt0113277")
	require.NoError(t, err)
	assert.EqualValues(t, 1, b.detailCalls.Load(), "未过期应命中内存")

	now = now.Add(time.Minute)
	_, err = c.TMDBData(ctx, "tt0113277")
	require.NoError(t, err)
	assert.EqualValues(t, 2, b.detailCalls.Load(), "超过 max_age 的内存条目必须重新请求")
}

func TestCatalog_MemoryIsBounded(t *testing.T) {
	b := &countingBackend{}
	c := New(b, cache.New("", false, 0))
	c.MaxEntries = 2
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { now = now.Add(time.Second); return now }
	ctx := context.Background()

	for _, title := range []string{"A", "B", "C"} {
		_, err := c.MovieData(ctx, title)
		require.NoError(t, err)
	}
	s, _ := c.Len()
	assert.Equal(t, 2, s)

	// 最旧的 A 已被淘汰，C 仍在内存中。
	_, _ = c.MovieData(ctx, "C")
	assert.EqualValues(t, 3, b.summaryCalls.Load())
	_, _ = c.MovieData(ctx, "A")
	assert.EqualValues(t, 4, b.summaryCalls.Load())
}
