// Package load 编排首页与结果页的两段式加载：
// 先取种子标题列表，再对每个标题并发取 movie-data，全部结束后一次性产出页面。
package load

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/filmfinder/internal/api"
	"github.com/John-Robertt/filmfinder/internal/config"
	"github.com/John-Robertt/filmfinder/internal/domain"
	"github.com/John-Robertt/filmfinder/internal/logging"
	"github.com/John-Robertt/filmfinder/internal/metrics"
)

// Kind 区分两个视图。
type Kind string

const (
	KindLanding Kind = "landing"
	KindResults Kind = "results"
)

// Policy 决定批量抓取中部分失败时页面如何呈现。
type Policy string

const (
	// PolicyPartial 展示成功的子集（按种子顺序），失败计入报告。
	PolicyPartial Policy = config.PolicyPartial
	// PolicyAllOrNothing 任一失败则整批作废，页面不展示卡片。
	PolicyAllOrNothing Policy = config.PolicyAllOrNothing
)

const maxConcurrency = 32

// Card 是网格中的一张电影卡片。
type Card struct {
	domain.MovieSummary
	Index   int     `json:"index"`
	Stars   float64 `json:"stars"`
	IMDbURL string  `json:"imdb_url"`
}

// Page 是一次加载的最终结果。
type Page struct {
	Kind  Kind   `json:"kind"`
	Query string `json:"query,omitempty"`

	Seed  []string `json:"seed"`
	Cards []Card   `json:"cards"`

	// SeedError 非空表示种子请求失败（页面按空结果处理）。
	SeedError string `json:"seed_error,omitempty"`
	// BatchFailed 仅在 all_or_nothing 策略下、有任一条失败时为 true。
	BatchFailed bool `json:"batch_failed"`

	Report domain.BatchReport `json:"report"`
}

// Empty 表示页面没有可展示的卡片（用于 “No results found”）。
func (p Page) Empty() bool { return len(p.Cards) == 0 }

// Prefetcher 在页面就绪后预热卡片详情（catalog.Catalog 实现了它）。
type Prefetcher interface {
	Prefetch(ctx context.Context, imdbIDs []string) int
}

// Loader 执行两段式加载。零值字段取默认：Concurrency=6，Policy=partial。
type Loader struct {
	Backend      api.Backend
	Concurrency  int
	Policy       Policy
	StartupDelay time.Duration
	Observer     Observer
	Prefetcher   Prefetcher
}

// Landing 加载首页：种子为热门标题。
func (l *Loader) Landing(ctx context.Context) Page {
	return l.load(ctx, KindLanding, "", func(ctx context.Context) ([]string, error) {
		return l.Backend.PopularTitles(ctx)
	})
}

// Results 加载结果页：种子为 query 的推荐列表。
func (l *Loader) Results(ctx context.Context, query string) Page {
	return l.load(ctx, KindResults, query, func(ctx context.Context) ([]string, error) {
		return l.Backend.Recommendations(ctx, query)
	})
}

func (l *Loader) load(ctx context.Context, kind Kind, query string, seedFn func(context.Context) ([]string, error)) Page {
	loadID := uuid.NewString()
	log := logging.With("load").With().Str("load_id", loadID).Str("view", string(kind)).Logger()

	page := Page{
		Kind:  kind,
		Query: query,
		Seed:  []string{},
		Cards: []Card{},
		Report: domain.BatchReport{
			LoadID:    loadID,
			StartedAt: time.Now().UTC(),
		},
	}
	obs := l.Observer
	if obs != nil {
		obs.OnStart(kind, query)
	}
	finish := func() Page {
		page.Report.FinishedAt = time.Now().UTC()
		page.Report.Finalize()
		if obs != nil {
			obs.OnDone(page)
		}
		return page
	}

	if err := sleepCtx(ctx, l.StartupDelay); err != nil {
		page.SeedError = api.Code(err)
		return finish()
	}

	seedStarted := time.Now()
	seed, err := seedFn(ctx)
	if obs != nil {
		obs.OnSeed(seed, err, time.Since(seedStarted))
	}
	if err != nil {
		// 种子失败：按空列表处理，不重试。
		log.Warn().Err(err).Str("query", query).Msg("seed fetch failed")
		page.SeedError = api.Code(err)
		return finish()
	}
	if seed == nil {
		seed = []string{}
	}
	page.Seed = seed
	log.Debug().Int("titles", len(seed)).Dur("took", time.Since(seedStarted)).Msg("seed loaded")
	if len(seed) == 0 {
		return finish()
	}

	summaries, results := l.fetchAll(ctx, kind, seed)
	page.Report.Items = results

	failed := 0
	for _, r := range results {
		if r.Status != domain.StatusOK {
			failed++
		}
	}
	if failed > 0 && l.policy() == PolicyAllOrNothing {
		log.Error().Int("failed", failed).Int("total", len(seed)).Msg("metadata batch failed")
		page.BatchFailed = true
		return finish()
	}
	if failed > 0 {
		log.Warn().Int("failed", failed).Int("total", len(seed)).Msg("metadata batch partially failed")
	}

	ids := make([]string, 0, len(seed))
	for i, r := range results {
		if r.Status != domain.StatusOK {
			continue
		}
		s := summaries[i]
		page.Cards = append(page.Cards, Card{
			MovieSummary: s,
			Index:        i,
			Stars:        domain.StarRating(s.Rating),
			IMDbURL:      domain.IMDbURL(s.IMDbID),
		})
		if id := strings.TrimSpace(s.IMDbID); id != "" {
			ids = append(ids, id)
		}
	}

	if l.Prefetcher != nil && len(ids) > 0 && ctx.Err() == nil {
		// 详情预热不阻塞页面。
		go l.Prefetcher.Prefetch(context.WithoutCancel(ctx), ids)
	}
	return finish()
}

// fetchAll 对每个种子标题恰好发一次 MovieData，按 worker pool 并发执行，
// 全部结束后返回；summaries 与 results 的下标与 seed 一一对应。
func (l *Loader) fetchAll(ctx context.Context, kind Kind, seed []string) ([]domain.MovieSummary, []domain.ItemResult) {
	type job struct {
		idx   int
		title string
	}
	type result struct {
		idx     int
		summary domain.MovieSummary
		res     domain.ItemResult
		dur     time.Duration
	}

	workers := l.concurrency()
	if workers > len(seed) {
		workers = len(seed)
	}

	jobs := make(chan job)
	out := make(chan result, len(seed))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				started := time.Now()
				s, err := l.Backend.MovieData(ctx, j.title)
				r := domain.ItemResult{Index: j.idx, Title: j.title, Status: domain.StatusOK}
				if err != nil {
					r.Status = domain.StatusFailed
					r.ErrorCode = api.Code(err)
					r.ErrorMsg = err.Error()
				}
				out <- result{idx: j.idx, summary: s, res: r, dur: time.Since(started)}
			}
		}()
	}

	go func() {
		for i, t := range seed {
			jobs <- job{idx: i, title: t}
		}
		close(jobs)
		wg.Wait()
		close(out)
	}()

	summaries := make([]domain.MovieSummary, len(seed))
	results := make([]domain.ItemResult, len(seed))
	done := 0
	for r := range out {
		done++
		summaries[r.idx] = r.summary
		results[r.idx] = r.res
		metrics.BatchItems.WithLabelValues(string(kind), r.res.Status).Inc()
		if l.Observer != nil {
			l.Observer.OnItemDone(done, len(seed), r.res, r.dur)
		}
	}
	return summaries, results
}

func (l *Loader) concurrency() int {
	n := l.Concurrency
	if n <= 0 {
		n = config.DefaultConcurrency
	}
	if n > maxConcurrency {
		n = maxConcurrency
	}
	return n
}

func (l *Loader) policy() Policy {
	if l.Policy == PolicyAllOrNothing {
		return PolicyAllOrNothing
	}
	return PolicyPartial
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
