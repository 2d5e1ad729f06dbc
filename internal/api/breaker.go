package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/John-Robertt/filmfinder/internal/domain"
	"github.com/John-Robertt/filmfinder/internal/logging"
	"github.com/John-Robertt/filmfinder/internal/metrics"
)

// BreakerSettings 控制熔断策略；零值使用默认值。
type BreakerSettings struct {
	Name string
	// MinRequests 是统计窗口内触发熔断所需的最少请求数。
	MinRequests uint32
	// FailureRatio 达到该比例即熔断。
	FailureRatio float64
	// Interval 是 closed 状态下计数清零的周期。
	Interval time.Duration
	// Timeout 是 open -> half-open 的等待时间。
	Timeout time.Duration
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.Name == "" {
		s.Name = "backend-api"
	}
	if s.MinRequests == 0 {
		s.MinRequests = 10
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.6
	}
	if s.Interval <= 0 {
		s.Interval = time.Minute
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	return s
}

// Breaker 用熔断器包装 Backend：后端持续失败时快速失败，避免一屏卡片把后端压垮。
//
// “电影不存在”与调用方取消不计入失败。
type Breaker struct {
	next Backend
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

var _ Backend = (*Breaker)(nil)

func NewBreaker(next Backend, s BreakerSettings) *Breaker {
	s = s.withDefaults()
	log := logging.With("breaker")

	metrics.CircuitBreakerState.WithLabelValues(s.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 3,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return &Breaker{next: next, cb: cb, name: s.Name}
}

// State 返回当前熔断状态。
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) SearchTitles(ctx context.Context, query string) ([]string, error) {
	return call(b, func() ([]string, error) { return b.next.SearchTitles(ctx, query) })
}

func (b *Breaker) PopularTitles(ctx context.Context) ([]string, error) {
	return call(b, func() ([]string, error) { return b.next.PopularTitles(ctx) })
}

func (b *Breaker) Recommendations(ctx context.Context, title string) ([]string, error) {
	return call(b, func() ([]string, error) { return b.next.Recommendations(ctx, title) })
}

func (b *Breaker) MovieData(ctx context.Context, title string) (domain.MovieSummary, error) {
	return call(b, func() (domain.MovieSummary, error) { return b.next.MovieData(ctx, title) })
}

func (b *Breaker) TMDBData(ctx context.Context, imdbID string) (domain.MovieDetails, error) {
	return call(b, func() (domain.MovieDetails, error) { return b.next.TMDBData(ctx, imdbID) })
}

func call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", res)
	}
	return v, nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
