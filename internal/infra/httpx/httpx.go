package httpx

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultRetryMax  = 2
	defaultUserAgent = "filmfinder/1.0 (+https://github.com/John-Robertt/filmfinder)"
)

// Transport 把“固定 UA + 代理 + 限速 + 有界重试”固化为统一策略。
//
// api 包只负责“拼 URL + 解码 JSON”，不关心网络策略细节。
type Transport struct {
	Base http.RoundTripper

	UserAgent string

	// Limiter 非空时，每次尝试（含重试）前都要先拿到令牌。
	Limiter *rate.Limiter

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 {
		max = 0
	}
	if !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if t.Limiter != nil {
			if err := t.Limiter.Wait(req.Context()); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}

		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" {
			ua := t.UserAgent
			if ua == "" {
				ua = defaultUserAgent
			}
			r.Header.Set("User-Agent", ua)
		}
		if r.Header.Get("Accept") == "" {
			r.Header.Set("Accept", "application/json")
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试，直接返回最后错误。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// Options 是构造 API client 的网络策略。零值可用。
type Options struct {
	ProxyURL      string
	Timeout       time.Duration
	RetryMax      int
	RatePerSecond float64
	Burst         int
	UserAgent     string
}

// NewAPIClient 构造访问后端 API 的 HTTP client。
//
// 规则：
// - ProxyURL 非空：走代理
// - RatePerSecond > 0：全局令牌桶限速（所有并发请求共享）
// - 有界重试 + 总超时
func NewAPIClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}

	if p := strings.TrimSpace(opts.ProxyURL); p != "" {
		u, err := url.Parse(p)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryMax := opts.RetryMax
	if retryMax < 0 {
		retryMax = defaultRetryMax
	}

	tr := &Transport{
		Base:      base,
		UserAgent: opts.UserAgent,
		Limiter:   newLimiter(opts.RatePerSecond, opts.Burst),
		RetryMax:  retryMax,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
