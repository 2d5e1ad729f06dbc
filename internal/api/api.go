package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/John-Robertt/filmfinder/internal/domain"
	"github.com/John-Robertt/filmfinder/internal/metrics"
)

const (
	PathSearchTitle     = "/api/search-title"
	PathPopularTitles   = "/api/popular-titles"
	PathRecommendations = "/api/recommendations"
	PathMovieData       = "/api/movie-data"
	PathTMDBData        = "/api/tmdb-data"

	maxBodyBytes = 4 << 20
)

// Backend 是后端 API 的五个操作；所有上层组件只依赖该接口。
//
// 约束：实现不做缓存、不做重试（重试在 httpx，缓存在 catalog）。
type Backend interface {
	SearchTitles(ctx context.Context, query string) ([]string, error)
	PopularTitles(ctx context.Context) ([]string, error)
	Recommendations(ctx context.Context, title string) ([]string, error)
	MovieData(ctx context.Context, title string) (domain.MovieSummary, error)
	TMDBData(ctx context.Context, imdbID string) (domain.MovieDetails, error)
}

var _ Backend = (*Client)(nil)

// Client 通过 HTTP 调用后端 API。
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New 构造 Client；baseURL 必须是绝对 origin（例如 http://127.0.0.1:8000）。
func New(baseURL string, c *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrNoOrigin
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api: base url 无效：%q", baseURL)
	}
	if c == nil {
		c = http.DefaultClient
	}
	return &Client{BaseURL: baseURL, HTTP: c}, nil
}

// EndpointURL 拼出请求地址；base 为空时返回同源相对地址（"/api/...?..."）。
// 参数一律 URL 编码。
func EndpointURL(base, path string, params url.Values) string {
	u := strings.TrimRight(strings.TrimSpace(base), "/") + path
	if q := params.Encode(); q != "" {
		u += "?" + q
	}
	return u
}

type matchesResponse struct {
	Matches []string `json:"matches"`
}

type popularResponse struct {
	Popular []string `json:"popular"`
}

type recommendedResponse struct {
	Recommended []string `json:"recommended"`
}

func (c *Client) SearchTitles(ctx context.Context, query string) ([]string, error) {
	var out matchesResponse
	if err := c.get(ctx, PathSearchTitle, url.Values{"query": {query}}, &out); err != nil {
		return nil, err
	}
	return nonNil(out.Matches), nil
}

func (c *Client) PopularTitles(ctx context.Context) ([]string, error) {
	var out popularResponse
	if err := c.get(ctx, PathPopularTitles, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out.Popular), nil
}

func (c *Client) Recommendations(ctx context.Context, title string) ([]string, error) {
	var out recommendedResponse
	if err := c.get(ctx, PathRecommendations, url.Values{"title": {title}}, &out); err != nil {
		return nil, err
	}
	return nonNil(out.Recommended), nil
}

func (c *Client) MovieData(ctx context.Context, title string) (domain.MovieSummary, error) {
	var out domain.MovieSummary
	if err := c.get(ctx, PathMovieData, url.Values{"title": {title}}, &out); err != nil {
		return domain.MovieSummary{}, err
	}
	if strings.TrimSpace(out.Title) == "" {
		out.Title = title
	}
	return out, nil
}

func (c *Client) TMDBData(ctx context.Context, imdbID string) (domain.MovieDetails, error) {
	var out domain.MovieDetails
	if err := c.get(ctx, PathTMDBData, url.Values{"imdb_id": {imdbID}}, &out); err != nil {
		return domain.MovieDetails{}, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) (err error) {
	started := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = Code(err)
		}
		metrics.APIRequests.WithLabelValues(path, status).Inc()
		metrics.APIDuration.WithLabelValues(path).Observe(time.Since(started).Seconds())
	}()

	u := EndpointURL(c.BaseURL, path, params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &Error{Endpoint: path, Stage: "fetch", Err: err}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &Error{Endpoint: path, Stage: "fetch", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &Error{Endpoint: path, Stage: "fetch", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := ""
		if ae := decodeAPIError(body); ae != nil {
			msg = ae.Message
		}
		return &Error{Endpoint: path, Stage: "fetch", Err: &HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Message: msg}}
	}

	if ae := decodeAPIError(body); ae != nil {
		return &Error{Endpoint: path, Stage: "fetch", Err: ae}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Endpoint: path, Stage: "decode", Err: err}
	}
	return nil
}

type errorBody struct {
	Error  string `json:"error"`
	Detail any    `json:"detail"`
}

// decodeAPIError 识别两种错误形态：{"error": "..."} 与 [{"error": "..."}, 404]。
func decodeAPIError(body []byte) *APIError {
	b := bytes.TrimSpace(body)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '{':
		var eb errorBody
		if json.Unmarshal(b, &eb) != nil {
			return nil
		}
		if strings.TrimSpace(eb.Error) != "" {
			return &APIError{Message: eb.Error}
		}
		if s, ok := eb.Detail.(string); ok && strings.TrimSpace(s) != "" {
			return &APIError{Message: s}
		}
	case '[':
		var tuple []json.RawMessage
		if json.Unmarshal(b, &tuple) != nil || len(tuple) != 2 {
			return nil
		}
		var eb errorBody
		if json.Unmarshal(tuple[0], &eb) != nil || strings.TrimSpace(eb.Error) == "" {
			return nil
		}
		var status int
		_ = json.Unmarshal(tuple[1], &status)
		return &APIError{Message: eb.Error, Status: status}
	}
	return nil
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}
