package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/John-Robertt/filmfinder/internal/domain"
)

// ErrNotFound 匹配后端“标题/电影不存在”的响应（errors.Is 可用）。
var ErrNotFound = errors.New("not found")

// ErrNoOrigin 表示没有可用的后端 origin（Client 需要绝对地址）。
var ErrNoOrigin = errors.New("api: base url 为空")

// HTTPStatusError 表示后端返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, msg)
}

func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// APIError 是后端在响应体里给出的业务错误：{"error": "..."}。
//
// 后端有时把 (body, status) 元组原样序列化为 [{"error": ...}, 404] 并返回 HTTP 200，
// Status 记录元组中的状态码（没有时为 0）。
type APIError struct {
	Message string
	Status  int
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
	}
	return "api error: " + e.Message
}

func (e *APIError) Is(target error) bool {
	if target != ErrNotFound {
		return false
	}
	return e.Status == http.StatusNotFound || strings.Contains(strings.ToLower(e.Message), "not found")
}

// Error 是 API 调用阶段的可追溯错误。
// 上层据此把失败归类为 fetch_failed / decode_failed。
type Error struct {
	Endpoint string
	Stage    string // "fetch" 或 "decode"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("endpoint=%s stage=%s: %v", e.Endpoint, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code 把 err 归类为 domain 的 error_code（用于 BatchReport）。
func Code(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return domain.ErrCodeCanceled
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.ErrCodeCircuitOpen
	}
	if errors.Is(err, ErrNotFound) {
		return domain.ErrCodeNotFound
	}
	var e *Error
	if errors.As(err, &e) && e.Stage == "decode" {
		return domain.ErrCodeDecodeFailed
	}
	return domain.ErrCodeFetchFailed
}

// Humanize 生成面向用户的一行错误说明。
func Humanize(err error) string {
	if err == nil {
		return ""
	}
	switch Code(err) {
	case domain.ErrCodeCanceled:
		return "请求已取消"
	case domain.ErrCodeCircuitOpen:
		return "后端连续失败，已暂停请求（熔断中），稍后重试"
	case domain.ErrCodeNotFound:
		return "后端没有该电影的数据"
	case domain.ErrCodeDecodeFailed:
		return fmt.Sprintf("后端响应无法解析：%v", err)
	}

	var hs *HTTPStatusError
	if errors.As(err, &hs) {
		switch {
		case hs.StatusCode == http.StatusTooManyRequests:
			return "后端返回 HTTP 429（限流），建议降低并发或 rate_per_second"
		case hs.StatusCode >= 500:
			return fmt.Sprintf("后端返回 HTTP %d（服务端错误）", hs.StatusCode)
		}
		return hs.Error()
	}

	low := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
		return "请求后端超时，请检查 api.base_url 或网络"
	}
	if strings.Contains(low, "connection refused") {
		return "无法连接后端（connection refused），请确认后端已启动且 api.base_url 正确"
	}
	return fmt.Sprintf("请求后端失败：%v", err)
}
