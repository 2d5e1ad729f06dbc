package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

const (
	ErrCodeFetchFailed  = "fetch_failed"
	ErrCodeDecodeFailed = "decode_failed"
	ErrCodeNotFound     = "not_found"
	ErrCodeCircuitOpen  = "circuit_open"
	ErrCodeCanceled     = "canceled"
)

// BatchReport 描述一次元数据批量抓取（一个种子列表对应一批）。
type BatchReport struct {
	LoadID string `json:"load_id"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary BatchSummary `json:"summary"`
	Items   []ItemResult `json:"items"`
}

type BatchSummary struct {
	Total  int `json:"total"`
	OK     int `json:"ok"`
	Failed int `json:"failed"`
}

// ItemResult 是种子列表中单个标题的抓取结果。Index 对应种子列表下标。
type ItemResult struct {
	Index int    `json:"index"`
	Title string `json:"title"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 按种子下标稳定排序（worker 完成顺序不可预测）
// 3) summary 由 items 计算得出
func (r *BatchReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		return r.Items[i].Index < r.Items[j].Index
	})

	s := BatchSummary{Total: len(r.Items)}
	for _, it := range r.Items {
		switch it.Status {
		case StatusOK:
			s.OK++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// Complete 表示批次内没有失败条目。
func (r BatchReport) Complete() bool {
	return r.Summary.Failed == 0
}

// MarshalJSON 保证 items 为 [] 而不是 null（对外输出更稳定）。
func (r BatchReport) MarshalJSON() ([]byte, error) {
	type Alias BatchReport
	a := Alias(r)
	if a.Items == nil {
		a.Items = []ItemResult{}
	}
	return json.Marshal(a)
}
