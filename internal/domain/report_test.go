package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := BatchReport{
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Items: []ItemResult{
			{Index: 2, Title: "C", Status: StatusOK},
			{Index: 0, Title: "A", Status: StatusFailed, ErrorCode: ErrCodeFetchFailed},
			{Index: 1, Title: "B", Status: StatusOK},
		},
	}

	r.Finalize()

	require.Len(t, r.Items, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{r.Items[0].Title, r.Items[1].Title, r.Items[2].Title}, "items 应按种子下标排序")
	assert.Equal(t, BatchSummary{Total: 3, OK: 2, Failed: 1}, r.Summary)
	assert.False(t, r.Complete(), "存在失败条目时 Complete 应为 false")

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"started_at":"2026-02-09T02:00:00Z"`, "started_at 不是 UTC RFC3339")
}

func TestBatchReport_EmptyItemsMarshalAsArray(t *testing.T) {
	var r BatchReport
	r.Finalize()
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"items":[]`, "空 items 应输出 []")
	assert.True(t, r.Complete(), "空批次应视为完整")
}
