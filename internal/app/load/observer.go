package load

import (
	"time"

	"github.com/John-Robertt/filmfinder/internal/domain"
)

// Observer 把加载进度从编排流程中解耦出来。
//
// 约束：
// - load 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：OnItemDone 来自多个 worker goroutine。
type Observer interface {
	// OnStart 在任何请求发出之前调用。
	OnStart(kind Kind, query string)
	// OnSeed 在种子列表（热门或推荐）返回后调用；失败时 titles 为空、err 非空。
	OnSeed(titles []string, err error, dur time.Duration)
	// OnItemDone 在某个标题的 movie-data 请求结束时调用。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
	// OnDone 在页面就绪（或放弃）时调用一次。
	OnDone(page Page)
}
