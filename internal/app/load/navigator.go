package load

import (
	"context"
	"errors"
	"sync"

	"github.com/John-Robertt/filmfinder/internal/logging"
	"github.com/John-Robertt/filmfinder/internal/metrics"
)

// ErrSuperseded 表示该次加载已被更新的导航取代，其结果已丢弃。
var ErrSuperseded = errors.New("load: superseded by a newer navigation")

// Navigator 保证快速连续导航时只有最后一次结果生效：
// 新的 Go 会取消上一次仍在进行的加载。search 命令的每次提交都经它发起，可并发调用。
type Navigator struct {
	Loader *Loader

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

func (n *Navigator) Go(ctx context.Context, query string) (Page, error) {
	n.mu.Lock()
	if n.cancel != nil {
		n.cancel()
	}
	n.seq++
	seq := n.seq
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.mu.Unlock()
	defer cancel()

	page := n.Loader.Results(ctx, query)

	n.mu.Lock()
	stale := seq != n.seq
	if !stale {
		n.cancel = nil
	}
	n.mu.Unlock()

	if stale {
		metrics.StaleResponses.WithLabelValues("navigation").Inc()
		logging.Debug().Str("query", query).Str("load_id", page.Report.LoadID).Msg("navigation superseded")
		return Page{}, ErrSuperseded
	}
	return page, nil
}
