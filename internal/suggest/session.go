// Package suggest 实现搜索框：输入即时生效，联想请求经防抖后发出，
// 并用递增序号保证只有最新请求的响应会被采用。
package suggest

import (
	"context"
	"sync"
	"time"

	"github.com/John-Robertt/filmfinder/internal/domain"
	"github.com/John-Robertt/filmfinder/internal/logging"
	"github.com/John-Robertt/filmfinder/internal/metrics"
)

// Searcher 是 Session 唯一需要的后端能力。
type Searcher interface {
	SearchTitles(ctx context.Context, query string) ([]string, error)
}

// State 是搜索框在某一时刻的可见状态。
type State struct {
	Text        string   `json:"text"`
	Suggestions []string `json:"suggestions"`
	Seq         uint64   `json:"seq"`
}

// Session 对应一个搜索框。
//
// 约束：
// - Type 立即更新 Text，联想列表只由防抖后的请求更新
// - 每次发请求（或因输入为空而清空）都会递增 seq 并取消上一次请求的 context
// - 响应只有在其 seq 仍是最新时才会被采用；旧响应直接丢弃
// - 新列表整体替换旧列表
type Session struct {
	searcher Searcher
	debounce *Debouncer
	timeout  time.Duration

	mu          sync.Mutex
	text        string
	suggestions []string
	seq         uint64
	cancel      context.CancelFunc
	onChange    func(State)
	closed      bool
}

// Options 配置 Session；零值可用。
type Options struct {
	Debounce time.Duration
	// Timeout 限制单次联想请求时长；<=0 表示不限制。
	Timeout time.Duration
}

func NewSession(s Searcher, opts Options) *Session {
	return &Session{
		searcher:    s,
		debounce:    NewDebouncer(opts.Debounce),
		timeout:     opts.Timeout,
		suggestions: []string{},
	}
}

// OnChange 注册状态变化回调；回调在锁外调用，可能来自其它 goroutine。
func (s *Session) OnChange(fn func(State)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Type 把输入框内容替换为 text，并安排一次防抖后的联想请求。
func (s *Session) Type(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.text = text
	st, fn := s.snapshotLocked(), s.onChange
	s.mu.Unlock()
	notify(fn, st)

	s.debounce.Trigger(func() { s.fetch(text) })
}

// Flush 立即发出挂起的联想请求（不等防抖）；请求本身仍是异步的。
func (s *Session) Flush() bool { return s.debounce.Flush() }

// Select 选中第 i 条联想：输入框变为该标题，联想列表清空。
func (s *Session) Select(i int) bool {
	// 先撤掉挂起的联想，避免它在选中后用旧输入重新填充列表。
	s.debounce.Stop()

	s.mu.Lock()
	if i < 0 || i >= len(s.suggestions) {
		s.mu.Unlock()
		return false
	}
	s.text = s.suggestions[i]
	s.advanceLocked()
	s.suggestions = []string{}
	st, fn := s.snapshotLocked(), s.onChange
	s.mu.Unlock()

	notify(fn, st)
	return true
}

// Submit 返回结果页路由；输入为空或全是空白时 ok=false，不导航。
func (s *Session) Submit() (string, bool) {
	s.mu.Lock()
	text := s.text
	s.mu.Unlock()
	return domain.ResultsRoute(text)
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close 取消挂起与进行中的请求；之后的 Type 被忽略。
func (s *Session) Close() {
	s.debounce.Stop()
	s.mu.Lock()
	s.closed = true
	s.advanceLocked()
	s.mu.Unlock()
}

func (s *Session) fetch(text string) {
	q, ok := domain.NormalizeQuery(text)

	s.mu.Lock()
	// 已关闭，或输入框内容已被 Select 替换：这次联想不再对应当前输入
	if s.closed || s.text != text {
		s.mu.Unlock()
		return
	}
	seq := s.advanceLocked()
	if !ok {
		s.suggestions = []string{}
		st, fn := s.snapshotLocked(), s.onChange
		s.mu.Unlock()
		notify(fn, st)
		return
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx, cancel, seq, q)
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, seq uint64, q string) {
	defer cancel()
	matches, err := s.searcher.SearchTitles(ctx, q)
	if err != nil {
		if ctx.Err() == nil {
			logging.Warn().Err(err).Str("query", q).Msg("suggestion fetch failed")
		}
		matches = []string{}
	}
	if matches == nil {
		matches = []string{}
	}

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		metrics.StaleResponses.WithLabelValues("suggest").Inc()
		logging.Debug().Uint64("seq", seq).Str("query", q).Msg("stale suggestions discarded")
		return
	}
	s.suggestions = append([]string(nil), matches...)
	st, fn := s.snapshotLocked(), s.onChange
	s.mu.Unlock()
	notify(fn, st)
}

// advanceLocked 让所有进行中的请求失效，返回新的序号。
func (s *Session) advanceLocked() uint64 {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
	return s.seq
}

func (s *Session) snapshotLocked() State {
	return State{
		Text:        s.text,
		Suggestions: append([]string{}, s.suggestions...),
		Seq:         s.seq,
	}
}

func notify(fn func(State), st State) {
	if fn != nil {
		fn(st)
	}
}
