package suggest

import (
	"sync"
	"time"
)

// DefaultInterval 是输入停止后触发联想请求的静默时长。
const DefaultInterval = 300 * time.Millisecond

// Debouncer 只保留最后一次 Trigger：每次 Trigger 重置计时器，
// 静默 Interval 后执行最近一次传入的 fn。
type Debouncer struct {
	Interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending func()
	gen     uint64
}

func NewDebouncer(interval time.Duration) *Debouncer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Debouncer{Interval: interval}
}

// Trigger (重新)安排 fn 在 Interval 后执行，取代尚未执行的旧 fn。
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = fn
	d.timer = time.AfterFunc(d.Interval, func() { d.fire(gen) })
}

// Flush 立即执行挂起的 fn（若有）；返回是否执行了。
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	fn := d.takeLocked()
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Stop 取消挂起的 fn。
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.takeLocked()
	d.mu.Unlock()
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		// 已被更新的 Trigger/Flush/Stop 取代
		d.mu.Unlock()
		return
	}
	fn := d.takeLocked()
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (d *Debouncer) takeLocked() func() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	fn := d.pending
	d.pending = nil
	return fn
}
