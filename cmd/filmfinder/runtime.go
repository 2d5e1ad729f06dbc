package main

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/John-Robertt/filmfinder/internal/api"
	"github.com/John-Robertt/filmfinder/internal/app/load"
	"github.com/John-Robertt/filmfinder/internal/catalog"
	"github.com/John-Robertt/filmfinder/internal/config"
	"github.com/John-Robertt/filmfinder/internal/infra/cache"
	"github.com/John-Robertt/filmfinder/internal/infra/httpx"
	"github.com/John-Robertt/filmfinder/internal/logging"
	"github.com/John-Robertt/filmfinder/internal/metrics"
)

const userAgent = "filmfinder/1.0"

// runtime 是一次命令执行所需的全部依赖（按配置装配）。
type runtime struct {
	cfg     config.Config
	catalog *catalog.Catalog

	stdout io.Writer
	stderr io.Writer
	// tty 表示 stdout 是交互终端（彩色输出）；否则 stdout 只输出一个 JSON 文档。
	tty bool
	// progress 非空时把进度写到这里（只在交互终端启用）。
	progress io.Writer
}

func newRuntime(cfg config.Config, stdout, stderr io.Writer) (*runtime, error) {
	stderrTTY := isTerminal(stderr)
	// 日志、联想列表与进度来自不同 goroutine，共用同一个加锁的 stderr。
	stderr = &lockedWriter{w: stderr}

	format := cfg.Log.Format
	if format == "" {
		format = "json"
		if stderrTTY {
			format = "console"
		}
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: format, Output: stderr})

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}

	hc, err := httpx.NewAPIClient(httpx.Options{
		ProxyURL:      cfg.API.ProxyURL,
		Timeout:       cfg.API.Timeout,
		RetryMax:      cfg.API.RetryMax,
		RatePerSecond: cfg.API.RatePerSecond,
		Burst:         cfg.API.Burst,
		UserAgent:     userAgent,
	})
	if err != nil {
		return nil, err
	}
	client, err := api.New(cfg.API.BaseURL, hc)
	if err != nil {
		return nil, err
	}
	br := api.NewBreaker(client, api.BreakerSettings{})
	store := cache.New(cfg.Cache.Dir, cfg.Cache.ReadOnly, cfg.Cache.MaxAge)

	rt := &runtime{
		cfg:     cfg,
		catalog: catalog.New(br, store),
		stdout:  stdout,
		stderr:  stderr,
		tty:     isTerminal(stdout),
	}
	if stderrTTY {
		rt.progress = stderr
	} else if rt.tty {
		// 仅重定向了 stderr：进度退化输出到 stdout。
		rt.progress = stdout
	}
	return rt, nil
}

// loader 返回按配置装配的 Loader；交互终端下附带进度输出。
func (rt *runtime) loader() *load.Loader {
	l := &load.Loader{
		Backend:      rt.catalog,
		Concurrency:  rt.cfg.View.Concurrency,
		Policy:       load.Policy(rt.cfg.View.Policy),
		StartupDelay: rt.cfg.View.StartupDelay,
	}
	if rt.progress != nil {
		l.Observer = newProgressUI(rt.progress)
	}
	return l
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
