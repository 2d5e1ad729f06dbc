// Package web 以服务端渲染的方式提供首页、结果页、电影详情页，以及联想接口。
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/John-Robertt/filmfinder/internal/api"
	"github.com/John-Robertt/filmfinder/internal/app/load"
	"github.com/John-Robertt/filmfinder/internal/domain"
	"github.com/John-Robertt/filmfinder/internal/logging"
	"github.com/John-Robertt/filmfinder/internal/suggest"
)

//go:embed templates/*.html
var templateFS embed.FS

// Options 配置 Server；零值可用。
type Options struct {
	CORSOrigins   []string
	SuggestPerMin int
	Debounce      time.Duration
	// Gatherer 为空时 /metrics 使用 prometheus.DefaultGatherer。
	Gatherer prometheus.Gatherer
}

// Server 持有渲染页面所需的全部依赖。
type Server struct {
	backend api.Backend
	loader  *load.Loader
	opts    Options
	pages   map[string]*template.Template
}

func New(backend api.Backend, loader *load.Loader, opts Options) (*Server, error) {
	if backend == nil || loader == nil {
		return nil, errors.New("web: backend 与 loader 不能为空")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = suggest.DefaultInterval
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	return &Server{backend: backend, loader: loader, opts: opts, pages: pages}, nil
}

var templateFuncs = template.FuncMap{
	"stars": func(v float64) []int {
		g := domain.StarGlyphs(v)
		return g[:]
	},
	"glyph":      domain.Glyph,
	"glyphClass": domain.GlyphClass,
}

// parsePages 为每个页面单独解析 layout + 页面模板（各页面都定义 content 块）。
func parsePages() (map[string]*template.Template, error) {
	out := map[string]*template.Template{}
	for _, name := range []string{"landing", "results", "movie", "error"} {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("web: 解析模板 %s 失败：%w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

// Handler 返回完整路由。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(accessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	r.Get(domain.LandingPath, s.handleLanding)
	r.Get(domain.ResultsPath, s.handleResults)
	r.Get("/search", s.handleSearch)
	r.Get("/movies/{imdbID}", s.handleMovie)

	r.Group(func(r chi.Router) {
		if s.opts.SuggestPerMin > 0 {
			r.Use(httprate.LimitByIP(s.opts.SuggestPerMin, time.Minute))
		}
		r.Get("/suggest", s.handleSuggest)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound, "Page not found")
	})
	return r
}

// ListenAndServe 启动 HTTP 服务，ctx 取消后优雅退出。
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logging.Info().Msg("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// accessLog 用 zerolog 记录每个请求（状态码、耗时、request id）。
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ev := logging.Info()
		if status >= 500 {
			ev = logging.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(started)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
