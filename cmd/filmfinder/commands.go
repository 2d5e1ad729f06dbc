package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/John-Robertt/filmfinder/internal/api"
	"github.com/John-Robertt/filmfinder/internal/app/load"
	"github.com/John-Robertt/filmfinder/internal/domain"
	"github.com/John-Robertt/filmfinder/internal/suggest"
	"github.com/John-Robertt/filmfinder/internal/web"
)

func popularCmd(ctx context.Context, rt *runtime, _ []string, _ io.Reader) int {
	return emitPage(rt, rt.loader().Landing(ctx))
}

func recommendCmd(ctx context.Context, rt *runtime, args []string, _ io.Reader) int {
	if _, ok := domain.NormalizeQuery(args[0]); !ok {
		fmt.Fprintln(rt.stderr, "参数错误：title 不能为空")
		return 2
	}
	return emitPage(rt, rt.loader().Results(ctx, args[0]))
}

// emitPage 输出页面；种子失败或有条目失败时退出码为 1（空结果本身不算失败）。
func emitPage(rt *runtime, page load.Page) int {
	if rt.tty {
		renderPage(rt.stdout, page)
	} else if err := emitJSON(rt.stdout, page); err != nil {
		fmt.Fprintf(rt.stderr, "输出 JSON 失败：%v\n", err)
		return 1
	}
	if page.SeedError != "" {
		fmt.Fprintf(rt.stderr, "标题列表获取失败：%s\n", page.SeedError)
		return 1
	}
	for _, it := range page.Report.Items {
		if it.Status == domain.StatusFailed {
			fmt.Fprintf(rt.stderr, "%s %s: %s\n", it.Title, it.ErrorCode, it.ErrorMsg)
		}
	}
	if page.Report.Summary.Failed > 0 {
		return 1
	}
	return 0
}

type suggestOutput struct {
	Query   string   `json:"query"`
	Matches []string `json:"matches"`
}

func suggestCmd(ctx context.Context, rt *runtime, args []string, _ io.Reader) int {
	out := suggestOutput{Query: args[0], Matches: []string{}}
	code := 0
	if q, ok := domain.NormalizeQuery(args[0]); ok {
		matches, err := rt.catalog.SearchTitles(ctx, q)
		if err != nil {
			fmt.Fprintln(rt.stderr, api.Humanize(err))
			code = 1
		} else {
			out.Matches = matches
		}
	}
	if rt.tty {
		renderSuggestions(rt.stdout, out.Matches)
	} else if err := emitJSON(rt.stdout, out); err != nil {
		return 1
	}
	return code
}

func infoCmd(ctx context.Context, rt *runtime, args []string, _ io.Reader) int {
	id := strings.TrimSpace(args[0])
	d, err := rt.catalog.TMDBData(ctx, id)
	if err != nil {
		fmt.Fprintln(rt.stderr, api.Humanize(err))
		return 1
	}
	m := newMovieInfo(id, d)
	if rt.tty {
		renderMovieInfo(rt.stdout, m)
		return 0
	}
	if err := emitJSON(rt.stdout, m); err != nil {
		return 1
	}
	return 0
}

// searchCmd 是交互式搜索框：
// - 普通行：替换输入框内容（经防抖后请求联想）
// - ":N"：选择第 N 条联想
// - 空行：提交；输入为空白时不导航，继续等待
// 提交后加载结果页并输出，随后退出。
func searchCmd(ctx context.Context, rt *runtime, _ []string, in io.Reader) int {
	sess := suggest.NewSession(rt.catalog, suggest.Options{
		Debounce: rt.cfg.Search.Debounce,
		Timeout:  rt.cfg.API.Timeout,
	})
	defer sess.Close()

	ui := rt.stderr
	var (
		mu      sync.Mutex
		lastSeq uint64
	)
	sess.OnChange(func(st suggest.State) {
		mu.Lock()
		defer mu.Unlock()
		// 只在联想列表被新请求替换时打印（Type 只改输入框，不打印）。
		if st.Seq == lastSeq || st.Seq == 0 {
			return
		}
		lastSeq = st.Seq
		renderSuggestions(ui, st.Suggestions)
	})

	// 每次提交都经 Navigator 发起加载，新提交取消旧的；输入结束后输出最后一次提交的结果页。
	nav := &load.Navigator{Loader: rt.loader()}
	var (
		wg      sync.WaitGroup
		pageMu  sync.Mutex
		submits int
		shown   int
		final   load.Page
	)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return 130
		}
		line := sc.Text()
		switch {
		case line == "":
			route, ok := sess.Submit()
			if !ok {
				continue
			}
			submits++
			n, query := submits, domain.QueryFromURL(route)
			fmt.Fprintf(ui, "正在加载：%s\n", query)
			wg.Add(1)
			go func() {
				defer wg.Done()
				page, err := nav.Go(ctx, query)
				if err != nil {
					// 只可能是 ErrSuperseded：已有更新的提交
					return
				}
				pageMu.Lock()
				if n > shown {
					shown, final = n, page
				}
				pageMu.Unlock()
			}()
		case strings.HasPrefix(line, ":"):
			n, err := strconv.Atoi(strings.TrimPrefix(line, ":"))
			if err != nil || !sess.Select(n-1) {
				fmt.Fprintf(ui, "没有第 %s 条联想\n", strings.TrimPrefix(line, ":"))
				continue
			}
			fmt.Fprintf(ui, "已选择：%s\n", sess.Snapshot().Text)
		default:
			sess.Type(line)
		}
	}
	wg.Wait()
	if err := sc.Err(); err != nil {
		fmt.Fprintf(rt.stderr, "读取输入失败：%v\n", err)
		return 1
	}
	if ctx.Err() != nil {
		return 130
	}
	if submits > 0 {
		return emitPage(rt, final)
	}
	// 没有提交就结束输入：输出最后的输入框状态。
	if !rt.tty {
		_ = emitJSON(rt.stdout, sess.Snapshot())
	}
	return 0
}

func serveCmd(ctx context.Context, rt *runtime, _ []string, _ io.Reader) int {
	l := rt.loader()
	// 服务端不输出终端进度；改为页面就绪后预热详情。
	l.Observer = nil
	l.Prefetcher = rt.catalog

	s, err := web.New(rt.catalog, l, web.Options{
		CORSOrigins:   rt.cfg.Server.CORSOrigins,
		SuggestPerMin: rt.cfg.Server.SuggestPerMin,
		Debounce:      rt.cfg.Search.Debounce,
	})
	if err != nil {
		fmt.Fprintf(rt.stderr, "初始化网页服务失败：%v\n", err)
		return 1
	}
	fmt.Fprintf(rt.stderr, "listening on http://%s (backend %s)\n", rt.cfg.Server.Addr, rt.cfg.API.BaseURL)
	if err := s.ListenAndServe(ctx, rt.cfg.Server.Addr, rt.cfg.Server.ReadTimeout, rt.cfg.Server.WriteTimeout); err != nil {
		fmt.Fprintf(rt.stderr, "网页服务异常退出：%v\n", err)
		return 1
	}
	return 0
}
