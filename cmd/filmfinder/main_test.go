package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/filmfinder/internal/app/load"
	"github.com/John-Robertt/filmfinder/internal/config"
	"github.com/John-Robertt/filmfinder/internal/suggest"
)

func TestParseArgs(t *testing.T) {
	ca, err := parseArgs([]string{"Heat", "--base-url", "http://b.test", "--concurrency=3", "--policy", "all_or_nothing"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Heat"}, ca.Positional)
	assert.True(t, ca.CLI.BaseURLSet, "--base-url 未生效")
	assert.Equal(t, "http://b.test", ca.CLI.BaseURL)
	assert.True(t, ca.CLI.ConcurrencySet, "--concurrency 未生效")
	assert.Equal(t, 3, ca.CLI.Concurrency)
	assert.True(t, ca.CLI.PolicySet, "--policy 未生效")
	assert.Equal(t, config.PolicyAllOrNothing, ca.CLI.Policy)

	ca, err = parseArgs([]string{"--", "--weird title"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"--weird title"}, ca.Positional, "-- 之后应全部视为位置参数")
}

func TestParseArgs_Errors(t *testing.T) {
	cases := [][]string{
		{"--concurrency", "0"},
		{"--policy", "some"},
		{"--addr", ":9090"},
		{"--unknown", "x"},
		{"-x"},
		{"--base-url"},
	}
	for _, args := range cases {
		_, err := parseArgs(args, nil)
		assert.Error(t, err, "期望 %v 报错", args)
	}
	_, err := parseArgs([]string{"--addr", ":9090"}, map[string]bool{"--addr": true})
	assert.NoError(t, err, "serve 应允许 --addr")
}

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/api/popular-titles":
			w.Write([]byte(`{"popular":["Heat","Alien"]}`))
		case "/api/recommendations":
			if q.Get("title") == "Heat" {
				w.Write([]byte(`{"recommended":["Collateral","Broken"]}`))
				return
			}
			w.Write([]byte(`{"recommended":[]}`))
		case "/api/search-title":
			w.Write([]byte(`{"matches":["Heat","Heathers"]}`))
		case "/api/movie-data":
			title := q.Get("title")
			if title == "Broken" {
				w.Write([]byte(`[{"error":"Movie title not found"},404]`))
				return
			}
			w.Write([]byte(`{"title":"` + title + `","poster":"p","imdb_id":"tt0113277","rating":7}`))
		case "/api/tmdb-data":
			w.Write([]byte(`{"id":949,"overview":"o","release_date":"1995-12-15","genres":["Crime"],"providers":{},"rating":"R"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, name string, args []string, stdin string) (int, string, string) {
	t.Helper()
	t.Setenv(config.ConfigPathEnv, "")
	var stdout, stderr bytes.Buffer
	code := runCommand(context.Background(), commands[name], args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLI_NoTTY_StdoutOnlyPageJSON(t *testing.T) {
	srv := fakeBackend(t)

	code, out, errOut := runCLI(t, "popular", []string{"--base-url", srv.URL}, "")
	require.Equal(t, 0, code, "stderr=%s", errOut)
	var page load.Page
	dec := json.NewDecoder(strings.NewReader(out))
	require.NoError(t, dec.Decode(&page), "stdout 不是 JSON：%s", out)
	assert.False(t, dec.More(), "stdout 只能有一个 JSON 文档：%s", out)
	require.Len(t, page.Cards, 2)
	assert.Equal(t, "Heat", page.Cards[0].Title)
}

func TestCLI_RecommendPartialFailureExitsNonZero(t *testing.T) {
	srv := fakeBackend(t)

	code, out, errOut := runCLI(t, "recommend", []string{"Heat", "--base-url", srv.URL}, "")
	assert.Equal(t, 1, code, "有条目失败时退出码应为 1")
	var page load.Page
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Cards, 1, "partial 策略应保留成功的卡片")
	assert.Equal(t, "Collateral", page.Cards[0].Title)
	assert.Contains(t, errOut, "Broken not_found", "stderr 应列出失败条目")
}

func TestCLI_RecommendAllOrNothing(t *testing.T) {
	srv := fakeBackend(t)

	_, out, _ := runCLI(t, "recommend", []string{"Heat", "--base-url", srv.URL, "--policy", "all_or_nothing"}, "")
	var page load.Page
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Empty(t, page.Cards, "all_or_nothing 下任一失败应整批作废")
	assert.True(t, page.BatchFailed)
}

func TestCLI_SearchSubmitsTypedText(t *testing.T) {
	srv := fakeBackend(t)

	// 先输入再立即提交：提交使用输入框当前内容，不等待联想。
	code, out, errOut := runCLI(t, "search", []string{"--base-url", srv.URL}, "   \n\nAlien\n\n")
	require.Equal(t, 0, code, "stderr=%s", errOut)
	var page load.Page
	require.NoError(t, json.Unmarshal([]byte(out), &page), "stdout 不是 JSON：%s", out)
	assert.Equal(t, load.KindResults, page.Kind)
	assert.Equal(t, "Alien", page.Query)
}

func TestCLI_SearchRepeatedSubmitKeepsLatest(t *testing.T) {
	srv := fakeBackend(t)

	code, out, errOut := runCLI(t, "search", []string{"--base-url", srv.URL}, "Heat\n\nAlien\n\n")
	require.Equal(t, 0, code, "stderr=%s", errOut)
	assert.Contains(t, errOut, "正在加载：Heat")
	assert.Contains(t, errOut, "正在加载：Alien")

	var page load.Page
	dec := json.NewDecoder(strings.NewReader(out))
	require.NoError(t, dec.Decode(&page), "stdout 不是 JSON：%s", out)
	assert.False(t, dec.More(), "stdout 只能有一个 JSON 文档：%s", out)
	assert.Equal(t, "Alien", page.Query, "应输出最后一次提交的结果页")
	assert.Empty(t, page.Cards)
}

func TestCLI_SearchWithoutSubmitPrintsState(t *testing.T) {
	srv := fakeBackend(t)

	code, out, _ := runCLI(t, "search", []string{"--base-url", srv.URL}, "Hea\n")
	require.Equal(t, 0, code)
	var st suggest.State
	require.NoError(t, json.Unmarshal([]byte(out), &st), "stdout 不是 JSON：%s", out)
	assert.Equal(t, "Hea", st.Text, "输入框内容不对")
}

func TestCLI_SuggestAndInfo(t *testing.T) {
	srv := fakeBackend(t)

	_, out, _ := runCLI(t, "suggest", []string{"hea", "--base-url", srv.URL}, "")
	var so suggestOutput
	require.NoError(t, json.Unmarshal([]byte(out), &so), "suggest 输出不对：%s", out)
	assert.Len(t, so.Matches, 2)

	_, out, _ = runCLI(t, "info", []string{"tt0113277", "--base-url", srv.URL}, "")
	var mi movieInfo
	require.NoError(t, json.Unmarshal([]byte(out), &mi), "info 输出不是 JSON")
	assert.Equal(t, "December 15th, 1995", mi.Release)
	assert.Equal(t, "R", mi.Certification)
}

func TestCLI_WrongArgCount(t *testing.T) {
	code, _, errOut := runCLI(t, "recommend", nil, "")
	assert.Equal(t, 2, code, "缺少参数应返回 2")
	assert.Contains(t, errOut, "需要 1 个参数")
}
