package domain

import (
	"net/url"
	"strings"
)

const (
	// LandingPath 是首页（热门列表）路由。
	LandingPath = "/"
	// ResultsPath 是推荐结果页路由，查询词通过 query 参数携带。
	ResultsPath = "/recommendations"
	// QueryParam 是结果页携带查询词的参数名。
	QueryParam = "query"
)

// NormalizeQuery 对用户输入做唯一的校验：trim 后非空。
func NormalizeQuery(s string) (string, bool) {
	t := strings.TrimSpace(s)
	return t, t != ""
}

// ResultsRoute 返回提交查询后应跳转的结果页地址。
//
// 空白查询返回 ok=false（调用方应静默忽略，不报错）。
// 编码的是原始输入而不是 trim 后的文本：解码后必须与输入逐字节一致。
func ResultsRoute(query string) (string, bool) {
	if _, ok := NormalizeQuery(query); !ok {
		return "", false
	}
	return ResultsPath + "?" + QueryParam + "=" + url.QueryEscape(query), true
}

// QueryFromURL 从结果页地址中取回查询词；解析失败或缺参时返回空串。
func QueryFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get(QueryParam)
}
