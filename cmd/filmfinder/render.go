package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/goccy/go-json"

	"github.com/John-Robertt/filmfinder/internal/app/load"
	"github.com/John-Robertt/filmfinder/internal/domain"
)

var (
	titleColor = color.New(color.FgHiWhite, color.Bold)
	starColor  = color.New(color.FgYellow)
	dimColor   = color.New(color.Faint)
	failColor  = color.New(color.FgRed)
)

// emitJSON 把 v 作为 stdout 上唯一的 JSON 文档输出。
func emitJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}

// renderStars 把半星值画成 MaxStars 个字符。
func renderStars(stars float64) string {
	var b strings.Builder
	for _, slot := range domain.StarGlyphs(stars) {
		b.WriteString(domain.Glyph(slot))
	}
	return b.String()
}

func renderPage(w io.Writer, page load.Page) {
	switch page.Kind {
	case load.KindResults:
		titleColor.Fprintf(w, "Recommendations based on %q\n\n", page.Query)
	default:
		titleColor.Fprintln(w, "Popular movies")
		fmt.Fprintln(w)
	}

	if page.Empty() {
		fmt.Fprintln(w, "No results found")
		if page.BatchFailed {
			failColor.Fprintf(w, "（%d 条元数据请求失败，all_or_nothing 策略下整批作废）\n", page.Report.Summary.Failed)
		}
		return
	}
	for _, c := range page.Cards {
		renderCard(w, c)
	}
	if n := page.Report.Summary.Failed; n > 0 {
		failColor.Fprintf(w, "%d 部电影的元数据获取失败，未展示\n", n)
	}
}

func renderCard(w io.Writer, c load.Card) {
	titleColor.Fprint(w, c.Title)
	fmt.Fprint(w, "  ")
	starColor.Fprint(w, renderStars(c.Stars))
	dimColor.Fprintf(w, " %.1f/10\n", c.Rating)
	if c.IMDbURL != "" {
		dimColor.Fprintf(w, "  %s\n", c.IMDbURL)
	}
	if c.Poster != "" {
		dimColor.Fprintf(w, "  %s\n", c.Poster)
	}
}

// movieInfo 是 info 命令的输出文档。
type movieInfo struct {
	IMDbID        string              `json:"imdb_id"`
	IMDbURL       string              `json:"imdb_url"`
	Release       string              `json:"release"`
	Certification string              `json:"certification"`
	Details       domain.MovieDetails `json:"details"`
}

func newMovieInfo(id string, d domain.MovieDetails) movieInfo {
	return movieInfo{
		IMDbID:        id,
		IMDbURL:       domain.IMDbURL(id),
		Release:       domain.FormatReleaseDate(d.ReleaseDate),
		Certification: d.Certification(),
		Details:       d,
	}
}

func renderMovieInfo(w io.Writer, m movieInfo) {
	titleColor.Fprint(w, m.IMDbID)
	if m.Certification != "" {
		fmt.Fprintf(w, "  [%s]", m.Certification)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, m.Release)
	if len(m.Details.Genres) > 0 {
		dimColor.Fprintln(w, strings.Join(m.Details.Genres, " · "))
	}
	if m.Details.Overview != "" {
		fmt.Fprintf(w, "\n%s\n", m.Details.Overview)
	}
	p := m.Details.Providers
	for _, g := range []struct {
		label string
		items []domain.Provider
	}{{"Stream", p.Stream}, {"Rent", p.Rent}, {"Buy", p.Buy}} {
		if len(g.items) == 0 {
			continue
		}
		names := make([]string, 0, len(g.items))
		for _, it := range g.items {
			names = append(names, it.Name)
		}
		fmt.Fprintf(w, "%s: %s\n", g.label, strings.Join(names, ", "))
	}
	if p.Link != "" {
		dimColor.Fprintf(w, "Where to watch: %s\n", p.Link)
	}
	dimColor.Fprintf(w, "%s\n", m.IMDbURL)
}

func renderSuggestions(w io.Writer, matches []string) {
	if len(matches) == 0 {
		dimColor.Fprintln(w, "（无联想）")
		return
	}
	for i, m := range matches {
		dimColor.Fprintf(w, "%2d ", i+1)
		fmt.Fprintln(w, m)
	}
}
