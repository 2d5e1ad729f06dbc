package web

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/John-Robertt/filmfinder/internal/api"
	"github.com/John-Robertt/filmfinder/internal/app/load"
	"github.com/John-Robertt/filmfinder/internal/domain"
	"github.com/John-Robertt/filmfinder/internal/logging"
)

type gridView struct {
	SearchText string
	DebounceMS int64
	Query      string
	Cards      []load.Card
}

type providerGroup struct {
	Kind  string
	Label string
	Items []domain.Provider
}

type movieView struct {
	SearchText    string
	DebounceMS    int64
	IMDbID        string
	Title         string
	Poster        string
	Stars         float64
	IMDbURL       string
	Release       string
	Certification string
	Details       domain.MovieDetails
	Providers     []providerGroup
}

type errorView struct {
	SearchText string
	DebounceMS int64
	Message    string
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	page := s.loader.Landing(r.Context())
	s.render(w, r, http.StatusOK, "landing", gridView{
		DebounceMS: s.opts.Debounce.Milliseconds(),
		Cards:      page.Cards,
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get(domain.QueryParam)
	if isBlank(query) {
		http.Redirect(w, r, domain.LandingPath, http.StatusSeeOther)
		return
	}
	page := s.loader.Results(r.Context(), query)
	s.render(w, r, http.StatusOK, "results", gridView{
		SearchText: query,
		DebounceMS: s.opts.Debounce.Milliseconds(),
		Query:      query,
		Cards:      page.Cards,
	})
}

// handleSearch 是搜索框提交：非空跳转到结果页，空白输入不导航。
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	route, ok := domain.ResultsRoute(r.URL.Query().Get(domain.QueryParam))
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, route, http.StatusSeeOther)
}

type suggestResponse struct {
	Matches []string `json:"matches"`
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	resp := suggestResponse{Matches: []string{}}
	if q, ok := domain.NormalizeQuery(r.URL.Query().Get(domain.QueryParam)); ok {
		matches, err := s.backend.SearchTitles(r.Context(), q)
		if err != nil {
			logging.Warn().Err(err).Str("query", q).Msg("suggestion fetch failed")
		} else if matches != nil {
			resp.Matches = matches
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMovie(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "imdbID"))
	details, err := s.backend.TMDBData(r.Context(), id)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, api.ErrNotFound) {
			status = http.StatusNotFound
		}
		logging.Warn().Err(err).Str("imdb_id", id).Msg("movie details fetch failed")
		s.renderError(w, r, status, "Could not load movie details")
		return
	}

	groups := make([]providerGroup, 0, 3)
	for _, g := range []providerGroup{
		{Kind: "stream", Label: "Stream", Items: details.Providers.Stream},
		{Kind: "rent", Label: "Rent", Items: details.Providers.Rent},
		{Kind: "buy", Label: "Buy", Items: details.Providers.Buy},
	} {
		if len(g.Items) > 0 {
			groups = append(groups, g)
		}
	}

	view := movieView{
		DebounceMS:    s.opts.Debounce.Milliseconds(),
		IMDbID:        id,
		Title:         strings.TrimSpace(r.URL.Query().Get("title")),
		IMDbURL:       domain.IMDbURL(id),
		Release:       domain.FormatReleaseDate(details.ReleaseDate),
		Certification: details.Certification(),
		Details:       details,
		Providers:     groups,
	}
	// 海报与评分来自标题摘要；取不到时详情页照常渲染。
	if view.Title != "" {
		summary, err := s.backend.MovieData(r.Context(), view.Title)
		if err != nil {
			logging.Warn().Err(err).Str("title", view.Title).Msg("movie summary fetch failed")
		} else {
			view.Title = summary.Title
			view.Poster = summary.Poster
			view.Stars = domain.StarRating(summary.Rating)
		}
	}
	s.render(w, r, http.StatusOK, "movie", view)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.render(w, r, status, "error", errorView{
		DebounceMS: s.opts.Debounce.Milliseconds(),
		Message:    msg,
	})
}

// render 先渲染到缓冲区，模板出错时返回 500 而不是半截页面。
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		logging.Error().Err(err).Str("page", page).Str("path", r.URL.Path).Msg("template render failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}
