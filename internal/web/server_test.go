package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/filmfinder/internal/api"
	"github.com/John-Robertt/filmfinder/internal/app/load"
	"github.com/John-Robertt/filmfinder/internal/domain"
)

type fakeBackend struct {
	popular []string
	recs    map[string][]string
	matches map[string][]string
	details map[string]domain.MovieDetails
}

func (f *fakeBackend) SearchTitles(ctx context.Context, query string) ([]string, error) {
	return f.matches[query], nil
}

func (f *fakeBackend) PopularTitles(ctx context.Context) ([]string, error) {
	return f.popular, nil
}

func (f *fakeBackend) Recommendations(ctx context.Context, title string) ([]string, error) {
	return f.recs[title], nil
}

func (f *fakeBackend) MovieData(ctx context.Context, title string) (domain.MovieSummary, error) {
	return domain.MovieSummary{
		Title:  title,
		Poster: "https://image.tmdb.org/t/p/w500/" + title + ".jpg",
		Rating: 8,
		IMDbID: "tt01" + strings.Repeat("0", 5),
	}, nil
}

func (f *fakeBackend) TMDBData(ctx context.Context, imdbID string) (domain.MovieDetails, error) {
	d, ok := f.details[imdbID]
	if !ok {
		return domain.MovieDetails{}, &api.APIError{Message: "Movie not found", Status: 404}
	}
	return d, nil
}

func newTestServer(t *testing.T, b *fakeBackend) *httptest.Server {
	t.Helper()
	s, err := New(b, &load.Loader{Backend: b}, Options{Gatherer: prometheus.NewRegistry()})
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func noRedirect(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

func getDoc(t *testing.T, url string) (*goquery.Document, int) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return doc, resp.StatusCode
}

func TestLanding_RendersOneCardPerPopularTitle(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{popular: []string{"Heat", "Alien", "Up"}})

	doc, status := getDoc(t, srv.URL+"/")
	require.Equal(t, http.StatusOK, status)

	cards := doc.Find(".grid .card")
	require.Equal(t, 3, cards.Length())
	assert.Equal(t, "Heat", cards.First().Find("h3").Text())
	assert.Equal(t, 4, cards.First().Find(".star.full").Length(), "8 分应显示 4 颗实星")
	href, _ := cards.First().Find("a.imdb").Attr("href")
	assert.Equal(t, "https://www.imdb.com/title/tt0100000", href)
	assert.Equal(t, 1, doc.Find("nav a.home[href='/']").Length())
}

func TestResults_EmptyStateLinksHome(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{recs: map[string][]string{}})

	doc, status := getDoc(t, srv.URL+"/recommendations?query=Nothing+Here")
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, `Recommendations based on "Nothing Here"`, strings.TrimSpace(doc.Find("h1").Text()))
	assert.Zero(t, doc.Find(".card").Length())
	assert.Contains(t, doc.Find(".empty p").Text(), "No results found")
	href, ok := doc.Find(".empty a.back").Attr("href")
	require.True(t, ok)
	assert.Equal(t, "/", href)
}

func TestResults_DecodesQuery(t *testing.T) {
	q := "Fast & Furious"
	srv := newTestServer(t, &fakeBackend{recs: map[string][]string{q: {"Fast Five", "Furious 7"}}})

	doc, _ := getDoc(t, srv.URL+"/recommendations?query="+strings.ReplaceAll(q, "&", "%26"))
	assert.Equal(t, 2, doc.Find(".card").Length())
}

func TestSearch_RedirectsOrNoop(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{})
	client := &http.Client{CheckRedirect: noRedirect}

	resp, err := client.Get(srv.URL + "/search?query=Fast+%26+Furious")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/recommendations?query=Fast+%26+Furious", resp.Header.Get("Location"))

	resp, err = client.Get(srv.URL + "/search?query=+++")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSuggest_ReturnsMatches(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{matches: map[string][]string{"ali": {"Alien", "Aliens"}}})

	for _, tc := range []struct {
		query string
		want  []string
	}{
		{"ali", []string{"Alien", "Aliens"}},
		{"", []string{}},
		{"zzz", []string{}},
	} {
		resp, err := http.Get(srv.URL + "/suggest?query=" + tc.query)
		require.NoError(t, err)
		var body suggestResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		assert.Equal(t, tc.want, body.Matches, "query=%q", tc.query)
	}
}

func TestMovie_RendersDetails(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{details: map[string]domain.MovieDetails{
		"tt0113277": {
			Overview:    "A group of professional bank robbers...",
			ReleaseDate: "1995-12-15",
			Genres:      []string{"Crime", "Drama"},
			Rating:      "R",
			Providers: domain.WatchProviders{
				Stream: []domain.Provider{{Name: "Max", LogoPath: "/max.png"}},
			},
		},
	}})

	doc, status := getDoc(t, srv.URL+"/movies/tt0113277?title=Heat")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Heat", doc.Find("article h1").Text())
	assert.Equal(t, "December 15th, 1995", doc.Find(".release").Text())
	assert.Equal(t, "R", doc.Find(".certification").Text())
	assert.Equal(t, 2, doc.Find(".genres li").Length())
	assert.Equal(t, 1, doc.Find(".providers[data-kind='stream'] img").Length())
	assert.Zero(t, doc.Find(".providers[data-kind='rent']").Length())

	poster := doc.Find("a.poster[href='https://www.imdb.com/title/tt0113277'] img")
	require.Equal(t, 1, poster.Length())
	assert.Equal(t, "https://image.tmdb.org/t/p/w500/Heat.jpg", poster.AttrOr("src", ""))
	// 评分 8 -> 4 颗满星 + 1 颗空星
	assert.Equal(t, 4, doc.Find("article .stars .star.full").Length())
	assert.Equal(t, 1, doc.Find("article .stars .star.empty").Length())
	assert.Equal(t, "★★★★☆", doc.Find("article .stars").Text())
	assert.Equal(t, 1, doc.Find(".attribution a[href='https://www.justwatch.com/'] img").Length())
	assert.Equal(t, 1, doc.Find(".attribution a.tmdb[href='https://www.themoviedb.org/']").Length())

	// 无标题时不取摘要，也不渲染海报与评分
	doc, status = getDoc(t, srv.URL+"/movies/tt0113277")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "tt0113277", doc.Find("article h1").Text())
	assert.Zero(t, doc.Find("article .poster").Length())
	assert.Zero(t, doc.Find("article .stars").Length())

	_, status = getDoc(t, srv.URL+"/movies/tt9999999")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
