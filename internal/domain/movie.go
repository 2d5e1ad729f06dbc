package domain

import "strings"

// MovieSummary 是 /api/movie-data 返回的单部电影摘要（卡片渲染所需的最小集）。
//
// Rating 为外部评分（0-10 刻度）；展示时通过 StarRating 转为 0-5 的半星。
type MovieSummary struct {
	Title  string  `json:"title"`
	Poster string  `json:"poster"`
	Rating float64 `json:"rating"`
	IMDbID string  `json:"imdb_id"`
}

// Provider 是某个观看渠道（流媒体/租/买）。
type Provider struct {
	Name     string `json:"provider_name"`
	LogoPath string `json:"logo_path"`
}

// LogoURL 返回渠道 logo 的完整地址；LogoPath 为空时返回空串。
func (p Provider) LogoURL() string {
	return TMDBImageURL(p.LogoPath)
}

// WatchProviders 是按观看方式分组后的渠道列表（后端已做截断）。
type WatchProviders struct {
	Link   string     `json:"link"`
	Stream []Provider `json:"stream"`
	Rent   []Provider `json:"rent"`
	Buy    []Provider `json:"buy"`
}

// Empty 表示没有任何可展示的渠道。
func (w WatchProviders) Empty() bool {
	return len(w.Stream) == 0 && len(w.Rent) == 0 && len(w.Buy) == 0
}

// MovieDetails 是 /api/tmdb-data 返回的扩展元数据（信息弹窗使用）。
//
// Rating 在这里是分级（certification，例如 "PG-13"），不是评分。
type MovieDetails struct {
	ID          int            `json:"id"`
	Overview    string         `json:"overview"`
	ReleaseDate string         `json:"release_date"`
	Genres      []string       `json:"genres"`
	Providers   WatchProviders `json:"providers"`
	Rating      string         `json:"rating"`
}

// Certification 返回可展示的分级；后端找不到 US 分级时会给出占位文案，这里统一视为空。
func (d MovieDetails) Certification() string {
	r := strings.TrimSpace(d.Rating)
	if r == "" || strings.EqualFold(r, "No rating found") {
		return ""
	}
	return r
}

const (
	imdbTitleBase = "https://www.imdb.com/title/"
	tmdbImageBase = "https://image.tmdb.org/t/p/w500/"
)

// IMDbURL 返回 IMDb 详情页地址；id 为空时返回空串。
func IMDbURL(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return imdbTitleBase + id
}

// TMDBImageURL 把 TMDB 的相对图片路径拼成完整地址（兼容带或不带前导 '/'）。
func TMDBImageURL(path string) string {
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if path == "" {
		return ""
	}
	return tmdbImageBase + path
}
