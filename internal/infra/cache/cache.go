package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/John-Robertt/filmfinder/internal/infra/fsx"
)

// Kind 区分缓存的数据来源（一个 kind 对应一个子目录）。
type Kind string

const (
	// KindSummary 对应 /api/movie-data，按标题缓存。
	KindSummary Kind = "movie-data"
	// KindDetails 对应 /api/tmdb-data，按 imdb id 缓存。
	KindDetails Kind = "tmdb-data"
)

// Store 提供 <root>/<kind>/<key>.json 的文件缓存读写。
//
// 约束：
// - Root 为空：禁用（读永远 miss，写是 no-op）
// - ReadOnly：只允许读
// - MaxAge>0：按文件修改时间判断过期，过期视为 miss
type Store struct {
	Root     string
	ReadOnly bool
	MaxAge   time.Duration

	now func() time.Time
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool, maxAge time.Duration) Store {
	root = strings.TrimSpace(root)
	if root != "" {
		root = filepath.Clean(root)
	}
	return Store{
		Root:     root,
		ReadOnly: readOnly,
		MaxAge:   maxAge,
		now:      time.Now,
	}
}

// Enabled 表示是否配置了缓存目录。
func (s Store) Enabled() bool { return s.Root != "" }

// Path 返回缓存条目的绝对路径。
func (s Store) Path(kind Kind, key string) (string, error) {
	name, err := fileName(kind, key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, string(kind), name), nil
}

// Read 读取缓存条目；miss 时 ok=false 且 err=nil。
func (s Store) Read(kind Kind, key string) ([]byte, bool, error) {
	if !s.Enabled() {
		return nil, false, nil
	}
	path, err := s.Path(kind, key)
	if err != nil {
		return nil, false, err
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return fsx.ReadFileFresh(path, s.MaxAge, now())
}

// Write 原子写入缓存条目（覆盖旧值）。
func (s Store) Write(kind Kind, key string, b []byte) error {
	if !s.Enabled() {
		return nil
	}
	if s.ReadOnly {
		return ErrReadOnly
	}
	name, err := fileName(kind, key)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Join(s.Root, string(kind)), name, b)
}

var imdbIDRE = regexp.MustCompile(`^tt[0-9]{5,10}$`)

func fileName(kind Kind, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("cache key 不能为空")
	}
	switch kind {
	case KindDetails:
		// imdb id 本身就是安全的文件名；其它输入一律拒绝，避免路径穿越。
		if !imdbIDRE.MatchString(key) {
			return "", fmt.Errorf("非法 imdb id：%q", key)
		}
		return key + ".json", nil
	case KindSummary:
		// 标题可能包含任意字符：用哈希做文件名。
		sum := sha256.Sum256([]byte(key))
		return hex.EncodeToString(sum[:16]) + ".json", nil
	default:
		return "", fmt.Errorf("未知 cache kind：%q", kind)
	}
}
