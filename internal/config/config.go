package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// ErrCodeNotFound 表示显式指定的配置文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// DefaultBaseURL 是后端 API 的默认 origin（本地开发时后端的监听地址）。
	DefaultBaseURL = "http://127.0.0.1:8000"
	// DefaultConcurrency 是元数据批量抓取的默认并发。
	DefaultConcurrency = 6
	// DefaultDebounce 是搜索框的静默间隔。
	DefaultDebounce = 300 * time.Millisecond

	PolicyPartial      = "partial"
	PolicyAllOrNothing = "all_or_nothing"

	// EnvPrefix 是环境变量前缀；嵌套字段用 "__" 分隔，例如 FILMFINDER_API__BASE_URL。
	EnvPrefix = "FILMFINDER_"
	// ConfigPathEnv 可指定配置文件路径（等价于 --config）。
	ConfigPathEnv = EnvPrefix + "CONFIG"
)

// DefaultConfigNames 是未显式指定时在 cwd 下按顺序查找的文件名（可选）。
var DefaultConfigNames = []string{"filmfinder.yaml", "filmfinder.yml"}

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息，
// 保证 --concurrency=1 之类的显式值能覆盖配置文件。
type CLIArgs struct {
	ConfigPath string

	BaseURL    string
	BaseURLSet bool

	Concurrency    int
	ConcurrencySet bool

	Policy    string
	PolicySet bool

	Addr    string
	AddrSet bool
}

// Config 对应 filmfinder.yaml 的结构（koanf tag 即 YAML 键名）。
type Config struct {
	API    APIConfig    `koanf:"api"`
	Search SearchConfig `koanf:"search"`
	View   ViewConfig   `koanf:"view"`
	Cache  CacheConfig  `koanf:"cache"`
	Server ServerConfig `koanf:"server"`
	Log    LogConfig    `koanf:"log"`
}

type APIConfig struct {
	BaseURL       string        `koanf:"base_url"`
	Timeout       time.Duration `koanf:"timeout"`
	RetryMax      int           `koanf:"retry_max" validate:"gte=0,lte=5"`
	RatePerSecond float64       `koanf:"rate_per_second" validate:"gte=0"`
	Burst         int           `koanf:"burst" validate:"gte=0"`
	ProxyURL      string        `koanf:"proxy_url"`
}

type SearchConfig struct {
	Debounce time.Duration `koanf:"debounce"`
}

type ViewConfig struct {
	Concurrency  int           `koanf:"concurrency"`
	Policy       string        `koanf:"policy" validate:"oneof=partial all_or_nothing"`
	StartupDelay time.Duration `koanf:"startup_delay"`
}

type CacheConfig struct {
	// Dir 为空表示禁用磁盘缓存（仍保留进程内去重）。
	Dir      string        `koanf:"dir"`
	MaxAge   time.Duration `koanf:"max_age"`
	ReadOnly bool          `koanf:"read_only"`
}

type ServerConfig struct {
	Addr          string        `koanf:"addr" validate:"required"`
	CORSOrigins   []string      `koanf:"cors_origins"`
	SuggestPerMin int           `koanf:"suggest_per_minute" validate:"gte=0"`
	ReadTimeout   time.Duration `koanf:"read_timeout"`
	WriteTimeout  time.Duration `koanf:"write_timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			if e.Path == "" {
				return fmt.Sprintf("%s：%v", e.Code, e.Err)
			}
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Defaults 返回内置默认值（koanf 的第一层）。
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:       DefaultBaseURL,
			Timeout:       20 * time.Second,
			RetryMax:      2,
			RatePerSecond: 20,
			Burst:         20,
		},
		Search: SearchConfig{Debounce: DefaultDebounce},
		View: ViewConfig{
			Concurrency: DefaultConcurrency,
			Policy:      PolicyPartial,
		},
		Cache: CacheConfig{
			MaxAge: 24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:          "127.0.0.1:8080",
			SuggestPerMin: 240,
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  30 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadEffective 按固定优先级合并配置：
//
//	默认值 < 配置文件 < 环境变量（FILMFINDER_*） < CLI 显式参数
//
// 配置文件发现规则：
// 1) --config（或 FILMFINDER_CONFIG）给出路径：必须存在
// 2) 否则依次尝试 <cwd>/filmfinder.yaml、<cwd>/filmfinder.yml（可选）
func LoadEffective(cwd string, cli CLIArgs) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Err: err}
	}

	cfgPath, err := findConfigFile(cwd, cli.ConfigPath)
	if err != nil {
		return Config{}, err
	}
	if cfgPath != "" {
		if err := k.Load(file.Provider(cfgPath), yaml.Parser()); err != nil {
			return Config{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	return merge(cfg, cli, cfgPath)
}

func merge(cfg Config, cli CLIArgs, cfgPath string) (Config, error) {
	if cli.BaseURLSet {
		cfg.API.BaseURL = cli.BaseURL
	}
	if cli.ConcurrencySet {
		cfg.View.Concurrency = cli.Concurrency
	}
	if cli.PolicySet {
		cfg.View.Policy = cli.Policy
	}
	if cli.AddrSet {
		cfg.Server.Addr = cli.Addr
	}

	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if err := validateHTTPURL("api.base_url", cfg.API.BaseURL); err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	cfg.API.ProxyURL = strings.TrimSpace(cfg.API.ProxyURL)
	if cfg.API.ProxyURL != "" {
		if _, err := url.Parse(cfg.API.ProxyURL); err != nil {
			return Config{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("api.proxy_url 无效：%w", err)}
		}
	}

	// 并发范围 [1, 32]；超出截断而不是报错。
	if cfg.View.Concurrency < 1 {
		cfg.View.Concurrency = 1
	}
	if cfg.View.Concurrency > 32 {
		cfg.View.Concurrency = 32
	}
	cfg.View.Policy = strings.ToLower(strings.TrimSpace(cfg.View.Policy))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	for name, d := range map[string]time.Duration{
		"api.timeout":        cfg.API.Timeout,
		"search.debounce":    cfg.Search.Debounce,
		"view.startup_delay": cfg.View.StartupDelay,
		"cache.max_age":      cfg.Cache.MaxAge,
	} {
		if d < 0 {
			return Config{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("%s 不能为负数：%s", name, d)}
		}
	}

	if cfg.Cache.Dir = strings.TrimSpace(cfg.Cache.Dir); cfg.Cache.Dir != "" {
		cfg.Cache.Dir = filepath.Clean(cfg.Cache.Dir)
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, raw)
	}
	return nil
}

func findConfigFile(cwd, explicit string) (string, error) {
	explicit = strings.TrimSpace(explicit)
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv(ConfigPathEnv))
	}
	if explicit != "" {
		p := absCleanFrom(cwd, explicit)
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return "", &Error{Code: ErrCodeNotFound, Path: p, Err: os.ErrNotExist}
			}
			return "", &Error{Code: ErrCodeInvalid, Path: p, Err: err}
		}
		return p, nil
	}
	for _, name := range DefaultConfigNames {
		p := filepath.Join(cwd, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// envAliases 是常用的扁平环境变量名（不带 "__"）。
var envAliases = map[string]string{
	"api_base_url": "api.base_url",
	"base_url":     "api.base_url",
	"log_level":    "log.level",
	"log_format":   "log.format",
	"cache_dir":    "cache.dir",
	"addr":         "server.addr",
}

// envKey 把 FILMFINDER_API__BASE_URL 映射为 api.base_url；返回空串表示忽略该变量。
func envKey(key string) string {
	k := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if k == "config" {
		return ""
	}
	if alias, ok := envAliases[k]; ok {
		return alias
	}
	if !strings.Contains(k, "__") {
		return ""
	}
	return strings.ReplaceAll(k, "__", ".")
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
