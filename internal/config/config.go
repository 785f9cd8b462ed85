// 包 config 负责加载与校验应用配置（settings.yaml），
// 原先写死的频道信息与 feed 路径统一收拢到 Config，由调用方显式传入。
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// 默认频道信息与路径
const (
	DefaultFeedPath    = "feed.xml"
	DefaultTitle       = "Gallery"
	DefaultLink        = "https://example.com/gallery/"
	DefaultDescription = "New additions to the gallery"
	DefaultMarkerClass = "gallery-item"
	// 锁文件默认放在工作目录，与发布目录分开
	DefaultLockPath = ".gallery-feed.lock"
)

// 键策略
const (
	KeySource = "source"
	KeyAnchor = "anchor"
)

type Config struct {
	FeedPath    string  `yaml:"FEED_PATH"`
	LockPath    string  `yaml:"LOCK_PATH"`
	Channel     Channel `yaml:"CHANNEL"`
	Diff        Diff    `yaml:"DIFF"`
	Theme       string  `yaml:"THEME"`
	KeyStrategy string  `yaml:"KEY_STRATEGY"` // source|anchor
	Fetch       Fetch   `yaml:"FETCH"`
	Proxy       Proxy   `yaml:"PROXY"`
	History     History `yaml:"HISTORY"`
	LogLevel    string  `yaml:"LOG_LEVEL"`
	LogFormat   string  `yaml:"LOG_FORMAT"` // text|json|pretty
	LogLocale   string  `yaml:"LOG_LOCALE"` // zh-CN|en
	LogColor    string  `yaml:"LOG_COLOR"`  // auto|always|never
}

// Channel 为 feed 的固定元信息块。
type Channel struct {
	Title       string `yaml:"title"`
	Link        string `yaml:"link"`
	Description string `yaml:"description"`
	Language    string `yaml:"language"`
}

type Diff struct {
	// Command：获取 diff 的外部命令，首项为可执行文件
	Command     []string `yaml:"command"`
	MarkerClass string   `yaml:"marker_class"`
}

type Fetch struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Retry          int    `yaml:"retry"`
	UserAgent      string `yaml:"user_agent"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"` // 0 表示默认 4MiB
}

type Proxy struct {
	HTTP  string `yaml:"http"`
	HTTPS string `yaml:"https"`
}

// History：运行历史库，DSN 为空表示关闭
type History struct {
	DSN          string `yaml:"dsn"`
	KeepDays     int    `yaml:"keep_days"`
	ResetOnStart bool   `yaml:"reset_on_start"`
}

// Default 返回内置默认配置（无配置文件时使用）。
func Default() *Config {
	c := &Config{}
	_ = c.Validate()
	return c
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Validate 负责合法性检查与默认值设置。
func (c *Config) Validate() error {
	if c.Fetch.Retry < 0 {
		return errors.New("FETCH.retry must be >= 0")
	}
	if c.Fetch.TimeoutSeconds < 0 {
		return errors.New("FETCH.timeout_seconds must be >= 0")
	}
	if c.Fetch.MaxBodyBytes < 0 {
		return errors.New("FETCH.max_body_bytes must be >= 0")
	}
	if c.History.KeepDays < 0 {
		return errors.New("HISTORY.keep_days must be >= 0")
	}
	c.KeyStrategy = strings.ToLower(strings.TrimSpace(c.KeyStrategy))
	switch c.KeyStrategy {
	case "":
		c.KeyStrategy = KeySource
	case KeySource, KeyAnchor:
	default:
		return fmt.Errorf("unsupported KEY_STRATEGY: %s", c.KeyStrategy)
	}
	if c.FeedPath == "" {
		c.FeedPath = DefaultFeedPath
	}
	if c.LockPath == "" {
		c.LockPath = DefaultLockPath
	}
	if c.Channel.Title == "" {
		c.Channel.Title = DefaultTitle
	}
	if c.Channel.Link == "" {
		c.Channel.Link = DefaultLink
	}
	if c.Channel.Description == "" {
		c.Channel.Description = DefaultDescription
	}
	if len(c.Diff.Command) == 0 {
		c.Diff.Command = []string{"git", "diff"}
	}
	if c.Diff.MarkerClass == "" {
		c.Diff.MarkerClass = DefaultMarkerClass
	}
	if c.Fetch.TimeoutSeconds == 0 {
		c.Fetch.TimeoutSeconds = 25
	}
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
	if c.LogLocale == "" {
		c.LogLocale = "zh-CN"
	}
	if c.LogColor == "" {
		c.LogColor = "auto"
	}
	return nil
}
