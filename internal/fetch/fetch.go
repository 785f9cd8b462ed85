// 包 fetch 封装 HTTP 客户端（代理/超时/可选重试），用于抓取画廊页面。
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"
)

const defaultUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36"

// defaultMaxBody 单页读取上限
const defaultMaxBody = 4 << 20

// ErrTooLarge 表示页面超过读取上限；截断的 HTML 会丢失后面的画廊条目，因此按失败处理。
var ErrTooLarge = errors.New("response body exceeds limit")

// Client 为页面抓取客户端。
type Client struct {
	http    *http.Client
	retry   int
	ua      string
	maxBody int64
}

// Options 为客户端构造参数；Retry 默认为 0，即只请求一次。
type Options struct {
	ProxyHTTP  string
	ProxyHTTPS string
	Timeout    time.Duration
	Retry      int
	UserAgent  string
	MaxBody    int64 // 单页字节上限，<=0 时为 4MiB
}

// New 创建客户端，支持 http/https 代理与基础超时配置。
func New(opts Options) (*Client, error) {
	var proxyHTTP, proxyHTTPS *url.URL
	if opts.ProxyHTTP != "" {
		u, err := url.Parse(opts.ProxyHTTP)
		if err != nil {
			return nil, fmt.Errorf("parse http proxy: %w", err)
		}
		proxyHTTP = u
	}
	if opts.ProxyHTTPS != "" {
		u, err := url.Parse(opts.ProxyHTTPS)
		if err != nil {
			return nil, fmt.Errorf("parse https proxy: %w", err)
		}
		proxyHTTPS = u
	}
	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "https" && proxyHTTPS != nil {
				return proxyHTTPS, nil
			}
			if req.URL.Scheme == "http" && proxyHTTP != nil {
				return proxyHTTP, nil
			}
			return http.ProxyFromEnvironment(req)
		},
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	if opts.Retry < 0 {
		opts.Retry = 0
	}
	ua := opts.UserAgent
	if env := os.Getenv("GALLERY_FEED_UA"); env != "" {
		ua = env
	}
	if ua == "" {
		ua = defaultUA
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = defaultMaxBody
	}
	return &Client{http: &http.Client{Transport: transport, Timeout: opts.Timeout}, retry: opts.Retry, ua: ua, maxBody: opts.MaxBody}, nil
}

// Get 发起 GET 请求，仅 2xx 视为成功；配置了重试时按线性回退再试。
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	for i := 0; i <= c.retry; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * 300 * time.Millisecond):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("User-Agent", c.ua)
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		lastErr = fmt.Errorf("http status: %s", resp.Status)
		resp.Body.Close()
	}
	return nil, lastErr
}

// Text 抓取页面并以文本返回正文；失败时返回错误，由调用方跳过该链接。
func (c *Client) Text(ctx context.Context, rawURL string) (string, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return "", fmt.Errorf("read body %s: %w", rawURL, err)
	}
	if int64(len(b)) > c.maxBody {
		return "", fmt.Errorf("read body %s: %w (limit %d bytes)", rawURL, ErrTooLarge, c.maxBody)
	}
	return string(b), nil
}
