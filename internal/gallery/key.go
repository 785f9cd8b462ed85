package gallery

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"gallery-feed/internal/config"
)

// KeyStrategy 决定条目的 permalink（同时作为去重键）。
type KeyStrategy interface {
	Key(sourceURL string, index int, item *goquery.Selection) string
}

// SourceKey 直接使用来源页 URL：同一页面的多个条目共享一个键，
// 去重后每个来源页只保留首个条目。
type SourceKey struct{}

func (SourceKey) Key(sourceURL string, _ int, _ *goquery.Selection) string { return sourceURL }

// AnchorKey 为每个条目生成独立键：来源 URL + "#" + 容器 id，缺 id 时用 item-<序号>。
type AnchorKey struct{}

func (AnchorKey) Key(sourceURL string, index int, item *goquery.Selection) string {
	base := sourceURL
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base = base[:i]
	}
	if id := attr(item, "id"); id != "" {
		return base + "#" + id
	}
	return fmt.Sprintf("%s#item-%d", base, index)
}

// StrategyFor 按配置名返回键策略。
func StrategyFor(name string) KeyStrategy {
	if name == config.KeyAnchor {
		return AnchorKey{}
	}
	return SourceKey{}
}
