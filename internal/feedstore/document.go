// 包 feedstore 维护磁盘上的 RSS 2.0 文档：读取、按 permalink 去重、头部插入与原子写回。
//
// 文档以 etree 树的形式编辑：新条目只插入到第一个 <item> 之前，
// 频道与已有条目中的其余元素（atom:link、image、category、content:encoded 等）原样保留。
package feedstore

import (
	"strings"
	"time"

	"github.com/beevik/etree"

	"gallery-feed/internal/config"
)

// child 返回 e 下第一个无命名空间前缀、标签为 tag 的子元素。
// etree 的 SelectElement 在不带前缀时会匹配任意前缀（atom:link 也算 link），这里不能用。
func child(e *etree.Element, tag string) *etree.Element {
	for _, c := range e.ChildElements() {
		if c.Space == "" && c.Tag == tag {
			return c
		}
	}
	return nil
}

func children(e *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range e.ChildElements() {
		if c.Space == "" && c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

func childText(e *etree.Element, tag string) string {
	if c := child(e, tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

// itemKey 返回条目的去重键：优先 guid，缺失时退回 link。
func itemKey(item *etree.Element) string {
	if g := childText(item, "guid"); g != "" {
		return g
	}
	return childText(item, "link")
}

// insertBeforeItems 把 el 放到频道元信息之后、第一个条目之前；没有条目时追加到末尾。
func insertBeforeItems(ch, el *etree.Element) {
	if first := child(ch, "item"); first != nil {
		ch.InsertChildAt(first.Index(), el)
		return
	}
	ch.AddChild(el)
}

// setChildText 更新已有子元素的文本，不存在时在条目之前新建。
func setChildText(ch *etree.Element, tag, text string) {
	if c := child(ch, tag); c != nil {
		c.SetText(text)
		return
	}
	el := etree.NewElement(tag)
	el.SetText(text)
	insertBeforeItems(ch, el)
}

func newDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	return doc
}

// freshDocument 按配置的频道元信息构造空 feed。
func freshDocument(ch config.Channel) (*etree.Document, *etree.Element) {
	doc := newDocument()
	rss := doc.CreateElement("rss")
	rss.CreateAttr("version", "2.0")
	channel := rss.CreateElement("channel")
	channel.CreateElement("title").SetText(ch.Title)
	channel.CreateElement("link").SetText(ch.Link)
	channel.CreateElement("description").SetText(ch.Description)
	if ch.Language != "" {
		channel.CreateElement("language").SetText(ch.Language)
	}
	channel.CreateElement("generator").SetText(generator)
	return doc, channel
}

// newItem 构造 <item>；description 以 CDATA 写入，内容本身含 "]]>" 时退回转义文本。
func newItem(title, permalink, published, content string) *etree.Element {
	it := etree.NewElement("item")
	it.CreateElement("title").SetText(title)
	it.CreateElement("link").SetText(permalink)
	if published != "" {
		it.CreateElement("pubDate").SetText(pubDate(published))
	}
	guid := it.CreateElement("guid")
	guid.CreateAttr("isPermaLink", "true")
	guid.SetText(permalink)
	desc := it.CreateElement("description")
	switch {
	case content == "":
	case strings.Contains(content, "]]>"):
		desc.SetText(content)
	default:
		desc.CreateCData(content)
	}
	return it
}

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// pubDate 将 ISO 风格时间转换为 RSS 的 RFC1123Z；无法识别时原样保留。
func pubDate(s string) string {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.RFC1123Z)
		}
	}
	return s
}
