// 包 gallery 负责从任意 HTML 中定位画廊灯箱容器，按视觉顺序重建正文片段：
// 前置描述 → 主图 → 元信息行 → 备选图 → 后置描述。
package gallery

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"gallery-feed/internal/model"
	"gallery-feed/internal/rules"
)

// metaSep 元信息行各部分的分隔符
const metaSep = " · "

// Parser 依据选择器预设与键策略解析画廊页。
type Parser struct {
	sel rules.GalleryPage
	key KeyStrategy
}

// New 创建解析器；空选择器回退默认值，key 为 nil 时使用 SourceKey。
func New(sel rules.GalleryPage, key KeyStrategy) *Parser {
	if key == nil {
		key = SourceKey{}
	}
	return &Parser{sel: sel.WithDefaults(), key: key}
}

// Parse 返回页面中所有带标题的画廊条目，顺序与容器文档顺序一致。
func (p *Parser) Parse(page, sourceURL string) ([]model.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse gallery html %s: %w", sourceURL, err)
	}
	var out []model.Record
	doc.Find(p.sel.Item).Each(func(i int, item *goquery.Selection) {
		if rec, ok := p.parseItem(item, i+1, sourceURL); ok {
			out = append(out, rec)
		}
	})
	return out, nil
}

func (p *Parser) parseItem(item *goquery.Selection, index int, sourceURL string) (model.Record, bool) {
	title := item.Find(p.sel.Title).First()
	name := strings.TrimSpace(title.Text())
	if title.Length() == 0 || name == "" {
		return model.Record{}, false
	}
	rec := model.Record{Title: name, Permalink: p.key.Key(sourceURL, index, item)}

	// 前置描述：必须是容器直接子元素，且紧跟在标题之后
	var lead *goquery.Selection
	leadHTML := ""
	if next := title.Next(); next.Length() > 0 && next.Is(p.sel.Description) && next.Parent().IsSelection(item) {
		if h, err := goquery.OuterHtml(next); err == nil {
			lead, leadHTML = next, h
			rec.Fragments = append(rec.Fragments, h)
		}
	}

	if main := item.Find(p.sel.Main).First(); main.Length() > 0 {
		rec.Fragments = append(rec.Fragments, p.mainFragments(main, name)...)
		if d, ok := main.Find(p.sel.Date).First().Attr("datetime"); ok {
			rec.PublishDate = strings.TrimSpace(d)
		}
	}

	// 后置描述：与前置描述不是同一节点且内容不同
	descs := item.Find(p.sel.Description)
	if lead != nil {
		descs = descs.FilterFunction(func(_ int, s *goquery.Selection) bool { return !s.IsSelection(lead) })
	}
	if tail := descs.Last(); tail.Length() > 0 {
		if h, err := goquery.OuterHtml(tail); err == nil && h != leadHTML {
			rec.Fragments = append(rec.Fragments, h)
		}
	}
	return rec, true
}

// mainFragments 生成主容器内的片段：主图、元信息行、备选图，缺失的部分直接省略。
func (p *Parser) mainFragments(main *goquery.Selection, title string) []string {
	var out []string
	img := main.Find(p.sel.Image).Not(p.sel.AltImage).First()
	if src := attr(img, "src"); src != "" {
		out = append(out, fmt.Sprintf(`<img src="%s" alt="%s">`, html.EscapeString(src), html.EscapeString(title)))
	}

	var meta []string
	if v := text(main.Find(p.sel.Date).First()); v != "" {
		meta = append(meta, html.EscapeString(v))
	}
	if v := text(main.Find(p.sel.Resolution).First()); v != "" {
		meta = append(meta, strings.ReplaceAll(html.EscapeString(v), "×", "&times;"))
	}
	if v := text(main.Find(p.sel.Colors).First()); v != "" {
		meta = append(meta, html.EscapeString(v))
	}
	if len(meta) > 0 {
		out = append(out, "<p>"+strings.Join(meta, metaSep)+"</p>")
	}

	var alts strings.Builder
	main.Find(p.sel.AltImage).Each(func(_ int, s *goquery.Selection) {
		if src := attr(s, "src"); src != "" {
			fmt.Fprintf(&alts, `<img src="%s">`, html.EscapeString(src))
		}
	})
	if alts.Len() > 0 {
		out = append(out, "<p>"+alts.String()+"</p>")
	}
	return out
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func text(s *goquery.Selection) string { return strings.TrimSpace(s.Text()) }
