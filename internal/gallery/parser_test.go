package gallery

import (
	"strings"
	"testing"

	"gallery-feed/internal/rules"
)

const fullPage = `<!doctype html><html><body>
<div class="gallery-item-lightbox" id="dune">
  <h2 class="gallery-item-title">Dune</h2>
  <p class="gallery-item-description">Lead text</p>
  <div class="gallery-item-main">
    <img class="gallery-item-image" src="/img/dune.png">
    <time datetime="2024-05-01T10:00:00Z">May 1, 2024</time>
    <span class="gallery-item-resolution">1920×1080</span>
    <span class="gallery-item-colors">16 colors</span>
    <div class="gallery-item-alt-images"><img src="/img/dune-a.png"><img src="/img/dune-b.png"></div>
  </div>
  <p class="gallery-item-description">Trailing text</p>
</div>
<div class="gallery-item-lightbox"><span>no title here</span></div>
<div class="gallery-item-lightbox">
  <h2 class="gallery-item-title">Sunset</h2>
</div>
</body></html>`

func TestParse_FullItemFragmentOrder(t *testing.T) {
	p := New(rules.GalleryPage{}, nil)
	recs, err := p.Parse(fullPage, "https://example.com/g/1")
	if err != nil { t.Fatalf("parse: %v", err) }
	if len(recs) != 2 { t.Fatalf("records=%d want 2 (untitled container skipped)", len(recs)) }
	r := recs[0]
	if r.Title != "Dune" || r.Permalink != "https://example.com/g/1" { t.Fatalf("unexpected record: %+v", r) }
	if r.PublishDate != "2024-05-01T10:00:00Z" { t.Fatalf("publish date=%q", r.PublishDate) }
	want := []string{
		`<p class="gallery-item-description">Lead text</p>`,
		`<img src="/img/dune.png" alt="Dune">`,
		`<p>May 1, 2024 · 1920&times;1080 · 16 colors</p>`,
		`<p><img src="/img/dune-a.png"><img src="/img/dune-b.png"></p>`,
		`<p class="gallery-item-description">Trailing text</p>`,
	}
	if len(r.Fragments) != len(want) { t.Fatalf("fragments=%q", r.Fragments) }
	for i := range want {
		if r.Fragments[i] != want[i] { t.Fatalf("fragment %d = %q want %q", i, r.Fragments[i], want[i]) }
	}
	if r.Content() != strings.Join(want, "") { t.Fatalf("content mismatch: %q", r.Content()) }
}

func TestParse_TitleOnly(t *testing.T) {
	p := New(rules.GalleryPage{}, nil)
	recs, err := p.Parse(`<div class="gallery-item-lightbox"><h2 class="gallery-item-title"> Sunset </h2></div>`, "https://example.com/s")
	if err != nil { t.Fatalf("parse: %v", err) }
	if len(recs) != 1 { t.Fatalf("records=%d", len(recs)) }
	if recs[0].Title != "Sunset" || recs[0].Permalink != "https://example.com/s" { t.Fatalf("record: %+v", recs[0]) }
	if recs[0].Content() != "" || recs[0].PublishDate != "" { t.Fatalf("expect empty content, got %q", recs[0].Content()) }
}

func TestParse_DescriptionPlacement(t *testing.T) {
	p := New(rules.GalleryPage{}, nil)
	// 描述不紧跟标题：只作为后置描述出现一次
	page := `<div class="gallery-item-lightbox">
	  <h2 class="gallery-item-title">A</h2>
	  <div class="gallery-item-main"><span class="gallery-item-colors">4 colors</span></div>
	  <p class="gallery-item-description">Only</p>
	</div>`
	recs, _ := p.Parse(page, "u")
	if len(recs) != 1 || len(recs[0].Fragments) != 2 { t.Fatalf("fragments=%q", recs[0].Fragments) }
	if recs[0].Fragments[0] != "<p>4 colors</p>" || !strings.Contains(recs[0].Fragments[1], "Only") { t.Fatalf("order wrong: %q", recs[0].Fragments) }

	// 紧跟标题的唯一描述：只作为前置描述出现一次
	page = `<div class="gallery-item-lightbox"><h2 class="gallery-item-title">B</h2><p class="gallery-item-description">Once</p></div>`
	recs, _ = p.Parse(page, "u")
	if len(recs[0].Fragments) != 1 { t.Fatalf("description duplicated: %q", recs[0].Fragments) }

	// 标题嵌套在子元素里：其后的描述不是容器直接子元素，不算前置
	page = `<div class="gallery-item-lightbox"><header><h2 class="gallery-item-title">C</h2><p class="gallery-item-description">Nested</p></header>
	  <div class="gallery-item-main"><img src="c.png"></div></div>`
	recs, _ = p.Parse(page, "u")
	f := recs[0].Fragments
	if len(f) != 2 || !strings.HasPrefix(f[0], "<img") || !strings.Contains(f[1], "Nested") { t.Fatalf("nested description handled wrong: %q", f) }

	// 内容相同的两段描述只输出一次
	page = `<div class="gallery-item-lightbox"><h2 class="gallery-item-title">D</h2><p class="gallery-item-description">Same</p><p class="gallery-item-description">Same</p></div>`
	recs, _ = p.Parse(page, "u")
	if len(recs[0].Fragments) != 1 { t.Fatalf("identical description repeated: %q", recs[0].Fragments) }
}

func TestParse_EscapesAttributes(t *testing.T) {
	p := New(rules.GalleryPage{}, nil)
	page := `<div class="gallery-item-lightbox"><h2 class="gallery-item-title">Tom &amp; "Jerry"</h2>
	  <div class="gallery-item-main"><img src="/a.png?x=1&amp;y=2"></div></div>`
	recs, _ := p.Parse(page, "u")
	want := `<img src="/a.png?x=1&amp;y=2" alt="Tom &amp; &#34;Jerry&#34;">`
	if recs[0].Fragments[0] != want { t.Fatalf("got %q want %q", recs[0].Fragments[0], want) }
}

func TestParse_CustomSelectors(t *testing.T) {
	p := New(rules.GalleryPage{Item: ".card", Title: "h3"}, nil)
	recs, _ := p.Parse(`<div class="card"><h3>X</h3></div><div class="gallery-item-lightbox"><h2 class="gallery-item-title">Y</h2></div>`, "u")
	if len(recs) != 1 || recs[0].Title != "X" { t.Fatalf("custom selectors ignored: %+v", recs) }
}

func TestKeyStrategies(t *testing.T) {
	p := New(rules.GalleryPage{}, AnchorKey{})
	recs, _ := p.Parse(fullPage, "https://example.com/g/1#top")
	if len(recs) != 2 { t.Fatalf("records=%d", len(recs)) }
	if recs[0].Permalink != "https://example.com/g/1#dune" { t.Fatalf("id anchor=%q", recs[0].Permalink) }
	if recs[1].Permalink != "https://example.com/g/1#item-3" { t.Fatalf("index anchor=%q", recs[1].Permalink) }

	if _, ok := StrategyFor("anchor").(AnchorKey); !ok { t.Fatalf("anchor strategy not selected") }
	if _, ok := StrategyFor("").(SourceKey); !ok { t.Fatalf("source strategy should be default") }
}
