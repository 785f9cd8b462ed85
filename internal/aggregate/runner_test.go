package aggregate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gallery-feed/internal/config"
	"gallery-feed/internal/fetch"
	"gallery-feed/internal/gallery"
	"gallery-feed/internal/model"
	"gallery-feed/internal/rules"
	"gallery-feed/internal/store"
)

func galleryServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/g/dune", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!doctype html>
		<div class="gallery-item-lightbox" id="dune"><h2 class="gallery-item-title">Dune</h2>
		  <div class="gallery-item-main"><img src="/d.png"><time datetime="2024-05-01">May 1</time></div></div>
		<div class="gallery-item-lightbox" id="dune-2"><h2 class="gallery-item-title">Dune II</h2></div>`))
	})
	mux.HandleFunc("/g/sunset", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<div class="gallery-item-lightbox"><h2 class="gallery-item-title">Sunset</h2></div>`))
	})
	mux.HandleFunc("/g/empty", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<p>nothing</p>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func diffFor(urls ...string) string {
	var b strings.Builder
	b.WriteString("--- a/index.html\n+++ b/index.html\n@@ -1,2 +1,4 @@\n <ul>\n")
	for _, u := range urls {
		b.WriteString(`+  <a class="gallery-item" href="` + u + `">` + "\n")
	}
	return b.String()
}

func newRunner(t *testing.T, cfg *config.Config, h History) *Runner {
	t.Helper()
	cl, err := fetch.New(fetch.Options{Timeout: 3 * time.Second})
	if err != nil { t.Fatalf("fetch client: %v", err) }
	return New(cfg, cl, gallery.New(rules.DefaultGallery(), gallery.StrategyFor(cfg.KeyStrategy)), h)
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	dir := t.TempDir()
	cfg.FeedPath = filepath.Join(dir, "site", "feed.xml")
	cfg.LockPath = filepath.Join(dir, "run", "gallery-feed.lock")
	return cfg
}

func TestRun_AddsAndIsIdempotent(t *testing.T) {
	srv := galleryServer(t)
	cfg := testConfig(t)
	r := newRunner(t, cfg, nil)
	text := diffFor(srv.URL+"/g/dune", srv.URL+"/g/sunset", srv.URL+"/g/missing", srv.URL+"/g/empty", srv.URL+"/g/dune")

	rep, err := r.Run(context.Background(), text)
	if err != nil { t.Fatalf("run: %v", err) }
	if rep.Links != 5 || rep.Added != 2 || rep.FetchErrors != 1 || rep.Empty != 1 || !rep.Flushed { t.Fatalf("report: %+v", rep) }
	// 同一页面的第二个条目共享 source 键，作为重复计数
	if rep.Duplicates != 1 || len(rep.Results) != 4 { t.Fatalf("duplicates=%d results=%d", rep.Duplicates, len(rep.Results)) }
	first, err := os.ReadFile(cfg.FeedPath)
	if err != nil { t.Fatalf("feed not written: %v", err) }
	if !strings.Contains(string(first), "<title>Dune</title>") || strings.Contains(string(first), "Dune II") { t.Fatalf("unexpected feed: %s", first) }
	// 后处理的 sunset 位于最前
	if strings.Index(string(first), "Sunset") > strings.Index(string(first), "<title>Dune</title>") { t.Fatalf("newest processed item must come first") }

	rep2, err := r.Run(context.Background(), text)
	if err != nil { t.Fatalf("second run: %v", err) }
	if rep2.Added != 0 || rep2.Flushed { t.Fatalf("second run should add nothing: %+v", rep2) }
	second, _ := os.ReadFile(cfg.FeedPath)
	if string(first) != string(second) { t.Fatalf("feed changed on idempotent run") }
}

func TestRun_AnchorStrategyKeepsEveryItem(t *testing.T) {
	srv := galleryServer(t)
	cfg := testConfig(t)
	cfg.KeyStrategy = config.KeyAnchor
	rep, err := newRunner(t, cfg, nil).Run(context.Background(), diffFor(srv.URL+"/g/dune"))
	if err != nil { t.Fatalf("run: %v", err) }
	if rep.Added != 2 || rep.Duplicates != 0 { t.Fatalf("report: %+v", rep) }
	b, _ := os.ReadFile(cfg.FeedPath)
	if !strings.Contains(string(b), srv.URL+"/g/dune#dune-2") { t.Fatalf("anchor permalink missing: %s", b) }
}

func TestRun_NoLinksLeavesFeedUntouched(t *testing.T) {
	cfg := testConfig(t)
	rep, err := newRunner(t, cfg, nil).Run(context.Background(), "+<p>just text</p>\n")
	if err != nil { t.Fatalf("run: %v", err) }
	if rep.Links != 0 || rep.Flushed { t.Fatalf("report: %+v", rep) }
	if _, err := os.Stat(cfg.FeedPath); !os.IsNotExist(err) { t.Fatalf("feed must not be created") }
}

func TestRun_RecordsHistory(t *testing.T) {
	srv := galleryServer(t)
	cfg := testConfig(t)
	h, err := store.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil { t.Fatalf("open history: %v", err) }
	defer h.Close()

	if _, err := newRunner(t, cfg, h).Run(context.Background(), diffFor(srv.URL+"/g/sunset", srv.URL+"/g/missing")); err != nil { t.Fatalf("run: %v", err) }
	runs, err := h.ListRuns(context.Background(), 0)
	if err != nil || len(runs) != 1 { t.Fatalf("runs: %v len=%d", err, len(runs)) }
	if runs[0].Added != 1 || runs[0].FetchErrors != 1 || !runs[0].Flushed { t.Fatalf("run row: %+v", runs[0]) }
	lrs, _ := h.LinkResults(context.Background(), runs[0].ID)
	if len(lrs) != 2 || lrs[0].Status != model.StatusAdded || lrs[1].Status != model.StatusFetchError { t.Fatalf("link results: %+v", lrs) }
}

type stubFetcher map[string]string

func (s stubFetcher) Text(_ context.Context, url string) (string, error) { return s[url], nil }

func TestRun_CorruptFeedRecovered(t *testing.T) {
	cfg := testConfig(t)
	_ = os.MkdirAll(filepath.Dir(cfg.FeedPath), 0o755)
	_ = os.WriteFile(cfg.FeedPath, []byte("<rss><channel>"), 0o644)
	f := stubFetcher{"https://e/1": `<div class="gallery-item-lightbox"><h2 class="gallery-item-title">One</h2></div>`}
	r := New(cfg, f, gallery.New(rules.GalleryPage{}, nil), nil)
	rep, err := r.Run(context.Background(), diffFor("https://e/1"))
	if err != nil { t.Fatalf("run: %v", err) }
	if rep.Added != 1 { t.Fatalf("report: %+v", rep) }
	matches, _ := filepath.Glob(cfg.FeedPath + ".corrupt-*")
	if len(matches) != 1 { t.Fatalf("corrupt feed should be backed up, found %v", matches) }
}

func TestRun_CorruptFeedKeptWhenNothingAdded(t *testing.T) {
	cfg := testConfig(t)
	_ = os.MkdirAll(filepath.Dir(cfg.FeedPath), 0o755)
	broken := []byte("<rss><channel><title>x</title>")
	_ = os.WriteFile(cfg.FeedPath, broken, 0o644)
	f := stubFetcher{"https://e/blank": `<p>no gallery here</p>`}
	rep, err := New(cfg, f, gallery.New(rules.GalleryPage{}, nil), nil).Run(context.Background(), diffFor("https://e/blank"))
	if err != nil { t.Fatalf("run: %v", err) }
	if rep.Added != 0 || rep.Flushed || rep.Empty != 1 { t.Fatalf("report: %+v", rep) }
	b, err := os.ReadFile(cfg.FeedPath)
	if err != nil { t.Fatalf("feed must still exist: %v", err) }
	if string(b) != string(broken) { t.Fatalf("feed changed without additions: %q", b) }
	matches, _ := filepath.Glob(cfg.FeedPath + ".corrupt-*")
	if len(matches) != 1 { t.Fatalf("backup copy expected, found %v", matches) }
}

func TestRun_LockOutsideFeedDir(t *testing.T) {
	srv := galleryServer(t)
	cfg := testConfig(t)
	if _, err := newRunner(t, cfg, nil).Run(context.Background(), diffFor(srv.URL+"/g/sunset")); err != nil { t.Fatalf("run: %v", err) }
	if _, err := os.Stat(cfg.LockPath); err != nil { t.Fatalf("lock file not at LOCK_PATH: %v", err) }
	entries, _ := os.ReadDir(filepath.Dir(cfg.FeedPath))
	for _, e := range entries {
		if e.Name() != "feed.xml" { t.Fatalf("unexpected file in publish dir: %s", e.Name()) }
	}
}
