// 包 aggregate 负责主流程编排：
// diff 提取链接 → 逐个抓取页面 → 解析画廊条目 → 合并进 feed → 有变更时落盘，
// 全程单线程顺序执行。
package aggregate

import (
	"context"
	"fmt"
	"time"

	"gallery-feed/internal/config"
	"gallery-feed/internal/diff"
	"gallery-feed/internal/feedstore"
	"gallery-feed/internal/logx"
	"gallery-feed/internal/model"
)

// lockWait 等待其他运行释放 feed 锁的上限
const lockWait = 30 * time.Second

// Fetcher 抓取页面文本。
type Fetcher interface {
	Text(ctx context.Context, url string) (string, error)
}

// Parser 从页面解析画廊条目。
type Parser interface {
	Parse(page, sourceURL string) ([]model.Record, error)
}

// History 记录运行历史，可为 nil。
type History interface {
	RecordRun(ctx context.Context, r model.Report) (int64, error)
	CleanOldRuns(ctx context.Context, days int) error
}

// Runner 聚合执行器，持有配置/抓取/解析/历史。
type Runner struct {
	cfg     *config.Config
	fetch   Fetcher
	parser  Parser
	history History
	now     func() time.Time
}

// New 创建 Runner。
func New(cfg *config.Config, f Fetcher, p Parser, h History) *Runner {
	return &Runner{cfg: cfg, fetch: f, parser: p, history: h, now: time.Now}
}

// Run 执行一轮：返回的 error 仅包含加锁、读取 feed 与写回失败；单个链接的失败只计数。
func (r *Runner) Run(ctx context.Context, diffText string) (model.Report, error) {
	rep := model.Report{StartedAt: r.now()}
	links := diff.ExtractLinks(diffText, r.cfg.Diff.MarkerClass)
	rep.Links = len(links)
	if len(links) == 0 {
		logx.Infof("未发现新的画廊条目")
		r.finish(ctx, &rep)
		return rep, nil
	}
	logx.Infof("发现 %d 个新的画廊条目链接", len(links))

	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	lock, err := feedstore.Lock(lockCtx, r.cfg.LockPath)
	cancel()
	if err != nil {
		return rep, err
	}
	defer lock.Unlock()

	fs, err := feedstore.LoadOrCreate(r.cfg.FeedPath, r.cfg.Channel)
	if err != nil {
		return rep, fmt.Errorf("load feed: %w", err)
	}
	switch fs.Status() {
	case feedstore.StatusLoaded:
		logx.Infof("已读取 feed：%s（%d 条）", r.cfg.FeedPath, fs.Len())
	case feedstore.StatusRecovered:
		logx.Infof("feed 无法解析，按新建处理：%s", r.cfg.FeedPath)
	default:
		logx.Infof("新建 feed：%s", r.cfg.FeedPath)
	}

	seen := make(map[string]struct{}, len(links))
	for _, link := range links {
		if _, ok := seen[link]; ok {
			logx.Debugf("本轮已处理，跳过重复链接：%s", link)
			continue
		}
		seen[link] = struct{}{}
		lr := r.processLink(ctx, fs, link)
		rep.Results = append(rep.Results, lr)
		rep.Added += lr.Added
		rep.Duplicates += lr.Duplicates
		switch lr.Status {
		case model.StatusFetchError:
			rep.FetchErrors++
		case model.StatusEmpty:
			rep.Empty++
		}
	}

	wrote, err := fs.Flush()
	if err != nil {
		return rep, fmt.Errorf("flush feed: %w", err)
	}
	rep.Flushed = wrote
	r.finish(ctx, &rep)

	logx.Infof("完成：链接=%d 新增=%d 重复=%d 抓取失败=%d", rep.Links, rep.Added, rep.Duplicates, rep.FetchErrors)
	if wrote {
		logx.Infof("已写入 %s（共 %d 条）", r.cfg.FeedPath, fs.Len())
	} else if fs.Status() == feedstore.StatusRecovered {
		logx.Warnf("没有新条目，损坏的 feed 保持原样：%s（备份 %s）", r.cfg.FeedPath, fs.Backup())
	} else {
		logx.Infof("没有新条目，feed 未改动")
	}
	return rep, nil
}

// processLink 处理单个链接：抓取失败与解析失败都只记录，不中断整轮。
func (r *Runner) processLink(ctx context.Context, fs *feedstore.Store, link string) model.LinkResult {
	lr := model.LinkResult{URL: link}
	page, err := r.fetch.Text(ctx, link)
	if err != nil {
		logx.Warnf("抓取失败：%s 错误=%v", link, err)
		lr.Status = model.StatusFetchError
		lr.Error = err.Error()
		return lr
	}
	recs, err := r.parser.Parse(page, link)
	if err != nil {
		logx.Warnf("解析失败：%s 错误=%v", link, err)
		lr.Error = err.Error()
	}
	lr.Items = len(recs)
	if len(recs) == 0 {
		logx.Infof("页面中没有画廊条目：%s", link)
		lr.Status = model.StatusEmpty
		return lr
	}
	for _, rec := range recs {
		if fs.Merge(rec) {
			lr.Added++
		} else {
			lr.Duplicates++
		}
	}
	lr.Status = model.StatusDuplicate
	if lr.Added > 0 {
		lr.Status = model.StatusAdded
	}
	return lr
}

// finish 补齐结束时间并写入历史；历史写入失败只告警。
func (r *Runner) finish(ctx context.Context, rep *model.Report) {
	rep.FinishedAt = r.now()
	if r.history == nil {
		return
	}
	if _, err := r.history.RecordRun(ctx, *rep); err != nil {
		logx.Warnf("写入运行历史失败：%v", err)
	}
	if err := r.history.CleanOldRuns(ctx, r.cfg.History.KeepDays); err != nil {
		logx.Warnf("清理运行历史失败：%v", err)
	}
}
