// 命令行入口：
// - 解析 flags 与 settings.yaml/rules.yaml（均可缺省，缺省时使用内置默认值）
// - 获取 diff（git diff / 文件 / 标准输入），提取新增画廊链接并更新 RSS
// - -list 以阅读器方式列出 feed 条目；-export 导出运行历史（无历史库时导出本次运行）
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"gallery-feed/internal/aggregate"
	"gallery-feed/internal/config"
	"gallery-feed/internal/diff"
	"gallery-feed/internal/export"
	"gallery-feed/internal/feedstore"
	"gallery-feed/internal/fetch"
	"gallery-feed/internal/gallery"
	"gallery-feed/internal/logx"
	"gallery-feed/internal/rules"
	"gallery-feed/internal/store"
)

func main() {
	// 出错时先让 run 内的 defer（历史库关闭、锁释放）执行完，再退出
	if err := run(os.Args[1:], os.Stdout); err != nil {
		logx.Errorf("运行失败：%v", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fset := flag.NewFlagSet("gallery-feed", flag.ContinueOnError)
	var (
		configPath = fset.String("config", "settings.yaml", "path to settings.yaml (optional)")
		rulesPath  = fset.String("rules", "rules.yaml", "path to rules.yaml (optional)")
		diffFile   = fset.String("diff-file", "", "read diff from file ('-' for stdin) instead of running DIFF.command")
		list       = fset.Bool("list", false, "print entries of the feed file and exit")
		exportPath = fset.String("export", "", "write run history json to this path (this run only when HISTORY.dsn is empty)")
	)
	if err := fset.Parse(args); err != nil {
		return err
	}

	// 1) 加载配置与规则
	cfg, err := config.Load(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logx.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogLocale, cfg.LogColor)
	var rl *rules.Rules
	if *rulesPath != "" {
		if r, err := rules.Load(*rulesPath); err == nil {
			rl = r
		} else if !errors.Is(err, fs.ErrNotExist) {
			logx.Warnf("加载 rules 失败，使用内置选择器：%v", err)
		}
	}

	if *list {
		entries, err := feedstore.Inspect(cfg.FeedPath)
		if err != nil {
			return fmt.Errorf("inspect feed: %w", err)
		}
		for _, e := range entries {
			date := "-"
			if e.Published != nil {
				date = e.Published.Format("2006-01-02")
			}
			key := e.GUID
			if key == "" {
				key = e.Link
			}
			fmt.Fprintf(stdout, "%s  %s  %s\n", date, e.Title, key)
		}
		logx.Infof("%s 共 %d 条", cfg.FeedPath, len(entries))
		return nil
	}

	ctx := context.Background()

	// 2) 获取 diff：失败即终止
	var text string
	if *diffFile != "" {
		text, err = diff.ReadFile(*diffFile)
	} else {
		text, err = diff.Command(ctx, cfg.Diff.Command)
	}
	if err != nil {
		return fmt.Errorf("get diff: %w", err)
	}

	// 3) 抓取客户端与解析器
	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:  cfg.Proxy.HTTP,
		ProxyHTTPS: cfg.Proxy.HTTPS,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		Retry:      cfg.Fetch.Retry,
		UserAgent:  cfg.Fetch.UserAgent,
		MaxBody:    cfg.Fetch.MaxBodyBytes,
	})
	if err != nil {
		return fmt.Errorf("http client: %w", err)
	}
	parser := gallery.New(rl.Gallery(cfg.Theme), gallery.StrategyFor(cfg.KeyStrategy))

	// 4) 运行历史（可选）
	var hist *store.SQLite
	var h aggregate.History
	if cfg.History.DSN != "" {
		hist, err = store.OpenSQLite(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer hist.Close()
		h = hist
		if cfg.History.ResetOnStart {
			if err := hist.Reset(ctx); err != nil {
				logx.Warnf("启动清理历史库失败：%v", err)
			} else {
				logx.Infof("已清理历史库表（runs/link_results）")
			}
		}
	} else if cfg.History.ResetOnStart {
		logx.Infof("未配置 HISTORY.dsn：跳过历史库清理")
	}
	if cfg.History.ResetOnStart && *exportPath != "" {
		if err := os.Remove(*exportPath); err == nil {
			logx.Infof("已删除导出文件：%s", *exportPath)
		}
	}

	// 5) 运行
	rep, err := aggregate.New(cfg, cl, parser, h).Run(ctx, text)
	if err != nil {
		return err
	}

	// 6) 导出：有历史库时导出最近运行，否则只导出本次
	if *exportPath != "" {
		if hist != nil {
			err = export.ToJSON(ctx, hist, *exportPath)
		} else {
			err = export.ToJSONReport(rep, *exportPath)
		}
		if err != nil {
			return fmt.Errorf("export json: %w", err)
		}
		logx.Infof("已导出 %s", *exportPath)
	}
	return nil
}
