package feedstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/mmcdole/gofeed"
)

// ErrLocked 表示另一个进程正持有 feed 锁。
var ErrLocked = errors.New("feed is locked by another run")

// Entry 为读取检查时的条目摘要。
type Entry struct {
	Title     string
	Link      string
	GUID      string
	Published *time.Time
}

// Inspect 按阅读器的方式（gofeed）解析 feed 文件，返回条目摘要。
func Inspect(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed %s: %w", path, err)
	}
	defer f.Close()
	feed, err := gofeed.NewParser().Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", path, err)
	}
	out := make([]Entry, 0, len(feed.Items))
	for _, it := range feed.Items {
		out = append(out, Entry{Title: it.Title, Link: it.Link, GUID: it.GUID, Published: it.PublishedParsed})
	}
	return out, nil
}

// Lock 获取 lockPath 上的跨进程文件锁，在 ctx 结束前反复尝试。
// 锁文件由配置 LOCK_PATH 指定，不放在 feed 所在的发布目录里。
func Lock(ctx context.Context, lockPath string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir for lock: %w", err)
	}
	fl := flock.New(lockPath)
	ok, err := fl.TryLockContext(ctx, 200*time.Millisecond)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, fl.Path())
	}
	return fl, nil
}
