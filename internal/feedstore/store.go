package feedstore

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/beevik/etree"

	"gallery-feed/internal/config"
	"gallery-feed/internal/logx"
	"gallery-feed/internal/model"
)

const generator = "gallery-feed"

// ErrUnrecognized 表示文件可解析但不是带频道元信息的 RSS。
var ErrUnrecognized = errors.New("feed has no recognizable channel metadata")

// 加载结果
type Status int

const (
	StatusLoaded    Status = iota // 读取了已有文件
	StatusCreated                 // 文件不存在，新建
	StatusRecovered               // 文件损坏，已备份并新建
)

// Store 持有内存中的 feed 文档树与已知 permalink 集合，单线程使用。
type Store struct {
	path    string
	doc     *etree.Document
	channel *etree.Element
	known   map[string]struct{}
	status  Status
	backup  string
	dirty   int
	now     func() time.Time
}

// LoadOrCreate 读取 path 处的 feed；不存在时新建。
// 文件损坏时复制一份到 <path>.corrupt-<unix>，原文件保持不动，直到 Flush 用新内容原子替换。
func LoadOrCreate(path string, ch config.Channel) (*Store, error) {
	s := &Store{path: path, known: map[string]struct{}{}, now: time.Now}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.doc, s.channel = freshDocument(ch)
		s.status = StatusCreated
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", path, err)
	}
	doc, channel, perr := decode(b)
	if perr != nil {
		backup := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if err := os.WriteFile(backup, b, 0o644); err != nil {
			return nil, fmt.Errorf("feed %s unreadable (%v), backup failed: %w", path, perr, err)
		}
		logx.Warnf("feed 文件无法解析，已备份为 %s，本次有新增时将重新初始化：%v", backup, perr)
		s.doc, s.channel = freshDocument(ch)
		s.status = StatusRecovered
		s.backup = backup
		return s, nil
	}
	s.doc, s.channel = doc, channel
	s.status = StatusLoaded
	for _, it := range children(channel, "item") {
		if k := itemKey(it); k != "" {
			s.known[k] = struct{}{}
		}
	}
	return s, nil
}

func decode(b []byte) (*etree.Document, *etree.Element, error) {
	doc := newDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, nil, fmt.Errorf("decode rss: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Space != "" || root.Tag != "rss" {
		return nil, nil, ErrUnrecognized
	}
	channel := child(root, "channel")
	if channel == nil || (childText(channel, "title") == "" && childText(channel, "link") == "") {
		return nil, nil, ErrUnrecognized
	}
	return doc, channel, nil
}

// Merge 合并一个条目：permalink 已存在时跳过并返回 false；
// 否则插入到条目列表最前（即紧跟频道元信息之后）。
func (s *Store) Merge(rec model.Record) bool {
	if _, ok := s.known[rec.Permalink]; ok {
		logx.Infof("已存在，跳过：%s", rec.Permalink)
		return false
	}
	insertBeforeItems(s.channel, newItem(rec.Title, rec.Permalink, rec.PublishDate, rec.Content()))
	s.known[rec.Permalink] = struct{}{}
	s.dirty++
	logx.Infof("新增条目：%s（%s）", rec.Title, rec.Permalink)
	return true
}

// Flush 仅在本次运行有新增时写回文件（临时文件 + 改名），返回是否写入。
func (s *Store) Flush() (bool, error) {
	if s.dirty == 0 {
		return false, nil
	}
	root := s.doc.Root()
	if root.SelectAttr("version") == nil {
		root.CreateAttr("version", "2.0")
	}
	setChildText(s.channel, "lastBuildDate", s.now().Format(time.RFC1123Z))

	// 输出副本统一 XML 声明与缩进；xml-stylesheet 等其余处理指令保留
	out := s.doc.Copy()
	for _, tok := range out.Child {
		if pi, ok := tok.(*etree.ProcInst); ok && pi.Target == "xml" {
			out.RemoveChildAt(pi.Index())
			break
		}
	}
	out.InsertChildAt(0, etree.NewProcInst("xml", `version="1.0" encoding="UTF-8"`))
	out.Indent(2)
	var buf bytes.Buffer
	if _, err := out.WriteTo(&buf); err != nil {
		return false, fmt.Errorf("encode feed: %w", err)
	}
	if err := writeAtomic(s.path, buf.Bytes()); err != nil {
		return false, err
	}
	s.dirty = 0
	return true, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp feed: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp feed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp feed: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp feed: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace feed %s: %w", path, err)
	}
	return nil
}

func (s *Store) Len() int { return len(children(s.channel, "item")) }

func (s *Store) Has(permalink string) bool {
	_, ok := s.known[permalink]
	return ok
}

// Permalinks 按文件中的顺序返回全部条目键。
func (s *Store) Permalinks() []string {
	items := children(s.channel, "item")
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, itemKey(it))
	}
	return out
}

// ChannelInfo 返回文档中实际的频道元信息（已有文件时不是配置值）。
func (s *Store) ChannelInfo() config.Channel {
	return config.Channel{
		Title:       childText(s.channel, "title"),
		Link:        childText(s.channel, "link"),
		Description: childText(s.channel, "description"),
		Language:    childText(s.channel, "language"),
	}
}

// Content 返回键为 permalink 的条目的 description 正文。
func (s *Store) Content(permalink string) (string, bool) {
	for _, it := range children(s.channel, "item") {
		if itemKey(it) == permalink {
			if d := child(it, "description"); d != nil {
				return d.Text(), true
			}
			return "", true
		}
	}
	return "", false
}

func (s *Store) Status() Status { return s.status }
func (s *Store) Fresh() bool    { return s.status != StatusLoaded }
func (s *Store) Backup() string { return s.backup }
func (s *Store) Pending() int   { return s.dirty }
