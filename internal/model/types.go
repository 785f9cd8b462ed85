// 包 model 定义各组件共享的数据模型（画廊条目/单链接结果/运行报告/历史统计）。
package model

import (
	"strings"
	"time"
)

// Record 为从画廊页解析出的归一化条目。
// Fragments 按页面视觉顺序排列：前置描述、主图、元信息、备选图、后置描述。
type Record struct {
	Title       string
	Permalink   string
	PublishDate string
	Fragments   []string
}

// Content 返回拼接后的正文块（嵌入 feed 的 description）。
func (r Record) Content() string { return strings.Join(r.Fragments, "") }

// 单链接处理状态
const (
	StatusAdded      = "added"
	StatusDuplicate  = "duplicate"
	StatusEmpty      = "empty"
	StatusFetchError = "fetch_error"
)

// LinkResult 记录单个链接的处理结果。
type LinkResult struct {
	URL        string `json:"url"`
	Status     string `json:"status"`
	Items      int    `json:"items"`
	Added      int    `json:"added"`
	Duplicates int    `json:"duplicates"`
	Error      string `json:"error,omitempty"`
}

// Report 为一次运行的汇总。
type Report struct {
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Links       int          `json:"links"`
	Added       int          `json:"added"`
	Duplicates  int          `json:"duplicates"`
	FetchErrors int          `json:"fetch_errors"`
	Empty       int          `json:"empty"`
	Flushed     bool         `json:"flushed"`
	Results     []LinkResult `json:"results,omitempty"`
}

// RunRow 为历史库中的一行运行记录。
type RunRow struct {
	ID          int64     `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Links       int       `json:"links"`
	Added       int       `json:"added"`
	Duplicates  int       `json:"duplicates"`
	FetchErrors int       `json:"fetch_errors"`
	Flushed     bool      `json:"flushed"`
}

// Stats 为历史统计信息。
type Stats struct {
	RunsTotal   int       `json:"runs_total"`
	LinksTotal  int       `json:"links_total"`
	AddedTotal  int       `json:"added_total"`
	FetchErrors int       `json:"fetch_errors"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Export 为 history.json 顶层结构。
// Results 仅在无历史库、直接导出本次运行时填写。
type Export struct {
	Stats   Stats        `json:"stats"`
	Runs    []RunRow     `json:"runs"`
	Results []LinkResult `json:"results,omitempty"`
}
