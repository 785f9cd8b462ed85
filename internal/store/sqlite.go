// 包 store 提供运行历史的存储实现（SQLite）：每次运行的汇总与逐链接结果。
// 仅作审计用途，feed 本身始终以单个 RSS 文件保存。
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"gallery-feed/internal/model"
)

// SQLite 封装 *sql.DB，基于 modernc.org/sqlite（纯 Go 实现）。
type SQLite struct {
	db *sql.DB
}

// OpenSQLite 打开 SQLite 数据库并执行自动迁移。
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            started_at TIMESTAMP,
            finished_at TIMESTAMP,
            links INTEGER,
            added INTEGER,
            duplicates INTEGER,
            fetch_errors INTEGER,
            flushed INTEGER
        );`,
		`CREATE TABLE IF NOT EXISTS link_results (
            run_id INTEGER REFERENCES runs(id) ON DELETE CASCADE,
            url TEXT,
            status TEXT,
            items INTEGER,
            added INTEGER,
            duplicates INTEGER,
            error TEXT
        );`,
		`CREATE INDEX IF NOT EXISTS idx_link_results_run ON link_results(run_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

// RecordRun 在一个事务内写入运行汇总与逐链接结果，返回运行 ID。
func (s *SQLite) RecordRun(ctx context.Context, r model.Report) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `INSERT INTO runs(started_at, finished_at, links, added, duplicates, fetch_errors, flushed)
        VALUES(?,?,?,?,?,?,?)`,
		nowOr(r.StartedAt), nowOr(r.FinishedAt), r.Links, r.Added, r.Duplicates, r.FetchErrors, r.Flushed)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}
	for _, lr := range r.Results {
		if _, err := tx.ExecContext(ctx, `INSERT INTO link_results(run_id, url, status, items, added, duplicates, error)
            VALUES(?,?,?,?,?,?,?)`, id, lr.URL, lr.Status, lr.Items, lr.Added, lr.Duplicates, lr.Error); err != nil {
			return 0, fmt.Errorf("insert link result %s: %w", lr.URL, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// ListRuns 按时间倒序返回最近的运行记录，limit<=0 表示全部。
func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]model.RunRow, error) {
	q := `SELECT id, started_at, finished_at, links, added, duplicates, fetch_errors, flushed FROM runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var out []model.RunRow
	for rows.Next() {
		var r model.RunRow
		var started, finished sql.NullTime
		if err := rows.Scan(&r.ID, &started, &finished, &r.Links, &r.Added, &r.Duplicates, &r.FetchErrors, &r.Flushed); err != nil {
			return nil, fmt.Errorf("scan runs: %w", err)
		}
		r.StartedAt = started.Time
		r.FinishedAt = finished.Time
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// LinkResults 返回某次运行的逐链接结果。
func (s *SQLite) LinkResults(ctx context.Context, runID int64) ([]model.LinkResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url, status, items, added, duplicates, COALESCE(error,'') FROM link_results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query link results: %w", err)
	}
	defer rows.Close()
	var out []model.LinkResult
	for rows.Next() {
		var lr model.LinkResult
		if err := rows.Scan(&lr.URL, &lr.Status, &lr.Items, &lr.Added, &lr.Duplicates, &lr.Error); err != nil {
			return nil, fmt.Errorf("scan link results: %w", err)
		}
		out = append(out, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate link results: %w", err)
	}
	return out, nil
}

// Stats 汇总全部运行。
func (s *SQLite) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1), COALESCE(SUM(links),0), COALESCE(SUM(added),0), COALESCE(SUM(fetch_errors),0) FROM runs`).
		Scan(&st.RunsTotal, &st.LinksTotal, &st.AddedTotal, &st.FetchErrors)
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	st.UpdatedAt = time.Now()
	return st, nil
}

// CleanOldRuns 删除早于 days 天的运行及其链接结果。
func (s *SQLite) CleanOldRuns(ctx context.Context, days int) error {
	if days <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM link_results WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`, cutoff); err != nil {
		return fmt.Errorf("clean old link results: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff); err != nil {
		return fmt.Errorf("clean old runs: %w", err)
	}
	return nil
}

// Reset 清空历史表（不删除数据库文件）。
func (s *SQLite) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM link_results`); err != nil {
		return fmt.Errorf("delete link results: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs`); err != nil {
		return fmt.Errorf("delete runs: %w", err)
	}
	return nil
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
