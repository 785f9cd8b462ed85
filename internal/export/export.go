// 包 export 负责将运行历史导出为 JSON（history.json），便于站点或脚本展示最近的更新记录。
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gallery-feed/internal/model"
	"gallery-feed/internal/store"
)

// maxExportRuns 导出的最近运行数上限
const maxExportRuns = 50

// ToJSON 查询统计与最近运行并写入 JSON 文件（带缩进格式）。
func ToJSON(ctx context.Context, s *store.SQLite, path string) error {
	runs, err := s.ListRuns(ctx, maxExportRuns)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	if runs == nil {
		runs = []model.RunRow{}
	}
	return writeJSON(model.Export{Stats: stats, Runs: runs}, path)
}

func writeJSON(out model.Export, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode json to %s: %w", path, err)
	}
	return nil
}
