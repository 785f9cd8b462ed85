package export

import (
	"time"

	"gallery-feed/internal/model"
)

// ToJSONReport 在未配置历史库时直接把本次运行写成与 ToJSON 相同结构的 JSON，附带逐链接结果。
func ToJSONReport(rep model.Report, path string) error {
	finished := rep.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	st := model.Stats{
		RunsTotal:   1,
		LinksTotal:  rep.Links,
		AddedTotal:  rep.Added,
		FetchErrors: rep.FetchErrors,
		UpdatedAt:   finished,
	}
	row := model.RunRow{
		StartedAt:   rep.StartedAt,
		FinishedAt:  finished,
		Links:       rep.Links,
		Added:       rep.Added,
		Duplicates:  rep.Duplicates,
		FetchErrors: rep.FetchErrors,
		Flushed:     rep.Flushed,
	}
	results := rep.Results
	if results == nil {
		results = []model.LinkResult{}
	}
	return writeJSON(model.Export{Stats: st, Runs: []model.RunRow{row}, Results: results}, path)
}
