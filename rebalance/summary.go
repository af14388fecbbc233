package rebalance

import (
	"encoding/json"

	"bondrotor/database"
)

// summaryToRecord 把执行结果转换为可落库的历史记录
func summaryToRecord(summary *RunSummary) *database.RunRecord {
	record := &database.RunRecord{
		RunID:     summary.RunID,
		Trigger:   summary.Trigger,
		State:     string(summary.State),
		FilledQty: summary.FilledCount(),
		FailedQty: summary.FailedCount(),
		SkipQty:   len(summary.Skipped),
		StartedAt: summary.StartedAt,
	}
	if summary.Plan != nil {
		record.SellCount = len(summary.Plan.Sells)
		record.BuyCount = len(summary.Plan.Buys)
	}
	if !summary.FinishedAt.IsZero() {
		finished := summary.FinishedAt
		record.FinishedAt = &finished
	}
	for _, e := range summary.Errors {
		if record.ErrorMsg != "" {
			record.ErrorMsg += "; "
		}
		record.ErrorMsg += e.Error()
	}
	if detail, err := json.Marshal(summary); err == nil {
		record.Detail = string(detail)
	}
	return record
}
