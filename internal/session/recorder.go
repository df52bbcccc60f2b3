package session

import (
	"context"

	"trades-sim/internal/execution"
)

// MultiRecorder 将结果依次转发给多个 Recorder。
type MultiRecorder []Recorder

func (m MultiRecorder) RecordTrade(ctx context.Context, runID string, result execution.TradeResult) {
	for _, r := range m {
		if r != nil {
			r.RecordTrade(ctx, runID, result)
		}
	}
}

func (m MultiRecorder) RecordSkip(ctx context.Context, runID string, skip Skip) {
	for _, r := range m {
		if r != nil {
			r.RecordSkip(ctx, runID, skip)
		}
	}
}
