package session

import (
	"context"

	"go.uber.org/zap"

	"trades-sim/internal/execution"
)

type branch struct {
	summary BranchSummary
	plans   []plan
}

// runBranch 从洗牌后的队首依次切出分支，剩余钱包不足一个分支时停止。
func (o *Orchestrator) runBranch(ctx context.Context, entries []entry, report *Report) error {
	branches, remaining := o.partition(entries)
	report.Dropped = remaining
	o.setState(StatePartitioned)

	if remaining > 0 {
		o.logger.Info("剩余钱包未分配到分支，本次不处理", zap.Int("dropped", remaining))
	}

	o.setState(StateExecuting)
	for i, b := range branches {
		report.Branches = append(report.Branches, b.summary)
		o.logger.Info("执行分支",
			zap.Int("branch", i+1),
			zap.Int("size", b.summary.Size),
			zap.Int("long", b.summary.LongCount),
			zap.Int("short", b.summary.ShortCount),
			zap.Float64("total_size", b.summary.TotalSize),
		)
		for _, p := range b.plans {
			if err := ctx.Err(); err != nil {
				return err
			}
			collect(report, o.process(ctx, p))
		}
	}
	return nil
}

// partition 切分分支并返回未分配的钱包数量。
func (o *Orchestrator) partition(entries []entry) ([]branch, int) {
	var branches []branch
	remaining := entries

	for len(remaining) > 0 && len(branches) < o.settings.MaxBranches {
		size := randInt(o.rng, o.settings.BranchRange.Min, o.settings.BranchRange.Max)
		if size < 2 {
			o.logger.Warn("分支大小小于2，无法切分多空", zap.Int("size", size))
			break
		}
		if len(remaining) < size {
			break
		}

		members := remaining[:size]
		remaining = remaining[size:]

		longCount := randInt(o.rng, 1, size-1)
		shortCount := size - longCount
		total := o.pickSize()
		longSize := total / float64(longCount)
		shortSize := total / float64(shortCount)

		plans := make([]plan, 0, size)
		for i, e := range members {
			p := plan{entry: e, asset: o.pickAsset()}
			if i < longCount {
				p.direction, p.size = execution.DirectionLong, longSize
			} else {
				p.direction, p.size = execution.DirectionShort, shortSize
			}
			plans = append(plans, p)
		}

		branches = append(branches, branch{
			summary: BranchSummary{
				Size:       size,
				LongCount:  longCount,
				ShortCount: shortCount,
				TotalSize:  total,
			},
			plans: plans,
		})
	}

	return branches, len(remaining)
}
