package session

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runFlat 按 thread_count 分批处理全部钱包。每个钱包的参数在派发前算好，
// 并发模式下各 goroutine 不再访问随机源。
func (o *Orchestrator) runFlat(ctx context.Context, entries []entry, report *Report) error {
	plans := make([]plan, len(entries))
	for i, e := range entries {
		plans[i] = plan{
			entry:     e,
			delay:     uniformDuration(o.rng, o.settings.LaunchDelay),
			asset:     o.pickAsset(),
			direction: o.pickDirection(),
			size:      o.pickSize(),
		}
	}
	o.setState(StatePartitioned)

	batch := o.settings.ThreadCount
	o.logger.Info("按批次执行",
		zap.Int("wallets", len(plans)),
		zap.Int("thread_count", batch),
		zap.Bool("concurrent", o.settings.Concurrent),
	)

	o.setState(StateExecuting)
	for start := 0; start < len(plans); start += batch {
		end := min(start+batch, len(plans))
		chunk := plans[start:end]

		var err error
		if o.settings.Concurrent {
			err = o.runChunkConcurrent(ctx, chunk, report)
		} else {
			err = o.runChunkSequential(ctx, chunk, report)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runChunkSequential(ctx context.Context, chunk []plan, report *Report) error {
	for _, p := range chunk {
		if err := o.sleep(ctx, p.delay); err != nil {
			return err
		}
		collect(report, o.process(ctx, p))
	}
	return nil
}

// runChunkConcurrent 并发处理一批钱包，结果按批内顺序写回。
func (o *Orchestrator) runChunkConcurrent(ctx context.Context, chunk []plan, report *Report) error {
	outcomes := make([]outcome, len(chunk))
	done := make([]bool, len(chunk))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.settings.ThreadCount)
	for i, p := range chunk {
		group.Go(func() error {
			if err := o.sleep(groupCtx, p.delay); err != nil {
				return err
			}
			outcomes[i] = o.process(groupCtx, p)
			done[i] = true
			return nil
		})
	}
	err := group.Wait()

	for i := range chunk {
		if done[i] {
			collect(report, outcomes[i])
		}
	}
	return err
}
