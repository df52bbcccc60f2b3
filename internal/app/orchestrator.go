package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"trades-sim/internal/config"
	"trades-sim/internal/execution"
	"trades-sim/internal/metrics"
	"trades-sim/internal/monitor"
	"trades-sim/internal/proxy"
	"trades-sim/internal/session"
	"trades-sim/internal/wallet"
)

// orchestrator 串联钱包、代理、模拟执行与监控，按执行模式依次运行会话。
type orchestrator struct {
	cfg     config.SessionConfig
	wallets *wallet.Store
	pool    *proxy.Pool
	trader  execution.Trader
	monitor *monitor.Service
	metrics *metrics.Metrics
	rng     session.Rand
	logger  *zap.Logger
}

// strategiesFor 将 app.execution_mode 展开为会话策略序列。
func strategiesFor(mode string) ([]session.Strategy, error) {
	switch strings.ToLower(mode) {
	case config.ExecutionModeParallel:
		return []session.Strategy{session.StrategyFlat}, nil
	case config.ExecutionModeBranch:
		return []session.Strategy{session.StrategyBranch}, nil
	case config.ExecutionModeBoth:
		return []session.Strategy{session.StrategyFlat, session.StrategyBranch}, nil
	default:
		return nil, fmt.Errorf("不支持的执行模式 %q", mode)
	}
}

// settingsFor 将会话配置转换为编排参数。
func settingsFor(strategy session.Strategy, cfg config.SessionConfig) session.Settings {
	return session.Settings{
		Strategy:    strategy,
		ThreadCount: cfg.ThreadCount,
		LaunchDelay: session.DurationRange{Min: cfg.LaunchDelay.Min, Max: cfg.LaunchDelay.Max},
		BranchRange: session.IntRange{Min: cfg.BranchWalletRange.Min, Max: cfg.BranchWalletRange.Max},
		MaxBranches: cfg.MaxParallelBranches,
		Assets:      append([]string(nil), cfg.TradingAssets...),
		Direction:   cfg.PositionDirection,
		VolumeRange: session.FloatRange{Min: cfg.VolumeRange.Min, Max: cfg.VolumeRange.Max},
		Shuffle:     cfg.EnableShuffling,
		LogResults:  cfg.EnableLogs,
		Concurrent:  cfg.Concurrent,
		IndexMode:   session.IndexMode(cfg.AccountIndexMode),
	}
}

// run 运行单个策略的会话，并记录启动与汇总事件。
func (o *orchestrator) run(ctx context.Context, strategy session.Strategy) (session.Report, error) {
	settings := settingsFor(strategy, o.cfg)

	recorder := session.MultiRecorder{o.metrics}
	if o.monitor != nil {
		recorder = append(recorder, o.monitor)
	}

	sess, err := session.New(settings, session.Options{
		Wallets:  o.wallets,
		Proxies:  o.pool,
		Trader:   o.trader,
		Recorder: recorder,
		Logger:   o.logger,
		Rand:     o.rng,
	})
	if err != nil {
		return session.Report{}, fmt.Errorf("创建会话失败: %w", err)
	}

	if o.monitor != nil {
		o.monitor.RecordSessionStart(ctx, sess.RunID(), monitor.SessionStartPayload{
			Strategy:    strategy,
			Wallets:     o.wallets.Len(),
			Proxies:     o.pool.Len(),
			Assets:      settings.Assets,
			Direction:   settings.Direction,
			ThreadCount: settings.ThreadCount,
			MaxBranches: settings.MaxBranches,
		})
	}

	report, runErr := sess.Run(ctx)

	o.metrics.ObserveSession(report)
	if o.monitor != nil {
		// 会话被取消时仍需写入汇总
		o.monitor.RecordSummary(context.WithoutCancel(ctx), report, runErr)
	}
	o.logSummary(report)

	return report, runErr
}

func (o *orchestrator) logSummary(report session.Report) {
	succeeded := report.Succeeded()
	fields := []zap.Field{
		zap.String("run_id", report.RunID),
		zap.String("strategy", string(report.Strategy)),
		zap.String("state", string(report.State)),
		zap.Int("total", len(report.Results)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(report.Results)-succeeded),
		zap.Int("skipped", report.Skipped),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	}
	if report.Strategy == session.StrategyBranch {
		fields = append(fields, zap.Int("branches", len(report.Branches)), zap.Int("dropped", report.Dropped))
	}
	o.logger.Info("会话完成", fields...)
}
