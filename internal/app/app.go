package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"trades-sim/internal/config"
	"trades-sim/internal/execution"
	applog "trades-sim/internal/log"
	"trades-sim/internal/metrics"
	"trades-sim/internal/monitor"
	"trades-sim/internal/proxy"
	"trades-sim/internal/session"
	"trades-sim/internal/store"
	"trades-sim/internal/wallet"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
	now    func() time.Time

	// 监控接口实际监听地址，未启用时为空
	monitorAddr string
	// 会话使用的 logger，开启会话日志时同时写入文件
	sessionLogger *zap.Logger
	// 需在退出时释放的资源，按注册的逆序关闭
	closers []func() error
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
		now:    time.Now,
	}
}

// Run 按执行模式运行会话。启用监控时，会话结束后继续提供查询直到收到退出信号。
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Warn("释放资源失败", zap.Error(err))
		}
	}()

	a.logger.Info("模拟交易系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("execution_mode", a.cfg.App.ExecutionMode),
	)

	reports, err := a.RunSessions(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		}
		return err
	}
	a.logger.Info("全部会话已完成", zap.Int("sessions", len(reports)))

	if a.cfg.Monitor.Enabled {
		a.logger.Info("监控接口保持运行，等待退出信号")
		<-ctx.Done()
		a.logger.Info("系统收到退出信号，正在停止")
	}
	return nil
}

// Close 依次关闭监控服务、推送中心与会话日志文件。
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// RunSessions 加载钱包与代理，依次运行配置的会话并返回报告。
// 会话日志与监控服务在 Close 之前保持可用。
func (a *App) RunSessions(ctx context.Context) ([]session.Report, error) {
	strategies, err := strategiesFor(a.cfg.App.ExecutionMode)
	if err != nil {
		return nil, err
	}

	wallets, err := a.loadWallets()
	if err != nil {
		return nil, err
	}
	proxies, err := a.loadProxies()
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	logger := a.logger
	if a.cfg.Session.EnableLogs {
		teed, closeFn, logErr := applog.WithSessionFile(a.logger, a.cfg.Logging, wallets.Len(), a.now())
		if logErr != nil {
			a.logger.Warn("创建会话日志失败，仅输出到控制台", zap.Error(logErr))
		} else {
			logger = teed
			a.onClose(closeFn)
		}
	}
	a.sessionLogger = logger

	var monitorSvc *monitor.Service
	if a.store != nil {
		var hub *monitor.Hub
		if a.cfg.Monitor.Enabled {
			hub = monitor.NewHub(logger)
			a.onClose(func() error {
				hub.Close()
				return nil
			})
		}
		monitorSvc, err = monitor.NewService(a.store, hub, logger)
		if err != nil {
			return nil, err
		}
		if a.cfg.Monitor.Enabled {
			addr, shutdown, srvErr := startMonitorServer(monitor.NewHandler(monitorSvc, m.Registry(), logger), a.cfg.Monitor.Port, logger)
			if srvErr != nil {
				return nil, srvErr
			}
			a.monitorAddr = addr
			a.onClose(shutdown)
		}
	}

	pool := proxy.NewPool(proxies, proxy.Options{
		Type:           a.cfg.Proxies.ProxyType,
		Refresher:      proxy.NewHTTPRefresher(a.cfg.Proxies.RefreshTimeout),
		RefreshTimeout: a.cfg.Proxies.RefreshTimeout,
		Observer:       m,
		Logger:         logger,
	})

	simulator := execution.NewSimulator(execution.Options{
		BalanceLimit: a.cfg.Simulator.BalanceLimit,
		MinLatency:   a.cfg.Simulator.MinLatency,
		MaxLatency:   a.cfg.Simulator.MaxLatency,
		UserAgents:   a.cfg.Simulator.UserAgents,
		Seed:         a.cfg.Session.Seed,
	}, logger)

	orch := &orchestrator{
		cfg:     a.cfg.Session,
		wallets: wallets,
		pool:    pool,
		trader:  simulator,
		monitor: monitorSvc,
		metrics: m,
		rng:     session.NewRand(a.cfg.Session.Seed),
		logger:  logger,
	}

	reports := make([]session.Report, 0, len(strategies))
	for _, strategy := range strategies {
		report, runErr := orch.run(ctx, strategy)
		reports = append(reports, report)
		if runErr != nil {
			if monitorSvc != nil && !errors.Is(runErr, context.Canceled) {
				monitorSvc.RecordError(context.WithoutCancel(ctx), "会话执行失败", runErr, map[string]interface{}{
					"strategy": string(strategy),
				})
			}
			return reports, fmt.Errorf("%s 会话执行失败: %w", strategy, runErr)
		}
	}
	return reports, nil
}

func (a *App) loadWallets() (*wallet.Store, error) {
	wallets := wallet.NewStore(a.cfg.Wallets.KeysFile, a.logger)
	outcome, err := wallets.Load()
	if err != nil {
		return nil, fmt.Errorf("加载钱包失败: %w", err)
	}
	if outcome == wallet.LoadAbsent && a.cfg.Wallets.Strict {
		return nil, fmt.Errorf("钱包文件 %q 不存在", a.cfg.Wallets.KeysFile)
	}
	a.logger.Info("钱包已加载", zap.Int("count", wallets.Len()), zap.Stringer("outcome", outcome))
	return wallets, nil
}

func (a *App) loadProxies() ([]proxy.Proxy, error) {
	proxies, outcome, err := proxy.Load(a.cfg.Proxies.ProxyFile)
	if err != nil {
		return nil, fmt.Errorf("加载代理失败: %w", err)
	}
	if outcome == proxy.LoadAbsent {
		if a.cfg.Proxies.Strict {
			return nil, fmt.Errorf("代理文件 %q 不存在", a.cfg.Proxies.ProxyFile)
		}
		a.logger.Warn("代理文件不存在", zap.String("path", a.cfg.Proxies.ProxyFile))
	}
	a.logger.Info("代理已加载", zap.Int("count", len(proxies)), zap.String("type", a.cfg.Proxies.ProxyType))
	return proxies, nil
}
