package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trades-sim/internal/execution"
	"trades-sim/internal/wallet"
)

// Options 为编排器的依赖。
type Options struct {
	Wallets  WalletSource
	Proxies  ProxySelector
	Trader   execution.Trader
	Recorder Recorder
	Logger   *zap.Logger
	Rand     Rand
	Sleep    func(ctx context.Context, d time.Duration) error
	RunID    string
	Now      func() time.Time
}

// Orchestrator 负责一次会话：洗牌、分批或分支切分、分配代理并调用模拟执行。
type Orchestrator struct {
	settings Settings
	wallets  WalletSource
	proxies  ProxySelector
	trader   execution.Trader
	recorder Recorder
	logger   *zap.Logger
	rng      Rand
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	runID    string

	mu    sync.Mutex
	state State

	// 本次运行开始时的钱包快照，first_match 模式按值查找使用
	master []string
}

// entry 携带钱包及其在加载顺序中的位置。
type entry struct {
	key   string
	index int
}

// plan 为单个钱包预先计算好的交易参数。
type plan struct {
	entry     entry
	delay     time.Duration
	asset     string
	direction execution.Direction
	size      float64
}

// outcome 为单个钱包的处理结果，skipped 时 result 无意义。
type outcome struct {
	result  execution.TradeResult
	skipped bool
}

// New 创建编排器。
func New(settings Settings, opts Options) (*Orchestrator, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if opts.Wallets == nil {
		return nil, errors.New("session: wallet source 不能为空")
	}
	if opts.Proxies == nil {
		return nil, errors.New("session: proxy selector 不能为空")
	}
	if opts.Trader == nil {
		return nil, errors.New("session: trader 不能为空")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Rand == nil {
		opts.Rand = NewRand(0)
	}
	if opts.Sleep == nil {
		opts.Sleep = execution.SleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	return &Orchestrator{
		settings: settings,
		wallets:  opts.Wallets,
		proxies:  opts.Proxies,
		trader:   opts.Trader,
		recorder: opts.Recorder,
		logger:   opts.Logger.With(zap.String("run_id", opts.RunID), zap.String("strategy", string(settings.Strategy))),
		rng:      opts.Rand,
		sleep:    opts.Sleep,
		now:      opts.Now,
		runID:    opts.RunID,
		state:    StateIdle,
	}, nil
}

// RunID 返回本次会话标识。
func (o *Orchestrator) RunID() string {
	return o.runID
}

// State 返回当前阶段。
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.logger.Debug("会话状态变更", zap.String("state", string(s)))
}

// Run 执行一次会话。单个钱包的失败不会中断运行，只有 ctx 结束会提前返回。
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return Report{}, ErrAlreadyRun
	}
	o.state = StateLoaded
	o.mu.Unlock()

	report := Report{
		RunID:     o.runID,
		Strategy:  o.settings.Strategy,
		StartedAt: o.now().UTC(),
	}

	o.master = o.wallets.List()
	entries := make([]entry, len(o.master))
	for i, key := range o.master {
		entries[i] = entry{key: key, index: i}
	}

	o.logger.Info("开始交易会话",
		zap.Int("wallets", len(entries)),
		zap.Int("proxies", o.proxies.Len()),
		zap.Bool("shuffle", o.settings.Shuffle),
		zap.String("index_mode", string(o.settings.IndexMode)),
	)

	if len(entries) == 0 {
		o.logger.Error("没有可用于交易的钱包，跳过本次会话")
		return o.finish(report), nil
	}
	if o.proxies.Len() == 0 {
		o.logger.Error("没有可用的代理服务器，跳过本次会话")
		return o.finish(report), nil
	}
	o.warnDuplicates()

	if o.settings.Shuffle {
		o.rng.Shuffle(len(entries), func(i, j int) {
			entries[i], entries[j] = entries[j], entries[i]
		})
	}

	var err error
	switch o.settings.Strategy {
	case StrategyFlat:
		err = o.runFlat(ctx, entries, &report)
	case StrategyBranch:
		err = o.runBranch(ctx, entries, &report)
	default:
		err = fmt.Errorf("session: 不支持的执行策略 %q", o.settings.Strategy)
	}

	report = o.finish(report)
	if err != nil {
		return report, err
	}

	o.logger.Info("交易会话完成",
		zap.Int("trades", len(report.Results)),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("skipped", report.Skipped),
		zap.Int("dropped", report.Dropped),
		zap.Int("branches", len(report.Branches)),
	)
	return report, nil
}

func (o *Orchestrator) finish(report Report) Report {
	o.setState(StateDone)
	report.State = StateDone
	report.FinishedAt = o.now().UTC()
	return report
}

func (o *Orchestrator) warnDuplicates() {
	seen := make(map[string]int, len(o.master))
	dups := 0
	for _, key := range o.master {
		seen[key]++
		if seen[key] == 2 {
			dups++
		}
	}
	if dups == 0 {
		return
	}
	msg := "钱包列表存在重复私钥，按加载位置分配代理"
	if o.settings.IndexMode == IndexModeFirstMatch {
		msg = "钱包列表存在重复私钥，first_match 模式下重复钱包将共用首个位置的代理"
	}
	o.logger.Warn(msg, zap.Int("duplicate_keys", dups))
}

// accountIndex 计算钱包的账户下标。
func (o *Orchestrator) accountIndex(e entry) int {
	if o.settings.IndexMode == IndexModeFirstMatch {
		for i, key := range o.master {
			if key == e.key {
				return i
			}
		}
		return -1
	}
	return e.index
}

func (o *Orchestrator) pickAsset() string {
	return o.settings.Assets[o.rng.IntN(len(o.settings.Assets))]
}

func (o *Orchestrator) pickDirection() execution.Direction {
	if o.settings.Direction != DirectionRandom {
		return execution.Direction(o.settings.Direction)
	}
	if o.rng.IntN(2) == 0 {
		return execution.DirectionLong
	}
	return execution.DirectionShort
}

func (o *Orchestrator) pickSize() float64 {
	return uniform(o.rng, o.settings.VolumeRange.Min, o.settings.VolumeRange.Max)
}

// process 完成单个钱包的下标解析、代理分配与模拟交易。
func (o *Orchestrator) process(ctx context.Context, p plan) outcome {
	idx := o.accountIndex(p.entry)
	masked := wallet.Mask(p.entry.key, 8)

	key, ok := o.wallets.Lookup(idx)
	if !ok || key != p.entry.key {
		return o.skip(ctx, Skip{
			Wallet:       masked,
			AccountIndex: idx,
			Reason:       fmt.Sprintf("下标 %d 未找到对应钱包", idx),
		})
	}

	px, err := o.proxies.Select(ctx, idx)
	if err != nil {
		return o.skip(ctx, Skip{
			Wallet:       masked,
			AccountIndex: idx,
			Reason:       err.Error(),
		})
	}

	result := o.trader.Execute(ctx, execution.TradeRequest{
		Wallet:       key,
		Asset:        p.asset,
		Direction:    p.direction,
		Size:         p.size,
		AccountIndex: idx,
		Proxy:        px,
	})
	o.recorder.RecordTrade(ctx, o.runID, result)

	if o.settings.LogResults {
		o.logger.Info("钱包交易结果",
			zap.String("wallet", masked),
			zap.String("status", string(result.Status)),
			zap.String("tx_id", result.TxID),
			zap.String("asset", result.Details.Asset),
			zap.String("direction", string(result.Details.Direction)),
			zap.Float64("size", result.Details.Size),
			zap.String("proxy", px.Address),
			zap.String("error", result.Error),
		)
	}
	return outcome{result: result}
}

func (o *Orchestrator) skip(ctx context.Context, s Skip) outcome {
	o.logger.Warn("跳过钱包",
		zap.String("wallet", s.Wallet),
		zap.Int("account_index", s.AccountIndex),
		zap.String("reason", s.Reason),
	)
	o.recorder.RecordSkip(ctx, o.runID, s)
	return outcome{skipped: true}
}

func collect(report *Report, out outcome) {
	if out.skipped {
		report.Skipped++
		return
	}
	report.Results = append(report.Results, out.result)
}

type nopRecorder struct{}

func (nopRecorder) RecordTrade(context.Context, string, execution.TradeResult) {}
func (nopRecorder) RecordSkip(context.Context, string, Skip)                   {}
