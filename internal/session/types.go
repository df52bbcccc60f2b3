package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trades-sim/internal/execution"
	"trades-sim/internal/proxy"
)

// Strategy 表示会话的执行策略。
type Strategy string

const (
	// StrategyFlat 按批次处理全部钱包（配置中的 parallel 模式）。
	StrategyFlat Strategy = "parallel"
	// StrategyBranch 将钱包切分为多空分支。
	StrategyBranch Strategy = "branch"
)

// State 表示一次运行所处阶段。
type State string

const (
	StateIdle        State = "idle"
	StateLoaded      State = "loaded"
	StatePartitioned State = "partitioned"
	StateExecuting   State = "executing"
	StateDone        State = "done"
)

// IndexMode 决定账户下标的计算方式。
type IndexMode string

const (
	// IndexModePosition 使用钱包在加载顺序中的位置，随洗牌一起携带。
	IndexModePosition IndexMode = "position"
	// IndexModeFirstMatch 按值查找首次出现的位置，重复钱包会共用同一下标。
	IndexModeFirstMatch IndexMode = "first_match"
)

const DirectionRandom = "random"

var (
	// ErrAlreadyRun 表示会话只能运行一次。
	ErrAlreadyRun = errors.New("session: 会话已运行")
)

// WalletSource 提供加载顺序下的钱包列表。
type WalletSource interface {
	List() []string
	Lookup(index int) (string, bool)
}

// ProxySelector 按账户下标分配代理。
type ProxySelector interface {
	Select(ctx context.Context, accountIndex int) (proxy.Proxy, error)
	Len() int
}

// Recorder 接收每个钱包的处理结果，实现需并发安全。
type Recorder interface {
	RecordTrade(ctx context.Context, runID string, result execution.TradeResult)
	RecordSkip(ctx context.Context, runID string, skip Skip)
}

// Skip 描述被跳过的钱包。
type Skip struct {
	Wallet       string `json:"wallet"`
	AccountIndex int    `json:"account_index"`
	Reason       string `json:"reason"`
}

// DurationRange 为闭区间时长。
type DurationRange struct {
	Min time.Duration
	Max time.Duration
}

// IntRange 为闭区间整数。
type IntRange struct {
	Min int
	Max int
}

// FloatRange 为闭区间浮点数。
type FloatRange struct {
	Min float64
	Max float64
}

// Settings 为单次会话的编排参数。
type Settings struct {
	Strategy    Strategy
	ThreadCount int
	LaunchDelay DurationRange
	BranchRange IntRange
	MaxBranches int
	Assets      []string
	Direction   string // random | long | short
	VolumeRange FloatRange
	Shuffle     bool
	LogResults  bool
	Concurrent  bool
	IndexMode   IndexMode
}

func (s Settings) validate() error {
	switch s.Strategy {
	case StrategyFlat:
		if s.ThreadCount <= 0 {
			return fmt.Errorf("session: thread_count 必须大于0, got %d", s.ThreadCount)
		}
		if s.LaunchDelay.Min < 0 || s.LaunchDelay.Min > s.LaunchDelay.Max {
			return fmt.Errorf("session: launch_delay 区间无效 [%s, %s]", s.LaunchDelay.Min, s.LaunchDelay.Max)
		}
		switch s.Direction {
		case DirectionRandom, string(execution.DirectionLong), string(execution.DirectionShort):
		default:
			return fmt.Errorf("session: 不支持的方向 %q", s.Direction)
		}
	case StrategyBranch:
		if s.BranchRange.Min < 2 || s.BranchRange.Min > s.BranchRange.Max {
			return fmt.Errorf("session: 分支钱包区间无效 [%d, %d]，下限至少为2", s.BranchRange.Min, s.BranchRange.Max)
		}
		if s.MaxBranches <= 0 {
			return fmt.Errorf("session: max_parallel_branches 必须大于0, got %d", s.MaxBranches)
		}
	default:
		return fmt.Errorf("session: 不支持的执行策略 %q", s.Strategy)
	}

	if len(s.Assets) == 0 {
		return errors.New("session: 至少需要一个交易标的")
	}
	if s.VolumeRange.Min <= 0 || s.VolumeRange.Min > s.VolumeRange.Max {
		return fmt.Errorf("session: 交易量区间无效 [%v, %v]", s.VolumeRange.Min, s.VolumeRange.Max)
	}
	switch s.IndexMode {
	case IndexModePosition, IndexModeFirstMatch:
	default:
		return fmt.Errorf("session: 不支持的下标模式 %q", s.IndexMode)
	}
	return nil
}

// BranchSummary 记录一个分支的切分结果。
type BranchSummary struct {
	Size       int     `json:"size"`
	LongCount  int     `json:"long_count"`
	ShortCount int     `json:"short_count"`
	TotalSize  float64 `json:"total_size"`
}

// Report 汇总一次运行。
type Report struct {
	RunID      string                  `json:"run_id"`
	Strategy   Strategy                `json:"strategy"`
	State      State                   `json:"state"`
	Results    []execution.TradeResult `json:"results"`
	Skipped    int                     `json:"skipped"`
	Dropped    int                     `json:"dropped"`
	Branches   []BranchSummary         `json:"branches,omitempty"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
}

// Succeeded 统计成功笔数。
func (r Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Succeeded() {
			n++
		}
	}
	return n
}
