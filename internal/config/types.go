package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const (
	// ExecutionModeParallel 按批次顺序处理全部钱包。
	ExecutionModeParallel = "parallel"
	// ExecutionModeBranch 将钱包拆分为多空分支处理。
	ExecutionModeBranch = "branch"
	// ExecutionModeBoth 先执行 parallel 再执行 branch。
	ExecutionModeBoth = "both"

	ProxyTypeRegular = "regular"
	ProxyTypeMobile  = "mobile"

	DirectionRandom = "random"
	DirectionLong   = "long"
	DirectionShort  = "short"

	IndexModePosition   = "position"
	IndexModeFirstMatch = "first_match"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Wallets   WalletConfig    `mapstructure:"wallets"`
	Proxies   ProxyConfig     `mapstructure:"proxies"`
	Session   SessionConfig   `mapstructure:"session"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment   string `mapstructure:"environment"`
	ExecutionMode string `mapstructure:"execution_mode"`
}

// WalletConfig 描述钱包私钥来源。
type WalletConfig struct {
	KeysFile string `mapstructure:"keys_file"`
	Strict   bool   `mapstructure:"strict"`
}

// ProxyConfig 描述代理来源与类型。
type ProxyConfig struct {
	ProxyFile      string        `mapstructure:"proxy_file"`
	ProxyType      string        `mapstructure:"proxy_type"`
	Strict         bool          `mapstructure:"strict"`
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
}

// DurationRange 表示闭区间 [Min, Max] 的时长，不带单位的数字按秒解析。
type DurationRange struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

// IntRange 表示闭区间 [Min, Max] 的整数。
type IntRange struct {
	Min int `mapstructure:"min"`
	Max int `mapstructure:"max"`
}

// FloatRange 表示闭区间 [Min, Max] 的浮点数。
type FloatRange struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// SessionConfig 控制一次交易会话的编排参数。
type SessionConfig struct {
	ThreadCount         int           `mapstructure:"thread_count"`
	LaunchDelay         DurationRange `mapstructure:"launch_delay"`
	BranchWalletRange   IntRange      `mapstructure:"branch_wallet_range"`
	MaxParallelBranches int           `mapstructure:"max_parallel_branches"`
	TradingAssets       []string      `mapstructure:"trading_assets"`
	PositionDirection   string        `mapstructure:"position_direction"`
	VolumeRange         FloatRange    `mapstructure:"volume_percentage_range"`
	EnableShuffling     bool          `mapstructure:"enable_shuffling"`
	EnableLogs          bool          `mapstructure:"enable_logs"`
	Concurrent          bool          `mapstructure:"concurrent"`
	AccountIndexMode    string        `mapstructure:"account_index_mode"`
	Seed                uint64        `mapstructure:"seed"` // 0 表示随机种子
}

// SimulatorConfig 控制模拟成交行为。
type SimulatorConfig struct {
	BalanceLimit float64       `mapstructure:"balance_limit"`
	MinLatency   time.Duration `mapstructure:"min_latency"`
	MaxLatency   time.Duration `mapstructure:"max_latency"`
	UserAgents   []string      `mapstructure:"user_agents"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
	SessionLogDir    string   `mapstructure:"session_log_dir"`
}

// MonitorConfig 控制监控接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	switch strings.ToLower(c.App.ExecutionMode) {
	case ExecutionModeParallel, ExecutionModeBranch, ExecutionModeBoth:
	default:
		err = multierr.Append(err, fmt.Errorf("app.execution_mode 不支持: %q", c.App.ExecutionMode))
	}
	if c.Wallets.KeysFile == "" {
		err = multierr.Append(err, errors.New("wallets.keys_file 不能为空"))
	}
	if c.Proxies.ProxyFile == "" {
		err = multierr.Append(err, errors.New("proxies.proxy_file 不能为空"))
	}
	switch strings.ToLower(c.Proxies.ProxyType) {
	case ProxyTypeRegular, ProxyTypeMobile:
	default:
		err = multierr.Append(err, fmt.Errorf("proxies.proxy_type 不支持: %q", c.Proxies.ProxyType))
	}
	if c.Proxies.RefreshTimeout <= 0 {
		err = multierr.Append(err, errors.New("proxies.refresh_timeout 必须大于0"))
	}
	err = multierr.Append(err, c.Session.validate())
	if c.Simulator.BalanceLimit <= 0 {
		err = multierr.Append(err, errors.New("simulator.balance_limit 必须大于0"))
	}
	if c.Simulator.MinLatency < 0 || c.Simulator.MaxLatency < 0 {
		err = multierr.Append(err, errors.New("simulator.latency 不能为负"))
	}
	if c.Simulator.MinLatency > c.Simulator.MaxLatency {
		err = multierr.Append(err, errors.New("simulator.min_latency 不能大于 max_latency"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

func (s SessionConfig) validate() error {
	var err error

	if s.ThreadCount <= 0 {
		err = multierr.Append(err, errors.New("session.thread_count 必须大于0"))
	}
	if s.LaunchDelay.Min < 0 || s.LaunchDelay.Min > s.LaunchDelay.Max {
		err = multierr.Append(err, errors.New("session.launch_delay 必须满足 0 <= min <= max"))
	}
	// 分支至少需要一个多头与一个空头钱包
	if s.BranchWalletRange.Min < 2 {
		err = multierr.Append(err, errors.New("session.branch_wallet_range.min 不能小于2"))
	}
	if s.BranchWalletRange.Min > s.BranchWalletRange.Max {
		err = multierr.Append(err, errors.New("session.branch_wallet_range.min 不能大于 max"))
	}
	if s.MaxParallelBranches <= 0 {
		err = multierr.Append(err, errors.New("session.max_parallel_branches 必须大于0"))
	}
	if len(s.TradingAssets) == 0 {
		err = multierr.Append(err, errors.New("session.trading_assets 至少包含一个标的"))
	}
	switch strings.ToLower(s.PositionDirection) {
	case DirectionRandom, DirectionLong, DirectionShort:
	default:
		err = multierr.Append(err, fmt.Errorf("session.position_direction 不支持: %q", s.PositionDirection))
	}
	if s.VolumeRange.Min <= 0 || s.VolumeRange.Min > s.VolumeRange.Max {
		err = multierr.Append(err, errors.New("session.volume_percentage_range 必须满足 0 < min <= max"))
	}
	switch strings.ToLower(s.AccountIndexMode) {
	case IndexModePosition, IndexModeFirstMatch:
	default:
		err = multierr.Append(err, fmt.Errorf("session.account_index_mode 不支持: %q", s.AccountIndexMode))
	}

	return err
}
