// Package metrics 暴露模拟交易会话的 Prometheus 指标：
//
//   - trades_sim_trades_total{status,direction}  模拟成交笔数
//   - trades_sim_trade_size                      成交数量分布
//   - trades_sim_skipped_total                    被跳过的钱包数
//   - trades_sim_proxy_refresh_total{result}      移动代理刷新次数
//   - trades_sim_sessions_total{strategy}         已完成会话数
//   - trades_sim_dropped_wallets_total            分支模式下未分配的钱包数
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"trades-sim/internal/execution"
	"trades-sim/internal/session"
)

// Metrics 持有独立的 Registry，避免污染全局默认注册表。
type Metrics struct {
	registry *prometheus.Registry

	trades    *prometheus.CounterVec
	tradeSize prometheus.Histogram
	skipped   prometheus.Counter
	refreshes *prometheus.CounterVec
	sessions  *prometheus.CounterVec
	dropped   prometheus.Counter
}

// New 创建并注册全部指标。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trades_sim_trades_total",
				Help: "Simulated trades by status and direction",
			},
			[]string{"status", "direction"},
		),
		tradeSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trades_sim_trade_size",
				Help:    "Requested size of simulated trades",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 1000, 10000},
			},
		),
		skipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trades_sim_skipped_total",
				Help: "Wallets skipped because index or proxy resolution failed",
			},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trades_sim_proxy_refresh_total",
				Help: "Mobile proxy refresh attempts by result",
			},
			[]string{"result"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trades_sim_sessions_total",
				Help: "Completed sessions by strategy",
			},
			[]string{"strategy"},
		),
		dropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trades_sim_dropped_wallets_total",
				Help: "Wallets left unassigned by the branch strategy",
			},
		),
	}

	m.registry.MustRegister(m.trades, m.tradeSize, m.skipped, m.refreshes, m.sessions, m.dropped)
	return m
}

// Registry 返回指标注册表，供 /metrics 使用。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTrade 实现 session.Recorder。
func (m *Metrics) RecordTrade(_ context.Context, _ string, result execution.TradeResult) {
	m.trades.WithLabelValues(string(result.Status), string(result.Details.Direction)).Inc()
	m.tradeSize.Observe(result.Details.Size)
}

// RecordSkip 实现 session.Recorder。
func (m *Metrics) RecordSkip(context.Context, string, session.Skip) {
	m.skipped.Inc()
}

// ObserveRefresh 实现 proxy.Observer。
func (m *Metrics) ObserveRefresh(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshes.WithLabelValues(result).Inc()
}

// ObserveSession 记录一次完成的会话。
func (m *Metrics) ObserveSession(report session.Report) {
	m.sessions.WithLabelValues(string(report.Strategy)).Inc()
	m.dropped.Add(float64(report.Dropped))
}
