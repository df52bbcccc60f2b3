package execution

import (
	"time"

	"trades-sim/internal/proxy"
)

// Direction 表示开仓方向。
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Status 表示模拟成交结果。
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ErrInsufficientBalance 为余额不足时的错误描述。
const ErrInsufficientBalance = "insufficient balance"

// TradeRequest 描述一次针对单个钱包的模拟交易。
type TradeRequest struct {
	Wallet       string
	Asset        string
	Direction    Direction
	Size         float64
	AccountIndex int
	Proxy        proxy.Proxy
}

// TradeDetails 回显请求内容，钱包已脱敏。
type TradeDetails struct {
	Asset        string    `json:"asset"`
	Direction    Direction `json:"direction"`
	Size         float64   `json:"size"`
	Wallet       string    `json:"wallet"`
	Proxy        string    `json:"proxy,omitempty"`
	AccountIndex int       `json:"account_index"`
	UserAgent    string    `json:"user_agent,omitempty"`
}

// TradeResult 为模拟成交结果，仅记录与输出，不持久化为状态。
type TradeResult struct {
	Status    Status       `json:"status"`
	TxID      string       `json:"tx_id"`
	Signature string       `json:"signature,omitempty"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Details   TradeDetails `json:"details"`
}

// Succeeded 判断是否成交成功。
func (r TradeResult) Succeeded() bool {
	return r.Status == StatusSuccess
}
