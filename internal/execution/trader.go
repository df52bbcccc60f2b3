package execution

import "context"

// Trader 抽象执行器接口，方便切换模拟或其他实现。
type Trader interface {
	Execute(ctx context.Context, req TradeRequest) TradeResult
}

var _ Trader = (*Simulator)(nil)
