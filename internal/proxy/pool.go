package proxy

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	TypeRegular = "regular"
	TypeMobile  = "mobile"
)

var (
	// ErrEmptyPool 表示代理池为空，无法按账户取模。
	ErrEmptyPool = errors.New("proxy: 代理池为空")
	// ErrInvalidIndex 表示账户下标为负。
	ErrInvalidIndex = errors.New("proxy: 账户下标不能为负")
)

// Refresher 触发移动代理换 IP。
type Refresher interface {
	Refresh(ctx context.Context, endpoint string) error
}

// Observer 接收刷新结果，用于统计。
type Observer interface {
	ObserveRefresh(err error)
}

// Options 控制代理池行为。
type Options struct {
	Type           string
	Refresher      Refresher
	RefreshTimeout time.Duration
	Observer       Observer
	Logger         *zap.Logger
}

// Pool 按账户下标取模分配代理，加载后不可变。
type Pool struct {
	proxies []Proxy
	opts    Options
	logger  *zap.Logger
}

// NewPool 创建代理池。
func NewPool(proxies []Proxy, opts Options) *Pool {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Type == "" {
		opts.Type = TypeRegular
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 10 * time.Second
	}
	if len(proxies) == 0 {
		logger.Error("没有可用的代理服务器")
	}
	return &Pool{
		proxies: append([]Proxy(nil), proxies...),
		opts:    opts,
		logger:  logger,
	}
}

// Len 返回代理数量。
func (p *Pool) Len() int {
	return len(p.proxies)
}

// Proxies 返回代理列表副本。
func (p *Pool) Proxies() []Proxy {
	return append([]Proxy(nil), p.proxies...)
}

// Select 返回 proxies[accountIndex mod len]。移动代理会先尝试刷新，刷新失败只记录日志。
func (p *Pool) Select(ctx context.Context, accountIndex int) (Proxy, error) {
	if len(p.proxies) == 0 {
		return Proxy{}, ErrEmptyPool
	}
	if accountIndex < 0 {
		return Proxy{}, ErrInvalidIndex
	}

	proxy := p.proxies[accountIndex%len(p.proxies)]
	p.logger.Debug("为账户分配代理",
		zap.Int("account_index", accountIndex),
		zap.String("proxy", proxy.Address),
	)

	if p.opts.Type == TypeMobile && proxy.IsMobile() {
		p.refresh(ctx, proxy)
	}
	return proxy, nil
}

func (p *Pool) refresh(ctx context.Context, proxy Proxy) {
	if p.opts.Refresher == nil {
		return
	}

	refreshCtx, cancel := context.WithTimeout(ctx, p.opts.RefreshTimeout)
	defer cancel()

	err := p.opts.Refresher.Refresh(refreshCtx, proxy.RefreshEndpoint)
	if p.opts.Observer != nil {
		p.opts.Observer.ObserveRefresh(err)
	}
	if err != nil {
		p.logger.Warn("刷新移动代理失败，继续使用当前代理",
			zap.String("proxy", proxy.Address),
			zap.String("refresh_endpoint", proxy.RefreshEndpoint),
			zap.Error(err),
		)
		return
	}
	p.logger.Info("移动代理已刷新", zap.String("refresh_endpoint", proxy.RefreshEndpoint))
}
