package execution

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"trades-sim/internal/wallet"
)

// Options 控制模拟成交参数。
type Options struct {
	BalanceLimit float64       // 超过该数量视为余额不足
	MinLatency   time.Duration // 模拟网络延迟下限
	MaxLatency   time.Duration // 模拟网络延迟上限
	UserAgents   []string
	Seed         uint64 // 0 表示随机种子

	// 以下字段主要用于测试注入
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func (o Options) normalize() Options {
	if o.BalanceLimit <= 0 {
		o.BalanceLimit = 10000
	}
	if o.MaxLatency < o.MinLatency {
		o.MaxLatency = o.MinLatency
	}
	if o.Sleep == nil {
		o.Sleep = SleepContext
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Simulator 在本地生成伪交易及签名，不访问任何外部系统。
type Simulator struct {
	opts   Options
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator 创建模拟执行器。
func NewSimulator(opts Options, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.normalize()

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Simulator{
		opts:   opts,
		logger: logger,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Execute 执行一次模拟交易。业务失败通过 StatusFailed 返回，不返回 error。
func (s *Simulator) Execute(ctx context.Context, req TradeRequest) TradeResult {
	txID, latency, userAgent := s.draw()

	details := TradeDetails{
		Asset:        req.Asset,
		Direction:    req.Direction,
		Size:         req.Size,
		Wallet:       wallet.Mask(req.Wallet, 10),
		Proxy:        req.Proxy.Address,
		AccountIndex: req.AccountIndex,
		UserAgent:    userAgent,
	}

	s.logger.Info("执行模拟交易",
		zap.String("tx_id", txID),
		zap.String("wallet", details.Wallet),
		zap.String("direction", string(req.Direction)),
		zap.Float64("size", req.Size),
		zap.String("asset", req.Asset),
	)

	if req.Size > s.opts.BalanceLimit {
		s.logger.Warn("模拟交易失败: 余额不足",
			zap.String("wallet", details.Wallet),
			zap.Float64("size", req.Size),
			zap.Float64("limit", s.opts.BalanceLimit),
		)
		return s.failed(txID, ErrInsufficientBalance, details)
	}

	if err := s.opts.Sleep(ctx, latency); err != nil {
		return s.failed(txID, err.Error(), details)
	}

	message := SignatureMessage(txID, req.Asset, req.Direction, req.Size)
	signature := Sign(req.Wallet, message)

	s.logger.Info("模拟交易成功", zap.String("tx_id", txID))
	return TradeResult{
		Status:    StatusSuccess,
		TxID:      txID,
		Signature: signature,
		Timestamp: s.opts.Now().UTC(),
		Details:   details,
	}
}

func (s *Simulator) failed(txID, reason string, details TradeDetails) TradeResult {
	return TradeResult{
		Status:    StatusFailed,
		TxID:      txID,
		Error:     reason,
		Timestamp: s.opts.Now().UTC(),
		Details:   details,
	}
}

// draw 在锁内完成全部随机抽样，保证并发调用安全。
func (s *Simulator) draw() (txID string, latency time.Duration, userAgent string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	suffix := 1000 + s.rng.IntN(9000)
	txID = fmt.Sprintf("tx_%d_%d", s.opts.Now().Unix(), suffix)

	latency = s.opts.MinLatency
	if span := s.opts.MaxLatency - s.opts.MinLatency; span > 0 {
		latency += time.Duration(s.rng.Float64() * float64(span))
	}

	if n := len(s.opts.UserAgents); n > 0 {
		userAgent = s.opts.UserAgents[s.rng.IntN(n)]
	}
	return txID, latency, userAgent
}

// SignatureMessage 拼接签名原文 tx_id:asset:direction:size。
func SignatureMessage(txID, asset string, direction Direction, size float64) string {
	return strings.Join([]string{
		txID,
		asset,
		string(direction),
		formatSize(size),
	}, ":")
}

// formatSize 按最短可逆表示输出数量，整数值保留 ".0"（2000 → "2000.0"），
// 指数小于 -4 或不小于 16 时使用科学计数法（1e-05、1e+16）。
func formatSize(size float64) string {
	if math.IsInf(size, 0) || math.IsNaN(size) {
		return strconv.FormatFloat(size, 'g', -1, 64)
	}
	sci := strconv.FormatFloat(size, 'e', -1, 64)
	exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if err == nil && size != 0 && (exp < -4 || exp >= 16) {
		return sci
	}
	s := strconv.FormatFloat(size, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Sign 以钱包私钥为 HMAC-SHA256 密钥计算 base64 签名。
// 私钥为十六进制（可带 0x 前缀）时使用解码后的字节，否则使用原始字符串。
func Sign(walletKey, message string) string {
	mac := hmac.New(sha256.New, signingKey(walletKey))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func signingKey(walletKey string) []byte {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(walletKey, "0x"), "0X")
	if key, err := hex.DecodeString(trimmed); err == nil && len(key) > 0 {
		return key
	}
	return []byte(walletKey)
}

// SleepContext 等待 d 或 ctx 结束。
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
