package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"trades-sim/internal/config"
)

// NewLogger 根据配置创建 zap.Logger。
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}
	if len(cfg.ErrorOutputPaths) == 0 {
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	encoderConfig := baseEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         cfg.Encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: cfg.ErrorOutputPaths,
		InitialFields:    map[string]interface{}{"service": "trades-sim"},
	}

	logger, err := zapCfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("创建日志实例失败: %w", err)
	}

	return logger, nil
}

// WithSessionFile 额外把日志写入 trading_<钱包数>_<时间戳>.txt，返回新 logger 与关闭函数。
func WithSessionFile(logger *zap.Logger, cfg config.LoggingConfig, walletCount int, now time.Time) (*zap.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	dir := cfg.SessionLogDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("创建日志目录 %q 失败: %w", dir, err)
	}

	name := fmt.Sprintf("trading_%d_%s.txt", walletCount, now.Format("20060102_150405"))
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("打开会话日志 %q 失败: %w", path, err)
	}

	encoderConfig := baseEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	fileCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(file),
		zap.NewAtomicLevelAt(level),
	)

	teed := logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
	teed.Info("会话日志已开启", zap.String("path", path))

	closeFn := func() error {
		_ = teed.Sync()
		return file.Close()
	}
	return teed, closeFn, nil
}

func parseLevel(raw string) (zapcore.Level, error) {
	level := zapcore.InfoLevel
	if raw == "" {
		return level, nil
	}
	if err := level.Set(strings.ToLower(raw)); err != nil {
		return level, fmt.Errorf("解析日志级别失败: %w", err)
	}
	return level, nil
}

func baseEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.TimeKey = "ts"
	encoderConfig.NameKey = "logger"
	encoderConfig.CallerKey = "caller"
	encoderConfig.FunctionKey = zapcore.OmitKey
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return encoderConfig
}
