package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"trades-sim/internal/app"
	"trades-sim/internal/config"
	"trades-sim/internal/log"
	"trades-sim/internal/store"
	"trades-sim/internal/wallet"
)

func main() {
	var (
		configPath string
		envPath    string
		mode       string
		addWallet  string
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.StringVar(&envPath, "env", ".env", "环境变量文件路径，不存在时忽略")
	flag.StringVar(&mode, "mode", "", "覆盖 app.execution_mode：parallel | branch | both")
	flag.StringVar(&addWallet, "add-wallet", "", "向钱包文件追加一个私钥后退出")
	flag.Parse()

	// .env 中的 TRADES_* 变量会被 viper 读取
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "加载环境变量文件失败: %v\n", err)
		os.Exit(1)
	}

	if mode != "" {
		if err := os.Setenv("TRADES_APP_EXECUTION_MODE", strings.ToLower(mode)); err != nil {
			fmt.Fprintf(os.Stderr, "设置执行模式失败: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	if addWallet != "" {
		wallets := wallet.NewStore(cfg.Wallets.KeysFile, logger)
		if err := wallets.Append(strings.TrimSpace(addWallet)); err != nil {
			logger.Error("追加钱包失败", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	simApp := app.New(cfg, logger, sqliteStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := simApp.Run(ctx); err != nil {
		logger.Error("系统运行异常", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("系统已安全退出")
}
