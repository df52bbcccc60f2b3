package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// startMonitorServer 在后台启动监控接口，返回实际监听地址与关闭函数。
func startMonitorServer(handler http.Handler, port int, logger *zap.Logger) (string, func() error, error) {
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("监听监控端口失败: %w", err)
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("监控服务异常", zap.Error(err))
		}
	}()

	shutdown := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("关闭监控服务失败: %w", err)
		}
		return nil
	}

	logger.Info("监控接口已启动", zap.String("addr", ln.Addr().String()))
	return ln.Addr().String(), shutdown, nil
}
