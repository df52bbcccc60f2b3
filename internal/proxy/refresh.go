package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPRefresher 通过 GET 刷新地址触发换 IP。
type HTTPRefresher struct {
	client *http.Client
}

// NewHTTPRefresher 创建刷新器，timeout<=0 时使用 10s。
func NewHTTPRefresher(timeout time.Duration) *HTTPRefresher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRefresher{
		client: &http.Client{Timeout: timeout},
	}
}

// Refresh 请求刷新地址，非 2xx 视为失败。
func (r *HTTPRefresher) Refresh(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("proxy: 构造刷新请求失败: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("proxy: 刷新请求失败: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("proxy: 刷新返回状态码 %d", resp.StatusCode)
	}
	return nil
}
