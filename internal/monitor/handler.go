package monitor

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultEventLimit = 200
	maxEventLimit     = 1000
)

// NewHandler 组装监控接口：/events 查询历史事件，/metrics 暴露指标，/ws 实时推送。
// gatherer 为空时不注册 /metrics。
func NewHandler(svc *Service, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query := Query{
			Limit: defaultEventLimit,
			RunID: strings.TrimSpace(q.Get("run_id")),
		}
		if qs := q.Get("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				query.Limit = min(v, maxEventLimit)
			}
		}
		if typ := strings.TrimSpace(q.Get("type")); typ != "" {
			query.Type = EventType(strings.ToLower(typ))
		}

		events, err := svc.ListEvents(r.Context(), query)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(events); err != nil {
			logger.Warn("写入监控响应失败", zap.Error(err))
		}
	})

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	if hub := svc.Hub(); hub != nil {
		mux.Handle("/ws", hub)
	}
	return mux
}
