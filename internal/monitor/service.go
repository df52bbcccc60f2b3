package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trades-sim/internal/execution"
	"trades-sim/internal/session"
	"trades-sim/internal/store"
)

var _ session.Recorder = (*Service)(nil)

// Service 负责持久化监控事件，并推送给实时订阅者。
type Service struct {
	db     *sql.DB
	hub    *Hub
	logger *zap.Logger
	now    func() time.Time
}

// NewService 初始化监控服务，创建所需表结构。hub 可为空。
func NewService(store *store.Store, hub *Hub, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		hub:    hub,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := store.Migrate(context.Background(),
		`CREATE TABLE IF NOT EXISTS monitor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	run_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_monitor_events_run ON monitor_events(run_id)`,
	); err != nil {
		return nil, fmt.Errorf("monitor: 初始化表失败: %w", err)
	}

	return s, nil
}

// Hub 返回实时推送中心，可能为空。
func (s *Service) Hub() *Hub {
	return s.hub
}

// Record 写入单个事件并广播。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (event_type, run_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		string(event.Type), event.RunID, string(payload), event.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	if s.hub != nil {
		s.hub.Broadcast(event)
	}
	return nil
}

// RecordSessionStart 记录会话启动。
func (s *Service) RecordSessionStart(ctx context.Context, runID string, payload SessionStartPayload) {
	if err := s.Record(ctx, Event{
		Type:    EventSessionStart,
		RunID:   runID,
		Payload: payload,
	}); err != nil {
		s.logger.Warn("记录会话启动事件失败", zap.Error(err))
	}
}

// RecordTrade 记录单笔模拟成交，实现 session.Recorder。
func (s *Service) RecordTrade(ctx context.Context, runID string, result execution.TradeResult) {
	if err := s.Record(ctx, Event{
		Type:      EventTrade,
		RunID:     runID,
		Timestamp: result.Timestamp,
		Payload:   TradePayload{Result: result},
	}); err != nil {
		s.logger.Warn("记录成交事件失败", zap.Error(err))
	}
}

// RecordSkip 记录被跳过的钱包，实现 session.Recorder。
func (s *Service) RecordSkip(ctx context.Context, runID string, skip session.Skip) {
	if err := s.Record(ctx, Event{
		Type:    EventSkip,
		RunID:   runID,
		Payload: SkipPayload{Skip: skip},
	}); err != nil {
		s.logger.Warn("记录跳过事件失败", zap.Error(err))
	}
}

// RecordSummary 记录会话汇总。
func (s *Service) RecordSummary(ctx context.Context, report session.Report, runErr error) {
	if err := s.Record(ctx, Event{
		Type:    EventSessionSummary,
		RunID:   report.RunID,
		Payload: summarize(report, runErr),
	}); err != nil {
		s.logger.Warn("记录会话汇总事件失败", zap.Error(err))
	}
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Context: ctxMap,
	}
	if err != nil {
		payload.Error = err.Error()
	}
	if recErr := s.Record(ctx, Event{
		Type:    EventError,
		Payload: payload,
	}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// Query 为事件检索条件，零值表示不过滤。
type Query struct {
	Type  EventType
	RunID string
	Limit int
}

// ListEvents 检索最近事件，按写入顺序倒序返回。
func (s *Service) ListEvents(ctx context.Context, q Query) ([]Event, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, run_id, payload, created_at FROM monitor_events WHERE 1=1`
	args := make([]interface{}, 0, 3)
	if q.Type != "" {
		query += ` AND event_type = ?`
		args = append(args, string(q.Type))
	}
	if q.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, q.RunID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			runID   string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &runID, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, created)
		if parseErr != nil {
			ts = s.now()
		}

		events = append(events, Event{
			Type:      EventType(typ),
			RunID:     runID,
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return events, nil
}
