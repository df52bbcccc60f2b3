package monitor

import (
	"time"

	"trades-sim/internal/execution"
	"trades-sim/internal/session"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventSessionStart   EventType = "session_start"
	EventTrade          EventType = "trade"
	EventSkip           EventType = "skip"
	EventSessionSummary EventType = "session_summary"
	EventError          EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	RunID     string      `json:"run_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SessionStartPayload 记录会话启动参数。
type SessionStartPayload struct {
	Strategy    session.Strategy `json:"strategy"`
	Wallets     int              `json:"wallets"`
	Proxies     int              `json:"proxies"`
	Assets      []string         `json:"assets"`
	Direction   string           `json:"direction"`
	ThreadCount int              `json:"thread_count,omitempty"`
	MaxBranches int              `json:"max_branches,omitempty"`
}

// TradePayload 记录单笔模拟成交。
type TradePayload struct {
	Result execution.TradeResult `json:"result"`
}

// SkipPayload 记录被跳过的钱包。
type SkipPayload struct {
	Skip session.Skip `json:"skip"`
}

// SessionSummaryPayload 记录会话汇总，不含逐笔结果。
type SessionSummaryPayload struct {
	Strategy   session.Strategy        `json:"strategy"`
	State      session.State           `json:"state"`
	Total      int                     `json:"total"`
	Succeeded  int                     `json:"succeeded"`
	Failed     int                     `json:"failed"`
	Skipped    int                     `json:"skipped"`
	Dropped    int                     `json:"dropped"`
	Branches   []session.BranchSummary `json:"branches,omitempty"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Error      string                  `json:"error,omitempty"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func summarize(report session.Report, runErr error) SessionSummaryPayload {
	succeeded := report.Succeeded()
	payload := SessionSummaryPayload{
		Strategy:   report.Strategy,
		State:      report.State,
		Total:      len(report.Results),
		Succeeded:  succeeded,
		Failed:     len(report.Results) - succeeded,
		Skipped:    report.Skipped,
		Dropped:    report.Dropped,
		Branches:   report.Branches,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if runErr != nil {
		payload.Error = runErr.Error()
	}
	return payload
}
