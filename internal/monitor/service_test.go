package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"trades-sim/internal/config"
	"trades-sim/internal/execution"
	"trades-sim/internal/session"
	"trades-sim/internal/store"
)

func newTestService(t *testing.T, hub *Hub) *Service {
	t.Helper()
	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(st, hub, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func sampleResult(status execution.Status) execution.TradeResult {
	return execution.TradeResult{
		Status:    status,
		TxID:      "tx_1704164645_1234",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Details: execution.TradeDetails{
			Asset:     "BTC",
			Direction: execution.DirectionLong,
			Size:      25,
			Wallet:    "0x12345678...",
		},
	}
}

func TestNewService_RequiresStore(t *testing.T) {
	if _, err := NewService(nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
}

func TestService_RecordAndList(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	svc.RecordSessionStart(ctx, "run-1", SessionStartPayload{Strategy: session.StrategyFlat, Wallets: 2, Proxies: 1})
	svc.RecordTrade(ctx, "run-1", sampleResult(execution.StatusSuccess))
	svc.RecordSkip(ctx, "run-1", session.Skip{Wallet: "0xabc...", AccountIndex: 1, Reason: "proxy unavailable"})
	svc.RecordTrade(ctx, "run-2", sampleResult(execution.StatusFailed))
	svc.RecordSummary(ctx, session.Report{
		RunID:    "run-1",
		Strategy: session.StrategyFlat,
		State:    session.StateDone,
		Results:  []execution.TradeResult{sampleResult(execution.StatusSuccess)},
		Skipped:  1,
	}, nil)
	svc.RecordError(ctx, "加载代理失败", errors.New("boom"), map[string]interface{}{"line": 3})

	all, err := svc.ListEvents(ctx, Query{})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 events, got %d", len(all))
	}
	if all[0].Type != EventError {
		t.Errorf("expected newest event first, got %s", all[0].Type)
	}

	trades, err := svc.ListEvents(ctx, Query{Type: EventTrade})
	if err != nil {
		t.Fatalf("list trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trade events, got %d", len(trades))
	}
	if !trades[0].Timestamp.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("expected trade timestamp preserved, got %s", trades[0].Timestamp)
	}

	run1, err := svc.ListEvents(ctx, Query{RunID: "run-1"})
	if err != nil {
		t.Fatalf("list run: %v", err)
	}
	if len(run1) != 4 {
		t.Fatalf("expected 4 events for run-1, got %d", len(run1))
	}

	summaries, err := svc.ListEvents(ctx, Query{Type: EventSessionSummary, Limit: 1})
	if err != nil {
		t.Fatalf("list summary: %v", err)
	}
	raw, ok := summaries[0].Payload.(json.RawMessage)
	if !ok {
		t.Fatalf("expected raw payload, got %T", summaries[0].Payload)
	}
	var summary SessionSummaryPayload
	if err := json.Unmarshal(raw, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Total != 1 || summary.Succeeded != 1 || summary.Failed != 0 || summary.Skipped != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestHandler_Events(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		svc.RecordTrade(ctx, "run", sampleResult(execution.StatusSuccess))
	}
	svc.RecordSkip(ctx, "run", session.Skip{AccountIndex: 0})

	srv := httptest.NewServer(NewHandler(svc, nil, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/events?type=TRADE&limit=2")
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
	var events []Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, e := range events {
		if e.Type != EventTrade {
			t.Errorf("expected trade event, got %s", e.Type)
		}
	}

	if resp, err := http.Get(srv.URL + "/ws"); err == nil {
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected /ws to be absent without hub, got %d", resp.StatusCode)
		}
	}
}

func TestHandler_Metrics(t *testing.T) {
	svc := newTestService(t, nil)
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "monitor_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Add(3)

	srv := httptest.NewServer(NewHandler(svc, registry, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "monitor_test_total 3") {
		t.Errorf("expected counter in exposition, got:\n%s", body)
	}
}

func TestHub_BroadcastsRecordedEvents(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	svc := newTestService(t, hub)

	srv := httptest.NewServer(NewHandler(svc, nil, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	svc.RecordTrade(context.Background(), "run-ws", sampleResult(execution.StatusSuccess))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type    EventType    `json:"type"`
		RunID   string       `json:"run_id"`
		Payload TradePayload `json:"payload"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != EventTrade || got.RunID != "run-ws" {
		t.Errorf("unexpected event %+v", got)
	}
	if got.Payload.Result.TxID != "tx_1704164645_1234" {
		t.Errorf("unexpected tx id %q", got.Payload.Result.TxID)
	}
}

func TestHub_CloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Close()
	if hub.Clients() != 0 {
		t.Fatalf("expected no subscribers after close")
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection to be closed")
	}
}
