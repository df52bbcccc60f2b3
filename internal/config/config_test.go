package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults_Valid(t *testing.T) {
	cfg, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults returned error: %v", err)
	}
	if cfg.App.ExecutionMode != ExecutionModeBranch {
		t.Errorf("expected default execution mode branch, got %s", cfg.App.ExecutionMode)
	}
	if cfg.Session.LaunchDelay.Max != 20*time.Second {
		t.Errorf("expected launch_delay.max=20s, got %s", cfg.Session.LaunchDelay.Max)
	}
	if cfg.Session.BranchWalletRange != (IntRange{Min: 2, Max: 5}) {
		t.Errorf("unexpected branch range %+v", cfg.Session.BranchWalletRange)
	}
	if cfg.Simulator.BalanceLimit != 10000 {
		t.Errorf("expected balance_limit=10000, got %f", cfg.Simulator.BalanceLimit)
	}
	if len(cfg.Simulator.UserAgents) != 3 {
		t.Errorf("expected 3 default user agents, got %d", len(cfg.Simulator.UserAgents))
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  execution_mode: PARALLEL
session:
  thread_count: 3
  launch_delay:
    min: 1s
    max: 5s
  trading_assets: [btc, " eth "]
  position_direction: Long
proxies:
  proxy_type: mobile
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TRADES_SESSION_MAX_PARALLEL_BRANCHES", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.ExecutionMode != ExecutionModeParallel {
		t.Errorf("expected normalized mode parallel, got %s", cfg.App.ExecutionMode)
	}
	if cfg.Session.ThreadCount != 3 {
		t.Errorf("expected thread_count=3, got %d", cfg.Session.ThreadCount)
	}
	if cfg.Session.LaunchDelay.Min != time.Second || cfg.Session.LaunchDelay.Max != 5*time.Second {
		t.Errorf("unexpected launch delay %+v", cfg.Session.LaunchDelay)
	}
	if got := strings.Join(cfg.Session.TradingAssets, ","); got != "BTC,ETH" {
		t.Errorf("expected normalized assets BTC,ETH, got %s", got)
	}
	if cfg.Session.PositionDirection != DirectionLong {
		t.Errorf("expected direction long, got %s", cfg.Session.PositionDirection)
	}
	if cfg.Proxies.ProxyType != ProxyTypeMobile {
		t.Errorf("expected proxy type mobile, got %s", cfg.Proxies.ProxyType)
	}
	if cfg.Session.MaxParallelBranches != 7 {
		t.Errorf("expected env override max_parallel_branches=7, got %d", cfg.Session.MaxParallelBranches)
	}
}

func TestLoad_BareNumbersAreSeconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
session:
  launch_delay:
    min: 0
    max: 20
simulator:
  min_latency: 0.5
  max_latency: 2s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TRADES_PROXIES_REFRESH_TIMEOUT", "15")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Session.LaunchDelay.Min != 0 || cfg.Session.LaunchDelay.Max != 20*time.Second {
		t.Errorf("expected launch_delay 0s..20s, got %s..%s", cfg.Session.LaunchDelay.Min, cfg.Session.LaunchDelay.Max)
	}
	if cfg.Simulator.MinLatency != 500*time.Millisecond || cfg.Simulator.MaxLatency != 2*time.Second {
		t.Errorf("expected latency 500ms..2s, got %s..%s", cfg.Simulator.MinLatency, cfg.Simulator.MaxLatency)
	}
	if cfg.Proxies.RefreshTimeout != 15*time.Second {
		t.Errorf("expected env refresh_timeout=15s, got %s", cfg.Proxies.RefreshTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults returned error: %v", err)
	}

	cfg.App.ExecutionMode = "turbo"
	cfg.Session.BranchWalletRange = IntRange{Min: 1, Max: 3}
	cfg.Session.ThreadCount = 0
	cfg.Session.TradingAssets = nil
	cfg.Simulator.MinLatency = 3 * time.Second

	err = cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{
		"app.execution_mode",
		"branch_wallet_range.min 不能小于2",
		"session.thread_count",
		"session.trading_assets",
		"simulator.min_latency",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got %v", want, err)
		}
	}
}
