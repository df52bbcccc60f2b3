package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"trades-sim/internal/config"
)

var memorySeq atomic.Int64

// Store 封装 SQLite 连接。
type Store struct {
	db *sql.DB
}

// NewSQLite 根据配置初始化 SQLite 存储。
func NewSQLite(cfg config.DatabaseConfig) (*Store, error) {
	dsn := cfg.Path
	if cfg.InMemory {
		// 共享缓存保证同一进程内的多个连接看到同一个内存库
		dsn = fmt.Sprintf("file:trades_sim_%d?mode=memory&cache=shared", memorySeq.Add(1))
	} else {
		if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
			return nil, err
		}
		dsn = "file:" + dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	conn, err := sql.Open("sqlite3", dsn+sep+"_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 数据库失败: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 || cfg.InMemory {
		// 共享缓存下并发写入返回 SQLITE_LOCKED，busy_timeout 无效
		maxOpen = 1
	}
	maxIdle, lifetime := cfg.MaxIdleConns, cfg.ConnMaxLifetime
	if cfg.InMemory {
		// 最后一个连接关闭时内存库随之销毁，必须常驻一个连接
		maxIdle, lifetime = 1, 0
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(lifetime)

	if !cfg.InMemory {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("设置 SQLite WAL 模式失败: %w", err)
		}
	}

	if _, err := conn.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("设置 SQLite 同步级别失败: %w", err)
	}

	return &Store{db: conn}, nil
}

// DB 返回底层 *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate 依次执行建表语句。
func (s *Store) Migrate(ctx context.Context, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: 执行建表语句失败: %w", err)
		}
	}
	return nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("创建目录 %q 失败: %w", path, err)
	}
	return nil
}
