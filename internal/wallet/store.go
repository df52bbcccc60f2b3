package wallet

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// LoadOutcome 区分来源缺失与正常加载。
type LoadOutcome int

const (
	LoadOK LoadOutcome = iota
	LoadAbsent
)

func (o LoadOutcome) String() string {
	switch o {
	case LoadOK:
		return "ok"
	case LoadAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// Store 按加载顺序保存钱包私钥，文件是唯一的持久化来源。
type Store struct {
	mu     sync.RWMutex
	path   string
	keys   []string
	logger *zap.Logger
}

// NewStore 创建绑定到 path 的钱包存储，需调用 Load 读取内容。
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:   path,
		logger: logger,
	}
}

// Load 读取钱包文件。文件不存在时返回 LoadAbsent 且列表为空，不视为错误。
func (s *Store) Load() (LoadOutcome, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.mu.Lock()
			s.keys = nil
			s.mu.Unlock()
			s.logger.Warn("钱包文件不存在，使用空列表", zap.String("path", s.path))
			return LoadAbsent, nil
		}
		return LoadOK, fmt.Errorf("wallet: 打开钱包文件失败: %w", err)
	}
	defer f.Close()

	keys, err := ParseKeys(f)
	if err != nil {
		return LoadOK, fmt.Errorf("wallet: 读取钱包文件失败: %w", err)
	}

	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()

	if len(keys) == 0 {
		s.logger.Error("没有可用于交易的钱包", zap.String("path", s.path))
	}
	s.logger.Info("钱包加载完成", zap.String("path", s.path), zap.Int("count", len(keys)))
	return LoadOK, nil
}

// ParseKeys 每行解析一个私钥，忽略空行。
func ParseKeys(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	keys := make([]string, 0, 16)
	for scanner.Scan() {
		if key := strings.TrimSpace(scanner.Text()); key != "" {
			keys = append(keys, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Append 追加私钥到文件与内存，不做去重。
func (s *Store) Append(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("wallet: 私钥不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line := key + "\n"
	missing, err := missingTrailingNewline(s.path)
	if err != nil {
		return err
	}
	if missing {
		line = "\n" + line
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("wallet: 打开钱包文件失败: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("wallet: 写入钱包文件失败: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("wallet: 关闭钱包文件失败: %w", err)
	}

	s.keys = append(s.keys, key)
	s.logger.Info("新增钱包", zap.String("wallet", Mask(key, 10)))
	return nil
}

// missingTrailingNewline 判断已有文件是否非空且末尾缺少换行，文件不存在时返回 false。
func missingTrailingNewline(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("wallet: 打开钱包文件失败: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("wallet: 读取钱包文件信息失败: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, fmt.Errorf("wallet: 读取钱包文件失败: %w", err)
	}
	return last[0] != '\n', nil
}

// Lookup 按下标取钱包，越界时返回 false。
func (s *Store) Lookup(index int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.keys) {
		return "", false
	}
	return s.keys[index], true
}

// List 返回钱包列表副本。
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.keys...)
}

// Len 返回钱包数量。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Duplicates 返回出现多次的私钥，按首次出现顺序。
func (s *Store) Duplicates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(s.keys))
	for _, k := range s.keys {
		counts[k]++
	}
	var dups []string
	for _, k := range s.keys {
		if counts[k] > 1 {
			dups = append(dups, k)
			counts[k] = 0
		}
	}
	return dups
}

// Mask 截断私钥用于展示。
func Mask(key string, n int) string {
	if n <= 0 || len(key) <= n {
		return key
	}
	return key[:n] + "..."
}
