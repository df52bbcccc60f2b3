package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"
)

// LoadOutcome 区分来源缺失与正常加载。
type LoadOutcome int

const (
	LoadOK LoadOutcome = iota
	LoadAbsent
)

// Proxy 描述一个出口代理，带刷新地址的为移动代理。
type Proxy struct {
	Address         string `json:"address"`
	Credentials     string `json:"-"`
	RefreshEndpoint string `json:"refresh_endpoint,omitempty"`
}

// IsMobile 判断是否为移动代理。
func (p Proxy) IsMobile() bool {
	return p.RefreshEndpoint != ""
}

// URL 返回 http://credentials@address 形式的代理地址。
func (p Proxy) URL() *url.URL {
	u := &url.URL{Scheme: "http", Host: p.Address}
	if p.Credentials != "" {
		user, pass, ok := strings.Cut(p.Credentials, ":")
		if ok {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}
	return u
}

// ParseError 表示代理行格式错误。
type ParseError struct {
	Line int
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	// 单独调用 ParseLine 时没有行号
	if e.Line <= 0 {
		return fmt.Sprintf("proxy: 格式错误 (%s): %q", e.Msg, e.Text)
	}
	return fmt.Sprintf("proxy: 第 %d 行格式错误 (%s): %q", e.Line, e.Msg, e.Text)
}

// ParseLine 解析 address@credentials 或 address@credentials|refresh_endpoint。
func ParseLine(line string) (Proxy, error) {
	raw := strings.TrimSpace(line)

	body, refresh := raw, ""
	if strings.Contains(raw, "|") {
		parts := strings.Split(raw, "|")
		if len(parts) != 2 {
			return Proxy{}, &ParseError{Text: raw, Msg: "'|' 只能出现一次"}
		}
		body, refresh = parts[0], strings.TrimSpace(parts[1])
		if refresh == "" {
			return Proxy{}, &ParseError{Text: raw, Msg: "刷新地址为空"}
		}
	}

	parts := strings.Split(body, "@")
	if len(parts) != 2 {
		return Proxy{}, &ParseError{Text: raw, Msg: "需要且仅需要一个 '@'"}
	}
	address := strings.TrimSpace(parts[0])
	if address == "" {
		return Proxy{}, &ParseError{Text: raw, Msg: "地址为空"}
	}

	return Proxy{
		Address:         address,
		Credentials:     strings.TrimSpace(parts[1]),
		RefreshEndpoint: refresh,
	}, nil
}

// Parse 逐行解析代理列表，任一行格式错误则整体失败。
func Parse(r io.Reader) ([]Proxy, error) {
	scanner := bufio.NewScanner(r)
	proxies := make([]Proxy, 0, 16)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		p, err := ParseLine(line)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Line = lineNo
			}
			return nil, err
		}
		proxies = append(proxies, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("proxy: 读取代理列表失败: %w", err)
	}
	return proxies, nil
}

// Load 读取代理文件，文件不存在时返回 LoadAbsent。
func Load(path string) ([]Proxy, LoadOutcome, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, LoadAbsent, nil
		}
		return nil, LoadOK, fmt.Errorf("proxy: 打开代理文件失败: %w", err)
	}
	defer f.Close()

	proxies, err := Parse(f)
	if err != nil {
		return nil, LoadOK, err
	}
	return proxies, LoadOK, nil
}
