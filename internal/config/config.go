package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "trades"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	return decode(v)
}

// Defaults 返回仅由默认值构成的配置，主要用于测试与示例。
func Defaults() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	c.App.ExecutionMode = strings.ToLower(strings.TrimSpace(c.App.ExecutionMode))
	c.Proxies.ProxyType = strings.ToLower(strings.TrimSpace(c.Proxies.ProxyType))
	c.Session.PositionDirection = strings.ToLower(strings.TrimSpace(c.Session.PositionDirection))
	c.Session.AccountIndexMode = strings.ToLower(strings.TrimSpace(c.Session.AccountIndexMode))

	assets := make([]string, 0, len(c.Session.TradingAssets))
	for _, a := range c.Session.TradingAssets {
		if s := strings.ToUpper(strings.TrimSpace(a)); s != "" {
			assets = append(assets, s)
		}
	}
	c.Session.TradingAssets = assets
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.execution_mode", ExecutionModeBranch)

	v.SetDefault("wallets.keys_file", "wallet_keys.txt")
	v.SetDefault("wallets.strict", false)

	v.SetDefault("proxies.proxy_file", "proxies.txt")
	v.SetDefault("proxies.proxy_type", ProxyTypeRegular)
	v.SetDefault("proxies.strict", false)
	v.SetDefault("proxies.refresh_timeout", "10s")

	v.SetDefault("session.thread_count", 10)
	v.SetDefault("session.launch_delay.min", "0s")
	v.SetDefault("session.launch_delay.max", "20s")
	v.SetDefault("session.branch_wallet_range.min", 2)
	v.SetDefault("session.branch_wallet_range.max", 5)
	v.SetDefault("session.max_parallel_branches", 5)
	v.SetDefault("session.trading_assets", []string{"BTC", "ETH", "SOL"})
	v.SetDefault("session.position_direction", DirectionRandom)
	v.SetDefault("session.volume_percentage_range.min", 10.0)
	v.SetDefault("session.volume_percentage_range.max", 50.0)
	v.SetDefault("session.enable_shuffling", true)
	v.SetDefault("session.enable_logs", true)
	v.SetDefault("session.concurrent", false)
	v.SetDefault("session.account_index_mode", IndexModePosition)
	v.SetDefault("session.seed", 0)

	v.SetDefault("simulator.balance_limit", 10000.0)
	v.SetDefault("simulator.min_latency", "500ms")
	v.SetDefault("simulator.max_latency", "2s")
	v.SetDefault("simulator.user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
		"Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36",
	})

	v.SetDefault("database.path", "data/trades_sim.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
	v.SetDefault("logging.session_log_dir", "logs")

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.port", 8090)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHook(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHook 将不带单位的数字按秒解析为时长，例如 launch_delay.max: 20。
// 带单位的字符串（"20s"、"500ms"）交给 StringToTimeDurationHookFunc。
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != durationType || from == durationType {
			return data, nil
		}

		var seconds float64
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			seconds = float64(reflect.ValueOf(data).Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			seconds = float64(reflect.ValueOf(data).Uint())
		case reflect.Float32, reflect.Float64:
			seconds = reflect.ValueOf(data).Float()
		case reflect.String:
			v, err := strconv.ParseFloat(strings.TrimSpace(reflect.ValueOf(data).String()), 64)
			if err != nil {
				return data, nil
			}
			seconds = v
		default:
			return data, nil
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}
}
