package conf

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultLiveBaseURL 未设置 LIVE_BASE_URL 时使用的默认地址
const DefaultLiveBaseURL = "http://localhost:8080"

// ClientConfig 客户端 SDK 配置，每个字段对应一个 LIVE_* 环境变量
type ClientConfig struct {
	BaseURL           string
	SocketPath        string
	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	PollInterval      time.Duration
	TypingTTL         time.Duration
}

// LoadClientConfig 从环境变量读取客户端配置
func LoadClientConfig() *ClientConfig {
	v := viper.New()
	v.SetEnvPrefix("live")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("base_url", DefaultLiveBaseURL)
	v.SetDefault("socket_path", "/socket.io/")
	v.SetDefault("connect_timeout", 10*time.Second)
	v.SetDefault("reconnect_attempts", 5)
	v.SetDefault("reconnect_delay", time.Second)
	v.SetDefault("reconnect_max_delay", 5*time.Second)
	v.SetDefault("poll_interval", 30*time.Second)
	v.SetDefault("typing_ttl", time.Second)

	return &ClientConfig{
		BaseURL:           strings.TrimRight(v.GetString("base_url"), "/"),
		SocketPath:        v.GetString("socket_path"),
		ConnectTimeout:    v.GetDuration("connect_timeout"),
		ReconnectAttempts: v.GetInt("reconnect_attempts"),
		ReconnectDelay:    v.GetDuration("reconnect_delay"),
		ReconnectMaxDelay: v.GetDuration("reconnect_max_delay"),
		PollInterval:      v.GetDuration("poll_interval"),
		TypingTTL:         v.GetDuration("typing_ttl"),
	}
}
