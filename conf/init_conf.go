package conf

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var (
	Net  string = ""
	Port string = ""

	LogLevel  string = ""
	LogPretty bool   = false

	RdsDriver       string = ""
	RdsDsn          string = ""
	RdsMaxOpenConns int    = 0
	RdsMaxIdleConns int    = 0

	// 内部接口 API Key (X-API-KEY)
	APIKey = ""

	// Bearer/握手令牌校验
	AuthJwtSecret string = ""
	AuthIssuer    string = ""

	PebbleDBPath string = ""

	RedisEnabled       bool   = false
	RedisAddr          string = ""
	RedisPassword      string = ""
	RedisDB            int    = 0
	RedisHistoryTTL    string = ""
	RedisDomainChannel string = ""

	SocketPath         string = ""
	SocketPingInterval string = ""
	SocketPingTimeout  string = ""

	PushCenterEnabled bool   = false
	PushCenterWorkers int    = 0
	PushSendTimeout   string = ""
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("net", "local")
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("rds.driver", "mysql")
	v.SetDefault("rds.max_open_conns", 20)
	v.SetDefault("rds.max_idle_conns", 5)
	v.SetDefault("auth.issuer", "marketplace-auth")
	v.SetDefault("pebble.db_path", "./data/live_pebble")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.history_ttl", "30s")
	v.SetDefault("redis.domain_channel", "live:domain_events")
	v.SetDefault("socket.path", "/socket.io/")
	v.SetDefault("socket.ping_interval", "25s")
	v.SetDefault("socket.ping_timeout", "20s")
	v.SetDefault("push_center.enabled", true)
	v.SetDefault("push_center.workers", 4)
	v.SetDefault("push_center.send_timeout", "5s")
}

func InitConfig(configPath string) {
	if configPath == "" {
		configPath = GetYaml()
	}
	fmt.Printf("configPath:%s\n", configPath)

	v := viper.GetViper()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		panic(fmt.Errorf("Fatal error config file: %s \n", err))
	}
	load(v)
}

func load(v *viper.Viper) {
	Net = v.GetString("net")
	Port = v.GetString("port")

	LogLevel = v.GetString("log.level")
	LogPretty = v.GetBool("log.pretty")

	RdsDriver = v.GetString("rds.driver")
	RdsDsn = v.GetString("rds.dsn")
	RdsMaxOpenConns = v.GetInt("rds.max_open_conns")
	RdsMaxIdleConns = v.GetInt("rds.max_idle_conns")

	APIKey = v.GetString("api_key")

	AuthJwtSecret = v.GetString("auth.jwt_secret")
	AuthIssuer = v.GetString("auth.issuer")

	PebbleDBPath = v.GetString("pebble.db_path")

	RedisEnabled = v.GetBool("redis.enabled")
	RedisAddr = v.GetString("redis.addr")
	RedisPassword = v.GetString("redis.password")
	RedisDB = v.GetInt("redis.db")
	RedisHistoryTTL = v.GetString("redis.history_ttl")
	RedisDomainChannel = v.GetString("redis.domain_channel")

	SocketPath = v.GetString("socket.path")
	SocketPingInterval = v.GetString("socket.ping_interval")
	SocketPingTimeout = v.GetString("socket.ping_timeout")

	PushCenterEnabled = v.GetBool("push_center.enabled")
	PushCenterWorkers = v.GetInt("push_center.workers")
	PushSendTimeout = v.GetString("push_center.send_timeout")
}
