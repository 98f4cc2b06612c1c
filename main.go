package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-notify-service/conf"
	"live-notify-service/controller"
	"live-notify-service/controller/auth"
	"live-notify-service/logger"
	"live-notify-service/major"
	"live-notify-service/service/cache_service"
	"live-notify-service/service/chat_service"
	"live-notify-service/service/event_bus"
	"live-notify-service/service/history_service"
	"live-notify-service/service/live_server"
	"live-notify-service/service/pebble_service"
	pushcenter "live-notify-service/service/push_center"
	"live-notify-service/service/push_service"
	"live-notify-service/service/room_router"
	"live-notify-service/service/store_service"
	"live-notify-service/tool"

	"github.com/redis/go-redis/v9"
)

// app 持有退出时需要关闭的组件
type app struct {
	pebble     *pebble_service.PebbleService
	redis      *redis.Client
	bus        *event_bus.RedisBus
	pushes     *push_service.Manager
	pushCenter *pushcenter.PushCenter
	live       *live_server.Server
	http       *http.Server
}

func initApp() (*app, error) {
	a := &app{}
	log := logger.L()

	// 1. 初始化数据库
	major.InitSqlConfig()
	db := major.GetSqlDB()

	// 2. 初始化 Pebble 数据库（已读回执、投递记录）
	a.pebble = pebble_service.NewPebbleService(&pebble_service.Config{
		DBPath: tool.StringWithDefault(conf.PebbleDBPath, "./data/live_pebble"),
	})
	if err := a.pebble.Initialize(); err != nil {
		return nil, fmt.Errorf("init pebble: %w", err)
	}

	// 3. 连接 Redis，未配置时跳过缓存和事件总线
	rdb, err := major.OpenRedis(context.Background())
	if err != nil {
		return nil, err
	}
	a.redis = rdb

	convs := store_service.NewConversationRepository(db)
	messages := store_service.NewMessageRepository(db)
	notifications := store_service.NewNotificationRepository(db)

	var (
		historyCache cache_service.HistoryCache
		subscriber   event_bus.Subscriber
	)
	if rdb != nil {
		historyCache = cache_service.NewRedisHistoryCache(rdb, "live:history")
		a.bus = event_bus.NewRedisBus(rdb)
		subscriber = a.bus
	}

	router := room_router.NewRouter()

	// 4. 创建推送服务管理器并注册推送提供者
	a.pushes = push_service.NewManager()
	if err := a.pushes.RegisterLiveProvider(router); err != nil {
		return nil, err
	}
	if a.bus != nil {
		if err := a.pushes.RegisterBusProvider(a.bus, conf.RedisDomainChannel+":pushed"); err != nil {
			return nil, err
		}
	}
	if err := a.pushes.Start(); err != nil {
		return nil, err
	}

	// 5. 创建并启动推送中心
	a.pushCenter = pushcenter.NewPushCenter(&pushcenter.Config{
		Workers:       tool.IntWithDefault(conf.PushCenterWorkers, 4),
		SendTimeout:   tool.ParseDuration(conf.PushSendTimeout, 5*time.Second),
		DomainChannel: conf.RedisDomainChannel,
	}, notifications, a.pebble, a.pushes, subscriber)
	if conf.PushCenterEnabled {
		if err := a.pushCenter.Run(); err != nil {
			return nil, err
		}
	} else {
		log.Info().Msg("push center domain consumer disabled")
	}

	chat := chat_service.NewService(convs, messages, router, a.pushCenter, nil)
	history := history_service.NewService(convs, messages, notifications, a.pebble, historyCache,
		tool.ParseDuration(conf.RedisHistoryTTL, 30*time.Second))

	// 6. 创建 socket.io 实时服务
	tokens := auth.NewTokenManager(conf.AuthJwtSecret, conf.AuthIssuer, 0)
	a.live = live_server.NewServer(&live_server.Config{
		Path:         tool.StringWithDefault(conf.SocketPath, "/socket.io/"),
		PingInterval: tool.ParseDuration(conf.SocketPingInterval, 25*time.Second),
		PingTimeout:  tool.ParseDuration(conf.SocketPingTimeout, 20*time.Second),
	}, chat, func(token string) (*live_server.Identity, error) {
		claims, err := tokens.Validate(token)
		if err != nil {
			return nil, err
		}
		return &live_server.Identity{UserID: claims.UserID, Role: claims.Role}, nil
	})

	// 7. 注册 HTTP 路由
	engine := controller.NewRouter(&controller.Deps{
		Tokens:        tokens,
		APIKey:        conf.APIKey,
		Conversations: history,
		Notifications: notifications,
		Publisher:     a.pushCenter,
		Live:          a.live.Handler(),
		LivePath:      conf.SocketPath,
		Health:        a.health,
	})
	a.http = &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%s", conf.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func (a *app) health(ctx context.Context) error {
	if _, err := a.pebble.Stats(); err != nil {
		return fmt.Errorf("pebble: %w", err)
	}
	if sqlDB, err := major.GetSqlDB().DB(); err != nil {
		return err
	} else if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// shutdown 按依赖逆序关闭各组件
func (a *app) shutdown() {
	log := logger.L()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.http.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	a.live.Close()
	if err := a.pushCenter.Stop(); err != nil {
		log.Error().Err(err).Msg("push center stop")
	}
	if err := a.pushes.Stop(); err != nil {
		log.Error().Err(err).Msg("push manager stop")
	}
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if err := a.pebble.Close(); err != nil {
		log.Error().Err(err).Msg("pebble close")
	}
	if err := major.CloseSqlDB(); err != nil {
		log.Error().Err(err).Msg("database close")
	}
}

// Package main
// @title 实时通知服务 API
// @version 1.0
// @description 实时聊天与通知推送服务，支持 REST 兜底接口
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-KEY
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	var env string
	flag.StringVar(&env, "env", "example", "env config: example, testnet, mainnet")
	flag.Parse()

	switch env {
	case "mainnet":
		conf.SystemEnvironmentEnum = conf.MainnetEnvironmentEnum
	case "testnet":
		conf.SystemEnvironmentEnum = conf.TestnetEnvironmentEnum
	default:
		conf.SystemEnvironmentEnum = conf.ExampleEnvironmentEnum
	}

	conf.InitConfig("")
	logger.Init(logger.Config{Level: conf.LogLevel, Pretty: conf.LogPretty, ServiceName: "live-notify-service"})
	log := logger.L()
	log.Info().Str("env", env).Str("port", conf.Port).Msg("starting live-notify-service")

	a, err := initApp()
	if err != nil {
		log.Fatal().Err(err).Msg("init failed")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 注册优雅关闭处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server failed")
	}
	a.shutdown()
}
