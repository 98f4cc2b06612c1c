// chat_client 实时服务的终端客户端。标准输入的每一行作为消息发送到会话，
// 以斜杠开头的是命令
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"live-notify-service/conf"
	"live-notify-service/logger"
	"live-notify-service/models"
	"live-notify-service/service/connection_manager"
	"live-notify-service/service/history_client"
	"live-notify-service/service/message_channel"
	"live-notify-service/service/notification_fanout"
	"live-notify-service/tool"
)

const usage = `commands:
  /read            mark the conversation read
  /older           load the previous history page
  /inbox           list unread notifications
  /readall         mark every notification read
  /quit            leave`

func main() {
	var (
		userID         string
		token          string
		conversationID string
		peer           string
		logLevel       string
	)
	flag.StringVar(&userID, "user", "", "your user id")
	flag.StringVar(&token, "token", os.Getenv("LIVE_TOKEN"), "bearer token (default $LIVE_TOKEN)")
	flag.StringVar(&conversationID, "conversation", "", "conversation to open")
	flag.StringVar(&peer, "to", "", "receiver id; inferred from history when empty")
	flag.StringVar(&logLevel, "log-level", "warn", "log level")
	flag.Parse()

	logger.Init(logger.Config{Level: logLevel, Pretty: true, ServiceName: "chat_client"})
	log := logger.Component("chat_client")

	if conversationID == "" {
		fmt.Fprintln(os.Stderr, "missing -conversation")
		os.Exit(2)
	}

	cfg := conf.LoadClientConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := connection_manager.NewManager(
		connection_manager.NewSocketIODialer(cfg.BaseURL, cfg.SocketPath, cfg.ConnectTimeout),
		connection_manager.Config{
			ReconnectAttempts: cfg.ReconnectAttempts,
			ReconnectDelay:    cfg.ReconnectDelay,
			ReconnectMaxDelay: cfg.ReconnectMaxDelay,
			ConnectTimeout:    cfg.ConnectTimeout,
		},
		nil,
	)
	defer mgr.Close()

	api := history_client.NewClient(cfg.BaseURL, func() string { return token })

	chat := message_channel.NewChannel(mgr, api, message_channel.Config{TypingTTL: cfg.TypingTTL})
	defer chat.Close()
	inbox := notification_fanout.New(mgr, api, notification_fanout.Config{PollInterval: cfg.PollInterval})
	defer inbox.Close()

	mgr.OnStateChange(func(from, to connection_manager.State) {
		fmt.Printf("* %s -> %s\n", from, to)
	})
	chat.OnMessage(func(m *models.Message) {
		if m.ConversationID == conversationID {
			printMessage(m)
		}
	})
	chat.OnTypingChange(func(conv string, typing []string) {
		if conv == conversationID && len(typing) > 0 {
			fmt.Printf("* %s typing...\n", strings.Join(typing, ", "))
		}
	})
	inbox.Subscribe(notification_fanout.Handlers{
		OnAny: func(n *models.NotificationPush) {
			if n.NotificationType != models.NotificationTypeMessage {
				fmt.Printf("! %s: %s\n", n.NotificationType, n.Message)
			}
		},
	})
	inbox.OnUnreadChange(func(n int64) { fmt.Printf("* %d unread notifications\n", n) })

	if _, err := mgr.Connect(ctx, connection_manager.AuthInfo{UserID: userID, Token: token}); err != nil {
		if connection_manager.IsAuthError(err) {
			log.Fatal().Err(err).Msg("authentication rejected")
		}
		log.Warn().Err(err).Msg("connect failed, retrying in background")
	}

	view, err := chat.Open(ctx, conversationID)
	if err != nil {
		log.Warn().Err(err).Msg("history unavailable")
	}
	for _, m := range view.Messages() {
		printMessage(m)
	}
	fmt.Println(usage)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handle(ctx, line, conversationID, peer, chat, view, inbox); quit {
				return
			}
		}
	}
}

func handle(ctx context.Context, line, conversationID, peer string, chat *message_channel.Channel, view *message_channel.View, inbox *notification_fanout.Fanout) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "/quit":
		return true
	case "/read":
		res, err := chat.MarkRead(ctx, conversationID)
		if err != nil {
			fmt.Println("! mark read:", err)
			return false
		}
		fmt.Printf("* read up to %s, %d unread\n", res.LastReadMessageID, res.UnreadCount)
	case "/older":
		if _, err := view.LoadOlder(ctx); err != nil {
			fmt.Println("! load older:", err)
			return false
		}
		for _, m := range view.Messages() {
			printMessage(m)
		}
	case "/inbox":
		page, err := inbox.List(ctx, 1, 20, true)
		if err != nil {
			fmt.Println("! inbox:", err)
			return false
		}
		for _, n := range page.Items {
			fmt.Printf("  %s %s %s\n", n.NotificationID, n.NotificationType, n.Payload.Data().Message)
		}
	case "/readall":
		if err := inbox.MarkAllAsRead(ctx); err != nil {
			fmt.Println("! read all:", err)
		}
	default:
		if !view.CanSend() {
			fmt.Println("! offline, message not sent")
			return false
		}
		err := chat.Send(conversationID, peer, line)
		var unresolved *message_channel.UnresolvedRecipientError
		if errors.As(err, &unresolved) {
			fmt.Println("! no receiver known yet, restart with -to")
		} else if err != nil {
			fmt.Println("! send:", err)
		}
	}
	return false
}

func printMessage(m *models.Message) {
	fmt.Printf("%s [%s] %s\n", tool.MakeDate(m.SentAt), m.SenderID, m.Text)
}
