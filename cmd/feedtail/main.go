// feedtail connects to the realtime channel and tails pushed feed,
// chat, and friend events to the console.
// Usage: go run ./cmd/feedtail --config configs/feedsync.example.yaml --posts p1,p2
//
// Required environment variables:
//
//	FEEDSYNC_TOKEN - bearer token for the backend session
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/driftlab/feedsync/internal/api"
	"github.com/driftlab/feedsync/internal/chat"
	"github.com/driftlab/feedsync/internal/config"
	"github.com/driftlab/feedsync/internal/connection"
	"github.com/driftlab/feedsync/internal/feed"
	"github.com/driftlab/feedsync/internal/model"
	"github.com/driftlab/feedsync/internal/session"
	"github.com/driftlab/feedsync/internal/topics"
	"github.com/driftlab/feedsync/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/feedsync.example.yaml", "path to config file")
	postIDs := flag.String("posts", "", "comma-separated post ids to follow")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("feedtail", version.String())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	token := os.Getenv("FEEDSYNC_TOKEN")
	if token == "" {
		logger.Error("FEEDSYNC_TOKEN not set")
		os.Exit(1)
	}
	tokens := session.NewJWTSource(func() string { return token })
	self := tokens.CurrentUser()
	if self.ID == "" {
		logger.Error("token carries no usable identity")
		os.Exit(1)
	}
	logger.Info("session ready", "user_id", self.ID, "name", self.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	rest := api.NewClient(cfg.API.BaseURL, tokens,
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithLogger(logger),
	)

	connCfg := connection.ManagerConfig{
		URL:                cfg.Channel.URL,
		ReconnectBaseDelay: cfg.Channel.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Channel.ReconnectMaxDelay,
		MaxAttempts:        cfg.Channel.MaxAttempts,
		SubscribeTimeout:   cfg.Channel.SubscribeTimeout,
		PingTimeout:        cfg.Channel.PingTimeout,
		WriteTimeout:       cfg.Channel.WriteTimeout,
		BufferSize:         cfg.Channel.BufferSize,
	}
	mgr := connection.NewManager(connCfg, tokens, logger)
	registry := topics.NewRegistry(mgr, logger)

	store := feed.NewStore(rest, tokens, logger)
	aggregator := chat.NewAggregator(rest, tokens, cfg.Chat.MaxOpenWindows, logger)

	logger.Info("connecting", "url", cfg.Channel.URL)
	if err := mgr.Connect(ctx); err != nil {
		logger.Error("initial connect failed", "error", err)
		os.Exit(1)
	}

	if err := store.LoadFeed(ctx, 50); err != nil {
		logger.Warn("initial feed load failed", "error", err)
	}

	// Per-user topics: friend events and incoming messages.
	subscribe(ctx, registry, topics.FriendTopic(self.ID), func(ev model.Event) {
		aggregator.HandleEvent(ev)
		printEvent(ev, *verbose)
	}, logger)
	subscribe(ctx, registry, topics.MessageTopic(self.ID), func(ev model.Event) {
		aggregator.HandleEvent(ev)
		printEvent(ev, *verbose)
	}, logger)

	for _, id := range splitList(*postIDs) {
		subscribe(ctx, registry, topics.PostTopic(id), func(ev model.Event) {
			store.HandleEvent(ev)
			printEvent(ev, *verbose)
		}, logger)
	}

	go registry.Run(ctx)

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := mgr.Stats()
				logger.Info("stats",
					"state", stats.State,
					"attempts", stats.Attempts,
					"topics", registry.Count(),
					"posts", store.Len(),
					"unread_windows", aggregator.OpenCount(),
				)
			}
		}
	}()

	logger.Info("tailing - press Ctrl+C to stop", "topics", registry.Count())

	<-ctx.Done()

	logger.Info("shutting down...")
	mgr.Disconnect()
	logger.Info("shutdown complete")
}

func subscribe(ctx context.Context, registry *topics.Registry, topic string, cb topics.Callback, logger *slog.Logger) {
	if err := registry.Subscribe(ctx, topic, cb); err != nil {
		logger.Warn("subscribe failed, will retry on reconnect", "topic", topic, "error", err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func printEvent(ev model.Event, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(ev, "", "  ")
		fmt.Printf("[%s] %s\n", strings.ToUpper(string(ev.Kind)), data)
		return
	}

	switch ev.Kind {
	case model.EventPostUpdated:
		likes, comments := 0, 0
		if ev.Post.Likes != nil {
			likes = len(*ev.Post.Likes)
		}
		if ev.Post.Comments != nil {
			comments = len(*ev.Post.Comments)
		}
		fmt.Printf("[POST] id=%s likes=%d comments=%d\n", ev.Post.ID, likes, comments)

	case model.EventMessageReceived:
		fmt.Printf("[MESSAGE] from=%s content=%q\n", ev.Message.SenderID, ev.Message.Content)

	case model.EventFriendRequestCreated:
		fmt.Printf("[FRIEND REQUEST] from=%s\n", ev.FriendRequest.FromID)

	case model.EventFriendRequestAccepted:
		fmt.Printf("[FRIEND ACCEPT] by=%s\n", ev.FriendRequest.ToID)

	default:
		fmt.Printf("[%s] topic=%s\n", strings.ToUpper(string(ev.Kind)), ev.Topic)
	}
}
