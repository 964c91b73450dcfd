package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"chat-relay/internal/gate"
	"chat-relay/internal/integrations/gemini"
	"chat-relay/internal/integrations/paramstore"
	"chat-relay/internal/integrations/telegram"
	"chat-relay/internal/repository"
	"chat-relay/internal/server"
	"chat-relay/internal/usecase"
)

const defaultParamPrefix = "/chat-relay"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	port := envInt("PORT", 8080)
	mode := envStr("RELAY_MODE", "polling")
	model := envStr("GEMINI_MODEL", "gemini-2.5-flash")
	maxContextTurns := envInt("MAX_CONTEXT_TURNS", 20)
	geminiRPS := envFloat("GEMINI_RPS", 1)
	geminiBurst := envInt("GEMINI_BURST", 2)
	typingSpan := envDuration("TYPING_SPAN", 45*time.Second)
	paramPrefix := os.Getenv("PARAM_PREFIX")
	stateTable := os.Getenv("STATE_TABLE")
	redisAddr := os.Getenv("REDIS_ADDR")
	webhookSecret := os.Getenv("WEBHOOK_SECRET_TOKEN")

	gateCfg := gate.Config{
		MinInterval: envDuration("ANTI_SPAM_MIN_INTERVAL", 5*time.Second),
		Cooldown:    envDuration("ANTI_SPAM_COOLDOWN", 10*time.Second),
		FloodWindow: envDuration("FLOOD_WINDOW", 60*time.Second),
		FloodMax:    envInt("FLOOD_MAX_MESSAGES", 10),
		FloodBlock:  envDuration("FLOOD_BLOCK_TIME", 300*time.Second),
	}

	// ---- Secrets ----
	var secrets gemini.Getter
	var dynamoClient *awsdynamodb.Client
	if paramPrefix != "" || stateTable != "" {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		if paramPrefix != "" {
			ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
			if err != nil {
				slog.Error("failed to create SSM client", "err", err)
				os.Exit(1)
			}
			secrets = ssmClient
		}
		if stateTable != "" {
			dynamoClient = awsdynamodb.NewFromConfig(cfg)
		}
	}

	if secrets == nil {
		paramPrefix = defaultParamPrefix
		secrets = paramstore.NewStatic(map[string]string{
			paramPrefix + "/telegram-bot-token": mustEnv("TELEGRAM_BOT_TOKEN"),
			paramPrefix + "/gemini-api-key":     mustEnv("GEMINI_API_KEY"),
		})
	}

	botToken, err := secrets.GetParameter(ctx, paramPrefix+"/telegram-bot-token")
	if err != nil {
		slog.Error("failed to load bot token", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	tg, err := telegram.New(botToken, telegram.WithTypingSpan(typingSpan))
	if err != nil {
		slog.Error("failed to create Telegram client", "err", err)
		os.Exit(1)
	}

	llm, err := gemini.NewClient(secrets, paramPrefix,
		gemini.WithModel(model),
		gemini.WithRateLimit(geminiRPS, geminiBurst),
	)
	if err != nil {
		slog.Error("failed to create Gemini client", "err", err)
		os.Exit(1)
	}

	// ---- Gate ----
	g := gate.New(gateCfg)
	g.StartJanitor(ctx)

	// ---- History ----
	var history usecase.HistoryStore
	if stateTable != "" {
		store, err := repository.NewDynamoDB(dynamoClient, stateTable)
		if err != nil {
			slog.Error("failed to create DynamoDB store", "err", err)
			os.Exit(1)
		}
		history = store
	} else {
		mem := repository.NewMemory(repository.WithMaxTurns(maxContextTurns * 2))
		mem.StartJanitor(ctx)
		history = mem
	}

	// ---- Relay ----
	relayOpts := []usecase.RelayOption{
		usecase.WithMaxContextTurns(maxContextTurns),
	}
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		relayOpts = append(relayOpts, usecase.WithVerdictStats(
			gate.NewRedisStatsStore(rdb, gate.WithStatsTrackIdentities(true)),
		))
	}
	relay, err := usecase.NewRelayService(g, llm, tg, history, relayOpts...)
	if err != nil {
		slog.Error("failed to create relay service", "err", err)
		os.Exit(1)
	}

	srv, err := server.New(relay, server.WithSecretToken(webhookSecret))
	if err != nil {
		slog.Error("failed to create server", "err", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: srv.Handler(),
	}
	go func() {
		slog.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "err", err)
			stop()
		}
	}()

	if mode == "polling" {
		go pollUpdates(ctx, tg, srv)
	}
	slog.Info("relay started", "mode", mode, "model", model)

	<-ctx.Done()
	slog.Info("shutting down")
	tg.StopPolling()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "err", err)
	}
}

func pollUpdates(ctx context.Context, tg *telegram.Client, srv *server.Server) {
	updates := tg.Updates(60)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go func(u tgbotapi.Update) {
				srv.Dispatch(u)
			}(update)
		}
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	// Accept both plain seconds ("300") and Go durations ("5m").
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
