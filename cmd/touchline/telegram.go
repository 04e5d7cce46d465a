package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/touchlinehq/touchline/accesscode"
	"github.com/touchlinehq/touchline/audit"
	"github.com/touchlinehq/touchline/auth"
	"github.com/touchlinehq/touchline/convlog"
	"github.com/touchlinehq/touchline/db"
	"github.com/touchlinehq/touchline/i18n"
	"github.com/touchlinehq/touchline/llm"
	"github.com/touchlinehq/touchline/ratelimit"
	"github.com/touchlinehq/touchline/ttlcache"
	"github.com/touchlinehq/touchline/users"
	"gorm.io/gorm"
)

const telegramAPIBase = "https://api.telegram.org"

func newTelegramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telegram",
		Short: "Run the bot against the Telegram Bot API (long polling)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTelegram(cmd)
		},
	}

	cmd.Flags().String("bot-token", "", "Telegram bot token.")
	cmd.Flags().StringArray("admin-id", nil, "Admin Telegram user ID (repeatable).")
	cmd.Flags().String("llm-api-key", "", "API key for the LLM endpoint.")
	cmd.Flags().String("llm-model", "", "Model name for chat completions.")
	cmd.Flags().Duration("poll-timeout", 30*time.Second, "Long-poll timeout for getUpdates.")
	cmd.Flags().Int("max-concurrency", 3, "Messages handled at once across all chats.")

	return cmd
}

func runTelegram(cmd *cobra.Command) error {
	logger, err := loggerFromViper()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	token := flagOrViperString(cmd, "bot-token", "telegram.bot_token")
	if token == "" {
		return fmt.Errorf("telegram bot token not configured (set --bot-token or %s_TELEGRAM_BOT_TOKEN)", envPrefix)
	}
	adminIDs := flagOrViperStringArray(cmd, "admin-id", "telegram.admin_ids")

	gdb, err := db.Open(dbConfigFromViper())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	bundle, err := i18n.Load()
	if err != nil {
		return fmt.Errorf("load locales: %w", err)
	}

	client, err := llm.NewOpenAIClient(llm.Config{
		Endpoint:       viper.GetString("llm.endpoint"),
		APIKey:         flagOrViperString(cmd, "llm-api-key", "llm.api_key"),
		Model:          flagOrViperString(cmd, "llm-model", "llm.model"),
		RequestTimeout: viper.GetDuration("llm.request_timeout"),
	})
	if err != nil {
		return fmt.Errorf("configure llm client: %w", err)
	}

	userStore := users.NewStore(gdb)
	codeStore := accesscode.NewStore(gdb, accesscode.Options{
		PerCallerOnce: viper.GetBool("codes.per_caller_once"),
	})
	convStore := convlog.NewStore(gdb)
	convWriter := convlog.NewWriter(convStore, logger, viper.GetInt("convlog.queue_size"))
	defer convWriter.Close()

	sink, err := buildAuditSink(gdb)
	if err != nil {
		return fmt.Errorf("configure audit sink: %w", err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			logger.Warn("audit sink close failed", "error", cerr)
		}
	}()

	limiter, err := buildLimiter()
	if err != nil {
		return fmt.Errorf("configure rate limiter: %w", err)
	}

	gate := auth.NewService(gdb, userStore, codeStore, limiter, sink, logger, auth.Config{
		AdminIDs:             adminIDs,
		CacheTTL:             viper.GetDuration("auth.cache_ttl"),
		MaxAuditedMessageLen: viper.GetInt("auth.max_audited_message_chars"),
	})

	api := newTelegramAPI(&http.Client{}, telegramAPIBase, token)

	b := &bot{
		api:          api,
		logger:       logger,
		gate:         gate,
		codes:        codeStore,
		users:        userStore,
		conv:         convStore,
		convWriter:   convWriter,
		client:       client,
		bundle:       bundle,
		recent:       ttlcache.New[[]convlog.Exchange](viper.GetDuration("convlog.recent_ttl")),
		recentMax:    viper.GetInt("convlog.recent_max"),
		systemPrompt: viper.GetString("llm.system_prompt"),
		maxTokens:    viper.GetInt("llm.max_tokens"),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	me, err := api.getMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	logger.Info("bot online",
		"username", me.Username,
		"admins", len(adminIDs),
		"languages", strings.Join(bundle.Languages(), ","))

	pollLoop(ctx, b, pollConfig{
		timeout:        flagOrViperDuration(cmd, "poll-timeout", "telegram.poll_timeout"),
		maxConcurrency: flagOrViperInt(cmd, "max-concurrency", "telegram.max_concurrency"),
		chatQueueSize:  viper.GetInt("telegram.chat_queue_size"),
	})

	logger.Info("bot shutting down")
	return nil
}

// buildAuditSink always records unauthorized attempts to the database
// and additionally to an append-only JSONL file when a path is set.
func buildAuditSink(gdb *gorm.DB) (audit.Sink, error) {
	sinks := audit.MultiSink{audit.NewDBSink(gdb)}
	if path := strings.TrimSpace(viper.GetString("audit.jsonl_path")); path != "" {
		jsonl, err := audit.NewJSONLSink(path, viper.GetInt64("audit.rotate_max_bytes"))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, jsonl)
	}
	return sinks, nil
}

func buildLimiter() (ratelimit.Limiter, error) {
	limit := viper.GetInt("ratelimit.limit")
	window := viper.GetDuration("ratelimit.window")
	switch backend := viper.GetString("ratelimit.backend"); backend {
	case "", "memory":
		return ratelimit.NewWindowLimiter(limit, window), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     viper.GetString("ratelimit.redis.addr"),
			Password: viper.GetString("ratelimit.redis.password"),
			DB:       viper.GetInt("ratelimit.redis.db"),
		})
		return ratelimit.NewRedisLimiter(rdb, limit, window), nil
	default:
		return nil, fmt.Errorf("unknown ratelimit backend %q", backend)
	}
}

type pollConfig struct {
	timeout        time.Duration
	maxConcurrency int
	chatQueueSize  int
}

// pollLoop reads updates and hands each message to a per-chat worker so
// messages from one chat are handled in order while different chats run
// concurrently, bounded by a shared semaphore.
func pollLoop(ctx context.Context, b *bot, cfg pollConfig) {
	if cfg.maxConcurrency <= 0 {
		cfg.maxConcurrency = 1
	}
	if cfg.chatQueueSize <= 0 {
		cfg.chatQueueSize = 16
	}
	sem := make(chan struct{}, cfg.maxConcurrency)
	workers := make(map[int64]chan telegramMessage)
	var wg sync.WaitGroup

	dispatch := func(msg telegramMessage) {
		if msg.Chat == nil {
			return
		}
		queue, ok := workers[msg.Chat.ID]
		if !ok {
			queue = make(chan telegramMessage, cfg.chatQueueSize)
			workers[msg.Chat.ID] = queue
			wg.Add(1)
			go func() {
				defer wg.Done()
				for m := range queue {
					sem <- struct{}{}
					b.handleMessage(ctx, &m)
					<-sem
				}
			}()
		}
		select {
		case queue <- msg:
		default:
			b.logger.Warn("chat queue full, dropping message", "chat_id", msg.Chat.ID)
		}
	}

	var offset int64
	for {
		updates, next, err := b.api.getUpdates(ctx, offset, cfg.timeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			b.logger.Warn("poll failed", "error", err)
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
			}
			continue
		}
		offset = next
		for _, u := range updates {
			if u.Message != nil {
				dispatch(*u.Message)
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	for _, queue := range workers {
		close(queue)
	}
	wg.Wait()
}
