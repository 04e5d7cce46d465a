package main

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/touchlinehq/touchline/accesscode"
	"github.com/touchlinehq/touchline/auth"
	"github.com/touchlinehq/touchline/convlog"
	"github.com/touchlinehq/touchline/i18n"
	"github.com/touchlinehq/touchline/internal/durationfmt"
	"github.com/touchlinehq/touchline/internal/retry"
	"github.com/touchlinehq/touchline/llm"
	"github.com/touchlinehq/touchline/ttlcache"
	"github.com/touchlinehq/touchline/users"
)

type bot struct {
	api    *telegramAPI
	logger *slog.Logger

	gate       *auth.Service
	codes      *accesscode.Store
	users      *users.Store
	conv       *convlog.Store
	convWriter *convlog.Writer
	client     llm.Client
	bundle     *i18n.Bundle

	recent    *ttlcache.Cache[[]convlog.Exchange]
	recentMax int

	systemPrompt string
	maxTokens    int
}

func (b *bot) handleMessage(ctx context.Context, msg *telegramMessage) {
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	identity := strconv.FormatInt(msg.From.ID, 10)
	lang := msg.From.LanguageCode

	if err := b.users.Ensure(ctx, users.Profile{
		TelegramID:   identity,
		Username:     msg.From.Username,
		FirstName:    msg.From.FirstName,
		LastName:     msg.From.LastName,
		LanguageCode: lang,
	}); err != nil {
		b.logger.Warn("user upsert failed", "identity", identity, "error", err)
	}

	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, msg, identity, lang, text)
		return
	}
	b.handleChat(ctx, msg, identity, lang, text)
}

func (b *bot) handleCommand(ctx context.Context, msg *telegramMessage, identity, lang, text string) {
	fields := strings.Fields(text)
	command := fields[0]
	// Group chats address commands as /cmd@botname.
	if i := strings.IndexByte(command, '@'); i > 0 {
		command = command[:i]
	}
	args := fields[1:]

	switch command {
	case "/start", "/help":
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "welcome"))
	case "/redeem":
		b.cmdRedeem(ctx, msg, identity, lang, args)
	case "/gencode":
		b.cmdGenerateCode(ctx, msg, identity, lang, args)
	case "/codes":
		b.cmdListCodes(ctx, msg, identity, lang)
	case "/stats":
		b.cmdStats(ctx, msg, identity, lang)
	default:
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "welcome"))
	}
}

func (b *bot) cmdRedeem(ctx context.Context, msg *telegramMessage, identity, lang string, args []string) {
	if len(args) != 1 {
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "redeem_usage"))
		return
	}
	verdict, err := b.gate.RedeemCode(ctx, identity, args[0])
	if err != nil {
		b.logger.Error("code redemption failed", "identity", identity, "error", err)
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "redeem_failed"))
		return
	}
	if verdict.OK {
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "redeem_success"))
		return
	}
	b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, redeemReasonKey(verdict.Reason)))
}

func redeemReasonKey(reason accesscode.Reason) string {
	switch reason {
	case accesscode.ReasonNotFound:
		return "redeem_not_found"
	case accesscode.ReasonExpired:
		return "redeem_expired"
	case accesscode.ReasonMaxUsesReached:
		return "redeem_max_uses"
	case accesscode.ReasonAlreadyRedeemed:
		return "redeem_already_redeemed"
	case accesscode.ReasonDeactivated:
		return "redeem_deactivated"
	default:
		return "redeem_failed"
	}
}

func (b *bot) cmdGenerateCode(ctx context.Context, msg *telegramMessage, identity, lang string, args []string) {
	if !b.gate.IsAdmin(identity) {
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "admin_only"))
		return
	}
	if len(args) != 2 {
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "gencode_usage"))
		return
	}
	// A typo'd duration is a hard error, never a default lifetime.
	lifetime, err := durationfmt.Parse(args[0])
	if err != nil {
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "gencode_bad_duration", args[0]))
		return
	}
	maxUses, err := strconv.Atoi(args[1])
	if err != nil || maxUses <= 0 {
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "gencode_bad_max_uses"))
		return
	}

	code, err := b.codes.Generate(ctx, identity, lifetime, maxUses)
	if err != nil {
		b.logger.Error("code generation failed", "identity", identity, "error", err)
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "gencode_failed"))
		return
	}
	b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "gencode_success",
		code.Code, durationfmt.Format(lifetime), code.MaxUses))
}

func (b *bot) cmdListCodes(ctx context.Context, msg *telegramMessage, identity, lang string) {
	if !b.gate.IsAdmin(identity) {
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "admin_only"))
		return
	}
	codes, err := b.codes.ListActive(ctx)
	if err != nil {
		b.logger.Error("code listing failed", "error", err)
		return
	}
	if len(codes) == 0 {
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "codes_none"))
		return
	}
	var sb strings.Builder
	sb.WriteString(b.bundle.T(lang, "codes_header"))
	for _, c := range codes {
		sb.WriteString("\n")
		sb.WriteString(b.bundle.T(lang, "codes_line",
			c.Code, c.UsedCount, c.MaxUses, durationfmt.Format(time.Until(c.ExpiresAt))))
	}
	b.reply(ctx, msg.Chat.ID, sb.String())
}

func (b *bot) cmdStats(ctx context.Context, msg *telegramMessage, identity, lang string) {
	if !b.gate.IsAdmin(identity) {
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "admin_only"))
		return
	}
	stats, err := b.users.Stats(ctx)
	if err != nil {
		b.logger.Error("stats query failed", "error", err)
		return
	}
	b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "stats_line",
		stats.ActiveToday, stats.MessagesToday, stats.NewToday, stats.TotalUsers))
}

func (b *bot) handleChat(ctx context.Context, msg *telegramMessage, identity, lang, text string) {
	outcome := b.gate.Check(ctx, auth.Caller{
		Identity:    identity,
		DisplayName: telegramDisplayName(msg.From),
		Message:     text,
	})
	switch outcome.Status {
	case auth.StatusDenied:
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "denied"))
		return
	case auth.StatusRateLimited:
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "rate_limited"))
		return
	}

	start := time.Now()
	history := b.recentExchanges(ctx, identity)

	messages := make([]llm.Message, 0, 2*len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: b.systemPrompt})
	for _, ex := range history {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: ex.Message})
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: ex.Reply})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})

	result, err := b.client.Chat(ctx, llm.Request{Messages: messages, MaxTokens: b.maxTokens})
	if err != nil {
		b.logger.Error("llm call failed", "identity", identity, "error", err)
		b.reply(ctx, msg.Chat.ID, b.bundle.T(lang, "llm_error"))
		return
	}

	// Reply first; everything after this line is best-effort bookkeeping.
	b.reply(ctx, msg.Chat.ID, result.Text)

	ex := convlog.Exchange{
		TelegramID:     identity,
		Message:        text,
		Reply:          result.Text,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		TokensUsed:     result.Usage.TotalTokens,
		At:             time.Now().UTC(),
	}
	b.convWriter.Enqueue(ex)
	b.rememberExchange(identity, history, ex)

	if err := b.users.Touch(ctx, identity, result.Usage.TotalTokens); err != nil {
		b.logger.Warn("activity update failed", "identity", identity, "error", err)
	}
}

// recentExchanges serves prompt context from the memoization cache,
// falling back to the conversation log on a miss.
func (b *bot) recentExchanges(ctx context.Context, identity string) []convlog.Exchange {
	key := "recent:" + identity
	if cached, ok := b.recent.Get(key); ok {
		return cached
	}
	history, err := b.conv.Recent(ctx, identity, b.recentMax)
	if err != nil {
		b.logger.Warn("recent history lookup failed", "identity", identity, "error", err)
		return nil
	}
	b.recent.Set(key, history)
	return history
}

func (b *bot) rememberExchange(identity string, history []convlog.Exchange, ex convlog.Exchange) {
	history = append(history, ex)
	if len(history) > b.recentMax {
		history = history[len(history)-b.recentMax:]
	}
	b.recent.Set("recent:"+identity, history)
}

func (b *bot) reply(ctx context.Context, chatID int64, text string) {
	err := retry.Do(ctx, b.logger, "sendMessage", 3, 500*time.Millisecond, func(ctx context.Context) error {
		return b.api.sendMessage(ctx, chatID, text)
	})
	if err != nil {
		b.logger.Warn("send failed", "chat_id", chatID, "error", err)
	}
}
