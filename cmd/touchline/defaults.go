package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// LLM
	viper.SetDefault("llm.endpoint", "https://api.openai.com")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.request_timeout", 90*time.Second)
	viper.SetDefault("llm.max_tokens", 0)
	viper.SetDefault("llm.system_prompt", "You are a friendly, concise assistant chatting over Telegram. Answer in the user's language.")

	// DB (sqlite by default, postgres via db.driver + db.dsn)
	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.dsn", "")
	viper.SetDefault("db.auto_migrate", true)
	viper.SetDefault("db.pool.max_open_conns", 1)
	viper.SetDefault("db.pool.max_idle_conns", 1)
	viper.SetDefault("db.sqlite.busy_timeout_ms", 5000)
	viper.SetDefault("db.sqlite.wal", true)
	viper.SetDefault("db.sqlite.foreign_keys", true)

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.admin_ids", []string{})
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.max_concurrency", 3)
	viper.SetDefault("telegram.chat_queue_size", 16)

	// Authorization gate
	viper.SetDefault("auth.cache_ttl", 60*time.Second)
	viper.SetDefault("auth.max_audited_message_chars", 500)

	// Access codes
	viper.SetDefault("codes.per_caller_once", true)

	// Rate limiting
	viper.SetDefault("ratelimit.limit", 30)
	viper.SetDefault("ratelimit.window", 60*time.Second)
	viper.SetDefault("ratelimit.backend", "memory")
	viper.SetDefault("ratelimit.redis.addr", "127.0.0.1:6379")
	viper.SetDefault("ratelimit.redis.password", "")
	viper.SetDefault("ratelimit.redis.db", 0)

	// Conversation log
	viper.SetDefault("convlog.queue_size", 256)
	viper.SetDefault("convlog.recent_ttl", 30*time.Second)
	viper.SetDefault("convlog.recent_max", 5)

	// Audit
	viper.SetDefault("audit.jsonl_path", "")
	viper.SetDefault("audit.rotate_max_bytes", int64(32*1024*1024))
}
