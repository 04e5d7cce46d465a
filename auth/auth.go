// Package auth is the gate every caller-initiated action passes through:
// admin bypass, cached authorization lookup against the user registry,
// then rate limiting. Entry points call Check and dispatch their handler
// only on a proceed outcome; there is no ambient middleware magic.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/touchlinehq/touchline/accesscode"
	"github.com/touchlinehq/touchline/audit"
	"github.com/touchlinehq/touchline/db"
	"github.com/touchlinehq/touchline/ratelimit"
	"github.com/touchlinehq/touchline/ttlcache"
	"github.com/touchlinehq/touchline/users"
	"gorm.io/gorm"
)

type Status string

const (
	StatusProceed     Status = "proceed"
	StatusDenied      Status = "denied"
	StatusRateLimited Status = "rate_limited"
)

// Outcome is the gate's decision for one inbound request.
type Outcome struct {
	Status Status
}

// Caller identifies the requester and carries the raw message for the
// audit trail.
type Caller struct {
	Identity    string
	DisplayName string
	Message     string
}

type Config struct {
	// AdminIDs bypass authorization and rate limiting entirely.
	AdminIDs []string
	// CacheTTL bounds how stale a cached authorization verdict may be.
	CacheTTL time.Duration
	// MaxAuditedMessageLen caps the message text stored with an
	// unauthorized attempt.
	MaxAuditedMessageLen int
}

const (
	defaultCacheTTL        = 60 * time.Second
	defaultMaxAuditedChars = 500
)

// Service holds the gate's dependencies. Construct one at process start
// and hand it to every entry point; there are no package-level singletons.
type Service struct {
	gdb     *gorm.DB
	users   *users.Store
	codes   *accesscode.Store
	limiter ratelimit.Limiter
	sink    audit.Sink
	logger  *slog.Logger

	cache  *ttlcache.Cache[bool]
	admins map[string]bool
	cfg    Config
}

func NewService(gdb *gorm.DB, userStore *users.Store, codeStore *accesscode.Store, limiter ratelimit.Limiter, sink audit.Sink, logger *slog.Logger, cfg Config) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.MaxAuditedMessageLen <= 0 {
		cfg.MaxAuditedMessageLen = defaultMaxAuditedChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	admins := make(map[string]bool, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			admins[id] = true
		}
	}
	return &Service{
		gdb:     gdb,
		users:   userStore,
		codes:   codeStore,
		limiter: limiter,
		sink:    sink,
		logger:  logger,
		cache:   ttlcache.New[bool](cfg.CacheTTL),
		admins:  admins,
		cfg:     cfg,
	}
}

func (s *Service) IsAdmin(identity string) bool {
	return s != nil && s.admins[strings.TrimSpace(identity)]
}

// Check gates one inbound request. Unauthorized callers are recorded in
// the audit sink; the recording itself is best-effort and never blocks
// the denial.
func (s *Service) Check(ctx context.Context, caller Caller) Outcome {
	if s == nil {
		return Outcome{Status: StatusDenied}
	}
	identity := strings.TrimSpace(caller.Identity)
	if identity == "" {
		return Outcome{Status: StatusDenied}
	}

	if s.admins[identity] {
		return Outcome{Status: StatusProceed}
	}

	authorized, err := s.resolveAuthorized(ctx, identity)
	if err != nil {
		s.logger.Error("authorization lookup failed", "identity", identity, "error", err)
		return Outcome{Status: StatusDenied}
	}
	if !authorized {
		s.recordAttempt(ctx, caller)
		return Outcome{Status: StatusDenied}
	}

	if s.limiter == nil {
		return Outcome{Status: StatusProceed}
	}
	allowed, err := s.limiter.Allow(ctx, identity)
	if err != nil {
		// The limiter is abuse damping, not an access control: if its
		// backend is down, let the request through rather than lock
		// everyone out.
		s.logger.Warn("rate limiter unavailable", "identity", identity, "error", err)
		return Outcome{Status: StatusProceed}
	}
	if !allowed {
		return Outcome{Status: StatusRateLimited}
	}
	return Outcome{Status: StatusProceed}
}

// RedeemCode validates and consumes token for identity. The code use and
// the caller's authorization grant commit in one transaction, and the
// cached verdict is refreshed so the caller does not wait out a stale
// "unauthorized" entry.
func (s *Service) RedeemCode(ctx context.Context, identity, token string) (accesscode.Verdict, error) {
	if s == nil || s.gdb == nil {
		return accesscode.Verdict{}, fmt.Errorf("auth service not configured")
	}
	identity = strings.TrimSpace(identity)

	var verdict accesscode.Verdict
	err := s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := db.WithTx(ctx, tx)
		v, err := s.codes.Redeem(txCtx, token, identity)
		if err != nil {
			return err
		}
		verdict = v
		if !v.OK {
			return nil
		}
		return s.users.SetAuthorized(txCtx, identity, true)
	})
	if err != nil {
		return accesscode.Verdict{}, err
	}
	if verdict.OK {
		s.cache.Set(authCacheKey(identity), true)
	}
	return verdict, nil
}

// Invalidate drops the cached authorization verdict for identity, for
// admin actions that change a caller's standing out of band.
func (s *Service) Invalidate(identity string) {
	if s == nil {
		return
	}
	s.cache.Delete(authCacheKey(strings.TrimSpace(identity)))
}

func (s *Service) resolveAuthorized(ctx context.Context, identity string) (bool, error) {
	key := authCacheKey(identity)
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}
	v, err := s.users.IsAuthorized(ctx, identity)
	if err != nil {
		return false, err
	}
	s.cache.Set(key, v)
	return v, nil
}

func (s *Service) recordAttempt(ctx context.Context, caller Caller) {
	if s.sink == nil {
		return
	}
	attempt := audit.Attempt{
		Identity:    strings.TrimSpace(caller.Identity),
		DisplayName: strings.TrimSpace(caller.DisplayName),
		Message:     truncateRunes(caller.Message, s.cfg.MaxAuditedMessageLen),
		At:          time.Now().UTC(),
	}
	if err := s.sink.Record(ctx, attempt); err != nil {
		s.logger.Warn("unauthorized attempt not recorded", "identity", attempt.Identity, "error", err)
	}
}

func authCacheKey(identity string) string {
	return "authz:" + identity
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
