package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/touchlinehq/touchline/accesscode"
	"github.com/touchlinehq/touchline/audit"
	"github.com/touchlinehq/touchline/db"
	"github.com/touchlinehq/touchline/db/models"
	"github.com/touchlinehq/touchline/ratelimit"
	"github.com/touchlinehq/touchline/users"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fixture struct {
	gdb     *gorm.DB
	users   *users.Store
	codes   *accesscode.Store
	service *Service
}

func newFixture(t *testing.T, cfg Config, limiter ratelimit.Limiter) *fixture {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	userStore := users.NewStore(gdb)
	codeStore := accesscode.NewStore(gdb, accesscode.Options{PerCallerOnce: true})
	svc := NewService(gdb, userStore, codeStore, limiter, audit.NewDBSink(gdb), nil, cfg)
	return &fixture{gdb: gdb, users: userStore, codes: codeStore, service: svc}
}

func (f *fixture) ensureUser(t *testing.T, id string) {
	t.Helper()
	if err := f.users.Ensure(context.Background(), users.Profile{TelegramID: id}); err != nil {
		t.Fatalf("Ensure(%s) error = %v", id, err)
	}
}

func TestAdminBypassesEverything(t *testing.T) {
	t.Parallel()

	// A limiter that would reject the second request: the admin must
	// never even reach it.
	f := newFixture(t, Config{AdminIDs: []string{"boss"}}, ratelimit.NewWindowLimiter(1, time.Minute))
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		out := f.service.Check(ctx, Caller{Identity: "boss", Message: "ping"})
		if out.Status != StatusProceed {
			t.Fatalf("Check(admin) #%d = %q, want %q", i+1, out.Status, StatusProceed)
		}
	}
}

func TestUnknownCallerDeniedAndAudited(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	ctx := context.Background()

	longMessage := strings.Repeat("x", 1200)
	out := f.service.Check(ctx, Caller{Identity: "stranger", DisplayName: "Mallory", Message: longMessage})
	if out.Status != StatusDenied {
		t.Fatalf("Check(stranger) = %q, want %q", out.Status, StatusDenied)
	}

	var rows []models.UnauthorizedAttempt
	if err := f.gdb.Find(&rows).Error; err != nil {
		t.Fatalf("read attempts: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("attempt rows = %d, want 1", len(rows))
	}
	if rows[0].DisplayName != "Mallory" {
		t.Errorf("DisplayName = %q, want Mallory", rows[0].DisplayName)
	}
	if len(rows[0].Message) != 500 {
		t.Errorf("audited message length = %d, want truncated to 500", len(rows[0].Message))
	}
}

func TestAuthorizedCallerProceeds(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	ctx := context.Background()

	f.ensureUser(t, "alice")
	if err := f.users.SetAuthorized(ctx, "alice", true); err != nil {
		t.Fatalf("SetAuthorized() error = %v", err)
	}

	out := f.service.Check(ctx, Caller{Identity: "alice", Message: "hi"})
	if out.Status != StatusProceed {
		t.Fatalf("Check(alice) = %q, want %q", out.Status, StatusProceed)
	}
}

func TestCacheServesRepeatChecks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{CacheTTL: time.Minute}, nil)
	ctx := context.Background()

	f.ensureUser(t, "alice")
	if err := f.users.SetAuthorized(ctx, "alice", true); err != nil {
		t.Fatalf("SetAuthorized() error = %v", err)
	}
	if out := f.service.Check(ctx, Caller{Identity: "alice"}); out.Status != StatusProceed {
		t.Fatalf("first Check() = %q, want proceed", out.Status)
	}

	// Flip the flag behind the cache's back: the cached verdict keeps
	// serving until it expires or is invalidated. The cache is a derived
	// view, so this staleness window is by contract bounded by CacheTTL.
	if err := f.users.SetAuthorized(ctx, "alice", false); err != nil {
		t.Fatalf("SetAuthorized() error = %v", err)
	}
	if out := f.service.Check(ctx, Caller{Identity: "alice"}); out.Status != StatusProceed {
		t.Fatalf("cached Check() = %q, want proceed from cache", out.Status)
	}

	f.service.Invalidate("alice")
	if out := f.service.Check(ctx, Caller{Identity: "alice"}); out.Status != StatusDenied {
		t.Fatalf("Check() after Invalidate = %q, want denied", out.Status)
	}
}

func TestRateLimitedOutcome(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, ratelimit.NewWindowLimiter(2, time.Minute))
	ctx := context.Background()

	f.ensureUser(t, "alice")
	if err := f.users.SetAuthorized(ctx, "alice", true); err != nil {
		t.Fatalf("SetAuthorized() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if out := f.service.Check(ctx, Caller{Identity: "alice"}); out.Status != StatusProceed {
			t.Fatalf("Check() #%d = %q, want proceed", i+1, out.Status)
		}
	}
	if out := f.service.Check(ctx, Caller{Identity: "alice"}); out.Status != StatusRateLimited {
		t.Fatalf("Check() over budget = %q, want %q", out.Status, StatusRateLimited)
	}
}

func TestRedeemCodeAuthorizesAndRefreshesCache(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	f.ensureUser(t, "alice")

	code, err := f.codes.Generate(ctx, "boss", 24*time.Hour, 1)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	// Prime the cache with the unauthorized verdict.
	if out := f.service.Check(ctx, Caller{Identity: "alice"}); out.Status != StatusDenied {
		t.Fatalf("pre-redeem Check() = %q, want denied", out.Status)
	}

	v, err := f.service.RedeemCode(ctx, "alice", code.Code)
	if err != nil {
		t.Fatalf("RedeemCode() error = %v", err)
	}
	if !v.OK {
		t.Fatalf("RedeemCode() = %+v, want OK", v)
	}

	// No stale denial: the redeem refreshed the cached verdict.
	if out := f.service.Check(ctx, Caller{Identity: "alice"}); out.Status != StatusProceed {
		t.Fatalf("post-redeem Check() = %q, want proceed", out.Status)
	}

	ok, err := f.users.IsAuthorized(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("IsAuthorized(alice) = %v, %v; want true", ok, err)
	}
}

func TestRedeemFailureDoesNotAuthorize(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	f.ensureUser(t, "alice")

	v, err := f.service.RedeemCode(ctx, "alice", "WRONGCOD")
	if err != nil {
		t.Fatalf("RedeemCode() error = %v", err)
	}
	if v.OK || v.Reason != accesscode.ReasonNotFound {
		t.Fatalf("RedeemCode(bad token) = %+v, want %q", v, accesscode.ReasonNotFound)
	}
	if out := f.service.Check(ctx, Caller{Identity: "alice"}); out.Status != StatusDenied {
		t.Fatalf("Check() after failed redeem = %q, want denied", out.Status)
	}
}

func TestEndToEndTwoUseCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{AdminIDs: []string{"boss"}}, nil)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		f.ensureUser(t, id)
	}

	code, err := f.codes.Generate(ctx, "boss", 24*time.Hour, 2)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if v, err := f.service.RedeemCode(ctx, "a", code.Code); err != nil || !v.OK {
		t.Fatalf("RedeemCode(a) = %+v, %v; want OK", v, err)
	}
	if out := f.service.Check(ctx, Caller{Identity: "a"}); out.Status != StatusProceed {
		t.Fatalf("Check(a) = %q, want proceed", out.Status)
	}

	if v, err := f.service.RedeemCode(ctx, "b", code.Code); err != nil || !v.OK {
		t.Fatalf("RedeemCode(b) = %+v, %v; want OK", v, err)
	}
	if out := f.service.Check(ctx, Caller{Identity: "b"}); out.Status != StatusProceed {
		t.Fatalf("Check(b) = %q, want proceed", out.Status)
	}

	v, err := f.service.RedeemCode(ctx, "c", code.Code)
	if err != nil {
		t.Fatalf("RedeemCode(c) error = %v", err)
	}
	if v.OK || v.Reason != accesscode.ReasonMaxUsesReached {
		t.Fatalf("RedeemCode(c) = %+v, want %q", v, accesscode.ReasonMaxUsesReached)
	}

	active, err := f.codes.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("ListActive() = %d codes after exhaustion, want 0", len(active))
	}
}
