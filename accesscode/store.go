// Package accesscode implements the referral-code registry: generation of
// time- and use-bounded bearer codes, validation, and redemption with an
// at-most-max-uses guarantee under concurrent attempts.
package accesscode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/touchlinehq/touchline/db"
	"github.com/touchlinehq/touchline/db/models"
	"gorm.io/gorm"
)

// Reason explains why a code did not validate.
type Reason string

const (
	ReasonNotFound        Reason = "not_found"
	ReasonExpired         Reason = "expired"
	ReasonMaxUsesReached  Reason = "max_uses_reached"
	ReasonAlreadyRedeemed Reason = "already_redeemed"
	ReasonDeactivated     Reason = "deactivated"
)

// Verdict is the result of a validation or redemption attempt. Reason is
// empty when OK is true.
type Verdict struct {
	OK     bool
	Reason Reason
}

// ErrGenerationCollision is returned when token generation kept colliding
// with existing codes. With an 8-character alphanumeric space this means
// something is very wrong, but it is never silently ignored.
var ErrGenerationCollision = errors.New("access code generation collided")

const generateRetries = 3

type Options struct {
	// PerCallerOnce rejects a second redemption by the same caller. When
	// false a code is shareable and every redemption counts against the
	// cap, duplicates included.
	PerCallerOnce bool
}

type Store struct {
	gdb  *gorm.DB
	opts Options
	now  func() time.Time
}

func NewStore(gdb *gorm.DB, opts Options) *Store {
	return &Store{gdb: gdb, opts: opts, now: time.Now}
}

// Normalize uppercases a token for case-insensitive comparison.
func Normalize(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

// Generate creates a new code issued by issuer, expiring lifetime from
// now, redeemable maxUses times. Token collisions are retried a few times
// and then surfaced as ErrGenerationCollision.
func (s *Store) Generate(ctx context.Context, issuer string, lifetime time.Duration, maxUses int) (*models.AccessCode, error) {
	if s == nil || s.gdb == nil {
		return nil, fmt.Errorf("access code store not configured")
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("lifetime must be positive")
	}
	if maxUses <= 0 {
		return nil, fmt.Errorf("max uses must be positive")
	}

	gdb := db.FromContext(ctx, s.gdb)
	now := s.now().UTC()

	for attempt := 0; attempt < generateRetries; attempt++ {
		token, err := newToken()
		if err != nil {
			return nil, err
		}
		code := &models.AccessCode{
			Code:      token,
			CreatedBy: strings.TrimSpace(issuer),
			CreatedAt: now,
			ExpiresAt: now.Add(lifetime),
			MaxUses:   maxUses,
			UsedCount: 0,
			Active:    true,
		}
		err = gdb.WithContext(ctx).Create(code).Error
		if err == nil {
			return code, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return nil, fmt.Errorf("create access code: %w", err)
	}
	return nil, ErrGenerationCollision
}

// Validate reports whether caller could redeem token right now. The first
// validation that observes an expired code durably deactivates it; that is
// the one read with a persisted side effect, and it is idempotent.
func (s *Store) Validate(ctx context.Context, token, caller string) (Verdict, error) {
	if s == nil || s.gdb == nil {
		return Verdict{}, fmt.Errorf("access code store not configured")
	}
	gdb := db.FromContext(ctx, s.gdb)

	code, err := s.findByToken(ctx, gdb, token)
	if err != nil {
		return Verdict{}, err
	}
	if code == nil {
		return Verdict{Reason: ReasonNotFound}, nil
	}
	return s.verdictFor(ctx, gdb, code, caller)
}

// Redeem consumes one use of token for caller. The capacity re-check and
// the counter increment run as one guarded UPDATE inside a transaction, so
// at most MaxUses redemptions ever commit even when attempts race.
func (s *Store) Redeem(ctx context.Context, token, caller string) (Verdict, error) {
	if s == nil || s.gdb == nil {
		return Verdict{}, fmt.Errorf("access code store not configured")
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return Verdict{}, fmt.Errorf("missing caller identity")
	}

	gdb := db.FromContext(ctx, s.gdb)
	var verdict Verdict
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := s.findByToken(ctx, tx, token)
		if err != nil {
			return err
		}
		if code == nil {
			verdict = Verdict{Reason: ReasonNotFound}
			return nil
		}

		v, err := s.verdictFor(ctx, tx, code, caller)
		if err != nil {
			return err
		}
		if !v.OK {
			verdict = v
			return nil
		}

		if s.opts.PerCallerOnce {
			red := models.AccessCodeRedemption{
				ID:           uuid.NewString(),
				AccessCodeID: code.ID,
				Caller:       caller,
				CreatedAt:    s.now().UTC(),
			}
			if err := tx.Create(&red).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					verdict = Verdict{Reason: ReasonAlreadyRedeemed}
					return nil
				}
				return fmt.Errorf("record redemption: %w", err)
			}
		}

		// Guarded increment: the WHERE clause re-checks capacity so two
		// racing redemptions of the last slot cannot both commit.
		res := tx.Model(&models.AccessCode{}).
			Where("id = ? AND active = ? AND used_count < max_uses", code.ID, true).
			Updates(map[string]any{
				"used_count": gorm.Expr("used_count + 1"),
				"active":     gorm.Expr("CASE WHEN used_count + 1 >= max_uses THEN ? ELSE active END", false),
			})
		if res.Error != nil {
			return fmt.Errorf("consume access code: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			verdict = Verdict{Reason: ReasonMaxUsesReached}
			return errRollbackRedemption
		}

		verdict = Verdict{OK: true}
		return nil
	})
	if err != nil && !errors.Is(err, errRollbackRedemption) {
		return Verdict{}, err
	}
	return verdict, nil
}

// errRollbackRedemption aborts the transaction so a redemption row written
// before the capacity check failed does not survive.
var errRollbackRedemption = errors.New("rollback redemption")

// ListActive returns usable codes (active and not past expiry), newest
// first.
func (s *Store) ListActive(ctx context.Context) ([]models.AccessCode, error) {
	if s == nil || s.gdb == nil {
		return nil, fmt.Errorf("access code store not configured")
	}
	gdb := db.FromContext(ctx, s.gdb)
	var codes []models.AccessCode
	err := gdb.WithContext(ctx).
		Where("active = ? AND expires_at > ?", true, s.now().UTC()).
		Order("created_at DESC").
		Find(&codes).Error
	if err != nil {
		return nil, fmt.Errorf("list access codes: %w", err)
	}
	return codes, nil
}

func (s *Store) findByToken(ctx context.Context, gdb *gorm.DB, token string) (*models.AccessCode, error) {
	token = Normalize(token)
	if token == "" {
		return nil, nil
	}
	var code models.AccessCode
	err := gdb.WithContext(ctx).Where("code = ?", token).First(&code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch access code: %w", err)
	}
	return &code, nil
}

func (s *Store) verdictFor(ctx context.Context, gdb *gorm.DB, code *models.AccessCode, caller string) (Verdict, error) {
	now := s.now().UTC()
	if !now.Before(code.ExpiresAt) {
		if code.Active {
			err := gdb.WithContext(ctx).Model(&models.AccessCode{}).
				Where("id = ?", code.ID).
				Update("active", false).Error
			if err != nil {
				return Verdict{}, fmt.Errorf("deactivate expired code: %w", err)
			}
		}
		return Verdict{Reason: ReasonExpired}, nil
	}
	if code.UsedCount >= code.MaxUses {
		return Verdict{Reason: ReasonMaxUsesReached}, nil
	}
	if !code.Active {
		return Verdict{Reason: ReasonDeactivated}, nil
	}
	if s.opts.PerCallerOnce && strings.TrimSpace(caller) != "" {
		var n int64
		err := gdb.WithContext(ctx).Model(&models.AccessCodeRedemption{}).
			Where("access_code_id = ? AND caller = ?", code.ID, caller).
			Count(&n).Error
		if err != nil {
			return Verdict{}, fmt.Errorf("check prior redemption: %w", err)
		}
		if n > 0 {
			return Verdict{Reason: ReasonAlreadyRedeemed}, nil
		}
	}
	return Verdict{OK: true}, nil
}
