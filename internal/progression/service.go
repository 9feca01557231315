// Package progression applies XP and level changes to stored users.
package progression

import (
	"context"
	"math"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/ykvlv/levelbot/internal/apperr"
	"github.com/ykvlv/levelbot/internal/domain"
	"github.com/ykvlv/levelbot/internal/store"
)

// LevelUp is the outcome of an XP grant. Level is set only when LeveledUp.
type LevelUp struct {
	LeveledUp bool
	Level     int64
}

// Service owns every write to a user's Level and XP. Each write is one store
// transaction, and Level is always re-derived from XP inside it.
type Service struct {
	repo store.UserRepo
	log  *zap.Logger
	base int64
}

// NewService creates a Service using the given curve base (<= 0 means default).
func NewService(repo store.UserRepo, log *zap.Logger, base int64) *Service {
	if base <= 0 {
		base = domain.DefaultXPBase
	}
	return &Service{repo: repo, log: log, base: base}
}

// Base returns the curve base in use.
func (s *Service) Base() int64 { return s.base }

// Register creates a user at level 1 with no XP.
func (s *Service) Register(ctx context.Context, externalID int64, username string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.Validation("username must not be empty")
	}
	u, err := s.repo.CreateUser(ctx, &domain.User{
		ExternalID: externalID,
		Username:   username,
		Level:      1,
		XP:         new(big.Int),
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.Int64("userID", externalID), zap.String("username", username))
	return u, nil
}

// Profile returns the stored user.
func (s *Service) Profile(ctx context.Context, externalID int64) (*domain.User, error) {
	return s.repo.GetUser(ctx, externalID)
}

// IncrementXP adds amount to the user's XP and re-derives the level. A grant
// that crosses several thresholds reports the final level.
func (s *Service) IncrementXP(ctx context.Context, externalID int64, amount *big.Int) (LevelUp, error) {
	if amount == nil || amount.Sign() < 0 {
		return LevelUp{}, apperr.Validation("xp amount must not be negative")
	}
	prev, next, err := s.repo.UpdateProgress(ctx, externalID, func(u *domain.User) error {
		u.XP.Add(u.XP, amount)
		u.Level = domain.LevelFromXP(u.XP, s.base)
		return nil
	})
	if err != nil {
		return LevelUp{}, err
	}
	if next.Level > prev.Level {
		s.log.Debug("level up",
			zap.Int64("userID", externalID),
			zap.Int64("from", prev.Level),
			zap.Int64("to", next.Level),
		)
		return LevelUp{LeveledUp: true, Level: next.Level}, nil
	}
	return LevelUp{}, nil
}

// IncrementLevel moves the user to the next level, raising XP to that level's
// threshold when it is below it, and returns the new level.
func (s *Service) IncrementLevel(ctx context.Context, externalID int64) (int64, error) {
	_, next, err := s.repo.UpdateProgress(ctx, externalID, func(u *domain.User) error {
		cur := domain.LevelFromXP(u.XP, s.base)
		if cur == math.MaxInt64 {
			return apperr.Validation("already at the maximum level")
		}
		target := cur + 1
		if need := domain.XPForLevel(target, s.base); u.XP.Cmp(need) < 0 {
			u.XP.Set(need)
		}
		u.Level = domain.LevelFromXP(u.XP, s.base)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next.Level, nil
}

// SetXP overrides XP; Level follows in the same write.
func (s *Service) SetXP(ctx context.Context, externalID int64, xp *big.Int) (*domain.User, error) {
	if xp == nil || xp.Sign() < 0 {
		return nil, apperr.Validation("xp must not be negative")
	}
	_, next, err := s.repo.UpdateProgress(ctx, externalID, func(u *domain.User) error {
		u.XP.Set(xp)
		u.Level = domain.LevelFromXP(u.XP, s.base)
		return nil
	})
	return next, err
}

// SetLevel overrides Level; XP becomes the level's threshold in the same write.
func (s *Service) SetLevel(ctx context.Context, externalID int64, level int64) (*domain.User, error) {
	if level < 1 {
		return nil, apperr.Validation("level must be at least 1")
	}
	_, next, err := s.repo.UpdateProgress(ctx, externalID, func(u *domain.User) error {
		u.XP = domain.XPForLevel(level, s.base)
		u.Level = level
		return nil
	})
	return next, err
}
