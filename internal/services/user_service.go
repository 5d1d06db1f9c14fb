package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/patrickmn/go-cache"

	"paperdigest/internal/apierror"
	"paperdigest/internal/database"
	"paperdigest/internal/models"
)

// UserService provisions user rows and deletes accounts
type UserService struct {
	db       *database.DB
	throttle *GenerationThrottle
	now      func() time.Time

	// user IDs known to have a row; skips the insert on most requests
	provisioned *cache.Cache
}

// NewUserService creates a new user service.
// throttle can be nil and set later via SetGenerationThrottle
func NewUserService(db *database.DB, throttle *GenerationThrottle) *UserService {
	return &UserService{
		db:          db,
		throttle:    throttle,
		now:         time.Now,
		provisioned: cache.New(time.Minute, 5*time.Minute),
	}
}

// SetGenerationThrottle sets the throttle whose counters are cleared on account deletion
func (s *UserService) SetGenerationThrottle(throttle *GenerationThrottle) {
	s.throttle = throttle
}

// SyncUser makes sure a users row exists for userID.
// Called on every authenticated request; existing rows are left untouched.
func (s *UserService) SyncUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if _, found := s.provisioned.Get(userID); found {
		return nil
	}

	now := database.Timestamp(s.now())
	res, err := s.db.ExecContext(ctx,
		s.db.InsertIgnore()+` INTO users (id, ai_usage_count, usage_period_start, created_at, updated_at) VALUES (?, 0, ?, ?, ?)`,
		userID, models.MonthStart(now), now, now)
	if err != nil {
		return apierror.Storage("provision user", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("👤 [USER] Provisioned user %s", userID)
	}
	s.provisioned.Set(userID, struct{}{}, cache.DefaultExpiration)
	return nil
}

// GetUser returns the raw users row
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, ai_usage_count, usage_period_start, created_at, updated_at FROM users WHERE id = ?`, userID).
		Scan(&user.ID, &user.AIUsageCount, &user.UsagePeriodStart, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierror.NotFound("User not found")
	}
	if err != nil {
		return nil, apierror.Storage("read user", err)
	}

	user.UsagePeriodStart = user.UsagePeriodStart.UTC()
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}

// DeleteAccount removes the user and every summary they own
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	var removed int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		// Summaries first; the users FK cascade is not relied on
		res, err := tx.ExecContext(ctx, `DELETE FROM summaries WHERE user_id = ?`, userID)
		if err != nil {
			return apierror.Storage("delete user summaries", err)
		}
		removed, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
		if err != nil {
			return apierror.Storage("delete user", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return apierror.NotFound("User not found")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.provisioned.Delete(userID)

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, userID); err != nil {
			log.Printf("⚠️  [USER] Failed to reset generation throttle for %s: %v", userID, err)
		}
	}

	log.Printf("🗑️  [USER] Deleted account %s (%d summaries)", userID, removed)
	return nil
}
