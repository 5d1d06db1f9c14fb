package services

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"paperdigest/internal/apierror"
	"paperdigest/internal/database"
	"paperdigest/internal/models"
)

// QuotaService tracks the monthly AI generation quota stored on the users table.
// Rollover is lazy: the first read in a new UTC month resets the counter.
type QuotaService struct {
	db    *database.DB
	limit int
	now   func() time.Time
}

// NewQuotaService creates a new quota service
func NewQuotaService(db *database.DB) *QuotaService {
	return &QuotaService{
		db:    db,
		limit: models.MonthlyAILimit,
		now:   time.Now,
	}
}

// CheckAndConsume decides whether userID may create another AI summary this month.
// The counter itself is incremented by SummaryService.CreateAI in the same
// transaction that inserts the summary.
func (s *QuotaService) CheckAndConsume(ctx context.Context, userID string) (*models.QuotaDecision, error) {
	var status *models.QuotaStatus
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		status, err = s.readTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if status.UsageCount >= status.Limit {
		quotaRejections.Inc()
		log.Printf("🚫 [QUOTA] User %s reached monthly AI limit (%d/%d)", userID, status.UsageCount, status.Limit)
		return nil, apierror.QuotaExceeded(status.UsageCount, status.Limit, status.PeriodEnd)
	}

	return &models.QuotaDecision{
		UserID:      userID,
		Allowed:     true,
		UsageBefore: status.UsageCount,
		Limit:       status.Limit,
		PeriodStart: status.PeriodStart,
		PeriodEnd:   status.PeriodEnd,
	}, nil
}

// Usage returns the rolled-over quota state of userID. It never fails on exhaustion.
func (s *QuotaService) Usage(ctx context.Context, userID string) (*models.QuotaStatus, error) {
	var status *models.QuotaStatus
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		status, err = s.readTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// readTx loads the user's quota row with a row lock and applies the monthly
// rollover inside tx.
func (s *QuotaService) readTx(ctx context.Context, tx *sql.Tx, userID string) (*models.QuotaStatus, error) {
	var (
		count       int
		periodStart time.Time
	)
	query := `SELECT ai_usage_count, usage_period_start FROM users WHERE id = ?` + s.db.ForUpdate()
	err := tx.QueryRowContext(ctx, query, userID).Scan(&count, &periodStart)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierror.NotFound("User not found")
	}
	if err != nil {
		return nil, apierror.Storage("read user quota", err)
	}

	now := s.now()
	periodStart = periodStart.UTC()
	currentStart := models.MonthStart(now)

	if periodStart.Before(currentStart) {
		_, err := tx.ExecContext(ctx,
			`UPDATE users SET ai_usage_count = 0, usage_period_start = ?, updated_at = ? WHERE id = ?`,
			currentStart, database.Timestamp(now), userID)
		if err != nil {
			return nil, apierror.Storage("reset user quota", err)
		}
		log.Printf("🔄 [QUOTA] Reset AI usage for user %s (period %s)", userID, currentStart.Format("2006-01"))
		count = 0
		periodStart = currentStart
	}

	return &models.QuotaStatus{
		UserID:      userID,
		UsageCount:  count,
		Limit:       s.limit,
		PeriodStart: periodStart,
		PeriodEnd:   models.NextMonthStart(periodStart),
	}, nil
}
