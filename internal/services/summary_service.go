package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"paperdigest/internal/apierror"
	"paperdigest/internal/database"
	"paperdigest/internal/models"
)

// SummaryService is the repository adapter for research summaries.
// Every operation is scoped to the calling user.
type SummaryService struct {
	db    *database.DB
	quota *QuotaService
	now   func() time.Time
}

// NewSummaryService creates a new summary service
func NewSummaryService(db *database.DB, quota *QuotaService) *SummaryService {
	return &SummaryService{
		db:    db,
		quota: quota,
		now:   time.Now,
	}
}

// sortColumns whitelists ORDER BY targets
var sortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"title":      "title",
}

const summaryColumns = `id, user_id, title, content, original_ai_content, creation_type, ai_model_name, created_at, updated_at`

// Create stores a manual summary
func (s *SummaryService) Create(ctx context.Context, userID, title string, content models.SummaryContent) (summary *models.Summary, err error) {
	defer s.observe("create", time.Now(), &err)

	now := database.Timestamp(s.now())
	summary = &models.Summary{
		ID:           uuid.New().String(),
		UserID:       userID,
		Title:        title,
		Content:      content,
		CreationType: models.CreationTypeManual,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.insert(ctx, s.db.DB, summary); err != nil {
		return nil, err
	}

	log.Printf("📝 [SUMMARY] Created manual summary %s for user %s", summary.ID, userID)
	return summary, nil
}

// CreateAI stores an AI-generated summary and counts it against the monthly
// quota in one transaction. decision must come from QuotaService.CheckAndConsume.
func (s *SummaryService) CreateAI(ctx context.Context, userID, title string, content models.SummaryContent, modelName string, decision *models.QuotaDecision) (summary *models.Summary, usageAfter int, err error) {
	defer s.observe("create_ai", time.Now(), &err)

	if decision == nil || decision.UserID != userID {
		return nil, 0, apierror.Internal(errors.New("ai summary created without a matching quota decision"))
	}
	if !decision.Allowed {
		return nil, 0, apierror.QuotaExceeded(decision.UsageBefore, decision.Limit, decision.PeriodEnd)
	}

	now := database.Timestamp(s.now())
	original := content
	model := modelName
	summary = &models.Summary{
		ID:                uuid.New().String(),
		UserID:            userID,
		Title:             title,
		Content:           content,
		OriginalAIContent: &original,
		CreationType:      models.CreationTypeAI,
		AIModelName:       &model,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		status, err := s.quota.readTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		// Another request may have used the last generation since the check
		if status.UsageCount >= status.Limit {
			quotaRejections.Inc()
			return apierror.QuotaExceeded(status.UsageCount, status.Limit, status.PeriodEnd)
		}

		if err := s.insert(ctx, tx, summary); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET ai_usage_count = ai_usage_count + 1, updated_at = ? WHERE id = ?`,
			now, userID); err != nil {
			return apierror.Storage("increment ai usage", err)
		}
		usageAfter = status.UsageCount + 1
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	aiGenerations.WithLabelValues(modelName).Inc()
	log.Printf("🤖 [SUMMARY] Created AI summary %s for user %s (model=%s, usage=%d/%d)",
		summary.ID, userID, modelName, usageAfter, decision.Limit)
	return summary, usageAfter, nil
}

// Get returns a summary owned by userID
func (s *SummaryService) Get(ctx context.Context, userID, id string) (summary *models.Summary, err error) {
	defer s.observe("get", time.Now(), &err)
	return s.fetchOwned(ctx, s.db.DB, userID, id, "access")
}

// Update applies a title change and a section-wise content merge.
// updated_at always moves forward, even when nothing else changes.
func (s *SummaryService) Update(ctx context.Context, userID, id string, title *string, patch *models.ContentPatch) (summary *models.Summary, err error) {
	defer s.observe("update", time.Now(), &err)

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.fetchOwned(ctx, tx, userID, id, "update")
		if err != nil {
			return err
		}

		if title != nil {
			existing.Title = *title
		}
		if patch != nil {
			existing.Content = patch.ApplyTo(existing.Content)
		}
		existing.UpdatedAt = nextUpdatedAt(existing.UpdatedAt, s.now())

		content, err := json.Marshal(existing.Content)
		if err != nil {
			return apierror.Internal(fmt.Errorf("encode content: %w", err))
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE summaries SET title = ?, content = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
			existing.Title, string(content), existing.UpdatedAt, id, userID)
		if err != nil {
			return apierror.Storage("update summary", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return apierror.NotFound("Summary not found")
		}

		summary = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✏️  [SUMMARY] Updated summary %s for user %s", id, userID)
	return summary, nil
}

// Delete removes a summary owned by userID and returns its id
func (s *SummaryService) Delete(ctx context.Context, userID, id string) (deletedID string, err error) {
	defer s.observe("delete", time.Now(), &err)

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.fetchOwned(ctx, tx, userID, id, "delete"); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM summaries WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return apierror.Storage("delete summary", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return apierror.NotFound("Summary not found")
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	log.Printf("🗑️  [SUMMARY] Deleted summary %s for user %s", id, userID)
	return id, nil
}

// List returns one page of userID's summaries
func (s *SummaryService) List(ctx context.Context, userID string, q models.SummaryListQuery) (list *models.SummaryList, err error) {
	defer s.observe("list", time.Now(), &err)

	q = q.Normalize()
	column, ok := sortColumns[q.Sort]
	if !ok {
		return nil, apierror.Validation("sort must be one of: created_at, updated_at, title", "sort")
	}
	direction := "DESC"
	if strings.EqualFold(q.Order, "asc") {
		direction = "ASC"
	}

	where := `WHERE user_id = ?`
	args := []interface{}{userID}
	if q.CreationType != "" {
		where += ` AND creation_type = ?`
		args = append(args, string(q.CreationType))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM summaries `+where, args...).Scan(&total); err != nil {
		return nil, apierror.Storage("count summaries", err)
	}

	query := fmt.Sprintf(
		`SELECT id, title, creation_type, ai_model_name, created_at, updated_at FROM summaries %s ORDER BY %s %s, id %s LIMIT ? OFFSET ?`,
		where, column, direction, direction)
	rows, err := s.db.QueryContext(ctx, query, append(args, q.Limit, q.Offset())...)
	if err != nil {
		return nil, apierror.Storage("list summaries", err)
	}
	defer rows.Close()

	items := make([]models.SummaryListItem, 0, q.Limit)
	for rows.Next() {
		var (
			item         models.SummaryListItem
			creationType string
			modelName    sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.Title, &creationType, &modelName, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, apierror.Storage("scan summary", err)
		}
		item.CreationType = models.CreationType(creationType)
		if modelName.Valid {
			name := modelName.String
			item.AIModelName = &name
		}
		item.CreatedAt = item.CreatedAt.UTC()
		item.UpdatedAt = item.UpdatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.Storage("list summaries", err)
	}

	return &models.SummaryList{
		Summaries: items,
		Pagination: models.Pagination{
			CurrentPage:  q.Page,
			TotalPages:   (total + q.Limit - 1) / q.Limit,
			TotalItems:   total,
			ItemsPerPage: q.Limit,
		},
	}, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *SummaryService) insert(ctx context.Context, q queryer, summary *models.Summary) error {
	content, err := json.Marshal(summary.Content)
	if err != nil {
		return apierror.Internal(fmt.Errorf("encode content: %w", err))
	}

	var original interface{}
	if summary.OriginalAIContent != nil {
		raw, err := json.Marshal(summary.OriginalAIContent)
		if err != nil {
			return apierror.Internal(fmt.Errorf("encode original content: %w", err))
		}
		original = string(raw)
	}

	var modelName interface{}
	if summary.AIModelName != nil {
		modelName = *summary.AIModelName
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO summaries (`+summaryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.UserID, summary.Title, string(content), original,
		string(summary.CreationType), modelName, summary.CreatedAt, summary.UpdatedAt)
	if err != nil {
		return apierror.Storage("insert summary", err)
	}
	return nil
}

// fetchOwned loads a summary by id and checks that userID owns it.
// action only shapes the Forbidden message.
func (s *SummaryService) fetchOwned(ctx context.Context, q queryer, userID, id, action string) (*models.Summary, error) {
	query := `SELECT ` + summaryColumns + ` FROM summaries WHERE id = ?`
	if _, inTx := q.(*sql.Tx); inTx {
		query += s.db.ForUpdate()
	}

	summary, err := scanSummary(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierror.NotFound("Summary not found")
	}
	if err != nil {
		return nil, apierror.Storage("read summary", err)
	}

	if summary.UserID != userID {
		log.Printf("⚠️  [SUMMARY] User %s tried to %s summary %s owned by another user", userID, action, id)
		return nil, apierror.Forbidden(fmt.Sprintf("You do not have permission to %s this summary", action))
	}
	return summary, nil
}

func scanSummary(row *sql.Row) (*models.Summary, error) {
	var (
		summary      models.Summary
		content      []byte
		original     []byte
		creationType string
		modelName    sql.NullString
	)
	if err := row.Scan(&summary.ID, &summary.UserID, &summary.Title, &content, &original,
		&creationType, &modelName, &summary.CreatedAt, &summary.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(content, &summary.Content); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if original != nil {
		var oc models.SummaryContent
		if err := json.Unmarshal(original, &oc); err != nil {
			return nil, fmt.Errorf("decode original content: %w", err)
		}
		summary.OriginalAIContent = &oc
	}
	summary.CreationType = models.CreationType(creationType)
	if modelName.Valid {
		name := modelName.String
		summary.AIModelName = &name
	}
	summary.CreatedAt = summary.CreatedAt.UTC()
	summary.UpdatedAt = summary.UpdatedAt.UTC()
	return &summary, nil
}

// nextUpdatedAt returns now at storage precision, or previous+1µs when the
// clock has not moved past previous
func nextUpdatedAt(previous, now time.Time) time.Time {
	next := database.Timestamp(now)
	if !next.After(previous) {
		next = previous.Add(time.Microsecond)
	}
	return next
}

func (s *SummaryService) observe(operation string, start time.Time, err *error) {
	observeSummaryOp(operation, time.Since(start).Seconds(), *err)
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return apierror.KindOf(err).String()
}
