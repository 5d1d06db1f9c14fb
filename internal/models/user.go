package models

import "time"

// MonthlyAILimit is the number of AI generations a user may create per calendar month (UTC)
const MonthlyAILimit = 5

// DeleteAccountConfirmation must be sent verbatim to delete an account
const DeleteAccountConfirmation = "DELETE"

// User is the relational row that carries a user's AI quota state.
// ID is the JWT subject.
type User struct {
	ID               string    `json:"id"`
	AIUsageCount     int       `json:"ai_usage_count"`
	UsagePeriodStart time.Time `json:"usage_period_start"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// QuotaStatus is the rolled-over usage view of a user
type QuotaStatus struct {
	UserID      string
	UsageCount  int
	Limit       int
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Remaining returns the generations left this period, never negative
func (s *QuotaStatus) Remaining() int {
	if r := s.Limit - s.UsageCount; r > 0 {
		return r
	}
	return 0
}

// QuotaDecision is the result of a quota check
type QuotaDecision struct {
	UserID      string
	Allowed     bool
	UsageBefore int
	Limit       int
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// UserProfileResponse is returned by GET /api/users/me
type UserProfileResponse struct {
	ID                   string    `json:"id"`
	AIUsageCount         int       `json:"ai_usage_count"`
	UsagePeriodStart     time.Time `json:"usage_period_start"`
	MonthlyLimit         int       `json:"monthly_limit"`
	RemainingGenerations int       `json:"remaining_generations"`
}

// AIUsageResponse is returned by GET /api/users/ai-usage
type AIUsageResponse struct {
	CanGenerate          bool      `json:"can_generate"`
	UsageCount           int       `json:"usage_count"`
	MonthlyLimit         int       `json:"monthly_limit"`
	RemainingGenerations int       `json:"remaining_generations"`
	PeriodStart          time.Time `json:"period_start"`
	PeriodEnd            time.Time `json:"period_end"`
}

// DeleteAccountRequest is the body of DELETE /api/users/me
type DeleteAccountRequest struct {
	Confirmation string `json:"confirmation"`
}

// MonthStart returns the first instant of t's calendar month in UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextMonthStart returns the first instant of the month after t's, in UTC
func NextMonthStart(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0)
}
