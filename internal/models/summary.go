package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// CreationType records how a summary was produced
type CreationType string

const (
	CreationTypeManual CreationType = "manual"
	CreationTypeAI     CreationType = "ai"
)

// Valid reports whether t is a known creation type
func (t CreationType) Valid() bool {
	return t == CreationTypeManual || t == CreationTypeAI
}

// Limits on summary fields
const (
	MaxTitleLength       = 500
	MaxSectionLength     = 50000
	MaxModelNameLength   = 255
	DefaultPageSize      = 20
	MaxPageSize          = 100
	DefaultSortField     = "created_at"
	DefaultSortDirection = "desc"
)

// Content section keys, in display order
const (
	SectionResearchObjective = "research_objective"
	SectionMethods           = "methods"
	SectionResults           = "results"
	SectionDiscussion        = "discussion"
	SectionOpenQuestions     = "open_questions"
	SectionConclusions       = "conclusions"
)

// SectionKeys lists every content section
var SectionKeys = []string{
	SectionResearchObjective,
	SectionMethods,
	SectionResults,
	SectionDiscussion,
	SectionOpenQuestions,
	SectionConclusions,
}

// SummaryContent is the fixed six-section body of a summary
type SummaryContent struct {
	ResearchObjective string `json:"research_objective"`
	Methods           string `json:"methods"`
	Results           string `json:"results"`
	Discussion        string `json:"discussion"`
	OpenQuestions     string `json:"open_questions"`
	Conclusions       string `json:"conclusions"`
}

// ContentPatch carries a subset of content sections. A nil field means
// "not provided"; on update the existing section is kept.
type ContentPatch struct {
	ResearchObjective *string `json:"research_objective,omitempty" validate:"omitempty,max=50000"`
	Methods           *string `json:"methods,omitempty" validate:"omitempty,max=50000"`
	Results           *string `json:"results,omitempty" validate:"omitempty,max=50000"`
	Discussion        *string `json:"discussion,omitempty" validate:"omitempty,max=50000"`
	OpenQuestions     *string `json:"open_questions,omitempty" validate:"omitempty,max=50000"`
	Conclusions       *string `json:"conclusions,omitempty" validate:"omitempty,max=50000"`
}

// UnknownSectionError is returned when a content object has a key outside SectionKeys
type UnknownSectionError struct {
	Key string
}

func (e *UnknownSectionError) Error() string {
	return fmt.Sprintf("unknown content section %q", e.Key)
}

// InvalidSectionError is returned when a section value is not a JSON string
type InvalidSectionError struct {
	Key string
}

func (e *InvalidSectionError) Error() string {
	return fmt.Sprintf("content section %q must be a string", e.Key)
}

// UnmarshalJSON rejects unknown section keys and non-string values
func (p *ContentPatch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out ContentPatch
	for key, value := range raw {
		target := out.field(key)
		if target == nil {
			return &UnknownSectionError{Key: key}
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return &InvalidSectionError{Key: key}
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return &InvalidSectionError{Key: key}
		}
		*target = &s
	}

	*p = out
	return nil
}

func (p *ContentPatch) field(key string) **string {
	switch key {
	case SectionResearchObjective:
		return &p.ResearchObjective
	case SectionMethods:
		return &p.Methods
	case SectionResults:
		return &p.Results
	case SectionDiscussion:
		return &p.Discussion
	case SectionOpenQuestions:
		return &p.OpenQuestions
	case SectionConclusions:
		return &p.Conclusions
	}
	return nil
}

// IsEmpty reports whether no section is set
func (p *ContentPatch) IsEmpty() bool {
	return len(p.Missing()) == len(SectionKeys)
}

// Missing returns the section keys that were not provided
func (p *ContentPatch) Missing() []string {
	var missing []string
	for _, key := range SectionKeys {
		if *p.field(key) == nil {
			missing = append(missing, key)
		}
	}
	return missing
}

// Complete converts a patch that sets every section into full content
func (p *ContentPatch) Complete() (SummaryContent, bool) {
	if len(p.Missing()) > 0 {
		return SummaryContent{}, false
	}
	return p.ApplyTo(SummaryContent{}), true
}

// ApplyTo overrides the sections present in p and keeps the rest of base
func (p *ContentPatch) ApplyTo(base SummaryContent) SummaryContent {
	merged := base
	if p.ResearchObjective != nil {
		merged.ResearchObjective = *p.ResearchObjective
	}
	if p.Methods != nil {
		merged.Methods = *p.Methods
	}
	if p.Results != nil {
		merged.Results = *p.Results
	}
	if p.Discussion != nil {
		merged.Discussion = *p.Discussion
	}
	if p.OpenQuestions != nil {
		merged.OpenQuestions = *p.OpenQuestions
	}
	if p.Conclusions != nil {
		merged.Conclusions = *p.Conclusions
	}
	return merged
}

// Summary is a user-owned research summary
type Summary struct {
	ID                string          `json:"id"`
	UserID            string          `json:"-"`
	Title             string          `json:"title"`
	Content           SummaryContent  `json:"content"`
	OriginalAIContent *SummaryContent `json:"-"`
	CreationType      CreationType    `json:"creation_type"`
	AIModelName       *string         `json:"ai_model_name"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// SummaryListItem is the list view of a summary, without content
type SummaryListItem struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	CreationType CreationType `json:"creation_type"`
	AIModelName  *string      `json:"ai_model_name"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Pagination metadata for list responses
type Pagination struct {
	CurrentPage  int `json:"current_page"`
	TotalPages   int `json:"total_pages"`
	TotalItems   int `json:"total_items"`
	ItemsPerPage int `json:"items_per_page"`
}

// SummaryList is the response of GET /api/summaries
type SummaryList struct {
	Summaries  []SummaryListItem `json:"summaries"`
	Pagination Pagination        `json:"pagination"`
}

// SummaryListQuery holds validated list parameters
type SummaryListQuery struct {
	Page         int
	Limit        int
	Sort         string
	Order        string
	CreationType CreationType // empty means no filter
}

// Normalize applies defaults and clamps limit to [1, MaxPageSize]
func (q SummaryListQuery) Normalize() SummaryListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 1
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if q.Sort == "" {
		q.Sort = DefaultSortField
	}
	if q.Order == "" {
		q.Order = DefaultSortDirection
	}
	return q
}

// Offset returns the number of rows skipped before the requested page
func (q SummaryListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// CreateSummaryRequest is the body of POST /api/summaries
type CreateSummaryRequest struct {
	Title   string        `json:"title" validate:"required"`
	Content *ContentPatch `json:"content" validate:"required"`
}

// GenerateAISummaryRequest is the body of POST /api/summaries/generate-ai
type GenerateAISummaryRequest struct {
	Title       string        `json:"title" validate:"required"`
	Content     *ContentPatch `json:"content" validate:"required"`
	AIModelName string        `json:"ai_model_name" validate:"required,max=255"`
}

// UpdateSummaryRequest is the body of PATCH /api/summaries/:id
type UpdateSummaryRequest struct {
	Title   *string       `json:"title,omitempty"`
	Content *ContentPatch `json:"content,omitempty"`
}

// GenerateAISummaryResponse adds the remaining monthly quota to the created summary
type GenerateAISummaryResponse struct {
	*Summary
	RemainingGenerations int `json:"remaining_generations"`
}

// DeleteSummaryResponse is returned by DELETE /api/summaries/:id
type DeleteSummaryResponse struct {
	Message   string `json:"message"`
	DeletedID string `json:"deleted_id"`
}
