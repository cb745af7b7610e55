package models

import (
	"time"

	"github.com/lib/pq"
)

// Plan tiers as stored in the identity provider's private metadata.
const (
	PlanFree    = "free"
	PlanPremium = "premium"
)

// Creation type tags persisted in the creations table.
const (
	TypeArticle      = "article"
	TypeBlogTitle    = "blog-title"
	TypeImage        = "image"
	TypeResumeReview = "resume-review"
)

type Creation struct {
	ID        int64          `json:"id"`
	UserID    string         `json:"user_id"`
	Prompt    string         `json:"prompt"`
	Content   string         `json:"content"`
	Type      string         `json:"type"`
	Publish   bool           `json:"publish"`
	Likes     pq.StringArray `json:"likes"`
	CreatedAt time.Time      `json:"created_at"`
}

// UserQuota is the plan/usage snapshot read from the identity provider.
type UserQuota struct {
	UserID    string
	Plan      string
	FreeUsage int
}

func (q UserQuota) IsPremium() bool {
	return q.Plan == PlanPremium
}
