// Package quota implements the free-tier usage gate. The counter lives in the
// identity provider's user metadata; check and commit are two separate remote
// calls, so the limit is best-effort under concurrent requests from the same
// user.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/quickai-labs/quickai/backend/internal/identity"
	"github.com/quickai-labs/quickai/backend/internal/models"
)

// Capability names a metered feature.
type Capability string

const (
	Article           Capability = "article"
	BlogTitle         Capability = "blog-title"
	ImageGeneration   Capability = "image-generation"
	BackgroundRemoval Capability = "background-removal"
	ObjectRemoval     Capability = "object-removal"
	ResumeReview      Capability = "resume-review"
)

// FreeLimits defines per-capability free tier limits. Premium is unlimited.
var FreeLimits = map[Capability]int{
	Article:           10,
	BlogTitle:         15,
	ImageGeneration:   5,
	BackgroundRemoval: 10,
	ObjectRemoval:     10,
	ResumeReview:      10,
}

// ErrLimitReached is returned by Check when a free-tier user is at or over the
// capability limit. Handlers map it to 403 with an upgrade prompt.
var ErrLimitReached = errors.New("free usage limit reached")

// Store is the slice of the identity client the gate needs.
type Store interface {
	GetUser(ctx context.Context, userID string) (identity.User, error)
	SetFreeUsage(ctx context.Context, u identity.User, usage int) error
}

// Gate performs the check-then-act sequence against the identity store.
type Gate struct {
	Store Store
}

func NewGate(store Store) *Gate {
	return &Gate{Store: store}
}

// Result is the plan/usage snapshot a successful Check permits a request under.
type Result struct {
	User  identity.User
	Plan  string
	Usage int
	Limit int
}

// Remaining reports how many free calls are left after this request commits.
// Negative values are clamped to 0.
func (r Result) Remaining() int {
	if r.Plan == models.PlanPremium {
		return -1 // unlimited
	}
	left := r.Limit - r.Usage - 1
	if left < 0 {
		left = 0
	}
	return left
}

// Check fetches the caller's plan and usage and decides whether the capability
// call may proceed. Premium users pass unconditionally; a leftover counter
// from a prior free period is zeroed opportunistically. A store read failure
// is returned as-is so the caller fails closed.
func (g *Gate) Check(ctx context.Context, userID string, c Capability) (Result, error) {
	user, err := g.Store.GetUser(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("quota check: %w", err)
	}

	res := Result{
		User:  user,
		Plan:  user.Plan(),
		Usage: user.FreeUsage(),
		Limit: FreeLimits[c],
	}

	if res.Plan == models.PlanPremium {
		if res.Usage > 0 {
			// Best-effort reset; premium callers are never blocked on it.
			if err := g.Store.SetFreeUsage(ctx, user, 0); err != nil {
				log.Printf("[Quota] premium usage reset failed userId=%s err=%v", userID, err)
			} else {
				res.Usage = 0
			}
		}
		return res, nil
	}

	if res.Usage >= res.Limit {
		return res, ErrLimitReached
	}
	return res, nil
}

// Commit records one unit of usage after the protected work succeeded. The
// request has already been answered by the time a failure here can surface, so
// the error is logged and swallowed (accepted undercount).
func (g *Gate) Commit(ctx context.Context, res Result) {
	if res.Plan == models.PlanPremium {
		return
	}
	if err := g.Store.SetFreeUsage(ctx, res.User, res.Usage+1); err != nil {
		log.Printf("[Quota] usage increment failed userId=%s usage=%d err=%v", res.User.ID, res.Usage+1, err)
	}
}
