package workers

import (
	"context"
	"log"
	"time"

	"github.com/quickai-labs/quickai/backend/internal/identity"
	"github.com/quickai-labs/quickai/backend/internal/models"
)

// Directory is the slice of the identity client the worker needs.
type Directory interface {
	ListUsers(ctx context.Context, limit, offset int) ([]identity.User, error)
	SetFreeUsage(ctx context.Context, u identity.User, usage int) error
}

// PremiumUsageResetWorker periodically zeroes the free-usage counter of
// premium users. The auth path also resets opportunistically; this sweep
// catches users who upgraded and never came back.
type PremiumUsageResetWorker struct {
	Directory Directory
	Interval  time.Duration
	PageSize  int
}

// Start runs until ctx is cancelled.
func (w *PremiumUsageResetWorker) Start(ctx context.Context) {
	if w.Directory == nil {
		return
	}
	if w.Interval <= 0 {
		w.Interval = 6 * time.Hour
	}
	if w.PageSize <= 0 {
		w.PageSize = 100
	}

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	log.Printf("[UsageResetWorker] started interval=%s", w.Interval)
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[UsageResetWorker] stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *PremiumUsageResetWorker) runOnce(ctx context.Context) {
	start := time.Now()
	var scanned, reset int

	for offset := 0; ; offset += w.PageSize {
		select {
		case <-ctx.Done():
			return
		default:
		}

		users, err := w.Directory.ListUsers(ctx, w.PageSize, offset)
		if err != nil {
			log.Printf("[UsageResetWorker] list users failed offset=%d err=%v", offset, err)
			return
		}
		if len(users) == 0 {
			break
		}
		scanned += len(users)

		for _, u := range users {
			if u.Plan() != models.PlanPremium || u.FreeUsage() == 0 {
				continue
			}
			if err := w.Directory.SetFreeUsage(ctx, u, 0); err != nil {
				log.Printf("[UsageResetWorker] reset failed userId=%s err=%v", u.ID, err)
				continue
			}
			reset++
		}

		if len(users) < w.PageSize {
			break
		}
	}

	if reset > 0 {
		log.Printf("[UsageResetWorker] done scanned=%d reset=%d dur=%s", scanned, reset, time.Since(start))
	}
}
