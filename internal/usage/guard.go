// Package usage enforces the per-session daily request cap.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"posemind/internal/domain"
)

// DefaultLimit is the daily cap applied when none is configured.
const DefaultLimit = 20

const dayLayout = "2006-01-02"

// Store keeps per-session counters keyed by local date.
type Store interface {
	// Increment adds one to the (session, day) counter unless it already
	// reached limit. It returns the count after the call and whether the
	// unit was granted. expireAt is when the counter may be discarded.
	Increment(ctx context.Context, session, day string, limit int, expireAt time.Time) (int, bool, error)
	// Count returns the current counter value without changing it.
	Count(ctx context.Context, session, day string) (int, error)
	// Grant replaces the prepaid uses of item for (session, day) with n.
	Grant(ctx context.Context, session, day, item string, n int, expireAt time.Time) error
	// Redeem takes one prepaid use of item, reporting false when none is left.
	Redeem(ctx context.Context, session, day, item string) (bool, error)
}

// Status is the quota state reported to clients.
type Status struct {
	Date      string `json:"date"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

// Guard checks and charges the daily cap.
type Guard struct {
	Store    Store
	Limit    int
	Clock    func() time.Time
	Location *time.Location
}

// NewGuard returns a Guard using the local time zone and wall clock.
func NewGuard(store Store, limit int) *Guard {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Guard{Store: store, Limit: limit, Clock: time.Now, Location: time.Local}
}

// Consume charges one unit for session. It returns domain.ErrQuotaExceeded
// once the cap is reached; rejected calls are not counted.
func (g *Guard) Consume(ctx context.Context, session string) (Status, error) {
	session = strings.TrimSpace(session)
	if session == "" {
		return Status{}, errors.New("usage: session is required")
	}
	now := g.now()
	day := now.Format(dayLayout)
	count, ok, err := g.Store.Increment(ctx, session, day, g.limit(), nextMidnight(now))
	if err != nil {
		return Status{}, fmt.Errorf("usage: increment: %w", err)
	}
	status := g.status(day, count)
	if !ok {
		return status, domain.ErrQuotaExceeded
	}
	return status, nil
}

// Prepay attaches n follow-up uses of item to a charged request, so the
// illustrations of a planned photo are covered by the plan's unit.
func (g *Guard) Prepay(ctx context.Context, session, item string, n int) error {
	session = strings.TrimSpace(session)
	if session == "" || n <= 0 {
		return nil
	}
	now := g.now()
	if err := g.Store.Grant(ctx, session, now.Format(dayLayout), item, n, nextMidnight(now)); err != nil {
		return fmt.Errorf("usage: grant: %w", err)
	}
	return nil
}

// Redeem spends one prepaid use of item. It reports false when nothing was
// prepaid today, in which case the caller charges normally.
func (g *Guard) Redeem(ctx context.Context, session, item string) (bool, error) {
	session = strings.TrimSpace(session)
	if session == "" {
		return false, nil
	}
	ok, err := g.Store.Redeem(ctx, session, g.now().Format(dayLayout), item)
	if err != nil {
		return false, fmt.Errorf("usage: redeem: %w", err)
	}
	return ok, nil
}

// Status reports the counter for session without charging.
func (g *Guard) Status(ctx context.Context, session string) (Status, error) {
	day := g.now().Format(dayLayout)
	if strings.TrimSpace(session) == "" {
		return g.status(day, 0), nil
	}
	count, err := g.Store.Count(ctx, session, day)
	if err != nil {
		return Status{}, fmt.Errorf("usage: count: %w", err)
	}
	return g.status(day, count), nil
}

func (g *Guard) status(day string, count int) Status {
	limit := g.limit()
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Status{Date: day, Used: count, Limit: limit, Remaining: remaining}
}

func (g *Guard) limit() int {
	if g.Limit <= 0 {
		return DefaultLimit
	}
	return g.Limit
}

func (g *Guard) now() time.Time {
	clock := g.Clock
	if clock == nil {
		clock = time.Now
	}
	loc := g.Location
	if loc == nil {
		loc = time.Local
	}
	return clock().In(loc)
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
