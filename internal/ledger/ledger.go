// Package ledger keeps the session's hedge positions in memory.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

// Ledger is an append-only, concurrency-safe list of positions. Positions
// are never removed; only their status changes. An optional PositionStore
// mirrors every mutation, and its failures never fail the in-memory write.
type Ledger struct {
	mu        sync.RWMutex
	positions []domain.Position
	byID      map[string]int
	inflight  map[string]struct{}

	store  domain.PositionStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty Ledger. store may be nil.
func New(store domain.PositionStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		byID:     make(map[string]int),
		inflight: make(map[string]struct{}),
		store:    store,
		logger:   logger.With(slog.String("component", "ledger")),
		now:      time.Now,
	}
}

// Append records a new position.
func (l *Ledger) Append(ctx context.Context, p domain.Position) error {
	l.mu.Lock()
	if _, dup := l.byID[p.ID]; dup {
		l.mu.Unlock()
		return fmt.Errorf("ledger: append %s: duplicate id", p.ID)
	}
	l.byID[p.ID] = len(l.positions)
	l.positions = append(l.positions, p)
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Create(ctx, p); err != nil {
			l.logger.WarnContext(ctx, "mirror create failed",
				slog.String("position_id", p.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// ListActive returns every position that still holds venue exposure
// (ACTIVE or PARTIALLY_FILLED), in insertion order.
func (l *Ledger) ListActive() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.Position
	for _, p := range l.positions {
		if p.Status.Open() {
			out = append(out, p)
		}
	}
	return out
}

// All returns a copy of every position recorded this session.
func (l *Ledger) All() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Position, len(l.positions))
	copy(out, l.positions)
	return out
}

// FindByMarket returns the open position for marketID if there is one,
// otherwise the most recent closed one.
func (l *Ledger) FindByMarket(marketID string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.findLocked(marketID)
}

func (l *Ledger) findLocked(marketID string) (domain.Position, bool) {
	var (
		latest domain.Position
		found  bool
	)
	for i := len(l.positions) - 1; i >= 0; i-- {
		p := l.positions[i]
		if p.MarketID != marketID {
			continue
		}
		if p.Status.Open() {
			return p, true
		}
		if !found {
			latest, found = p, true
		}
	}
	return latest, found
}

// Reserve claims marketID for a single execution attempt. It fails when
// the market already has an open position or another attempt holds the
// claim. The caller must invoke release once the attempt has either
// appended its position or given up.
func (l *Ledger) Reserve(marketID string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.inflight[marketID]; busy {
		return nil, false
	}
	if p, found := l.findLocked(marketID); found && p.Status.Open() {
		return nil, false
	}
	l.inflight[marketID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.inflight, marketID)
			l.mu.Unlock()
		})
	}, true
}

// MarkRedeemed moves an open position to REDEEMED. Marking an already
// redeemed position is a no-op.
func (l *Ledger) MarkRedeemed(ctx context.Context, id string) error {
	return l.transition(ctx, id, domain.PositionStatusRedeemed)
}

// MarkExpired moves an open position to EXPIRED.
func (l *Ledger) MarkExpired(ctx context.Context, id string) error {
	return l.transition(ctx, id, domain.PositionStatusExpired)
}

func (l *Ledger) transition(ctx context.Context, id string, to domain.PositionStatus) error {
	l.mu.Lock()
	idx, ok := l.byID[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("ledger: position %s: %w", id, domain.ErrNotFound)
	}
	p := l.positions[idx]
	if p.Status == to {
		l.mu.Unlock()
		return nil
	}
	if !p.Status.Open() {
		l.mu.Unlock()
		return fmt.Errorf("ledger: position %s is %s, cannot move to %s", id, p.Status, to)
	}
	now := l.now().UTC()
	p.Status = to
	p.ClosedAt = &now
	l.positions[idx] = p
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Update(ctx, p); err != nil {
			l.logger.WarnContext(ctx, "mirror update failed",
				slog.String("position_id", id),
				slog.String("status", string(to)),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Restore loads open positions from the mirror store so a restarted
// process keeps guarding and redeeming them. Positions already present are
// skipped.
func (l *Ledger) Restore(ctx context.Context) (int, error) {
	if l.store == nil {
		return 0, nil
	}
	open, err := l.store.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: restore: %w", err)
	}
	return l.Load(open), nil
}

// Load adds positions that are not yet in the ledger, for example from an
// archived snapshot. It does not write to the mirror store.
func (l *Ledger) Load(positions []domain.Position) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range positions {
		if _, exists := l.byID[p.ID]; exists {
			continue
		}
		l.byID[p.ID] = len(l.positions)
		l.positions = append(l.positions, p)
		n++
	}
	return n
}

// Counts returns the number of positions per status.
func (l *Ledger) Counts() map[domain.PositionStatus]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[domain.PositionStatus]int, 4)
	for _, p := range l.positions {
		out[p.Status]++
	}
	return out
}
