package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

// PositionStore implements domain.PositionStore on SQLite.
type PositionStore struct {
	s *Store
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a PositionStore.
func NewPositionStore(s *Store) *PositionStore {
	return &PositionStore{s: s}
}

const positionSelectCols = `id, market_id, venue_a_market_id, venue_b_market_id, title, action,
	venue_a_up, venue_a_down, venue_b_up, venue_b_down,
	total_cost, expected_profit, status, end_time, opened_at, closed_at, note`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var (
		p                 domain.Position
		action, status    string
		endTime, openedAt string
		closedAt          sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.MarketID, &p.VenueAMarketID, &p.VenueBMarketID, &p.Title, &action,
		&p.VenueALeg.Up, &p.VenueALeg.Down, &p.VenueBLeg.Up, &p.VenueBLeg.Down,
		&p.TotalCost, &p.ExpectedProfit, &status, &endTime, &openedAt, &closedAt, &p.Note,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Action = domain.TradeAction(action)
	p.Status = domain.PositionStatus(status)
	if p.EndTime, err = parseTime(endTime); err != nil {
		return domain.Position{}, fmt.Errorf("parse end_time: %w", err)
	}
	if p.OpenedAt, err = parseTime(openedAt); err != nil {
		return domain.Position{}, fmt.Errorf("parse opened_at: %w", err)
	}
	if closedAt.Valid {
		t, err := parseTime(closedAt.String)
		if err != nil {
			return domain.Position{}, fmt.Errorf("parse closed_at: %w", err)
		}
		p.ClosedAt = &t
	}
	return p, nil
}

func collectPositions(rows *sql.Rows) ([]domain.Position, error) {
	defer rows.Close()
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create inserts a new position.
func (ps *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO hedge_positions (
			id, market_id, venue_a_market_id, venue_b_market_id, title, action,
			venue_a_up, venue_a_down, venue_b_up, venue_b_down,
			total_cost, expected_profit, status, end_time, opened_at, closed_at, note, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := ps.s.db.ExecContext(ctx, query,
		p.ID, p.MarketID, p.VenueAMarketID, p.VenueBMarketID, p.Title, string(p.Action),
		p.VenueALeg.Up, p.VenueALeg.Down, p.VenueBLeg.Up, p.VenueBLeg.Down,
		p.TotalCost, p.ExpectedProfit, string(p.Status), formatTime(p.EndTime), formatTime(p.OpenedAt),
		nullTime(p.ClosedAt), p.Note, formatTime(ps.s.now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update writes the mutable lifecycle fields of a position.
func (ps *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE hedge_positions SET
			status     = ?,
			closed_at  = ?,
			note       = ?,
			updated_at = ?
		WHERE id = ?`

	res, err := ps.s.db.ExecContext(ctx, query,
		string(p.Status), nullTime(p.ClosedAt), p.Note, formatTime(ps.s.now()), p.ID)
	if err != nil {
		return fmt.Errorf("sqlite: update position %s: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update position %s: %w", p.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: update position %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID retrieves a single position.
func (ps *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := ps.s.db.QueryRowContext(ctx,
		`SELECT `+positionSelectCols+` FROM hedge_positions WHERE id = ?`, id)

	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("sqlite: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns every position still holding exposure, oldest first.
func (ps *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := ps.s.db.QueryContext(ctx,
		`SELECT `+positionSelectCols+` FROM hedge_positions
		 WHERE status IN (?, ?)
		 ORDER BY opened_at ASC`,
		string(domain.PositionStatusActive), string(domain.PositionStatusPartiallyFilled))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list open positions: %w", err)
	}
	positions, err := collectPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan open positions: %w", err)
	}
	return positions, nil
}

// ListHistory returns positions newest first.
func (ps *PositionStore) ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query, args := appendListOpts(
		`SELECT `+positionSelectCols+` FROM hedge_positions WHERE 1=1`, nil, "opened_at", opts)

	rows, err := ps.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list position history: %w", err)
	}
	positions, err := collectPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan position history: %w", err)
	}
	return positions, nil
}
