package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, market_id, venue_a_market_id, venue_b_market_id, title, action,
	venue_a_up, venue_a_down, venue_b_up, venue_b_down,
	total_cost, expected_profit, status, end_time, opened_at, closed_at, note`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p      domain.Position
		action string
		status string
	)
	err := row.Scan(
		&p.ID, &p.MarketID, &p.VenueAMarketID, &p.VenueBMarketID, &p.Title, &action,
		&p.VenueALeg.Up, &p.VenueALeg.Down, &p.VenueBLeg.Up, &p.VenueBLeg.Down,
		&p.TotalCost, &p.ExpectedProfit, &status, &p.EndTime, &p.OpenedAt, &p.ClosedAt, &p.Note,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Action = domain.TradeAction(action)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
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
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO hedge_positions (
			id, market_id, venue_a_market_id, venue_b_market_id, title, action,
			venue_a_up, venue_a_down, venue_b_up, venue_b_down,
			total_cost, expected_profit, status, end_time, opened_at, closed_at, note, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.MarketID, p.VenueAMarketID, p.VenueBMarketID, p.Title, string(p.Action),
		p.VenueALeg.Up, p.VenueALeg.Down, p.VenueBLeg.Up, p.VenueBLeg.Down,
		p.TotalCost, p.ExpectedProfit, string(p.Status), p.EndTime, p.OpenedAt, p.ClosedAt, p.Note,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update writes the mutable lifecycle fields of a position. Leg amounts
// and costs are fixed at open.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE hedge_positions SET
			status     = $2,
			closed_at  = $3,
			note       = $4,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, p.ID, string(p.Status), p.ClosedAt, p.Note)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM hedge_positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns every position still holding exposure, oldest first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM hedge_positions
		 WHERE status = ANY($1)
		 ORDER BY opened_at ASC`,
		[]string{string(domain.PositionStatusActive), string(domain.PositionStatusPartiallyFilled)})
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	positions, err := collectPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListHistory returns positions newest first with pagination and optional
// time filtering on opened_at.
func (s *PositionStore) ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query, args := appendListOpts(
		`SELECT `+positionSelectCols+` FROM hedge_positions WHERE 1=1`, nil, 1, "opened_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	positions, err := collectPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position history: %w", err)
	}
	return positions, nil
}
