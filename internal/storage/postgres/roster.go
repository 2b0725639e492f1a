package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"courier/internal/domain"
	"courier/internal/domain/types"
)

// Roster is a TeamRoster backed by the teams, team_members and admins tables.
type Roster struct {
	pool *pgxpool.Pool
}

// NewRoster returns a roster using pool.
func NewRoster(pool *pgxpool.Pool) *Roster {
	return &Roster{pool: pool}
}

func (r *Roster) TeamMembers(ctx context.Context, team domain.TeamID) ([]domain.UserID, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM teams WHERE id = $1)`, team.String(),
	).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, types.NotFound("postgres.TeamMembers", "team not found")
	}

	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM team_members WHERE team_id = $1 ORDER BY user_id`, team.String())
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := toUserIDs(ids)
	if out == nil {
		out = []domain.UserID{}
	}
	return out, nil
}

func (r *Roster) Admins(ctx context.Context) ([]domain.UserID, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM admins ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return toUserIDs(ids), nil
}

func (r *Roster) TeamsOf(ctx context.Context, user domain.UserID) ([]domain.TeamID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT team_id FROM team_members WHERE user_id = $1 ORDER BY team_id`, user.String())
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	var out []domain.TeamID
	for _, id := range ids {
		out = append(out, domain.TeamID(id))
	}
	return out, nil
}

// SetTeam replaces the membership of team, creating it if needed.
func (r *Roster) SetTeam(ctx context.Context, team domain.TeamID, members ...domain.UserID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO teams (id) VALUES ($1) ON CONFLICT DO NOTHING`, team.String()); err != nil {
		return fmt.Errorf("postgres: upsert team: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1`, team.String()); err != nil {
		return fmt.Errorf("postgres: clear members: %w", err)
	}
	for _, m := range members {
		if _, err := tx.Exec(ctx,
			`INSERT INTO team_members (team_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			team.String(), m.String(),
		); err != nil {
			return fmt.Errorf("postgres: add member: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// SetAdmin grants or revokes the admin role.
func (r *Roster) SetAdmin(ctx context.Context, user domain.UserID, admin bool) error {
	var err error
	if admin {
		_, err = r.pool.Exec(ctx, `INSERT INTO admins (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, user.String())
	} else {
		_, err = r.pool.Exec(ctx, `DELETE FROM admins WHERE user_id = $1`, user.String())
	}
	return err
}

var _ domain.TeamRoster = (*Roster)(nil)
