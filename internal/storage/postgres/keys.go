package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"courier/internal/domain"
)

// Keys is a KeyDirectory backed by PostgreSQL.
type Keys struct {
	pool *pgxpool.Pool
}

// NewKeys returns a key directory using pool.
func NewKeys(pool *pgxpool.Pool) *Keys {
	return &Keys{pool: pool}
}

// RegisterKey stores rec, replacing any earlier key of the same user.
func (r *Keys) RegisterKey(ctx context.Context, rec domain.PublicKeyRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO public_keys (user_id, device_id, public_key, algorithm, registered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			device_id     = EXCLUDED.device_id,
			public_key    = EXCLUDED.public_key,
			algorithm     = EXCLUDED.algorithm,
			registered_at = EXCLUDED.registered_at
	`, rec.UserID.String(), rec.DeviceID.String(), rec.PublicKey, rec.Algorithm, rec.RegisteredAt)
	return err
}

func (r *Keys) LookupKey(ctx context.Context, user domain.UserID) (domain.PublicKeyRecord, bool, error) {
	var (
		rec    domain.PublicKeyRecord
		device string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT device_id, public_key, algorithm, registered_at
		FROM public_keys WHERE user_id = $1
	`, user.String()).Scan(&device, &rec.PublicKey, &rec.Algorithm, &rec.RegisteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PublicKeyRecord{}, false, nil
	}
	if err != nil {
		return domain.PublicKeyRecord{}, false, err
	}
	rec.UserID = user
	rec.DeviceID = domain.DeviceID(device)
	rec.RegisteredAt = rec.RegisteredAt.UTC()
	return rec, true, nil
}

var _ domain.KeyDirectory = (*Keys)(nil)
