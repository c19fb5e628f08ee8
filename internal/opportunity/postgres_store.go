package opportunity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/shared-ride/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS shared_ride_opportunities (
	id                  TEXT PRIMARY KEY,
	initiator_id        TEXT NOT NULL,
	initiator_name      TEXT NOT NULL DEFAULT '',
	origin_lat          DOUBLE PRECISION NOT NULL,
	origin_lng          DOUBLE PRECISION NOT NULL,
	dest_lat            DOUBLE PRECISION NOT NULL,
	dest_lng            DOUBLE PRECISION NOT NULL,
	origin_geohash      TEXT COLLATE "C" NOT NULL,
	dest_geohash        TEXT NOT NULL,
	origin_address      TEXT NOT NULL DEFAULT '',
	dest_address        TEXT NOT NULL DEFAULT '',
	encoded_path        TEXT NOT NULL DEFAULT '',
	estimated_price     DOUBLE PRECISION NOT NULL DEFAULT 0,
	potential_discount  INTEGER NOT NULL,
	status              TEXT NOT NULL,
	expires_at          TIMESTAMPTZ NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	matched_riders      TEXT[] NOT NULL DEFAULT '{}',
	max_passengers      INTEGER NOT NULL,
	version             INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS shared_ride_opportunities_open_geohash
	ON shared_ride_opportunities (origin_geohash) WHERE status = 'open';
CREATE INDEX IF NOT EXISTS shared_ride_opportunities_open_expiry
	ON shared_ride_opportunities (expires_at) WHERE status = 'open';
`

const selectColumns = `id, initiator_id, initiator_name, origin_lat, origin_lng, dest_lat, dest_lng,
	origin_geohash, dest_geohash, origin_address, dest_address, encoded_path, estimated_price,
	potential_discount, status, expires_at, created_at, matched_riders, max_passengers, version`

// PostgresStore keeps opportunities in PostgreSQL. origin_geohash uses the C collation so
// range scans follow byte order, matching how geohash bounds are computed.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing handle.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate opportunities: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func (p *PostgresStore) Create(ctx context.Context, o *models.SharedRideOpportunity) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO shared_ride_opportunities(
		id, initiator_id, initiator_name, origin_lat, origin_lng, dest_lat, dest_lng,
		origin_geohash, dest_geohash, origin_address, dest_address, encoded_path, estimated_price,
		potential_discount, status, expires_at, created_at, matched_riders, max_passengers, version)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		o.ID, o.InitiatorID, o.InitiatorName, o.Origin.Lat, o.Origin.Lng, o.Destination.Lat, o.Destination.Lng,
		o.OriginGeohash, o.DestinationGeohash, o.OriginAddress, o.DestinationAddress, o.EncodedPath, o.EstimatedPrice,
		o.PotentialDiscount, string(o.Status), o.ExpiresAt, o.CreatedAt, pq.Array(o.MatchedRiders), o.MaxPassengers, o.Version)
	if err != nil {
		return fmt.Errorf("insert opportunity %s: %w", o.ID, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.SharedRideOpportunity, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM shared_ride_opportunities WHERE id = $1`, id)
	o, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get opportunity %s: %w", id, err)
	}
	return o, nil
}

func (p *PostgresStore) Update(ctx context.Context, o *models.SharedRideOpportunity, expectedVersion int) (bool, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE shared_ride_opportunities
		SET status = $1, matched_riders = $2, potential_discount = $3, version = version + 1
		WHERE id = $4 AND version = $5`,
		string(o.Status), pq.Array(o.MatchedRiders), o.PotentialDiscount, o.ID, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("update opportunity %s: %w", o.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, nil
	}
	o.Version = expectedVersion + 1
	return true, nil
}

func (p *PostgresStore) QueryByGeohashRange(ctx context.Context, lo, hi string, limit int) ([]*models.SharedRideOpportunity, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM shared_ride_opportunities
		WHERE status = 'open' AND origin_geohash >= $1 AND origin_geohash <= $2
		ORDER BY origin_geohash, id LIMIT $3`, lo, hi, limit)
	if err != nil {
		return nil, fmt.Errorf("query opportunities %s..%s: %w", lo, hi, err)
	}
	return collect(rows)
}

func (p *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.SharedRideOpportunity, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM shared_ride_opportunities
		WHERE status = 'open' AND expires_at < $1
		ORDER BY expires_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired opportunities: %w", err)
	}
	return collect(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(s scanner) (*models.SharedRideOpportunity, error) {
	var o models.SharedRideOpportunity
	var status string
	err := s.Scan(&o.ID, &o.InitiatorID, &o.InitiatorName,
		&o.Origin.Lat, &o.Origin.Lng, &o.Destination.Lat, &o.Destination.Lng,
		&o.OriginGeohash, &o.DestinationGeohash, &o.OriginAddress, &o.DestinationAddress,
		&o.EncodedPath, &o.EstimatedPrice, &o.PotentialDiscount, &status,
		&o.ExpiresAt, &o.CreatedAt, pq.Array(&o.MatchedRiders), &o.MaxPassengers, &o.Version)
	if err != nil {
		return nil, err
	}
	o.Status = models.OpportunityStatus(status)
	if o.MatchedRiders == nil {
		o.MatchedRiders = []string{}
	}
	return &o, nil
}

func collect(rows *sql.Rows) ([]*models.SharedRideOpportunity, error) {
	defer rows.Close()
	out := make([]*models.SharedRideOpportunity, 0)
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
