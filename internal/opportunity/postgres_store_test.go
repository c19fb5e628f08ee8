package opportunity

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shared-ride/internal/models"
)

var columns = []string{
	"id", "initiator_id", "initiator_name", "origin_lat", "origin_lng", "dest_lat", "dest_lng",
	"origin_geohash", "dest_geohash", "origin_address", "dest_address", "encoded_path", "estimated_price",
	"potential_discount", "status", "expires_at", "created_at", "matched_riders", "max_passengers", "version",
}

func setupMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreWithDB(db), mock
}

func sampleRow(version int, riders string) *sqlmock.Rows {
	return sqlmock.NewRows(columns).AddRow(
		"opp-1", "initiator", "Ayu", home.Lat, home.Lng, work.Lat, work.Lng,
		"qqguwx7xy", "qqguy0000", "Jl. Sudirman", "Jl. Gatot Subroto", "", 50000.0,
		20, "open", t0.Add(DefaultTTL), t0, riders, 4, version,
	)
}

func TestPostgresCreate(t *testing.T) {
	store, mock := setupMockStore(t)
	o := &models.SharedRideOpportunity{
		ID: "opp-1", InitiatorID: "initiator", Origin: home, Destination: work,
		PotentialDiscount: 10, Status: models.StatusOpen, ExpiresAt: t0.Add(DefaultTTL), CreatedAt: t0,
		MatchedRiders: []string{}, MaxPassengers: 4,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO shared_ride_opportunities")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Create(context.Background(), o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM shared_ride_opportunities WHERE id = $1")).
		WithArgs("opp-1").
		WillReturnRows(sampleRow(3, "{r1}"))

	o, err := store.Get(context.Background(), "opp-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, o.Status)
	assert.Equal(t, []string{"r1"}, o.MatchedRiders)
	assert.Equal(t, 3, o.Version)
	assert.Equal(t, home, o.Origin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM shared_ride_opportunities WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresUpdateCompareAndSwap(t *testing.T) {
	store, mock := setupMockStore(t)
	o := &models.SharedRideOpportunity{ID: "opp-1", Status: models.StatusOpen, MatchedRiders: []string{"r1", "r2"}, PotentialDiscount: 30}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE shared_ride_opportunities")).
		WithArgs("open", "{\"r1\",\"r2\"}", 30, "opp-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE shared_ride_opportunities")).
		WithArgs("open", sqlmock.AnyArg(), 30, "opp-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.Update(context.Background(), o, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, o.Version)

	ok, err = store.Update(context.Background(), o, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueryByGeohashRange(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'open' AND origin_geohash >= $1 AND origin_geohash <= $2")).
		WithArgs("qqgu", "qqgu~", 50).
		WillReturnRows(sampleRow(0, "{}"))

	res, err := store.QueryByGeohashRange(context.Background(), "qqgu", "qqgu~", 50)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Empty(t, res[0].MatchedRiders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListExpired(t *testing.T) {
	store, mock := setupMockStore(t)
	now := t0.Add(DefaultTTL + 1)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'open' AND expires_at < $1")).
		WithArgs(now, sweepBatch).
		WillReturnRows(sampleRow(1, "{}"))

	res, err := store.ListExpired(context.Background(), now, sweepBatch)
	require.NoError(t, err)
	assert.Len(t, res, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrate(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS shared_ride_opportunities")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
