package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ad-board/internal/domain"
	"ad-board/internal/infrastructure/cache"
	"ad-board/internal/infrastructure/metrics"
)

// recordingCache captures every key passed to Delete.
type recordingCache struct {
	deleted []string
}

func (c *recordingCache) Get(ctx context.Context, key string) (string, error) {
	return "", cache.ErrCacheMiss
}

func (c *recordingCache) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	return nil
}

func (c *recordingCache) Delete(ctx context.Context, keys ...string) error {
	c.deleted = append(c.deleted, keys...)
	return nil
}

func newMysqlTestRepo(t *testing.T) (AdRepository, sqlmock.Sqlmock, *recordingCache) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rec := &recordingCache{}
	repo := NewMysqlAdRepository(db, rec, metrics.NewRepositoryMetrics(prometheus.NewRegistry()))
	return repo, mock, rec
}

func TestMysqlReplaceAllInvalidatesDroppedAds(t *testing.T) {
	repo, mock, rec := newMysqlTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM ads").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectExec("DELETE FROM ads").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.ReplaceAll(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	// A dropped ad must not keep serving from cache after the replace.
	assert.Contains(t, rec.deleted, "ad:1")
	assert.Contains(t, rec.deleted, "ad:2")
	assert.Contains(t, rec.deleted, cacheKeyAll)
}

func TestMysqlReplaceAllReinsertsRetained(t *testing.T) {
	repo, mock, rec := newMysqlTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM ads").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectExec("DELETE FROM ads").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO ads").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	retained := &domain.Ad{
		ID:        "2",
		Title:     "Tile work",
		Img:       "/uploads/tile.jpg",
		StartDate: "2025-06-01",
		EndDate:   "2025-07-01",
		Approved:  true,
	}
	err := repo.ReplaceAll(context.Background(), []*domain.Ad{retained})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	// Both previous ids are invalidated; the retained ad repopulates on
	// its next read.
	assert.Contains(t, rec.deleted, "ad:1")
	assert.Contains(t, rec.deleted, "ad:2")
}
