package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ad-board/internal/domain"
	"ad-board/internal/infrastructure/cache"
	"ad-board/internal/infrastructure/metrics"
	"ad-board/internal/repository"
	"ad-board/pkg/logger"
)

type serviceEnv struct {
	service AdService
	repo    repository.AdRepository
	files   *fakeFileStore
	history repository.HistoryLog
}

func newServiceEnv(t *testing.T, archiveEnabled bool) *serviceEnv {
	t.Helper()
	dir := t.TempDir()

	repo := repository.NewJSONAdRepository(
		filepath.Join(dir, "ads.json"),
		cache.NewNoopCache(),
		metrics.NewRepositoryMetrics(prometheus.NewRegistry()),
		logger.NewDiscard(),
	)
	files := newFakeFileStore()
	history := repository.NewJSONHistoryLog(filepath.Join(dir, "history.json"))

	svc := NewAdService(
		repo, history, files,
		metrics.NewServiceMetrics(prometheus.NewRegistry()),
		logger.NewDiscard(),
		archiveEnabled,
	)
	return &serviceEnv{service: svc, repo: repo, files: files, history: history}
}

func TestViewAdIncrementsCounter(t *testing.T) {
	env := newServiceEnv(t, false)
	ctx := context.Background()

	created, err := env.service.CreateAd(ctx, &domain.Ad{
		Title: "test", Img: "/uploads/t.jpg", EndDate: "2030-01-01",
	})
	require.NoError(t, err)

	viewed, err := env.service.ViewAd(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, viewed.Views)

	viewed, err = env.service.ViewAd(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, viewed.Views)

	// Plain admin fetch does not count.
	got, err := env.service.GetAdByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Views)

	_, err = env.service.ViewAd(ctx, "999")
	assert.ErrorIs(t, err, ErrAdNotFound)

	_, err = env.service.GetAdByID(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestDeleteAdArchivesAndReclaimsMedia(t *testing.T) {
	env := newServiceEnv(t, true)
	ctx := context.Background()

	created, err := env.service.CreateAd(ctx, &domain.Ad{
		Title:            "doomed",
		Img:              "/uploads/main.jpg",
		AdditionalImages: []string{"/uploads/extra.jpg"},
		EndDate:          "2030-01-01",
	})
	require.NoError(t, err)

	require.NoError(t, env.service.DeleteAd(ctx, created.ID))

	_, err = env.service.GetAdByID(ctx, created.ID)
	assert.ErrorIs(t, err, ErrAdNotFound)

	assert.Contains(t, env.files.deleted, "/uploads/main.jpg")
	assert.Contains(t, env.files.deleted, "/uploads/extra.jpg")

	entries, err := env.history.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, created.ID, entries[0].ID)

	assert.ErrorIs(t, env.service.DeleteAd(ctx, created.ID), ErrAdNotFound)
}

func TestUpdateAdReclaimsReplacedMedia(t *testing.T) {
	env := newServiceEnv(t, false)
	ctx := context.Background()

	created, err := env.service.CreateAd(ctx, &domain.Ad{
		Title: "update-me", Img: "/uploads/old.jpg", EndDate: "2030-01-01",
	})
	require.NoError(t, err)

	updated, err := env.service.UpdateAd(ctx, &domain.Ad{
		ID: created.ID, Title: "updated", Img: "/uploads/new.jpg", EndDate: "2030-01-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "/uploads/new.jpg", updated.Img)

	assert.Contains(t, env.files.deleted, "/uploads/old.jpg")
	assert.NotContains(t, env.files.deleted, "/uploads/new.jpg")
}

func TestRemoveMedia(t *testing.T) {
	env := newServiceEnv(t, false)
	ctx := context.Background()

	created, err := env.service.CreateAd(ctx, &domain.Ad{
		Title:            "media-rich",
		Img:              "/uploads/main.jpg",
		AdditionalImages: []string{"/uploads/a.jpg", "/uploads/b.jpg"},
		EndDate:          "2030-01-01",
	})
	require.NoError(t, err)

	updated, err := env.service.RemoveMedia(ctx, created.ID, "/uploads/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{"/uploads/b.jpg"}, updated.AdditionalImages)
	assert.Contains(t, env.files.deleted, "/uploads/a.jpg")

	// The primary image cannot be detached.
	_, err = env.service.RemoveMedia(ctx, created.ID, "/uploads/main.jpg")
	assert.ErrorIs(t, err, ErrAdNotFound)

	_, err = env.service.RemoveMedia(ctx, created.ID, "/uploads/unknown.jpg")
	assert.ErrorIs(t, err, ErrAdNotFound)
}

func TestListAdsPagination(t *testing.T) {
	env := newServiceEnv(t, false)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := env.service.CreateAd(ctx, &domain.Ad{
			Title: "ad", Img: "/uploads/x.jpg", EndDate: "2030-01-01",
		})
		require.NoError(t, err)
	}

	result, err := env.service.ListAds(ctx, ListParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, result.Ads, 10)
	assert.Equal(t, 3, result.TotalPages)
	assert.Equal(t, 2, result.NextPage)
	assert.Zero(t, result.PrevPage)

	result, err = env.service.ListAds(ctx, ListParams{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, result.Ads, 5)
	assert.Zero(t, result.NextPage)
	assert.Equal(t, 2, result.PrevPage)

	result, err = env.service.ListAds(ctx, ListParams{Page: 9, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, result.Ads)
}
