package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ad-board/internal/domain"
	"ad-board/internal/infrastructure/metrics"
	"ad-board/internal/infrastructure/storage"
	"ad-board/internal/repository"
	"ad-board/pkg/logger"
	"ad-board/pkg/utils"
)

var (
	ErrInvalidID  = errors.New("invalid ad ID")
	ErrAdNotFound = errors.New("ad not found")
)

type ListParams struct {
	Filter repository.ListFilter
	Page   int
	Limit  int
}

type PaginationResult struct {
	Ads         []*domain.Ad `json:"ads"`
	CurrentPage int          `json:"current_page"`
	NextPage    int          `json:"next_page,omitempty"`
	PrevPage    int          `json:"prev_page,omitempty"`
	TotalPages  int          `json:"total_pages"`
}

type AdService interface {
	ListAds(ctx context.Context, params ListParams) (*PaginationResult, error)
	GetAdByID(ctx context.Context, id string) (*domain.Ad, error)
	ViewAd(ctx context.Context, id string) (*domain.Ad, error)
	CreateAd(ctx context.Context, ad *domain.Ad) (*domain.Ad, error)
	UpdateAd(ctx context.Context, ad *domain.Ad) (*domain.Ad, error)
	DeleteAd(ctx context.Context, id string) error
	RemoveMedia(ctx context.Context, id string, mediaPath string) (*domain.Ad, error)
}

type adService struct {
	repository repository.AdRepository
	history    repository.HistoryLog
	files      storage.FileStore
	metrics    *metrics.ServiceMetrics
	loggers    *logger.Loggers
	tracer     trace.Tracer

	archiveEnabled bool
}

func NewAdService(
	repo repository.AdRepository,
	history repository.HistoryLog,
	files storage.FileStore,
	serviceMetrics *metrics.ServiceMetrics,
	loggers *logger.Loggers,
	archiveEnabled bool,
) AdService {
	tracer := otel.Tracer("ad-board/service")
	return &adService{
		repository:     repo,
		history:        history,
		files:          files,
		metrics:        serviceMetrics,
		loggers:        loggers,
		tracer:         tracer,
		archiveEnabled: archiveEnabled,
	}
}

func (s *adService) observe(method string, status *string, start time.Time) {
	duration := time.Since(start).Seconds()
	s.metrics.MethodCount.WithLabelValues(method, *status).Inc()
	s.metrics.MethodDuration.WithLabelValues(method, *status).Observe(duration)
}

func (s *adService) ListAds(ctx context.Context, params ListParams) (*PaginationResult, error) {
	ctx, span := s.tracer.Start(ctx, "ListAds")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer s.observe("ListAds", &status, startTime)

	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}
	page := params.Page
	if page <= 0 {
		page = 1
	}

	ads, err := s.repository.ListAds(ctx, params.Filter)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	totalCount := len(ads)
	totalPages := (totalCount + limit - 1) / limit

	offset := (page - 1) * limit
	if offset > totalCount {
		offset = totalCount
	}
	end := offset + limit
	if end > totalCount {
		end = totalCount
	}

	var nextPage, prevPage int
	if page < totalPages {
		nextPage = page + 1
	}
	if page > 1 {
		prevPage = page - 1
	}

	span.SetAttributes(
		attribute.Int("ads.page", page),
		attribute.Int("ads.limit", limit),
		attribute.Int("ads.total_count", totalCount),
	)

	return &PaginationResult{
		Ads:         ads[offset:end],
		CurrentPage: page,
		NextPage:    nextPage,
		PrevPage:    prevPage,
		TotalPages:  totalPages,
	}, nil
}

func (s *adService) GetAdByID(ctx context.Context, id string) (*domain.Ad, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	ctx, span := s.tracer.Start(ctx, "GetAdByID")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer s.observe("GetAdByID", &status, startTime)

	ad, err := s.repository.GetAdByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			status = "not_found"
			return nil, ErrAdNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("ad.id", id))
	return ad, nil
}

// ViewAd is the public detail lookup: it bumps the view counter. The
// increment is best-effort; a counting failure never hides the ad.
func (s *adService) ViewAd(ctx context.Context, id string) (*domain.Ad, error) {
	ad, err := s.GetAdByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repository.IncrementViews(ctx, id); err != nil {
		s.loggers.ErrorLogger.Error("failed to increment views", "ad_id", id, utils.Err(err))
	} else {
		ad.Views++
	}
	return ad, nil
}

func (s *adService) CreateAd(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	ctx, span := s.tracer.Start(ctx, "CreateAd")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer s.observe("CreateAd", &status, startTime)

	createdAd, err := s.repository.CreateAd(ctx, ad)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("ad.id", createdAd.ID),
		attribute.String("ad.title", createdAd.Title),
		attribute.Float64("ad.price", createdAd.Price),
	)
	return createdAd, nil
}

func (s *adService) UpdateAd(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	if ad.ID == "" {
		return nil, ErrInvalidID
	}

	ctx, span := s.tracer.Start(ctx, "UpdateAd")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer s.observe("UpdateAd", &status, startTime)

	previous, err := s.repository.GetAdByID(ctx, ad.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			status = "not_found"
			return nil, ErrAdNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	updatedAd, err := s.repository.UpdateAd(ctx, ad)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			status = "not_found"
			return nil, ErrAdNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	// Media files replaced by this edit are orphaned now; reclaim them.
	s.deleteOrphanedMedia(previous, updatedAd)

	span.SetAttributes(
		attribute.String("ad.id", updatedAd.ID),
		attribute.String("ad.title", updatedAd.Title),
	)
	return updatedAd, nil
}

func (s *adService) DeleteAd(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	ctx, span := s.tracer.Start(ctx, "DeleteAd")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer s.observe("DeleteAd", &status, startTime)

	ad, err := s.repository.GetAdByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			status = "not_found"
			return ErrAdNotFound
		}
		status = "error"
		span.RecordError(err)
		return err
	}

	if s.archiveEnabled {
		entry := domain.ArchivedAd{Ad: *ad, DeletedAt: time.Now().UTC()}
		if err := s.history.Append(ctx, entry); err != nil {
			// Archival is best-effort; deletion proceeds regardless.
			s.loggers.ErrorLogger.Error("failed to archive ad", "ad_id", id, utils.Err(err))
		}
	}

	if err := s.repository.DeleteAd(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			status = "not_found"
			return ErrAdNotFound
		}
		status = "error"
		span.RecordError(err)
		return err
	}

	s.deleteMediaFiles(ad)

	span.SetAttributes(attribute.String("ad.id", id))
	return nil
}

// RemoveMedia detaches one media file from an ad and deletes it from disk.
func (s *adService) RemoveMedia(ctx context.Context, id string, mediaPath string) (*domain.Ad, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	ctx, span := s.tracer.Start(ctx, "RemoveMedia")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer s.observe("RemoveMedia", &status, startTime)

	ad, err := s.repository.GetAdByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			status = "not_found"
			return nil, ErrAdNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	removed := false
	if ad.Video == mediaPath {
		ad.Video = ""
		removed = true
	}
	ad.AdditionalImages, removed = removeString(ad.AdditionalImages, mediaPath, removed)
	ad.AdditionalVideos, removed = removeString(ad.AdditionalVideos, mediaPath, removed)
	// The primary image is required and cannot be detached, only replaced.
	if !removed {
		status = "not_found"
		return nil, ErrAdNotFound
	}

	updated, err := s.repository.UpdateAd(ctx, ad)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	if err := s.files.Delete(mediaPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.loggers.ErrorLogger.Error("failed to delete media file", "path", mediaPath, utils.Err(err))
	}
	return updated, nil
}

func (s *adService) deleteOrphanedMedia(previous, current *domain.Ad) {
	kept := make(map[string]bool)
	for _, p := range current.MediaPaths() {
		kept[p] = true
	}
	for _, p := range previous.MediaPaths() {
		if kept[p] {
			continue
		}
		if err := s.files.Delete(p); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.loggers.ErrorLogger.Error("failed to delete replaced media file", "path", p, utils.Err(err))
		}
	}
}

func (s *adService) deleteMediaFiles(ad *domain.Ad) {
	for _, p := range ad.MediaPaths() {
		if err := s.files.Delete(p); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.loggers.ErrorLogger.Error("failed to delete media file", "ad_id", ad.ID, "path", p, utils.Err(err))
		}
	}
}

func removeString(list []string, value string, already bool) ([]string, bool) {
	for i, v := range list {
		if v == value {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, already
}
