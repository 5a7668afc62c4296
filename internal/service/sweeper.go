package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ad-board/internal/domain"
	"ad-board/internal/infrastructure/mailer"
	"ad-board/internal/infrastructure/metrics"
	"ad-board/internal/infrastructure/storage"
	"ad-board/internal/repository"
	"ad-board/pkg/logger"
	"ad-board/pkg/utils"
)

// SweeperOptions tunes the expiration sweeper. NotifyWindowDays is the
// reminder horizon: suppliers are mailed when their ad expires in
// [0, NotifyWindowDays] days.
type SweeperOptions struct {
	ArchiveEnabled   bool
	NotifyEnabled    bool
	NotifyWindowDays int
}

// Sweeper enforces the "active iff not expired" invariant: it removes
// ads whose end date has passed, reclaims their media files, archives
// them to the history log and reminds suppliers nearing expiry.
//
// Every per-item step is best-effort; only a collection-level read or
// write failure is reported to the caller. Sweeps are serialized with a
// mutex, but the backing collection itself stays last-write-wins against
// concurrent HTTP mutators.
type Sweeper struct {
	repository repository.AdRepository
	files      storage.FileStore
	history    repository.HistoryLog
	notifier   mailer.Notifier
	metrics    *metrics.SweeperMetrics
	loggers    *logger.Loggers
	tracer     trace.Tracer
	opts       SweeperOptions

	now func() time.Time
	mu  sync.Mutex
}

func NewSweeper(
	repo repository.AdRepository,
	files storage.FileStore,
	history repository.HistoryLog,
	notifier mailer.Notifier,
	sweeperMetrics *metrics.SweeperMetrics,
	loggers *logger.Loggers,
	opts SweeperOptions,
) *Sweeper {
	tracer := otel.Tracer("ad-board/sweeper")
	return &Sweeper{
		repository: repo,
		files:      files,
		history:    history,
		notifier:   notifier,
		metrics:    sweeperMetrics,
		loggers:    loggers,
		tracer:     tracer,
		opts:       opts,
		now:        time.Now,
	}
}

// Sweep runs one full pass: load, remind, partition, reclaim, persist.
func (s *Sweeper) Sweep(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "Sweep")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() {
		duration := time.Since(startTime).Seconds()
		s.metrics.SweepCount.WithLabelValues(status).Inc()
		s.metrics.SweepDuration.WithLabelValues(status).Observe(duration)
	}()

	// One "now" for the whole pass keeps the partition consistent.
	now := s.now()

	ads, err := s.repository.LoadAll(ctx)
	if err != nil {
		status = "error"
		span.RecordError(err)
		s.loggers.ErrorLogger.Error("sweep: failed to load ads", utils.Err(err))
		return err
	}

	// Reminders go out against the pre-deletion collection.
	if s.opts.NotifyEnabled && s.notifier != nil {
		s.notifyExpiring(ctx, ads, now)
	}

	expired := make([]*domain.Ad, 0)
	retained := make([]*domain.Ad, 0, len(ads))
	for _, ad := range ads {
		if ad.Expired(now) {
			expired = append(expired, ad)
		} else {
			retained = append(retained, ad)
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.expired", len(expired)),
		attribute.Int("sweep.retained", len(retained)),
	)

	if len(expired) == 0 {
		s.loggers.InfoLogger.Info("sweep: no expired ads found", "retained", len(retained))
		return nil
	}

	for _, ad := range expired {
		if s.opts.ArchiveEnabled {
			entry := domain.ArchivedAd{Ad: *ad, DeletedAt: now.UTC()}
			if err := s.history.Append(ctx, entry); err != nil {
				// Archival never blocks the sweep.
				s.loggers.ErrorLogger.Error("sweep: failed to archive ad", "ad_id", ad.ID, utils.Err(err))
			}
		}
		s.deleteMedia(ad)
	}

	if err := s.repository.ReplaceAll(ctx, retained); err != nil {
		status = "error"
		span.RecordError(err)
		s.loggers.ErrorLogger.Error("sweep: failed to persist retained ads", utils.Err(err))
		return err
	}

	s.metrics.ExpiredAds.Add(float64(len(expired)))
	s.loggers.InfoLogger.Info("sweep: completed",
		"expired", len(expired),
		"retained", len(retained),
	)
	return nil
}

// deleteMedia reclaims every file an expired ad owns. Each deletion is
// attempted independently; a failure on one file never blocks the others
// or the removal of the record itself.
func (s *Sweeper) deleteMedia(ad *domain.Ad) {
	for _, path := range ad.MediaPaths() {
		err := s.files.Delete(path)
		switch {
		case err == nil:
			s.metrics.FileDeletions.WithLabelValues("success").Inc()
			s.loggers.DebugLogger.Debug("sweep: deleted media file", "ad_id", ad.ID, "path", path)
		case errors.Is(err, storage.ErrNotFound):
			s.metrics.FileDeletions.WithLabelValues("not_found").Inc()
			s.loggers.InfoLogger.Info("sweep: media file already gone", "ad_id", ad.ID, "path", path)
		default:
			s.metrics.FileDeletions.WithLabelValues("error").Inc()
			s.loggers.ErrorLogger.Error("sweep: failed to delete media file", "ad_id", ad.ID, "path", path, utils.Err(err))
		}
	}
}

// notifyExpiring mails suppliers whose ads expire within the configured
// window. Per-recipient failures are isolated and logged.
func (s *Sweeper) notifyExpiring(ctx context.Context, ads []*domain.Ad, now time.Time) {
	for _, ad := range ads {
		if !ad.ExpiringWithin(now, s.opts.NotifyWindowDays) {
			continue
		}
		if ad.Email == "" {
			continue
		}

		subject, text, html := mailer.ExpiryReminder(ad)
		if err := s.notifier.Send(ctx, ad.Email, subject, text, html); err != nil {
			s.metrics.Reminders.WithLabelValues("error").Inc()
			s.loggers.ErrorLogger.Error("sweep: failed to send expiry reminder", "ad_id", ad.ID, utils.Err(err))
			continue
		}
		s.metrics.Reminders.WithLabelValues("success").Inc()
		s.loggers.InfoLogger.Info("sweep: expiry reminder sent", "ad_id", ad.ID, "to", ad.Email)
	}
}
