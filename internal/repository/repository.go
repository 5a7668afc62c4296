package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ad-board/internal/domain"
	"ad-board/internal/infrastructure/cache"
	"ad-board/internal/infrastructure/metrics"
	"ad-board/pkg/logger"
	"ad-board/pkg/utils"
)

var ErrNotFound = errors.New("ad not found")

// ListFilter narrows and orders a listing query. Zero value returns the
// whole approved collection in newest-first order.
type ListFilter struct {
	Category   string
	Search     string
	From       string
	To         string
	SortViews  bool
	ActiveOnly bool
	All        bool // include unapproved records (admin views)
	Now        time.Time
}

type AdRepository interface {
	ListAds(ctx context.Context, filter ListFilter) ([]*domain.Ad, error)
	GetAdByID(ctx context.Context, id string) (*domain.Ad, error)
	CreateAd(ctx context.Context, ad *domain.Ad) (*domain.Ad, error)
	UpdateAd(ctx context.Context, ad *domain.Ad) (*domain.Ad, error)
	DeleteAd(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error
	CountAds(ctx context.Context) (int, error)

	// LoadAll and ReplaceAll are the sweeper's full read / full replace
	// pair. ReplaceAll overwrites the entire collection; last writer wins.
	LoadAll(ctx context.Context) ([]*domain.Ad, error)
	ReplaceAll(ctx context.Context, ads []*domain.Ad) error
}

const (
	cacheKeyAll = "ads:all"
	cacheTTL    = 10 * time.Minute
)

// jsonAdRepository stores the whole collection as one JSON file. Every
// mutation is a full read-modify-write guarded by an in-process mutex;
// concurrent writers outside this process still race (last write wins).
type jsonAdRepository struct {
	path    string
	cache   cache.Cache
	metrics *metrics.RepositoryMetrics
	loggers *logger.Loggers
	tracer  trace.Tracer
	mu      sync.Mutex
}

func NewJSONAdRepository(path string, cache cache.Cache, metrics *metrics.RepositoryMetrics, loggers *logger.Loggers) AdRepository {
	tracer := otel.Tracer("ad-board/repository")
	return &jsonAdRepository{
		path:    path,
		cache:   cache,
		metrics: metrics,
		loggers: loggers,
		tracer:  tracer,
	}
}

// readAds loads the backing file. A missing, empty or corrupt file is
// treated as an empty collection: the store fails open and logs instead
// of propagating.
func (r *jsonAdRepository) readAds() []*domain.Ad {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.loggers.ErrorLogger.Error("failed to read ads file, treating as empty", utils.Err(err))
		}
		return []*domain.Ad{}
	}
	if strings.TrimSpace(string(data)) == "" {
		return []*domain.Ad{}
	}

	var ads []*domain.Ad
	if err := json.Unmarshal(data, &ads); err != nil {
		r.loggers.ErrorLogger.Error("failed to parse ads file, treating as empty", utils.Err(err))
		return []*domain.Ad{}
	}
	return ads
}

// writeAds replaces the file contents. The write goes to a temp file in
// the same directory followed by a rename, so readers never observe a
// truncated collection.
func (r *jsonAdRepository) writeAds(ads []*domain.Ad) error {
	data, err := json.MarshalIndent(ads, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ads: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "ads-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write ads: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace ads file: %w", err)
	}
	return nil
}

func (r *jsonAdRepository) invalidate(ctx context.Context, ids ...string) {
	keys := []string{cacheKeyAll}
	for _, id := range ids {
		keys = append(keys, "ad:"+id)
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.loggers.ErrorLogger.Error("failed to invalidate cache", utils.Err(err))
	}
}

func (r *jsonAdRepository) observe(query string, status *string, start time.Time) {
	duration := time.Since(start).Seconds()
	r.metrics.QueryCount.WithLabelValues(query, *status).Inc()
	r.metrics.QueryDuration.WithLabelValues(query, *status).Observe(duration)
}

func (r *jsonAdRepository) ListAds(ctx context.Context, filter ListFilter) ([]*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository ListAds")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer r.observe("ListAds", &status, startTime)

	ads, err := r.LoadAll(ctx)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	result := FilterAds(ads, filter)

	span.SetAttributes(
		attribute.String("ads.category", filter.Category),
		attribute.String("ads.search", filter.Search),
		attribute.Int("ads.matched", len(result)),
	)
	return result, nil
}

func (r *jsonAdRepository) GetAdByID(ctx context.Context, id string) (*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetAdByID")
	defer span.End()

	span.SetAttributes(attribute.String("ad.id", id))

	startTime := time.Now()
	status := "success"
	defer r.observe("GetAdByID", &status, startTime)

	cacheKey := "ad:" + id
	cacheSpanCtx, cacheSpan := r.tracer.Start(ctx, "Cache Get")
	cached, err := r.cache.Get(cacheSpanCtx, cacheKey)
	cacheSpan.End()
	if err == nil {
		var ad domain.Ad
		if err := json.Unmarshal([]byte(cached), &ad); err == nil {
			return &ad, nil
		}
	}

	r.mu.Lock()
	ads := r.readAds()
	r.mu.Unlock()

	for _, ad := range ads {
		if ad.ID == id {
			if adJSON, err := json.Marshal(ad); err == nil {
				cacheSpanCtx, cacheSpan := r.tracer.Start(ctx, "Cache Set")
				r.cache.Set(cacheSpanCtx, cacheKey, string(adJSON), cacheTTL)
				cacheSpan.End()
			}
			return ad, nil
		}
	}

	status = "not_found"
	return nil, ErrNotFound
}

func (r *jsonAdRepository) CreateAd(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreateAd")
	defer span.End()

	span.SetAttributes(
		attribute.String("ad.title", ad.Title),
		attribute.Float64("ad.price", ad.Price),
	)

	startTime := time.Now()
	status := "success"
	defer r.observe("CreateAd", &status, startTime)

	r.mu.Lock()
	defer r.mu.Unlock()

	ads := r.readAds()

	ad.ID = nextID(ads)
	ad.Views = 0
	ad.Approved = true

	ads = append(ads, ad)
	if err := r.writeAds(ads); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	r.invalidate(ctx, ad.ID)
	return ad, nil
}

func (r *jsonAdRepository) UpdateAd(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository UpdateAd")
	defer span.End()

	span.SetAttributes(
		attribute.String("ad.id", ad.ID),
		attribute.String("ad.title", ad.Title),
	)

	startTime := time.Now()
	status := "success"
	defer r.observe("UpdateAd", &status, startTime)

	r.mu.Lock()
	defer r.mu.Unlock()

	ads := r.readAds()
	for i, existing := range ads {
		if existing.ID != ad.ID {
			continue
		}
		// Counters and moderation state survive an edit.
		ad.Views = existing.Views
		ad.Approved = existing.Approved
		if ad.History == nil {
			ad.History = existing.History
		}
		ads[i] = ad

		if err := r.writeAds(ads); err != nil {
			status = "error"
			span.RecordError(err)
			return nil, err
		}
		r.invalidate(ctx, ad.ID)
		return ad, nil
	}

	status = "not_found"
	return nil, ErrNotFound
}

func (r *jsonAdRepository) DeleteAd(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "Repository DeleteAd")
	defer span.End()

	span.SetAttributes(attribute.String("ad.id", id))

	startTime := time.Now()
	status := "success"
	defer r.observe("DeleteAd", &status, startTime)

	r.mu.Lock()
	defer r.mu.Unlock()

	ads := r.readAds()
	remaining := ads[:0]
	found := false
	for _, ad := range ads {
		if ad.ID == id {
			found = true
			continue
		}
		remaining = append(remaining, ad)
	}
	if !found {
		status = "not_found"
		return ErrNotFound
	}

	if err := r.writeAds(remaining); err != nil {
		status = "error"
		span.RecordError(err)
		return err
	}

	r.invalidate(ctx, id)
	return nil
}

func (r *jsonAdRepository) IncrementViews(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "Repository IncrementViews")
	defer span.End()

	span.SetAttributes(attribute.String("ad.id", id))

	startTime := time.Now()
	status := "success"
	defer r.observe("IncrementViews", &status, startTime)

	r.mu.Lock()
	defer r.mu.Unlock()

	ads := r.readAds()
	for _, ad := range ads {
		if ad.ID != id {
			continue
		}
		ad.Views++
		if err := r.writeAds(ads); err != nil {
			status = "error"
			span.RecordError(err)
			return err
		}
		r.invalidate(ctx, id)
		return nil
	}

	status = "not_found"
	return ErrNotFound
}

func (r *jsonAdRepository) CountAds(ctx context.Context) (int, error) {
	_, span := r.tracer.Start(ctx, "Repository CountAds")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer r.observe("CountAds", &status, startTime)

	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.readAds()), nil
}

func (r *jsonAdRepository) LoadAll(ctx context.Context) ([]*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository LoadAll")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer r.observe("LoadAll", &status, startTime)

	cacheSpanCtx, cacheSpan := r.tracer.Start(ctx, "Cache Get")
	cached, err := r.cache.Get(cacheSpanCtx, cacheKeyAll)
	cacheSpan.End()
	if err == nil {
		var ads []*domain.Ad
		if err := json.Unmarshal([]byte(cached), &ads); err == nil {
			return ads, nil
		}
	}

	r.mu.Lock()
	ads := r.readAds()
	r.mu.Unlock()

	if adsJSON, err := json.Marshal(ads); err == nil {
		cacheSpanCtx, cacheSpan := r.tracer.Start(ctx, "Cache Set")
		r.cache.Set(cacheSpanCtx, cacheKeyAll, string(adsJSON), cacheTTL)
		cacheSpan.End()
	}

	return ads, nil
}

func (r *jsonAdRepository) ReplaceAll(ctx context.Context, ads []*domain.Ad) error {
	ctx, span := r.tracer.Start(ctx, "Repository ReplaceAll")
	defer span.End()

	span.SetAttributes(attribute.Int("ads.count", len(ads)))

	startTime := time.Now()
	status := "success"
	defer r.observe("ReplaceAll", &status, startTime)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Per-ad cache keys for records dropped by this replace must not
	// linger, so collect the previous ids before overwriting.
	ids := make([]string, 0, len(ads))
	for _, ad := range r.readAds() {
		ids = append(ids, ad.ID)
	}

	if err := r.writeAds(ads); err != nil {
		status = "error"
		span.RecordError(err)
		return err
	}

	r.invalidate(ctx, ids...)
	return nil
}

// nextID assigns max-existing-id + 1 as a decimal string. Records whose
// id does not parse are skipped for the purpose of finding the max.
func nextID(ads []*domain.Ad) string {
	maxID := 0
	for _, ad := range ads {
		if n, err := strconv.Atoi(ad.ID); err == nil && n > maxID {
			maxID = n
		}
	}
	return strconv.Itoa(maxID + 1)
}

// FilterAds applies a ListFilter in memory. Shared by the JSON backend
// and by tests; the MySQL backend pushes the same semantics into SQL.
func FilterAds(ads []*domain.Ad, filter ListFilter) []*domain.Ad {
	now := filter.Now
	if now.IsZero() {
		now = time.Now()
	}

	result := make([]*domain.Ad, 0, len(ads))
	for _, ad := range ads {
		if !filter.All && !ad.Approved {
			continue
		}
		if filter.ActiveOnly && ad.Expired(now) {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(ad.Category, filter.Category) {
			continue
		}
		if filter.Search != "" && !matchesSearch(ad, filter.Search) {
			continue
		}
		if !matchesDateRange(ad, filter.From, filter.To) {
			continue
		}
		result = append(result, ad)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if filter.SortViews && result[i].Views != result[j].Views {
			return result[i].Views > result[j].Views
		}
		return idNum(result[i].ID) > idNum(result[j].ID)
	})

	return result
}

func matchesSearch(ad *domain.Ad, term string) bool {
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(ad.Title), term) ||
		strings.Contains(strings.ToLower(ad.Description), term) ||
		strings.Contains(strings.ToLower(ad.Category), term)
}

// matchesDateRange keeps ads whose validity window overlaps [from, to].
func matchesDateRange(ad *domain.Ad, from, to string) bool {
	if from == "" && to == "" {
		return true
	}
	start, err := domain.ParseDate(ad.StartDate)
	if err != nil {
		return false
	}
	end, err := domain.ParseDate(ad.EndDate)
	if err != nil {
		return false
	}
	if from != "" {
		f, err := domain.ParseDate(from)
		if err != nil || end.Before(f) {
			return false
		}
	}
	if to != "" {
		t, err := domain.ParseDate(to)
		if err != nil || start.After(t) {
			return false
		}
	}
	return true
}

func idNum(id string) int {
	n, _ := strconv.Atoi(id)
	return n
}
