package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ad-board/internal/domain"
	"ad-board/internal/infrastructure/cache"
	"ad-board/internal/infrastructure/metrics"
)

// mysqlAdRepository is the relational backend, selectable via
// storage.backend. Additional media lists are stored as JSON columns;
// field semantics match the flat-file backend exactly.
type mysqlAdRepository struct {
	db      *sql.DB
	cache   cache.Cache
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
}

func NewMysqlAdRepository(db *sql.DB, cache cache.Cache, metrics *metrics.RepositoryMetrics) AdRepository {
	tracer := otel.Tracer("ad-board/repository")
	return &mysqlAdRepository{
		db:      db,
		cache:   cache,
		metrics: metrics,
		tracer:  tracer,
	}
}

const adColumns = `id, title, description, img, video, additional_images, additional_videos,
	category, price, contact, supplier_name, email, start_date, end_date, views, approved`

func (r *mysqlAdRepository) observe(query string, status *string, start time.Time) {
	duration := time.Since(start).Seconds()
	r.metrics.QueryCount.WithLabelValues(query, *status).Inc()
	r.metrics.QueryDuration.WithLabelValues(query, *status).Observe(duration)
}

func scanAd(scanner interface{ Scan(...interface{}) error }) (*domain.Ad, error) {
	var (
		ad               domain.Ad
		id               int64
		video            sql.NullString
		additionalImages sql.NullString
		additionalVideos sql.NullString
	)
	err := scanner.Scan(
		&id, &ad.Title, &ad.Description, &ad.Img, &video,
		&additionalImages, &additionalVideos,
		&ad.Category, &ad.Price, &ad.Contact, &ad.SupplierName, &ad.Email,
		&ad.StartDate, &ad.EndDate, &ad.Views, &ad.Approved,
	)
	if err != nil {
		return nil, err
	}
	ad.ID = strconv.FormatInt(id, 10)
	ad.Video = video.String
	if additionalImages.Valid && additionalImages.String != "" {
		if err := json.Unmarshal([]byte(additionalImages.String), &ad.AdditionalImages); err != nil {
			return nil, fmt.Errorf("failed to parse additional_images: %w", err)
		}
	}
	if additionalVideos.Valid && additionalVideos.String != "" {
		if err := json.Unmarshal([]byte(additionalVideos.String), &ad.AdditionalVideos); err != nil {
			return nil, fmt.Errorf("failed to parse additional_videos: %w", err)
		}
	}
	return &ad, nil
}

func mediaColumns(ad *domain.Ad) (video, images, videos interface{}, err error) {
	video = sql.NullString{String: ad.Video, Valid: ad.Video != ""}
	imagesJSON, err := json.Marshal(ad.AdditionalImages)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal additional_images: %w", err)
	}
	videosJSON, err := json.Marshal(ad.AdditionalVideos)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal additional_videos: %w", err)
	}
	return video, string(imagesJSON), string(videosJSON), nil
}

func (r *mysqlAdRepository) ListAds(ctx context.Context, filter ListFilter) ([]*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository ListAds")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer r.observe("ListAds", &status, startTime)

	query := "SELECT " + adColumns + " FROM ads WHERE 1=1"
	var args []interface{}

	if !filter.All {
		query += " AND approved = TRUE"
	}
	if filter.ActiveOnly {
		query += " AND end_date >= CURDATE()"
	}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter.Search != "" {
		query += " AND (title LIKE ? OR description LIKE ? OR category LIKE ?)"
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if filter.From != "" {
		query += " AND end_date >= ?"
		args = append(args, filter.From)
	}
	if filter.To != "" {
		query += " AND start_date <= ?"
		args = append(args, filter.To)
	}
	if filter.SortViews {
		query += " ORDER BY views DESC, id DESC"
	} else {
		query += " ORDER BY id DESC"
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve ads: %w", err)
	}
	defer rows.Close()

	var ads []*domain.Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			status = "error"
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan ad: %w", err)
		}
		ads = append(ads, ad)
	}
	if err := rows.Err(); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	span.SetAttributes(attribute.Int("ads.matched", len(ads)))
	return ads, nil
}

func (r *mysqlAdRepository) GetAdByID(ctx context.Context, id string) (*domain.Ad, error) {
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

	row := r.db.QueryRowContext(ctx, "SELECT "+adColumns+" FROM ads WHERE id = ?", id)
	ad, err := scanAd(row)
	if err != nil {
		if err == sql.ErrNoRows {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	if adJSON, err := json.Marshal(ad); err == nil {
		cacheSpanCtx, cacheSpan := r.tracer.Start(ctx, "Cache Set")
		r.cache.Set(cacheSpanCtx, cacheKey, string(adJSON), cacheTTL)
		cacheSpan.End()
	}

	return ad, nil
}

func (r *mysqlAdRepository) CreateAd(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreateAd")
	defer span.End()

	span.SetAttributes(
		attribute.String("ad.title", ad.Title),
		attribute.Float64("ad.price", ad.Price),
	)

	startTime := time.Now()
	status := "success"
	defer r.observe("CreateAd", &status, startTime)

	video, images, videos, err := mediaColumns(ad)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO ads (title, description, img, video, additional_images, additional_videos,
			category, price, contact, supplier_name, email, start_date, end_date, views, approved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, TRUE)`,
		ad.Title, ad.Description, ad.Img, video, images, videos,
		ad.Category, ad.Price, ad.Contact, ad.SupplierName, ad.Email,
		ad.StartDate, ad.EndDate)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert ad: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	ad.ID = strconv.FormatInt(id, 10)
	ad.Views = 0
	ad.Approved = true

	r.invalidate(ctx, ad.ID)
	return ad, nil
}

func (r *mysqlAdRepository) UpdateAd(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository UpdateAd")
	defer span.End()

	span.SetAttributes(
		attribute.String("ad.id", ad.ID),
		attribute.String("ad.title", ad.Title),
	)

	startTime := time.Now()
	status := "success"
	defer r.observe("UpdateAd", &status, startTime)

	video, images, videos, err := mediaColumns(ad)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE ads
		SET title = ?, description = ?, img = ?, video = ?, additional_images = ?,
			additional_videos = ?, category = ?, price = ?, contact = ?,
			supplier_name = ?, email = ?, start_date = ?, end_date = ?
		WHERE id = ?`,
		ad.Title, ad.Description, ad.Img, video, images, videos,
		ad.Category, ad.Price, ad.Contact, ad.SupplierName, ad.Email,
		ad.StartDate, ad.EndDate, ad.ID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update ad: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve rows affected: %w", err)
	}
	if rowsAffected == 0 {
		status = "not_found"
		return nil, ErrNotFound
	}

	r.invalidate(ctx, ad.ID)
	return r.GetAdByID(ctx, ad.ID)
}

func (r *mysqlAdRepository) DeleteAd(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "Repository DeleteAd")
	defer span.End()

	span.SetAttributes(attribute.String("ad.id", id))

	startTime := time.Now()
	status := "success"
	defer r.observe("DeleteAd", &status, startTime)

	result, err := r.db.ExecContext(ctx, "DELETE FROM ads WHERE id = ?", id)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to delete ad: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to retrieve rows affected: %w", err)
	}
	if rowsAffected == 0 {
		status = "not_found"
		return ErrNotFound
	}

	r.invalidate(ctx, id)
	return nil
}

func (r *mysqlAdRepository) IncrementViews(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "Repository IncrementViews")
	defer span.End()

	span.SetAttributes(attribute.String("ad.id", id))

	startTime := time.Now()
	status := "success"
	defer r.observe("IncrementViews", &status, startTime)

	result, err := r.db.ExecContext(ctx, "UPDATE ads SET views = views + 1 WHERE id = ?", id)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to increment views: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to retrieve rows affected: %w", err)
	}
	if rowsAffected == 0 {
		status = "not_found"
		return ErrNotFound
	}

	r.invalidate(ctx, id)
	return nil
}

func (r *mysqlAdRepository) CountAds(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CountAds")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer r.observe("CountAds", &status, startTime)

	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ads").Scan(&count); err != nil {
		status = "error"
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count ads: %w", err)
	}
	return count, nil
}

func (r *mysqlAdRepository) LoadAll(ctx context.Context) ([]*domain.Ad, error) {
	return r.ListAds(ctx, ListFilter{All: true})
}

func (r *mysqlAdRepository) ReplaceAll(ctx context.Context, ads []*domain.Ad) error {
	ctx, span := r.tracer.Start(ctx, "Repository ReplaceAll")
	defer span.End()

	span.SetAttributes(attribute.Int("ads.count", len(ads)))

	startTime := time.Now()
	status := "success"
	defer r.observe("ReplaceAll", &status, startTime)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Per-ad cache keys for records dropped by this replace must not
	// linger, so collect the previous ids before the wipe.
	ids, err := previousIDs(ctx, tx)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM ads"); err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to clear ads: %w", err)
	}

	for _, ad := range ads {
		video, images, videos, err := mediaColumns(ad)
		if err != nil {
			status = "error"
			span.RecordError(err)
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ads (id, title, description, img, video, additional_images,
				additional_videos, category, price, contact, supplier_name, email,
				start_date, end_date, views, approved)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ad.ID, ad.Title, ad.Description, ad.Img, video, images, videos,
			ad.Category, ad.Price, ad.Contact, ad.SupplierName, ad.Email,
			ad.StartDate, ad.EndDate, ad.Views, ad.Approved); err != nil {
			status = "error"
			span.RecordError(err)
			return fmt.Errorf("failed to insert ad %s: %w", ad.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to commit replace: %w", err)
	}

	r.invalidate(ctx, ids...)
	return nil
}

func previousIDs(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM ads")
	if err != nil {
		return nil, fmt.Errorf("failed to list previous ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan previous id: %w", err)
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}

func (r *mysqlAdRepository) invalidate(ctx context.Context, ids ...string) {
	keys := []string{cacheKeyAll}
	for _, id := range ids {
		keys = append(keys, "ad:"+id)
	}
	r.cache.Delete(ctx, keys...)
}
