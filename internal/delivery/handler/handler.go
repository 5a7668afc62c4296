package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ad-board/internal/domain"
	"ad-board/internal/infrastructure/metrics"
	"ad-board/internal/infrastructure/storage"
	"ad-board/internal/repository"
	"ad-board/internal/service"
	"ad-board/pkg/logger"
	"ad-board/pkg/utils"
)

const maxUploadSize = 32 << 20

type AdHandler struct {
	service service.AdService
	files   storage.FileStore
	logger  *logger.Loggers
	metrics *metrics.HandlerMetrics
	tracer  trace.Tracer
}

func NewAdHandler(adService service.AdService, files storage.FileStore, loggers *logger.Loggers, handlerMetrics *metrics.HandlerMetrics) *AdHandler {
	tracer := otel.Tracer("ad-board/handler")
	return &AdHandler{
		service: adService,
		files:   files,
		logger:  loggers,
		metrics: handlerMetrics,
		tracer:  tracer,
	}
}

func (h *AdHandler) observe(method, endpoint string, status *string, start time.Time) {
	duration := time.Since(start).Seconds()
	h.metrics.RequestCount.WithLabelValues(method, endpoint, *status).Inc()
	h.metrics.RequestDuration.WithLabelValues(method, endpoint, *status).Observe(duration)
}

func (h *AdHandler) ListAds(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListAds")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer h.observe("GET", "/ads", &status, startTime)

	query := r.URL.Query()

	limit, err := strconv.Atoi(query.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	page, err := strconv.Atoi(query.Get("page"))
	if err != nil || page <= 0 {
		page = 1
	}

	params := service.ListParams{
		Page:  page,
		Limit: limit,
		Filter: repository.ListFilter{
			Category:   query.Get("category"),
			Search:     query.Get("q"),
			From:       query.Get("from"),
			To:         query.Get("to"),
			SortViews:  query.Get("sort") == "views",
			ActiveOnly: query.Get("include_expired") != "true",
		},
	}

	span.SetAttributes(
		attribute.Int("ads.page", page),
		attribute.Int("ads.limit", limit),
		attribute.String("ads.category", params.Filter.Category),
		attribute.String("ads.search", params.Filter.Search),
	)

	result, err := h.service.ListAds(ctx, params)
	if err != nil {
		status = "error"
		h.logger.ErrorLogger.Error("failed to retrieve ads", utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "could not retrieve ads")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, result)
}

func (h *AdHandler) GetAdByID(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetAdByID")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer h.observe("GET", "/ads/{id}", &status, startTime)

	id := chi.URLParam(r, "id")
	if id == "" {
		status = "error"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "missing id parameter")
		return
	}

	span.SetAttributes(attribute.String("ad.id", id))

	ad, err := h.service.ViewAd(ctx, id)
	if err != nil {
		h.respondServiceError(w, r, span, &status, err, "failed to get ad by ID")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, ad)
}

func (h *AdHandler) CreateAd(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateAd")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer h.observe("POST", "/ads", &status, startTime)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		status = "error"
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	ad, err := h.adFromForm(r)
	if err != nil {
		status = "error"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	// The primary image is required on creation.
	imgPath, err := h.saveFormFile(r, "img")
	if err != nil {
		status = "error"
		h.logger.ErrorLogger.Error("failed to store image", utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "failed to store image")
		return
	}
	if imgPath == "" {
		status = "error"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "image is required")
		return
	}
	ad.Img = imgPath

	if err := h.saveAdditionalFiles(r, ad); err != nil {
		status = "error"
		h.logger.ErrorLogger.Error("failed to store additional files", utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "failed to store additional files")
		return
	}

	span.SetAttributes(
		attribute.String("ad.title", ad.Title),
		attribute.Float64("ad.price", ad.Price),
	)

	createdAd, err := h.service.CreateAd(ctx, ad)
	if err != nil {
		status = "error"
		h.logger.ErrorLogger.Error("could not create ad", utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "could not create ad")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, createdAd)
}

func (h *AdHandler) UpdateAd(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateAd")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer h.observe("PUT", "/ads/{id}", &status, startTime)

	id := chi.URLParam(r, "id")
	if id == "" {
		status = "error"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "missing id parameter")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		status = "error"
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	existing, err := h.service.GetAdByID(ctx, id)
	if err != nil {
		h.respondServiceError(w, r, span, &status, err, "failed to load ad for update")
		return
	}

	ad, err := h.adFromForm(r)
	if err != nil {
		status = "error"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	ad.ID = id
	ad.Img = existing.Img
	ad.Video = existing.Video
	ad.AdditionalImages = existing.AdditionalImages
	ad.AdditionalVideos = existing.AdditionalVideos

	// A freshly uploaded primary image replaces the old one; the service
	// reclaims the orphaned file.
	var savedPaths []string
	imgPath, err := h.saveFormFile(r, "img")
	if err != nil {
		status = "error"
		h.logger.ErrorLogger.Error("failed to store image", utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "failed to store image")
		return
	}
	if imgPath != "" {
		ad.Img = imgPath
		savedPaths = append(savedPaths, imgPath)
	}

	prevImages, prevVideos := len(ad.AdditionalImages), len(ad.AdditionalVideos)
	if err := h.saveAdditionalFiles(r, ad); err != nil {
		status = "error"
		h.discardSavedMedia(savedPaths)
		h.logger.ErrorLogger.Error("failed to store additional files", utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "failed to store additional files")
		return
	}
	savedPaths = append(savedPaths, ad.AdditionalImages[prevImages:]...)
	savedPaths = append(savedPaths, ad.AdditionalVideos[prevVideos:]...)

	span.SetAttributes(attribute.String("ad.id", id))

	updatedAd, err := h.service.UpdateAd(ctx, ad)
	if err != nil {
		// The record never adopted the new media, so the files just
		// written would be orphaned in the uploads dir.
		h.discardSavedMedia(savedPaths)
		h.respondServiceError(w, r, span, &status, err, "failed to update ad")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, updatedAd)
}

func (h *AdHandler) DeleteAd(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteAd")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer h.observe("DELETE", "/ads/{id}", &status, startTime)

	id := chi.URLParam(r, "id")
	if id == "" {
		status = "error"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "missing id parameter")
		return
	}

	span.SetAttributes(attribute.String("ad.id", id))

	if err := h.service.DeleteAd(ctx, id); err != nil {
		h.respondServiceError(w, r, span, &status, err, "failed to delete ad")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "ad deleted successfully"})
}

func (h *AdHandler) RemoveMedia(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RemoveMedia")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer h.observe("POST", "/ads/{id}/media/delete", &status, startTime)

	id := chi.URLParam(r, "id")

	var req struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Path == "" {
		status = "error"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "missing path parameter")
		return
	}

	span.SetAttributes(
		attribute.String("ad.id", id),
		attribute.String("media.path", req.Path),
	)

	updated, err := h.service.RemoveMedia(ctx, id, req.Path)
	if err != nil {
		h.respondServiceError(w, r, span, &status, err, "failed to remove media")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, updated)
}

// adFromForm builds an Ad from the multipart fields shared by create and
// update. Media paths are filled in by the caller.
func (h *AdHandler) adFromForm(r *http.Request) (*domain.Ad, error) {
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		return nil, errors.New("title is required")
	}

	startDate := r.FormValue("startDate")
	endDate := r.FormValue("endDate")
	if _, err := domain.ParseDate(startDate); err != nil {
		return nil, errors.New("invalid startDate")
	}
	if _, err := domain.ParseDate(endDate); err != nil {
		return nil, errors.New("invalid endDate")
	}

	price, err := strconv.ParseFloat(r.FormValue("price"), 64)
	if err != nil || price < 0 {
		price = 0
	}

	return &domain.Ad{
		Title:        title,
		Description:  r.FormValue("description"),
		Category:     r.FormValue("category"),
		Price:        price,
		Contact:      r.FormValue("contact"),
		SupplierName: r.FormValue("supplierName"),
		Email:        r.FormValue("email"),
		StartDate:    startDate,
		EndDate:      endDate,
	}, nil
}

// saveFormFile stores a single uploaded file and returns its uploads
// path, or "" when the field is absent.
func (h *AdHandler) saveFormFile(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", err
	}
	defer file.Close()

	return h.files.Save(file, header.Filename)
}

// saveAdditionalFiles stores every part of the additionalFiles field,
// routing each to images or videos by its declared MIME type.
func (h *AdHandler) saveAdditionalFiles(r *http.Request, ad *domain.Ad) error {
	if r.MultipartForm == nil {
		return nil
	}
	for _, header := range r.MultipartForm.File["additionalFiles"] {
		relPath, err := h.saveMultipartHeader(header)
		if err != nil {
			return err
		}
		if strings.HasPrefix(header.Header.Get("Content-Type"), "video/") {
			ad.AdditionalVideos = append(ad.AdditionalVideos, relPath)
		} else {
			ad.AdditionalImages = append(ad.AdditionalImages, relPath)
		}
	}
	return nil
}

// discardSavedMedia removes files written ahead of a record mutation
// that did not go through.
func (h *AdHandler) discardSavedMedia(paths []string) {
	for _, p := range paths {
		if err := h.files.Delete(p); err != nil && !errors.Is(err, storage.ErrNotFound) {
			h.logger.ErrorLogger.Error("failed to discard uploaded file", "path", p, utils.Err(err))
		}
	}
}

func (h *AdHandler) saveMultipartHeader(header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()
	return h.files.Save(file, header.Filename)
}

// respondServiceError maps service sentinels onto HTTP statuses the way
// every handler in this package does.
func (h *AdHandler) respondServiceError(w http.ResponseWriter, r *http.Request, span trace.Span, status *string, err error, logMsg string) {
	switch {
	case errors.Is(err, service.ErrInvalidID):
		*status = "error"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid id parameter")
	case errors.Is(err, service.ErrAdNotFound):
		*status = "not_found"
		utils.RespondWithErrorJSON(w, http.StatusNotFound, "ad not found")
	default:
		*status = "error"
		h.logger.ErrorLogger.Error(logMsg, utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "internal server error")
	}
}
