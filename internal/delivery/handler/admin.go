package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"ad-board/internal/delivery/middleware"
	"ad-board/internal/infrastructure/metrics"
	"ad-board/internal/repository"
	"ad-board/internal/service"
	"ad-board/pkg/logger"
	"ad-board/pkg/utils"
)

type cleanupResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AdminHandler serves the dashboard-only surface: the manual sweep
// trigger, the admin profile, and the login/logout pair.
type AdminHandler struct {
	sweeper  *service.Sweeper
	profiles repository.ProfileStore
	sessions *middleware.SessionManager
	logger   *logger.Loggers
	metrics  *metrics.HandlerMetrics
	tracer   trace.Tracer
}

func NewAdminHandler(
	sweeper *service.Sweeper,
	profiles repository.ProfileStore,
	sessions *middleware.SessionManager,
	loggers *logger.Loggers,
	handlerMetrics *metrics.HandlerMetrics,
) *AdminHandler {
	tracer := otel.Tracer("ad-board/handler")
	return &AdminHandler{
		sweeper:  sweeper,
		profiles: profiles,
		sessions: sessions,
		logger:   loggers,
		metrics:  handlerMetrics,
		tracer:   tracer,
	}
}

func (h *AdminHandler) observe(method, endpoint string, status *string, start time.Time) {
	duration := time.Since(start).Seconds()
	h.metrics.RequestCount.WithLabelValues(method, endpoint, *status).Inc()
	h.metrics.RequestDuration.WithLabelValues(method, endpoint, *status).Observe(duration)
}

// TriggerCleanup runs the expiration sweep synchronously. Only the
// overall outcome is surfaced; per-item failures stay in the logs.
func (h *AdminHandler) TriggerCleanup(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TriggerCleanup")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer h.observe("POST", "/cleanup", &status, startTime)

	h.logger.InfoLogger.Info("manual cleanup triggered")

	if err := h.sweeper.Sweep(ctx); err != nil {
		status = "error"
		span.RecordError(err)
		utils.RespondWithJSON(w, http.StatusInternalServerError, cleanupResponse{
			Success: false,
			Error:   "failed to complete cleanup",
		})
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, cleanupResponse{
		Success: true,
		Message: "cleanup completed successfully",
	})
}

// DescribeCleanup documents how to invoke the manual trigger.
func (h *AdminHandler) DescribeCleanup(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message":  "use POST to trigger manual cleanup of expired ads",
		"endpoint": "POST /cleanup",
	})
}

func (h *AdminHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetProfile")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer h.observe("GET", "/profile", &status, startTime)

	profile, err := h.profiles.Get(ctx)
	if err != nil {
		status = "error"
		h.logger.ErrorLogger.Error("failed to load admin profile", utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	// The password hash never leaves the store.
	profile.Password = ""
	utils.RespondWithJSON(w, http.StatusOK, profile)
}

func (h *AdminHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateProfile")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer h.observe("PUT", "/profile", &status, startTime)

	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		status = "error"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	profile, err := h.profiles.Get(ctx)
	if err != nil {
		status = "error"
		h.logger.ErrorLogger.Error("failed to load admin profile", utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	if req.Name != "" {
		profile.Name = req.Name
	}
	if req.Email != "" {
		profile.Email = req.Email
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			status = "error"
			span.RecordError(err)
			utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "failed to update password")
			return
		}
		profile.Password = string(hash)
	}

	if err := h.profiles.Update(ctx, profile); err != nil {
		status = "error"
		h.logger.ErrorLogger.Error("failed to update admin profile", utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	profile.Password = ""
	utils.RespondWithJSON(w, http.StatusOK, profile)
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Login")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer h.observe("POST", "/auth/login", &status, startTime)

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		status = "error"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	profile, err := h.profiles.Get(ctx)
	if err != nil {
		status = "error"
		h.logger.ErrorLogger.Error("failed to load admin profile", utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !strings.EqualFold(req.Email, profile.Email) || !passwordMatches(profile.Password, req.Password) {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.sessions.IssueToken(profile)
	if err != nil {
		status = "error"
		h.logger.ErrorLogger.Error("failed to issue session token", utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	http.SetCookie(w, h.sessions.Cookie(token))
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"name":  profile.Name,
		"email": profile.Email,
		"role":  profile.Role,
	})
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessions.ExpiredCookie())
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// passwordMatches checks a bcrypt hash, falling back to a plain
// comparison for legacy records created before hashing was introduced.
func passwordMatches(stored, candidate string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
	}
	return stored != "" && stored == candidate
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
