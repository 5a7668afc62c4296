package handler

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"ad-board/internal/infrastructure/mailer"
	"ad-board/internal/infrastructure/metrics"
	"ad-board/pkg/logger"
	"ad-board/pkg/utils"
)

// ContactHandler forwards the public contact form to the support inbox.
type ContactHandler struct {
	notifier     mailer.Notifier
	supportEmail string
	logger       *logger.Loggers
	metrics      *metrics.HandlerMetrics
	tracer       trace.Tracer
}

func NewContactHandler(notifier mailer.Notifier, supportEmail string, loggers *logger.Loggers, handlerMetrics *metrics.HandlerMetrics) *ContactHandler {
	tracer := otel.Tracer("ad-board/handler")
	return &ContactHandler{
		notifier:     notifier,
		supportEmail: supportEmail,
		logger:       loggers,
		metrics:      handlerMetrics,
		tracer:       tracer,
	}
}

func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ContactSubmit")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() {
		duration := time.Since(startTime).Seconds()
		h.metrics.RequestCount.WithLabelValues("POST", "/contact", status).Inc()
		h.metrics.RequestDuration.WithLabelValues("POST", "/contact", status).Observe(duration)
	}()

	var req struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.Message == "" {
		status = "error"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "name, email and message are required")
		return
	}

	subject, text, html := mailer.ContactMessage(req.Name, req.Email, req.Message)
	if err := h.notifier.Send(ctx, h.supportEmail, subject, text, html); err != nil {
		status = "error"
		h.logger.ErrorLogger.Error("failed to send contact email", utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "failed to send message, please try again later")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "thank you for your message, we will get back to you soon",
	})
}
