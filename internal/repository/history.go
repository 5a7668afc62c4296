package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ad-board/internal/domain"
)

// HistoryLog is the append-only record of deleted ads. Past entries are
// never mutated and never read back into the active collection.
type HistoryLog interface {
	Append(ctx context.Context, entry domain.ArchivedAd) error
	List(ctx context.Context) ([]domain.ArchivedAd, error)
}

type jsonHistoryLog struct {
	path   string
	tracer trace.Tracer
	mu     sync.Mutex
}

func NewJSONHistoryLog(path string) HistoryLog {
	return &jsonHistoryLog{
		path:   path,
		tracer: otel.Tracer("ad-board/repository"),
	}
}

func (h *jsonHistoryLog) Append(ctx context.Context, entry domain.ArchivedAd) error {
	_, span := h.tracer.Start(ctx, "History Append")
	defer span.End()

	span.SetAttributes(attribute.String("ad.id", entry.ID))

	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.read()
	if err != nil {
		span.RecordError(err)
		return err
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create history dir: %w", err)
	}
	if err := os.WriteFile(h.path, data, 0o644); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

func (h *jsonHistoryLog) List(ctx context.Context) ([]domain.ArchivedAd, error) {
	_, span := h.tracer.Start(ctx, "History List")
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.read()
}

func (h *jsonHistoryLog) read() ([]domain.ArchivedAd, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.ArchivedAd{}, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return []domain.ArchivedAd{}, nil
	}
	var entries []domain.ArchivedAd
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	return entries, nil
}
