package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ad-board/internal/delivery/handler"
	"ad-board/internal/delivery/middleware"
	"ad-board/internal/delivery/router"
	"ad-board/internal/domain"
	"ad-board/internal/infrastructure/cache"
	"ad-board/internal/infrastructure/metrics"
	"ad-board/internal/infrastructure/storage"
	"ad-board/internal/repository"
	"ad-board/internal/service"
	"ad-board/pkg/logger"
)

type recordingNotifier struct {
	sent []string
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, to, subject, text, html string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, to)
	return nil
}

type testEnv struct {
	server   *httptest.Server
	repo     repository.AdRepository
	notifier *recordingNotifier
	sessions *middleware.SessionManager
}

const adminPassword = "swordfish"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	loggers := logger.NewDiscard()
	reg := prometheus.NewRegistry()

	repo := repository.NewJSONAdRepository(
		filepath.Join(dir, "ads.json"),
		cache.NewNoopCache(),
		metrics.NewRepositoryMetrics(reg),
		loggers,
	)
	history := repository.NewJSONHistoryLog(filepath.Join(dir, "history.json"))
	files, err := storage.NewDiskFileStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	profiles := repository.NewJSONProfileStore(filepath.Join(dir, "admin.json"))
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, profiles.Update(context.Background(), &domain.AdminProfile{
		ID: "1", Name: "Admin", Email: "admin@example.com",
		Password: string(hash), Role: "admin",
	}))

	notifier := &recordingNotifier{}
	adService := service.NewAdService(repo, history, files, metrics.NewServiceMetrics(reg), loggers, true)
	sweeper := service.NewSweeper(repo, files, history, notifier,
		metrics.NewSweeperMetrics(reg), loggers, service.SweeperOptions{ArchiveEnabled: true})
	sessions := middleware.NewSessionManager("test-secret", time.Hour)

	r := chi.NewRouter()
	router.SetupRoutes(r, router.Deps{
		AdService:    adService,
		Sweeper:      sweeper,
		Files:        files,
		Profiles:     profiles,
		Notifier:     notifier,
		Sessions:     sessions,
		SupportEmail: "support@example.com",
		Loggers:      loggers,
		Metrics:      metrics.NewHandlerMetrics(reg),
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &testEnv{server: server, repo: repo, notifier: notifier, sessions: sessions}
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"email": "admin@example.com", "password": adminPassword,
	})
	resp, err := http.Post(e.server.URL+"/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie in login response")
	return nil
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string, cookie *http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func multipartAd(t *testing.T, title, endDate string, withImage bool) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"title":        title,
		"description":  "a fine service",
		"category":     "services",
		"price":        "49.90",
		"contact":      "+100200300",
		"supplierName": "Supplier",
		"email":        "supplier@example.com",
		"startDate":    "2025-01-01",
		"endDate":      endDate,
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if withImage {
		part, err := w.CreateFormFile("img", "photo.jpg")
		require.NoError(t, err)
		_, err = part.Write([]byte("jpeg-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestAdLifecycleThroughAPI(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	// Create
	body, contentType := multipartAd(t, "Window cleaning", "2030-01-01", true)
	resp := env.do(t, http.MethodPost, "/ads", body, contentType, cookie)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created domain.Ad
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.Equal(t, "1", created.ID)
	assert.True(t, created.Approved)
	assert.NotEmpty(t, created.Img)

	// Public detail view counts a view
	resp = env.do(t, http.MethodGet, "/ads/"+created.ID, nil, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var viewed domain.Ad
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&viewed))
	resp.Body.Close()
	assert.Equal(t, 1, viewed.Views)

	// Listing
	resp = env.do(t, http.MethodGet, "/ads?q=window", nil, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing service.PaginationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	resp.Body.Close()
	require.Len(t, listing.Ads, 1)

	// Delete
	resp = env.do(t, http.MethodDelete, "/ads/"+created.ID, nil, "", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/ads/"+created.ID, nil, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateRequiresImage(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	body, contentType := multipartAd(t, "No image", "2030-01-01", false)
	resp := env.do(t, http.MethodPost, "/ads", body, contentType, cookie)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMutationsRequireSession(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartAd(t, "Sneaky", "2030-01-01", true)
	resp := env.do(t, http.MethodPost, "/ads", body, contentType, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/cleanup", nil, "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]string{
		"email": "admin@example.com", "password": "wrong",
	})
	resp, err := http.Post(env.server.URL+"/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCleanupEndpoint(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	// Seed one expired and one active ad directly in the store.
	ctx := context.Background()
	_, err := env.repo.CreateAd(ctx, &domain.Ad{
		Title: "stale", Img: "/uploads/stale.jpg", StartDate: "2020-01-01", EndDate: "2020-02-01",
	})
	require.NoError(t, err)
	fresh, err := env.repo.CreateAd(ctx, &domain.Ad{
		Title: "fresh", Img: "/uploads/fresh.jpg", StartDate: "2020-01-01", EndDate: "2099-01-01",
	})
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/cleanup", nil, "", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	resp.Body.Close()
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Message)

	ads, err := env.repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, ads, 1)
	assert.Equal(t, fresh.ID, ads[0].ID)
}

func TestCleanupDescription(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/cleanup", nil, "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var desc map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&desc))
	assert.Contains(t, desc["message"], "POST")
}

func TestContactFormSendsEmail(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]string{
		"name": "Visitor", "email": "visitor@example.com", "message": "hello",
	})
	resp, err := http.Post(env.server.URL+"/contact", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"support@example.com"}, env.notifier.sent)

	// Send failure surfaces as 500 without crashing.
	env.notifier.err = errors.New("smtp down")
	resp, err = http.Post(env.server.URL+"/contact", "application/json", bytes.NewReader(mustJSON(t, map[string]string{
		"name": "Visitor", "email": "visitor@example.com", "message": "hello again",
	})))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestProfileRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	resp := env.do(t, http.MethodGet, "/profile", nil, "", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var profile domain.AdminProfile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&profile))
	resp.Body.Close()
	assert.Equal(t, "admin@example.com", profile.Email)
	assert.Empty(t, profile.Password)

	update, _ := json.Marshal(map[string]string{"name": "New Name", "password": "hunter2!"})
	resp = env.do(t, http.MethodPut, "/profile", bytes.NewReader(update), "application/json", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The new password works for the next login.
	body := mustJSON(t, map[string]string{"email": "admin@example.com", "password": "hunter2!"})
	loginResp, err := http.Post(env.server.URL+"/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	loginResp.Body.Close()
	assert.Equal(t, http.StatusOK, loginResp.StatusCode)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// stubAdService lets update failures be forced after the existing-ad
// lookup has already succeeded.
type stubAdService struct {
	existing  *domain.Ad
	updateErr error
}

func (s *stubAdService) ListAds(ctx context.Context, params service.ListParams) (*service.PaginationResult, error) {
	return &service.PaginationResult{}, nil
}

func (s *stubAdService) GetAdByID(ctx context.Context, id string) (*domain.Ad, error) {
	return s.existing, nil
}

func (s *stubAdService) ViewAd(ctx context.Context, id string) (*domain.Ad, error) {
	return s.existing, nil
}

func (s *stubAdService) CreateAd(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	return ad, nil
}

func (s *stubAdService) UpdateAd(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	return nil, s.updateErr
}

func (s *stubAdService) DeleteAd(ctx context.Context, id string) error { return nil }

func (s *stubAdService) RemoveMedia(ctx context.Context, id, mediaPath string) (*domain.Ad, error) {
	return s.existing, nil
}

func TestUpdateFailureDiscardsUploadedMedia(t *testing.T) {
	uploadsDir := t.TempDir()
	files, err := storage.NewDiskFileStore(uploadsDir)
	require.NoError(t, err)

	existing := &domain.Ad{
		ID:        "1",
		Title:     "Plumbing",
		Img:       "/uploads/old.jpg",
		StartDate: "2025-01-01",
		EndDate:   "2025-12-31",
		Approved:  true,
	}
	// The ad vanishes between the lookup and the update, e.g. a
	// concurrent delete or sweep.
	svc := &stubAdService{existing: existing, updateErr: service.ErrAdNotFound}

	h := handler.NewAdHandler(svc, files, logger.NewDiscard(), metrics.NewHandlerMetrics(prometheus.NewRegistry()))
	r := chi.NewRouter()
	r.Put("/ads/{id}", h.UpdateAd)

	body, contentType := multipartAd(t, "Plumbing", "2025-12-31", true)
	req := httptest.NewRequest(http.MethodPut, "/ads/1", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	// The replacement image was written before the update failed; it
	// must not linger in the uploads dir.
	entries, err := os.ReadDir(uploadsDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
