// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/anikrm/mitra/internal/cache"
	"github.com/anikrm/mitra/internal/provider"
	"github.com/anikrm/mitra/internal/ratelimit"
	"github.com/anikrm/mitra/internal/recommend"
	"github.com/anikrm/mitra/internal/rl"
	"github.com/anikrm/mitra/internal/store"
)

type fakeEngine struct {
	result      *recommend.Result
	initErr     error
	feedbackErr error

	lastRequest  recommend.Request
	lastFeedback recommend.Feedback
}

func (f *fakeEngine) Initialize(_ context.Context, req recommend.Request) (*recommend.Result, error) {
	f.lastRequest = req
	return f.result, f.initErr
}

func (f *fakeEngine) RecordFeedback(_ context.Context, fb recommend.Feedback) error {
	f.lastFeedback = fb
	return f.feedbackErr
}

type fakeUsage struct {
	usage ratelimit.Usage
	err   error
}

func (f *fakeUsage) Usage(context.Context, string) (ratelimit.Usage, error) {
	return f.usage, f.err
}

func newTestRouter(engine *fakeEngine, usage *fakeUsage) (http.Handler, *provider.StoreSources) {
	ms := store.NewMemoryStore()
	sources := provider.NewStoreSources(ms)
	h := NewHandler(
		engine,
		usage,
		ratelimit.NewProviderBudget(ratelimit.ProviderConfig{}),
		cache.New(ms, cache.Config{}),
		rl.NewQTable(),
		sources,
		ms,
	)
	return NewRouter(h, RouterConfig{}), sources
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var envelope APIResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("response is not an envelope: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, envelope
}

func TestRecommendationsSuccess(t *testing.T) {
	engine := &fakeEngine{result: &recommend.Result{
		RequestID: "r1",
		UserID:    "u1",
		State:     recommend.StateReturnedFresh,
		Items: []recommend.ScoredCandidate{
			{Candidate: recommend.Candidate{ID: "item-1", Artist: "a"}},
		},
	}}
	router, _ := newTestRouter(engine, &fakeUsage{})

	rec, envelope := doRequest(t, router, http.MethodPost,
		"/api/v1/users/u1/recommendations", `{"top_n": 10}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !envelope.Success || envelope.Error != nil {
		t.Errorf("envelope = %+v, want success", envelope)
	}
	if engine.lastRequest.UserID != "u1" || engine.lastRequest.TopN != 10 {
		t.Errorf("engine request = %+v", engine.lastRequest)
	}
}

func TestRecommendationsEmptyBodyAllowed(t *testing.T) {
	engine := &fakeEngine{result: &recommend.Result{State: recommend.StateReturnedFresh}}
	router, _ := newTestRouter(engine, &fakeUsage{})

	rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/users/u1/recommendations", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRecommendationsValidation(t *testing.T) {
	router, _ := newTestRouter(&fakeEngine{}, &fakeUsage{})

	rec, envelope := doRequest(t, router, http.MethodPost,
		"/api/v1/users/u1/recommendations", `{"top_n": 500}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v, want %s", envelope.Error, ErrCodeValidationFailed)
	}
}

func TestRecommendationsRateLimited(t *testing.T) {
	engine := &fakeEngine{initErr: &recommend.RateLimitedError{RetryAfterSeconds: 17}}
	router, _ := newTestRouter(engine, &fakeUsage{})

	rec, envelope := doRequest(t, router, http.MethodPost,
		"/api/v1/users/u1/recommendations", "")

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "17" {
		t.Errorf("Retry-After = %q, want 17", got)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestRecommendationsNoCandidates(t *testing.T) {
	engine := &fakeEngine{initErr: fmt.Errorf("generate: %w", recommend.ErrNoCandidates)}
	router, _ := newTestRouter(engine, &fakeUsage{})

	rec, envelope := doRequest(t, router, http.MethodPost,
		"/api/v1/users/u1/recommendations", "")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestFeedbackAccepted(t *testing.T) {
	engine := &fakeEngine{}
	router, _ := newTestRouter(engine, &fakeUsage{})

	body := `{"user_id":"u1","item_id":"i1","interaction":"play","completion_ratio":0.95,"genre":"jazz","features":{"energy":0.7,"valence":0.6,"tempo":120}}`
	rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/feedback", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if engine.lastFeedback.Interaction != "play" || engine.lastFeedback.CompletionRatio != 0.95 {
		t.Errorf("feedback = %+v", engine.lastFeedback)
	}
	if engine.lastFeedback.Features.Tempo != 120 {
		t.Errorf("features not mapped: %+v", engine.lastFeedback.Features)
	}
}

func TestFeedbackMissingFields(t *testing.T) {
	router, _ := newTestRouter(&fakeEngine{}, &fakeUsage{})

	rec, envelope := doRequest(t, router, http.MethodPost, "/api/v1/feedback",
		`{"interaction":"like"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestFeedbackEmptyBodyRejected(t *testing.T) {
	router, _ := newTestRouter(&fakeEngine{}, &fakeUsage{})

	rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/feedback", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestFeedbackUnknownInteraction(t *testing.T) {
	engine := &fakeEngine{feedbackErr: fmt.Errorf("record feedback: unknown interaction %q", "hover")}
	router, _ := newTestRouter(engine, &fakeUsage{})

	body := `{"user_id":"u1","item_id":"i1","interaction":"hover"}`
	rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/feedback", body)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpsertProfileStored(t *testing.T) {
	router, sources := newTestRouter(&fakeEngine{}, &fakeUsage{})

	body := `{"openness":0.8,"extraversion":1.4,"neuroticism":0.2}`
	rec, envelope := doRequest(t, router, http.MethodPut, "/api/v1/users/u1/profile", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !envelope.Success {
		t.Errorf("envelope = %+v", envelope)
	}

	p, err := sources.Profile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.Openness != 0.8 || p.Extraversion != 1 {
		t.Errorf("stored profile = %+v, want clamped extraversion", p)
	}
}

func TestUpsertProfileEmptyBodyRejected(t *testing.T) {
	router, _ := newTestRouter(&fakeEngine{}, &fakeUsage{})

	rec, _ := doRequest(t, router, http.MethodPut, "/api/v1/users/u1/profile", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpsertHistoryStored(t *testing.T) {
	router, sources := newTestRouter(&fakeEngine{}, &fakeUsage{})

	body := `{"tracks":[{"id":"h1","artist":"A","play_count":7}]}`
	rec, _ := doRequest(t, router, http.MethodPut, "/api/v1/users/u1/history", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	entries, err := sources.TopTracks(context.Background(), "u1")
	if err != nil {
		t.Fatalf("TopTracks() error = %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "h1" || entries[0].PlayCount != 7 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestUpsertHistoryMissingTracks(t *testing.T) {
	router, _ := newTestRouter(&fakeEngine{}, &fakeUsage{})

	rec, envelope := doRequest(t, router, http.MethodPut, "/api/v1/users/u1/history", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestRateLimitUsage(t *testing.T) {
	usage := &fakeUsage{usage: ratelimit.Usage{Used: 42, Limit: 100, WindowSeconds: 60}}
	router, _ := newTestRouter(&fakeEngine{}, usage)

	rec, envelope := doRequest(t, router, http.MethodGet, "/api/v1/users/u1/ratelimit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %T", envelope.Data)
	}
	if data["used"] != float64(42) {
		t.Errorf("used = %v, want 42", data["used"])
	}
}

func TestStats(t *testing.T) {
	router, _ := newTestRouter(&fakeEngine{}, &fakeUsage{})

	rec, envelope := doRequest(t, router, http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %T", envelope.Data)
	}
	cacheData, ok := data["cache"].(map[string]interface{})
	if !ok {
		t.Fatalf("cache stats missing: %v", data)
	}
	for _, cat := range []string{"rec", "feat", "prov", "state"} {
		if _, ok := cacheData[cat]; !ok {
			t.Errorf("cache category %q missing", cat)
		}
	}
	if _, ok := data["provider_tokens"]; !ok {
		t.Error("provider tokens missing")
	}
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(&fakeEngine{}, &fakeUsage{})

	for _, path := range []string{"/healthz/live", "/healthz/ready"} {
		rec, _ := doRequest(t, router, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	router, _ := newTestRouter(&fakeEngine{result: &recommend.Result{}}, &fakeUsage{})

	rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/users/u1/recommendations", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(&fakeEngine{}, &fakeUsage{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mitra_") {
		t.Error("metrics exposition missing mitra collectors")
	}
}
