package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, хотели 200", rec.Code)
	}
	var resp healthLiveResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Service != serviceName {
		t.Errorf("ответ = %+v", resp)
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name        string
		pg          ReadinessChecker
		redis       ReadinessChecker
		wantStatus  string
		wantHTTP    int
		wantRedis   bool
		redisStatus string
	}{
		{"postgres ok без redis", &mockChecker{status: "ok"}, nil, "ok", http.StatusOK, false, ""},
		{"postgres и redis ok", &mockChecker{status: "ok"}, &mockChecker{status: "ok"}, "ok", http.StatusOK, true, "ok"},
		{"redis недоступен", &mockChecker{status: "ok"}, &mockChecker{status: "fail"}, "degraded", http.StatusOK, true, "degraded"},
		{"postgres fail", &mockChecker{status: "fail", message: "timeout"}, &mockChecker{status: "ok"}, "fail", http.StatusServiceUnavailable, true, "ok"},
		{"postgres не инициализирован", nil, nil, "fail", http.StatusServiceUnavailable, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.pg, tt.redis)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantHTTP {
				t.Errorf("HTTP status = %d, хотели %d", rec.Code, tt.wantHTTP)
			}
			var resp healthReadyResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, хотели %q", resp.Status, tt.wantStatus)
			}
			if (resp.Checks.Redis != nil) != tt.wantRedis {
				t.Fatalf("checks.redis = %+v", resp.Checks.Redis)
			}
			if tt.wantRedis && resp.Checks.Redis.Status != tt.redisStatus {
				t.Errorf("redis status = %q, хотели %q", resp.Checks.Redis.Status, tt.redisStatus)
			}
		})
	}
}

type staticDeps map[string]bool

func (d staticDeps) Health() map[string]bool { return d }

func TestHealthReady_Dependencies(t *testing.T) {
	h := NewHealthHandler(&mockChecker{status: "ok"}, nil)
	h.WithDependencies(staticDeps{"postgresql": false})

	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	var resp healthReadyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if ok, found := resp.Dependencies["postgresql"]; !found || ok {
		t.Errorf("dependencies = %v", resp.Dependencies)
	}
	// Данные мониторинга не меняют итоговый статус
	if resp.Status != "ok" {
		t.Errorf("status = %q, хотели ok", resp.Status)
	}
}

func TestAPIHealth(t *testing.T) {
	h := NewHealthHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.APIHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var resp apiHealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || !resp.Success {
		t.Errorf("status = %d, ответ = %+v", rec.Code, resp)
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		statuses []string
		want     string
	}{
		{[]string{"ok"}, "ok"},
		{[]string{"ok", "degraded"}, "degraded"},
		{[]string{"degraded", "fail"}, "fail"},
		{nil, "ok"},
	}
	for _, tt := range tests {
		if got := overallStatus(tt.statuses...); got != tt.want {
			t.Errorf("overallStatus(%v) = %q, хотели %q", tt.statuses, got, tt.want)
		}
	}
}
