package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/manpreetbhatti/codecollab/internal/db"
	"github.com/manpreetbhatti/codecollab/internal/room"
	"github.com/manpreetbhatti/codecollab/internal/solution"
	"github.com/manpreetbhatti/codecollab/internal/ws"
)

func setupTestAPI(t *testing.T, staticDir string) (*API, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "codecollab-api-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	coord := room.NewCoordinator(room.NewTable(), room.NewRegistry(), logger)
	hub := ws.NewHub(coord, solution.NewChecker(database), database, ws.DefaultConfig(), logger)
	go hub.Run()

	api := New(hub, database, staticDir, logger)

	cleanup := func() {
		hub.Stop()
		database.Close()
		os.RemoveAll(tmpDir)
	}

	return api, cleanup
}

func TestHealthHandler(t *testing.T) {
	api, cleanup := setupTestAPI(t, "")
	defer cleanup()

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	api.HealthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%v'", response["status"])
	}
}

func TestStatsHandler(t *testing.T) {
	api, cleanup := setupTestAPI(t, "")
	defer cleanup()

	api.database.CreateExercise(context.Background(), "Stats", "", "")

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()

	api.StatsHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	for _, key := range []string{"active_rooms", "active_clients", "rooms", "exercise_count", "solve_count"} {
		if _, ok := response[key]; !ok {
			t.Errorf("Response should contain '%s'", key)
		}
	}
	if response["exercise_count"] != float64(1) {
		t.Errorf("Expected exercise_count 1, got %v", response["exercise_count"])
	}
}

func TestListExercises(t *testing.T) {
	api, cleanup := setupTestAPI(t, "")
	defer cleanup()

	for _, name := range []string{"One", "Two", "Three"} {
		if _, err := api.database.CreateExercise(context.Background(), name, "code", "secret"); err != nil {
			t.Fatalf("Failed to create exercise: %v", err)
		}
	}

	req := httptest.NewRequest("GET", "/api/exercises", nil)
	w := httptest.NewRecorder()

	api.ListExercisesHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(response) != 3 {
		t.Fatalf("Expected 3 exercises, got %d", len(response))
	}
	if response[0]["name"] != "One" {
		t.Errorf("Expected first exercise 'One', got '%v'", response[0]["name"])
	}
	if _, ok := response[0]["solution"]; ok {
		t.Error("List should not expose solutions")
	}
}

func TestListExercisesEmpty(t *testing.T) {
	api, cleanup := setupTestAPI(t, "")
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/exercises", nil)
	w := httptest.NewRecorder()

	api.ListExercisesHandler(w, req)

	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("Expected empty JSON array, got %s", body)
	}
}

func TestGetExercise(t *testing.T) {
	api, cleanup := setupTestAPI(t, "")
	defer cleanup()

	ex, err := api.database.CreateExercise(context.Background(), "Get", "// start", "// done")
	if err != nil {
		t.Fatalf("Failed to create exercise: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/exercises/"+ex.ID, nil)
	w := httptest.NewRecorder()

	api.ExercisesRouter(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["id"] != ex.ID {
		t.Errorf("Expected exercise ID '%s', got '%v'", ex.ID, response["id"])
	}
	if response["code"] != "// start" || response["solution"] != "// done" {
		t.Errorf("Unexpected exercise body: %v", response)
	}
}

func TestGetExerciseNotFound(t *testing.T) {
	api, cleanup := setupTestAPI(t, "")
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/exercises/non-existent", nil)
	w := httptest.NewRecorder()

	api.ExercisesRouter(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestRoutes(t *testing.T) {
	staticDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>lobby</html>"), 0644); err != nil {
		t.Fatalf("Failed to write index.html: %v", err)
	}
	if err := os.WriteFile(filepath.Join(staticDir, "app.js"), []byte("console.log(1)"), 0644); err != nil {
		t.Fatalf("Failed to write app.js: %v", err)
	}

	api, cleanup := setupTestAPI(t, staticDir)
	defer cleanup()

	ex, _ := api.database.CreateExercise(context.Background(), "Routed", "", "")
	handler := CORSMiddleware(api.Routes())

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		bodyContains   string
	}{
		{"list exercises", "GET", "/api/exercises", http.StatusOK, "Routed"},
		{"list with trailing slash", "GET", "/api/exercises/", http.StatusOK, "Routed"},
		{"get exercise", "GET", "/api/exercises/" + ex.ID, http.StatusOK, ex.ID},
		{"legacy list", "GET", "/api/code-blocks", http.StatusOK, "Routed"},
		{"legacy get", "GET", "/api/code-blocks/" + ex.ID, http.StatusOK, ex.ID},
		{"nested path", "GET", "/api/exercises/" + ex.ID + "/extra", http.StatusNotFound, ""},
		{"post not allowed", "POST", "/api/exercises", http.StatusMethodNotAllowed, ""},
		{"preflight", "OPTIONS", "/api/exercises", http.StatusOK, ""},
		{"health", "GET", "/health", http.StatusOK, "ok"},
		{"static root", "GET", "/", http.StatusOK, "lobby"},
		{"static asset", "GET", "/app.js", http.StatusOK, "console.log"},
		{"client route falls back to index", "GET", "/code-block/" + ex.ID, http.StatusOK, "lobby"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.bodyContains != "" && !strings.Contains(w.Body.String(), tt.bodyContains) {
				t.Errorf("Expected body to contain %q, got %s", tt.bodyContains, w.Body.String())
			}
			if w.Header().Get("Access-Control-Allow-Origin") != "*" {
				t.Error("Expected CORS header")
			}
		})
	}
}

func TestStaticDisabled(t *testing.T) {
	api, cleanup := setupTestAPI(t, "")
	defer cleanup()

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	api.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 without a static dir, got %d", w.Code)
	}
}
