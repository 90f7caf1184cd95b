package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/manpreetbhatti/codecollab/internal/db"
	"github.com/manpreetbhatti/codecollab/internal/ws"
)

const (
	exercisesPrefix = "/api/exercises"
	// Legacy route name kept for older clients
	codeBlocksPrefix = "/api/code-blocks"
)

type API struct {
	hub       *ws.Hub
	database  *db.Database
	staticDir string
	logger    *slog.Logger
}

func New(hub *ws.Hub, database *db.Database, staticDir string, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		hub:       hub,
		database:  database,
		staticDir: staticDir,
		logger:    logger,
	}
}

// Routes wires every HTTP and websocket endpoint
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(a.hub, w, r)
	})
	mux.HandleFunc("/health", a.HealthHandler)
	mux.HandleFunc("/api/stats", a.StatsHandler)
	mux.HandleFunc(exercisesPrefix, a.ExercisesRouter)
	mux.HandleFunc(exercisesPrefix+"/", a.ExercisesRouter)
	mux.HandleFunc(codeBlocksPrefix, a.ExercisesRouter)
	mux.HandleFunc(codeBlocksPrefix+"/", a.ExercisesRouter)
	mux.HandleFunc("/", a.StaticHandler)

	return mux
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (a *API) errorResponse(w http.ResponseWriter, status int, message string) {
	a.jsonResponse(w, status, map[string]string{"message": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"rooms":          a.hub.GetActiveRooms(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats(r.Context())
		if err == nil {
			stats["exercise_count"] = dbStats["exercise_count"]
			stats["solve_count"] = dbStats["solve_count"]
		} else {
			a.logger.Error("failed to read database stats", "error", err)
		}
	}

	a.jsonResponse(w, http.StatusOK, stats)
}

// Exercise handlers

func (a *API) ListExercisesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	exercises, err := a.database.ListExercises(r.Context())
	if err != nil {
		a.logger.Error("failed to list exercises", "error", err)
		a.errorResponse(w, http.StatusInternalServerError, "Failed to list exercises")
		return
	}

	a.jsonResponse(w, http.StatusOK, exercises)
}

func (a *API) GetExerciseHandler(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		a.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	exercise, err := a.database.GetExercise(r.Context(), id)
	if err != nil {
		a.logger.Error("failed to get exercise", "id", id, "error", err)
		a.errorResponse(w, http.StatusInternalServerError, "Failed to get exercise")
		return
	}

	if exercise == nil {
		a.errorResponse(w, http.StatusNotFound, "Exercise not found")
		return
	}

	a.jsonResponse(w, http.StatusOK, exercise)
}

func (a *API) ExercisesRouter(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, exercisesPrefix)
	if strings.HasPrefix(r.URL.Path, codeBlocksPrefix) {
		path = strings.TrimPrefix(r.URL.Path, codeBlocksPrefix)
	}
	id := strings.Trim(path, "/")

	// /api/exercises or /api/exercises/
	if id == "" {
		a.ListExercisesHandler(w, r)
		return
	}

	if strings.Contains(id, "/") {
		a.errorResponse(w, http.StatusNotFound, "Not found")
		return
	}

	// /api/exercises/{id}
	a.GetExerciseHandler(w, r, id)
}

// StaticHandler serves the built client. Unknown paths fall back to
// index.html so client-side routes survive a reload.
func (a *API) StaticHandler(w http.ResponseWriter, r *http.Request) {
	if a.staticDir == "" {
		a.errorResponse(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		a.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	name := filepath.Join(a.staticDir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		http.ServeFile(w, r, name)
		return
	}

	index := filepath.Join(a.staticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		a.errorResponse(w, http.StatusNotFound, "Not found")
		return
	}
	http.ServeFile(w, r, index)
}

// CORSMiddleware allows the client to be served from another origin
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
