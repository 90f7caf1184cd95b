package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

type Database struct {
	db *sql.DB
}

// Exercise is a coding task with starter code and a canonical solution
type Exercise struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Solution  string    `json:"solution"`
	CreatedAt time.Time `json:"created_at"`
}

// ExerciseSummary is the lobby view of an exercise
type ExerciseSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func New(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS exercises (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL CHECK (name <> ''),
		code TEXT NOT NULL DEFAULT '',
		solution TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS solves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exercise_id TEXT NOT NULL,
		connection_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (exercise_id) REFERENCES exercises(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_solves_exercise_id ON solves(exercise_id);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Exercise operations

// CreateExercise inserts an exercise under a fresh ULID, so listing by id
// returns exercises in creation order
func (d *Database) CreateExercise(ctx context.Context, name, code, solution string) (*Exercise, error) {
	id := ulid.Make().String()
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO exercises (id, name, code, solution) VALUES (?, ?, ?, ?)",
		id, name, code, solution,
	)
	if err != nil {
		return nil, fmt.Errorf("insert exercise %q: %w", name, err)
	}
	return d.GetExercise(ctx, id)
}

// GetExercise returns nil, nil when no exercise has the id
func (d *Database) GetExercise(ctx context.Context, id string) (*Exercise, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT id, name, code, solution, created_at FROM exercises WHERE id = ?",
		id,
	)

	var ex Exercise
	err := row.Scan(&ex.ID, &ex.Name, &ex.Code, &ex.Solution, &ex.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ex, nil
}

func (d *Database) ListExercises(ctx context.Context) ([]ExerciseSummary, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT id, name FROM exercises ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exercises := make([]ExerciseSummary, 0)
	for rows.Next() {
		var ex ExerciseSummary
		if err := rows.Scan(&ex.ID, &ex.Name); err != nil {
			return nil, err
		}
		exercises = append(exercises, ex)
	}
	return exercises, rows.Err()
}

func (d *Database) CountExercises(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM exercises").Scan(&count)
	return count, err
}

// Seed inserts the given exercises when the catalog is empty and reports
// how many were added. Either every exercise is inserted or none is.
func (d *Database) Seed(ctx context.Context, exercises []SeedExercise) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM exercises").Scan(&count); err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	for _, ex := range exercises {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO exercises (id, name, code, solution) VALUES (?, ?, ?, ?)",
			ulid.Make().String(), ex.Name, ex.Code, ex.Solution,
		)
		if err != nil {
			return 0, fmt.Errorf("insert exercise %q: %w", ex.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return len(exercises), nil
}

// Solve operations

func (d *Database) RecordSolve(ctx context.Context, exerciseID, connectionID string) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO solves (exercise_id, connection_id) VALUES (?, ?)",
		exerciseID, connectionID,
	)
	return err
}

func (d *Database) GetSolveCount(ctx context.Context, exerciseID string) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM solves WHERE exercise_id = ?",
		exerciseID,
	).Scan(&count)
	return count, err
}

// Stats

func (d *Database) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	exerciseCount, err := d.CountExercises(ctx)
	if err != nil {
		return nil, err
	}
	stats["exercise_count"] = exerciseCount

	var solveCount int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM solves").Scan(&solveCount); err != nil {
		return nil, err
	}
	stats["solve_count"] = solveCount

	return stats, nil
}
