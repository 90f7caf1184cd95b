// Package solution decides whether submitted code matches an exercise's
// canonical solution.
//
// Comparison is done on a normalized form: escaped newlines, carriage
// returns, tabs, quotes and backslashes are unescaped, every line is
// trimmed and blank lines are dropped. Indentation and blank-line layout
// therefore do not matter, while statement order and identifiers do.
package solution

import (
	"context"
	"fmt"
	"strings"

	"github.com/manpreetbhatti/codecollab/internal/db"
)

// Applied one after another; the backslash pair must stay last.
var escapes = [][2]string{
	{`\n`, "\n"},
	{`\r`, "\r"},
	{`\t`, "\t"},
	{`\"`, `"`},
	{`\\`, `\`},
}

func unescape(s string) string {
	for _, e := range escapes {
		s = strings.ReplaceAll(s, e[0], e[1])
	}
	return s
}

// Normalize returns the canonical form used for comparison
func Normalize(code string) string {
	lines := strings.Split(unescape(code), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// ExerciseStore is the lookup the checker needs. GetExercise returns nil
// with no error when the id is unknown.
type ExerciseStore interface {
	GetExercise(ctx context.Context, id string) (*db.Exercise, error)
}

type Checker struct {
	store ExerciseStore
}

func NewChecker(store ExerciseStore) *Checker {
	return &Checker{store: store}
}

// IsCorrect reports whether code solves the exercise with the given id.
// An unknown exercise is simply not solved.
func (c *Checker) IsCorrect(ctx context.Context, exerciseID, code string) (bool, error) {
	ex, err := c.store.GetExercise(ctx, exerciseID)
	if err != nil {
		return false, fmt.Errorf("look up exercise %s: %w", exerciseID, err)
	}
	if ex == nil {
		return false, nil
	}
	return Equal(code, ex.Solution), nil
}
