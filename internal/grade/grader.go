// Package grade compares runner output against expected fixtures and folds
// per-case results into an aggregate verdict.
package grade

import (
	"strings"

	"github.com/paulgasbarra/together-we-code/internal/models"
)

// Compare reports whether actual output matches the expected output. Both
// sides are trimmed of leading and trailing whitespace, then compared with
// exact case-sensitive equality. There is deliberately no numeric coercion:
// "3.0" does not match "3".
func Compare(actual, expected string) bool {
	return strings.TrimSpace(actual) == strings.TrimSpace(expected)
}

// Aggregate folds per-case results into a terminal status: passed iff every
// case passed, failed otherwise. Batch-level failures (missing fixtures,
// unsupported language) never reach here; the dispatcher short-circuits them
// to StatusError with no results.
func Aggregate(results []models.TestResult) models.SubmissionStatus {
	for _, r := range results {
		if !r.Passed {
			return models.StatusFailed
		}
	}
	return models.StatusPassed
}
