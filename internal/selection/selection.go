// Package selection builds the per-attempt question snapshot from a test's
// authored pool and derives deployment durations.
package selection

import (
	"math"
	"math/rand"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/models"
)

// Snapshot produces the ordered question list served to one attempt. The pool
// is copied, optionally shuffled (Fisher-Yates), then optionally truncated to
// the configured maximum. Truncation runs after the shuffle so a capped test
// samples the whole pool rather than always serving the leading subset.
//
// Each attempt gets its own *rand.Rand so two attempts never share a shuffle.
func Snapshot(pool []models.Question, cfg models.TestConfig, r *rand.Rand) []models.Question {
	served := make([]models.Question, len(pool))
	copy(served, pool)

	if cfg.ShuffleQuestions || cfg.MaxQuestionsToAttempt > 0 {
		for i := len(served) - 1; i >= 1; i-- {
			j := r.Intn(i + 1)
			served[i], served[j] = served[j], served[i]
		}
	}

	if cfg.MaxQuestionsToAttempt > 0 && cfg.MaxQuestionsToAttempt < len(served) {
		served = served[:cfg.MaxQuestionsToAttempt]
	}

	return served
}

// Preview is the one legitimate reshuffle path: the strip-and-serve view of
// the live pool shown before any attempt exists. It shuffles only when the
// test asks for it and never truncates or persists anything.
func Preview(pool []models.Question, cfg models.TestConfig, r *rand.Rand) []models.Question {
	served := make([]models.Question, len(pool))
	copy(served, pool)

	if cfg.ShuffleQuestions {
		for i := len(served) - 1; i >= 1; i-- {
			j := r.Intn(i + 1)
			served[i], served[j] = served[j], served[i]
		}
	}

	return served
}

// DurationMinutes derives the attempt duration for a served question list.
// With per-question timing enabled it is the ceiling of the summed question
// time limits (comprehension sub-questions included, missing limits falling
// back to the test default) in minutes; otherwise the explicit deployment
// duration is authoritative.
func DurationMinutes(served []models.Question, cfg models.TestConfig, dep models.Deployment) int {
	if !cfg.PerQuestionTimer {
		return dep.DurationMinutes
	}

	seconds := sumSeconds(served, cfg.PerQuestionSeconds)
	return int(math.Ceil(float64(seconds) / 60.0))
}

func sumSeconds(qs []models.Question, fallback int) int {
	var total int
	for _, q := range qs {
		if q.Type == models.QuestionComprehension {
			total += sumSeconds(q.SubQuestions, fallback)
			continue
		}
		if q.TimeLimitSeconds > 0 {
			total += q.TimeLimitSeconds
		} else {
			total += fallback
		}
	}
	return total
}
